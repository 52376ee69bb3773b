package main

import "github.com/user/crosscheck/cmd"

func main() {
	cmd.Execute()
}
