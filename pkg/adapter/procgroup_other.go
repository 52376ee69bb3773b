//go:build !unix

package adapter

import (
	"os"
	"os/exec"
	"syscall"
)

func setProcessGroup(cmd *exec.Cmd) {}

// signalGroup falls back to the direct child; termination is always a kill.
func signalGroup(p *os.Process, sig syscall.Signal) error {
	return p.Kill()
}
