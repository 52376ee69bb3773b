package adaptertest

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// Script writes an executable shell script standing in for a tool binary and
// returns its path. The test is skipped when sh is missing.
func Script(t testing.TB, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "tool")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}
