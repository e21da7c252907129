//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// defaultExecutableName is the server binary name on this platform.
const defaultExecutableName = "llama-server"

// terminateProcess asks the child to exit gracefully.
func terminateProcess(cmd *exec.Cmd) error {
	return cmd.Process.Signal(syscall.SIGTERM)
}

// forceKill ends the child immediately.
func forceKill(cmd *exec.Cmd) error {
	return cmd.Process.Signal(syscall.SIGKILL)
}
