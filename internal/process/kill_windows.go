//go:build windows

package process

import (
	"os/exec"
	"strconv"
)

// defaultExecutableName is the server binary name on this platform.
const defaultExecutableName = "llama-server.exe"

// terminateProcess has no graceful signal on Windows; the child is
// taken down the forceful way directly.
func terminateProcess(cmd *exec.Cmd) error {
	return forceKill(cmd)
}

// forceKill ends the child and its subprocess tree via taskkill.
func forceKill(cmd *exec.Cmd) error {
	kill := exec.Command("taskkill", "/PID", strconv.Itoa(cmd.Process.Pid), "/T", "/F")
	return kill.Run()
}
