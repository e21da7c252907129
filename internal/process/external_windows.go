//go:build windows

package process

import "os/exec"

// launchExternalTerminal starts the server in a new console window via
// cmd's start builtin. The window owns the server's lifetime; the
// supervisor does not track it.
func launchExternalTerminal(exePath string, args []string, dir string, env []string) error {
	argv := append([]string{"/c", "start", "", exePath}, args...)
	cmd := exec.Command("cmd", argv...)
	cmd.Dir = dir
	cmd.Env = env
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}
