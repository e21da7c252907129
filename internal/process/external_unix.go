//go:build !windows

package process

import (
	"errors"
	"os/exec"
	"strings"
)

// terminalCandidates are tried in order; the Debian alternatives
// wrapper first, then the common emulators directly.
var terminalCandidates = [][]string{
	{"x-terminal-emulator", "-e"},
	{"gnome-terminal", "--"},
	{"konsole", "-e"},
	{"xterm", "-e"},
}

// launchExternalTerminal starts the server inside a desktop terminal
// emulator so the user can watch its output directly. The terminal owns
// the server's lifetime; the supervisor does not track it.
func launchExternalTerminal(exePath string, args []string, dir string, env []string) error {
	cmdline := shellQuote(append([]string{exePath}, args...))

	for _, term := range terminalCandidates {
		bin, err := exec.LookPath(term[0])
		if err != nil {
			continue
		}
		argv := append(append([]string{}, term[1:]...), "sh", "-c", cmdline)
		cmd := exec.Command(bin, argv...)
		cmd.Dir = dir
		cmd.Env = env
		if err := cmd.Start(); err != nil {
			continue
		}
		go cmd.Wait() // reap the terminal when it closes
		return nil
	}

	return errors.New("process: no terminal emulator found")
}

func shellQuote(parts []string) string {
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = "'" + strings.ReplaceAll(p, "'", `'\''`) + "'"
	}
	return strings.Join(quoted, " ")
}
