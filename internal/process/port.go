package process

import (
	"net"
	"strconv"
)

// portProbeWindow bounds how far above the requested port we search.
const portProbeWindow = 10

// portAvailable reports whether a TCP listener can bind the port on
// localhost right now.
func portAvailable(port int) bool {
	l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	l.Close()
	return true
}

// findAvailablePort probes upward from the requested port. When the
// whole window is busy it falls back to the requested port and lets the
// child report the bind failure itself.
func findAvailablePort(requested int) int {
	for p := requested; p < requested+portProbeWindow; p++ {
		if portAvailable(p) {
			return p
		}
	}
	return requested
}
