package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/malanthrax/Arandu-maxi/internal/events"
)

// Output line tags distinguish the two child streams in the combined
// ring.
const (
	tagStdout = "[OUT] "
	tagStderr = "[ERR] "
)

// pump drains both child streams into the ring, reaps the process and
// removes it from the table. It is the only caller of cmd.Wait for a
// supervised process.
func (s *Supervisor) pump(p *proc, stdout, stderr io.ReadCloser) {
	var g errgroup.Group
	g.Go(func() error {
		return scanLines(stdout, tagStdout, p.ring)
	})
	g.Go(func() error {
		return scanLines(stderr, tagStderr, p.ring)
	})
	if err := g.Wait(); err != nil {
		s.log.WithField("id", p.id).WithError(err).Debug("output stream error")
	}

	err := p.cmd.Wait()

	p.sigMu.Lock()
	p.alive = false
	p.sigMu.Unlock()

	state := StateStopped
	msg := "Server exited"
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg = fmt.Sprintf("Server exited with code %d", exitErr.ExitCode())
		// A signal death (code -1) is a stop, usually ours; a real
		// non-zero code is the server giving up on its own.
		if exitErr.ExitCode() > 0 {
			state = StateFailed
		}
	} else if err != nil {
		msg = fmt.Sprintf("Server exited: %v", err)
	}
	p.ring.append(msg)

	s.mu.Lock()
	p.info.State = state
	p.info.Message = msg
	info := p.info
	delete(s.procs, p.id)
	s.mu.Unlock()

	close(p.done)

	s.log.WithFields(logrus.Fields{
		"id":    p.id,
		"model": info.ModelName,
	}).Info(msg)
	s.events.Publish(events.Event{Type: events.TypeProcessStopped, ID: p.id, Payload: info})
}

// scanLines reads one stream line by line into the ring. The buffer is
// generous: llama-server dumps long tensor tables on startup.
func scanLines(r io.Reader, tag string, ring *outputRing) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		ring.append(tag + sc.Text())
	}
	return sc.Err()
}
