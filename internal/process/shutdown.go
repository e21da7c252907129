package process

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Shutdown stops every supervised process, gracefully where possible.
// Terminations run concurrently; the context bounds the overall wait.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.procs))
	for id := range s.procs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}
	s.log.WithField("count", len(ids)).Info("stopping all server processes")

	g, _ := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			return s.Terminate(id)
		})
	}
	return g.Wait()
}

// ForceShutdown kills every supervised process without any waiting. It
// only ever try-locks, so it is safe to call from exit handlers and
// signal handlers even while another goroutine holds the table or a
// signal lock; a contended process is being handled by that goroutine
// already.
func (s *Supervisor) ForceShutdown() {
	if !s.mu.TryLock() {
		return
	}
	procs := make([]*proc, 0, len(s.procs))
	for _, p := range s.procs {
		procs = append(procs, p)
	}
	s.mu.Unlock()

	for _, p := range procs {
		p.trySignal(forceKill)
	}
}
