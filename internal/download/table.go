package download

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Table is the in-memory registry of download jobs. One mutex guards a
// map of id → status plus a parallel map of id → cancellation flag.
// Critical sections are map lookups and short mutations only; no lock
// is ever held across I/O.
type Table struct {
	mu      sync.Mutex
	jobs    map[string]*Status
	cancels map[string]*atomic.Bool
}

// NewTable creates an empty job table.
func NewTable() *Table {
	return &Table{
		jobs:    make(map[string]*Status),
		cancels: make(map[string]*atomic.Bool),
	}
}

// add registers a new job and its cancellation flag.
func (t *Table) add(id string, st *Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[id] = st
	t.cancels[id] = &atomic.Bool{}
}

// Get returns a snapshot of a job's status.
func (t *Table) Get(id string) (Status, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.jobs[id]
	if !ok {
		return Status{}, ErrNotFound
	}
	return snapshot(st), nil
}

// List returns snapshots of all jobs, newest first.
func (t *Table) List() []Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Status, 0, len(t.jobs))
	for _, st := range t.jobs {
		out = append(out, snapshot(st))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out
}

// Pause marks a downloading job as paused and records the pause start.
func (t *Table) Pause(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if st.State != StateDownloading {
		return ErrConflict
	}
	st.State = StatePaused
	st.PauseStartTime = time.Now()
	return nil
}

// Resume moves a paused job back to downloading, accumulating the pause
// duration into TotalPausedTime.
func (t *Table) Resume(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if st.State != StatePaused {
		return ErrConflict
	}
	if !st.PauseStartTime.IsZero() {
		st.TotalPausedTime += time.Since(st.PauseStartTime)
		st.PauseStartTime = time.Time{}
	}
	st.State = StateDownloading
	return nil
}

// Cancel sets the job's cancellation flag. The worker observes the flag
// cooperatively and performs the actual teardown (temp file removal,
// terminal transition). Cancelling a terminal job is a state conflict.
func (t *Table) Cancel(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if st.State.Terminal() {
		return ErrConflict
	}
	t.cancels[id].Store(true)
	return nil
}

// ClearHistory drops completed, failed and cancelled jobs.
func (t *Table) ClearHistory() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, st := range t.jobs {
		if st.State.Terminal() {
			delete(t.jobs, id)
			delete(t.cancels, id)
		}
	}
}

// cancelled reports whether the job's cancellation flag is set.
func (t *Table) cancelled(id string) bool {
	t.mu.Lock()
	flag, ok := t.cancels[id]
	t.mu.Unlock()
	return ok && flag.Load()
}

// state returns the job's current state without copying the record.
func (t *Table) state(id string) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.jobs[id]
	if !ok {
		return "", false
	}
	return st.State, true
}

// update applies fn to the live record under the table lock. fn must be
// short and must not perform I/O.
func (t *Table) update(id string, fn func(*Status)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.jobs[id]; ok {
		fn(st)
	}
}

// snapshot copies a status, detaching the file list from the live record.
func snapshot(st *Status) Status {
	out := *st
	out.Files = append([]string(nil), st.Files...)
	return out
}
