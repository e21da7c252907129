package process

import "sync"

// defaultRingLines bounds the per-process output buffer.
const defaultRingLines = 1000

// outputRing keeps the most recent lines of combined child output.
// Lines are numbered from process start. The ring carries the record's
// own read cursor, advanced by consume, so the canonical reader never
// sees a line twice; since serves extra observers with their own
// cursors.
type outputRing struct {
	mu     sync.Mutex
	lines  []string
	max    int
	next   uint64 // absolute index of the next appended line
	reader uint64 // the record's read cursor
}

func newOutputRing(max int) *outputRing {
	if max <= 0 {
		max = defaultRingLines
	}
	return &outputRing{max: max}
}

func (r *outputRing) append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	if len(r.lines) > r.max {
		r.lines = r.lines[len(r.lines)-r.max:]
	}
	r.next++
}

// consume returns the lines appended since the previous consume call
// and advances the record's read cursor past them.
func (r *outputRing) consume() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out, next := r.sinceLocked(r.reader)
	r.reader = next
	return out
}

// since returns the lines at or after cursor plus the cursor to pass on
// the next call. It does not touch the record's own read cursor.
func (r *outputRing) since(cursor uint64) ([]string, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sinceLocked(cursor)
}

// sinceLocked is since with r.mu held. A cursor older than the retained
// window resumes at the oldest retained line; evicted lines are
// silently lost.
func (r *outputRing) sinceLocked(cursor uint64) ([]string, uint64) {
	first := r.next - uint64(len(r.lines))
	if cursor < first {
		cursor = first
	}
	if cursor >= r.next {
		return nil, r.next
	}
	out := make([]string, r.next-cursor)
	copy(out, r.lines[cursor-first:])
	return out, r.next
}
