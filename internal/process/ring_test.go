package process

import (
	"fmt"
	"reflect"
	"testing"
)

func TestOutputRingCursor(t *testing.T) {
	r := newOutputRing(10)

	lines, cur := r.since(0)
	if len(lines) != 0 || cur != 0 {
		t.Fatalf("empty ring: lines=%v cur=%d", lines, cur)
	}

	r.append("a")
	r.append("b")

	lines, cur = r.since(0)
	if !reflect.DeepEqual(lines, []string{"a", "b"}) {
		t.Errorf("lines = %v, want [a b]", lines)
	}

	// Nothing new since the returned cursor.
	lines, cur2 := r.since(cur)
	if len(lines) != 0 || cur2 != cur {
		t.Errorf("re-read returned lines=%v cur=%d", lines, cur2)
	}

	r.append("c")
	lines, _ = r.since(cur)
	if !reflect.DeepEqual(lines, []string{"c"}) {
		t.Errorf("incremental read = %v, want [c]", lines)
	}
}

func TestOutputRingEviction(t *testing.T) {
	r := newOutputRing(3)
	for i := 0; i < 5; i++ {
		r.append(fmt.Sprintf("line%d", i))
	}

	// A cursor older than the retained window resumes at the oldest
	// retained line.
	lines, cur := r.since(0)
	if !reflect.DeepEqual(lines, []string{"line2", "line3", "line4"}) {
		t.Errorf("lines = %v", lines)
	}
	if cur != 5 {
		t.Errorf("cursor = %d, want 5", cur)
	}
}

func TestOutputRingConsumeNeverReplays(t *testing.T) {
	r := newOutputRing(10)
	r.append("a")
	r.append("b")

	if got := r.consume(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("first consume = %v, want [a b]", got)
	}
	// Nothing new produced: the record's cursor already moved past
	// everything delivered.
	if got := r.consume(); len(got) != 0 {
		t.Errorf("second consume replayed %v", got)
	}

	r.append("c")
	if got := r.consume(); !reflect.DeepEqual(got, []string{"c"}) {
		t.Errorf("incremental consume = %v, want [c]", got)
	}
}

func TestOutputRingConsumeSurvivesEviction(t *testing.T) {
	r := newOutputRing(2)
	for i := 0; i < 5; i++ {
		r.append(fmt.Sprintf("line%d", i))
	}

	if got := r.consume(); !reflect.DeepEqual(got, []string{"line3", "line4"}) {
		t.Errorf("consume after eviction = %v", got)
	}
	if got := r.consume(); len(got) != 0 {
		t.Errorf("consume replayed after eviction: %v", got)
	}
}

func TestOutputRingIndependentReaders(t *testing.T) {
	r := newOutputRing(10)
	r.append("x")

	a, _ := r.since(0)
	b, _ := r.since(0)
	if len(a) != 1 || len(b) != 1 {
		t.Errorf("readers interfered: a=%v b=%v", a, b)
	}
}
