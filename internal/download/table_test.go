package download

import (
	"errors"
	"testing"
	"time"
)

func addJob(t *testing.T, tbl *Table, id string, state State) {
	t.Helper()
	tbl.add(id, &Status{ID: id, State: state, StartTime: time.Now()})
}

func TestTablePauseResume(t *testing.T) {
	tbl := NewTable()
	addJob(t, tbl, "job1", StateDownloading)

	if err := tbl.Pause("job1"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	st, err := tbl.Get("job1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if st.State != StatePaused {
		t.Errorf("state = %q, want %q", st.State, StatePaused)
	}
	if st.PauseStartTime.IsZero() {
		t.Error("PauseStartTime not recorded")
	}

	// Pausing a paused job is a state conflict.
	if err := tbl.Pause("job1"); !errors.Is(err, ErrConflict) {
		t.Errorf("pause paused job: err = %v, want ErrConflict", err)
	}

	time.Sleep(20 * time.Millisecond)

	if err := tbl.Resume("job1"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	st, _ = tbl.Get("job1")
	if st.State != StateDownloading {
		t.Errorf("state = %q, want %q", st.State, StateDownloading)
	}
	if st.TotalPausedTime <= 0 {
		t.Error("TotalPausedTime not accumulated")
	}
	if !st.PauseStartTime.IsZero() {
		t.Error("PauseStartTime not cleared on resume")
	}

	if err := tbl.Resume("job1"); !errors.Is(err, ErrConflict) {
		t.Errorf("resume running job: err = %v, want ErrConflict", err)
	}
}

func TestTableUnknownID(t *testing.T) {
	tbl := NewTable()

	if _, err := tbl.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get: err = %v, want ErrNotFound", err)
	}
	if err := tbl.Pause("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Pause: err = %v, want ErrNotFound", err)
	}
	if err := tbl.Resume("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resume: err = %v, want ErrNotFound", err)
	}
	if err := tbl.Cancel("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Cancel: err = %v, want ErrNotFound", err)
	}
}

func TestTableCancel(t *testing.T) {
	tbl := NewTable()
	addJob(t, tbl, "active", StateDownloading)
	addJob(t, tbl, "done", StateCompleted)

	if err := tbl.Cancel("active"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !tbl.cancelled("active") {
		t.Error("cancellation flag not set")
	}
	// The worker, not Cancel, performs the terminal transition.
	st, _ := tbl.Get("active")
	if st.State != StateDownloading {
		t.Errorf("state = %q, want %q (worker owns the transition)", st.State, StateDownloading)
	}

	if err := tbl.Cancel("done"); !errors.Is(err, ErrConflict) {
		t.Errorf("cancel terminal job: err = %v, want ErrConflict", err)
	}
}

func TestTableClearHistory(t *testing.T) {
	tbl := NewTable()
	addJob(t, tbl, "running", StateDownloading)
	addJob(t, tbl, "done", StateCompleted)
	addJob(t, tbl, "failed", StateFailed)
	addJob(t, tbl, "cancelled", StateCancelled)

	tbl.ClearHistory()

	jobs := tbl.List()
	if len(jobs) != 1 {
		t.Fatalf("len(jobs) = %d, want 1", len(jobs))
	}
	if jobs[0].ID != "running" {
		t.Errorf("surviving job = %q, want %q", jobs[0].ID, "running")
	}
}

func TestTableListNewestFirst(t *testing.T) {
	tbl := NewTable()
	base := time.Now()
	tbl.add("old", &Status{ID: "old", State: StateCompleted, StartTime: base.Add(-time.Hour)})
	tbl.add("new", &Status{ID: "new", State: StateDownloading, StartTime: base})

	jobs := tbl.List()
	if len(jobs) != 2 {
		t.Fatalf("len(jobs) = %d, want 2", len(jobs))
	}
	if jobs[0].ID != "new" || jobs[1].ID != "old" {
		t.Errorf("order = [%s %s], want [new old]", jobs[0].ID, jobs[1].ID)
	}
}

func TestSnapshotDetachesFiles(t *testing.T) {
	tbl := NewTable()
	tbl.add("job", &Status{ID: "job", Files: []string{"a.bin"}, StartTime: time.Now()})

	st, _ := tbl.Get("job")
	st.Files[0] = "mutated"

	again, _ := tbl.Get("job")
	if again.Files[0] != "a.bin" {
		t.Errorf("live record mutated through snapshot: %q", again.Files[0])
	}
}
