package state

import (
	"errors"
	"testing"
	"time"
)

func TestStartFinishLifecycle(t *testing.T) {
	s := New()

	if got := s.Get("ds1").Phase; got != "" {
		t.Errorf("initial phase = %q, want empty", got)
	}

	s.Start("ds1")
	if got := s.Get("ds1").Phase; got != PhaseRunning {
		t.Errorf("phase after Start = %q, want %q", got, PhaseRunning)
	}

	s.Finish("ds1", 10, 2, nil)
	ds := s.Get("ds1")
	if ds.Phase != PhaseDone {
		t.Errorf("phase after successful Finish = %q, want %q", ds.Phase, PhaseDone)
	}
	if ds.FileCount != 10 || ds.PackCount != 2 {
		t.Errorf("unexpected counts: %+v", ds)
	}
}

func TestFinishWithErrorMarksFailed(t *testing.T) {
	s := New()
	s.Start("ds1")
	s.Finish("ds1", 0, 0, errors.New("boom"))

	ds := s.Get("ds1")
	if ds.Phase != PhaseFailed {
		t.Errorf("phase = %q, want %q", ds.Phase, PhaseFailed)
	}
	if ds.LastError != "boom" {
		t.Errorf("LastError = %q, want %q", ds.LastError, "boom")
	}
}

func TestWaitWakesOnUpdate(t *testing.T) {
	s := New()
	ch := s.Wait()

	done := make(chan struct{})
	go func() {
		s.Start("ds1")
		close(done)
	}()

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait channel did not close after an update")
	}
	<-done
}

func TestAllReturnsIndependentSnapshot(t *testing.T) {
	s := New()
	s.Start("ds1")
	s.Start("ds2")

	all := s.All()
	if len(all) != 2 {
		t.Fatalf("All() = %d entries, want 2", len(all))
	}

	s.Start("ds3")
	if len(all) != 2 {
		t.Error("All() snapshot should not reflect later updates")
	}
}
