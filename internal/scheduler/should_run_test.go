package scheduler

import (
	"errors"
	"testing"
	"time"

	"coldpack/internal/model"
	"coldpack/internal/state"
)

func TestEvaluateNoSchedulesNeverDue(t *testing.T) {
	ds := model.Dataset{ID: "ds1"}
	_, due, _ := Evaluate(ds, time.Time{}, time.Now(), state.New())
	if due {
		t.Error("dataset with no schedules should never be due")
	}
}

func TestEvaluateNilStoreFallsBackToScheduleOnly(t *testing.T) {
	ds := model.Dataset{ID: "ds1", Schedules: []model.Schedule{{Frequency: "hourly"}}}
	_, due, restart := Evaluate(ds, time.Time{}, time.Now(), nil)
	if !due {
		t.Error("expected schedule-only readiness to be due for a never-run dataset")
	}
	if restart {
		t.Error("a nil state store should never report a restart")
	}
}

func TestEvaluateStillRunningSuppressesDue(t *testing.T) {
	ds := model.Dataset{ID: "ds1", Schedules: []model.Schedule{{Frequency: "hourly"}}}
	states := state.New()
	states.Start(ds.ID) // Phase: running, FinishedAt zero, no error

	_, due, _ := Evaluate(ds, time.Now().Add(-2*time.Hour), time.Now(), states)
	if due {
		t.Error("an in-flight run should suppress readiness")
	}
}

func TestEvaluatePausedDoesNotSuppressStillRunning(t *testing.T) {
	ds := model.Dataset{ID: "ds1", Paused: true, Schedules: []model.Schedule{{Frequency: "hourly"}}}
	states := state.New()
	states.Start(ds.ID)

	_, due, _ := Evaluate(ds, time.Now().Add(-2*time.Hour), time.Now(), states)
	if !due {
		t.Error("a paused dataset should not have 'still running' suppress its readiness")
	}
}

func TestEvaluateHadErrorDoesNotSuppressRetry(t *testing.T) {
	ds := model.Dataset{ID: "ds1", Schedules: []model.Schedule{{Frequency: "hourly"}}}
	states := state.New()
	states.Start(ds.ID)
	states.Finish(ds.ID, 0, 0, errors.New("boom"))

	_, due, restart := Evaluate(ds, time.Now().Add(-2*time.Hour), time.Now(), states)
	if !due {
		t.Error("a dataset with a previous error should remain eligible for retry once its schedule is due")
	}
	if restart {
		t.Error("existing state should never report a restart")
	}
}

func TestEvaluateRecentlyFinishedNotYetDue(t *testing.T) {
	ds := model.Dataset{ID: "ds1", Schedules: []model.Schedule{{Frequency: "hourly"}}}
	states := state.New()
	states.Start(ds.ID)
	states.Finish(ds.ID, 1, 1, nil) // FinishedAt just now

	_, due, _ := Evaluate(ds, time.Now().Add(-2*time.Hour), time.Now(), states)
	if due {
		t.Error("a run that just finished should not be due again immediately")
	}
}

func TestEvaluateCrashRestartDetected(t *testing.T) {
	ds := model.Dataset{ID: "ds1", Schedules: []model.Schedule{{Frequency: "hourly"}}}
	states := state.New() // no recorded state at all

	_, due, restart := Evaluate(ds, time.Now().Add(-2*time.Hour), time.Now(), states)
	if !due {
		t.Error("expected a due schedule with no application state")
	}
	if !restart {
		t.Error("expected restart to be detected when due with no application state")
	}
}
