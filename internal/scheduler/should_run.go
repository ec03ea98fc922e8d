package scheduler

import (
	"time"

	"coldpack/internal/model"
	"coldpack/internal/state"
)

// Evaluate runs the full readiness algorithm for one dataset: its
// schedules alone only say a run is "maybe due"; the application state
// store can then veto that (a run is already in flight) or leave it
// alone (a previous run errored, so retries are never suppressed).
//
// lastRun is the dataset's latest-snapshot end time (the zero Time if
// it has never completed a snapshot). It returns the first schedule
// found due, and restart, which is true when no application state
// exists for this dataset yet a schedule is due anyway — evidence that
// a previous run was interrupted by a crash and never got to record
// its own Start.
func Evaluate(dataset model.Dataset, lastRun time.Time, now time.Time, states *state.Store) (sched model.Schedule, due bool, restart bool) {
	if len(dataset.Schedules) == 0 {
		return model.Schedule{}, false, false
	}

	var ds state.DatasetState
	var stateExists bool
	if states != nil {
		ds = states.Get(dataset.ID)
		stateExists = ds.Phase != ""
	}

	for _, s := range dataset.Schedules {
		maybeRun := isReady(s, lastRun, now)

		if stateExists {
			switch {
			case ds.LastError != "":
				// had_error does not suppress retries; keep maybeRun as-is.
			case !ds.FinishedAt.IsZero() && !isReady(s, ds.FinishedAt, now):
				maybeRun = false
			case ds.FinishedAt.IsZero() && !dataset.Paused:
				maybeRun = false // still running
			}
		} else if maybeRun && states != nil {
			restart = true
		}

		if maybeRun {
			return s, true, restart
		}
	}
	return model.Schedule{}, false, restart
}

// isReady is schedule.is_ready(then): past due and within the
// schedule's configured time window.
func isReady(sched model.Schedule, then, now time.Time) bool {
	if then.IsZero() {
		return withinRange(sched, now)
	}
	return pastDue(sched, then, now) && withinRange(sched, now)
}
