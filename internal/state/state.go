// Package state implements the Application State component: an
// event-sourced record of what the backup engine is currently doing
// (which dataset is backing up, how far along, the last error), readable
// by any number of observers and updated by exactly one writer at a time
// per dataset.
package state

import (
	"sync"
	"time"

	"coldpack/internal/notify"
)

// RunPhase describes where a dataset's current (or most recent) backup
// run is in its lifecycle.
type RunPhase string

const (
	PhaseIdle    RunPhase = "idle"
	PhaseRunning RunPhase = "running"
	PhaseDone    RunPhase = "done"
	PhaseFailed  RunPhase = "failed"
)

// DatasetState is the current lifecycle state of one dataset's backup.
type DatasetState struct {
	DatasetID  string
	Phase      RunPhase
	StartedAt  time.Time
	FinishedAt time.Time
	FileCount  int64
	PackCount  int
	LastError  string
}

// Store holds the current DatasetState for every dataset the Supervisor
// knows about, and wakes any waiter blocked in Wait whenever a state
// transition happens — the same broadcast-by-closing-a-channel primitive
// the teacher uses for its own readiness notifications.
type Store struct {
	mu     sync.RWMutex
	states map[string]DatasetState
	signal *notify.Signal
}

// New creates an empty Store.
func New() *Store {
	return &Store{states: make(map[string]DatasetState), signal: notify.NewSignal()}
}

// Get returns the current state for datasetID, or the zero DatasetState
// (Phase "") if nothing has been recorded for it yet.
func (s *Store) Get(datasetID string) DatasetState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[datasetID]
}

// All returns a snapshot of every dataset's current state.
func (s *Store) All() map[string]DatasetState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]DatasetState, len(s.states))
	for k, v := range s.states {
		out[k] = v
	}
	return out
}

// Start records that datasetID has begun a new run.
func (s *Store) Start(datasetID string) {
	s.update(datasetID, func(ds *DatasetState) {
		ds.Phase = PhaseRunning
		ds.StartedAt = time.Now()
		ds.FinishedAt = time.Time{}
		ds.LastError = ""
	})
}

// Finish records that datasetID's run completed, successfully or not.
func (s *Store) Finish(datasetID string, fileCount int64, packCount int, runErr error) {
	s.update(datasetID, func(ds *DatasetState) {
		ds.FinishedAt = time.Now()
		ds.FileCount = fileCount
		ds.PackCount = packCount
		if runErr != nil {
			ds.Phase = PhaseFailed
			ds.LastError = runErr.Error()
			return
		}
		ds.Phase = PhaseDone
	})
}

func (s *Store) update(datasetID string, mutate func(*DatasetState)) {
	s.mu.Lock()
	ds := s.states[datasetID]
	ds.DatasetID = datasetID
	mutate(&ds)
	s.states[datasetID] = ds
	s.mu.Unlock()
	s.signal.Notify()
}

// Wait returns a channel that closes the next time any dataset's state
// changes, for callers that want to block until something happens rather
// than poll Get in a loop.
func (s *Store) Wait() <-chan struct{} {
	return s.signal.C()
}
