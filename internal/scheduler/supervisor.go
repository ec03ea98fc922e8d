package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"coldpack/internal/logging"
	"coldpack/internal/model"
	"coldpack/internal/state"
)

// DatasetSource supplies the current set of datasets and the time each one
// last completed a run, so the Supervisor can evaluate readiness on every
// tick without owning dataset persistence itself.
type DatasetSource interface {
	Datasets(ctx context.Context) ([]model.Dataset, error)
	LastRun(ctx context.Context, datasetID string) (time.Time, error)
}

// Runner performs one dataset's backup run. It is expected to itself apply
// whatever timeout/deadline the run should respect.
type Runner func(ctx context.Context, dataset model.Dataset)

// Supervisor wakes on a fixed interval (the teacher's own
// gocron-scheduled-job pattern, generalized from log-rotation jobs to
// backup runs), evaluates every dataset's readiness, and dispatches due
// ones to Runner. Each dataset runs in its own goroutine so one slow
// backup does not delay evaluating the rest.
type Supervisor struct {
	source   DatasetSource
	runner   Runner
	interval time.Duration
	logger   *slog.Logger
	states   *state.Store

	mu        sync.Mutex
	running   map[string]bool
	scheduler gocron.Scheduler
}

// New creates a Supervisor that ticks every interval (5 minutes in
// production, as low as 100ms in tests). states is consulted on every
// tick as a readiness input (a run already in flight, or one that
// errored and is retried as soon as its schedule is due) in addition to
// driving the Runner's own Start/Finish bookkeeping.
func New(source DatasetSource, runner Runner, interval time.Duration, states *state.Store, logger *slog.Logger) (*Supervisor, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler: new gocron scheduler: %w", err)
	}
	return &Supervisor{
		source:    source,
		runner:    runner,
		interval:  interval,
		logger:    logging.Default(logger).With("component", "scheduler"),
		states:    states,
		running:   make(map[string]bool),
		scheduler: sched,
	}, nil
}

// Start registers the tick job and begins the gocron scheduler. Call Stop
// to shut it down.
func (s *Supervisor) Start(ctx context.Context) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() { s.tick(ctx) }),
	)
	if err != nil {
		return fmt.Errorf("scheduler: register tick job: %w", err)
	}
	s.scheduler.Start()
	return nil
}

// Stop halts the gocron scheduler and waits for in-flight jobs to finish.
func (s *Supervisor) Stop() error {
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("scheduler: shutdown: %w", err)
	}
	return nil
}

// Tick runs one evaluation pass immediately, outside the gocron interval —
// used by tests.
func (s *Supervisor) Tick(ctx context.Context) {
	s.tick(ctx)
}

func (s *Supervisor) tick(ctx context.Context) {
	datasets, err := s.source.Datasets(ctx)
	if err != nil {
		s.logger.Error("list datasets", "error", err)
		return
	}

	now := time.Now()
	for _, ds := range datasets {
		if !s.claim(ds.ID) {
			continue // previous run for this dataset is still in flight
		}

		lastRun, err := s.source.LastRun(ctx, ds.ID)
		if err != nil {
			s.logger.Error("load last run", "dataset", ds.ID, "error", err)
			s.release(ds.ID)
			continue
		}

		_, due, restart := Evaluate(ds, lastRun, now, s.states)
		if !due {
			s.release(ds.ID)
			continue
		}
		if restart && s.states != nil {
			s.logger.Warn("dataset due with no recorded application state, treating as crash restart", "dataset", ds.ID)
			s.states.Start(ds.ID)
		}

		go func(dataset model.Dataset) {
			defer s.release(dataset.ID)
			s.logger.Info("dataset due, starting run", "dataset", dataset.ID)
			s.runner(ctx, dataset)
		}(ds)
	}
}

func (s *Supervisor) claim(datasetID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[datasetID] {
		return false
	}
	s.running[datasetID] = true
	return true
}

func (s *Supervisor) release(datasetID string) {
	s.mu.Lock()
	delete(s.running, datasetID)
	s.mu.Unlock()
}
