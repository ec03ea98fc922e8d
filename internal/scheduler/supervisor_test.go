package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"coldpack/internal/model"
)

type fakeSource struct {
	mu       sync.Mutex
	datasets []model.Dataset
	lastRun  map[string]time.Time
}

func (f *fakeSource) Datasets(context.Context) ([]model.Dataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Dataset(nil), f.datasets...), nil
}

func (f *fakeSource) LastRun(_ context.Context, datasetID string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastRun[datasetID], nil
}

func TestSupervisorTickDispatchesDueDatasets(t *testing.T) {
	src := &fakeSource{
		datasets: []model.Dataset{
			{ID: "ds1", Schedules: []model.Schedule{{Frequency: "hourly"}}},
		},
		lastRun: map[string]time.Time{},
	}

	var mu sync.Mutex
	var ran []string
	runner := func(ctx context.Context, ds model.Dataset) {
		mu.Lock()
		ran = append(ran, ds.ID)
		mu.Unlock()
	}

	sup, err := New(src, runner, time.Hour, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sup.Tick(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(ran)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ran) != 1 || ran[0] != "ds1" {
		t.Errorf("ran = %v, want [ds1]", ran)
	}
}

func TestSupervisorSkipsNotDueDatasets(t *testing.T) {
	src := &fakeSource{
		datasets: []model.Dataset{
			{ID: "ds1", Schedules: []model.Schedule{{Frequency: "hourly"}}},
		},
		lastRun: map[string]time.Time{"ds1": time.Now()},
	}

	var mu sync.Mutex
	var ran []string
	runner := func(ctx context.Context, ds model.Dataset) {
		mu.Lock()
		ran = append(ran, ds.ID)
		mu.Unlock()
	}

	sup, err := New(src, runner, time.Hour, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sup.Tick(context.Background())
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(ran) != 0 {
		t.Errorf("ran = %v, want none (just ran)", ran)
	}
}
