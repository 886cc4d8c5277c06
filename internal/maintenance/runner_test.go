package maintenance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shaiso/Alarmd/internal/delivery"
)

type fakeShard struct {
	delivery.Store

	name       string
	applicable bool
	checkErr   error
}

func (s *fakeShard) Shard() string { return s.name }

func (s *fakeShard) IsApplicable(context.Context) (bool, error) {
	return s.applicable, s.checkErr
}

type fakeWorker struct {
	mu     sync.Mutex
	runs   []string
	errFor map[string]error
	cancel context.CancelFunc
}

func (w *fakeWorker) Run(_ context.Context, shard string, _ delivery.Store) (delivery.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.runs = append(w.runs, shard)
	if w.cancel != nil {
		w.cancel()
	}
	if err := w.errFor[shard]; err != nil {
		return delivery.Result{Last: delivery.StateError}, err
	}
	return delivery.Result{Locked: 1, Last: delivery.StateSpawn}, nil
}

func (w *fakeWorker) calls() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.runs...)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"*/30 * * * *", false},
		{"0 3 * * 1-5", false},
		{"@every 1m", false},
		{"@hourly", false},
		{"* * * *", true},
		{"not a cron", true},
		{"0 0 * * * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := ValidateSchedule(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSchedule(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestNextRun(t *testing.T) {
	schedule, err := ParseSchedule("*/30 * * * *")
	if err != nil {
		t.Fatal(err)
	}
	from := time.Date(2024, 3, 1, 12, 10, 0, 0, time.UTC)
	if got := nextRun(schedule, from); got != 20*time.Minute {
		t.Errorf("nextRun() = %v, want 20m", got)
	}
}

func TestNew_InvalidSchedule(t *testing.T) {
	if _, err := New(Config{Schedule: "bogus", Logger: discard()}); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestRunner_RunOnce(t *testing.T) {
	workerErr := errors.New("probe failed")
	checkErr := errors.New("connection refused")

	worker := &fakeWorker{errFor: map[string]error{"s3": workerErr}}
	runner, err := New(Config{
		Worker: worker,
		Shards: []Shard{
			&fakeShard{name: "s1", applicable: true},
			&fakeShard{name: "s2", applicable: false},
			&fakeShard{name: "s3", applicable: true},
			&fakeShard{name: "s4", checkErr: checkErr},
			&fakeShard{name: "s5", applicable: true},
		},
		Logger: discard(),
	})
	if err != nil {
		t.Fatal(err)
	}

	err = runner.RunOnce(context.Background())
	if !errors.Is(err, workerErr) {
		t.Errorf("expected worker error in result, got %v", err)
	}
	if !errors.Is(err, checkErr) {
		t.Errorf("expected eligibility error in result, got %v", err)
	}

	// неприменимый и недоступный шарды пропущены, остальные обработаны
	want := []string{"s1", "s3", "s5"}
	if diff := cmp.Diff(want, worker.calls()); diff != "" {
		t.Errorf("worker runs mismatch (-want +got):\n%s", diff)
	}
}

func TestRunner_RunOnceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	worker := &fakeWorker{cancel: cancel}
	runner, err := New(Config{
		Worker: worker,
		Shards: []Shard{
			&fakeShard{name: "s1", applicable: true},
			&fakeShard{name: "s2", applicable: true},
		},
		Logger: discard(),
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := runner.RunOnce(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if diff := cmp.Diff([]string{"s1"}, worker.calls()); diff != "" {
		t.Errorf("worker runs mismatch (-want +got):\n%s", diff)
	}
}

func TestRunner_StartRunsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	worker := &fakeWorker{cancel: cancel}
	runner, err := New(Config{
		Schedule: "@every 1h",
		Worker:   worker,
		Shards:   []Shard{&fakeShard{name: "s1", applicable: true}},
		Logger:   discard(),
	})
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		runner.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop after cancellation")
	}
	if got := len(worker.calls()); got != 1 {
		t.Errorf("expected one immediate cycle, got %d", got)
	}
}
