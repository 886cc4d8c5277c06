package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shaiso/Alarmd/internal/domain"
)

func newTestWorker(f *fixture) *Worker {
	return NewWorker(WorkerConfig{
		Scheduler:   f.sched,
		Registry:    mustRegistry(f.mail),
		LookAhead:   35 * time.Minute,
		OverdueWait: 10 * time.Minute,
		Now:         fixedNow,
	})
}

func TestWorker_EmptyProbe(t *testing.T) {
	f := newFixture()
	w := newTestWorker(f)

	res, err := w.Run(context.Background(), "main", f.store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.store.lockCalls != 0 {
		t.Error("empty probe should skip the lock pass")
	}
	if res.Last != StateIdle || res.Probed != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestWorker_ScheduleLocked(t *testing.T) {
	f := newFixture()
	w := newTestWorker(f)

	due := []*domain.Trigger{
		newTrigger(1, 1, "E1", 1, domain.ActionEmail, testNow.Add(5*time.Minute)),
		newTrigger(1, 1, "E1", 2, domain.ActionDisplay, testNow.Add(5*time.Minute)),
		newTrigger(1, 1, "E2", 1, domain.ActionEmail, testNow.Add(-time.Minute)),
	}
	f.store.due = due
	f.store.lockDue = due

	res, err := w.Run(context.Background(), "main", f.store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Locked != 3 || res.Scheduled != 2 || res.Failed != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
	if f.sched.Len() != 2 {
		t.Errorf("expected 2 scheduled tasks, got %d", f.sched.Len())
	}

	// триггер без диспетчера разблокирован, остальные удерживаются
	if f.store.releasedCount(domain.EventKey(1, 1, "E1", 2)) != 1 {
		t.Error("trigger without dispatcher should be unlocked")
	}
	if f.store.releasedCount(domain.EventKey(1, 1, "E1", 1)) != 0 {
		t.Error("scheduled trigger should stay locked")
	}
}

func TestWorker_LockedSubsetIsAuthoritative(t *testing.T) {
	f := newFixture()
	w := newTestWorker(f)

	a := newTrigger(1, 1, "E1", 1, domain.ActionEmail, testNow)
	b := newTrigger(1, 1, "E1", 2, domain.ActionEmail, testNow)
	f.store.due = []*domain.Trigger{a, b}
	// b захватил другой узел между probe и lock
	f.store.lockDue = []*domain.Trigger{a}

	res, err := w.Run(context.Background(), "main", f.store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Probed != 2 || res.Scheduled != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
	if f.sched.Len() != 1 {
		t.Errorf("only the locked trigger should be scheduled, got %d", f.sched.Len())
	}
}

func TestWorker_StoreErrors(t *testing.T) {
	tests := []struct {
		name     string
		probeErr error
		lockErr  error
	}{
		{"probe", errors.New("read replica down"), nil},
		{"lock", nil, errors.New("write pool exhausted")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			w := newTestWorker(f)
			f.store.due = []*domain.Trigger{newTrigger(1, 1, "E1", 1, domain.ActionEmail, testNow)}
			f.store.probeErr = tt.probeErr
			f.store.lockErr = tt.lockErr

			res, err := w.Run(context.Background(), "main", f.store)
			if err == nil {
				t.Fatal("expected error")
			}
			if res.Last != StateError {
				t.Errorf("expected ERROR state, got %s", res.Last)
			}
			if f.sched.Len() != 0 {
				t.Error("nothing should be scheduled")
			}
		})
	}
}

func TestWorker_InterruptedUnlocksEverything(t *testing.T) {
	f := newFixture()
	w := newTestWorker(f)

	due := []*domain.Trigger{
		newTrigger(1, 1, "E1", 1, domain.ActionEmail, testNow),
		newTrigger(1, 1, "E1", 2, domain.ActionEmail, testNow),
	}
	f.store.due = due
	f.store.lockDue = due

	ctx, cancel := context.WithCancel(context.Background())
	f.store.onLock = cancel

	_, err := w.Run(ctx, "main", f.store)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if f.sched.Len() != 0 {
		t.Errorf("interrupted run must not schedule, got %d", f.sched.Len())
	}
	for _, tr := range due {
		if n := f.store.releasedCount(domain.KeyOf(tr)); n != 1 {
			t.Errorf("trigger %s released %d times, want 1", domain.KeyOf(tr), n)
		}
	}
}

// Каждый захваченный триггер после Run либо в индексе, либо разблокирован.
func TestWorker_UnlockTotality(t *testing.T) {
	f := newFixture()
	w := newTestWorker(f)

	var due []*domain.Trigger
	for i := 1; i <= 5; i++ {
		action := domain.ActionEmail
		if i%2 == 0 {
			action = domain.ActionAudio
		}
		due = append(due, newTrigger(1, 1, "E1", i, action, testNow.Add(time.Duration(i)*time.Minute)))
	}
	f.store.due = due
	f.store.lockDue = due

	if _, err := w.Run(context.Background(), "main", f.store); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	scheduled := map[domain.Key]bool{}
	for _, info := range f.sched.Snapshot() {
		scheduled[info.Key] = true
	}
	for _, tr := range due {
		key := domain.KeyOf(tr)
		unlocked := f.store.releasedCount(key) == 1
		if scheduled[key] == unlocked {
			t.Errorf("trigger %s: scheduled=%v unlocked=%v, want exactly one", key, scheduled[key], unlocked)
		}
	}
}

func TestWorker_PassBounds(t *testing.T) {
	f := newFixture()
	w := newTestWorker(f)
	due := []*domain.Trigger{newTrigger(1, 1, "E1", 1, domain.ActionEmail, testNow)}
	f.store.due = due
	f.store.lockDue = due

	if _, err := w.Run(context.Background(), "main", f.store); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantUntil := testNow.Add(35 * time.Minute)
	wantOverdue := testNow.Add(-10 * time.Minute)
	if !f.store.probeUntil.Equal(wantUntil) || !f.store.lockUntil.Equal(wantUntil) {
		t.Errorf("until: probe %v, lock %v; want %v", f.store.probeUntil, f.store.lockUntil, wantUntil)
	}
	if !f.store.probeOverdue.Equal(wantOverdue) || !f.store.lockOverdue.Equal(wantOverdue) {
		t.Errorf("overdue bound: probe %v, lock %v; want %v", f.store.probeOverdue, f.store.lockOverdue, wantOverdue)
	}
}

func TestWorker_OverdueThreshold(t *testing.T) {
	tests := []struct {
		name      string
		claimedAt time.Duration
		wantLock  bool
	}{
		{"claim still held", -9 * time.Minute, false},
		{"claim at threshold", -10 * time.Minute, false},
		{"claim abandoned", -10*time.Minute - time.Millisecond, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			w := newTestWorker(f)

			tr := newTrigger(1, 1, "E1", 1, domain.ActionEmail, testNow.Add(-time.Minute))
			processed := testNow.Add(tt.claimedAt)
			tr.SetProcessed(&processed)
			f.store.due = []*domain.Trigger{tr}
			f.store.lockDue = []*domain.Trigger{tr}

			res, err := w.Run(context.Background(), "main", f.store)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := f.store.lockCalls == 1; got != tt.wantLock {
				t.Errorf("lock pass = %v, want %v", got, tt.wantLock)
			}
			if tt.wantLock && res.Scheduled != 1 {
				t.Errorf("abandoned trigger should be rescheduled: %+v", res)
			}
		})
	}
}

func TestWorker_BeyondWindowSkipsLock(t *testing.T) {
	f := newFixture()
	w := newTestWorker(f)
	f.store.due = []*domain.Trigger{newTrigger(1, 1, "E1", 1, domain.ActionEmail, testNow.Add(35*time.Minute))}

	res, err := w.Run(context.Background(), "main", f.store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.store.lockCalls != 0 || res.Last != StateIdle {
		t.Errorf("trigger at the window end should not start a lock pass: %+v", res)
	}
}
