package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Alarmd/internal/domain"
	"github.com/shaiso/Alarmd/internal/notify"
	"github.com/shaiso/Alarmd/internal/repo"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func newTrigger(tenant, account int, eventID string, alarm int, action domain.Action, at time.Time) *domain.Trigger {
	t := &domain.Trigger{Ref: domain.AccountRef{TenantID: tenant, AccountID: account}}
	t.SetEventID(eventID)
	t.SetAlarmID(alarm)
	t.SetAction(action)
	t.SetTime(at)
	t.SetUserID(100 + alarm)
	return t
}

// --- Store ---

type fakeStore struct {
	mu sync.Mutex

	due     []*domain.Trigger
	lockDue []*domain.Trigger
	events  map[string][]*domain.Trigger

	probeErr    error
	lockErr     error
	verifyErr   error
	completeErr error
	dropErr     error
	beginErr    error

	// onLock вызывается после захвата в LockDue
	onLock func()

	stale     map[domain.Key]bool
	released  map[domain.Key]int
	completed []domain.Key
	dropped   map[domain.AccountRef][]*domain.Trigger
	lockCalls int

	// границы последних ProbeDue и LockDue
	probeUntil, probeOverdue time.Time
	lockUntil, lockOverdue   time.Time

	tx *fakeTx
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:   map[string][]*domain.Trigger{},
		stale:    map[domain.Key]bool{},
		released: map[domain.Key]int{},
		dropped:  map[domain.AccountRef][]*domain.Trigger{},
	}
}

// lock оборачивает триггер в LockedTrigger, считающий освобождения.
func (s *fakeStore) lock(t *domain.Trigger) *domain.LockedTrigger {
	claim := uuid.New()
	t.SetClaim(&claim)
	key := domain.KeyOf(t)
	return domain.NewLockedTrigger(t, domain.LockFunc(func(context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.released[key]++
		return nil
	}), nil)
}

func (s *fakeStore) releasedCount(key domain.Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released[key]
}

func (s *fakeStore) ProbeDue(_ context.Context, until, overdueBefore time.Time, _ []domain.Action) ([]*domain.Trigger, error) {
	s.probeUntil, s.probeOverdue = until, overdueBefore
	return s.due, s.probeErr
}

func (s *fakeStore) LockDue(_ context.Context, until, overdueBefore time.Time, _ []domain.Action) ([]*domain.LockedTrigger, error) {
	s.lockCalls++
	s.lockUntil, s.lockOverdue = until, overdueBefore
	if s.lockErr != nil {
		return nil, s.lockErr
	}
	var locked []*domain.LockedTrigger
	for _, t := range s.lockDue {
		locked = append(locked, s.lock(t))
	}
	if s.onLock != nil {
		s.onLock()
	}
	return locked, nil
}

func (s *fakeStore) ProbeEvent(_ context.Context, _ domain.AccountRef, eventID string, _ []domain.Action) ([]*domain.Trigger, error) {
	if s.probeErr != nil {
		return nil, s.probeErr
	}
	var out []*domain.Trigger
	for _, t := range s.events[eventID] {
		out = append(out, t.Clone())
	}
	return out, nil
}

func (s *fakeStore) Begin(context.Context) (repo.LockTx, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	if s.tx == nil {
		s.tx = &fakeTx{}
	}
	s.tx.store = s
	return s.tx, nil
}

func (s *fakeStore) DropProcessingStatus(_ context.Context, triggers map[domain.AccountRef][]*domain.Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ref, list := range triggers {
		s.dropped[ref] = append(s.dropped[ref], list...)
	}
	return s.dropErr
}

func (s *fakeStore) Complete(_ context.Context, lt *domain.LockedTrigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, lt.Key())
	return s.completeErr
}

func (s *fakeStore) Verify(_ context.Context, lt *domain.LockedTrigger) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.verifyErr != nil {
		return false, s.verifyErr
	}
	return !s.stale[lt.Key()], nil
}

type fakeTx struct {
	store      *fakeStore
	lockErr    map[string]error
	commitErr  error
	committed  bool
	rolledBack bool
	untils     []time.Time

	// events, если задан, заменяет триггеры хранилища для фазы захвата
	events map[string][]*domain.Trigger
}

func (tx *fakeTx) LockEvent(_ context.Context, _ domain.AccountRef, eventID string, until time.Time, _ []domain.Action) ([]*domain.LockedTrigger, []*domain.Trigger, error) {
	tx.untils = append(tx.untils, until)
	if err := tx.lockErr[eventID]; err != nil {
		return nil, nil, err
	}
	triggers := tx.store.events[eventID]
	if tx.events != nil {
		triggers = tx.events[eventID]
	}

	var (
		locked []*domain.LockedTrigger
		beyond []*domain.Trigger
	)
	for _, t := range triggers {
		if t.Time().Before(until) {
			locked = append(locked, tx.store.lock(t.Clone()))
		} else {
			beyond = append(beyond, t.Clone())
		}
	}
	return locked, beyond, nil
}

func (tx *fakeTx) Commit(context.Context) error {
	if tx.commitErr != nil {
		return tx.commitErr
	}
	tx.committed = true
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	if !tx.committed {
		tx.rolledBack = true
	}
	return nil
}

func resolverFor(s *fakeStore) StoreResolver {
	return ResolverFunc(func(int) (Store, error) { return s, nil })
}

// --- Timer ---

type fakeTimer struct {
	mu      sync.Mutex
	handles []*fakeHandle
	err     error
}

type fakeHandle struct {
	mu      sync.Mutex
	fn      func()
	delay   time.Duration
	stopped bool
	fired   bool
}

func (t *fakeTimer) Schedule(fn func(), delay time.Duration) (Handle, error) {
	if t.err != nil {
		return nil, t.err
	}
	h := &fakeHandle{fn: fn, delay: delay}
	t.mu.Lock()
	t.handles = append(t.handles, h)
	t.mu.Unlock()
	return h, nil
}

func (t *fakeTimer) last() *fakeHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handles[len(t.handles)-1]
}

func (h *fakeHandle) Stop() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fired || h.stopped {
		return false
	}
	h.stopped = true
	return true
}

// Fire синхронно выполняет вызов, если он не был остановлен.
func (h *fakeHandle) Fire() {
	h.mu.Lock()
	if h.fired || h.stopped {
		h.mu.Unlock()
		return
	}
	h.fired = true
	h.mu.Unlock()
	h.fn()
}

// --- Dispatcher ---

type fakeDispatcher struct {
	action domain.Action
	shift  time.Duration
	err    error

	mu        sync.Mutex
	delivered []*notify.Notification
	done      chan struct{}
}

func newFakeDispatcher(action domain.Action) *fakeDispatcher {
	return &fakeDispatcher{action: action, done: make(chan struct{}, 16)}
}

func (d *fakeDispatcher) Action() domain.Action { return d.action }
func (d *fakeDispatcher) Shift() time.Duration  { return d.shift }

func (d *fakeDispatcher) Deliver(_ context.Context, n *notify.Notification) error {
	d.mu.Lock()
	d.delivered = append(d.delivered, n)
	d.mu.Unlock()
	d.done <- struct{}{}
	return d.err
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.delivered)
}

func mustRegistry(dispatchers ...notify.Dispatcher) *notify.Registry {
	reg, err := notify.NewRegistry(dispatchers...)
	if err != nil {
		panic(err)
	}
	return reg
}

type fixture struct {
	store *fakeStore
	timer *fakeTimer
	mail  *fakeDispatcher
	sched *Scheduler
}

func newFixture() *fixture {
	f := &fixture{
		store: newFakeStore(),
		timer: &fakeTimer{},
		mail:  newFakeDispatcher(domain.ActionEmail),
	}
	f.sched = New(Config{
		Registry: mustRegistry(f.mail),
		Stores:   resolverFor(f.store),
		Timer:    f.timer,
		Now:      fixedNow,
	})
	return f
}
