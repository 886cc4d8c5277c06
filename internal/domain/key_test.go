package domain

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
)

func TestKey_Compare(t *testing.T) {
	a := EventKey(1, 1, "E1", 1)
	b := EventKey(1, 1, "E1", 2)
	c := NewKey(1, 1, nil, 1)

	if a.Compare(b) >= 0 {
		t.Errorf("compare(%s, %s) should be < 0", a, b)
	}
	if b.Compare(a) <= 0 {
		t.Errorf("compare(%s, %s) should be > 0", b, a)
	}
	if c.Compare(a) >= 0 {
		t.Errorf("null event id should sort first: compare(%s, %s)", c, a)
	}
	if a.Compare(EventKey(1, 1, "E1", 1)) != 0 {
		t.Error("equal keys should compare as 0")
	}
}

func TestKey_Ordering(t *testing.T) {
	keys := []Key{
		EventKey(2, 1, "A", 1),
		EventKey(1, 2, "A", 1),
		EventKey(1, 1, "E2", 1),
		EventKey(1, 1, "E1", 2),
		NewKey(1, 1, nil, 5),
		EventKey(1, 1, "E1", 1),
	}
	slices.SortFunc(keys, Key.Compare)

	want := []string{
		"1/1/-/5",
		"1/1/E1/1",
		"1/1/E1/2",
		"1/1/E2/1",
		"1/2/A/1",
		"2/1/A/1",
	}
	for i, k := range keys {
		if k.String() != want[i] {
			t.Errorf("keys[%d] = %s, want %s", i, k, want[i])
		}
	}
}

func TestKey_MapKey(t *testing.T) {
	index := map[Key]int{}
	index[EventKey(1, 1, "E1", 1)] = 1
	index[EventKey(1, 1, "E1", 1)] = 2
	index[NewKey(1, 1, nil, 1)] = 3

	if len(index) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(index))
	}
	if !EventKey(1, 1, "E1", 1).Equal(EventKey(1, 1, "E1", 1)) {
		t.Error("Equal should be consistent with Compare")
	}
	// пустой event id и отсутствующий — разные ключи
	if NewKey(1, 1, nil, 1).Equal(EventKey(1, 1, "", 1)) {
		t.Error("empty event id should differ from null event id")
	}
}

func TestKeyOf(t *testing.T) {
	tr := &Trigger{Ref: AccountRef{TenantID: 3, AccountID: 4}}
	tr.SetAlarmID(9)

	if got := KeyOf(tr).String(); got != "3/4/-/9" {
		t.Errorf("KeyOf() = %s, want 3/4/-/9", got)
	}

	tr.SetEventID("E7")
	k := KeyOf(tr)
	if !k.BelongsTo(3, 4, "E7") {
		t.Errorf("key %s should belong to event E7", k)
	}
	if k.BelongsTo(3, 4, "E8") {
		t.Errorf("key %s should not belong to event E8", k)
	}
}

func TestLockedTrigger_UnlockOnce(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	lock := LockFunc(func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return errors.New("store unavailable")
	})

	lt := NewLockedTrigger(&Trigger{}, lock, nil)
	if lt.Unlocked() {
		t.Fatal("new locked trigger should not be unlocked")
	}

	var wg sync.WaitGroup
	released := make(chan bool, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			released <- lt.Unlock(context.Background())
		}()
	}
	wg.Wait()
	close(released)

	performed := 0
	for r := range released {
		if r {
			performed++
		}
	}
	if performed != 1 {
		t.Errorf("expected exactly one releasing call, got %d", performed)
	}
	if calls != 1 {
		t.Errorf("expected lock released once, got %d", calls)
	}
	if !lt.Unlocked() {
		t.Error("trigger should be unlocked")
	}
}

func TestNewUnlocked(t *testing.T) {
	lt := NewUnlocked(&Trigger{})
	if !lt.Unlock(context.Background()) {
		t.Error("first Unlock on dry-run trigger should report release")
	}
}
