package dedup

import (
	"context"
	"testing"
	"time"

	"MarketSettle/internal/event"
)

type fakeChecker struct {
	seen      map[string]bool
	seenErr   error
	recorded  []string
	seenCalls int
}

func (f *fakeChecker) Seen(ctx context.Context, eventID string) (bool, error) {
	f.seenCalls++
	if f.seenErr != nil {
		return false, f.seenErr
	}
	return f.seen[eventID], nil
}

func (f *fakeChecker) Record(ctx context.Context, eventID, kind string) error {
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	f.seen[eventID] = true
	f.recorded = append(f.recorded, eventID)
	return nil
}

func testEvent(id string) event.Event {
	return &event.CheckoutCompleted{ID: id, CheckoutRef: "co_1", Occurred: time.Now()}
}

func TestGuardFreshEvent(t *testing.T) {
	checker := &fakeChecker{}
	g := NewGuard(10, checker, nil)

	if !g.ShouldProcess(context.Background(), testEvent("evt_1")) {
		t.Fatal("fresh event should be processed")
	}
}

func TestGuardLRUTier(t *testing.T) {
	checker := &fakeChecker{}
	g := NewGuard(10, checker, nil)
	evt := testEvent("evt_1")

	g.MarkProcessed(context.Background(), evt)

	if g.ShouldProcess(context.Background(), evt) {
		t.Fatal("marked event should be deduplicated")
	}
	if checker.seenCalls != 0 {
		t.Fatalf("LRU hit should not touch the DB tier, got %d calls", checker.seenCalls)
	}
}

func TestGuardPostgresTier(t *testing.T) {
	// Simulates a restart: LRU is cold but the DB remembers.
	checker := &fakeChecker{seen: map[string]bool{"evt_1": true}}
	g := NewGuard(10, checker, nil)
	evt := testEvent("evt_1")

	if g.ShouldProcess(context.Background(), evt) {
		t.Fatal("event recorded in the DB should be deduplicated")
	}
	if checker.seenCalls != 1 {
		t.Fatalf("expected 1 DB lookup, got %d", checker.seenCalls)
	}

	// The miss should have warmed the LRU.
	if g.ShouldProcess(context.Background(), evt) {
		t.Fatal("second delivery should be deduplicated")
	}
	if checker.seenCalls != 1 {
		t.Fatalf("second delivery should hit the LRU, got %d DB lookups", checker.seenCalls)
	}
}

func TestGuardDBErrorIsConservative(t *testing.T) {
	checker := &fakeChecker{seenErr: context.DeadlineExceeded}
	g := NewGuard(10, checker, nil)

	if !g.ShouldProcess(context.Background(), testEvent("evt_1")) {
		t.Fatal("a guard lookup failure must not drop the event")
	}
}

func TestKeyLRUEviction(t *testing.T) {
	lru := newKeyLRU(2)
	lru.Add("a")
	lru.Add("b")
	lru.Add("c")

	if lru.Size() != 2 {
		t.Fatalf("expected size 2, got %d", lru.Size())
	}
	if lru.Contains("a") {
		t.Fatal("oldest key should have been evicted")
	}
	if !lru.Contains("b") || !lru.Contains("c") {
		t.Fatal("recent keys should survive eviction")
	}
}

func TestKeyLRUTouchOnContains(t *testing.T) {
	lru := newKeyLRU(2)
	lru.Add("a")
	lru.Add("b")
	lru.Contains("a") // refresh
	lru.Add("c")

	if !lru.Contains("a") {
		t.Fatal("touched key should not be evicted")
	}
	if lru.Contains("b") {
		t.Fatal("stale key should be evicted")
	}
}
