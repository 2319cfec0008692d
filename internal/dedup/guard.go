package dedup

import (
	"container/list"
	"context"
	"sync"

	"MarketSettle/internal/event"
	"MarketSettle/internal/observability"
)

// Guard implements two-tier deduplication on provider event ids.
// It is an optimization to skip redundant work on redelivery; the
// authoritative idempotency boundary is the conditional order-status
// update inside the settlement transaction.
type Guard struct {
	// Tier 1: in-memory LRU
	lru *keyLRU

	// Tier 2: Postgres (injected via interface)
	dbChecker DBChecker

	metrics *observability.Metrics
}

// DBChecker is the interface for the durable dedup lookup.
type DBChecker interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, eventID, kind string) error
}

func NewGuard(capacity int, dbChecker DBChecker, metrics *observability.Metrics) *Guard {
	return &Guard{
		lru:       newKeyLRU(capacity),
		dbChecker: dbChecker,
		metrics:   metrics,
	}
}

// ShouldProcess reports whether this event id still needs processing.
func (g *Guard) ShouldProcess(ctx context.Context, evt event.Event) bool {
	kind := evt.EventKind().String()
	key := evt.EventID()

	// Tier 1: LRU check (hot path)
	if g.lru.Contains(key) {
		if g.metrics != nil {
			g.metrics.Duplicates.WithLabelValues(kind, "lru").Inc()
		}
		return false
	}

	// Tier 2: Postgres check (cold path)
	if g.dbChecker != nil {
		seen, err := g.dbChecker.Seen(ctx, key)
		if err != nil {
			// Conservative: assume not duplicate so a DB blip cannot drop
			// an event. The settlement fence still makes reprocessing safe.
			if g.metrics != nil {
				g.metrics.GuardErrors.Inc()
			}
			return true
		}

		if seen {
			if g.metrics != nil {
				g.metrics.Duplicates.WithLabelValues(kind, "postgres").Inc()
			}
			// Cache so the next redelivery skips the DB
			g.lru.Add(key)
			return false
		}
	}

	return true
}

// MarkProcessed records the event id after all effects committed.
func (g *Guard) MarkProcessed(ctx context.Context, evt event.Event) {
	g.lru.Add(evt.EventID())
	if g.dbChecker != nil {
		// Failure here only means one extra fence round-trip on redelivery.
		_ = g.dbChecker.Record(ctx, evt.EventID(), evt.EventKind().String())
	}
}

// --- LRU ---

// keyLRU is a mutex-guarded LRU set of event ids. Webhook deliveries are
// handled concurrently, so unlike a single-threaded event loop this cache
// must lock.
type keyLRU struct {
	mu       sync.Mutex
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List
}

type lruEntry struct {
	key string
}

func newKeyLRU(capacity int) *keyLRU {
	return &keyLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		lruList:  list.New(),
	}
}

func (lru *keyLRU) Contains(key string) bool {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	elem, exists := lru.cache[key]
	if exists {
		lru.lruList.MoveToFront(elem)
		return true
	}
	return false
}

func (lru *keyLRU) Add(key string) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	if elem, exists := lru.cache[key]; exists {
		lru.lruList.MoveToFront(elem)
		return
	}

	entry := &lruEntry{key: key}
	elem := lru.lruList.PushFront(entry)
	lru.cache[key] = elem

	if lru.lruList.Len() > lru.capacity {
		lru.evictOldest()
	}
}

func (lru *keyLRU) evictOldest() {
	elem := lru.lruList.Back()
	if elem != nil {
		lru.lruList.Remove(elem)
		entry := elem.Value.(*lruEntry)
		delete(lru.cache, entry.key)
	}
}

func (lru *keyLRU) Size() int {
	lru.mu.Lock()
	defer lru.mu.Unlock()
	return lru.lruList.Len()
}
