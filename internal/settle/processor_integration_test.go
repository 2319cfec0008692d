package settle

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"MarketSettle/internal/dedup"
	"MarketSettle/internal/event"
	"MarketSettle/internal/orders"
	"MarketSettle/internal/resolve"
	"MarketSettle/internal/subscription"
	"MarketSettle/internal/testutil"
)

func newTestProcessor(db *sql.DB) *Processor {
	orderStore := orders.NewStore(db)
	return NewProcessor(
		dedup.NewGuard(128, dedup.NewPostgresChecker(db), nil),
		resolve.NewResolver(orderStore),
		newTestEngine(db),
		subscription.NewLifecycle(db, zerolog.Nop(), nil),
		orderStore,
		zerolog.Nop(),
		nil,
	)
}

func TestProcessRedeliveredEventOnce(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	seeded := seedOrder(t, db, 10000, 0, 1, 10)
	proc := newTestProcessor(db)

	evt := &event.CheckoutCompleted{
		ID:          "evt_redelivered",
		CheckoutRef: seeded.order.CheckoutRef,
		PaymentRef:  "pay_1",
		Occurred:    time.Now(),
	}

	for i := 0; i < 3; i++ {
		if err := proc.Process(ctx, evt); err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
	}

	var txCount int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM balance_transactions WHERE order_id = $1`,
		seeded.order.ID).Scan(&txCount); err != nil {
		t.Fatalf("count: %v", err)
	}
	if txCount != 1 {
		t.Fatalf("ledger entries = %d, want 1 after redeliveries", txCount)
	}

	var seen bool
	if err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = 'evt_redelivered')`).Scan(&seen); err != nil {
		t.Fatalf("processed lookup: %v", err)
	}
	if !seen {
		t.Fatal("event id should be recorded after successful processing")
	}
}

func TestProcessBothEventShapesSettleOnce(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	seeded := seedOrder(t, db, 10000, 0, 1, 10)
	proc := newTestProcessor(db)

	// The same purchase confirmed through two different event kinds with
	// distinct event ids: the fence, not the guard, must stop the second.
	checkout := &event.CheckoutCompleted{
		ID: "evt_co", CheckoutRef: seeded.order.CheckoutRef, PaymentRef: "pay_1", Occurred: time.Now(),
	}
	capture := &event.PaymentCaptured{
		ID: "evt_cap", PaymentRef: "pay_1", CheckoutRef: seeded.order.CheckoutRef, Occurred: time.Now(),
	}

	if err := proc.Process(ctx, checkout); err != nil {
		t.Fatalf("checkout event: %v", err)
	}
	if err := proc.Process(ctx, capture); err != nil {
		t.Fatalf("capture event: %v", err)
	}

	var txCount int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM balance_transactions WHERE order_id = $1`,
		seeded.order.ID).Scan(&txCount); err != nil {
		t.Fatalf("count: %v", err)
	}
	if txCount != 1 {
		t.Fatalf("ledger entries = %d, want 1 across both event shapes", txCount)
	}
}

func TestProcessUnknownReferenceIsAcknowledged(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	proc := newTestProcessor(db)
	err := proc.Process(context.Background(), &event.CheckoutCompleted{
		ID:          "evt_orphan",
		CheckoutRef: "co_never_created",
		Occurred:    time.Now(),
	})
	if err != nil {
		t.Fatalf("orphan event should be acknowledged, got %v", err)
	}
}

func TestProcessUnrecognizedKindIsAcknowledged(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	proc := newTestProcessor(db)
	err := proc.Process(context.Background(), &event.Unrecognized{
		ID:       "evt_future",
		RawKind:  "dispute.opened",
		Occurred: time.Now(),
	})
	if err != nil {
		t.Fatalf("unrecognized kind should be acknowledged, got %v", err)
	}
}
