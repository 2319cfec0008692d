package settle

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"MarketSettle/internal/inventory"
	"MarketSettle/internal/loyalty"
	"MarketSettle/internal/orders"
	"MarketSettle/internal/testutil"
)

type seededOrder struct {
	order  *orders.Order
	itemID uuid.UUID
}

// seedOrder inserts a pending order with one standard line item and a catalog
// row holding `stock` units.
func seedOrder(t *testing.T, db *sql.DB, totalCents, shippingCents int64, qty, stock int) seededOrder {
	t.Helper()
	ctx := context.Background()

	ord := &orders.Order{
		ID:            uuid.New(),
		BuyerID:       uuid.New(),
		SellerID:      uuid.New(),
		SubtotalCents: totalCents - shippingCents,
		ShippingCents: shippingCents,
		TotalCents:    totalCents,
		Status:        orders.StatusPending,
		CheckoutRef:   "co_" + uuid.NewString(),
	}

	itemID := uuid.New()
	_, err := db.ExecContext(ctx,
		`INSERT INTO catalog_items (id, seller_id, available_quantity) VALUES ($1, $2, $3)`,
		itemID, ord.SellerID, stock)
	if err != nil {
		t.Fatalf("seed catalog item: %v", err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO orders (id, buyer_id, seller_id, subtotal_cents, shipping_cents, total_cents, status, checkout_ref)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ord.ID, ord.BuyerID, ord.SellerID, ord.SubtotalCents, ord.ShippingCents, ord.TotalCents, ord.Status, ord.CheckoutRef)
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}

	li := orders.LineItem{
		ID:             uuid.New(),
		CatalogItemID:  itemID,
		Quantity:       qty,
		UnitPriceCents: (totalCents - shippingCents) / int64(qty),
		ListingType:    orders.ListingStandard,
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO order_line_items (id, order_id, catalog_item_id, quantity, unit_price_cents, listing_type)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		li.ID, ord.ID, li.CatalogItemID, li.Quantity, li.UnitPriceCents, li.ListingType)
	if err != nil {
		t.Fatalf("seed line item: %v", err)
	}
	ord.LineItems = []orders.LineItem{li}

	return seededOrder{order: ord, itemID: itemID}
}

// seedOrderForItem inserts a pending order whose single line item points at an
// already-seeded catalog item, so tests can race purchases over shared stock.
func seedOrderForItem(t *testing.T, db *sql.DB, itemID uuid.UUID, totalCents int64, qty int) *orders.Order {
	t.Helper()
	ctx := context.Background()

	var sellerID uuid.UUID
	if err := db.QueryRowContext(ctx,
		`SELECT seller_id FROM catalog_items WHERE id = $1`, itemID).Scan(&sellerID); err != nil {
		t.Fatalf("look up item seller: %v", err)
	}

	ord := &orders.Order{
		ID:            uuid.New(),
		BuyerID:       uuid.New(),
		SellerID:      sellerID,
		SubtotalCents: totalCents,
		TotalCents:    totalCents,
		Status:        orders.StatusPending,
		CheckoutRef:   "co_" + uuid.NewString(),
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO orders (id, buyer_id, seller_id, subtotal_cents, shipping_cents, total_cents, status, checkout_ref)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ord.ID, ord.BuyerID, ord.SellerID, ord.SubtotalCents, ord.ShippingCents, ord.TotalCents, ord.Status, ord.CheckoutRef)
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}

	li := orders.LineItem{
		ID:             uuid.New(),
		CatalogItemID:  itemID,
		Quantity:       qty,
		UnitPriceCents: totalCents / int64(qty),
		ListingType:    orders.ListingStandard,
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO order_line_items (id, order_id, catalog_item_id, quantity, unit_price_cents, listing_type)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		li.ID, ord.ID, li.CatalogItemID, li.Quantity, li.UnitPriceCents, li.ListingType)
	if err != nil {
		t.Fatalf("seed line item: %v", err)
	}
	ord.LineItems = []orders.LineItem{li}

	return ord
}

func newTestEngine(db *sql.DB) *Engine {
	return NewEngine(db, DefaultFeePolicy(), zerolog.Nop(), nil)
}

func TestSettleAppliesFullEffect(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	seeded := seedOrder(t, db, 10000, 700, 2, 10)
	engine := newTestEngine(db)

	res, err := engine.Settle(ctx, seeded.order, "pay_1", time.Now().UTC())
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	if res.PlatformFeeCents != 500 || res.SellerCreditCents != 9500 {
		t.Fatalf("fee split wrong: fee=%d credit=%d", res.PlatformFeeCents, res.SellerCreditCents)
	}
	if res.PointsAwarded != 50 {
		t.Fatalf("points = %d, want 50", res.PointsAwarded)
	}

	ord, err := orders.NewStore(db).Get(ctx, seeded.order.ID)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if ord.Status != orders.StatusPaid {
		t.Fatalf("status = %s, want paid", ord.Status)
	}
	if ord.PaymentRef != "pay_1" {
		t.Fatalf("payment ref = %q", ord.PaymentRef)
	}

	remaining, _, err := inventory.Available(ctx, db, seeded.itemID)
	if err != nil {
		t.Fatalf("inventory: %v", err)
	}
	if remaining != 8 {
		t.Fatalf("remaining stock = %d, want 8", remaining)
	}

	points, err := loyalty.Balance(ctx, db, seeded.order.BuyerID)
	if err != nil {
		t.Fatalf("points: %v", err)
	}
	if points != 50 {
		t.Fatalf("buyer points = %d, want 50", points)
	}

	var pending int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM settlement_outbox WHERE order_id = $1 AND status = 'pending'`,
		seeded.order.ID).Scan(&pending); err != nil {
		t.Fatalf("outbox count: %v", err)
	}
	if pending != 2 { // shipping payout + badge check
		t.Fatalf("outbox records = %d, want 2", pending)
	}
}

func TestSettleRedeliveryIsNoop(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	seeded := seedOrder(t, db, 10000, 0, 1, 10)
	engine := newTestEngine(db)

	if _, err := engine.Settle(ctx, seeded.order, "pay_1", time.Now().UTC()); err != nil {
		t.Fatalf("first settle: %v", err)
	}
	_, err := engine.Settle(ctx, seeded.order, "pay_1", time.Now().UTC())
	if !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("second settle should hit the fence, got %v", err)
	}

	// The no-op must not double any effect.
	var balance int64
	if err := db.QueryRowContext(ctx,
		`SELECT balance_cents FROM seller_balances WHERE seller_id = $1`,
		seeded.order.SellerID).Scan(&balance); err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 9500 {
		t.Fatalf("seller balance = %d, want 9500", balance)
	}
	points, _ := loyalty.Balance(ctx, db, seeded.order.BuyerID)
	if points != 50 {
		t.Fatalf("buyer points = %d, want 50", points)
	}
}

func TestSettleConcurrentDeliveriesExactlyOneWins(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	seeded := seedOrder(t, db, 10000, 0, 1, 10)
	engine := newTestEngine(db)

	const deliveries = 8
	var wg sync.WaitGroup
	results := make([]error, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = engine.Settle(ctx, seeded.order, "pay_1", time.Now().UTC())
		}(i)
	}
	wg.Wait()

	var wins, noops int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrAlreadySettled):
			noops++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || noops != deliveries-1 {
		t.Fatalf("wins=%d noops=%d, want exactly one winner", wins, noops)
	}

	var txCount int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM balance_transactions WHERE order_id = $1`,
		seeded.order.ID).Scan(&txCount); err != nil {
		t.Fatalf("tx count: %v", err)
	}
	if txCount != 1 {
		t.Fatalf("ledger entries = %d, want 1", txCount)
	}
}

func TestSettleOversellClampsAndFlags(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	// Buy 3 with only 2 in stock.
	seeded := seedOrder(t, db, 6000, 0, 3, 2)
	engine := newTestEngine(db)

	res, err := engine.Settle(ctx, seeded.order, "pay_1", time.Now().UTC())
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if len(res.ClampedItems) != 1 {
		t.Fatalf("clamped items = %d, want 1", len(res.ClampedItems))
	}

	remaining, flagged, err := inventory.Available(ctx, db, seeded.itemID)
	if err != nil {
		t.Fatalf("inventory: %v", err)
	}
	if remaining != 0 || !flagged {
		t.Fatalf("remaining=%d flagged=%v, want clamped to zero and flagged", remaining, flagged)
	}

	ord, err := orders.NewStore(db).Get(ctx, seeded.order.ID)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if ord.Status != orders.StatusPaid {
		t.Fatal("clamp must not block settlement")
	}
	if ord.ReviewReason == "" {
		t.Fatal("clamped order should carry a review reason")
	}
}

func TestSettleConcurrentOversellStillFlags(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	// Two distinct orders race over the same 3 units; each buys 2, so
	// whichever commits second must clamp and flag the item.
	first := seedOrder(t, db, 4000, 0, 2, 3)
	second := seedOrderForItem(t, db, first.itemID, 4000, 2)
	engine := newTestEngine(db)

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	errs := make([]error, 2)
	for i, ord := range []*orders.Order{first.order, second} {
		wg.Add(1)
		go func(i int, ord *orders.Order) {
			defer wg.Done()
			results[i], errs[i] = engine.Settle(ctx, ord, "pay_"+ord.ID.String(), time.Now().UTC())
		}(i, ord)
	}
	wg.Wait()

	var clamped int
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("settle order %d: %v", i, errs[i])
		}
		clamped += len(results[i].ClampedItems)
	}
	if clamped != 1 {
		t.Fatalf("clamped line items = %d, want exactly 1", clamped)
	}

	remaining, flagged, err := inventory.Available(ctx, db, first.itemID)
	if err != nil {
		t.Fatalf("inventory: %v", err)
	}
	if remaining != 0 || !flagged {
		t.Fatalf("remaining=%d flagged=%v, want zero stock and a review flag", remaining, flagged)
	}

	var reviews int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE id IN ($1, $2) AND review_reason IS NOT NULL`,
		first.order.ID, second.ID).Scan(&reviews); err != nil {
		t.Fatalf("review count: %v", err)
	}
	if reviews != 1 {
		t.Fatalf("orders under review = %d, want exactly 1", reviews)
	}
}

func TestSettleBadDataRollsBackEverything(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	seeded := seedOrder(t, db, 10000, 0, 1, 10)
	// Strip the line items so validation fails after the fence.
	if _, err := db.ExecContext(ctx, `DELETE FROM order_line_items WHERE order_id = $1`, seeded.order.ID); err != nil {
		t.Fatalf("strip line items: %v", err)
	}
	seeded.order.LineItems = nil

	engine := newTestEngine(db)
	_, err := engine.Settle(ctx, seeded.order, "pay_1", time.Now().UTC())
	var pde *PermanentDataError
	if !errors.As(err, &pde) {
		t.Fatalf("expected PermanentDataError, got %v", err)
	}

	// The rollback must leave the order pending and all effects unapplied.
	ord, err := orders.NewStore(db).Get(ctx, seeded.order.ID)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if ord.Status != orders.StatusPending {
		t.Fatalf("status = %s, want pending after rollback", ord.Status)
	}
	var balances int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM balance_transactions WHERE order_id = $1`,
		seeded.order.ID).Scan(&balances); err != nil {
		t.Fatalf("tx count: %v", err)
	}
	if balances != 0 {
		t.Fatalf("ledger entries = %d, want 0 after rollback", balances)
	}
}
