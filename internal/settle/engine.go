package settle

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"MarketSettle/internal/badge"
	"MarketSettle/internal/inventory"
	"MarketSettle/internal/ledger"
	"MarketSettle/internal/loyalty"
	"MarketSettle/internal/observability"
	"MarketSettle/internal/orders"
	"MarketSettle/internal/outbox"
	"MarketSettle/internal/payout"
	"MarketSettle/internal/subscription"
)

// Result reports what one settled order produced.
type Result struct {
	OrderID           uuid.UUID
	PlatformFeeCents  int64
	SellerCreditCents int64
	PointsAwarded     int64
	ResaleBonusPoints int64
	Subscriber        bool
	ClampedItems      []uuid.UUID
}

// Engine applies the full economic effect of a payment to one order: the
// status fence, the fee split, inventory, loyalty points, the seller ledger
// and the deferred side effects, all inside a single Postgres transaction.
// Either everything commits or nothing does.
type Engine struct {
	db      *sql.DB
	policy  FeePolicy
	log     zerolog.Logger
	metrics *observability.Metrics
}

func NewEngine(db *sql.DB, policy FeePolicy, log zerolog.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		db:      db,
		policy:  policy,
		log:     log,
		metrics: metrics,
	}
}

// Settle drives one pending order to paid.
//
// The conditional status update is the idempotency fence: of any number of
// concurrent or repeated deliveries for the same order, exactly one flips
// pending to paid and applies the money. The rest get ErrAlreadySettled.
func (e *Engine) Settle(ctx context.Context, ord *orders.Order, paymentRef string, now time.Time) (*Result, error) {
	start := time.Now()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin settlement tx: %w", err)
	}
	defer tx.Rollback()

	won, err := orders.MarkPaid(ctx, tx, ord.ID, paymentRef, now)
	if err != nil {
		return nil, fmt.Errorf("settlement fence for order %s: %w", ord.ID, err)
	}
	if !won {
		return nil, fmt.Errorf("order %s: %w", ord.ID, ErrAlreadySettled)
	}

	if len(ord.LineItems) == 0 {
		return nil, &PermanentDataError{OrderID: ord.ID, Reason: "no line items"}
	}
	if ord.TotalCents <= 0 {
		return nil, &PermanentDataError{OrderID: ord.ID, Reason: fmt.Sprintf("non-positive total %d", ord.TotalCents)}
	}

	subscriber, err := subscription.HasActiveSubscription(ctx, tx, ord.BuyerID)
	if err != nil {
		return nil, fmt.Errorf("subscriber lookup for buyer %s: %w", ord.BuyerID, err)
	}

	res := &Result{
		OrderID:           ord.ID,
		PlatformFeeCents:  e.policy.PlatformFee(ord.TotalCents),
		SellerCreditCents: e.policy.SellerCredit(ord.TotalCents),
		PointsAwarded:     e.policy.Points(ord.TotalCents, subscriber),
		Subscriber:        subscriber,
	}

	for _, li := range ord.LineItems {
		dec, err := inventory.Decrement(ctx, tx, li.CatalogItemID, li.Quantity)
		if err != nil {
			return nil, fmt.Errorf("decrement item %s for order %s: %w", li.CatalogItemID, ord.ID, err)
		}
		if dec.Clamped {
			res.ClampedItems = append(res.ClampedItems, li.CatalogItemID)
		}
	}
	if len(res.ClampedItems) > 0 {
		if err := orders.FlagForReview(ctx, tx, ord.ID, "inventory clamped at zero"); err != nil {
			return nil, fmt.Errorf("flag order %s for review: %w", ord.ID, err)
		}
	}

	if err := loyalty.AddPoints(ctx, tx, ord.BuyerID, res.PointsAwarded); err != nil {
		return nil, fmt.Errorf("award points to buyer %s: %w", ord.BuyerID, err)
	}

	orderID := ord.ID
	desc := fmt.Sprintf("sale proceeds for order %s", ord.ID)
	if err := ledger.Credit(ctx, tx, ord.SellerID, res.SellerCreditCents, ledger.TypeSale, &orderID, desc); err != nil {
		return nil, fmt.Errorf("credit seller %s: %w", ord.SellerID, err)
	}

	if ord.AllPeerListings() {
		res.ResaleBonusPoints = e.policy.ResaleBonus(ord.TotalCents)
		if err := loyalty.AddPoints(ctx, tx, ord.SellerID, res.ResaleBonusPoints); err != nil {
			return nil, fmt.Errorf("award resale bonus to seller %s: %w", ord.SellerID, err)
		}
	}

	if err := e.enqueueSideEffects(ctx, tx, ord, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit settlement for order %s: %w", ord.ID, err)
	}

	e.recordMetrics(res, time.Since(start))
	e.log.Info().
		Str("order_id", ord.ID.String()).
		Str("payment_ref", paymentRef).
		Int64("total_cents", ord.TotalCents).
		Int64("fee_cents", res.PlatformFeeCents).
		Int64("seller_credit_cents", res.SellerCreditCents).
		Int64("points", res.PointsAwarded).
		Int64("resale_bonus", res.ResaleBonusPoints).
		Bool("subscriber", subscriber).
		Int("clamped_items", len(res.ClampedItems)).
		Msg("order settled")

	return res, nil
}

func (e *Engine) enqueueSideEffects(ctx context.Context, tx *sql.Tx, ord *orders.Order, now time.Time) error {
	if ord.ShippingCents > 0 {
		sp := payout.ShippingPayout{
			CorrelationID: payout.CorrelationID(ord.ID, "shipping"),
			OrderID:       ord.ID,
			SellerID:      ord.SellerID,
			AmountCents:   ord.ShippingCents,
			Currency:      "usd",
			SettledAt:     now,
		}
		if err := outbox.Enqueue(ctx, tx, outbox.KindShippingPayout, ord.ID, sp); err != nil {
			return err
		}
		if e.metrics != nil {
			e.metrics.OutboxEnqueued.WithLabelValues(outbox.KindShippingPayout).Inc()
		}
	}

	bc := badge.Check{
		OrderID:    ord.ID,
		BuyerID:    ord.BuyerID,
		TotalCents: ord.TotalCents,
		SettledAt:  now,
	}
	if err := outbox.Enqueue(ctx, tx, outbox.KindBadgeCheck, ord.ID, bc); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.OutboxEnqueued.WithLabelValues(outbox.KindBadgeCheck).Inc()
	}
	return nil
}

func (e *Engine) recordMetrics(res *Result, took time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.SettlementDuration.Observe(took.Seconds())
	e.metrics.PointsAwarded.Add(float64(res.PointsAwarded + res.ResaleBonusPoints))
	e.metrics.LedgerCreditedCents.Add(float64(res.SellerCreditCents))
	if len(res.ClampedItems) > 0 {
		e.metrics.InventoryClamps.Add(float64(len(res.ClampedItems)))
	}
}
