package orders

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store reads and mutates orders in Postgres.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const orderColumns = `id, buyer_id, seller_id, subtotal_cents, shipping_cents,
	total_cents, status, COALESCE(checkout_ref, ''), COALESCE(payment_ref, ''),
	COALESCE(review_reason, ''), created_at, paid_at`

// Get loads a single order with its line items.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)

	ord, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}

	if err := s.loadLineItems(ctx, ord); err != nil {
		return nil, err
	}
	return ord, nil
}

// ByCheckoutRef returns all orders created under one checkout session.
// A single checkout can cover several orders (one per seller).
func (s *Store) ByCheckoutRef(ctx context.Context, ref string) ([]*Order, error) {
	return s.byRef(ctx, "checkout_ref", ref)
}

// ByPaymentRef returns all orders associated with a payment reference.
func (s *Store) ByPaymentRef(ctx context.Context, ref string) ([]*Order, error) {
	return s.byRef(ctx, "payment_ref", ref)
}

func (s *Store) byRef(ctx context.Context, column, ref string) ([]*Order, error) {
	if ref == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE `+column+` = $1 ORDER BY created_at`, ref)
	if err != nil {
		return nil, fmt.Errorf("orders by %s: %w", column, err)
	}
	defer rows.Close()

	var result []*Order
	for rows.Next() {
		ord, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		result = append(result, ord)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, ord := range result {
		if err := s.loadLineItems(ctx, ord); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// UnderReview returns orders flagged for manual review, oldest first, so the
// backlog is worked in the order it accumulated.
func (s *Store) UnderReview(ctx context.Context, limit int) ([]*Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE review_reason IS NOT NULL ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("orders under review: %w", err)
	}
	defer rows.Close()

	var result []*Order
	for rows.Next() {
		ord, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ord)
	}
	return result, rows.Err()
}

func (s *Store) loadLineItems(ctx context.Context, ord *Order) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, catalog_item_id, quantity, unit_price_cents, listing_type
		 FROM order_line_items WHERE order_id = $1`, ord.ID)
	if err != nil {
		return fmt.Errorf("load line items for %s: %w", ord.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var li LineItem
		if err := rows.Scan(&li.ID, &li.CatalogItemID, &li.Quantity,
			&li.UnitPriceCents, &li.ListingType); err != nil {
			return fmt.Errorf("scan line item: %w", err)
		}
		ord.LineItems = append(ord.LineItems, li)
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row scanner) (*Order, error) {
	var ord Order
	var paidAt sql.NullTime
	err := row.Scan(&ord.ID, &ord.BuyerID, &ord.SellerID, &ord.SubtotalCents,
		&ord.ShippingCents, &ord.TotalCents, &ord.Status, &ord.CheckoutRef,
		&ord.PaymentRef, &ord.ReviewReason, &ord.CreatedAt, &paidAt)
	if err != nil {
		return nil, err
	}
	if paidAt.Valid {
		t := paidAt.Time
		ord.PaidAt = &t
	}
	return &ord, nil
}

// MarkPaid is the idempotency fence: a conditional update that succeeds only
// while the stored status is still pending. Two concurrent deliveries for the
// same order cannot both observe RowsAffected == 1.
func MarkPaid(ctx context.Context, tx *sql.Tx, orderID uuid.UUID, paymentRef string, paidAt time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE orders
		 SET status = $2, payment_ref = COALESCE(NULLIF(payment_ref, ''), $3), paid_at = $4
		 WHERE id = $1 AND status = $5`,
		orderID, StatusPaid, paymentRef, paidAt, StatusPending)
	if err != nil {
		return false, fmt.Errorf("mark paid %s: %w", orderID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark paid rows affected: %w", err)
	}
	return n == 1, nil
}

// FlagForReview records a manual-review reason on the order within the
// settlement transaction.
func FlagForReview(ctx context.Context, tx *sql.Tx, orderID uuid.UUID, reason string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders SET review_reason = COALESCE(review_reason, $2) WHERE id = $1`,
		orderID, reason)
	if err != nil {
		return fmt.Errorf("flag order %s for review: %w", orderID, err)
	}
	return nil
}

// FlagForReviewNow flags an order outside any transaction. Used after a
// settlement aborts on a permanent data error, where the aborted transaction
// cannot carry the flag.
func (s *Store) FlagForReviewNow(ctx context.Context, orderID uuid.UUID, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE orders SET review_reason = COALESCE(review_reason, $2) WHERE id = $1`,
		orderID, reason)
	if err != nil {
		return fmt.Errorf("flag order %s for review: %w", orderID, err)
	}
	return nil
}
