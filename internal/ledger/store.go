package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store persists seller balances and their transaction logs.
// Mutations run on the caller's transaction so the ledger write commits or
// aborts together with the rest of the settlement.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Credit appends a transaction to the seller's log and applies the same
// delta to the materialized balance, as one unit on tx. TotalEarnedCents
// accumulates only positive deltas.
func Credit(ctx context.Context, tx *sql.Tx, sellerID uuid.UUID, amountCents int64,
	txType TransactionType, orderID *uuid.UUID, description string) error {

	earned := amountCents
	if earned < 0 {
		earned = 0
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO seller_balances (seller_id, balance_cents, total_earned_cents, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (seller_id) DO UPDATE SET
		   balance_cents      = seller_balances.balance_cents + EXCLUDED.balance_cents,
		   total_earned_cents = seller_balances.total_earned_cents + EXCLUDED.total_earned_cents,
		   updated_at         = NOW()`,
		sellerID, amountCents, earned)
	if err != nil {
		return fmt.Errorf("upsert seller balance %s: %w", sellerID, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO balance_transactions (id, seller_id, type, amount_cents, order_id, description)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), sellerID, txType, amountCents, orderID, description)
	if err != nil {
		return fmt.Errorf("append balance transaction for %s: %w", sellerID, err)
	}

	return nil
}

// Balance returns the materialized balance, or a zero-valued balance if the
// seller has no row yet.
func (s *Store) Balance(ctx context.Context, sellerID uuid.UUID) (*SellerBalance, error) {
	bal := &SellerBalance{SellerID: sellerID, UpdatedAt: time.Time{}}
	err := s.db.QueryRowContext(ctx,
		`SELECT balance_cents, total_earned_cents, updated_at
		 FROM seller_balances WHERE seller_id = $1`, sellerID).
		Scan(&bal.BalanceCents, &bal.TotalEarnedCents, &bal.UpdatedAt)
	if err == sql.ErrNoRows {
		return bal, nil
	}
	if err != nil {
		return nil, fmt.Errorf("seller balance %s: %w", sellerID, err)
	}
	return bal, nil
}

// Transactions returns the newest entries of a seller's log.
func (s *Store) Transactions(ctx context.Context, sellerID uuid.UUID, limit int) ([]BalanceTransaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, seller_id, type, amount_cents, order_id, description, created_at
		 FROM balance_transactions
		 WHERE seller_id = $1 ORDER BY created_at DESC LIMIT $2`,
		sellerID, limit)
	if err != nil {
		return nil, fmt.Errorf("balance transactions %s: %w", sellerID, err)
	}
	defer rows.Close()

	var result []BalanceTransaction
	for rows.Next() {
		var bt BalanceTransaction
		var orderID uuid.NullUUID
		if err := rows.Scan(&bt.ID, &bt.SellerID, &bt.Type, &bt.AmountCents,
			&orderID, &bt.Description, &bt.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan balance transaction: %w", err)
		}
		if orderID.Valid {
			id := orderID.UUID
			bt.OrderID = &id
		}
		result = append(result, bt)
	}
	return result, rows.Err()
}

// ReconstructBalance recomputes a seller's balance from the transaction log.
// Used to verify the materialized balance has not drifted.
func (s *Store) ReconstructBalance(ctx context.Context, sellerID uuid.UUID) (int64, error) {
	var sum int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM balance_transactions WHERE seller_id = $1`,
		sellerID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("reconstruct balance %s: %w", sellerID, err)
	}
	return sum, nil
}
