package ledger

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType classifies entries in the balance transaction log.
type TransactionType string

const (
	TypeSale       TransactionType = "sale"
	TypePayout     TransactionType = "payout"
	TypeAdjustment TransactionType = "adjustment"
)

// BalanceTransaction is one entry in a seller's append-only transaction log.
// Amounts are signed deltas in cents; the log is the source of truth for
// the materialized balance.
type BalanceTransaction struct {
	ID          uuid.UUID
	SellerID    uuid.UUID
	Type        TransactionType
	AmountCents int64
	OrderID     *uuid.UUID
	Description string
	CreatedAt   time.Time
}

// SellerBalance is the materialized running balance. It is a cache:
// BalanceCents must equal the sum of the seller's transaction log.
type SellerBalance struct {
	SellerID         uuid.UUID
	BalanceCents     int64
	TotalEarnedCents int64
	UpdatedAt        time.Time
}
