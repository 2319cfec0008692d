package query

import (
	"time"

	"github.com/google/uuid"
)

// BalanceView is the seller balance response, pairing the materialized
// balance with the log-derived one so callers can spot drift.
type BalanceView struct {
	SellerID           uuid.UUID `json:"seller_id"`
	BalanceCents       int64     `json:"balance_cents"`
	TotalEarnedCents   int64     `json:"total_earned_cents"`
	ReconstructedCents int64     `json:"reconstructed_cents"`
	DriftCents         int64     `json:"drift_cents"`
	UpdatedAt          time.Time `json:"updated_at"`
}
