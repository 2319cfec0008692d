package subscription

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Querier is satisfied by *sql.DB and *sql.Tx. Settlement checks the buyer's
// plan inside its own transaction to avoid racing a concurrent cancellation.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store reads subscriptions from Postgres.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// HasActiveSubscription reports whether the member holds any active plan.
// Runs on the caller's querier so it can participate in a transaction.
func HasActiveSubscription(ctx context.Context, q Querier, memberID uuid.UUID) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM subscriptions WHERE member_id = $1 AND status = $2
		 )`, memberID, StatusActive).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("active subscription check %s: %w", memberID, err)
	}
	return exists, nil
}

// ByProviderRef loads a subscription by its provider reference.
func (s *Store) ByProviderRef(ctx context.Context, providerRef string) (*Subscription, error) {
	var sub Subscription
	var periodEnd sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, member_id, plan, provider_ref, status, period_end,
		        business_created, created_at, updated_at
		 FROM subscriptions WHERE provider_ref = $1`, providerRef).
		Scan(&sub.ID, &sub.MemberID, &sub.Plan, &sub.ProviderRef, &sub.Status,
			&periodEnd, &sub.BusinessCreated, &sub.CreatedAt, &sub.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("subscription by provider ref: %w", err)
	}
	if periodEnd.Valid {
		t := periodEnd.Time
		sub.PeriodEnd = &t
	}
	return &sub, nil
}
