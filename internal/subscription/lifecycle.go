package subscription

import (
	"context"
	"database/sql"
	"fmt"

	"MarketSettle/internal/event"
	"MarketSettle/internal/observability"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Lifecycle applies subscription events from the payment processor.
type Lifecycle struct {
	db      *sql.DB
	log     zerolog.Logger
	metrics *observability.Metrics
}

func NewLifecycle(db *sql.DB, log zerolog.Logger, metrics *observability.Metrics) *Lifecycle {
	return &Lifecycle{db: db, log: log, metrics: metrics}
}

// ApplyInvoicePaid records a paid invoice. The upsert is keyed on the
// provider reference, so redelivered invoices converge on the same row.
// A first-time sponsor activation additionally creates the member's
// Business entity exactly once, fenced by the business_created flag flip
// inside the same transaction.
func (l *Lifecycle) ApplyInvoicePaid(ctx context.Context, evt *event.InvoicePaid) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin invoice tx: %w", err)
	}
	defer tx.Rollback()

	periodEnd := sql.NullTime{Time: evt.PeriodEnd, Valid: !evt.PeriodEnd.IsZero()}

	var subID uuid.UUID
	var inserted bool
	err = tx.QueryRowContext(ctx,
		`INSERT INTO subscriptions (id, member_id, plan, provider_ref, status, period_end)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (provider_ref) DO UPDATE SET
		   status     = $5,
		   period_end = COALESCE($6, subscriptions.period_end),
		   updated_at = NOW()
		 RETURNING id, (xmax = 0)`,
		uuid.New(), evt.MemberID, evt.Plan, evt.ProviderRef, StatusActive, periodEnd).
		Scan(&subID, &inserted)
	if err != nil {
		return fmt.Errorf("upsert subscription %s: %w", evt.ProviderRef, err)
	}

	if evt.Plan == PlanSponsor && evt.Business != nil {
		created, err := l.createBusinessOnce(ctx, tx, subID, evt)
		if err != nil {
			return err
		}
		if created && l.metrics != nil {
			l.metrics.BusinessesCreated.Inc()
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit invoice tx: %w", err)
	}

	action := "renewed"
	if inserted {
		action = "created"
	}
	if l.metrics != nil {
		l.metrics.SubscriptionUpserts.WithLabelValues(action).Inc()
	}
	l.log.Info().
		Str("provider_ref", evt.ProviderRef).
		Str("plan", evt.Plan).
		Str("action", action).
		Msg("invoice applied")

	return nil
}

// createBusinessOnce flips business_created as the one-shot fence: only the
// delivery that wins the flip inserts the Business row.
func (l *Lifecycle) createBusinessOnce(ctx context.Context, tx *sql.Tx, subID uuid.UUID, evt *event.InvoicePaid) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE subscriptions SET business_created = TRUE
		 WHERE id = $1 AND business_created = FALSE`, subID)
	if err != nil {
		return false, fmt.Errorf("business fence %s: %w", subID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO businesses (id, owner_id, name, category, subscription_id)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), evt.MemberID, evt.Business.Name, evt.Business.Category, subID)
	if err != nil {
		return false, fmt.Errorf("create sponsor business: %w", err)
	}

	l.log.Info().
		Str("provider_ref", evt.ProviderRef).
		Str("business", evt.Business.Name).
		Msg("sponsor business created")
	return true, nil
}

// ApplyStatusChange overwrites the local status from the provider's. The
// provider is the source of truth, so this is not transition-guarded.
func (l *Lifecycle) ApplyStatusChange(ctx context.Context, evt *event.SubscriptionChanged) error {
	status := MapProviderStatus(evt.ProviderStatus)
	periodEnd := sql.NullTime{Time: evt.PeriodEnd, Valid: !evt.PeriodEnd.IsZero()}

	res, err := l.db.ExecContext(ctx,
		`UPDATE subscriptions
		 SET status = $2,
		     period_end = COALESCE($3, period_end),
		     updated_at = NOW()
		 WHERE provider_ref = $1`,
		evt.ProviderRef, status, periodEnd)
	if err != nil {
		return fmt.Errorf("apply status change %s: %w", evt.ProviderRef, err)
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		// Unknown locally: logged and acknowledged, never retried.
		l.log.Warn().
			Str("provider_ref", evt.ProviderRef).
			Str("provider_status", evt.ProviderStatus).
			Msg("status change for unknown subscription")
		return nil
	}

	if l.metrics != nil {
		l.metrics.SubscriptionUpserts.WithLabelValues("status_change").Inc()
	}
	l.log.Info().
		Str("provider_ref", evt.ProviderRef).
		Str("status", string(status)).
		Msg("subscription status applied")
	return nil
}
