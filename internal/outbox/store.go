package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Side-effect kinds routed through the outbox.
const (
	KindShippingPayout = "shipping_payout"
	KindBadgeCheck     = "badge_check"
)

// Record statuses.
const (
	StatusPending   = "pending"
	StatusDelivered = "delivered"
	StatusDead      = "dead"
)

// Record is one deferred side effect, written in the same transaction as the
// settlement it belongs to. The worker delivers it after commit; a crash
// between commit and delivery only delays the effect, never loses it.
type Record struct {
	ID            uuid.UUID
	Kind          string
	OrderID       uuid.UUID
	Payload       json.RawMessage
	Status        string
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	DeliveredAt   *time.Time
}

// Enqueue inserts a side-effect record inside the caller's transaction.
func Enqueue(ctx context.Context, tx *sql.Tx, kind string, orderID uuid.UUID, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", kind, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO settlement_outbox (id, kind, order_id, payload, status, attempts, next_attempt_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, 0, NOW(), NOW())`,
		uuid.New(), kind, orderID, body, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("enqueue %s for order %s: %w", kind, orderID, err)
	}
	return nil
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ClaimDue leases pending records whose next attempt is due. Claiming pushes
// next_attempt_at forward so a second worker polling concurrently cannot pick
// up the same records; SKIP LOCKED covers the race inside the statement.
func (s *Store) ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`UPDATE settlement_outbox
		 SET next_attempt_at = NOW() + $3 * INTERVAL '1 millisecond'
		 WHERE id IN (
		     SELECT id FROM settlement_outbox
		     WHERE status = $1 AND next_attempt_at <= NOW()
		     ORDER BY created_at
		     LIMIT $2
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, kind, order_id, payload, status, attempts, next_attempt_at, last_error, created_at`,
		StatusPending, limit, lease.Milliseconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("claim due outbox records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var lastErr sql.NullString
		if err := rows.Scan(&r.ID, &r.Kind, &r.OrderID, &r.Payload, &r.Status,
			&r.Attempts, &r.NextAttemptAt, &lastErr, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox record: %w", err)
		}
		r.LastError = lastErr.String
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *Store) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE settlement_outbox
		 SET status = $2, delivered_at = NOW()
		 WHERE id = $1`,
		id, StatusDelivered,
	)
	if err != nil {
		return fmt.Errorf("mark outbox %s delivered: %w", id, err)
	}
	return nil
}

// MarkFailed records a delivery failure and schedules the next attempt with
// exponential backoff. Past maxAttempts the record is parked as dead for
// manual requeue instead of retrying forever.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, maxAttempts int,
	backoffBase time.Duration, cause error) (dead bool, err error) {

	attempts++
	if attempts >= maxAttempts {
		_, err = s.db.ExecContext(ctx,
			`UPDATE settlement_outbox
			 SET status = $2, attempts = $3, last_error = $4
			 WHERE id = $1`,
			id, StatusDead, attempts, cause.Error(),
		)
		if err != nil {
			return false, fmt.Errorf("mark outbox %s dead: %w", id, err)
		}
		return true, nil
	}

	// backoffBase * 2^(attempts-1)
	delay := backoffBase << (attempts - 1)
	_, err = s.db.ExecContext(ctx,
		`UPDATE settlement_outbox
		 SET attempts = $2, next_attempt_at = NOW() + $3 * INTERVAL '1 millisecond', last_error = $4
		 WHERE id = $1`,
		id, attempts, delay.Milliseconds(), cause.Error(),
	)
	if err != nil {
		return false, fmt.Errorf("mark outbox %s failed: %w", id, err)
	}
	return false, nil
}

// RequeueDead moves dead records back to pending with a reset schedule.
// Operator-facing: used after fixing whatever made deliveries fail.
func (s *Store) RequeueDead(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE settlement_outbox
		 SET status = $1, attempts = 0, next_attempt_at = NOW()
		 WHERE status = $2`,
		StatusPending, StatusDead,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue dead outbox records: %w", err)
	}
	return res.RowsAffected()
}

// PendingDepth reports the current pending backlog, exported as a gauge.
func (s *Store) PendingDepth(ctx context.Context) (int, error) {
	var depth int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM settlement_outbox WHERE status = $1`,
		StatusPending,
	).Scan(&depth)
	if err != nil {
		return 0, fmt.Errorf("outbox depth: %w", err)
	}
	return depth, nil
}
