package dedup

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresChecker is the durable tier of the dedup guard, backed by the
// processed_events table.
type PostgresChecker struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresChecker(db *sql.DB) *PostgresChecker {
	return &PostgresChecker{
		db:      db,
		timeout: 2 * time.Second,
	}
}

func (c *PostgresChecker) Seen(ctx context.Context, eventID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var exists bool
	err := c.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)`,
		eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("dedup lookup: %w", err)
	}
	return exists, nil
}

func (c *PostgresChecker) Record(ctx context.Context, eventID, kind string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO processed_events (event_id, kind, processed_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (event_id) DO NOTHING`,
		eventID, kind,
	)
	if err != nil {
		return fmt.Errorf("dedup record: %w", err)
	}
	return nil
}
