package loyalty

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// AddPoints applies a signed delta to a member's point balance, creating the
// account on first award. Deltas (never absolute sets) keep the operation
// commutative across retried settlements.
func AddPoints(ctx context.Context, tx *sql.Tx, memberID uuid.UUID, delta int64) error {
	if delta == 0 {
		return nil
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO loyalty_accounts (member_id, points_balance, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (member_id) DO UPDATE SET
		   points_balance = loyalty_accounts.points_balance + EXCLUDED.points_balance,
		   updated_at     = NOW()`,
		memberID, delta)
	if err != nil {
		return fmt.Errorf("add %d points to %s: %w", delta, memberID, err)
	}
	return nil
}

// Balance returns a member's current point balance (zero if no account).
func Balance(ctx context.Context, db *sql.DB, memberID uuid.UUID) (int64, error) {
	var balance int64
	err := db.QueryRowContext(ctx,
		`SELECT points_balance FROM loyalty_accounts WHERE member_id = $1`,
		memberID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("points balance %s: %w", memberID, err)
	}
	return balance, nil
}
