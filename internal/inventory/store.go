package inventory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// ErrItemNotFound is returned when the catalog item no longer exists.
var ErrItemNotFound = fmt.Errorf("catalog item not found")

// Decremented reports the outcome of an inventory decrement.
type Decremented struct {
	Remaining int
	// Clamped is set when the purchase exceeded the stored quantity. The
	// decrement still applies (floored at zero) and the item is flagged for
	// manual review rather than silently overselling.
	Clamped bool
}

// Decrement atomically reduces a catalog item's available quantity by the
// purchased amount. The CTE locks the row first, so the quantity that drives
// both the new value and the clamp flag is the value after any concurrent
// writer committed, not a statement-snapshot read. A plain self-join is not
// safe here: when the UPDATE blocks on a concurrent transaction, only the
// target row is re-read after the lock, and a snapshot-stale joined copy
// could hide an underflow.
func Decrement(ctx context.Context, tx *sql.Tx, itemID uuid.UUID, quantity int) (Decremented, error) {
	var d Decremented
	err := tx.QueryRowContext(ctx,
		`WITH locked AS (
		     SELECT id, available_quantity FROM catalog_items WHERE id = $1 FOR UPDATE
		 )
		 UPDATE catalog_items AS c
		 SET available_quantity = GREATEST(locked.available_quantity - $2, 0),
		     flagged_for_review = c.flagged_for_review OR locked.available_quantity < $2
		 FROM locked
		 WHERE c.id = locked.id
		 RETURNING c.available_quantity, locked.available_quantity < $2`,
		itemID, quantity).Scan(&d.Remaining, &d.Clamped)
	if err == sql.ErrNoRows {
		return d, fmt.Errorf("decrement item %s: %w", itemID, ErrItemNotFound)
	}
	if err != nil {
		return d, fmt.Errorf("decrement item %s: %w", itemID, err)
	}
	return d, nil
}

// Available returns the current quantity for a catalog item.
func Available(ctx context.Context, db *sql.DB, itemID uuid.UUID) (int, bool, error) {
	var qty int
	var flagged bool
	err := db.QueryRowContext(ctx,
		`SELECT available_quantity, flagged_for_review FROM catalog_items WHERE id = $1`,
		itemID).Scan(&qty, &flagged)
	if err == sql.ErrNoRows {
		return 0, false, ErrItemNotFound
	}
	if err != nil {
		return 0, false, err
	}
	return qty, flagged, nil
}
