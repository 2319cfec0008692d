package settle

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrAlreadySettled means the order was not in pending when the settlement
// fence ran. The economic effect already happened (or the order was refunded
// or canceled); the delivery should be acknowledged, never retried.
var ErrAlreadySettled = errors.New("order already settled")

// PermanentDataError marks an order whose stored data can never settle
// cleanly, such as a missing line item set or a negative total. Retrying
// cannot fix it; the order is flagged for manual review and the delivery
// acknowledged so the provider stops resending.
type PermanentDataError struct {
	OrderID uuid.UUID
	Reason  string
}

func (e *PermanentDataError) Error() string {
	return fmt.Sprintf("order %s cannot settle: %s", e.OrderID, e.Reason)
}
