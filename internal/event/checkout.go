package event

import "time"

// CheckoutCompleted confirms a buyer finished checkout and the processor
// collected payment for one or more orders sharing a checkout reference.
type CheckoutCompleted struct {
	ID          string
	CheckoutRef string
	PaymentRef  string
	Occurred    time.Time
}

func (e *CheckoutCompleted) EventID() string       { return e.ID }
func (e *CheckoutCompleted) EventKind() Kind       { return KindCheckoutCompleted }
func (e *CheckoutCompleted) OccurredAt() time.Time { return e.Occurred }

// PaymentCaptured confirms funds were captured for a payment. It can carry
// the same economic fact as a CheckoutCompleted for the same purchase; the
// settlement fence makes the second arrival a no-op.
type PaymentCaptured struct {
	ID          string
	PaymentRef  string
	CheckoutRef string
	Occurred    time.Time
}

func (e *PaymentCaptured) EventID() string       { return e.ID }
func (e *PaymentCaptured) EventKind() Kind       { return KindPaymentCaptured }
func (e *PaymentCaptured) OccurredAt() time.Time { return e.Occurred }

// Unrecognized is an event kind this service does not yet handle. It is
// accepted and acknowledged so the processor never retries it.
type Unrecognized struct {
	ID       string
	RawKind  string
	Occurred time.Time
}

func (e *Unrecognized) EventID() string       { return e.ID }
func (e *Unrecognized) EventKind() Kind       { return KindUnknown }
func (e *Unrecognized) OccurredAt() time.Time { return e.Occurred }
