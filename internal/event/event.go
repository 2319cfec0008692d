package event

import "time"

// Kind discriminates payment-processor event payloads.
type Kind int32

const (
	KindUnknown Kind = iota
	KindCheckoutCompleted
	KindPaymentCaptured
	KindInvoicePaid
	KindSubscriptionChanged
)

func (k Kind) String() string {
	switch k {
	case KindCheckoutCompleted:
		return "CheckoutCompleted"
	case KindPaymentCaptured:
		return "PaymentCaptured"
	case KindInvoicePaid:
		return "InvoicePaid"
	case KindSubscriptionChanged:
		return "SubscriptionChanged"
	default:
		return "Unknown"
	}
}

// Event is the interface all payment events implement.
// The provider-assigned event id doubles as the idempotency key: the
// processor may redeliver the same id any number of times.
type Event interface {
	// EventID returns the processor's event id (stable across redeliveries).
	EventID() string

	// EventKind returns the discriminator.
	EventKind() Kind

	// OccurredAt returns the processor-side event timestamp.
	OccurredAt() time.Time
}
