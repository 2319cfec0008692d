package event

import (
	"time"

	"github.com/google/uuid"
)

// BusinessProfile carries deferred business-profile data attached to a
// first-time sponsor signup. Present only on the first invoice of a
// sponsor-plan subscription.
type BusinessProfile struct {
	Name     string
	Category string
}

// InvoicePaid confirms a subscription invoice was paid. For a subscription
// not yet recorded locally this creates it (idempotent on ProviderRef).
type InvoicePaid struct {
	ID          string
	ProviderRef string
	MemberID    uuid.UUID
	Plan        string
	PeriodEnd   time.Time
	Business    *BusinessProfile
	Occurred    time.Time
}

func (e *InvoicePaid) EventID() string       { return e.ID }
func (e *InvoicePaid) EventKind() Kind       { return KindInvoicePaid }
func (e *InvoicePaid) OccurredAt() time.Time { return e.Occurred }

// SubscriptionChanged reports a provider-side subscription status change.
// Provider status is the source of truth; applying this event is an
// idempotent overwrite, not a guarded transition.
type SubscriptionChanged struct {
	ID             string
	ProviderRef    string
	ProviderStatus string
	PeriodEnd      time.Time
	Occurred       time.Time
}

func (e *SubscriptionChanged) EventID() string       { return e.ID }
func (e *SubscriptionChanged) EventKind() Kind       { return KindSubscriptionChanged }
func (e *SubscriptionChanged) OccurredAt() time.Time { return e.Occurred }
