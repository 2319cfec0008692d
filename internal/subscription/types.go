package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Status is the two-state local model. The provider's richer vocabulary is
// collapsed by MapProviderStatus.
type Status string

const (
	StatusActive   Status = "active"
	StatusCanceled Status = "canceled"
)

// Plan names used by settlement rules.
const (
	PlanSubscriber = "subscriber"
	PlanSponsor    = "sponsor"
)

type Subscription struct {
	ID              uuid.UUID
	MemberID        uuid.UUID
	Plan            string
	ProviderRef     string
	Status          Status
	PeriodEnd       *time.Time
	BusinessCreated bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MapProviderStatus collapses the provider's status vocabulary onto the local
// two-state model: "active" and "trialing" are Active, everything else is
// Canceled.
func MapProviderStatus(providerStatus string) Status {
	switch providerStatus {
	case "active", "trialing":
		return StatusActive
	default:
		return StatusCanceled
	}
}
