package badge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"MarketSettle/internal/outbox"
	"MarketSettle/internal/payout"
)

// Check asks the gamification service to re-evaluate a buyer's badges after
// a settled purchase. Best effort: a lost check self-heals on the buyer's
// next purchase.
type Check struct {
	OrderID    uuid.UUID `json:"order_id"`
	BuyerID    uuid.UUID `json:"buyer_id"`
	TotalCents int64     `json:"total_cents"`
	SettledAt  time.Time `json:"settled_at"`
}

// Publisher delivers badge checks to their NATS subject. It implements
// outbox.Dispatcher.
type Publisher struct {
	js  jetstream.JetStream
	log zerolog.Logger
}

func NewPublisher(js jetstream.JetStream, log zerolog.Logger) *Publisher {
	return &Publisher{js: js, log: log}
}

func (p *Publisher) Dispatch(ctx context.Context, rec outbox.Record) error {
	if _, err := p.js.Publish(ctx, payout.SubjectBadgeCheck, rec.Payload); err != nil {
		return fmt.Errorf("publish badge check for order %s: %w", rec.OrderID, err)
	}
	p.log.Debug().Str("order_id", rec.OrderID.String()).Msg("badge check published")
	return nil
}
