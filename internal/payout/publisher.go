package payout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"MarketSettle/internal/observability"
	"MarketSettle/internal/outbox"
)

// ShippingPayout asks the fulfillment system to release the shipping amount
// for a settled order. CorrelationID keys duplicates out downstream.
type ShippingPayout struct {
	CorrelationID string    `json:"correlation_id"`
	OrderID       uuid.UUID `json:"order_id"`
	SellerID      uuid.UUID `json:"seller_id"`
	AmountCents   int64     `json:"amount_cents"`
	Currency      string    `json:"currency"`
	SettledAt     time.Time `json:"settled_at"`
}

// CorrelationID derives a stable key for a payout so redeliveries collapse
// to one payment on the consumer side.
func CorrelationID(orderID uuid.UUID, reason string) string {
	return orderID.String() + ":" + reason
}

// Publisher delivers shipping payout records to their NATS subject. It
// implements outbox.Dispatcher.
type Publisher struct {
	js      jetstream.JetStream
	log     zerolog.Logger
	metrics *observability.Metrics
}

func NewPublisher(js jetstream.JetStream, log zerolog.Logger, metrics *observability.Metrics) *Publisher {
	return &Publisher{js: js, log: log, metrics: metrics}
}

func (p *Publisher) Dispatch(ctx context.Context, rec outbox.Record) error {
	var payout ShippingPayout
	if err := json.Unmarshal(rec.Payload, &payout); err != nil {
		return fmt.Errorf("decode shipping payout %s: %w", rec.ID, err)
	}

	if _, err := p.js.Publish(ctx, SubjectShippingPayout, rec.Payload); err != nil {
		if p.metrics != nil {
			p.metrics.PayoutsFailed.Inc()
		}
		return fmt.Errorf("publish shipping payout %s: %w", payout.CorrelationID, err)
	}

	if p.metrics != nil {
		p.metrics.PayoutsTriggered.Inc()
	}
	p.log.Info().
		Str("correlation_id", payout.CorrelationID).
		Str("order_id", payout.OrderID.String()).
		Int64("amount_cents", payout.AmountCents).
		Msg("shipping payout triggered")
	return nil
}
