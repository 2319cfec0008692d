package settle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"MarketSettle/internal/dedup"
	"MarketSettle/internal/event"
	"MarketSettle/internal/observability"
	"MarketSettle/internal/orders"
	"MarketSettle/internal/resolve"
	"MarketSettle/internal/subscription"
)

// Processor is the top of the pipeline: it takes a verified, typed event and
// routes it through dedup, resolution and settlement (or the subscription
// lifecycle). The error it returns decides the webhook response: nil
// acknowledges the delivery, non-nil makes the provider redeliver.
type Processor struct {
	guard     *dedup.Guard
	resolver  *resolve.Resolver
	engine    *Engine
	lifecycle *subscription.Lifecycle
	orders    *orders.Store
	log       zerolog.Logger
	metrics   *observability.Metrics
}

func NewProcessor(
	guard *dedup.Guard,
	resolver *resolve.Resolver,
	engine *Engine,
	lifecycle *subscription.Lifecycle,
	orderStore *orders.Store,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *Processor {
	return &Processor{
		guard:     guard,
		resolver:  resolver,
		engine:    engine,
		lifecycle: lifecycle,
		orders:    orderStore,
		log:       log,
		metrics:   metrics,
	}
}

// Process handles one delivery end to end.
func (p *Processor) Process(ctx context.Context, evt event.Event) error {
	kind := evt.EventKind()
	if p.metrics != nil {
		p.metrics.EventsReceived.WithLabelValues(kind.String()).Inc()
	}

	if !p.guard.ShouldProcess(ctx, evt) {
		p.log.Debug().Str("event_id", evt.EventID()).Str("kind", kind.String()).Msg("duplicate delivery skipped")
		return nil
	}

	var err error
	switch e := evt.(type) {
	case *event.CheckoutCompleted, *event.PaymentCaptured:
		err = p.settlePayment(ctx, evt)
	case *event.InvoicePaid:
		err = p.lifecycle.ApplyInvoicePaid(ctx, e)
	case *event.SubscriptionChanged:
		err = p.lifecycle.ApplyStatusChange(ctx, e)
	case *event.Unrecognized:
		p.log.Debug().Str("event_id", e.ID).Str("raw_kind", e.RawKind).Msg("unhandled event kind acknowledged")
		return nil
	default:
		p.log.Warn().Str("event_id", evt.EventID()).Str("kind", kind.String()).Msg("no handler for event")
		return nil
	}
	if err != nil {
		return err
	}

	p.guard.MarkProcessed(ctx, evt)
	return nil
}

// settlePayment settles every order the event resolves to. Orders fail or
// succeed independently: one bad order in a multi-seller checkout must not
// hold the others hostage.
func (p *Processor) settlePayment(ctx context.Context, evt event.Event) error {
	target, err := p.resolver.Resolve(ctx, evt)
	if err != nil {
		if errors.Is(err, resolve.ErrTargetNotFound) {
			// No local order carries this reference. Redelivery would find
			// the same nothing, so log it loudly and acknowledge.
			if p.metrics != nil {
				p.metrics.TargetsNotFound.WithLabelValues(evt.EventKind().String()).Inc()
			}
			p.log.Error().Str("event_id", evt.EventID()).Err(err).Msg("event references no known order")
			return nil
		}
		return err
	}

	now := time.Now().UTC()
	var transient error
	for _, ord := range target.Orders {
		_, err := p.engine.Settle(ctx, ord, target.PaymentRef, now)
		switch {
		case err == nil:
			if p.metrics != nil {
				p.metrics.SettlementsApplied.WithLabelValues(evt.EventKind().String()).Inc()
			}

		case errors.Is(err, ErrAlreadySettled):
			if p.metrics != nil {
				p.metrics.SettlementsNoop.Inc()
			}
			p.log.Debug().Str("order_id", ord.ID.String()).Msg("order already settled, no-op")

		case isPermanent(err):
			// Retrying cannot fix bad data. Flag the order, count it loudly
			// and acknowledge so the provider stops redelivering.
			if p.metrics != nil {
				p.metrics.SettlementFailures.WithLabelValues("permanent").Inc()
			}
			p.log.Error().Err(err).Str("order_id", ord.ID.String()).Msg("order data cannot settle, flagged for review")
			if flagErr := p.orders.FlagForReviewNow(ctx, ord.ID, err.Error()); flagErr != nil {
				p.log.Error().Err(flagErr).Str("order_id", ord.ID.String()).Msg("review flag failed")
			}

		default:
			if p.metrics != nil {
				p.metrics.SettlementFailures.WithLabelValues("transient").Inc()
			}
			transient = fmt.Errorf("settle order %s: %w", ord.ID, err)
		}
	}

	// Any transient failure fails the whole delivery. Redelivery is cheap:
	// already-settled orders collapse to no-ops at the fence.
	return transient
}

func isPermanent(err error) bool {
	var pde *PermanentDataError
	return errors.As(err, &pde)
}
