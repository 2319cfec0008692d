package resolve

import (
	"context"
	"errors"
	"fmt"

	"MarketSettle/internal/event"
	"MarketSettle/internal/orders"
)

// ErrTargetNotFound means the event references no order known locally.
var ErrTargetNotFound = errors.New("no order matches event reference")

// OrderSource is the lookup surface the resolver needs.
type OrderSource interface {
	ByCheckoutRef(ctx context.Context, ref string) ([]*orders.Order, error)
	ByPaymentRef(ctx context.Context, ref string) ([]*orders.Order, error)
}

// Target is the set of orders a payment event settles. A checkout can span
// multiple sellers, producing one order per seller under one reference.
type Target struct {
	Orders     []*orders.Order
	PaymentRef string
}

type Resolver struct {
	source OrderSource
}

func NewResolver(source OrderSource) *Resolver {
	return &Resolver{source: source}
}

// Resolve maps a payment event to the orders it pays for.
func (r *Resolver) Resolve(ctx context.Context, evt event.Event) (*Target, error) {
	switch e := evt.(type) {
	case *event.CheckoutCompleted:
		found, err := r.source.ByCheckoutRef(ctx, e.CheckoutRef)
		if err != nil {
			return nil, fmt.Errorf("resolve checkout %s: %w", e.CheckoutRef, err)
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("checkout %s: %w", e.CheckoutRef, ErrTargetNotFound)
		}
		return &Target{Orders: found, PaymentRef: e.PaymentRef}, nil

	case *event.PaymentCaptured:
		// Prefer the payment reference; fall back to the checkout reference
		// for captures that arrive before any order carries the payment ref.
		found, err := r.source.ByPaymentRef(ctx, e.PaymentRef)
		if err != nil {
			return nil, fmt.Errorf("resolve payment %s: %w", e.PaymentRef, err)
		}
		if len(found) == 0 && e.CheckoutRef != "" {
			found, err = r.source.ByCheckoutRef(ctx, e.CheckoutRef)
			if err != nil {
				return nil, fmt.Errorf("resolve payment %s via checkout %s: %w", e.PaymentRef, e.CheckoutRef, err)
			}
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("payment %s: %w", e.PaymentRef, ErrTargetNotFound)
		}
		return &Target{Orders: found, PaymentRef: e.PaymentRef}, nil

	default:
		return nil, fmt.Errorf("event kind %s is not a settlement trigger", evt.EventKind())
	}
}
