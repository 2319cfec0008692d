package ingress

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"MarketSettle/internal/event"
)

// envelope is the provider's outer wire format. Every delivery carries the
// event id, a dotted type string, a unix creation time and a type-specific
// data object.
type envelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    json.RawMessage `json:"data"`
}

// ParseEvent converts a verified webhook body into a typed event.Event.
// Unknown type strings map to event.Unrecognized rather than an error: the
// provider adds kinds over time and deliveries we cannot handle must still
// be acknowledged.
func ParseEvent(body []byte) (event.Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parse envelope: %w", err)
	}
	if env.ID == "" {
		return nil, fmt.Errorf("envelope missing event id")
	}
	occurred := time.Unix(env.Created, 0).UTC()

	switch env.Type {
	case "checkout.completed":
		return parseCheckoutCompleted(env, occurred)
	case "payment.captured":
		return parsePaymentCaptured(env, occurred)
	case "invoice.paid":
		return parseInvoicePaid(env, occurred)
	case "subscription.changed":
		return parseSubscriptionChanged(env, occurred)
	default:
		return &event.Unrecognized{ID: env.ID, RawKind: env.Type, Occurred: occurred}, nil
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match the provider's payloads.

type checkoutCompletedJSON struct {
	CheckoutRef string `json:"checkout_ref"`
	PaymentRef  string `json:"payment_ref"`
}

func parseCheckoutCompleted(env envelope, occurred time.Time) (*event.CheckoutCompleted, error) {
	var j checkoutCompletedJSON
	if err := json.Unmarshal(env.Data, &j); err != nil {
		return nil, fmt.Errorf("parse checkout.completed: %w", err)
	}
	if j.CheckoutRef == "" {
		return nil, fmt.Errorf("checkout.completed %s missing checkout_ref", env.ID)
	}
	return &event.CheckoutCompleted{
		ID:          env.ID,
		CheckoutRef: j.CheckoutRef,
		PaymentRef:  j.PaymentRef,
		Occurred:    occurred,
	}, nil
}

type paymentCapturedJSON struct {
	PaymentRef  string `json:"payment_ref"`
	CheckoutRef string `json:"checkout_ref"`
}

func parsePaymentCaptured(env envelope, occurred time.Time) (*event.PaymentCaptured, error) {
	var j paymentCapturedJSON
	if err := json.Unmarshal(env.Data, &j); err != nil {
		return nil, fmt.Errorf("parse payment.captured: %w", err)
	}
	if j.PaymentRef == "" {
		return nil, fmt.Errorf("payment.captured %s missing payment_ref", env.ID)
	}
	return &event.PaymentCaptured{
		ID:          env.ID,
		PaymentRef:  j.PaymentRef,
		CheckoutRef: j.CheckoutRef,
		Occurred:    occurred,
	}, nil
}

type invoicePaidJSON struct {
	ProviderRef string `json:"subscription_ref"`
	MemberID    string `json:"member_id"`
	Plan        string `json:"plan"`
	PeriodEnd   int64  `json:"period_end"`
	Business    *struct {
		Name     string `json:"name"`
		Category string `json:"category"`
	} `json:"business,omitempty"`
}

func parseInvoicePaid(env envelope, occurred time.Time) (*event.InvoicePaid, error) {
	var j invoicePaidJSON
	if err := json.Unmarshal(env.Data, &j); err != nil {
		return nil, fmt.Errorf("parse invoice.paid: %w", err)
	}
	if j.ProviderRef == "" {
		return nil, fmt.Errorf("invoice.paid %s missing subscription_ref", env.ID)
	}
	memberID, err := uuid.Parse(j.MemberID)
	if err != nil {
		return nil, fmt.Errorf("invoice.paid %s member_id: %w", env.ID, err)
	}

	evt := &event.InvoicePaid{
		ID:          env.ID,
		ProviderRef: j.ProviderRef,
		MemberID:    memberID,
		Plan:        j.Plan,
		Occurred:    occurred,
	}
	if j.PeriodEnd > 0 {
		evt.PeriodEnd = time.Unix(j.PeriodEnd, 0).UTC()
	}
	if j.Business != nil {
		evt.Business = &event.BusinessProfile{Name: j.Business.Name, Category: j.Business.Category}
	}
	return evt, nil
}

type subscriptionChangedJSON struct {
	ProviderRef string `json:"subscription_ref"`
	Status      string `json:"status"`
	PeriodEnd   int64  `json:"period_end"`
}

func parseSubscriptionChanged(env envelope, occurred time.Time) (*event.SubscriptionChanged, error) {
	var j subscriptionChangedJSON
	if err := json.Unmarshal(env.Data, &j); err != nil {
		return nil, fmt.Errorf("parse subscription.changed: %w", err)
	}
	if j.ProviderRef == "" {
		return nil, fmt.Errorf("subscription.changed %s missing subscription_ref", env.ID)
	}

	evt := &event.SubscriptionChanged{
		ID:             env.ID,
		ProviderRef:    j.ProviderRef,
		ProviderStatus: j.Status,
		Occurred:       occurred,
	}
	if j.PeriodEnd > 0 {
		evt.PeriodEnd = time.Unix(j.PeriodEnd, 0).UTC()
	}
	return evt, nil
}
