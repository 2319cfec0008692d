package ingress

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"MarketSettle/internal/event"
	"MarketSettle/internal/observability"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// Processor handles one verified, typed event. A nil return acknowledges the
// delivery; non-nil asks the provider to redeliver.
type Processor interface {
	Process(ctx context.Context, evt event.Event) error
}

// WebhookHandler is the HTTP entry point for payment-provider deliveries.
// Responses are deliberately uninformative: authentication failures get one
// generic 401, processing failures one generic 500. Detail goes to the logs,
// never to the caller.
type WebhookHandler struct {
	verifier  *SignatureVerifier
	processor Processor
	log       zerolog.Logger
	metrics   *observability.Metrics
}

func NewWebhookHandler(verifier *SignatureVerifier, processor Processor,
	log zerolog.Logger, metrics *observability.Metrics) *WebhookHandler {
	return &WebhookHandler{
		verifier:  verifier,
		processor: processor,
		log:       log,
		metrics:   metrics,
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.reject(w, "body_read", http.StatusBadRequest)
		return
	}

	if err := h.verifier.Verify(body, r.Header.Get("Market-Signature"), time.Now()); err != nil {
		h.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("webhook rejected")
		h.reject(w, "signature", http.StatusUnauthorized)
		return
	}

	evt, err := ParseEvent(body)
	if err != nil {
		// Authenticated but malformed. Retrying cannot fix the payload, so
		// log loudly and acknowledge to stop the redelivery loop.
		h.log.Error().Err(err).Msg("malformed webhook payload acknowledged")
		if h.metrics != nil {
			h.metrics.EventsRejected.WithLabelValues("unknown", "malformed").Inc()
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.processor.Process(r.Context(), evt); err != nil {
		if !errors.Is(err, context.Canceled) {
			h.log.Error().Err(err).
				Str("event_id", evt.EventID()).
				Str("kind", evt.EventKind().String()).
				Msg("event processing failed, provider will retry")
		}
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}

	if h.metrics != nil {
		h.metrics.WebhookDuration.Observe(time.Since(start).Seconds())
	}
	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) reject(w http.ResponseWriter, reason string, code int) {
	if h.metrics != nil {
		h.metrics.EventsRejected.WithLabelValues("unknown", reason).Inc()
	}
	http.Error(w, http.StatusText(code), code)
}
