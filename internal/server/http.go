package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"MarketSettle/internal/observability"
	"MarketSettle/internal/outbox"
	"MarketSettle/internal/query"
)

// Server is the HTTP surface: the webhook endpoint, read-only settlement
// views and a small admin section.
type Server struct {
	addr    string
	webhook http.Handler
	queries *query.Service
	outbox  *outbox.Store
	health  *observability.HealthChecker
	log     zerolog.Logger
	metrics *observability.Metrics

	httpServer *http.Server
}

func New(addr string, webhook http.Handler, queries *query.Service, outboxStore *outbox.Store,
	health *observability.HealthChecker, log zerolog.Logger, metrics *observability.Metrics) *Server {

	return &Server{
		addr:    addr,
		webhook: webhook,
		queries: queries,
		outbox:  outboxStore,
		health:  health,
		log:     log,
		metrics: metrics,
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Method(http.MethodPost, "/webhooks/payments", s.webhook)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/sellers/{sellerID}/balance", s.handleSellerBalance)
		r.Get("/sellers/{sellerID}/transactions", s.handleSellerTransactions)
		r.Get("/orders/review", s.handleReviewQueue)
		r.Get("/orders/{orderID}", s.handleOrderStatus)
		r.Post("/admin/outbox/requeue", s.handleOutboxRequeue)
	})

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)

	return r
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("http server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleSellerBalance(w http.ResponseWriter, r *http.Request) {
	s.countQuery("seller_balance")
	sellerID, ok := s.pathUUID(w, r, "sellerID")
	if !ok {
		return
	}

	view, err := s.queries.SellerBalance(r.Context(), sellerID)
	if err != nil {
		s.fail(w, "seller_balance", err)
		return
	}
	s.respond(w, view)
}

func (s *Server) handleSellerTransactions(w http.ResponseWriter, r *http.Request) {
	s.countQuery("seller_transactions")
	sellerID, ok := s.pathUUID(w, r, "sellerID")
	if !ok {
		return
	}

	txs, err := s.queries.SellerTransactions(r.Context(), sellerID, queryLimit(r))
	if err != nil {
		s.fail(w, "seller_transactions", err)
		return
	}
	s.respond(w, map[string]any{"transactions": txs})
}

func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	s.countQuery("order_status")
	orderID, ok := s.pathUUID(w, r, "orderID")
	if !ok {
		return
	}

	ord, err := s.queries.OrderStatus(r.Context(), orderID)
	if err != nil {
		s.fail(w, "order_status", err)
		return
	}
	if ord == nil {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}
	s.respond(w, ord)
}

func (s *Server) handleReviewQueue(w http.ResponseWriter, r *http.Request) {
	s.countQuery("review_queue")
	flagged, err := s.queries.OrdersUnderReview(r.Context(), queryLimit(r))
	if err != nil {
		s.fail(w, "review_queue", err)
		return
	}
	s.respond(w, map[string]any{"orders": flagged})
}

func (s *Server) handleOutboxRequeue(w http.ResponseWriter, r *http.Request) {
	s.countQuery("outbox_requeue")
	requeued, err := s.outbox.RequeueDead(r.Context())
	if err != nil {
		s.fail(w, "outbox_requeue", err)
		return
	}
	s.log.Info().Int64("requeued", requeued).Msg("dead outbox records requeued")
	s.respond(w, map[string]any{"requeued": requeued})
}

func (s *Server) pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		http.Error(w, "invalid "+param, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) respond(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error().Err(err).Msg("response encode failed")
	}
}

func (s *Server) fail(w http.ResponseWriter, endpoint string, err error) {
	if s.metrics != nil {
		s.metrics.QueryErrors.WithLabelValues(endpoint).Inc()
	}
	s.log.Error().Err(err).Str("endpoint", endpoint).Msg("query failed")
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (s *Server) countQuery(endpoint string) {
	if s.metrics != nil {
		s.metrics.QueryRequests.WithLabelValues(endpoint).Inc()
	}
}

func queryLimit(r *http.Request) int {
	// Bad values fall through to the service default.
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return limit
}
