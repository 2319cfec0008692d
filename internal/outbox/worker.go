package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"MarketSettle/internal/observability"
)

// Backlog is the persistence surface the worker polls. Satisfied by *Store;
// an interface so tests can drive the loop without Postgres.
type Backlog interface {
	ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]Record, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts, maxAttempts int,
		backoffBase time.Duration, cause error) (bool, error)
	PendingDepth(ctx context.Context) (int, error)
}

// Dispatcher delivers one side-effect record to its downstream consumer.
type Dispatcher interface {
	Dispatch(ctx context.Context, rec Record) error
}

// WorkerConfig tunes the delivery loop.
type WorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	BackoffBase  time.Duration
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval: 1 * time.Second,
		BatchSize:    50,
		MaxAttempts:  8,
		BackoffBase:  2 * time.Second,
	}
}

// Worker drains the settlement outbox and hands records to per-kind
// dispatchers. Delivery is at-least-once; downstream consumers key on the
// order id to absorb the occasional duplicate.
type Worker struct {
	backlog     Backlog
	dispatchers map[string]Dispatcher
	cfg         WorkerConfig
	log         zerolog.Logger
	metrics     *observability.Metrics
}

func NewWorker(backlog Backlog, dispatchers map[string]Dispatcher, cfg WorkerConfig,
	log zerolog.Logger, metrics *observability.Metrics) *Worker {

	if cfg.PollInterval <= 0 {
		cfg = DefaultWorkerConfig()
	}
	return &Worker{
		backlog:     backlog,
		dispatchers: dispatchers,
		cfg:         cfg,
		log:         log,
		metrics:     metrics,
	}
}

// Run polls until ctx is cancelled. Blocks.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.log.Info().
		Dur("poll_interval", w.cfg.PollInterval).
		Int("batch_size", w.cfg.BatchSize).
		Msg("outbox worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("outbox worker stopping")
			return ctx.Err()
		case <-ticker.C:
			w.drainOnce(ctx)
		}
	}
}

func (w *Worker) drainOnce(ctx context.Context) {
	// The lease outlives the worst-case batch so a claimed record is never
	// re-claimed mid-delivery by another worker.
	lease := w.cfg.PollInterval * 10
	records, err := w.backlog.ClaimDue(ctx, w.cfg.BatchSize, lease)
	if err != nil {
		w.log.Error().Err(err).Msg("outbox claim failed")
		return
	}

	for _, rec := range records {
		w.deliver(ctx, rec)
	}

	if w.metrics != nil {
		if depth, err := w.backlog.PendingDepth(ctx); err == nil {
			w.metrics.OutboxDepth.Set(float64(depth))
		}
	}
}

func (w *Worker) deliver(ctx context.Context, rec Record) {
	dispatcher, ok := w.dispatchers[rec.Kind]
	if !ok {
		// No consumer registered. Park it instead of burning retries.
		w.failed(ctx, rec, errUnknownKind(rec.Kind))
		return
	}

	if err := dispatcher.Dispatch(ctx, rec); err != nil {
		w.log.Warn().Err(err).
			Str("outbox_id", rec.ID.String()).
			Str("kind", rec.Kind).
			Str("order_id", rec.OrderID.String()).
			Int("attempts", rec.Attempts+1).
			Msg("side effect delivery failed")
		w.failed(ctx, rec, err)
		return
	}

	if err := w.backlog.MarkDelivered(ctx, rec.ID); err != nil {
		// Delivered but not marked: the next claim redelivers, which the
		// consumer's order-id keying absorbs.
		w.log.Error().Err(err).Str("outbox_id", rec.ID.String()).Msg("mark delivered failed")
		return
	}
	if w.metrics != nil {
		w.metrics.OutboxDelivered.WithLabelValues(rec.Kind).Inc()
	}
}

func (w *Worker) failed(ctx context.Context, rec Record, cause error) {
	if w.metrics != nil {
		w.metrics.OutboxFailed.WithLabelValues(rec.Kind).Inc()
	}
	dead, err := w.backlog.MarkFailed(ctx, rec.ID, rec.Attempts, w.cfg.MaxAttempts, w.cfg.BackoffBase, cause)
	if err != nil {
		w.log.Error().Err(err).Str("outbox_id", rec.ID.String()).Msg("mark failed failed")
		return
	}
	if dead {
		w.log.Error().
			Str("outbox_id", rec.ID.String()).
			Str("kind", rec.Kind).
			Str("order_id", rec.OrderID.String()).
			Msg("side effect parked as dead after max attempts")
		if w.metrics != nil {
			w.metrics.OutboxDead.WithLabelValues(rec.Kind).Inc()
		}
	}
}

type errUnknownKind string

func (e errUnknownKind) Error() string { return "no dispatcher for outbox kind " + string(e) }
