package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clouddev-platform/auth-service/internal/ports"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultBatchSize    = 100
	defaultClaimTTL     = 30 * time.Second
	defaultMaxRetries   = 5
)

// OutboxWorker drains the transactional outbox into the broker. Records are
// claimed with a lease token so a crashed worker's batch becomes claimable
// again once the lease expires, and completion marks are rejected by the
// store if the lease has moved on.
type OutboxWorker struct {
	logger     *slog.Logger
	outbox     ports.OutboxRepository
	publisher  ports.EventPublisher
	interval   time.Duration
	batchSize  int
	claimTTL   time.Duration
	maxRetries int
}

func NewOutboxWorker(
	logger *slog.Logger,
	outbox ports.OutboxRepository,
	publisher ports.EventPublisher,
	interval time.Duration,
	batchSize int,
	claimTTL time.Duration,
	maxRetries int,
) *OutboxWorker {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if claimTTL <= 0 {
		claimTTL = defaultClaimTTL
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &OutboxWorker{
		logger:     logger,
		outbox:     outbox,
		publisher:  publisher,
		interval:   interval,
		batchSize:  batchSize,
		claimTTL:   claimTTL,
		maxRetries: maxRetries,
	}
}

// Run polls until the context is cancelled. A failed iteration is logged and
// retried on the next tick; the claim lease keeps half-processed batches safe.
func (w *OutboxWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.processOnce(ctx); err != nil {
			w.logger.Warn("outbox drain failed",
				slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *OutboxWorker) processOnce(ctx context.Context) error {
	claimToken := uuid.NewString()
	records, err := w.outbox.ClaimUnpublished(ctx, w.batchSize, claimToken, time.Now().UTC().Add(w.claimTTL))
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	now := time.Now().UTC()
	var published, retried, dead int
	for _, rec := range records {
		switch w.deliver(ctx, rec, claimToken, now) {
		case deliveryPublished:
			published++
		case deliveryRetry:
			retried++
		case deliveryDead:
			dead++
		}
	}
	w.logger.Info("outbox batch drained",
		slog.Int("claimed", len(records)),
		slog.Int("published", published),
		slog.Int("retry_scheduled", retried),
		slog.Int("dead_lettered", dead))
	return nil
}

type deliveryOutcome int

const (
	deliveryPublished deliveryOutcome = iota
	deliveryRetry
	deliveryDead
)

// deliver attempts one publish. A record already at the retry limit skips
// the broker and goes straight to the DLQ.
func (w *OutboxWorker) deliver(ctx context.Context, rec ports.OutboxRecord, claimToken string, now time.Time) deliveryOutcome {
	if rec.RetryCount >= w.maxRetries {
		_ = w.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, "retry limit reached", now)
		return deliveryDead
	}

	err := w.publisher.Publish(ctx, rec.EventType, rec.Payload, rec.PartitionKey)
	if err == nil {
		_ = w.outbox.MarkPublished(ctx, rec.OutboxID, claimToken, now)
		return deliveryPublished
	}

	attempts := rec.RetryCount + 1
	if attempts >= w.maxRetries {
		w.logger.Error("outbox record dead-lettered",
			slog.String("outbox_id", rec.OutboxID.String()),
			slog.String("event_type", rec.EventType),
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()))
		_ = w.outbox.MarkDeadLettered(ctx, rec.OutboxID, claimToken, err.Error(), now)
		return deliveryDead
	}

	w.logger.Warn("outbox publish failed, will retry",
		slog.String("outbox_id", rec.OutboxID.String()),
		slog.String("event_type", rec.EventType),
		slog.Int("attempts", attempts),
		slog.String("error", err.Error()))
	_ = w.outbox.MarkFailed(ctx, rec.OutboxID, claimToken, err.Error(), now)
	return deliveryRetry
}
