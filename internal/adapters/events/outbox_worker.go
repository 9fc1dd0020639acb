package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/ports"
)

// RelayConfig tunes the outbox relay. Zero values take the defaults below.
type RelayConfig struct {
	Interval   time.Duration
	BatchSize  int
	ClaimTTL   time.Duration
	MaxRetries int
}

func (c RelayConfig) withDefaults() RelayConfig {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.ClaimTTL <= 0 {
		c.ClaimTTL = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	return c
}

// RelayObserver counts relay outcomes; nil disables it.
type RelayObserver interface {
	OutboxRelayed(outcome string)
}

type relayOutcome string

const (
	relayPublished    relayOutcome = "published"
	relayRetry        relayOutcome = "retry"
	relayDeadLettered relayOutcome = "dead_lettered"
)

// OutboxWorker moves committed outbox rows onto the event bus.
type OutboxWorker struct {
	logger    *slog.Logger
	outbox    ports.OutboxRepository
	publisher ports.EventPublisher
	observer  RelayObserver
	cfg       RelayConfig
	now       func() time.Time
}

func NewOutboxWorker(logger *slog.Logger, outbox ports.OutboxRepository, publisher ports.EventPublisher, observer RelayObserver, cfg RelayConfig) *OutboxWorker {
	return &OutboxWorker{
		logger:    logger.With("module", "events.outbox_worker", "layer", "adapter"),
		outbox:    outbox,
		publisher: publisher,
		observer:  observer,
		cfg:       cfg.withDefaults(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (w *OutboxWorker) Run(ctx context.Context) error {
	return poll(ctx, w.cfg.Interval, func(ctx context.Context) {
		if _, err := w.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "outbox claim failed",
				"operation", "outbox_process_once", "outcome", "failure", "error", err)
		}
	})
}

// ProcessOnce leases one batch and relays it, returning the number published.
func (w *OutboxWorker) ProcessOnce(ctx context.Context) (int, error) {
	lease := uuid.NewString()
	records, err := w.outbox.ClaimUnpublished(ctx, w.cfg.BatchSize, lease, w.now().Add(w.cfg.ClaimTTL))
	if err != nil || len(records) == 0 {
		return 0, err
	}

	tally := map[relayOutcome]int{}
	for _, rec := range records {
		outcome := w.relay(ctx, lease, rec)
		tally[outcome]++
		if w.observer != nil {
			w.observer.OutboxRelayed(string(outcome))
		}
	}
	w.logger.InfoContext(ctx, "outbox batch relayed",
		"operation", "outbox_process_once",
		"outcome", "success",
		"batch_size", len(records),
		"published_count", tally[relayPublished],
		"retry_count", tally[relayRetry],
		"dead_lettered_count", tally[relayDeadLettered],
	)
	return tally[relayPublished], nil
}

func (w *OutboxWorker) relay(ctx context.Context, lease string, rec ports.OutboxRecord) relayOutcome {
	if rec.RetryCount >= w.cfg.MaxRetries {
		_ = w.outbox.MarkDeadLettered(ctx, rec.OutboxID, lease, "retry limit reached", w.now())
		return relayDeadLettered
	}
	err := w.publisher.Publish(ctx, rec.EventType, rec.Payload, rec.PartitionKey)
	if err == nil {
		_ = w.outbox.MarkPublished(ctx, rec.OutboxID, lease, w.now())
		return relayPublished
	}

	attempt := rec.RetryCount + 1
	log := w.logger.With("operation", "publish_event", "outcome", "failure",
		"outbox_id", rec.OutboxID, "event_type", rec.EventType, "attempt", attempt, "error", err)
	if attempt >= w.cfg.MaxRetries {
		log.ErrorContext(ctx, "outbox event dead-lettered")
		_ = w.outbox.MarkDeadLettered(ctx, rec.OutboxID, lease, err.Error(), w.now())
		return relayDeadLettered
	}
	log.WarnContext(ctx, "outbox publish failed, will retry")
	_ = w.outbox.MarkFailed(ctx, rec.OutboxID, lease, err.Error(), w.now())
	return relayRetry
}

// poll runs fn immediately and then every interval until ctx ends.
func poll(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		fn(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
