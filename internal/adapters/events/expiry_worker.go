package events

import (
	"context"
	"log/slog"
	"time"
)

// SubscriptionExpirer moves lapsed subscriptions to their next state.
type SubscriptionExpirer interface {
	ExpireSubscriptions(ctx context.Context) (int, error)
}

// ExpiryWorker runs the subscription lifecycle sweep on a fixed interval.
type ExpiryWorker struct {
	logger   *slog.Logger
	expirer  SubscriptionExpirer
	interval time.Duration
}

func NewExpiryWorker(logger *slog.Logger, expirer SubscriptionExpirer, interval time.Duration) *ExpiryWorker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &ExpiryWorker{logger: logger, expirer: expirer, interval: interval}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	return poll(ctx, w.interval, func(ctx context.Context) {
		changed, err := w.expirer.ExpireSubscriptions(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			w.logger.ErrorContext(ctx, "subscription sweep failed",
				"module", "events.expiry_worker",
				"layer", "adapter",
				"operation", "expire_subscriptions",
				"outcome", "failure",
				"error", err,
			)
		case changed > 0:
			w.logger.InfoContext(ctx, "subscription sweep completed",
				"module", "events.expiry_worker",
				"layer", "adapter",
				"operation", "expire_subscriptions",
				"outcome", "success",
				"changed_count", changed,
			)
		}
	})
}
