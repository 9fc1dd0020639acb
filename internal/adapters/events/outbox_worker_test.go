package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeOutbox struct {
	mu           sync.Mutex
	records      []ports.OutboxRecord
	published    []uuid.UUID
	failed       []uuid.UUID
	deadLettered []uuid.UUID
}

func (f *fakeOutbox) Enqueue(context.Context, ports.OutboxEvent) error { return nil }

func (f *fakeOutbox) ClaimUnpublished(_ context.Context, limit int, token string, until time.Time) ([]ports.OutboxRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.records
	if len(out) > limit {
		out = out[:limit]
	}
	f.records = f.records[len(out):]
	return out, nil
}

func (f *fakeOutbox) MarkPublished(_ context.Context, id uuid.UUID, _ string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, id)
	return nil
}

func (f *fakeOutbox) MarkFailed(_ context.Context, id uuid.UUID, _, _ string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeOutbox) MarkDeadLettered(_ context.Context, id uuid.UUID, _, _ string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadLettered = append(f.deadLettered, id)
	return nil
}

type fakePublisher struct {
	mu   sync.Mutex
	fail map[string]bool
	keys []string
}

func (p *fakePublisher) Publish(_ context.Context, eventType string, _ []byte, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail[eventType] {
		return errors.New("broker down")
	}
	p.keys = append(p.keys, key)
	return nil
}

type outcomeCounter struct {
	seen map[string]int
}

func (c *outcomeCounter) OutboxRelayed(outcome string) {
	if c.seen == nil {
		c.seen = map[string]int{}
	}
	c.seen[outcome]++
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOutboxWorkerProcessOnce(t *testing.T) {
	ok := ports.OutboxRecord{OutboxID: uuid.New(), EventType: "user.registered", PartitionKey: "u1", Payload: []byte(`{}`)}
	retry := ports.OutboxRecord{OutboxID: uuid.New(), EventType: "payment.failed", PartitionKey: "u2", RetryCount: 1}
	exhausted := ports.OutboxRecord{OutboxID: uuid.New(), EventType: "payment.failed", PartitionKey: "u3", RetryCount: 4}
	over := ports.OutboxRecord{OutboxID: uuid.New(), EventType: "user.registered", PartitionKey: "u4", RetryCount: 5}

	outbox := &fakeOutbox{records: []ports.OutboxRecord{ok, retry, exhausted, over}}
	publisher := &fakePublisher{fail: map[string]bool{"payment.failed": true}}
	observer := &outcomeCounter{}
	worker := NewOutboxWorker(discardLogger(), outbox, publisher, observer, RelayConfig{Interval: time.Second, BatchSize: 10, ClaimTTL: time.Second, MaxRetries: 5})

	published, err := worker.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, published)
	assert.Equal(t, []string{"u1"}, publisher.keys)
	assert.Equal(t, []uuid.UUID{ok.OutboxID}, outbox.published)
	assert.Equal(t, []uuid.UUID{retry.OutboxID}, outbox.failed)
	assert.ElementsMatch(t, []uuid.UUID{exhausted.OutboxID, over.OutboxID}, outbox.deadLettered)
	assert.Equal(t, map[string]int{"published": 1, "retry": 1, "dead_lettered": 2}, observer.seen)

	published, err = worker.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, published)
}

func TestOutboxWorkerRunStopsOnCancel(t *testing.T) {
	outbox := &fakeOutbox{}
	worker := NewOutboxWorker(discardLogger(), outbox, &fakePublisher{}, nil, RelayConfig{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

type countingExpirer struct {
	mu    sync.Mutex
	calls int
}

func (c *countingExpirer) ExpireSubscriptions(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return 1, nil
}

func TestExpiryWorkerRunsUntilCanceled(t *testing.T) {
	expirer := &countingExpirer{}
	worker := NewExpiryWorker(discardLogger(), expirer, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := worker.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	expirer.mu.Lock()
	defer expirer.mu.Unlock()
	assert.GreaterOrEqual(t, expirer.calls, 2)
}
