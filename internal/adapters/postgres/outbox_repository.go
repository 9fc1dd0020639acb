package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type outboxRepository struct {
	db *gorm.DB
}

func (r *outboxRepository) Enqueue(ctx context.Context, event ports.OutboxEvent) error {
	return enqueueTx(r.db.WithContext(ctx), event)
}

// enqueueTx writes an outbox row on tx so callers can commit it with their own state change.
func enqueueTx(tx *gorm.DB, event ports.OutboxEvent) error {
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	payload := event.Payload
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}
	rec := outboxModel{
		OutboxID:     event.EventID,
		EventType:    event.EventType,
		PartitionKey: event.PartitionKey,
		Payload:      string(payload),
		CreatedAt:    event.OccurredAt,
	}
	return tx.Create(&rec).Error
}

// ClaimUnpublished leases up to limit pending rows, oldest first, to claimToken until
// claimUntil. A lapsed lease is claimable again, so a crashed worker does not strand events.
func (r *outboxRepository) ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]ports.OutboxRecord, error) {
	switch {
	case claimToken == "":
		return nil, fmt.Errorf("claim token is required")
	case limit <= 0:
		return nil, nil
	}

	var rows []outboxModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		candidates := pending(tx.Model(&outboxModel{})).
			Select("outbox_id").
			Where("claim_until IS NULL OR claim_until < ?", time.Now().UTC()).
			Order("created_at ASC").
			Limit(limit)
		if tx.Dialector.Name() == "postgres" {
			candidates = candidates.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		lease := map[string]any{"claim_token": claimToken, "claim_until": claimUntil}
		if err := tx.Model(&outboxModel{}).Where("outbox_id IN (?)", candidates).Updates(lease).Error; err != nil {
			return err
		}
		return pending(tx.Where("claim_token = ?", claimToken)).Order("created_at ASC").Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	out := make([]ports.OutboxRecord, len(rows))
	for i, row := range rows {
		out[i] = toOutboxRecord(row)
	}
	return out, nil
}

// pending keeps rows that are neither published nor dead-lettered.
func pending(q *gorm.DB) *gorm.DB {
	return q.Where("published_at IS NULL AND dead_lettered_at IS NULL")
}

func (r *outboxRepository) MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error {
	return r.release(ctx, outboxID, claimToken, map[string]any{"published_at": at})
}

func (r *outboxRepository) MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	return r.release(ctx, outboxID, claimToken, failure(errMsg, at))
}

func (r *outboxRepository) MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	values := failure(errMsg, at)
	values["dead_lettered_at"] = at
	return r.release(ctx, outboxID, claimToken, values)
}

func failure(errMsg string, at time.Time) map[string]any {
	return map[string]any{
		"retry_count":   gorm.Expr("retry_count + 1"),
		"last_error":    errMsg,
		"last_error_at": at,
	}
}

// release applies values and drops the lease, but only while claimToken still holds it.
func (r *outboxRepository) release(ctx context.Context, outboxID uuid.UUID, claimToken string, values map[string]any) error {
	values["claim_token"] = nil
	values["claim_until"] = nil
	return r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", outboxID).
		Where("claim_token = ?", claimToken).
		Updates(values).Error
}
