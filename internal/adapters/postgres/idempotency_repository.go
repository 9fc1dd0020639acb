package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/remlyo/remlyo-api/internal/domain"
	"github.com/remlyo/remlyo-api/internal/ports"
	"gorm.io/gorm"
)

const (
	idempotencyPending   = "PENDING"
	idempotencyCompleted = "COMPLETED"
)

type idempotencyRepository struct {
	db *gorm.DB
}

// Get ignores lapsed records; the next Reserve of the key clears them.
func (r *idempotencyRepository) Get(ctx context.Context, key string) (*ports.IdempotencyRecord, error) {
	var row idempotencyModel
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ? AND expires_at > ?", key, time.Now().UTC()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec := &ports.IdempotencyRecord{
		Key:          row.IdempotencyKey,
		RequestHash:  row.RequestHash,
		Status:       row.Status,
		ResponseCode: row.ResponseCode,
		ExpiresAt:    row.ExpiresAt,
	}
	if row.ResponseBody != nil {
		rec.ResponseBody = []byte(*row.ResponseBody)
	}
	return rec, nil
}

// Reserve claims key for a request. A live claim by anyone, including the same request, is a
// conflict; a lapsed one is replaced.
func (r *idempotencyRepository) Reserve(ctx context.Context, key, requestHash string, expiresAt time.Time) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("idempotency_key = ? AND expires_at <= ?", key, now).
			Delete(&idempotencyModel{}).Error; err != nil {
			return err
		}
		err := tx.Create(&idempotencyModel{
			IdempotencyKey: key,
			RequestHash:    requestHash,
			Status:         idempotencyPending,
			ExpiresAt:      expiresAt,
			CreatedAt:      now,
			UpdatedAt:      now,
		}).Error
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	})
}

func (r *idempotencyRepository) Complete(ctx context.Context, key string, responseCode int, responseBody []byte, at time.Time) error {
	values := map[string]any{
		"status":        idempotencyCompleted,
		"response_code": responseCode,
		"updated_at":    at,
	}
	if len(responseBody) > 0 {
		values["response_body"] = string(responseBody)
	}
	return r.db.WithContext(ctx).Model(&idempotencyModel{}).
		Where("idempotency_key = ?", key).
		Updates(values).Error
}

func (r *idempotencyRepository) Release(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).
		Where("idempotency_key = ? AND status = ?", key, idempotencyPending).
		Delete(&idempotencyModel{}).Error
}
