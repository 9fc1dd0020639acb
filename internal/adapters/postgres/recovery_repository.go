package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// oneTimeToken describes one of the single-use token tables and the column stamped when a
// token is spent.
type oneTimeToken struct {
	model    func() any
	spentCol string
	build    func(userID uuid.UUID, tokenHash string, createdAt, expiresAt time.Time) any
}

var (
	passwordResetTokens = oneTimeToken{
		model:    func() any { return &passwordResetTokenModel{} },
		spentCol: "used_at",
		build: func(userID uuid.UUID, tokenHash string, createdAt, expiresAt time.Time) any {
			return &passwordResetTokenModel{TokenID: uuid.New(), UserID: userID, TokenHash: tokenHash, CreatedAt: createdAt, ExpiresAt: expiresAt}
		},
	}
	emailVerificationTokens = oneTimeToken{
		model:    func() any { return &emailVerificationTokenModel{} },
		spentCol: "verified_at",
		build: func(userID uuid.UUID, tokenHash string, createdAt, expiresAt time.Time) any {
			return &emailVerificationTokenModel{TokenID: uuid.New(), UserID: userID, TokenHash: tokenHash, CreatedAt: createdAt, ExpiresAt: expiresAt}
		},
	}
)

type recoveryRepository struct {
	db *gorm.DB
}

func (r *recoveryRepository) CreatePasswordResetToken(ctx context.Context, userID uuid.UUID, tokenHash string, createdAt, expiresAt time.Time) error {
	return r.issue(ctx, passwordResetTokens, userID, tokenHash, createdAt, expiresAt)
}

func (r *recoveryRepository) ConsumePasswordResetToken(ctx context.Context, tokenHash string, usedAt time.Time) (uuid.UUID, error) {
	return r.consume(ctx, passwordResetTokens, tokenHash, usedAt)
}

func (r *recoveryRepository) CreateEmailVerificationToken(ctx context.Context, userID uuid.UUID, tokenHash string, createdAt, expiresAt time.Time) error {
	return r.issue(ctx, emailVerificationTokens, userID, tokenHash, createdAt, expiresAt)
}

func (r *recoveryRepository) ConsumeEmailVerificationToken(ctx context.Context, tokenHash string, verifiedAt time.Time) (uuid.UUID, error) {
	return r.consume(ctx, emailVerificationTokens, tokenHash, verifiedAt)
}

// issue stores a new token and spends every earlier unspent token of the same kind for the
// user, so only the most recent link works.
func (r *recoveryRepository) issue(ctx context.Context, kind oneTimeToken, userID uuid.UUID, tokenHash string, createdAt, expiresAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(kind.model()).
			Where("user_id = ?", userID).
			Where(kind.spentCol+" IS NULL").
			Update(kind.spentCol, createdAt).Error; err != nil {
			return err
		}
		return tx.Create(kind.build(userID, tokenHash, createdAt, expiresAt)).Error
	})
}

func (r *recoveryRepository) consume(ctx context.Context, kind oneTimeToken, tokenHash string, at time.Time) (uuid.UUID, error) {
	var row struct {
		TokenID uuid.UUID
		UserID  uuid.UUID
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lookup := tx.Model(kind.model()).
			Select("token_id, user_id").
			Where("token_hash = ?", tokenHash).
			Where(kind.spentCol+" IS NULL").
			Where("expires_at > ?", at)
		if tx.Dialector.Name() == "postgres" {
			lookup = lookup.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := lookup.Take(&row).Error; err != nil {
			return notFound(err)
		}
		res := tx.Model(kind.model()).
			Where("token_id = ?", row.TokenID).
			Where(kind.spentCol+" IS NULL").
			Update(kind.spentCol, at)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return row.UserID, nil
}
