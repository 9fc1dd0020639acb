package postgres

import (
	"github.com/remlyo/remlyo-api/internal/ports"
	"gorm.io/gorm"
)

type Repositories struct {
	Users       ports.UserRepository
	Sessions    ports.SessionRepository
	Recovery    ports.RecoveryRepository
	Profiles    ports.ProfileRepository
	Consents    ports.ConsentRepository
	Ailments    ports.AilmentRepository
	Remedies    ports.RemedyRepository
	Reviews     ports.ReviewRepository
	Moderation  ports.ModerationRepository
	Billing     ports.BillingRepository
	Affiliates  ports.AffiliateRepository
	Outbox      ports.OutboxRepository
	Idempotency ports.IdempotencyRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Users:       &userRepository{db: db},
		Sessions:    &sessionRepository{db: db},
		Recovery:    &recoveryRepository{db: db},
		Profiles:    &profileRepository{db: db},
		Consents:    &consentRepository{db: db},
		Ailments:    &ailmentRepository{db: db},
		Remedies:    &remedyRepository{db: db},
		Reviews:     &reviewRepository{db: db},
		Moderation:  &moderationRepository{db: db},
		Billing:     &billingRepository{db: db},
		Affiliates:  &affiliateRepository{db: db},
		Outbox:      &outboxRepository{db: db},
		Idempotency: &idempotencyRepository{db: db},
	}
}

const likeClause = " LIKE ? ESCAPE '\\'"
