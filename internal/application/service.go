package application

import (
	"time"

	"github.com/remlyo/remlyo-api/internal/domain"
	"github.com/remlyo/remlyo-api/internal/ports"
)

type Service struct {
	cfg         Config
	users       ports.UserRepository
	sessions    ports.SessionRepository
	recovery    ports.RecoveryRepository
	profiles    ports.ProfileRepository
	consents    ports.ConsentRepository
	ailments    ports.AilmentRepository
	remedies    ports.RemedyRepository
	reviews     ports.ReviewRepository
	moderation  ports.ModerationRepository
	billing     ports.BillingRepository
	affiliates  ports.AffiliateRepository
	outbox      ports.OutboxRepository
	idempotency ports.IdempotencyRepository
	lockouts    ports.LockoutStore
	revocations ports.SessionRevocationStore
	flowCache   ports.FlowStatusCache
	quotas      ports.QuotaCounter
	hasher      ports.PasswordHasher
	tokenSigner ports.TokenSigner
	payments    ports.PaymentGateway
	generator   ports.RemedyGenerator
	metrics     ports.Metrics
	plans       map[string]domain.Plan
	nowFn       func() time.Time
}

type Dependencies struct {
	Config      Config
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
	Lockouts    ports.LockoutStore
	Revocations ports.SessionRevocationStore
	FlowCache   ports.FlowStatusCache
	Quotas      ports.QuotaCounter
	Hasher      ports.PasswordHasher
	TokenSigner ports.TokenSigner
	Payments    ports.PaymentGateway
	// Generator is nil when AI generation is disabled.
	Generator ports.RemedyGenerator
	Metrics   ports.Metrics
}

func NewService(deps Dependencies) *Service {
	plans := make(map[string]domain.Plan, len(deps.Config.Plans))
	for _, p := range deps.Config.Plans {
		plans[p.PlanID] = p
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Service{
		cfg:         deps.Config,
		users:       deps.Users,
		sessions:    deps.Sessions,
		recovery:    deps.Recovery,
		profiles:    deps.Profiles,
		consents:    deps.Consents,
		ailments:    deps.Ailments,
		remedies:    deps.Remedies,
		reviews:     deps.Reviews,
		moderation:  deps.Moderation,
		billing:     deps.Billing,
		affiliates:  deps.Affiliates,
		outbox:      deps.Outbox,
		idempotency: deps.Idempotency,
		lockouts:    deps.Lockouts,
		revocations: deps.Revocations,
		flowCache:   deps.FlowCache,
		quotas:      deps.Quotas,
		hasher:      deps.Hasher,
		tokenSigner: deps.TokenSigner,
		payments:    deps.Payments,
		generator:   deps.Generator,
		metrics:     metrics,
		plans:       plans,
		nowFn:       func() time.Time { return time.Now().UTC() },
	}
}

// Plans returns the configured plans in configuration order.
func (s *Service) Plans() []domain.Plan {
	out := make([]domain.Plan, len(s.cfg.Plans))
	copy(out, s.cfg.Plans)
	return out
}

type nopMetrics struct{}

func (nopMetrics) Registration(string)               {}
func (nopMetrics) Checkout(string)                   {}
func (nopMetrics) Generation(string)                 {}
func (nopMetrics) ModerationDecision(string, string) {}
