package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
)

// Page is an offset window over a listing.
type Page struct {
	Limit  int
	Offset int
}

// CreateUserTxParams captures atomic user-creation inputs.
// The consent record and the registration event are written in the same transaction as the user.
type CreateUserTxParams struct {
	Email           string
	DisplayName     string
	PasswordHash    string
	Role            domain.Role
	ReferredBy      string
	RegisteredAtUTC time.Time
	Consent         domain.ComplianceConsent
}

type UserFilter struct {
	Role   domain.Role
	Search string
}

type UserRepository interface {
	CreateWithOutboxTx(ctx context.Context, params CreateUserTxParams, outboxEvent OutboxEvent) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, userID uuid.UUID) (domain.User, error)
	List(ctx context.Context, filter UserFilter, page Page) ([]domain.User, int64, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string, updatedAt time.Time) error
	SetEmailVerified(ctx context.Context, userID uuid.UUID, updatedAt time.Time) error
	SetRole(ctx context.Context, userID uuid.UUID, role domain.Role, updatedAt time.Time) error
	Deactivate(ctx context.Context, userID uuid.UUID, deactivatedAt time.Time) error
	CountByRole(ctx context.Context) (map[domain.Role]int64, error)
}

type SessionCreateParams struct {
	UserID         uuid.UUID
	IPAddress      string
	UserAgent      string
	ExpiresAt      time.Time
	LastActivityAt time.Time
}

type SessionRepository interface {
	Create(ctx context.Context, params SessionCreateParams) (domain.Session, error)
	GetByID(ctx context.Context, sessionID uuid.UUID) (domain.Session, error)
	TouchActivity(ctx context.Context, sessionID uuid.UUID, touchedAt time.Time) error
	RevokeByID(ctx context.Context, sessionID uuid.UUID, revokedAt time.Time) error
	// RevokeAllByUser returns the sessions it closed.
	RevokeAllByUser(ctx context.Context, userID uuid.UUID, revokedAt time.Time) ([]domain.Session, error)
}

// RecoveryRepository owns one-time password reset and email verification tokens.
// Only token hashes are stored.
type RecoveryRepository interface {
	CreatePasswordResetToken(ctx context.Context, userID uuid.UUID, tokenHash string, createdAt, expiresAt time.Time) error
	ConsumePasswordResetToken(ctx context.Context, tokenHash string, usedAt time.Time) (uuid.UUID, error)
	CreateEmailVerificationToken(ctx context.Context, userID uuid.UUID, tokenHash string, createdAt, expiresAt time.Time) error
	ConsumeEmailVerificationToken(ctx context.Context, tokenHash string, verifiedAt time.Time) (uuid.UUID, error)
}

type ProfileRepository interface {
	// Get returns an empty profile for users that never saved one.
	Get(ctx context.Context, userID uuid.UUID) (domain.HealthProfile, error)
	Upsert(ctx context.Context, profile domain.HealthProfile) error
}

type ConsentRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (domain.ComplianceConsent, error)
	// Update stores the flag snapshot and appends the new history entries.
	Update(ctx context.Context, consent domain.ComplianceConsent, appended []domain.ConsentEvent) error
}

type AilmentFilter struct {
	Category domain.AilmentCategory
	Search   string
}

type AilmentRepository interface {
	Create(ctx context.Context, ailment domain.Ailment) error
	Update(ctx context.Context, ailment domain.Ailment) error
	Delete(ctx context.Context, ailmentID uuid.UUID) error
	GetByID(ctx context.Context, ailmentID uuid.UUID) (domain.Ailment, error)
	List(ctx context.Context, filter AilmentFilter, page Page) ([]domain.Ailment, int64, error)
}

type RemedyFilter struct {
	Type      domain.RemedyType
	AilmentID uuid.UUID
	Search    string
	Status    domain.RemedyStatus
	// Viewer adds the viewer's own remedies, private or unapproved, to the public results.
	Viewer uuid.UUID
	Sort   string
}

type RemedyRepository interface {
	Create(ctx context.Context, remedy domain.Remedy) error
	Update(ctx context.Context, remedy domain.Remedy) error
	Delete(ctx context.Context, remedyID uuid.UUID) error
	GetByID(ctx context.Context, remedyID uuid.UUID) (domain.Remedy, error)
	List(ctx context.Context, filter RemedyFilter, page Page) ([]domain.Remedy, int64, error)
	CountByStatus(ctx context.Context) (map[domain.RemedyStatus]int64, error)
	Save(ctx context.Context, userID, remedyID uuid.UUID, at time.Time) error
	Unsave(ctx context.Context, userID, remedyID uuid.UUID) error
	ListSaved(ctx context.Context, userID uuid.UUID, page Page) ([]domain.Remedy, int64, error)
}

type ReviewRepository interface {
	// Create stores a review and refreshes the remedy rating aggregate.
	Create(ctx context.Context, review domain.Review) error
	GetByID(ctx context.Context, reviewID uuid.UUID) (domain.Review, error)
	ListByRemedy(ctx context.Context, remedyID uuid.UUID, page Page) ([]domain.Review, int64, error)
	ListFlagged(ctx context.Context, page Page) ([]domain.Review, int64, error)
	Flag(ctx context.Context, reviewID uuid.UUID, at time.Time) (domain.Review, error)
}

// ModerationOutcome is the log entry and event written alongside a moderation decision.
type ModerationOutcome struct {
	Decision    domain.ModerationDecision
	OutboxEvent OutboxEvent
}

type ModerationRepository interface {
	// DecideRemedy moves a pending public remedy to next and logs the decision atomically.
	// A remedy that is no longer pending yields ErrConflict.
	DecideRemedy(ctx context.Context, remedyID uuid.UUID, next domain.RemedyStatus, reason string, outcome ModerationOutcome) (domain.Remedy, error)
	// DecideReview changes review visibility, refreshes the remedy rating and logs the decision
	// atomically. A review already in next yields ErrConflict.
	DecideReview(ctx context.Context, reviewID uuid.UUID, next domain.ReviewStatus, outcome ModerationOutcome) (domain.Review, error)
	List(ctx context.Context, page Page) ([]domain.ModerationDecision, int64, error)
}

// ActivationParams describes a confirmed payment that should start a subscription period.
type ActivationParams struct {
	PaymentID     uuid.UUID
	Plan          domain.Plan
	ActivatedAt   time.Time
	ReceiptSuffix string
	OutboxEvent   OutboxEvent
	// Referral, when set, is credited in the same transaction if the program is still active.
	Referral *ReferralCredit
}

// ReferralCredit is the commission owed to an affiliate for a converted payment.
type ReferralCredit struct {
	AffiliateID     uuid.UUID
	CommissionCents int64
	OutboxEvent     OutboxEvent
}

// ActivationResult reports the stored state; Created is false when the payment had already been applied.
type ActivationResult struct {
	Subscription domain.Subscription
	Receipt      domain.Receipt
	Payment      domain.Payment
	Created      bool
	Credited     bool
}

type BillingRepository interface {
	CreatePayment(ctx context.Context, payment domain.Payment) error
	GetPaymentByProviderRef(ctx context.Context, providerRef string) (domain.Payment, error)
	MarkPaymentFailed(ctx context.Context, paymentID uuid.UUID, message string, at time.Time) error
	// ActivateTx marks the payment succeeded, extends or creates the subscription, issues the
	// receipt and enqueues the event atomically. Re-applying a succeeded payment returns the stored result.
	ActivateTx(ctx context.Context, params ActivationParams) (ActivationResult, error)
	GetSubscription(ctx context.Context, userID uuid.UUID) (domain.Subscription, error)
	UpdateSubscription(ctx context.Context, sub domain.Subscription) error
	ListReceipts(ctx context.Context, userID uuid.UUID, page Page) ([]domain.Receipt, int64, error)
	GetReceipt(ctx context.Context, receiptID uuid.UUID) (domain.Receipt, error)
	// ListLapsedSubscriptions returns active and canceled subscriptions whose period ended by now,
	// and past_due ones whose period ended by graceCutoff.
	ListLapsedSubscriptions(ctx context.Context, now, graceCutoff time.Time, limit int) ([]domain.Subscription, error)
	CountActiveSubscriptions(ctx context.Context, now time.Time) (int64, error)
	SumSucceededPayments(ctx context.Context) (int64, error)
}

type AffiliateRepository interface {
	Create(ctx context.Context, program domain.AffiliateProgram) error
	GetByUser(ctx context.Context, userID uuid.UUID) (domain.AffiliateProgram, error)
	GetByID(ctx context.Context, affiliateID uuid.UUID) (domain.AffiliateProgram, error)
	GetByCode(ctx context.Context, code string) (domain.AffiliateProgram, error)
	UpdatePayout(ctx context.Context, affiliateID uuid.UUID, method domain.PayoutMethod, ref string, at time.Time) error
	// SetStatus fails with ErrConflict when a terminated program would be reopened.
	SetStatus(ctx context.Context, affiliateID uuid.UUID, status domain.AffiliateStatus, at time.Time) error
	IncrementReferrals(ctx context.Context, code string, at time.Time) error
	List(ctx context.Context, status domain.AffiliateStatus, page Page) ([]domain.AffiliateProgram, int64, error)
}

// OutboxEvent is the write-side event payload prior to storage.
type OutboxEvent struct {
	EventID      uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

// OutboxRecord represents durable outbox state, including retry/error metadata.
type OutboxRecord struct {
	OutboxID       uuid.UUID
	EventType      string
	PartitionKey   string
	Payload        []byte
	RetryCount     int
	LastError      *string
	CreatedAt      time.Time
	PublishedAt    *time.Time
	ClaimToken     *string
	ClaimUntil     *time.Time
	DeadLetteredAt *time.Time
}

type OutboxRepository interface {
	Enqueue(ctx context.Context, event OutboxEvent) error
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
}

// IdempotencyRecord tracks a previously accepted mutating request.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	Status       string
	ResponseCode int
	ResponseBody []byte
	ExpiresAt    time.Time
}

type IdempotencyRepository interface {
	Get(ctx context.Context, key string) (*IdempotencyRecord, error)
	Reserve(ctx context.Context, key, requestHash string, expiresAt time.Time) error
	Complete(ctx context.Context, key string, responseCode int, responseBody []byte, at time.Time) error
	// Release drops a pending claim so the request can be retried with the same key.
	Release(ctx context.Context, key string) error
}
