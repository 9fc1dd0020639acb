package postgres

import (
	"time"

	"github.com/google/uuid"
)

// List-valued columns are stored as JSON text so the same models work on Postgres and SQLite.

type userModel struct {
	UserID        uuid.UUID  `gorm:"column:user_id;type:uuid;primaryKey"`
	Email         string     `gorm:"column:email;uniqueIndex"`
	DisplayName   string     `gorm:"column:display_name"`
	PasswordHash  string     `gorm:"column:password_hash"`
	Role          string     `gorm:"column:role;index"`
	EmailVerified bool       `gorm:"column:email_verified"`
	IsActive      bool       `gorm:"column:is_active"`
	ReferredBy    *string    `gorm:"column:referred_by"`
	CreatedAt     time.Time  `gorm:"column:created_at"`
	UpdatedAt     time.Time  `gorm:"column:updated_at"`
	DeletedAt     *time.Time `gorm:"column:deleted_at"`
}

func (userModel) TableName() string { return "users" }

type sessionModel struct {
	SessionID      uuid.UUID  `gorm:"column:session_id;type:uuid;primaryKey"`
	UserID         uuid.UUID  `gorm:"column:user_id;type:uuid;index"`
	IPAddress      *string    `gorm:"column:ip_address"`
	UserAgent      string     `gorm:"column:user_agent"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	LastActivityAt time.Time  `gorm:"column:last_activity_at"`
	ExpiresAt      time.Time  `gorm:"column:expires_at"`
	RevokedAt      *time.Time `gorm:"column:revoked_at"`
}

func (sessionModel) TableName() string { return "sessions" }

type passwordResetTokenModel struct {
	TokenID   uuid.UUID  `gorm:"column:token_id;type:uuid;primaryKey"`
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid"`
	TokenHash string     `gorm:"column:token_hash;uniqueIndex"`
	CreatedAt time.Time  `gorm:"column:created_at"`
	ExpiresAt time.Time  `gorm:"column:expires_at"`
	UsedAt    *time.Time `gorm:"column:used_at"`
}

func (passwordResetTokenModel) TableName() string { return "password_reset_tokens" }

type emailVerificationTokenModel struct {
	TokenID    uuid.UUID  `gorm:"column:token_id;type:uuid;primaryKey"`
	UserID     uuid.UUID  `gorm:"column:user_id;type:uuid"`
	TokenHash  string     `gorm:"column:token_hash;uniqueIndex"`
	CreatedAt  time.Time  `gorm:"column:created_at"`
	ExpiresAt  time.Time  `gorm:"column:expires_at"`
	VerifiedAt *time.Time `gorm:"column:verified_at"`
}

func (emailVerificationTokenModel) TableName() string { return "email_verification_tokens" }

type healthProfileModel struct {
	UserID             uuid.UUID  `gorm:"column:user_id;type:uuid;primaryKey"`
	DateOfBirth        *time.Time `gorm:"column:date_of_birth"`
	Sex                string     `gorm:"column:sex"`
	HeightCM           *float64   `gorm:"column:height_cm"`
	WeightKG           *float64   `gorm:"column:weight_kg"`
	Conditions         string     `gorm:"column:conditions;type:text"`
	Allergies          string     `gorm:"column:allergies;type:text"`
	Medications        string     `gorm:"column:medications;type:text"`
	DietaryPreferences string     `gorm:"column:dietary_preferences;type:text"`
	Goals              string     `gorm:"column:goals"`
	AnsweredAt         *time.Time `gorm:"column:answered_at"`
	UpdatedAt          time.Time  `gorm:"column:updated_at"`
}

func (healthProfileModel) TableName() string { return "health_profiles" }

type consentModel struct {
	UserID           uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	GDPRConsent      bool      `gorm:"column:gdpr_consent"`
	MarketingConsent bool      `gorm:"column:marketing_consent"`
	AIRemedyConsent  bool      `gorm:"column:ai_remedy_consent"`
	IPAddress        string    `gorm:"column:ip_address"`
	Version          string    `gorm:"column:version"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

func (consentModel) TableName() string { return "compliance_consents" }

// consentHistoryModel rows are insert-only.
type consentHistoryModel struct {
	EntryID     uuid.UUID `gorm:"column:entry_id;type:uuid;primaryKey"`
	UserID      uuid.UUID `gorm:"column:user_id;type:uuid;index"`
	ConsentType string    `gorm:"column:consent_type"`
	Granted     bool      `gorm:"column:granted"`
	IPAddress   string    `gorm:"column:ip_address"`
	Version     string    `gorm:"column:version"`
	RecordedAt  time.Time `gorm:"column:recorded_at"`
}

func (consentHistoryModel) TableName() string { return "consent_history" }

type ailmentModel struct {
	AilmentID       uuid.UUID `gorm:"column:ailment_id;type:uuid;primaryKey"`
	Name            string    `gorm:"column:name"`
	NameKey         string    `gorm:"column:name_key;uniqueIndex"`
	Description     string    `gorm:"column:description"`
	Category        string    `gorm:"column:category;index"`
	Symptoms        string    `gorm:"column:symptoms;type:text"`
	RelatedRemedies string    `gorm:"column:related_remedies;type:text"`
	RelatedAilments string    `gorm:"column:related_ailments;type:text"`
	CreatedBy       uuid.UUID `gorm:"column:created_by;type:uuid"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

func (ailmentModel) TableName() string { return "ailments" }

type remedyModel struct {
	RemedyID        uuid.UUID `gorm:"column:remedy_id;type:uuid;primaryKey"`
	AilmentID       uuid.UUID `gorm:"column:ailment_id;type:uuid;index"`
	AuthorID        uuid.UUID `gorm:"column:author_id;type:uuid;index"`
	Type            string    `gorm:"column:type"`
	Status          string    `gorm:"column:status;index"`
	Private         bool      `gorm:"column:private"`
	Name            string    `gorm:"column:name"`
	Description     string    `gorm:"column:description"`
	Ingredients     string    `gorm:"column:ingredients;type:text"`
	Instructions    string    `gorm:"column:instructions"`
	Precautions     string    `gorm:"column:precautions;type:text"`
	Disclaimer      string    `gorm:"column:disclaimer"`
	RejectionReason string    `gorm:"column:rejection_reason"`
	RatingAverage   float64   `gorm:"column:rating_average"`
	RatingCount     int       `gorm:"column:rating_count"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

func (remedyModel) TableName() string { return "remedies" }

type reviewModel struct {
	ReviewID  uuid.UUID `gorm:"column:review_id;type:uuid;primaryKey"`
	RemedyID  uuid.UUID `gorm:"column:remedy_id;type:uuid;uniqueIndex:uq_reviews_remedy_user"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;uniqueIndex:uq_reviews_remedy_user"`
	Rating    int       `gorm:"column:rating"`
	Comment   string    `gorm:"column:comment"`
	Status    string    `gorm:"column:status;index"`
	FlagCount int       `gorm:"column:flag_count"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (reviewModel) TableName() string { return "reviews" }

type savedRemedyModel struct {
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	RemedyID  uuid.UUID `gorm:"column:remedy_id;type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (savedRemedyModel) TableName() string { return "saved_remedies" }

type moderationDecisionModel struct {
	DecisionID  uuid.UUID `gorm:"column:decision_id;type:uuid;primaryKey"`
	ModeratorID uuid.UUID `gorm:"column:moderator_id;type:uuid"`
	TargetKind  string    `gorm:"column:target_kind"`
	TargetID    uuid.UUID `gorm:"column:target_id;type:uuid"`
	Action      string    `gorm:"column:action"`
	Reason      string    `gorm:"column:reason"`
	CreatedAt   time.Time `gorm:"column:created_at;index"`
}

func (moderationDecisionModel) TableName() string { return "moderation_decisions" }

type subscriptionModel struct {
	SubscriptionID     uuid.UUID `gorm:"column:subscription_id;type:uuid;primaryKey"`
	UserID             uuid.UUID `gorm:"column:user_id;type:uuid;uniqueIndex"`
	PlanID             string    `gorm:"column:plan_id"`
	Status             string    `gorm:"column:status"`
	CurrentPeriodStart time.Time `gorm:"column:current_period_start"`
	CurrentPeriodEnd   time.Time `gorm:"column:current_period_end;index"`
	CancelAtPeriodEnd  bool      `gorm:"column:cancel_at_period_end"`
	CreatedAt          time.Time `gorm:"column:created_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at"`
}

func (subscriptionModel) TableName() string { return "subscriptions" }

type paymentModel struct {
	PaymentID      uuid.UUID `gorm:"column:payment_id;type:uuid;primaryKey"`
	UserID         uuid.UUID `gorm:"column:user_id;type:uuid;index"`
	PlanID         string    `gorm:"column:plan_id"`
	ProviderRef    string    `gorm:"column:provider_ref;uniqueIndex"`
	AmountCents    int64     `gorm:"column:amount_cents"`
	Currency       string    `gorm:"column:currency"`
	Status         string    `gorm:"column:status"`
	ReferralCode   string    `gorm:"column:referral_code"`
	FailureMessage string    `gorm:"column:failure_message"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (paymentModel) TableName() string { return "payments" }

type receiptModel struct {
	ReceiptID      uuid.UUID `gorm:"column:receipt_id;type:uuid;primaryKey"`
	ReceiptNumber  string    `gorm:"column:receipt_number;uniqueIndex"`
	UserID         uuid.UUID `gorm:"column:user_id;type:uuid;index"`
	PaymentID      uuid.UUID `gorm:"column:payment_id;type:uuid;uniqueIndex"`
	SubscriptionID uuid.UUID `gorm:"column:subscription_id;type:uuid"`
	PlanID         string    `gorm:"column:plan_id"`
	PlanName       string    `gorm:"column:plan_name"`
	AmountCents    int64     `gorm:"column:amount_cents"`
	Currency       string    `gorm:"column:currency"`
	PeriodStart    time.Time `gorm:"column:period_start"`
	PeriodEnd      time.Time `gorm:"column:period_end"`
	IssuedAt       time.Time `gorm:"column:issued_at"`
}

func (receiptModel) TableName() string { return "receipts" }

type affiliateModel struct {
	AffiliateID      uuid.UUID `gorm:"column:affiliate_id;type:uuid;primaryKey"`
	UserID           uuid.UUID `gorm:"column:user_id;type:uuid;uniqueIndex"`
	ReferralCode     string    `gorm:"column:referral_code;uniqueIndex"`
	TotalEarnings    int64     `gorm:"column:total_earnings_cents"`
	PendingEarnings  int64     `gorm:"column:pending_earnings_cents"`
	PaidEarnings     int64     `gorm:"column:paid_earnings_cents"`
	TotalReferrals   int       `gorm:"column:total_referrals"`
	Conversions      int       `gorm:"column:conversions"`
	CommissionRate   float64   `gorm:"column:commission_rate"`
	Status           string    `gorm:"column:status"`
	PayoutMethod     string    `gorm:"column:payout_method"`
	PaymentMethodRef string    `gorm:"column:payment_method_ref"`
	CreatedAt        time.Time `gorm:"column:created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

func (affiliateModel) TableName() string { return "affiliate_programs" }

type outboxModel struct {
	OutboxID       uuid.UUID  `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType      string     `gorm:"column:event_type"`
	PartitionKey   string     `gorm:"column:partition_key"`
	Payload        string     `gorm:"column:payload;type:text"`
	CreatedAt      time.Time  `gorm:"column:created_at;index"`
	PublishedAt    *time.Time `gorm:"column:published_at"`
	RetryCount     int        `gorm:"column:retry_count"`
	LastError      *string    `gorm:"column:last_error"`
	LastErrorAt    *time.Time `gorm:"column:last_error_at"`
	ClaimToken     *string    `gorm:"column:claim_token"`
	ClaimUntil     *time.Time `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
}

func (outboxModel) TableName() string { return "outbox" }

type idempotencyModel struct {
	IdempotencyKey string    `gorm:"column:idempotency_key;primaryKey"`
	RequestHash    string    `gorm:"column:request_hash"`
	Status         string    `gorm:"column:status"`
	ResponseCode   int       `gorm:"column:response_code"`
	ResponseBody   *string   `gorm:"column:response_body;type:text"`
	ExpiresAt      time.Time `gorm:"column:expires_at"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (idempotencyModel) TableName() string { return "idempotency_keys" }

func allModels() []any {
	return []any{
		&userModel{},
		&sessionModel{},
		&passwordResetTokenModel{},
		&emailVerificationTokenModel{},
		&healthProfileModel{},
		&consentModel{},
		&consentHistoryModel{},
		&ailmentModel{},
		&remedyModel{},
		&reviewModel{},
		&savedRemedyModel{},
		&moderationDecisionModel{},
		&subscriptionModel{},
		&paymentModel{},
		&receiptModel{},
		&affiliateModel{},
		&outboxModel{},
		&idempotencyModel{},
	}
}
