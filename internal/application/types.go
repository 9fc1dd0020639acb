package application

import (
	"time"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
)

type Config struct {
	TokenTTL             time.Duration
	SessionTTL           time.Duration
	SessionAbsoluteTTL   time.Duration
	FailedLoginThreshold int
	LockoutDuration      time.Duration
	VerifyEmailLimit     int
	VerifyEmailWindow    time.Duration
	FlowCacheTTL         time.Duration
	ConsentVersion       string

	Plans              []domain.Plan
	PastDueGrace       time.Duration
	CommissionRate     float64
	AIDailyQuota       int
	AIGenerateTimeout  time.Duration
	IdempotencyKeepFor time.Duration
	ExpiryBatchSize    int
}

// Principal is the authenticated caller resolved from a bearer token.
type Principal struct {
	UserID    uuid.UUID   `json:"user_id"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	SessionID uuid.UUID   `json:"session_id"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// PageQuery is the raw page/limit pair from a listing request.
type PageQuery struct {
	Page  int
	Limit int
}

// PageMeta is returned with every paginated listing.
type PageMeta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

type RegisterRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	DisplayName     string `json:"display_name"`
	ReferralCode    string `json:"referral_code,omitempty"`
	IPAddress       string `json:"-"`
}

type RegisterResponse struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
}

type LoginRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	SessionID uuid.UUID `json:"session_id"`
	ExpiresIn int64     `json:"expires_in"`
	User      UserView  `json:"user"`
}

type RefreshResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

type UserView struct {
	UserID        uuid.UUID   `json:"user_id"`
	Email         string      `json:"email"`
	DisplayName   string      `json:"display_name"`
	Role          domain.Role `json:"role"`
	EmailVerified bool        `json:"email_verified"`
	IsActive      bool        `json:"is_active"`
	CreatedAt     time.Time   `json:"created_at"`
}

// AuthStatus is the first of the two lookups the client combines into a flow status.
type AuthStatus struct {
	Authenticated bool `json:"authenticated"`
	EmailVerified bool `json:"email_verified"`
}

type PasswordResetRequest struct {
	Token           string `json:"token"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

type FlowView struct {
	Status   domain.FlowStatus `json:"status"`
	Redirect string            `json:"redirect,omitempty"`
	Allowed  bool              `json:"allowed"`
	Target   string            `json:"target"`
}

type AilmentQuery struct {
	PageQuery
	Category string
	Search   string
}

type AilmentList struct {
	Items []domain.Ailment `json:"items"`
	Page  PageMeta         `json:"pagination"`
}

type AilmentDetail struct {
	domain.Ailment
	Remedies []domain.Remedy `json:"remedies"`
}

type RemedyQuery struct {
	PageQuery
	Type      string
	AilmentID string
	Search    string
	Sort      string
	Mine      bool
}

type RemedyList struct {
	Items []domain.Remedy `json:"items"`
	Page  PageMeta        `json:"pagination"`
}

type ReviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type ReviewList struct {
	Items []domain.Review `json:"items"`
	Page  PageMeta        `json:"pagination"`
}

type GenerateRemedyRequest struct {
	AilmentID string `json:"ailment_id"`
	Notes     string `json:"notes,omitempty"`
}

type SubscriptionStatusView struct {
	Active            bool                      `json:"active"`
	Plan              *domain.Plan              `json:"plan,omitempty"`
	Status            domain.SubscriptionStatus `json:"status,omitempty"`
	CurrentPeriodEnd  *time.Time                `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool                      `json:"cancel_at_period_end"`
}

type PrecheckRequest struct {
	PlanID string `json:"plan_id"`
}

type PrecheckResponse struct {
	PlanID      string `json:"plan_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Eligible    bool   `json:"eligible"`
}

type CheckoutRequest struct {
	PlanID       string `json:"plan_id"`
	ReferralCode string `json:"referral_code,omitempty"`
}

type CheckoutResponse struct {
	PaymentID       uuid.UUID `json:"payment_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	ClientSecret    string    `json:"client_secret"`
	AmountCents     int64     `json:"amount_cents"`
	Currency        string    `json:"currency"`
}

type ConfirmRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

type ConfirmResponse struct {
	Subscription domain.Subscription `json:"subscription"`
	Receipt      domain.Receipt      `json:"receipt"`
}

type ReceiptList struct {
	Items []domain.Receipt `json:"items"`
	Page  PageMeta         `json:"pagination"`
}

type PayoutRequest struct {
	PayoutMethod     string `json:"payout_method"`
	PaymentMethodRef string `json:"payment_method_ref"`
}

type AffiliateResolution struct {
	ReferralCode string `json:"referral_code"`
	Valid        bool   `json:"valid"`
}

type AffiliateList struct {
	Items []domain.AffiliateProgram `json:"items"`
	Page  PageMeta                  `json:"pagination"`
}

type ModerationQueue struct {
	Kind     string          `json:"kind"`
	Remedies []domain.Remedy `json:"remedies,omitempty"`
	Reviews  []domain.Review `json:"reviews,omitempty"`
	Page     PageMeta        `json:"pagination"`
}

type ModerationLog struct {
	Items []domain.ModerationDecision `json:"items"`
	Page  PageMeta                    `json:"pagination"`
}

type UserQuery struct {
	PageQuery
	Role   string
	Search string
}

type UserList struct {
	Items []UserView `json:"items"`
	Page  PageMeta   `json:"pagination"`
}

type AdminStats struct {
	UsersByRole         map[domain.Role]int64         `json:"users_by_role"`
	RemediesByStatus    map[domain.RemedyStatus]int64 `json:"remedies_by_status"`
	ActiveSubscriptions int64                         `json:"active_subscriptions"`
	RevenueCents        int64                         `json:"revenue_cents"`
}
