package application

const (
	// eventTypeUserRegistered is emitted when a user account is created.
	eventTypeUserRegistered = "user.registered"
	// eventTypeUserDeactivated is emitted when an account is closed by its owner or an admin.
	eventTypeUserDeactivated       = "user.deactivated"
	eventTypeUserRoleChanged       = "user.role_changed"
	eventTypeEmailVerifyRequested  = "auth.email_verification.requested"
	eventTypeEmailVerified         = "auth.email_verified"
	eventTypePasswordResetRequest  = "auth.password_reset.requested"
	eventTypePasswordChanged       = "auth.password_changed"
	eventTypeProfileUpdated        = "profile.updated"
	eventTypeConsentUpdated        = "consent.updated"
	eventTypeRemedySubmitted       = "remedy.submitted"
	eventTypeRemedyGenerated       = "remedy.generated"
	eventTypeReviewCreated         = "review.created"
	eventTypeModerationDecision    = "moderation.decision"
	eventTypeSubscriptionActivated = "subscription.activated"
	eventTypeSubscriptionCanceled  = "subscription.canceled"
	eventTypeSubscriptionExpired   = "subscription.expired"
	eventTypePaymentFailed         = "payment.failed"
	eventTypeAffiliateConversion   = "affiliate.conversion"
)
