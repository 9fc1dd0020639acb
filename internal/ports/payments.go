package ports

import "context"

// PaymentIntent is the provider-side view of a checkout.
type PaymentIntent struct {
	ProviderRef  string
	ClientSecret string
	Status       string
	AmountCents  int64
	Currency     string
}

const (
	IntentSucceeded      = "succeeded"
	IntentProcessing     = "processing"
	IntentRequiresAction = "requires_action"
	IntentCanceled       = "canceled"
	IntentFailed         = "failed"
)

type CreateIntentParams struct {
	AmountCents    int64
	Currency       string
	CustomerEmail  string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

// WebhookEvent is a verified provider notification.
type WebhookEvent struct {
	Type          string
	ProviderRef   string
	FailureReason string
}

type PaymentGateway interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (PaymentIntent, error)
	GetIntent(ctx context.Context, providerRef string) (PaymentIntent, error)
	ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
}
