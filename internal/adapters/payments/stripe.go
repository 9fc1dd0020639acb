package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/remlyo/remlyo-api/internal/ports"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeGateway creates and inspects Stripe PaymentIntents.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

func NewStripeGateway(secretKey, webhookSecret string) (*StripeGateway, error) {
	if secretKey == "" {
		return nil, errors.New("stripe secret key is required")
	}
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{api: api, webhookSecret: webhookSecret}, nil
}

func (g *StripeGateway) CreateIntent(ctx context.Context, params ports.CreateIntentParams) (ports.PaymentIntent, error) {
	in := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(params.AmountCents),
		Currency: stripe.String(strings.ToLower(params.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	in.Context = ctx
	if params.Description != "" {
		in.Description = stripe.String(params.Description)
	}
	if params.CustomerEmail != "" {
		in.ReceiptEmail = stripe.String(params.CustomerEmail)
	}
	for k, v := range params.Metadata {
		in.AddMetadata(k, v)
	}
	if params.IdempotencyKey != "" {
		in.SetIdempotencyKey(params.IdempotencyKey)
	}
	pi, err := g.api.PaymentIntents.New(in)
	if err != nil {
		return ports.PaymentIntent{}, fmt.Errorf("create payment intent: %w", err)
	}
	return fromStripeIntent(pi), nil
}

func (g *StripeGateway) GetIntent(ctx context.Context, providerRef string) (ports.PaymentIntent, error) {
	in := &stripe.PaymentIntentParams{}
	in.Context = ctx
	pi, err := g.api.PaymentIntents.Get(providerRef, in)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return ports.PaymentIntent{}, ErrUnknownIntent
		}
		return ports.PaymentIntent{}, fmt.Errorf("get payment intent: %w", err)
	}
	return fromStripeIntent(pi), nil
}

// ParseWebhook verifies the Stripe-Signature header and extracts the intent the event refers to.
// Events that do not carry a PaymentIntent come back with an empty ProviderRef.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (ports.WebhookEvent, error) {
	if g.webhookSecret == "" {
		return ports.WebhookEvent{}, errors.New("stripe webhook secret is not configured")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return ports.WebhookEvent{}, fmt.Errorf("verify webhook: %w", err)
	}
	out := ports.WebhookEvent{Type: string(event.Type)}
	if !strings.HasPrefix(out.Type, "payment_intent.") || event.Data == nil {
		return out, nil
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return ports.WebhookEvent{}, fmt.Errorf("decode payment intent: %w", err)
	}
	out.ProviderRef = pi.ID
	if pi.LastPaymentError != nil {
		out.FailureReason = pi.LastPaymentError.Msg
	}
	return out, nil
}

func fromStripeIntent(pi *stripe.PaymentIntent) ports.PaymentIntent {
	return ports.PaymentIntent{
		ProviderRef:  pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       intentStatus(pi),
		AmountCents:  pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
	}
}

func intentStatus(pi *stripe.PaymentIntent) string {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return ports.IntentSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return ports.IntentCanceled
	case stripe.PaymentIntentStatusProcessing:
		return ports.IntentProcessing
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if pi.LastPaymentError != nil {
			return ports.IntentFailed
		}
	}
	return ports.IntentRequiresAction
}
