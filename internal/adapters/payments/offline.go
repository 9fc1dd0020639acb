package payments

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/remlyo/remlyo-api/internal/ports"
)

var ErrUnknownIntent = errors.New("payment intent not found")

// OfflineGateway simulates a card processor for local runs and tests. Intents are confirmed
// the first time they are looked up, unless their amount ends in 02 cents, which declines.
// Webhooks are JSON {"type","provider_ref","failure_reason"} signed with hex HMAC-SHA256.
type OfflineGateway struct {
	mu      sync.Mutex
	secret  []byte
	intents map[string]ports.PaymentIntent
	byKey   map[string]string
}

func NewOfflineGateway(webhookSecret string) *OfflineGateway {
	return &OfflineGateway{
		secret:  []byte(webhookSecret),
		intents: map[string]ports.PaymentIntent{},
		byKey:   map[string]string{},
	}
}

func (g *OfflineGateway) CreateIntent(_ context.Context, params ports.CreateIntentParams) (ports.PaymentIntent, error) {
	if params.AmountCents <= 0 {
		return ports.PaymentIntent{}, errors.New("amount must be positive")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if params.IdempotencyKey != "" {
		if ref, ok := g.byKey[params.IdempotencyKey]; ok {
			return g.intents[ref], nil
		}
	}
	id := "pi_offline_" + randomHex(12)
	intent := ports.PaymentIntent{
		ProviderRef:  id,
		ClientSecret: id + "_secret_" + randomHex(8),
		Status:       ports.IntentRequiresAction,
		AmountCents:  params.AmountCents,
		Currency:     strings.ToUpper(params.Currency),
	}
	g.intents[id] = intent
	if params.IdempotencyKey != "" {
		g.byKey[params.IdempotencyKey] = id
	}
	return intent, nil
}

func (g *OfflineGateway) GetIntent(_ context.Context, providerRef string) (ports.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[providerRef]
	if !ok {
		return ports.PaymentIntent{}, ErrUnknownIntent
	}
	if intent.Status == ports.IntentRequiresAction {
		intent.Status = ports.IntentSucceeded
		if intent.AmountCents%100 == 2 {
			intent.Status = ports.IntentFailed
		}
		g.intents[providerRef] = intent
	}
	return intent, nil
}

// SetStatus forces an intent's status.
func (g *OfflineGateway) SetStatus(providerRef, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if intent, ok := g.intents[providerRef]; ok {
		intent.Status = status
		g.intents[providerRef] = intent
	}
}

// Sign returns the signature ParseWebhook expects for payload.
func (g *OfflineGateway) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *OfflineGateway) ParseWebhook(payload []byte, signature string) (ports.WebhookEvent, error) {
	if len(g.secret) == 0 {
		return ports.WebhookEvent{}, errors.New("webhook secret is not configured")
	}
	if !hmac.Equal([]byte(g.Sign(payload)), []byte(strings.ToLower(signature))) {
		return ports.WebhookEvent{}, errors.New("invalid webhook signature")
	}
	var body struct {
		Type          string `json:"type"`
		ProviderRef   string `json:"provider_ref"`
		FailureReason string `json:"failure_reason"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ports.WebhookEvent{}, fmt.Errorf("decode webhook: %w", err)
	}
	return ports.WebhookEvent{
		Type:          body.Type,
		ProviderRef:   body.ProviderRef,
		FailureReason: body.FailureReason,
	}, nil
}

func randomHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
