package application

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/adapters/cache"
	"github.com/remlyo/remlyo-api/internal/adapters/payments"
	"github.com/remlyo/remlyo-api/internal/adapters/postgres"
	"github.com/remlyo/remlyo-api/internal/adapters/security"
	"github.com/remlyo/remlyo-api/internal/domain"
	"github.com/remlyo/remlyo-api/internal/ports"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "Sup3r$ecret!"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []ports.RemedyPrompt
	result  ports.GeneratedRemedy
	err     error
}

func (g *fakeGenerator) Generate(_ context.Context, prompt ports.RemedyPrompt) (ports.GeneratedRemedy, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return g.result, g.err
}

// flakyGateway fails the first few intent creations, then defers to the wrapped gateway.
type flakyGateway struct {
	ports.PaymentGateway
	mu       sync.Mutex
	failures int
}

func (g *flakyGateway) CreateIntent(ctx context.Context, params ports.CreateIntentParams) (ports.PaymentIntent, error) {
	g.mu.Lock()
	if g.failures > 0 {
		g.failures--
		g.mu.Unlock()
		return ports.PaymentIntent{}, errors.New("gateway timeout")
	}
	g.mu.Unlock()
	return g.PaymentGateway.CreateIntent(ctx, params)
}

type harness struct {
	svc     *Service
	repos   postgres.Repositories
	gateway *payments.OfflineGateway
	clock   *testClock
}

type harnessOption func(*Dependencies)

func withGenerator(g ports.RemedyGenerator) harnessOption {
	return func(d *Dependencies) { d.Generator = g }
}

func withFlakyPayments(failures int) harnessOption {
	return func(d *Dependencies) {
		d.Payments = &flakyGateway{PaymentGateway: d.Payments, failures: failures}
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	ctx := context.Background()

	db, err := postgres.Connect(ctx, "sqlite://"+filepath.Join(t.TempDir(), "remlyo.db")+"?_busy_timeout=5000&_txlock=immediate", 4)
	require.NoError(t, err)
	require.NoError(t, postgres.RunMigrations(ctx, db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	signer, err := security.NewEphemeralJWTSigner("test")
	require.NoError(t, err)

	repos := postgres.NewRepositories(db)
	mem := cache.NewMemory()
	gateway := payments.NewOfflineGateway("whsec_test")
	deps := Dependencies{
		Config: Config{
			TokenTTL:             time.Hour,
			SessionTTL:           24 * time.Hour,
			SessionAbsoluteTTL:   72 * time.Hour,
			FailedLoginThreshold: 3,
			LockoutDuration:      15 * time.Minute,
			VerifyEmailLimit:     3,
			VerifyEmailWindow:    time.Hour,
			FlowCacheTTL:         30 * time.Second,
			ConsentVersion:       "2024-01",
			Plans: []domain.Plan{
				{PlanID: "monthly", Name: "Monthly", AmountCents: 1000, Currency: "usd", Interval: "month"},
				{PlanID: "declined", Name: "Declined", AmountCents: 1002, Currency: "usd", Interval: "month"},
			},
			PastDueGrace:       72 * time.Hour,
			CommissionRate:     0.2,
			AIDailyQuota:       2,
			AIGenerateTimeout:  5 * time.Second,
			IdempotencyKeepFor: time.Hour,
		},
		Users:       repos.Users,
		Sessions:    repos.Sessions,
		Recovery:    repos.Recovery,
		Profiles:    repos.Profiles,
		Consents:    repos.Consents,
		Ailments:    repos.Ailments,
		Remedies:    repos.Remedies,
		Reviews:     repos.Reviews,
		Moderation:  repos.Moderation,
		Billing:     repos.Billing,
		Affiliates:  repos.Affiliates,
		Outbox:      repos.Outbox,
		Idempotency: repos.Idempotency,
		Lockouts:    mem,
		Revocations: mem,
		FlowCache:   mem.Flows(),
		Quotas:      mem,
		Hasher:      security.NewBcryptHasher(bcrypt.MinCost),
		TokenSigner: signer,
		Payments:    gateway,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	clock := &testClock{now: time.Now().UTC().Truncate(time.Second)}
	svc := NewService(deps)
	svc.nowFn = clock.Now
	return &harness{svc: svc, repos: repos, gateway: gateway, clock: clock}
}

// register creates an account and returns a principal for it without logging in.
func (h *harness) register(t *testing.T, email string) Principal {
	t.Helper()
	resp, err := h.svc.Register(context.Background(), RegisterRequest{
		Email:           email,
		Password:        testPassword,
		ConfirmPassword: testPassword,
		DisplayName:     "Test User",
	}, "")
	require.NoError(t, err)
	return Principal{UserID: resp.UserID, Email: resp.Email, Role: domain.RoleUser}
}

// verificationToken reads the raw token out of the queued verification event.
func (h *harness) verificationToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	return h.queuedToken(t, eventTypeEmailVerifyRequested, userID)
}

func (h *harness) resetToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	return h.queuedToken(t, eventTypePasswordResetRequest, userID)
}

func (h *harness) queuedToken(t *testing.T, eventType string, userID uuid.UUID) string {
	t.Helper()
	records, err := h.repos.Outbox.ClaimUnpublished(context.Background(), 500, uuid.NewString(), time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	token := ""
	for _, rec := range records {
		if rec.EventType != eventType {
			continue
		}
		var payload struct {
			UserID uuid.UUID `json:"user_id"`
			Token  string    `json:"token"`
		}
		require.NoError(t, json.Unmarshal(rec.Payload, &payload))
		if payload.UserID == userID {
			token = payload.Token
		}
	}
	require.NotEmpty(t, token, "no %s event for %s", eventType, userID)
	return token
}

func (h *harness) eventCount(t *testing.T, eventType string) int {
	t.Helper()
	records, err := h.repos.Outbox.ClaimUnpublished(context.Background(), 500, uuid.NewString(), time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	n := 0
	for _, rec := range records {
		if rec.EventType == eventType {
			n++
		}
	}
	return n
}

func (h *harness) completeProfile(t *testing.T, p Principal) {
	t.Helper()
	_, err := h.svc.UpdateProfile(context.Background(), p, domain.ProfileInput{
		DateOfBirth: "1990-05-17",
		Sex:         "female",
		Conditions:  []string{},
		Allergies:   []string{"pollen"},
		Medications: []string{},
	})
	require.NoError(t, err)
}

// onboard registers a user and carries them to the subscription step.
func (h *harness) onboard(t *testing.T, email string) Principal {
	t.Helper()
	p := h.register(t, email)
	require.NoError(t, h.svc.VerifyEmail(context.Background(), h.verificationToken(t, p.UserID)))
	h.completeProfile(t, p)
	return p
}

// subscribe runs checkout and confirmation on the monthly plan.
func (h *harness) subscribe(t *testing.T, p Principal) ConfirmResponse {
	t.Helper()
	ctx := context.Background()
	checkout, err := h.svc.Checkout(ctx, p, CheckoutRequest{PlanID: "monthly"}, uuid.NewString())
	require.NoError(t, err)
	confirmed, err := h.svc.ConfirmCheckout(ctx, p, ConfirmRequest{PaymentIntentID: checkout.PaymentIntentID})
	require.NoError(t, err)
	return confirmed
}

func (h *harness) staff(t *testing.T, email string, role domain.Role) Principal {
	t.Helper()
	p := h.register(t, email)
	_, err := h.svc.SetRoleByEmail(context.Background(), email, string(role))
	require.NoError(t, err)
	p.Role = role
	return p
}

func (h *harness) ailment(t *testing.T, author Principal) domain.Ailment {
	t.Helper()
	a, err := h.svc.CreateAilment(context.Background(), author, domain.AilmentInput{
		Name:        "Insomnia",
		Description: "Difficulty falling or staying asleep.",
		Category:    "sleep",
		Symptoms:    []string{"restlessness"},
	})
	require.NoError(t, err)
	return a
}

func remedyInput(ailmentID uuid.UUID) domain.RemedyInput {
	return domain.RemedyInput{
		AilmentID:    ailmentID.String(),
		Type:         "community",
		Name:         "Chamomile tea",
		Description:  "A warm cup of chamomile before bed.",
		Ingredients:  []string{"chamomile", "water"},
		Instructions: "Steep the flowers for five minutes and drink warm.",
	}
}
