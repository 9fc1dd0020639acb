package postgres

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
	"github.com/remlyo/remlyo-api/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()
	db, err := Connect(ctx, "sqlite://"+filepath.Join(t.TempDir(), "repo.db")+"?_busy_timeout=5000", 2)
	require.NoError(t, err)
	require.NoError(t, RunMigrations(ctx, db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func createUser(t *testing.T, repos Repositories, email string) domain.User {
	t.Helper()
	now := time.Now().UTC()
	user, err := repos.Users.CreateWithOutboxTx(context.Background(), ports.CreateUserTxParams{
		Email:           email,
		DisplayName:     "Repo User",
		PasswordHash:    "hash",
		Role:            domain.RoleUser,
		RegisteredAtUTC: now,
		Consent:         domain.ComplianceConsent{Version: "1", GDPRConsent: true},
	}, ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    "user.registered",
		PartitionKey: email,
		Payload:      []byte(`{}`),
		OccurredAt:   now,
	})
	require.NoError(t, err)
	return user
}

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	repos := NewRepositories(openTestDB(t))
	createUser(t, repos, "dup@example.com")

	_, err := repos.Users.CreateWithOutboxTx(context.Background(), ports.CreateUserTxParams{
		Email: "dup@example.com", DisplayName: "Again", PasswordHash: "hash", Role: domain.RoleUser,
		RegisteredAtUTC: time.Now().UTC(),
	}, ports.OutboxEvent{EventID: uuid.New(), EventType: "user.registered", Payload: []byte(`{}`), OccurredAt: time.Now().UTC()})
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestOutboxClaimLeaseAndRelease(t *testing.T) {
	repos := NewRepositories(openTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, repos.Outbox.Enqueue(ctx, ports.OutboxEvent{
			EventID:      uuid.New(),
			EventType:    "remedy.submitted",
			PartitionKey: "k",
			Payload:      []byte(`{"n":1}`),
			OccurredAt:   now.Add(time.Duration(i) * time.Millisecond),
		}))
	}

	first, err := repos.Outbox.ClaimUnpublished(ctx, 2, "worker-a", now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := repos.Outbox.ClaimUnpublished(ctx, 10, "worker-b", now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, second, 1)

	none, err := repos.Outbox.ClaimUnpublished(ctx, 10, "worker-c", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, none)

	// a stale token cannot release someone else's lease
	require.NoError(t, repos.Outbox.MarkPublished(ctx, first[0].OutboxID, "worker-b", now))
	require.NoError(t, repos.Outbox.MarkPublished(ctx, first[0].OutboxID, "worker-a", now))
	require.NoError(t, repos.Outbox.MarkFailed(ctx, first[1].OutboxID, "worker-a", "broker down", now))
	require.NoError(t, repos.Outbox.MarkDeadLettered(ctx, second[0].OutboxID, "worker-b", "poison", now))

	retry, err := repos.Outbox.ClaimUnpublished(ctx, 10, "worker-d", now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, retry, 1)
	assert.Equal(t, first[1].OutboxID, retry[0].OutboxID)
	assert.Equal(t, 1, retry[0].RetryCount)
	require.NotNil(t, retry[0].LastError)
	assert.Equal(t, "broker down", *retry[0].LastError)

	_, err = repos.Outbox.ClaimUnpublished(ctx, 1, "", now)
	require.Error(t, err)
}

func TestIdempotencyReserveAndComplete(t *testing.T) {
	repos := NewRepositories(openTestDB(t))
	ctx := context.Background()

	rec, err := repos.Idempotency.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, repos.Idempotency.Reserve(ctx, "k1", "h1", time.Now().UTC().Add(time.Hour)))
	require.ErrorIs(t, repos.Idempotency.Reserve(ctx, "k1", "h1", time.Now().UTC().Add(time.Hour)), domain.ErrConflict)

	rec, err = repos.Idempotency.Get(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "PENDING", rec.Status)

	require.NoError(t, repos.Idempotency.Complete(ctx, "k1", 201, []byte(`{"ok":true}`), time.Now().UTC()))
	rec, err = repos.Idempotency.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", rec.Status)
	assert.Equal(t, 201, rec.ResponseCode)
	assert.JSONEq(t, `{"ok":true}`, string(rec.ResponseBody))

	require.NoError(t, repos.Idempotency.Reserve(ctx, "old", "h", time.Now().UTC().Add(-time.Minute)))
	rec, err = repos.Idempotency.Get(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, rec)
	require.NoError(t, repos.Idempotency.Reserve(ctx, "old", "h2", time.Now().UTC().Add(time.Hour)))
}

func seedRemedy(t *testing.T, repos Repositories, author uuid.UUID, ailment uuid.UUID, name string, status domain.RemedyStatus, private bool) domain.Remedy {
	t.Helper()
	now := time.Now().UTC()
	r := domain.Remedy{
		RemedyID:     uuid.New(),
		AilmentID:    ailment,
		AuthorID:     author,
		Type:         domain.RemedyCommunity,
		Status:       status,
		Private:      private,
		Name:         name,
		Description:  "Described " + name,
		Ingredients:  []string{"water"},
		Instructions: "Prepare " + name,
		Precautions:  []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, repos.Remedies.Create(context.Background(), r))
	return r
}

func TestRemedyListFiltersVisibility(t *testing.T) {
	repos := NewRepositories(openTestDB(t))
	ctx := context.Background()
	author := createUser(t, repos, "author@example.com")
	ailment := uuid.New()

	seedRemedy(t, repos, author.UserID, ailment, "Ginger tea", domain.RemedyApproved, false)
	seedRemedy(t, repos, author.UserID, ailment, "Honey lemon", domain.RemedyApproved, false)
	seedRemedy(t, repos, author.UserID, ailment, "Pending tonic", domain.RemedyPending, false)
	seedRemedy(t, repos, author.UserID, ailment, "Private mix", domain.RemedyApproved, true)

	page := ports.Page{Limit: 10}
	public, total, err := repos.Remedies.List(ctx, ports.RemedyFilter{Status: domain.RemedyApproved}, page)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, public, 2)

	byName, _, err := repos.Remedies.List(ctx, ports.RemedyFilter{Status: domain.RemedyApproved, Sort: "name"}, page)
	require.NoError(t, err)
	assert.Equal(t, "Ginger tea", byName[0].Name)

	search, total, err := repos.Remedies.List(ctx, ports.RemedyFilter{Status: domain.RemedyApproved, Search: "HONEY"}, page)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "Honey lemon", search[0].Name)

	other := createUser(t, repos, "other@example.com")
	seedRemedy(t, repos, other.UserID, ailment, "Other draft", domain.RemedyPending, false)

	mine, total, err := repos.Remedies.List(ctx, ports.RemedyFilter{Status: domain.RemedyApproved, Viewer: author.UserID}, page)
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	assert.Len(t, mine, 4)

	theirs, total, err := repos.Remedies.List(ctx, ports.RemedyFilter{Status: domain.RemedyApproved, Viewer: other.UserID, Search: "draft"}, page)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "Other draft", theirs[0].Name)

	counts, err := repos.Remedies.CountByStatus(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, counts[domain.RemedyApproved])
	assert.EqualValues(t, 2, counts[domain.RemedyPending])
	assert.EqualValues(t, 0, counts[domain.RemedyRejected])
}

func TestReviewRatingAggregate(t *testing.T) {
	repos := NewRepositories(openTestDB(t))
	ctx := context.Background()
	author := createUser(t, repos, "a@example.com")
	remedy := seedRemedy(t, repos, author.UserID, uuid.New(), "Mint", domain.RemedyApproved, false)
	now := time.Now().UTC()

	ratings := []int{5, 3, 1}
	ids := make([]uuid.UUID, 0, len(ratings))
	for _, rating := range ratings {
		review := domain.Review{
			ReviewID: uuid.New(), RemedyID: remedy.RemedyID, UserID: uuid.New(),
			Rating: rating, Status: domain.ReviewVisible, CreatedAt: now, UpdatedAt: now,
		}
		require.NoError(t, repos.Reviews.Create(ctx, review))
		ids = append(ids, review.ReviewID)
	}

	got, err := repos.Remedies.GetByID(ctx, remedy.RemedyID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.RatingCount)
	assert.InDelta(t, 3.0, got.RatingAverage, 0.001)

	flagged, err := repos.Reviews.Flag(ctx, ids[2], now)
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewFlagged, flagged.Status)

	_, err = repos.Moderation.DecideReview(ctx, ids[2], domain.ReviewHidden, hideOutcome(ids[2], now))
	require.NoError(t, err)
	_, err = repos.Moderation.DecideReview(ctx, ids[2], domain.ReviewHidden, hideOutcome(ids[2], now))
	require.ErrorIs(t, err, domain.ErrConflict)
	_, err = repos.Reviews.Flag(ctx, ids[2], now)
	require.ErrorIs(t, err, domain.ErrNotFound)

	got, err = repos.Remedies.GetByID(ctx, remedy.RemedyID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RatingCount)
	assert.InDelta(t, 4.0, got.RatingAverage, 0.001)

	listed, total, err := repos.Reviews.ListByRemedy(ctx, remedy.RemedyID, ports.Page{Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, listed, 2)

	decisions, total, err := repos.Moderation.List(ctx, ports.Page{Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, decisions, 1)
	assert.Equal(t, ids[2], decisions[0].TargetID)
}

func hideOutcome(reviewID uuid.UUID, at time.Time) ports.ModerationOutcome {
	return ports.ModerationOutcome{
		Decision: domain.ModerationDecision{
			DecisionID: uuid.New(), ModeratorID: uuid.New(), TargetKind: "review",
			TargetID: reviewID, Action: "hide", CreatedAt: at,
		},
		OutboxEvent: ports.OutboxEvent{EventType: "moderation.decision", PartitionKey: reviewID.String(), Payload: []byte(`{}`), OccurredAt: at},
	}
}

func TestActivateTxIsIdempotentAndExtends(t *testing.T) {
	repos := NewRepositories(openTestDB(t))
	ctx := context.Background()
	user := createUser(t, repos, "payer@example.com")
	plan := domain.Plan{PlanID: "monthly", Name: "Monthly", AmountCents: 999, Currency: "usd", Interval: "month"}
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

	pay := func(ref string) domain.Payment {
		p := domain.Payment{
			PaymentID: uuid.New(), UserID: user.UserID, PlanID: plan.PlanID, ProviderRef: ref,
			AmountCents: plan.AmountCents, Currency: plan.Currency, Status: domain.PaymentPending,
			CreatedAt: now, UpdatedAt: now,
		}
		require.NoError(t, repos.Billing.CreatePayment(ctx, p))
		return p
	}
	activate := func(p domain.Payment, at time.Time, suffix string) ports.ActivationResult {
		res, err := repos.Billing.ActivateTx(ctx, ports.ActivationParams{
			PaymentID: p.PaymentID, Plan: plan, ActivatedAt: at, ReceiptSuffix: suffix,
			OutboxEvent: ports.OutboxEvent{EventID: uuid.New(), EventType: "subscription.activated", Payload: []byte(`{}`), OccurredAt: at},
		})
		require.NoError(t, err)
		return res
	}

	first := pay("pi_1")
	res := activate(first, now, "AAAAAA")
	require.True(t, res.Created)
	assert.Equal(t, "RML-20260110-AAAAAA", res.Receipt.ReceiptNumber)
	firstEnd := res.Subscription.CurrentPeriodEnd

	replay := activate(first, now.Add(time.Hour), "BBBBBB")
	assert.False(t, replay.Created)
	assert.Equal(t, res.Receipt.ReceiptID, replay.Receipt.ReceiptID)

	second := pay("pi_2")
	renewed := activate(second, now.Add(24*time.Hour), "CCCCCC")
	require.True(t, renewed.Created)
	assert.True(t, renewed.Subscription.CurrentPeriodEnd.After(firstEnd))
	assert.Equal(t, res.Subscription.SubscriptionID, renewed.Subscription.SubscriptionID)

	_, total, err := repos.Billing.ListReceipts(ctx, user.UserID, ports.Page{Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	sum, err := repos.Billing.SumSucceededPayments(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2*plan.AmountCents, sum)

	failed := pay("pi_3")
	require.NoError(t, repos.Billing.MarkPaymentFailed(ctx, failed.PaymentID, "card declined", now))
	_, err = repos.Billing.ActivateTx(ctx, ports.ActivationParams{PaymentID: failed.PaymentID, Plan: plan, ActivatedAt: now})
	require.ErrorIs(t, err, domain.ErrPaymentFailed)
}

func TestRecoveryTokenIsSingleUseAndSuperseded(t *testing.T) {
	repos := NewRepositories(openTestDB(t))
	ctx := context.Background()
	user := createUser(t, repos, "reset@example.com")
	now := time.Now().UTC()

	require.NoError(t, repos.Recovery.CreatePasswordResetToken(ctx, user.UserID, "old-hash", now, now.Add(time.Hour)))
	require.NoError(t, repos.Recovery.CreatePasswordResetToken(ctx, user.UserID, "new-hash", now, now.Add(time.Hour)))

	_, err := repos.Recovery.ConsumePasswordResetToken(ctx, "old-hash", now.Add(time.Minute))
	require.ErrorIs(t, err, domain.ErrNotFound)

	got, err := repos.Recovery.ConsumePasswordResetToken(ctx, "new-hash", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, user.UserID, got)
	_, err = repos.Recovery.ConsumePasswordResetToken(ctx, "new-hash", now.Add(time.Minute))
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, repos.Recovery.CreateEmailVerificationToken(ctx, user.UserID, "verify-hash", now, now.Add(time.Hour)))
	_, err = repos.Recovery.ConsumeEmailVerificationToken(ctx, "verify-hash", now.Add(2*time.Hour))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRevokeAllByUserReturnsOpenSessions(t *testing.T) {
	repos := NewRepositories(openTestDB(t))
	ctx := context.Background()
	user := createUser(t, repos, "sessions@example.com")
	now := time.Now().UTC()

	open := func(expires time.Time) domain.Session {
		s, err := repos.Sessions.Create(ctx, ports.SessionCreateParams{
			UserID: user.UserID, IPAddress: "10.0.0.1", UserAgent: "test", ExpiresAt: expires, LastActivityAt: now,
		})
		require.NoError(t, err)
		return s
	}
	a := open(now.Add(time.Hour))
	b := open(now.Add(time.Hour))
	open(now.Add(-time.Minute))
	require.NoError(t, repos.Sessions.RevokeByID(ctx, b.SessionID, now))

	revoked, err := repos.Sessions.RevokeAllByUser(ctx, user.UserID, now)
	require.NoError(t, err)
	require.Len(t, revoked, 1)
	assert.Equal(t, a.SessionID, revoked[0].SessionID)

	got, err := repos.Sessions.GetByID(ctx, a.SessionID)
	require.NoError(t, err)
	require.NotNil(t, got.RevokedAt)

	again, err := repos.Sessions.RevokeAllByUser(ctx, user.UserID, now)
	require.NoError(t, err)
	assert.Empty(t, again)
}
