package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/domain"
	"github.com/remlyo/remlyo-api/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemedyModerationLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	writer := h.staff(t, "wes@example.com", domain.RoleWriter)
	mod := h.staff(t, "mia@example.com", domain.RoleModerator)
	reader := h.register(t, "rob@example.com")
	ailment := h.ailment(t, writer)

	remedy, err := h.svc.CreateRemedy(ctx, writer, remedyInput(ailment.AilmentID))
	require.NoError(t, err)
	assert.Equal(t, domain.RemedyPending, remedy.Status)

	_, err = h.svc.GetRemedy(ctx, &reader, remedy.RemedyID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = h.svc.GetRemedy(ctx, nil, remedy.RemedyID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = h.svc.GetRemedy(ctx, &mod, remedy.RemedyID)
	require.NoError(t, err)

	queue, err := h.svc.ModerationQueue(ctx, "", PageQuery{})
	require.NoError(t, err)
	require.Len(t, queue.Remedies, 1)

	approved, err := h.svc.ApproveRemedy(ctx, mod, remedy.RemedyID)
	require.NoError(t, err)
	assert.Equal(t, domain.RemedyApproved, approved.Status)
	_, err = h.svc.RejectRemedy(ctx, mod, remedy.RemedyID, "duplicate")
	require.ErrorIs(t, err, domain.ErrConflict)

	public, err := h.svc.ListRemedies(ctx, nil, RemedyQuery{})
	require.NoError(t, err)
	require.Len(t, public.Items, 1)

	// owner edits go back to review
	edited, err := h.svc.UpdateRemedy(ctx, writer, remedy.RemedyID, remedyInput(ailment.AilmentID))
	require.NoError(t, err)
	assert.Equal(t, domain.RemedyPending, edited.Status)

	_, err = h.svc.RejectRemedy(ctx, mod, remedy.RemedyID, "  ")
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	rejected, err := h.svc.RejectRemedy(ctx, mod, remedy.RemedyID, "needs sources")
	require.NoError(t, err)
	assert.Equal(t, "needs sources", rejected.RejectionReason)

	log, err := h.svc.ModerationLog(ctx, PageQuery{})
	require.NoError(t, err)
	require.Len(t, log.Items, 2)
	actions := []string{log.Items[0].Action, log.Items[1].Action}
	assert.ElementsMatch(t, []string{"approve", "reject"}, actions)

	mine, err := h.svc.ListRemedies(ctx, &writer, RemedyQuery{Mine: true})
	require.NoError(t, err)
	require.Len(t, mine.Items, 1)
	_, err = h.svc.ListRemedies(ctx, nil, RemedyQuery{Mine: true})
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestConcurrentRemedyDecisionsApplyOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	writer := h.staff(t, "wyn@example.com", domain.RoleWriter)
	first := h.staff(t, "mod1@example.com", domain.RoleModerator)
	second := h.staff(t, "mod2@example.com", domain.RoleModerator)
	remedy, err := h.svc.CreateRemedy(ctx, writer, remedyInput(h.ailment(t, writer).AilmentID))
	require.NoError(t, err)

	var (
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = h.svc.ApproveRemedy(ctx, first, remedy.RemedyID)
			} else {
				_, err = h.svc.RejectRemedy(ctx, second, remedy.RemedyID, "unsafe dosage")
			}
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 3, conflicts)

	log, err := h.svc.ModerationLog(ctx, PageQuery{})
	require.NoError(t, err)
	assert.Len(t, log.Items, 1)
}

func TestListMineAddsOwnDraftsToPublicRemedies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	writer := h.staff(t, "wim@example.com", domain.RoleWriter)
	peer := h.staff(t, "pia@example.com", domain.RoleWriter)
	mod := h.staff(t, "max@example.com", domain.RoleModerator)
	ailment := h.ailment(t, writer)

	published, err := h.svc.CreateRemedy(ctx, peer, remedyInput(ailment.AilmentID))
	require.NoError(t, err)
	_, err = h.svc.ApproveRemedy(ctx, mod, published.RemedyID)
	require.NoError(t, err)
	_, err = h.svc.CreateRemedy(ctx, peer, remedyInput(ailment.AilmentID))
	require.NoError(t, err)
	draft, err := h.svc.CreateRemedy(ctx, writer, remedyInput(ailment.AilmentID))
	require.NoError(t, err)

	mine, err := h.svc.ListRemedies(ctx, &writer, RemedyQuery{Mine: true})
	require.NoError(t, err)
	ids := make([]uuid.UUID, 0, len(mine.Items))
	for _, item := range mine.Items {
		ids = append(ids, item.RemedyID)
	}
	assert.ElementsMatch(t, []uuid.UUID{published.RemedyID, draft.RemedyID}, ids)

	public, err := h.svc.ListRemedies(ctx, &writer, RemedyQuery{})
	require.NoError(t, err)
	require.Len(t, public.Items, 1)
	assert.Equal(t, published.RemedyID, public.Items[0].RemedyID)
}

func TestListRemediesRejectsBadFilters(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.ListRemedies(context.Background(), nil, RemedyQuery{Type: "magic", AilmentID: "x", Sort: "random"})
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Len(t, verr.Fields, 3)
}

func TestReviewsRefreshRatingAndModeration(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	writer := h.staff(t, "wyn@example.com", domain.RoleWriter)
	mod := h.staff(t, "moe@example.com", domain.RoleModerator)
	ailment := h.ailment(t, writer)
	remedy, err := h.svc.CreateRemedy(ctx, writer, remedyInput(ailment.AilmentID))
	require.NoError(t, err)

	reader := h.register(t, "ria@example.com")
	_, err = h.svc.CreateReview(ctx, reader, remedy.RemedyID, ReviewRequest{Rating: 5})
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.svc.ApproveRemedy(ctx, mod, remedy.RemedyID)
	require.NoError(t, err)

	_, err = h.svc.CreateReview(ctx, writer, remedy.RemedyID, ReviewRequest{Rating: 5})
	require.ErrorIs(t, err, domain.ErrForbidden)

	first, err := h.svc.CreateReview(ctx, reader, remedy.RemedyID, ReviewRequest{Rating: 5, Comment: "helped a lot"})
	require.NoError(t, err)
	_, err = h.svc.CreateReview(ctx, reader, remedy.RemedyID, ReviewRequest{Rating: 4})
	require.ErrorIs(t, err, domain.ErrConflict)

	other := h.register(t, "sol@example.com")
	_, err = h.svc.CreateReview(ctx, other, remedy.RemedyID, ReviewRequest{Rating: 2})
	require.NoError(t, err)

	got, err := h.svc.GetRemedy(ctx, nil, remedy.RemedyID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RatingCount)
	assert.InDelta(t, 3.5, got.RatingAverage, 0.001)

	_, err = h.svc.FlagReview(ctx, reader, first.ReviewID)
	require.ErrorIs(t, err, domain.ErrForbidden)
	flagged, err := h.svc.FlagReview(ctx, other, first.ReviewID)
	require.NoError(t, err)
	assert.Equal(t, 1, flagged.FlagCount)

	queue, err := h.svc.ModerationQueue(ctx, "reviews", PageQuery{})
	require.NoError(t, err)
	require.Len(t, queue.Reviews, 1)

	_, err = h.svc.HideReview(ctx, mod, first.ReviewID, "spam")
	require.NoError(t, err)
	got, err = h.svc.GetRemedy(ctx, nil, remedy.RemedyID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RatingCount)
	assert.InDelta(t, 2.0, got.RatingAverage, 0.001)

	_, err = h.svc.HideReview(ctx, mod, first.ReviewID, "again")
	require.ErrorIs(t, err, domain.ErrConflict)
	restored, err := h.svc.RestoreReview(ctx, mod, first.ReviewID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewVisible, restored.Status)
	assert.Zero(t, restored.FlagCount)
}

func TestSavedRemediesHideWithdrawnEntries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	writer := h.staff(t, "wil@example.com", domain.RoleWriter)
	mod := h.staff(t, "mae@example.com", domain.RoleModerator)
	ailment := h.ailment(t, writer)
	remedy, err := h.svc.CreateRemedy(ctx, writer, remedyInput(ailment.AilmentID))
	require.NoError(t, err)
	_, err = h.svc.ApproveRemedy(ctx, mod, remedy.RemedyID)
	require.NoError(t, err)

	reader := h.register(t, "roy@example.com")
	require.NoError(t, h.svc.SaveRemedy(ctx, reader, remedy.RemedyID))
	require.NoError(t, h.svc.SaveRemedy(ctx, reader, remedy.RemedyID))
	saved, err := h.svc.ListSavedRemedies(ctx, reader, PageQuery{})
	require.NoError(t, err)
	require.Len(t, saved.Items, 1)

	_, err = h.svc.UpdateRemedy(ctx, writer, remedy.RemedyID, remedyInput(ailment.AilmentID))
	require.NoError(t, err)
	saved, err = h.svc.ListSavedRemedies(ctx, reader, PageQuery{})
	require.NoError(t, err)
	assert.Empty(t, saved.Items)

	require.ErrorIs(t, h.svc.SaveRemedy(ctx, reader, uuid.New()), domain.ErrNotFound)
}

func TestDeleteRemedyRequiresOwnerOrAdmin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	writer := h.staff(t, "wan@example.com", domain.RoleWriter)
	admin := h.staff(t, "ada@example.com", domain.RoleAdmin)
	other := h.staff(t, "wu@example.com", domain.RoleWriter)
	ailment := h.ailment(t, writer)
	remedy, err := h.svc.CreateRemedy(ctx, writer, remedyInput(ailment.AilmentID))
	require.NoError(t, err)

	require.ErrorIs(t, h.svc.DeleteRemedy(ctx, other, remedy.RemedyID), domain.ErrNotFound)
	require.NoError(t, h.svc.DeleteRemedy(ctx, admin, remedy.RemedyID))
	_, err = h.svc.GetRemedy(ctx, &writer, remedy.RemedyID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAdminCannotChangeOwnRole(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.staff(t, "boss@example.com", domain.RoleAdmin)
	user := h.register(t, "una@example.com")

	_, err := h.svc.SetUserRole(ctx, admin.UserID, admin.UserID, "user")
	require.ErrorIs(t, err, domain.ErrForbidden)
	require.ErrorIs(t, h.svc.DeactivateUser(ctx, admin.UserID, admin.UserID), domain.ErrForbidden)
	_, err = h.svc.SetUserRole(ctx, admin.UserID, user.UserID, "overlord")
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	view, err := h.svc.SetUserRole(ctx, admin.UserID, user.UserID, "Writer")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleWriter, view.Role)

	stats, err := h.svc.AdminStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.UsersByRole[domain.RoleAdmin])
	assert.EqualValues(t, 1, stats.UsersByRole[domain.RoleWriter])

	require.NoError(t, h.svc.DeactivateUser(ctx, admin.UserID, user.UserID))
	_, err = h.svc.Login(ctx, LoginRequest{Email: "una@example.com", Password: testPassword})
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestGenerateRemedyGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled generator", func(t *testing.T) {
		h := newHarness(t)
		p := h.onboard(t, "nil@example.com")
		_, err := h.svc.GenerateRemedy(ctx, p, GenerateRemedyRequest{AilmentID: uuid.NewString()})
		require.ErrorIs(t, err, domain.ErrAIUnavailable)
		require.ErrorIs(t, err, domain.ErrServiceUnavailable)
	})

	t.Run("flow, consent and quota", func(t *testing.T) {
		gen := &fakeGenerator{result: ports.GeneratedRemedy{
			Name:         "Lavender pillow spray",
			Description:  "A calming scent for the bedroom.",
			Ingredients:  []string{"lavender oil", "water"},
			Instructions: "Mix and mist the pillow before sleep.",
		}}
		h := newHarness(t, withGenerator(gen))
		writer := h.staff(t, "wyatt@example.com", domain.RoleWriter)
		ailment := h.ailment(t, writer)
		req := GenerateRemedyRequest{AilmentID: ailment.AilmentID.String(), Notes: "no essential oils on skin"}

		p := h.onboard(t, "gen@example.com")
		_, err := h.svc.GenerateRemedy(ctx, p, req)
		require.ErrorIs(t, err, domain.ErrFlowIncomplete)

		h.subscribe(t, p)
		_, err = h.svc.GenerateRemedy(ctx, p, req)
		require.ErrorIs(t, err, domain.ErrConsentRequired)

		yes := true
		_, err = h.svc.UpdateConsent(ctx, p, domain.ConsentInput{AIRemedy: &yes}, "127.0.0.1")
		require.NoError(t, err)

		_, err = h.svc.GenerateRemedy(ctx, p, GenerateRemedyRequest{AilmentID: uuid.NewString()})
		require.ErrorIs(t, err, domain.ErrInvalidInput)

		remedy, err := h.svc.GenerateRemedy(ctx, p, req)
		require.NoError(t, err)
		assert.Equal(t, domain.RemedyAI, remedy.Type)
		assert.True(t, remedy.Private)
		assert.Equal(t, domain.AIDisclaimer, remedy.Disclaimer)
		require.Len(t, gen.prompts, 1)
		assert.Equal(t, []string{"pollen"}, gen.prompts[0].Allergies)
		assert.Equal(t, "Insomnia", gen.prompts[0].AilmentName)

		other := h.register(t, "peek@example.com")
		_, err = h.svc.GetRemedy(ctx, &other, remedy.RemedyID)
		require.ErrorIs(t, err, domain.ErrNotFound)
		_, err = h.svc.UpdateRemedy(ctx, p, remedy.RemedyID, remedyInput(ailment.AilmentID))
		require.ErrorIs(t, err, domain.ErrForbidden)

		_, err = h.svc.GenerateRemedy(ctx, p, req)
		require.NoError(t, err)
		_, err = h.svc.GenerateRemedy(ctx, p, req)
		require.ErrorIs(t, err, domain.ErrQuotaExceeded)
	})

	t.Run("generator failure", func(t *testing.T) {
		gen := &fakeGenerator{err: errors.New("upstream timeout")}
		h := newHarness(t, withGenerator(gen))
		writer := h.staff(t, "wren@example.com", domain.RoleWriter)
		ailment := h.ailment(t, writer)
		p := h.onboard(t, "fail@example.com")
		h.subscribe(t, p)
		yes := true
		_, err := h.svc.UpdateConsent(ctx, p, domain.ConsentInput{AIRemedy: &yes}, "")
		require.NoError(t, err)

		req := GenerateRemedyRequest{AilmentID: ailment.AilmentID.String()}
		for i := 0; i < 3; i++ {
			_, err = h.svc.GenerateRemedy(ctx, p, req)
			require.ErrorIs(t, err, domain.ErrAIUnavailable)
		}

		// failed attempts leave the daily allowance untouched
		gen.mu.Lock()
		gen.err = nil
		gen.result = ports.GeneratedRemedy{Name: "Warm milk", Instructions: "Warm a cup of milk and sip slowly."}
		gen.mu.Unlock()
		for i := 0; i < 2; i++ {
			_, err = h.svc.GenerateRemedy(ctx, p, req)
			require.NoError(t, err)
		}
		_, err = h.svc.GenerateRemedy(ctx, p, req)
		require.ErrorIs(t, err, domain.ErrQuotaExceeded)
	})
}
