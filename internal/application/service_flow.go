package application

import (
	"context"
	"time"

	"github.com/remlyo/remlyo-api/internal/domain"
)

const defaultFlowCacheTTL = 30 * time.Second

// FlowStatus derives the caller's onboarding stage from the auth status and the
// subscription status, in that order. Results are cached briefly per user.
func (s *Service) FlowStatus(ctx context.Context, p *Principal) (domain.FlowStatus, error) {
	if p == nil {
		return domain.FlowLoggedOut, nil
	}
	if s.flowCache != nil {
		if status, ok, err := s.flowCache.Get(ctx, p.UserID); err == nil && ok {
			return status, nil
		}
	}

	auth, err := s.AuthStatus(ctx, p)
	if err != nil {
		return "", err
	}
	facts := domain.FlowFacts{Authenticated: auth.Authenticated, EmailVerified: auth.EmailVerified}
	if facts.Authenticated && facts.EmailVerified {
		profile, err := s.profiles.Get(ctx, p.UserID)
		if err != nil {
			return "", err
		}
		facts.ProfileComplete = profile.Complete()
	}
	if facts.ProfileComplete {
		sub, err := s.SubscriptionStatus(ctx, *p)
		if err != nil {
			return "", err
		}
		facts.SubscriptionActive = sub.Active
	}
	status := domain.DeriveFlow(facts)

	if s.flowCache != nil && status != domain.FlowLoggedOut {
		ttl := s.cfg.FlowCacheTTL
		if ttl <= 0 {
			ttl = defaultFlowCacheTTL
		}
		if err := s.flowCache.Put(ctx, p.UserID, status, ttl); err != nil {
			appLogger().WarnContext(ctx, "flow cache write failed",
				"operation", "flow_status",
				"outcome", "warning",
				"error", err,
			)
		}
	}
	return status, nil
}

// ResolveFlow combines the caller's flow status with a route decision for path.
func (s *Service) ResolveFlow(ctx context.Context, p *Principal, path string) (FlowView, error) {
	status, err := s.FlowStatus(ctx, p)
	if err != nil {
		return FlowView{}, err
	}
	view := FlowView{Status: status, Target: status.Target(), Allowed: true}
	if path != "" {
		decision := domain.ResolveRoute(status, path)
		view.Allowed = decision.Allowed
		view.Redirect = decision.Redirect
	}
	return view, nil
}
