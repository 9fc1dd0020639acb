package domain_test

import (
	"testing"

	"github.com/remlyo/remlyo-api/internal/domain"
)

func TestDeriveFlowStopsAtFirstUnmetStage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		facts domain.FlowFacts
		want  domain.FlowStatus
	}{
		{name: "anonymous", facts: domain.FlowFacts{}, want: domain.FlowLoggedOut},
		{name: "unverified with subscription", facts: domain.FlowFacts{Authenticated: true, SubscriptionActive: true, ProfileComplete: true}, want: domain.FlowEmailUnverified},
		{name: "no profile", facts: domain.FlowFacts{Authenticated: true, EmailVerified: true}, want: domain.FlowProfileIncomplete},
		{name: "no subscription", facts: domain.FlowFacts{Authenticated: true, EmailVerified: true, ProfileComplete: true}, want: domain.FlowSubscriptionRequired},
		{name: "complete", facts: domain.FlowFacts{Authenticated: true, EmailVerified: true, ProfileComplete: true, SubscriptionActive: true}, want: domain.FlowComplete},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := domain.DeriveFlow(tc.facts); got != tc.want {
				t.Fatalf("DeriveFlow() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestResolveRoute(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status       domain.FlowStatus
		path         string
		wantAllowed  bool
		wantRedirect string
	}{
		{domain.FlowLoggedOut, "/pricing", true, ""},
		{domain.FlowLoggedOut, "/signin", true, ""},
		{domain.FlowLoggedOut, "/dashboard", false, "/signin"},
		{domain.FlowComplete, "/signup", false, "/dashboard"},
		{domain.FlowEmailUnverified, "/verify-email", true, ""},
		{domain.FlowEmailUnverified, "/health-profile", false, "/verify-email"},
		{domain.FlowProfileIncomplete, "/health-profile?step=2", true, ""},
		{domain.FlowProfileIncomplete, "/subscription", false, "/health-profile"},
		{domain.FlowSubscriptionRequired, "/checkout/basic_monthly", true, ""},
		{domain.FlowSubscriptionRequired, "/remedies/", false, "/subscription"},
		{domain.FlowComplete, "/health-profile", true, ""},
		{domain.FlowComplete, "remedies", true, ""},
	}
	for _, tc := range cases {
		got := domain.ResolveRoute(tc.status, tc.path)
		if got.Allowed != tc.wantAllowed || got.Redirect != tc.wantRedirect {
			t.Fatalf("ResolveRoute(%s, %q) = %+v, want allowed=%v redirect=%q", tc.status, tc.path, got, tc.wantAllowed, tc.wantRedirect)
		}
	}
}

func TestFlowTargets(t *testing.T) {
	t.Parallel()

	if got := domain.FlowSubscriptionRequired.Target(); got != "/subscription" {
		t.Fatalf("unexpected target %q", got)
	}
	if !domain.FlowComplete.Reached(domain.FlowProfileIncomplete) {
		t.Fatalf("complete should have reached profile stage")
	}
	if domain.FlowEmailUnverified.Reached(domain.FlowSubscriptionRequired) {
		t.Fatalf("unverified should not have reached subscription stage")
	}
}
