package domain

import "strings"

// FlowStatus is the onboarding stage that gates application routes.
type FlowStatus string

const (
	FlowLoggedOut            FlowStatus = "LOGGED_OUT"
	FlowEmailUnverified      FlowStatus = "EMAIL_UNVERIFIED"
	FlowProfileIncomplete    FlowStatus = "PROFILE_INCOMPLETE"
	FlowSubscriptionRequired FlowStatus = "SUBSCRIPTION_REQUIRED"
	FlowComplete             FlowStatus = "COMPLETE"
)

var flowOrder = map[FlowStatus]int{
	FlowLoggedOut:            0,
	FlowEmailUnverified:      1,
	FlowProfileIncomplete:    2,
	FlowSubscriptionRequired: 3,
	FlowComplete:             4,
}

var flowTargets = map[FlowStatus]string{
	FlowLoggedOut:            "/signin",
	FlowEmailUnverified:      "/verify-email",
	FlowProfileIncomplete:    "/health-profile",
	FlowSubscriptionRequired: "/subscription",
	FlowComplete:             "/dashboard",
}

// FlowFacts are the inputs gathered from the auth and subscription status lookups.
type FlowFacts struct {
	Authenticated      bool
	EmailVerified      bool
	ProfileComplete    bool
	SubscriptionActive bool
}

// DeriveFlow checks each stage in order and stops at the first unmet one.
func DeriveFlow(f FlowFacts) FlowStatus {
	switch {
	case !f.Authenticated:
		return FlowLoggedOut
	case !f.EmailVerified:
		return FlowEmailUnverified
	case !f.ProfileComplete:
		return FlowProfileIncomplete
	case !f.SubscriptionActive:
		return FlowSubscriptionRequired
	default:
		return FlowComplete
	}
}

// Target is the page a user in this stage is sent to.
func (s FlowStatus) Target() string { return flowTargets[s] }

// Reached reports whether s is at or past stage.
func (s FlowStatus) Reached(stage FlowStatus) bool { return flowOrder[s] >= flowOrder[stage] }

var (
	publicPaths = []string{"/", "/about", "/pricing", "/terms", "/privacy", "/contact", "/reset-password", "/forgot-password"}
	guestPaths  = []string{"/signin", "/signup"}
	// onboarding pages and the stage a user must have reached to open them
	onboardingPaths = map[string]FlowStatus{
		"/verify-email":   FlowEmailUnverified,
		"/health-profile": FlowProfileIncomplete,
		"/subscription":   FlowSubscriptionRequired,
		"/checkout":       FlowSubscriptionRequired,
		"/receipt":        FlowSubscriptionRequired,
	}
)

// RouteDecision is the outcome of a route guard check.
type RouteDecision struct {
	Allowed  bool   `json:"allowed"`
	Redirect string `json:"redirect,omitempty"`
}

// ResolveRoute decides whether a user in status may open path, and where to send them otherwise.
func ResolveRoute(status FlowStatus, path string) RouteDecision {
	path = normalizePath(path)
	if matchesAny(path, publicPaths) {
		return RouteDecision{Allowed: true}
	}
	if matchesAny(path, guestPaths) {
		if status == FlowLoggedOut {
			return RouteDecision{Allowed: true}
		}
		return RouteDecision{Redirect: status.Target()}
	}
	for prefix, stage := range onboardingPaths {
		if !hasPathPrefix(path, prefix) {
			continue
		}
		if status.Reached(stage) {
			return RouteDecision{Allowed: true}
		}
		return RouteDecision{Redirect: status.Target()}
	}
	if status == FlowComplete {
		return RouteDecision{Allowed: true}
	}
	return RouteDecision{Redirect: status.Target()}
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}

func matchesAny(path string, list []string) bool {
	for _, p := range list {
		if path == p {
			return true
		}
	}
	return false
}

func hasPathPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
