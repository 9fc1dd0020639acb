package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/application"
	"github.com/remlyo/remlyo-api/internal/domain"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeyPrincipal ctxKey = "principal"
)

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				writeFailure(r.Context(), w, "http_panic_recovery", http.StatusInternalServerError,
					envelope{Code: "INTERNAL_ERROR", Message: "internal server error"},
					fmt.Errorf("panic on %s %s: %v", r.Method, r.URL.Path, rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(payload []byte) (int, error) {
	if r.statusCode == 0 {
		r.statusCode = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(payload)
	r.bytes += n
	return n, err
}

// observeMiddleware logs every request and feeds the route-level metrics.
func (h *Handler) observeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		statusCode := recorder.statusCode
		if statusCode == 0 {
			statusCode = http.StatusOK
		}
		elapsed := time.Since(start)
		route := ""
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if h.observer != nil {
			h.observer.ObserveHTTP(route, r.Method, statusCode, elapsed)
		}

		outcome := "success"
		if statusCode >= 400 {
			outcome = "failure"
		}
		fields := []any{
			"module", "http",
			"layer", "adapter",
			"operation", "http_request",
			"outcome", outcome,
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status_code", statusCode,
			"bytes", recorder.bytes,
			"duration_ms", elapsed.Milliseconds(),
			"request_id", requestIDFromContext(r.Context()),
		}
		level := slog.LevelInfo
		switch {
		case statusCode >= 500:
			level = slog.LevelError
		case statusCode >= 400:
			level = slog.LevelWarn
		}
		slog.Default().Log(r.Context(), level, "http request completed", fields...)
	})
}

// requireAuth rejects requests without a valid, unrevoked bearer token.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerTokenFromHeader(r.Header.Get("Authorization"))
		if err != nil {
			writeUnauthorized(r.Context(), w, "require_auth")
			return
		}
		p, err := h.service.Authenticate(r.Context(), raw)
		if err != nil {
			writeMappedError(r.Context(), w, "require_auth", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}

// optionalAuth attaches the caller when a valid token is sent and otherwise continues anonymously.
func (h *Handler) optionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw, err := bearerTokenFromHeader(r.Header.Get("Authorization")); err == nil {
			if p, authErr := h.service.Authenticate(r.Context(), raw); authErr == nil {
				r = r.WithContext(withPrincipal(r.Context(), p))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// guestOnly keeps signed-in callers away from the sign-in and sign-up endpoints.
func (h *Handler) guestOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw, err := bearerTokenFromHeader(r.Header.Get("Authorization")); err == nil {
			if _, authErr := h.service.Authenticate(r.Context(), raw); authErr == nil {
				writeMappedError(r.Context(), w, "guest_only", domain.ErrAlreadyAuthenticated)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// requireRoles re-reads the caller's role from storage so demotions apply immediately.
// A failed lookup is a server error, not a denial.
func (h *Handler) requireRoles(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := principalFromContext(r.Context())
			if !ok {
				writeUnauthorized(r.Context(), w, "require_roles")
				return
			}
			role, err := h.service.CurrentRole(r.Context(), p.UserID)
			if err != nil {
				if errors.Is(err, domain.ErrForbidden) {
					writeMappedError(r.Context(), w, "require_roles", err)
					return
				}
				writeFailure(r.Context(), w, "require_roles", http.StatusInternalServerError,
					envelope{Code: "INTERNAL_ERROR", Message: "failed to verify permissions"}, err)
				return
			}
			if !role.In(roles...) {
				writeFailure(r.Context(), w, "require_roles", http.StatusForbidden,
					envelope{Code: "FORBIDDEN", Message: "you do not have permission to perform this action"}, nil)
				return
			}
			p.Role = role
			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
		})
	}
}

// requireFlow only lets callers through once onboarding is complete.
func (h *Handler) requireFlow(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := principalFromContext(r.Context())
		if !ok {
			writeUnauthorized(r.Context(), w, "require_flow")
			return
		}
		status, err := h.service.FlowStatus(r.Context(), &p)
		if err != nil {
			writeMappedError(r.Context(), w, "require_flow", err)
			return
		}
		if status != domain.FlowComplete {
			writeFailure(r.Context(), w, "require_flow", http.StatusForbidden, envelope{
				Code:     "FLOW_INCOMPLETE",
				Message:  "complete onboarding first: " + string(status),
				Redirect: status.Target(),
			}, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withPrincipal(ctx context.Context, p application.Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

func principalFromContext(ctx context.Context) (application.Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(application.Principal)
	return p, ok
}

// optionalPrincipal returns nil for anonymous callers.
func optionalPrincipal(ctx context.Context) *application.Principal {
	if p, ok := principalFromContext(ctx); ok {
		return &p
	}
	return nil
}

func requestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return s
	}
	return ""
}

func bearerTokenFromHeader(header string) (string, error) {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", errors.New("missing bearer token")
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
