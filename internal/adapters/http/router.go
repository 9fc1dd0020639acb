package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/remlyo/remlyo-api/internal/application"
	"github.com/remlyo/remlyo-api/internal/domain"
)

// RequestObserver records per-route request metrics.
type RequestObserver interface {
	ObserveHTTP(route, method string, status int, elapsed time.Duration)
}

type Options struct {
	Observer       RequestObserver
	MetricsHandler http.Handler
	// Ready reports whether backing stores are reachable; nil means always ready.
	Ready          func(ctx context.Context) error
	AllowedOrigins []string
	// TrustedProxies lists the addresses or CIDR ranges allowed to set X-Forwarded-For.
	TrustedProxies []string
}

// Handler is the HTTP adapter over the application service.
type Handler struct {
	service  *application.Service
	observer RequestObserver
	opts     Options
	proxies  trustedProxies
}

func NewHandler(service *application.Service, opts Options) *Handler {
	return &Handler{
		service:  service,
		observer: opts.Observer,
		opts:     opts,
		proxies:  parseTrustedProxies(opts.TrustedProxies),
	}
}

// NewRouter registers every /api/v1 route with its access middleware.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(h.observeMiddleware)
	if len(h.opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "Idempotency-Key", "X-Request-Id"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	if h.opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", h.opts.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(h.guestOnly)
				r.Post("/register", h.register)
				r.Post("/login", h.login)
			})
			r.Post("/password/reset-request", h.passwordResetRequest)
			r.Post("/password/reset", h.passwordReset)
			r.Post("/email/verify", h.emailVerify)
			r.With(h.optionalAuth).Get("/status", h.authStatus)

			r.Group(func(r chi.Router) {
				r.Use(h.requireAuth)
				r.Post("/refresh", h.refresh)
				r.Post("/logout", h.logout)
				r.Get("/me", h.me)
				r.Post("/email/verify-request", h.emailVerifyRequest)
				r.Post("/password/change", h.passwordChange)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.With(h.optionalAuth).Get("/flow-status", h.flowStatus)
			r.Group(func(r chi.Router) {
				r.Use(h.requireAuth)
				r.Get("/profile", h.getProfile)
				r.Put("/profile", h.updateProfile)
				r.Delete("/me", h.deleteAccount)
				r.Get("/consent", h.getConsent)
				r.Put("/consent", h.updateConsent)
				r.With(h.requireFlow).Get("/saved-remedies", h.listSavedRemedies)
			})
		})

		r.Route("/ailments", func(r chi.Router) {
			r.Get("/", h.listAilments)
			r.Get("/{id}", h.getAilment)
			r.Group(func(r chi.Router) {
				r.Use(h.requireAuth)
				r.With(h.requireRoles(domain.WriterRoles...)).Post("/", h.createAilment)
				r.With(h.requireRoles(domain.WriterRoles...)).Put("/{id}", h.updateAilment)
				r.With(h.requireRoles(domain.AdminRoles...)).Delete("/{id}", h.deleteAilment)
			})
		})

		r.Route("/remedies", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(h.optionalAuth)
				r.Get("/", h.listRemedies)
				r.Get("/{id}", h.getRemedy)
				r.Get("/{id}/reviews", h.listReviews)
			})
			r.Group(func(r chi.Router) {
				r.Use(h.requireAuth)
				r.With(h.requireRoles(domain.WriterRoles...)).Post("/", h.createRemedy)
				r.Put("/{id}", h.updateRemedy)
				r.Delete("/{id}", h.deleteRemedy)
			})
			r.Group(func(r chi.Router) {
				r.Use(h.requireAuth, h.requireFlow)
				r.Post("/generate", h.generateRemedy)
				r.Post("/{id}/reviews", h.createReview)
				r.Post("/{id}/save", h.saveRemedy)
				r.Delete("/{id}/save", h.unsaveRemedy)
			})
		})
		r.With(h.requireAuth).Post("/reviews/{id}/flag", h.flagReview)

		r.Route("/subscription", func(r chi.Router) {
			r.Get("/plans", h.listPlans)
			r.Group(func(r chi.Router) {
				r.Use(h.requireAuth)
				r.Get("/status", h.subscriptionStatus)
				r.Post("/precheck", h.precheck)
				r.Post("/checkout", h.checkout)
				r.Post("/confirm", h.confirm)
				r.Post("/cancel", h.cancelSubscription)
				r.Get("/receipts", h.listReceipts)
				r.Get("/receipts/{id}", h.getReceipt)
			})
		})
		r.Post("/webhooks/stripe", h.paymentWebhook)

		r.Route("/affiliate", func(r chi.Router) {
			r.Get("/resolve/{code}", h.resolveReferral)
			r.Group(func(r chi.Router) {
				r.Use(h.requireAuth)
				r.Post("/enroll", h.enrollAffiliate)
				r.Get("/me", h.getAffiliate)
				r.Put("/payout", h.updatePayout)
			})
		})

		r.Route("/moderation", func(r chi.Router) {
			r.Use(h.requireAuth, h.requireRoles(domain.ModeratorRoles...))
			r.Get("/queue", h.moderationQueue)
			r.Get("/log", h.moderationLog)
			r.Post("/remedies/{id}/approve", h.approveRemedy)
			r.Post("/remedies/{id}/reject", h.rejectRemedy)
			r.Post("/reviews/{id}/hide", h.hideReview)
			r.Post("/reviews/{id}/restore", h.restoreReview)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.requireAuth, h.requireRoles(domain.AdminRoles...))
			r.Get("/users", h.listUsers)
			r.Put("/users/{id}/role", h.setUserRole)
			r.Post("/users/{id}/deactivate", h.deactivateUser)
			r.Get("/stats", h.adminStats)
			r.Get("/affiliates", h.listAffiliates)
			r.Post("/affiliates/{id}/status", h.setAffiliateStatus)
		})
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.opts.Ready(ctx); err != nil {
			writeFailure(r.Context(), w, "readyz", http.StatusServiceUnavailable,
				envelope{Code: "NOT_READY", Message: "dependencies unavailable"}, err)
			return
		}
	}
	writeMessage(w, http.StatusOK, "ready")
}
