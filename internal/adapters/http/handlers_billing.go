package http

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/remlyo/remlyo-api/internal/application"
)

const maxWebhookBytes = 64 << 10

func (h *Handler) listPlans(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{"plans": h.service.Plans()})
}

func (h *Handler) subscriptionStatus(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	res, err := h.service.SubscriptionStatus(r.Context(), p)
	if err != nil {
		writeMappedError(r.Context(), w, "subscription_status", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) precheck(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	var req application.PrecheckRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "subscription_precheck", err)
		return
	}
	res, err := h.service.PrecheckSubscription(r.Context(), p, req)
	if err != nil {
		writeMappedError(r.Context(), w, "subscription_precheck", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	var req application.CheckoutRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "subscription_checkout", err)
		return
	}
	res, err := h.service.Checkout(r.Context(), p, req, strings.TrimSpace(r.Header.Get("Idempotency-Key")))
	if err != nil {
		writeMappedError(r.Context(), w, "subscription_checkout", err)
		return
	}
	writeSuccess(w, http.StatusCreated, res)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	var req application.ConfirmRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "subscription_confirm", err)
		return
	}
	res, err := h.service.ConfirmCheckout(r.Context(), p, req)
	if err != nil {
		writeMappedError(r.Context(), w, "subscription_confirm", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	res, err := h.service.CancelSubscription(r.Context(), p)
	if err != nil {
		writeMappedError(r.Context(), w, "subscription_cancel", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) listReceipts(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	res, err := h.service.ListReceipts(r.Context(), p, pageQuery(r))
	if err != nil {
		writeMappedError(r.Context(), w, "list_receipts", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) getReceipt(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	id, ok := pathID(w, r, "get_receipt", "id")
	if !ok {
		return
	}
	res, err := h.service.GetReceipt(r.Context(), p, id)
	if err != nil {
		writeMappedError(r.Context(), w, "get_receipt", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

// paymentWebhook must see the raw body for signature verification.
func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeValidationError(r.Context(), w, "payment_webhook", errors.New("unreadable webhook body"))
		return
	}
	if err := h.service.HandlePaymentWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		writeMappedError(r.Context(), w, "payment_webhook", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handler) enrollAffiliate(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	res, err := h.service.EnrollAffiliate(r.Context(), p)
	if err != nil {
		writeMappedError(r.Context(), w, "enroll_affiliate", err)
		return
	}
	writeSuccess(w, http.StatusCreated, res)
}

func (h *Handler) getAffiliate(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	res, err := h.service.GetAffiliate(r.Context(), p)
	if err != nil {
		writeMappedError(r.Context(), w, "get_affiliate", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) updatePayout(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	var req application.PayoutRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "update_payout", err)
		return
	}
	res, err := h.service.UpdatePayout(r.Context(), p, req)
	if err != nil {
		writeMappedError(r.Context(), w, "update_payout", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) resolveReferral(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.ResolveReferral(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeMappedError(r.Context(), w, "resolve_referral", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}
