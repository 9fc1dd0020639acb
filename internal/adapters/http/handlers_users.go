package http

import (
	"net/http"

	"github.com/remlyo/remlyo-api/internal/domain"
)

// flowStatus answers the SPA's route guard; ?path= adds an allow/redirect decision.
func (h *Handler) flowStatus(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.ResolveFlow(r.Context(), optionalPrincipal(r.Context()), r.URL.Query().Get("path"))
	if err != nil {
		writeMappedError(r.Context(), w, "flow_status", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	res, err := h.service.GetProfile(r.Context(), p)
	if err != nil {
		writeMappedError(r.Context(), w, "get_profile", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	var in domain.ProfileInput
	if err := decodeBody(w, r, &in); err != nil {
		writeValidationError(r.Context(), w, "update_profile", err)
		return
	}
	res, err := h.service.UpdateProfile(r.Context(), p, in)
	if err != nil {
		writeMappedError(r.Context(), w, "update_profile", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	if err := h.service.DeleteAccount(r.Context(), p); err != nil {
		writeMappedError(r.Context(), w, "delete_account", err)
		return
	}
	writeMessage(w, http.StatusOK, "Account deleted")
}

func (h *Handler) getConsent(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	res, err := h.service.GetConsent(r.Context(), p)
	if err != nil {
		writeMappedError(r.Context(), w, "get_consent", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) updateConsent(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	var in domain.ConsentInput
	if err := decodeBody(w, r, &in); err != nil {
		writeValidationError(r.Context(), w, "update_consent", err)
		return
	}
	res, err := h.service.UpdateConsent(r.Context(), p, in, h.proxies.clientIP(r))
	if err != nil {
		writeMappedError(r.Context(), w, "update_consent", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) listSavedRemedies(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	res, err := h.service.ListSavedRemedies(r.Context(), p, pageQuery(r))
	if err != nil {
		writeMappedError(r.Context(), w, "list_saved_remedies", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}
