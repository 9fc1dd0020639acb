package http

import (
	"net/http"

	"github.com/remlyo/remlyo-api/internal/application"
)

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) moderationQueue(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.ModerationQueue(r.Context(), r.URL.Query().Get("kind"), pageQuery(r))
	if err != nil {
		writeMappedError(r.Context(), w, "moderation_queue", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) moderationLog(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.ModerationLog(r.Context(), pageQuery(r))
	if err != nil {
		writeMappedError(r.Context(), w, "moderation_log", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) approveRemedy(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	id, ok := pathID(w, r, "approve_remedy", "id")
	if !ok {
		return
	}
	res, err := h.service.ApproveRemedy(r.Context(), p, id)
	if err != nil {
		writeMappedError(r.Context(), w, "approve_remedy", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) rejectRemedy(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	id, ok := pathID(w, r, "reject_remedy", "id")
	if !ok {
		return
	}
	var req reasonRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "reject_remedy", err)
		return
	}
	res, err := h.service.RejectRemedy(r.Context(), p, id, req.Reason)
	if err != nil {
		writeMappedError(r.Context(), w, "reject_remedy", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) hideReview(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	id, ok := pathID(w, r, "hide_review", "id")
	if !ok {
		return
	}
	var req reasonRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "hide_review", err)
		return
	}
	res, err := h.service.HideReview(r.Context(), p, id, req.Reason)
	if err != nil {
		writeMappedError(r.Context(), w, "hide_review", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) restoreReview(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	id, ok := pathID(w, r, "restore_review", "id")
	if !ok {
		return
	}
	res, err := h.service.RestoreReview(r.Context(), p, id)
	if err != nil {
		writeMappedError(r.Context(), w, "restore_review", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.service.ListUsers(r.Context(), application.UserQuery{
		PageQuery: pageQuery(r),
		Role:      q.Get("role"),
		Search:    q.Get("search"),
	})
	if err != nil {
		writeMappedError(r.Context(), w, "list_users", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) setUserRole(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	id, ok := pathID(w, r, "set_user_role", "id")
	if !ok {
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "set_user_role", err)
		return
	}
	res, err := h.service.SetUserRole(r.Context(), p.UserID, id, req.Role)
	if err != nil {
		writeMappedError(r.Context(), w, "set_user_role", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) deactivateUser(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	id, ok := pathID(w, r, "deactivate_user", "id")
	if !ok {
		return
	}
	if err := h.service.DeactivateUser(r.Context(), p.UserID, id); err != nil {
		writeMappedError(r.Context(), w, "deactivate_user", err)
		return
	}
	writeMessage(w, http.StatusOK, "User deactivated")
}

func (h *Handler) adminStats(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.AdminStats(r.Context())
	if err != nil {
		writeMappedError(r.Context(), w, "admin_stats", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) listAffiliates(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.ListAffiliates(r.Context(), r.URL.Query().Get("status"), pageQuery(r))
	if err != nil {
		writeMappedError(r.Context(), w, "list_affiliates", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) setAffiliateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "set_affiliate_status", "id")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "set_affiliate_status", err)
		return
	}
	res, err := h.service.SetAffiliateStatus(r.Context(), id, req.Status)
	if err != nil {
		writeMappedError(r.Context(), w, "set_affiliate_status", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}
