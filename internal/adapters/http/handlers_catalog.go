package http

import (
	"net/http"
	"strconv"

	"github.com/remlyo/remlyo-api/internal/application"
	"github.com/remlyo/remlyo-api/internal/domain"
)

func (h *Handler) listAilments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.service.ListAilments(r.Context(), application.AilmentQuery{
		PageQuery: pageQuery(r),
		Category:  q.Get("category"),
		Search:    q.Get("search"),
	})
	if err != nil {
		writeMappedError(r.Context(), w, "list_ailments", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) getAilment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "get_ailment", "id")
	if !ok {
		return
	}
	res, err := h.service.GetAilment(r.Context(), id)
	if err != nil {
		writeMappedError(r.Context(), w, "get_ailment", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) createAilment(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	var in domain.AilmentInput
	if err := decodeBody(w, r, &in); err != nil {
		writeValidationError(r.Context(), w, "create_ailment", err)
		return
	}
	res, err := h.service.CreateAilment(r.Context(), p, in)
	if err != nil {
		writeMappedError(r.Context(), w, "create_ailment", err)
		return
	}
	writeSuccess(w, http.StatusCreated, res)
}

func (h *Handler) updateAilment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "update_ailment", "id")
	if !ok {
		return
	}
	var in domain.AilmentInput
	if err := decodeBody(w, r, &in); err != nil {
		writeValidationError(r.Context(), w, "update_ailment", err)
		return
	}
	res, err := h.service.UpdateAilment(r.Context(), id, in)
	if err != nil {
		writeMappedError(r.Context(), w, "update_ailment", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) deleteAilment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "delete_ailment", "id")
	if !ok {
		return
	}
	if err := h.service.DeleteAilment(r.Context(), id); err != nil {
		writeMappedError(r.Context(), w, "delete_ailment", err)
		return
	}
	writeMessage(w, http.StatusOK, "Ailment deleted")
}

func (h *Handler) listRemedies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mine, _ := strconv.ParseBool(q.Get("mine"))
	res, err := h.service.ListRemedies(r.Context(), optionalPrincipal(r.Context()), application.RemedyQuery{
		PageQuery: pageQuery(r),
		Type:      q.Get("type"),
		AilmentID: q.Get("ailment_id"),
		Search:    q.Get("search"),
		Sort:      q.Get("sort"),
		Mine:      mine,
	})
	if err != nil {
		writeMappedError(r.Context(), w, "list_remedies", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) getRemedy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "get_remedy", "id")
	if !ok {
		return
	}
	res, err := h.service.GetRemedy(r.Context(), optionalPrincipal(r.Context()), id)
	if err != nil {
		writeMappedError(r.Context(), w, "get_remedy", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) createRemedy(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	var in domain.RemedyInput
	if err := decodeBody(w, r, &in); err != nil {
		writeValidationError(r.Context(), w, "create_remedy", err)
		return
	}
	res, err := h.service.CreateRemedy(r.Context(), p, in)
	if err != nil {
		writeMappedError(r.Context(), w, "create_remedy", err)
		return
	}
	writeSuccess(w, http.StatusCreated, res)
}

func (h *Handler) updateRemedy(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	id, ok := pathID(w, r, "update_remedy", "id")
	if !ok {
		return
	}
	var in domain.RemedyInput
	if err := decodeBody(w, r, &in); err != nil {
		writeValidationError(r.Context(), w, "update_remedy", err)
		return
	}
	res, err := h.service.UpdateRemedy(r.Context(), p, id, in)
	if err != nil {
		writeMappedError(r.Context(), w, "update_remedy", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) deleteRemedy(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	id, ok := pathID(w, r, "delete_remedy", "id")
	if !ok {
		return
	}
	if err := h.service.DeleteRemedy(r.Context(), p, id); err != nil {
		writeMappedError(r.Context(), w, "delete_remedy", err)
		return
	}
	writeMessage(w, http.StatusOK, "Remedy deleted")
}

func (h *Handler) generateRemedy(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	var req application.GenerateRemedyRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "generate_remedy", err)
		return
	}
	res, err := h.service.GenerateRemedy(r.Context(), p, req)
	if err != nil {
		writeMappedError(r.Context(), w, "generate_remedy", err)
		return
	}
	writeSuccess(w, http.StatusCreated, res)
}

func (h *Handler) saveRemedy(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	id, ok := pathID(w, r, "save_remedy", "id")
	if !ok {
		return
	}
	if err := h.service.SaveRemedy(r.Context(), p, id); err != nil {
		writeMappedError(r.Context(), w, "save_remedy", err)
		return
	}
	writeMessage(w, http.StatusOK, "Remedy saved")
}

func (h *Handler) unsaveRemedy(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	id, ok := pathID(w, r, "unsave_remedy", "id")
	if !ok {
		return
	}
	if err := h.service.UnsaveRemedy(r.Context(), p, id); err != nil {
		writeMappedError(r.Context(), w, "unsave_remedy", err)
		return
	}
	writeMessage(w, http.StatusOK, "Remedy removed from saved list")
}

func (h *Handler) listReviews(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "list_reviews", "id")
	if !ok {
		return
	}
	res, err := h.service.ListReviews(r.Context(), optionalPrincipal(r.Context()), id, pageQuery(r))
	if err != nil {
		writeMappedError(r.Context(), w, "list_reviews", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) createReview(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	id, ok := pathID(w, r, "create_review", "id")
	if !ok {
		return
	}
	var req application.ReviewRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, "create_review", err)
		return
	}
	res, err := h.service.CreateReview(r.Context(), p, id, req)
	if err != nil {
		writeMappedError(r.Context(), w, "create_review", err)
		return
	}
	writeSuccess(w, http.StatusCreated, res)
}

func (h *Handler) flagReview(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	id, ok := pathID(w, r, "flag_review", "id")
	if !ok {
		return
	}
	res, err := h.service.FlagReview(r.Context(), p, id)
	if err != nil {
		writeMappedError(r.Context(), w, "flag_review", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}
