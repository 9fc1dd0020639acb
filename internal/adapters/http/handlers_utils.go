package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/remlyo/remlyo-api/internal/application"
)

const maxBodyBytes = 1 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}

func parseIntDefault(raw string, fallback int) int {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func pageQuery(r *http.Request) application.PageQuery {
	q := r.URL.Query()
	return application.PageQuery{
		Page:  parseIntDefault(q.Get("page"), 1),
		Limit: parseIntDefault(q.Get("limit"), 0),
	}
}

// pathID parses a UUID route parameter, writing a 400 when it is malformed.
func pathID(w http.ResponseWriter, r *http.Request, operation, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeValidationError(r.Context(), w, operation, errors.New("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

// bind decodes the request body into a fresh T, answering 400 itself on failure.
func bind[T any](w http.ResponseWriter, r *http.Request, operation string) (T, bool) {
	var req T
	if err := decodeBody(w, r, &req); err != nil {
		writeValidationError(r.Context(), w, operation, err)
		return req, false
	}
	return req, true
}

// reply writes data on success and the mapped domain error otherwise.
func reply(w http.ResponseWriter, r *http.Request, operation string, statusCode int, data any, err error) {
	if err != nil {
		writeMappedError(r.Context(), w, operation, err)
		return
	}
	writeSuccess(w, statusCode, data)
}

// acknowledge is reply for operations that only confirm with a message.
func acknowledge(w http.ResponseWriter, r *http.Request, operation, message string, err error) {
	if err != nil {
		writeMappedError(r.Context(), w, operation, err)
		return
	}
	writeMessage(w, http.StatusOK, message)
}
