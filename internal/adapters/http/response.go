package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/remlyo/remlyo-api/internal/domain"
)

// envelope is the body of every JSON response: {"status":"success","data":...} or
// {"status":"error","code":...,"message":...}.
type envelope struct {
	Status   string              `json:"status"`
	Data     any                 `json:"data,omitempty"`
	Code     string              `json:"code,omitempty"`
	Message  string              `json:"message,omitempty"`
	Details  []domain.FieldError `json:"details,omitempty"`
	Redirect string              `json:"redirect,omitempty"`
}

func respond(w http.ResponseWriter, statusCode int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	respond(w, statusCode, envelope{Status: "success", Data: data})
}

func writeMessage(w http.ResponseWriter, statusCode int, message string) {
	respond(w, statusCode, envelope{Status: "success", Message: message})
}

// writeFailure logs the failed operation and writes the error envelope.
func writeFailure(ctx context.Context, w http.ResponseWriter, operation string, statusCode int, body envelope, cause error) {
	body.Status = "error"
	level := slog.LevelWarn
	if statusCode >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	attrs := []any{
		"module", "http",
		"layer", "adapter",
		"operation", operation,
		"outcome", "failure",
		"status_code", statusCode,
		"error_code", body.Code,
		"request_id", requestIDFromContext(ctx),
	}
	if cause != nil {
		attrs = append(attrs, "error", cause.Error())
	}
	slog.Default().Log(ctx, level, "http operation failed", attrs...)
	respond(w, statusCode, body)
}

func writeMappedError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	m := mapDomainError(err)
	writeFailure(ctx, w, operation, m.status, envelope{Code: m.code, Message: m.message, Details: m.details}, err)
}

func writeValidationError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	writeFailure(ctx, w, operation, http.StatusBadRequest, envelope{Code: "VALIDATION_ERROR", Message: err.Error()}, err)
}

func writeUnauthorized(ctx context.Context, w http.ResponseWriter, operation string) {
	writeFailure(ctx, w, operation, http.StatusUnauthorized, envelope{Code: "UNAUTHORIZED", Message: "authentication required"}, nil)
}
