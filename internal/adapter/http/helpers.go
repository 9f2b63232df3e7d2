package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/qbsru/widgetdomains/internal/domain/customdomain"
)

const maxRequestBodySize = 4 << 10

// ---------------------------------------------------------------------------
// Request helpers
// ---------------------------------------------------------------------------

// readJSON decodes a JSON request body with a size limit.
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "REQUEST_TOO_LARGE", "request body too large", nil)
		} else {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body", nil)
		}
		return v, false
	}
	return v, true
}

func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

type errorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	writeJSON(w, status, errorResponse{Error: message, Code: code, Details: details})
}

var codeStatus = map[customdomain.Code]int{
	customdomain.CodeDomainAlreadyUsed:      http.StatusConflict,
	customdomain.CodeInvalidDomainFormat:    http.StatusBadRequest,
	customdomain.CodeDomainNotFound:         http.StatusNotFound,
	customdomain.CodeDNSVerificationFailed:  http.StatusUnprocessableEntity,
	customdomain.CodeVerificationInProgress: http.StatusTooManyRequests,
	customdomain.CodeSSLNotReady:            http.StatusConflict,
	customdomain.CodeSSLProvisionFailed:     http.StatusBadGateway,
	customdomain.CodeTenantMismatch:         http.StatusForbidden,
	customdomain.CodeDatabaseError:          http.StatusInternalServerError,
}

// writeDomainError maps registry errors onto HTTP responses. Causes are
// logged, never sent to the client.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var de *customdomain.Error
	if !errors.As(err, &de) {
		writeInternalError(w, r, err)
		return
	}

	status, ok := codeStatus[de.Code]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "code", de.Code, "error", err)
	}
	if de.Code == customdomain.CodeVerificationInProgress {
		if secs, ok := de.Details["retryAfterSeconds"].(int); ok {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
	}
	writeError(w, status, string(de.Code), de.Message, de.Details)
}

// writeInternalError logs the actual error server-side and returns a generic message to the client.
func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
}
