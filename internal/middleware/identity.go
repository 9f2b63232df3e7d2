package middleware

import (
	"context"
	"encoding/json"
	"net/http"
)

// headerUserID is set by the upstream gateway after authentication.
const headerUserID = "X-User-ID"

type userCtxKey struct{}

// UserID stores the caller's X-User-ID in the request context. Requests
// without one are rejected with 401.
func UserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := r.Header.Get(headerUserID)
		if uid == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required")
			return
		}
		ctx := context.WithValue(r.Context(), userCtxKey{}, uid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserIDFromContext returns the caller's user id, or "" if absent.
func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(userCtxKey{}).(string)
	return uid
}

// writeError writes the API error body used by every handler.
func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}
