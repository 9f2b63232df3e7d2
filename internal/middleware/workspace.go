package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/qbsru/widgetdomains/internal/domain"
	"github.com/qbsru/widgetdomains/internal/domain/workspace"
	"github.com/qbsru/widgetdomains/internal/logger"
	"github.com/qbsru/widgetdomains/internal/port/database"
)

// WorkspaceParam is the chi URL parameter carrying the workspace id.
const WorkspaceParam = "workspaceID"

type membershipCtxKey struct{}

// RequireWorkspaceAccess admits callers that are members of the workspace in
// the URL. With roles given, the member must also hold one of them. The
// membership is stored in the context and the workspace id is added to log
// records.
func RequireWorkspaceAccess(store database.MembershipStore, roles ...workspace.Role) func(http.Handler) http.Handler {
	allowed := make(map[workspace.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid := UserIDFromContext(r.Context())
			if uid == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required")
				return
			}
			wsID := chi.URLParam(r, WorkspaceParam)

			m, err := store.GetMembership(r.Context(), wsID, uid)
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusForbidden, "TENANT_MISMATCH", "You do not have access to this workspace")
				return
			}
			if err != nil {
				slog.ErrorContext(r.Context(), "membership lookup failed", "workspace_id", wsID, "user_id", uid, "error", err)
				writeError(w, http.StatusInternalServerError, "DATABASE_ERROR", "A database error occurred")
				return
			}
			if len(allowed) > 0 && !allowed[m.Role] {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Your role does not allow this action")
				return
			}

			ctx := context.WithValue(r.Context(), membershipCtxKey{}, m)
			ctx = logger.WithWorkspaceID(ctx, wsID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MembershipFromContext returns the membership resolved by
// RequireWorkspaceAccess, or nil.
func MembershipFromContext(ctx context.Context) *workspace.Membership {
	m, _ := ctx.Value(membershipCtxKey{}).(*workspace.Membership)
	return m
}
