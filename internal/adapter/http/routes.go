package http

import (
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/qbsru/widgetdomains/internal/domain/workspace"
	"github.com/qbsru/widgetdomains/internal/middleware"
	"github.com/qbsru/widgetdomains/internal/port/cache"
	"github.com/qbsru/widgetdomains/internal/port/database"
)

// idempotencyTTL bounds how long a stored response can be replayed.
const idempotencyTTL = 24 * time.Hour

// MountRoutes registers all API routes on the given chi router. Every
// workspace route requires membership; mutations require admin or owner.
// A non-nil idem store enables Idempotency-Key replay on mutations.
func MountRoutes(r chi.Router, h *Handlers, members database.MembershipStore, idem cache.Cache) {
	r.Get("/health", h.Health)
	r.Get("/health/ready", h.Ready)

	r.Route("/api/v1/workspaces/{"+middleware.WorkspaceParam+"}", func(r chi.Router) {
		r.Use(middleware.UserID)

		read := middleware.RequireWorkspaceAccess(members)
		// Replays run behind the role check, so a caller who lost access
		// cannot fetch a stored response.
		write := chi.Chain(middleware.RequireWorkspaceAccess(members, workspace.RoleAdmin, workspace.RoleOwner))
		if idem != nil {
			write = append(write, middleware.Idempotency(idem, idempotencyTTL))
		}

		r.With(read).Get("/domain", h.GetWorkspaceDomain)

		r.With(read).Get("/domains", h.ListDomains)
		r.With(write...).Post("/domains", h.RegisterDomain)
		r.With(read).Get("/domains/availability", h.DomainAvailability)

		r.With(read).Get("/domains/{"+paramDomainID+"}", h.GetDomain)
		r.With(write...).Delete("/domains/{"+paramDomainID+"}", h.DeleteDomain)
		r.With(write...).Post("/domains/{"+paramDomainID+"}/verify", h.VerifyDomain)
		r.With(read).Get("/domains/{"+paramDomainID+"}/status", h.GetDomainStatus)
		r.With(write...).Post("/domains/{"+paramDomainID+"}/ssl/refresh", h.RefreshSSL)
	})
}
