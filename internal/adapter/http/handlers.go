package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/qbsru/widgetdomains/internal/domain/customdomain"
	"github.com/qbsru/widgetdomains/internal/middleware"
	"github.com/qbsru/widgetdomains/internal/port/audit"
)

// Registry is the custom domain lifecycle the handlers drive.
type Registry interface {
	RegisterDomain(ctx context.Context, workspaceID, domain string) (*customdomain.Config, error)
	GetDomain(ctx context.Context, domainID, workspaceID string) (*customdomain.Config, error)
	GetDomainByWorkspace(ctx context.Context, workspaceID string) (*customdomain.Config, error)
	ListDomains(ctx context.Context, workspaceID string) ([]customdomain.Config, error)
	VerifyAndProvision(ctx context.Context, domainID, workspaceID string) (*customdomain.Config, error)
	GetDomainStatus(ctx context.Context, domainID, workspaceID string) (*customdomain.StatusView, error)
	RefreshSSLStatus(ctx context.Context, domainID, workspaceID string) (*customdomain.RefreshResult, error)
	DeleteDomain(ctx context.Context, domainID, workspaceID string) (bool, error)
	IsDomainAvailable(ctx context.Context, domain, excludeWorkspaceID string) (bool, error)
}

// Auditor records audit events without blocking.
type Auditor interface {
	Record(ctx context.Context, e audit.Event)
}

// ReadinessCheck is one dependency checked by /health/ready.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handlers holds the HTTP handlers of the custom domain API.
type Handlers struct {
	Registry  Registry
	Audit     Auditor
	Readiness []ReadinessCheck
}

const (
	paramDomainID  = "domainID"
	readinessLimit = 2 * time.Second
)

type registerRequest struct {
	Domain string `json:"domain"`
}

func (h *Handlers) record(r *http.Request, action, resourceID string, meta map[string]string) {
	if h.Audit == nil {
		return
	}
	h.Audit.Record(r.Context(), audit.Event{
		Action:      action,
		WorkspaceID: urlParam(r, middleware.WorkspaceParam),
		UserID:      middleware.UserIDFromContext(r.Context()),
		ResourceID:  resourceID,
		Metadata:    meta,
	})
}

// RegisterDomain handles POST /workspaces/{workspaceID}/domains.
func (h *Handlers) RegisterDomain(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[registerRequest](w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Domain) == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "domain is required", nil)
		return
	}

	cfg, err := h.Registry.RegisterDomain(r.Context(), urlParam(r, middleware.WorkspaceParam), req.Domain)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.record(r, audit.ActionDomainRegistered, cfg.ID, map[string]string{"domain": cfg.Domain})
	writeJSON(w, http.StatusCreated, cfg)
}

// ListDomains handles GET /workspaces/{workspaceID}/domains.
func (h *Handlers) ListDomains(w http.ResponseWriter, r *http.Request) {
	list, err := h.Registry.ListDomains(r.Context(), urlParam(r, middleware.WorkspaceParam))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if list == nil {
		list = []customdomain.Config{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GetWorkspaceDomain handles GET /workspaces/{workspaceID}/domain. A
// workspace without a domain gets a JSON null.
func (h *Handlers) GetWorkspaceDomain(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Registry.GetDomainByWorkspace(r.Context(), urlParam(r, middleware.WorkspaceParam))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// GetDomain handles GET /workspaces/{workspaceID}/domains/{domainID}.
func (h *Handlers) GetDomain(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, paramDomainID)
	cfg, err := h.Registry.GetDomain(r.Context(), id, urlParam(r, middleware.WorkspaceParam))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if cfg == nil {
		writeError(w, http.StatusNotFound, string(customdomain.CodeDomainNotFound), "Domain not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// VerifyDomain handles POST /workspaces/{workspaceID}/domains/{domainID}/verify.
func (h *Handlers) VerifyDomain(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, paramDomainID)
	cfg, err := h.Registry.VerifyAndProvision(r.Context(), id, urlParam(r, middleware.WorkspaceParam))
	if err != nil {
		if errors.Is(err, customdomain.ErrDNSVerificationFailed) {
			h.record(r, audit.ActionDomainVerificationFailed, id, nil)
		}
		writeDomainError(w, r, err)
		return
	}
	meta := map[string]string{"domain": cfg.Domain, "ssl_status": string(cfg.SSLStatus)}
	h.record(r, audit.ActionDomainVerified, id, meta)
	writeJSON(w, http.StatusOK, cfg)
}

// GetDomainStatus handles GET /workspaces/{workspaceID}/domains/{domainID}/status.
func (h *Handlers) GetDomainStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.Registry.GetDomainStatus(r.Context(), urlParam(r, paramDomainID), urlParam(r, middleware.WorkspaceParam))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// RefreshSSL handles POST /workspaces/{workspaceID}/domains/{domainID}/ssl/refresh.
func (h *Handlers) RefreshSSL(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, paramDomainID)
	res, err := h.Registry.RefreshSSLStatus(r.Context(), id, urlParam(r, middleware.WorkspaceParam))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.record(r, audit.ActionSSLRefreshed, id, map[string]string{"ssl_status": string(res.Config.SSLStatus)})
	writeJSON(w, http.StatusOK, res)
}

// DeleteDomain handles DELETE /workspaces/{workspaceID}/domains/{domainID}.
func (h *Handlers) DeleteDomain(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, paramDomainID)
	existed, err := h.Registry.DeleteDomain(r.Context(), id, urlParam(r, middleware.WorkspaceParam))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if existed {
		h.record(r, audit.ActionDomainDeleted, id, nil)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": existed})
}

// DomainAvailability handles GET /workspaces/{workspaceID}/domains/availability?domain=.
// A domain the caller's workspace already owns counts as available.
func (h *Handlers) DomainAvailability(w http.ResponseWriter, r *http.Request) {
	d := r.URL.Query().Get("domain")
	if d == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "domain is required", nil)
		return
	}
	available, err := h.Registry.IsDomainAvailable(r.Context(), d, urlParam(r, middleware.WorkspaceParam))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"domain": customdomain.Normalize(d), "available": available})
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /health/ready by checking every dependency.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessLimit)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.Readiness))
	for _, c := range h.Readiness {
		if err := c.Check(ctx); err != nil {
			checks[c.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[c.Name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "unavailable"
	}
	writeJSON(w, status, map[string]any{"status": overall, "checks": checks})
}
