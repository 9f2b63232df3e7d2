package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	wdotel "github.com/qbsru/widgetdomains/internal/adapter/otel"
	"github.com/qbsru/widgetdomains/internal/domain"
	"github.com/qbsru/widgetdomains/internal/domain/customdomain"
	"github.com/qbsru/widgetdomains/internal/port/certmanager"
	"github.com/qbsru/widgetdomains/internal/port/database"
)

// DefaultVerificationInterval is the minimum gap between DNS checks of one domain.
const DefaultVerificationInterval = 60 * time.Second

// DefaultIssuanceDeadline is how long a requested certificate may stay pending
// before re-verification requests a replacement. ACM gives up on DNS
// validation after 72 hours.
const DefaultIssuanceDeadline = 72 * time.Hour

// Registry owns the custom domain lifecycle: registration, verification with
// certificate provisioning, status, refresh and deletion. Every operation is
// scoped to a workspace; callers are expected to have authorized the caller
// for that workspace already.
type Registry struct {
	store       database.DomainStore
	verifier    *DNSVerifier
	ssl         *SSLProvisioner
	cnameTarget string
	minInterval time.Duration
	deadline    time.Duration
	now         func() time.Time
}

// NewRegistry creates a Registry advertising cnameTarget to every workspace.
func NewRegistry(store database.DomainStore, verifier *DNSVerifier, ssl *SSLProvisioner, cnameTarget string) *Registry {
	return &Registry{
		store:       store,
		verifier:    verifier,
		ssl:         ssl,
		cnameTarget: customdomain.Normalize(cnameTarget),
		minInterval: DefaultVerificationInterval,
		deadline:    DefaultIssuanceDeadline,
		now:         time.Now,
	}
}

// SetVerificationInterval overrides DefaultVerificationInterval.
func (r *Registry) SetVerificationInterval(d time.Duration) {
	if d >= 0 {
		r.minInterval = d
	}
}

// SetIssuanceDeadline overrides DefaultIssuanceDeadline.
func (r *Registry) SetIssuanceDeadline(d time.Duration) {
	if d > 0 {
		r.deadline = d
	}
}

// SetClock replaces the time source. Used in tests.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
	r.verifier.now = now
	r.ssl.now = now
}

// CNAMETarget returns the hostname every domain must point at.
func (r *Registry) CNAMETarget() string { return r.cnameTarget }

func dbError(op string, err error) error {
	return customdomain.Wrap(customdomain.CodeDatabaseError, "A database error occurred", fmt.Errorf("%s: %w", op, err))
}

func notFound(id string) error {
	return customdomain.NewError(customdomain.CodeDomainNotFound, "Domain not found", map[string]any{"domainId": id})
}

// RegisterDomain registers domain for workspaceID. Registering a domain the
// workspace already owns returns the existing record unchanged.
func (r *Registry) RegisterDomain(ctx context.Context, workspaceID, rawDomain string) (_ *customdomain.Config, err error) {
	ctx, span := wdotel.StartDomainSpan(ctx, "register", workspaceID, "")
	defer func() { wdotel.EndSpan(span, err) }()

	name := customdomain.Normalize(rawDomain)
	if !customdomain.IsValidDomain(name) {
		return nil, customdomain.NewError(customdomain.CodeInvalidDomainFormat,
			"Invalid domain format", map[string]any{"domain": name})
	}

	existing, err := r.ownedBy(ctx, workspaceID, name)
	if err != nil || existing != nil {
		return existing, err
	}

	cfg, err := r.store.CreateDomain(ctx, customdomain.CreateRequest{
		WorkspaceID: workspaceID,
		Domain:      name,
		CNAMETarget: r.cnameTarget,
	})
	if errors.Is(err, domain.ErrConflict) {
		// Lost a race with a concurrent registration of the same name.
		existing, err = r.ownedBy(ctx, workspaceID, name)
		if err != nil || existing != nil {
			return existing, err
		}
		return nil, dbError("create domain", domain.ErrConflict)
	}
	if err != nil {
		return nil, dbError("create domain", err)
	}

	slog.InfoContext(ctx, "domain registered", "domain_id", cfg.ID, "workspace_id", workspaceID, "domain", name)
	return cfg, nil
}

// ownedBy returns the stored record for name when workspaceID owns it, nil
// when nobody does, and DOMAIN_ALREADY_USED otherwise.
func (r *Registry) ownedBy(ctx context.Context, workspaceID, name string) (*customdomain.Config, error) {
	cfg, err := r.store.GetDomainByName(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError("get domain by name", err)
	}
	if cfg.WorkspaceID != workspaceID {
		return nil, customdomain.NewError(customdomain.CodeDomainAlreadyUsed,
			"This domain is already used by another workspace", map[string]any{"domain": name})
	}
	return cfg, nil
}

// GetDomain returns the record or nil when the workspace has no such domain.
func (r *Registry) GetDomain(ctx context.Context, domainID, workspaceID string) (*customdomain.Config, error) {
	cfg, err := r.store.GetDomain(ctx, domainID, workspaceID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError("get domain", err)
	}
	return cfg, nil
}

// GetDomainByWorkspace returns the workspace's oldest domain or nil.
func (r *Registry) GetDomainByWorkspace(ctx context.Context, workspaceID string) (*customdomain.Config, error) {
	cfg, err := r.store.GetDomainByWorkspace(ctx, workspaceID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError("get domain by workspace", err)
	}
	return cfg, nil
}

// ListDomains returns every domain of the workspace, oldest first.
func (r *Registry) ListDomains(ctx context.Context, workspaceID string) ([]customdomain.Config, error) {
	list, err := r.store.ListDomains(ctx, workspaceID)
	if err != nil {
		return nil, dbError("list domains", err)
	}
	return list, nil
}

// ListAwaitingCertificate returns verified domains whose certificate has not
// been issued yet, across all workspaces.
func (r *Registry) ListAwaitingCertificate(ctx context.Context, limit int) ([]customdomain.Config, error) {
	list, err := r.store.ListAwaitingCertificate(ctx, limit)
	if err != nil {
		return nil, dbError("list awaiting certificate", err)
	}
	return list, nil
}

func (r *Registry) retryAfter(last *time.Time) time.Duration {
	if last == nil {
		return 0
	}
	return last.Add(r.minInterval).Sub(r.now())
}

func (r *Registry) inProgress(wait time.Duration) error {
	if wait <= 0 {
		wait = r.minInterval
	}
	secs := int(math.Ceil(wait.Seconds()))
	return customdomain.NewError(customdomain.CodeVerificationInProgress,
		fmt.Sprintf("Verification was attempted recently. Please wait %d seconds before trying again.", secs),
		map[string]any{"retryAfterSeconds": secs})
}

// VerifyAndProvision checks the domain's CNAME record and, on success,
// requests a certificate. At most one DNS check runs per verification
// interval; the attempt is recorded before the lookup.
func (r *Registry) VerifyAndProvision(ctx context.Context, domainID, workspaceID string) (_ *customdomain.Config, err error) {
	ctx, span := wdotel.StartDomainSpan(ctx, "verify", workspaceID, domainID)
	defer func() { wdotel.EndSpan(span, err) }()

	cfg, err := r.store.GetDomain(ctx, domainID, workspaceID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, notFound(domainID)
	}
	if err != nil {
		return nil, dbError("get domain", err)
	}
	if wait := r.retryAfter(cfg.LastVerificationAttempt); wait > 0 {
		return nil, r.inProgress(wait)
	}

	cfg, err = r.store.ClaimVerificationAttempt(ctx, domainID, workspaceID, r.now(), r.minInterval)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil, notFound(domainID)
	case errors.Is(err, domain.ErrConflict):
		return nil, r.inProgress(r.minInterval)
	case err != nil:
		return nil, dbError("claim verification attempt", err)
	}

	res := r.verifier.Verify(ctx, cfg.Domain, cfg.CNAMETarget)
	if !res.Verified {
		return nil, r.saveFailure(ctx, cfg, res)
	}

	now := r.now()
	out := customdomain.VerificationOutcome{
		Verified:   true,
		VerifiedAt: &now,
		SSLStatus:  customdomain.SSLPending,
	}
	var replaced *string
	if r.keepsCertificate(cfg) {
		out.SSLStatus = cfg.SSLStatus
	} else {
		prov := r.ssl.ProvisionSSL(ctx, cfg.Domain)
		if prov.Success {
			out.SSLCertificateID = &prov.CertificateID
			out.SSLRequestedAt = &now
			replaced = cfg.SSLCertificateID
		} else {
			out.SSLStatus = customdomain.SSLError
		}
	}

	saved, err := r.store.SaveVerification(ctx, domainID, workspaceID, out)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, notFound(domainID)
	}
	if err != nil {
		return nil, dbError("save verification", err)
	}
	if replaced != nil && *replaced != *out.SSLCertificateID {
		// The superseded certificate is unreachable once the new id is stored.
		_ = r.ssl.DeleteSSL(ctx, *replaced)
	}

	slog.InfoContext(ctx, "domain verified",
		"domain_id", domainID, "workspace_id", workspaceID, "domain", cfg.Domain, "ssl_status", saved.SSLStatus)
	return saved, nil
}

// keepsCertificate reports whether a successful check should keep the
// domain's current certificate instead of requesting a new one. An issued
// certificate survives a failed re-check; a pending one only until the
// issuance deadline.
func (r *Registry) keepsCertificate(cfg *customdomain.Config) bool {
	if cfg.SSLCertificateID == nil {
		return false
	}
	switch cfg.SSLStatus {
	case customdomain.SSLActive:
		return true
	case customdomain.SSLPending:
		return !r.issuanceStalled(cfg)
	default:
		return false
	}
}

// issuanceStalled reports whether a pending certificate has outlived the
// issuance deadline.
func (r *Registry) issuanceStalled(cfg *customdomain.Config) bool {
	if cfg.SSLCertificateID == nil || cfg.SSLStatus != customdomain.SSLPending || cfg.SSLRequestedAt == nil {
		return false
	}
	return r.now().Sub(*cfg.SSLRequestedAt) > r.deadline
}

func (r *Registry) saveFailure(ctx context.Context, cfg *customdomain.Config, res VerificationResult) error {
	msg := res.Error
	// The certificate and its status are kept for the next successful check;
	// EffectiveSSLStatus hides them while DNS is unverified.
	_, err := r.store.SaveVerification(ctx, cfg.ID, cfg.WorkspaceID, customdomain.VerificationOutcome{
		Verified:          false,
		VerificationError: &msg,
		SSLStatus:         cfg.SSLStatus,
	})
	if errors.Is(err, domain.ErrNotFound) {
		return notFound(cfg.ID)
	}
	if err != nil {
		return dbError("save verification", err)
	}

	var found any
	if res.FoundCNAME != nil {
		found = *res.FoundCNAME
	}
	slog.InfoContext(ctx, "domain verification failed",
		"domain_id", cfg.ID, "workspace_id", cfg.WorkspaceID, "domain", cfg.Domain, "kind", res.Kind)

	return customdomain.NewError(customdomain.CodeDNSVerificationFailed, msg, map[string]any{
		"expectedCname": res.ExpectedCNAME,
		"foundCname":    found,
		"kind":          string(res.Kind),
		"instructions":  res.Instructions,
	})
}

// GetDomainStatus builds the read-only status view of a domain.
func (r *Registry) GetDomainStatus(ctx context.Context, domainID, workspaceID string) (*customdomain.StatusView, error) {
	cfg, err := r.store.GetDomain(ctx, domainID, workspaceID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, notFound(domainID)
	}
	if err != nil {
		return nil, dbError("get domain", err)
	}
	return r.statusView(cfg), nil
}

func (r *Registry) statusView(cfg *customdomain.Config) *customdomain.StatusView {
	now := r.now()
	ssl := cfg.EffectiveSSLStatus()
	v := &customdomain.StatusView{
		ID:                      cfg.ID,
		Domain:                  cfg.Domain,
		CNAMETarget:             cfg.CNAMETarget,
		DNSStatus:               cfg.DNSStatus(),
		SSLStatus:               ssl,
		Ready:                   cfg.Ready(),
		VerifiedAt:              cfg.VerifiedAt,
		SSLExpiresAt:            cfg.SSLExpiresAt,
		VerificationError:       cfg.VerificationError,
		LastVerificationAttempt: cfg.LastVerificationAttempt,
		Instructions:            GenerateDNSInstructions(cfg.Domain, cfg.CNAMETarget),
	}
	if cfg.Verified && ssl == customdomain.SSLActive {
		v.NeedsRenewal = NeedsRenewal(cfg.SSLExpiresAt, now, r.ssl.RenewalWindow())
	}
	if cfg.Verified && ssl == customdomain.SSLPending {
		v.CertificateValidation = cfg.SSLValidationRecords
	}
	if cfg.LastVerificationAttempt != nil {
		next := cfg.LastVerificationAttempt.Add(r.minInterval)
		if next.After(now) {
			v.NextVerificationAt = &next
		}
	}
	v.NextSteps = nextSteps(cfg, v, r.issuanceStalled(cfg))
	return v
}

func nextSteps(cfg *customdomain.Config, v *customdomain.StatusView, stalled bool) []string {
	if !cfg.Verified {
		steps := []string{
			fmt.Sprintf("Add a CNAME record named %q pointing to %s at your DNS provider.",
				v.Instructions.Name, v.CNAMETarget),
			"Run verification once the record has propagated. This can take up to 48 hours.",
		}
		if cfg.VerificationError != nil {
			steps = append(steps, "Last check: "+*cfg.VerificationError)
		}
		return steps
	}

	switch v.SSLStatus {
	case customdomain.SSLActive:
		if v.NeedsRenewal {
			return []string{"Your domain is ready. The certificate expires soon and is renewed by the certificate authority."}
		}
		return []string{"Your domain is ready."}
	case customdomain.SSLExpired:
		return []string{"The certificate has expired. Run verification again to request a new one."}
	case customdomain.SSLError:
		return []string{"Certificate issuance failed. Run verification again to request a new certificate."}
	}

	if stalled {
		return []string{"Certificate issuance is taking longer than expected. Run verification again to request a new certificate."}
	}
	if len(v.CertificateValidation) == 0 {
		return []string{"Wait for the SSL certificate to be issued. This usually takes a few minutes."}
	}
	steps := make([]string, 0, len(v.CertificateValidation)+1)
	for _, rec := range v.CertificateValidation {
		steps = append(steps, fmt.Sprintf("Add a %s record named %q with the value %s so the certificate authority can validate your domain.",
			rec.Type, rec.Name, rec.Value))
	}
	return append(steps, "Wait for the SSL certificate to be issued once the record has propagated.")
}

// RefreshSSLStatus polls the certificate manager and stores the latest status
// and expiry. Concurrent refreshes are safe; the last write wins.
func (r *Registry) RefreshSSLStatus(ctx context.Context, domainID, workspaceID string) (_ *customdomain.RefreshResult, err error) {
	ctx, span := wdotel.StartDomainSpan(ctx, "refresh_ssl", workspaceID, domainID)
	defer func() { wdotel.EndSpan(span, err) }()

	cfg, err := r.store.GetDomain(ctx, domainID, workspaceID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, notFound(domainID)
	}
	if err != nil {
		return nil, dbError("get domain", err)
	}
	if !cfg.Verified {
		return nil, customdomain.NewError(customdomain.CodeSSLNotReady,
			"The domain must pass DNS verification before its certificate can be checked", map[string]any{"domainId": domainID})
	}
	if cfg.SSLCertificateID == nil {
		return nil, customdomain.NewError(customdomain.CodeSSLNotReady,
			"No certificate has been requested for this domain yet", map[string]any{"domainId": domainID})
	}

	state := customdomain.SSLState{}
	needsRenewal := false
	st, err := r.ssl.CheckSSLStatus(ctx, *cfg.SSLCertificateID)
	switch {
	case errors.Is(err, certmanager.ErrCertificateNotFound):
		state.Status = customdomain.SSLError
	case err != nil:
		return nil, customdomain.Wrap(customdomain.CodeSSLProvisionFailed, "Could not check the certificate status", err)
	default:
		state.Status = st.Status
		state.ExpiresAt = st.ExpiresAt
		state.ValidationRecords = st.ValidationRecords
		needsRenewal = st.NeedsRenewal
	}

	saved, err := r.store.SaveSSLState(ctx, domainID, workspaceID, state)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, notFound(domainID)
	}
	if err != nil {
		return nil, dbError("save ssl state", err)
	}
	r.ssl.metrics.RecordSSLRefresh(ctx, string(state.Status))

	slog.InfoContext(ctx, "ssl status refreshed", "domain_id", domainID, "workspace_id", workspaceID, "ssl_status", state.Status)
	return &customdomain.RefreshResult{Config: saved, NeedsRenewal: needsRenewal}, nil
}

// DeleteDomain releases the domain's certificate on a best-effort basis and
// deletes the record. It reports whether a record existed.
func (r *Registry) DeleteDomain(ctx context.Context, domainID, workspaceID string) (_ bool, err error) {
	ctx, span := wdotel.StartDomainSpan(ctx, "delete", workspaceID, domainID)
	defer func() { wdotel.EndSpan(span, err) }()

	cfg, err := r.store.GetDomain(ctx, domainID, workspaceID)
	switch {
	case err == nil && cfg.SSLCertificateID != nil:
		if derr := r.ssl.DeleteSSL(ctx, *cfg.SSLCertificateID); derr != nil {
			slog.WarnContext(ctx, "continuing domain delete after certificate delete failure",
				"domain_id", domainID, "workspace_id", workspaceID, "error", derr)
		}
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		slog.WarnContext(ctx, "load domain before delete", "domain_id", domainID, "error", err)
	}

	existed, err := r.store.DeleteDomain(ctx, domainID, workspaceID)
	if err != nil {
		return false, dbError("delete domain", err)
	}
	if existed {
		slog.InfoContext(ctx, "domain deleted", "domain_id", domainID, "workspace_id", workspaceID)
	}
	return existed, nil
}

// IsDomainAvailable reports whether domain is free to register. A record
// owned by excludeWorkspaceID counts as available.
func (r *Registry) IsDomainAvailable(ctx context.Context, rawDomain, excludeWorkspaceID string) (bool, error) {
	name := customdomain.Normalize(rawDomain)
	if !customdomain.IsValidDomain(name) {
		return false, customdomain.NewError(customdomain.CodeInvalidDomainFormat,
			"Invalid domain format", map[string]any{"domain": name})
	}
	exists, err := r.store.DomainExists(ctx, name, excludeWorkspaceID)
	if err != nil {
		return false, dbError("domain exists", err)
	}
	return !exists, nil
}
