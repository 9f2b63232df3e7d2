// Package database defines the database store port (interface).
package database

import (
	"context"
	"time"

	"github.com/qbsru/widgetdomains/internal/domain/customdomain"
	"github.com/qbsru/widgetdomains/internal/domain/workspace"
)

// DomainStore persists custom domain records. Every workspace-scoped method
// filters by workspaceID in addition to the record id.
type DomainStore interface {
	// CreateDomain inserts a new unverified record. Returns domain.ErrConflict
	// when the domain name is already registered.
	CreateDomain(ctx context.Context, req customdomain.CreateRequest) (*customdomain.Config, error)
	GetDomain(ctx context.Context, id, workspaceID string) (*customdomain.Config, error)
	// GetDomainByName looks a record up by its name across all workspaces.
	GetDomainByName(ctx context.Context, domain string) (*customdomain.Config, error)
	// GetDomainByWorkspace returns the oldest record owned by the workspace.
	GetDomainByWorkspace(ctx context.Context, workspaceID string) (*customdomain.Config, error)
	ListDomains(ctx context.Context, workspaceID string) ([]customdomain.Config, error)
	// ListAwaitingCertificate returns verified records whose certificate is
	// still pending, oldest update first, across all workspaces.
	ListAwaitingCertificate(ctx context.Context, limit int) ([]customdomain.Config, error)

	// ClaimVerificationAttempt sets last_verification_attempt to now only if
	// the previous attempt is older than minInterval. Returns domain.ErrConflict
	// when another attempt holds the interval and domain.ErrNotFound when the
	// record does not exist for the workspace.
	ClaimVerificationAttempt(ctx context.Context, id, workspaceID string, now time.Time, minInterval time.Duration) (*customdomain.Config, error)
	SaveVerification(ctx context.Context, id, workspaceID string, out customdomain.VerificationOutcome) (*customdomain.Config, error)
	SaveSSLState(ctx context.Context, id, workspaceID string, state customdomain.SSLState) (*customdomain.Config, error)

	// DeleteDomain removes the record and reports whether it existed.
	DeleteDomain(ctx context.Context, id, workspaceID string) (bool, error)
	// DomainExists reports whether the name is registered by any workspace
	// other than excludeWorkspaceID (empty excludes nothing).
	DomainExists(ctx context.Context, domain, excludeWorkspaceID string) (bool, error)
}

// MembershipStore answers workspace authorization questions.
type MembershipStore interface {
	// GetMembership returns domain.ErrNotFound when the user is not a member.
	GetMembership(ctx context.Context, workspaceID, userID string) (*workspace.Membership, error)
	UpsertMembership(ctx context.Context, m *workspace.Membership) error
}

// Store is the full persistence port.
type Store interface {
	DomainStore
	MembershipStore
}
