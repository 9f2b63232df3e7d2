package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/qbsru/widgetdomains/internal/domain"
	"github.com/qbsru/widgetdomains/internal/domain/customdomain"
)

const customDomainColumns = `id, workspace_id, domain, cname_target, verified, verified_at,
	last_verification_attempt, verification_error, ssl_status, ssl_certificate_id,
	ssl_expires_at, ssl_requested_at, ssl_validation_records, created_at, updated_at`

func scanCustomDomain(row scannable) (customdomain.Config, error) {
	var c customdomain.Config
	var status string
	err := row.Scan(&c.ID, &c.WorkspaceID, &c.Domain, &c.CNAMETarget, &c.Verified, &c.VerifiedAt,
		&c.LastVerificationAttempt, &c.VerificationError, &status, &c.SSLCertificateID,
		&c.SSLExpiresAt, &c.SSLRequestedAt, &c.SSLValidationRecords, &c.CreatedAt, &c.UpdatedAt)
	c.SSLStatus = customdomain.SSLStatus(status)
	return c, err
}

func (s *Store) queryCustomDomains(ctx context.Context, op, query string, args ...any) ([]customdomain.Config, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []customdomain.Config
	for rows.Next() {
		c, err := scanCustomDomain(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return orEmpty(out), nil
}

func (s *Store) CreateDomain(ctx context.Context, req customdomain.CreateRequest) (*customdomain.Config, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO custom_domain (workspace_id, domain, cname_target, verified, ssl_status)
		 VALUES ($1, $2, $3, FALSE, 'pending')
		 RETURNING `+customDomainColumns,
		req.WorkspaceID, req.Domain, req.CNAMETarget)

	c, err := scanCustomDomain(row)
	if err != nil {
		return nil, conflictWrap(err, "create domain %s", req.Domain)
	}
	return &c, nil
}

func (s *Store) GetDomain(ctx context.Context, id, workspaceID string) (*customdomain.Config, error) {
	if !validID(id) {
		return nil, fmt.Errorf("get domain %s: %w", id, domain.ErrNotFound)
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+customDomainColumns+` FROM custom_domain WHERE id = $1 AND workspace_id = $2`,
		id, workspaceID)

	c, err := scanCustomDomain(row)
	if err != nil {
		return nil, notFoundWrap(err, "get domain %s", id)
	}
	return &c, nil
}

func (s *Store) GetDomainByName(ctx context.Context, name string) (*customdomain.Config, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+customDomainColumns+` FROM custom_domain WHERE domain = $1`, name)

	c, err := scanCustomDomain(row)
	if err != nil {
		return nil, notFoundWrap(err, "get domain by name %s", name)
	}
	return &c, nil
}

func (s *Store) GetDomainByWorkspace(ctx context.Context, workspaceID string) (*customdomain.Config, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+customDomainColumns+` FROM custom_domain
		 WHERE workspace_id = $1 ORDER BY created_at ASC, id ASC LIMIT 1`, workspaceID)

	c, err := scanCustomDomain(row)
	if err != nil {
		return nil, notFoundWrap(err, "get domain for workspace %s", workspaceID)
	}
	return &c, nil
}

func (s *Store) ListDomains(ctx context.Context, workspaceID string) ([]customdomain.Config, error) {
	return s.queryCustomDomains(ctx, "list domains",
		`SELECT `+customDomainColumns+` FROM custom_domain
		 WHERE workspace_id = $1 ORDER BY created_at ASC, id ASC`, workspaceID)
}

func (s *Store) ListAwaitingCertificate(ctx context.Context, limit int) ([]customdomain.Config, error) {
	return s.queryCustomDomains(ctx, "list awaiting certificate",
		`SELECT `+customDomainColumns+` FROM custom_domain
		 WHERE verified AND ssl_status = 'pending' AND ssl_certificate_id IS NOT NULL
		 ORDER BY updated_at ASC LIMIT $1`, limit)
}

func (s *Store) ClaimVerificationAttempt(ctx context.Context, id, workspaceID string, now time.Time, minInterval time.Duration) (*customdomain.Config, error) {
	if !validID(id) {
		return nil, fmt.Errorf("claim verification %s: %w", id, domain.ErrNotFound)
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE custom_domain
		 SET last_verification_attempt = $3, updated_at = $3
		 WHERE id = $1 AND workspace_id = $2
		   AND (last_verification_attempt IS NULL OR last_verification_attempt <= $4)
		 RETURNING `+customDomainColumns,
		id, workspaceID, now, now.Add(-minInterval))

	c, err := scanCustomDomain(row)
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("claim verification %s: %w", id, err)
	}

	// No row updated: either the record is gone or another attempt holds
	// the interval.
	if _, getErr := s.GetDomain(ctx, id, workspaceID); getErr != nil {
		return nil, fmt.Errorf("claim verification: %w", getErr)
	}
	return nil, fmt.Errorf("claim verification %s: %w", id, domain.ErrConflict)
}

func (s *Store) SaveVerification(ctx context.Context, id, workspaceID string, out customdomain.VerificationOutcome) (*customdomain.Config, error) {
	if !validID(id) {
		return nil, fmt.Errorf("save verification %s: %w", id, domain.ErrNotFound)
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE custom_domain
		 SET verified = $3, verified_at = $4, verification_error = $5, ssl_status = $6,
		     ssl_certificate_id = COALESCE($7, ssl_certificate_id),
		     ssl_requested_at = COALESCE($8, ssl_requested_at),
		     ssl_expires_at = CASE WHEN $7::text IS NULL THEN ssl_expires_at END,
		     ssl_validation_records = CASE WHEN $7::text IS NULL THEN ssl_validation_records ELSE '[]'::jsonb END,
		     updated_at = NOW()
		 WHERE id = $1 AND workspace_id = $2
		 RETURNING `+customDomainColumns,
		id, workspaceID, out.Verified, out.VerifiedAt, out.VerificationError,
		string(out.SSLStatus), out.SSLCertificateID, out.SSLRequestedAt)

	c, err := scanCustomDomain(row)
	if err != nil {
		return nil, notFoundWrap(err, "save verification %s", id)
	}
	return &c, nil
}

func (s *Store) SaveSSLState(ctx context.Context, id, workspaceID string, state customdomain.SSLState) (*customdomain.Config, error) {
	if !validID(id) {
		return nil, fmt.Errorf("save ssl state %s: %w", id, domain.ErrNotFound)
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE custom_domain
		 SET ssl_status = $3, ssl_expires_at = COALESCE($4, ssl_expires_at),
		     ssl_validation_records = $5, updated_at = NOW()
		 WHERE id = $1 AND workspace_id = $2
		 RETURNING `+customDomainColumns,
		id, workspaceID, string(state.Status), state.ExpiresAt, orEmpty(state.ValidationRecords))

	c, err := scanCustomDomain(row)
	if err != nil {
		return nil, notFoundWrap(err, "save ssl state %s", id)
	}
	return &c, nil
}

func (s *Store) DeleteDomain(ctx context.Context, id, workspaceID string) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM custom_domain WHERE id = $1 AND workspace_id = $2`, id, workspaceID)
	if err != nil {
		return false, fmt.Errorf("delete domain %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) DomainExists(ctx context.Context, name, excludeWorkspaceID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM custom_domain WHERE domain = $1 AND ($2 = '' OR workspace_id <> $2))`,
		name, excludeWorkspaceID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("domain exists %s: %w", name, err)
	}
	return exists, nil
}
