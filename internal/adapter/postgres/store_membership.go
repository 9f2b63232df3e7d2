package postgres

import (
	"context"
	"fmt"

	"github.com/qbsru/widgetdomains/internal/domain"
	"github.com/qbsru/widgetdomains/internal/domain/workspace"
)

func (s *Store) GetMembership(ctx context.Context, workspaceID, userID string) (*workspace.Membership, error) {
	var m workspace.Membership
	var role string
	err := s.pool.QueryRow(ctx,
		`SELECT workspace_id, user_id, role, created_at FROM workspace_member
		 WHERE workspace_id = $1 AND user_id = $2`, workspaceID, userID).
		Scan(&m.WorkspaceID, &m.UserID, &role, &m.CreatedAt)
	if err != nil {
		return nil, notFoundWrap(err, "get membership %s/%s", workspaceID, userID)
	}
	m.Role = workspace.Role(role)
	return &m, nil
}

func (s *Store) UpsertMembership(ctx context.Context, m *workspace.Membership) error {
	if !m.Role.Valid() {
		return fmt.Errorf("upsert membership: role %q: %w", m.Role, domain.ErrValidation)
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO workspace_member (workspace_id, user_id, role)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (workspace_id, user_id) DO UPDATE SET role = EXCLUDED.role
		 RETURNING created_at`, m.WorkspaceID, m.UserID, string(m.Role)).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert membership %s/%s: %w", m.WorkspaceID, m.UserID, err)
	}
	return nil
}
