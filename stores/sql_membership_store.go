package stores

import (
	"context"

	"github.com/oarkflow/squealx"
)

// SQLRoleMembershipStore resolves principal -> role assignments from SQL,
// backing the context builder.
type SQLRoleMembershipStore struct {
	db *squealx.DB
}

func NewSQLRoleMembershipStore(db *squealx.DB) *SQLRoleMembershipStore {
	return &SQLRoleMembershipStore{db: db}
}

func (s *SQLRoleMembershipStore) AssignRole(ctx context.Context, principalID, roleID string) error {
	q := `INSERT INTO rls_role_memberships(principal_id, role_id) VALUES(:principal_id, :role_id) ON CONFLICT DO NOTHING`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"principal_id": principalID, "role_id": roleID})
	return err
}

func (s *SQLRoleMembershipStore) RevokeRole(ctx context.Context, principalID, roleID string) error {
	q := `DELETE FROM rls_role_memberships WHERE principal_id=:principal_id AND role_id=:role_id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"principal_id": principalID, "role_id": roleID})
	return err
}

func (s *SQLRoleMembershipStore) ListRoles(ctx context.Context, principalID string) ([]string, error) {
	q := `SELECT role_id FROM rls_role_memberships WHERE principal_id=:principal_id ORDER BY role_id ASC`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"principal_id": principalID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]string, 0)
	for r.Next() {
		var roleID string
		if err := r.Scan(&roleID); err != nil {
			return nil, err
		}
		out = append(out, roleID)
	}
	return out, nil
}
