package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/agnihq/rls"
)

// SQLRuleStore persists rules in SQL (squealx). Operations, role ids and
// the expression tree are stored as JSON columns; the expression column
// uses the tagged-union wire shape, so malformed trees are rejected on
// read rather than defaulting silently.
type SQLRuleStore struct {
	db *squealx.DB
}

func NewSQLRuleStore(db *squealx.DB) *SQLRuleStore {
	return &SQLRuleStore{db: db}
}

const ruleColumns = `id, tenant_id, object_type, name, description, effect, operations_json, role_ids_json, expression_json, priority, is_active, created_at, updated_at`

func (s *SQLRuleStore) CreateRule(ctx context.Context, r *rls.Rule) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	args, err := ruleArgs(r)
	if err != nil {
		return err
	}
	q := `INSERT INTO rls_rules(` + ruleColumns + `) VALUES(:id, :tenant_id, :object_type, :name, :description, :effect, :operations_json, :role_ids_json, :expression_json, :priority, :is_active, :created_at, :updated_at)`
	_, err = s.db.NamedExecContext(ctx, q, args)
	return err
}

func (s *SQLRuleStore) UpdateRule(ctx context.Context, r *rls.Rule) error {
	r.UpdatedAt = time.Now()
	args, err := ruleArgs(r)
	if err != nil {
		return err
	}
	q := `UPDATE rls_rules SET object_type=:object_type, name=:name, description=:description, effect=:effect, operations_json=:operations_json, role_ids_json=:role_ids_json, expression_json=:expression_json, priority=:priority, is_active=:is_active, updated_at=:updated_at WHERE tenant_id=:tenant_id AND id=:id`
	_, err = s.db.NamedExecContext(ctx, q, args)
	return err
}

// SoftDeleteRule deactivates the row; it stays in the store and out of
// every active listing.
func (s *SQLRuleStore) SoftDeleteRule(ctx context.Context, tenantID, id string) error {
	q := `UPDATE rls_rules SET is_active=0, updated_at=:updated_at WHERE tenant_id=:tenant_id AND id=:id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"tenant_id":  tenantID,
		"id":         id,
		"updated_at": time.Now(),
	})
	return err
}

func (s *SQLRuleStore) HardDeleteRule(ctx context.Context, tenantID, id string) error {
	q := `DELETE FROM rls_rules WHERE tenant_id=:tenant_id AND id=:id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"tenant_id": tenantID, "id": id})
	return err
}

func (s *SQLRuleStore) GetRule(ctx context.Context, tenantID, id string) (*rls.Rule, error) {
	q := `SELECT ` + ruleColumns + ` FROM rls_rules WHERE tenant_id=:tenant_id AND id=:id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"tenant_id": tenantID, "id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("%w: %s", rls.ErrRuleNotFound, id)
	}
	return scanRule(r)
}

func (s *SQLRuleStore) ListRules(ctx context.Context, tenantID string) ([]*rls.Rule, error) {
	q := `SELECT ` + ruleColumns + ` FROM rls_rules WHERE tenant_id=:tenant_id ORDER BY created_at ASC, id ASC`
	return s.listRules(ctx, q, map[string]any{"tenant_id": tenantID})
}

// ListActiveRules is the cache's single read on a miss. Arrival order
// (creation time, then id) is preserved for deterministic priority ties.
func (s *SQLRuleStore) ListActiveRules(ctx context.Context, tenantID string) ([]*rls.Rule, error) {
	q := `SELECT ` + ruleColumns + ` FROM rls_rules WHERE tenant_id=:tenant_id AND is_active=1 ORDER BY created_at ASC, id ASC`
	return s.listRules(ctx, q, map[string]any{"tenant_id": tenantID})
}

func (s *SQLRuleStore) listRules(ctx context.Context, q string, args map[string]any) ([]*rls.Rule, error) {
	r, err := s.db.NamedQueryContext(ctx, q, args)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*rls.Rule, 0)
	for r.Next() {
		rule, err := scanRule(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

func ruleArgs(r *rls.Rule) (map[string]any, error) {
	operations, err := json.Marshal(r.Operations)
	if err != nil {
		return nil, fmt.Errorf("encode operations for rule %s: %w", r.ID, err)
	}
	roleIDs, err := json.Marshal(r.RoleIDs)
	if err != nil {
		return nil, fmt.Errorf("encode role ids for rule %s: %w", r.ID, err)
	}
	expression, err := json.Marshal(r.Expression)
	if err != nil {
		return nil, fmt.Errorf("encode expression for rule %s: %w", r.ID, err)
	}
	return map[string]any{
		"id":              r.ID,
		"tenant_id":       r.TenantID,
		"object_type":     r.ObjectType,
		"name":            r.Name,
		"description":     r.Description,
		"effect":          string(r.Effect),
		"operations_json": string(operations),
		"role_ids_json":   string(roleIDs),
		"expression_json": string(expression),
		"priority":        r.Priority,
		"is_active":       boolToInt(r.IsActive),
		"created_at":      r.CreatedAt,
		"updated_at":      r.UpdatedAt,
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(r rowScanner) (*rls.Rule, error) {
	var id, tenantID, objectType, name, description, effect string
	var operationsJSON, roleIDsJSON, expressionJSON string
	var priority, activeInt int
	var createdRaw, updatedRaw any
	if err := r.Scan(&id, &tenantID, &objectType, &name, &description, &effect, &operationsJSON, &roleIDsJSON, &expressionJSON, &priority, &activeInt, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	rule := &rls.Rule{
		ID:          id,
		TenantID:    tenantID,
		ObjectType:  objectType,
		Name:        name,
		Description: description,
		Effect:      rls.Effect(effect),
		Priority:    priority,
		IsActive:    activeInt != 0,
		CreatedAt:   scanTime(createdRaw),
		UpdatedAt:   scanTime(updatedRaw),
	}
	if err := json.Unmarshal([]byte(operationsJSON), &rule.Operations); err != nil {
		return nil, fmt.Errorf("decode operations for rule %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(roleIDsJSON), &rule.RoleIDs); err != nil {
		return nil, fmt.Errorf("decode role ids for rule %s: %w", id, err)
	}
	expr := &rls.Expression{}
	if err := json.Unmarshal([]byte(expressionJSON), expr); err != nil {
		return nil, fmt.Errorf("decode expression for rule %s: %w", id, err)
	}
	rule.Expression = expr
	return rule, nil
}
