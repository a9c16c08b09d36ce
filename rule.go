package rls

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ============================================================================
// DOMAIN OBJECTS
// ============================================================================

// Effect is the outcome class of a matching rule.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Operation is the kind of access a rule governs.
type Operation string

const (
	OperationRead   Operation = "read"
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

var (
	// ErrMissingTenant is returned when a decision is requested without a
	// tenant in the context.
	ErrMissingTenant = errors.New("rls: missing tenant id")
	// ErrMissingObjectType is returned when a decision names no object type.
	ErrMissingObjectType = errors.New("rls: missing object type")
	// ErrMissingOperation is returned when a decision names no operation.
	ErrMissingOperation = errors.New("rls: missing operation")
	// ErrRuleNotFound is returned by stores for unknown rule ids.
	ErrRuleNotFound = errors.New("rls: rule not found")
)

// Rule is a stored row-level policy statement. The engine treats rules as
// immutable once read within one evaluation.
type Rule struct {
	ID          string      `json:"id" yaml:"id"`
	TenantID    string      `json:"tenant_id" yaml:"tenant_id"`
	ObjectType  string      `json:"object_type" yaml:"object_type"`
	Name        string      `json:"name,omitempty" yaml:"name,omitempty"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Effect      Effect      `json:"effect" yaml:"effect"`
	Operations  []Operation `json:"operations" yaml:"operations"`
	Expression  *Expression `json:"expression" yaml:"expression"`
	Priority    int         `json:"priority" yaml:"priority"`
	RoleIDs     []string    `json:"role_ids" yaml:"role_ids"`
	IsActive    bool        `json:"is_active" yaml:"is_active"`
	CreatedAt   time.Time   `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// HasOperation reports whether the rule covers op. A rule with an empty
// operation set matches nothing; emptiness is rejected at write time but
// never trusted here.
func (r *Rule) HasOperation(op Operation) bool {
	for _, o := range r.Operations {
		if o == op {
			return true
		}
	}
	return false
}

// AppliesToAnyRole reports whether the rule lists at least one of the
// principal's roles.
func (r *Rule) AppliesToAnyRole(roleIDs []string) bool {
	for _, have := range roleIDs {
		for _, want := range r.RoleIDs {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Validate enforces the write-time invariants: non-empty operations and
// roles, a known effect, and a well-formed expression tree.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule id is empty")
	}
	if r.TenantID == "" {
		return fmt.Errorf("rule %s: tenant id is empty", r.ID)
	}
	if r.ObjectType == "" {
		return fmt.Errorf("rule %s: object type is empty", r.ID)
	}
	if r.Effect != EffectAllow && r.Effect != EffectDeny {
		return fmt.Errorf("rule %s: unknown effect %q", r.ID, r.Effect)
	}
	if len(r.Operations) == 0 {
		return fmt.Errorf("rule %s: operations set is empty", r.ID)
	}
	if len(r.RoleIDs) == 0 {
		return fmt.Errorf("rule %s: role ids set is empty", r.ID)
	}
	if err := r.Expression.Validate(); err != nil {
		return fmt.Errorf("rule %s: expression: %w", r.ID, err)
	}
	return nil
}

// Clone returns a shallow copy with fresh slices, so cached rules stay
// insulated from caller mutation.
func (r *Rule) Clone() *Rule {
	if r == nil {
		return nil
	}
	dup := *r
	dup.Operations = append([]Operation(nil), r.Operations...)
	dup.RoleIDs = append([]string(nil), r.RoleIDs...)
	return &dup
}

// ============================================================================
// RULE STORE (collaborator)
// ============================================================================

// RuleStore is the persistence contract the engine depends on. Only
// ListActiveRules is consumed by the cache; the mutation operations are
// owned by the authoring surface, which must call the engine's
// InvalidateAndRecompute after every successful write. Soft delete flips
// is_active; hard delete removes the row. The engine only ever observes
// the is_active filtering.
type RuleStore interface {
	CreateRule(ctx context.Context, r *Rule) error
	UpdateRule(ctx context.Context, r *Rule) error
	SoftDeleteRule(ctx context.Context, tenantID, id string) error
	HardDeleteRule(ctx context.Context, tenantID, id string) error
	GetRule(ctx context.Context, tenantID, id string) (*Rule, error)
	ListRules(ctx context.Context, tenantID string) ([]*Rule, error)
	ListActiveRules(ctx context.Context, tenantID string) ([]*Rule, error)
}
