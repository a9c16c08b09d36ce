package rls

import (
	"context"
	"fmt"
	"strings"
)

// ============================================================================
// EVALUATION CONTEXT
// ============================================================================

// Context carries the already-authenticated identity a decision runs under.
// It is read-only input: the evaluator never mutates it.
type Context struct {
	TenantID          string         `json:"tenant_id"`
	PrincipalID       string         `json:"principal_id"`
	RoleIDs           []string       `json:"role_ids"`
	SessionAttributes map[string]any `json:"session_attributes,omitempty"`
}

// ContextVariable is a placeholder recognized inside a Condition value and
// substituted from the Context at evaluation time, not from the record.
type ContextVariable string

const (
	VarCurrentPrincipalID ContextVariable = "{{currentUser.id}}"
	VarCurrentTenantID    ContextVariable = "{{currentUser.tenantId}}"
)

const (
	sessionVarPrefix = "{{session."
	varSuffix        = "}}"
)

// ResolveVariable maps a recognized placeholder to its context value. The
// second return reports whether s is a placeholder at all; unrecognized
// strings are compared literally by the evaluator. Session placeholders
// resolve to nil when the attribute is absent.
func (c *Context) ResolveVariable(s string) (any, bool) {
	switch ContextVariable(s) {
	case VarCurrentPrincipalID:
		return c.PrincipalID, true
	case VarCurrentTenantID:
		return c.TenantID, true
	}
	if strings.HasPrefix(s, sessionVarPrefix) && strings.HasSuffix(s, varSuffix) {
		key := s[len(sessionVarPrefix) : len(s)-len(varSuffix)]
		return c.SessionAttributes[key], true
	}
	return nil, false
}

// HasRole reports whether the principal holds the given role.
func (c *Context) HasRole(roleID string) bool {
	for _, r := range c.RoleIDs {
		if r == roleID {
			return true
		}
	}
	return false
}

// ============================================================================
// CONTEXT BUILDER (collaborator)
// ============================================================================

// RoleMembershipStore resolves the roles assigned to a principal. Redis and
// SQL implementations live in the stores package; MemoryRoleMembershipStore
// covers tests and embedding.
type RoleMembershipStore interface {
	AssignRole(ctx context.Context, principalID, roleID string) error
	RevokeRole(ctx context.Context, principalID, roleID string) error
	ListRoles(ctx context.Context, principalID string) ([]string, error)
}

// ContextBuilder converts an externally-authenticated principal into the
// evaluation Context the engine consumes. Role resolution is assumed to
// have a backing store; authentication itself happened long before.
type ContextBuilder interface {
	BuildContext(ctx context.Context, tenantID, principalID string) (*Context, error)
}

// MembershipContextBuilder builds contexts by reading role assignments from
// a RoleMembershipStore.
type MembershipContextBuilder struct {
	memberships RoleMembershipStore
}

func NewMembershipContextBuilder(memberships RoleMembershipStore) *MembershipContextBuilder {
	return &MembershipContextBuilder{memberships: memberships}
}

func (b *MembershipContextBuilder) BuildContext(ctx context.Context, tenantID, principalID string) (*Context, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	roleIDs, err := b.memberships.ListRoles(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("list roles for %s: %w", principalID, err)
	}
	return &Context{
		TenantID:    tenantID,
		PrincipalID: principalID,
		RoleIDs:     roleIDs,
	}, nil
}
