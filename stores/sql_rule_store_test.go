package stores

import (
	"context"
	"database/sql"
	"testing"

	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"

	"github.com/agnihq/rls"
)

func newTestDB(t *testing.T) *squealx.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	db := squealx.NewDb(sqlDB, "sqlite", "testdb")
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func ownerRule(id string, priority int) *rls.Rule {
	return rls.NewRuleBuilder().
		ID(id).
		Tenant("tenant-1").
		ObjectType("Deal").
		Name("owner access").
		Effect(rls.EffectAllow).
		Operations(rls.OperationRead, rls.OperationUpdate).
		Roles("role-member").
		Priority(priority).
		Expression(rls.Cond("ownerId", rls.OpEq, string(rls.VarCurrentPrincipalID))).
		Build()
}

func TestSQLRuleStoreRoundtrip(t *testing.T) {
	db := newTestDB(t)
	store := NewSQLRuleStore(db)
	ctx := context.Background()

	rule := ownerRule("rule-1", 5)
	if err := store.CreateRule(ctx, rule); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	got, err := store.GetRule(ctx, "tenant-1", "rule-1")
	if err != nil {
		t.Fatalf("get rule: %v", err)
	}
	if got.ObjectType != "Deal" || got.Effect != rls.EffectAllow || got.Priority != 5 {
		t.Fatalf("unexpected rule after roundtrip: %+v", got)
	}
	if len(got.Operations) != 2 || got.Operations[0] != rls.OperationRead {
		t.Fatalf("operations lost in roundtrip: %v", got.Operations)
	}
	if got.Expression == nil || got.Expression.Condition == nil {
		t.Fatalf("expression lost in roundtrip: %v", got.Expression)
	}
	if got.Expression.Condition.Field != "ownerId" {
		t.Fatalf("expected ownerId condition, got %s", got.Expression.Condition.Field)
	}
	if !got.IsActive {
		t.Fatalf("expected rule to be active")
	}
}

func TestSQLRuleStoreSoftDeleteExcludesFromActive(t *testing.T) {
	db := newTestDB(t)
	store := NewSQLRuleStore(db)
	ctx := context.Background()

	if err := store.CreateRule(ctx, ownerRule("rule-1", 0)); err != nil {
		t.Fatalf("create rule-1: %v", err)
	}
	if err := store.CreateRule(ctx, ownerRule("rule-2", 1)); err != nil {
		t.Fatalf("create rule-2: %v", err)
	}

	if err := store.SoftDeleteRule(ctx, "tenant-1", "rule-1"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	active, err := store.ListActiveRules(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("list active rules: %v", err)
	}
	if len(active) != 1 || active[0].ID != "rule-2" {
		t.Fatalf("expected only rule-2 active, got %v", active)
	}

	// The soft-deleted row stays in the store.
	all, err := store.ListRules(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("list rules: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 rows after soft delete, got %d", len(all))
	}

	if err := store.HardDeleteRule(ctx, "tenant-1", "rule-1"); err != nil {
		t.Fatalf("hard delete: %v", err)
	}
	all, err = store.ListRules(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("list rules after hard delete: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 row after hard delete, got %d", len(all))
	}
}

func TestSQLRuleStoreUpdate(t *testing.T) {
	db := newTestDB(t)
	store := NewSQLRuleStore(db)
	ctx := context.Background()

	rule := ownerRule("rule-1", 0)
	if err := store.CreateRule(ctx, rule); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	rule.Priority = 42
	rule.Effect = rls.EffectDeny
	if err := store.UpdateRule(ctx, rule); err != nil {
		t.Fatalf("update rule: %v", err)
	}

	got, err := store.GetRule(ctx, "tenant-1", "rule-1")
	if err != nil {
		t.Fatalf("get rule: %v", err)
	}
	if got.Priority != 42 || got.Effect != rls.EffectDeny {
		t.Fatalf("update not persisted: %+v", got)
	}
}

func TestSQLRoleMembershipStore(t *testing.T) {
	db := newTestDB(t)
	store := NewSQLRoleMembershipStore(db)
	ctx := context.Background()

	if err := store.AssignRole(ctx, "member-456", "role-member"); err != nil {
		t.Fatalf("assign role: %v", err)
	}
	if err := store.AssignRole(ctx, "member-456", "role-admin"); err != nil {
		t.Fatalf("assign second role: %v", err)
	}
	// duplicate assignment is a no-op
	if err := store.AssignRole(ctx, "member-456", "role-admin"); err != nil {
		t.Fatalf("duplicate assign: %v", err)
	}

	roles, err := store.ListRoles(ctx, "member-456")
	if err != nil {
		t.Fatalf("list roles: %v", err)
	}
	if len(roles) != 2 {
		t.Fatalf("expected 2 roles, got %v", roles)
	}

	if err := store.RevokeRole(ctx, "member-456", "role-admin"); err != nil {
		t.Fatalf("revoke role: %v", err)
	}
	roles, err = store.ListRoles(ctx, "member-456")
	if err != nil {
		t.Fatalf("list roles after revoke: %v", err)
	}
	if len(roles) != 1 || roles[0] != "role-member" {
		t.Fatalf("expected only role-member, got %v", roles)
	}
}
