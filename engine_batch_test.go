package rls_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/agnihq/rls"
	"github.com/agnihq/rls/logger"
)

// countingStore wraps a RuleStore and counts ListActiveRules reads.
type countingStore struct {
	rls.RuleStore
	listActiveCalls atomic.Int64
}

func (s *countingStore) ListActiveRules(ctx context.Context, tenantID string) ([]*rls.Rule, error) {
	s.listActiveCalls.Add(1)
	return s.RuleStore.ListActiveRules(ctx, tenantID)
}

func TestDecideBatchDenyOnlyRuleSet(t *testing.T) {
	ctx := context.Background()
	store := rls.NewMemoryRuleStore()

	deny := rls.NewRuleBuilder().
		ID("hide-flagged").Tenant("t1").ObjectType("Deal").
		Effect(rls.EffectDeny).Operations(rls.OperationRead).Roles("viewer").
		Expression(rls.Cond("flagged", rls.OpEq, true)).
		Build()
	if err := store.CreateRule(ctx, deny); err != nil {
		t.Fatalf("seed: %v", err)
	}

	engine := rls.NewEngine(store, rls.WithLogger(logger.NewNullLogger()))
	ec := &rls.Context{TenantID: "t1", PrincipalID: "p1", RoleIDs: []string{"viewer"}}

	records := []map[string]any{
		{"id": "r1", "flagged": false},
		{"id": "r2", "flagged": true},
		{"id": "r3"},
	}
	got, err := engine.DecideBatch(ctx, ec, "Deal", rls.OperationRead, records)
	if err != nil {
		t.Fatalf("decide batch: %v", err)
	}

	// The deny rule matches only r2; the others fall through the blacklist
	// to base permissions.
	want := map[string]bool{"r1": true, "r2": false, "r3": true}
	if len(got) != len(want) {
		t.Fatalf("unexpected result size: %v", got)
	}
	for id, allowed := range want {
		if got[id] != allowed {
			t.Fatalf("record %s: got %v, want %v (all: %v)", id, got[id], allowed, got)
		}
	}
}

func TestDecideBatchSingleStoreRead(t *testing.T) {
	ctx := context.Background()
	mem := rls.NewMemoryRuleStore()

	allow := rls.NewRuleBuilder().
		ID("allow-active").Tenant("t1").ObjectType("Deal").
		Effect(rls.EffectAllow).Operations(rls.OperationRead).Roles("viewer").
		Expression(rls.Cond("status", rls.OpEq, "active")).
		Build()
	if err := mem.CreateRule(ctx, allow); err != nil {
		t.Fatalf("seed: %v", err)
	}

	store := &countingStore{RuleStore: mem}
	engine := rls.NewEngine(store, rls.WithLogger(logger.NewNullLogger()))
	ec := &rls.Context{TenantID: "t1", PrincipalID: "p1", RoleIDs: []string{"viewer"}}

	records := make([]map[string]any, 0, 50)
	for i := 0; i < 50; i++ {
		records = append(records, map[string]any{"id": fmt.Sprintf("deal-%d", i), "status": "active"})
	}
	if _, err := engine.DecideBatch(ctx, ec, "Deal", rls.OperationRead, records); err != nil {
		t.Fatalf("decide batch: %v", err)
	}
	if n := store.listActiveCalls.Load(); n != 1 {
		t.Fatalf("batch decision hit the store %d times, want 1", n)
	}
}

func TestDecideBatchSkipsRecordsWithoutID(t *testing.T) {
	ctx := context.Background()
	store := rls.NewMemoryRuleStore()
	engine := rls.NewEngine(store, rls.WithLogger(logger.NewNullLogger()))
	ec := &rls.Context{TenantID: "t1", PrincipalID: "p1", RoleIDs: []string{"viewer"}}

	got, err := engine.DecideBatch(ctx, ec, "Deal", rls.OperationRead, []map[string]any{
		{"id": "keyed"},
		{"name": "anonymous"},
	})
	if err != nil {
		t.Fatalf("decide batch: %v", err)
	}
	if len(got) != 1 || !got["keyed"] {
		t.Fatalf("expected only the keyed record in results: %v", got)
	}
}
