package rls

import (
	"encoding/json"
	"testing"
)

func TestRuleHasOperation(t *testing.T) {
	rule := &Rule{Operations: []Operation{OperationRead, OperationUpdate}}
	if !rule.HasOperation(OperationRead) || rule.HasOperation(OperationDelete) {
		t.Fatalf("operation membership wrong: %v", rule.Operations)
	}
	// Empty operation sets match nothing, even though writes reject them.
	empty := &Rule{}
	for _, op := range []Operation{OperationRead, OperationCreate, OperationUpdate, OperationDelete} {
		if empty.HasOperation(op) {
			t.Fatalf("empty operations matched %s", op)
		}
	}
}

func TestRuleAppliesToAnyRole(t *testing.T) {
	rule := &Rule{RoleIDs: []string{"sales", "support"}}
	if !rule.AppliesToAnyRole([]string{"viewer", "support"}) {
		t.Fatalf("expected overlap on support")
	}
	if rule.AppliesToAnyRole([]string{"viewer"}) || rule.AppliesToAnyRole(nil) {
		t.Fatalf("expected no overlap")
	}
}

func TestRuleCloneIsolation(t *testing.T) {
	rule := allowActiveDeals()
	dup := rule.Clone()
	dup.Operations[0] = OperationDelete
	dup.RoleIDs[0] = "mutated"
	if rule.Operations[0] != OperationRead || rule.RoleIDs[0] != "r1" {
		t.Fatalf("clone shares slices with the original: %+v", rule)
	}
}

func TestRuleValidate(t *testing.T) {
	good := allowActiveDeals()
	if err := good.Validate(); err != nil {
		t.Fatalf("valid rule rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Rule)
	}{
		{"empty id", func(r *Rule) { r.ID = "" }},
		{"empty tenant", func(r *Rule) { r.TenantID = "" }},
		{"empty object type", func(r *Rule) { r.ObjectType = "" }},
		{"unknown effect", func(r *Rule) { r.Effect = "block" }},
		{"no operations", func(r *Rule) { r.Operations = nil }},
		{"no roles", func(r *Rule) { r.RoleIDs = nil }},
		{"nil expression", func(r *Rule) { r.Expression = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule := allowActiveDeals()
			tc.mutate(rule)
			if err := rule.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestRuleJSONRoundtrip(t *testing.T) {
	rule := denyOwnDeals()
	data, err := json.Marshal(rule)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded := &Rule{}
	if err := json.Unmarshal(data, decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.ID != rule.ID || decoded.Effect != rule.Effect || decoded.Priority != rule.Priority {
		t.Fatalf("roundtrip changed the rule: %+v", decoded)
	}
	if decoded.Expression.String() != rule.Expression.String() {
		t.Fatalf("roundtrip changed the expression: %s vs %s", decoded.Expression, rule.Expression)
	}
}
