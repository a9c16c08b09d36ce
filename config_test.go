package rls

import (
	"context"
	"path/filepath"
	"testing"
)

const testConfigYAML = `
version: 1
rules:
  - id: allow-own-contacts
    tenant_id: t1
    object_type: Contact
    effect: allow
    operations: [read, update]
    role_ids: [sales]
    priority: 5
    is_active: true
    expression:
      and:
        - condition:
            field: ownerId
            operator: eq
            value: "{{currentUser.id}}"
        - condition:
            field: status
            operator: in
            value: [lead, customer]
memberships:
  - principal_id: alice
    role_id: sales
engine:
  decision_cache_ttl_ms: 250
`

func TestConfigLoadYAML(t *testing.T) {
	cfg, err := NewConfigLoader().LoadYAML([]byte(testConfigYAML))
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(cfg.Rules) != 1 {
		t.Fatalf("expected one rule, got %d", len(cfg.Rules))
	}

	rule := cfg.Rules[0]
	if rule.ID != "allow-own-contacts" || rule.Effect != EffectAllow || rule.Priority != 5 {
		t.Fatalf("unexpected rule: %+v", rule)
	}
	if len(rule.Operations) != 2 || rule.Operations[1] != OperationUpdate {
		t.Fatalf("unexpected operations: %v", rule.Operations)
	}
	if len(rule.Expression.And) != 2 {
		t.Fatalf("expression tree not decoded: %s", rule.Expression)
	}
	if cfg.Engine.DecisionCacheTTLMs != 250 {
		t.Fatalf("engine tuning not decoded: %+v", cfg.Engine)
	}
	if tenants := cfg.Tenants(); len(tenants) != 1 || tenants[0] != "t1" {
		t.Fatalf("unexpected tenants: %v", tenants)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	loader := NewConfigLoader()

	cases := []struct {
		name string
		yaml string
	}{
		{"unknown effect", `
rules:
  - id: r1
    tenant_id: t1
    object_type: Deal
    effect: block
    operations: [read]
    role_ids: [x]
    is_active: true
    expression: {condition: {field: a, operator: eq, value: 1}}
`},
		{"empty operations", `
rules:
  - id: r1
    tenant_id: t1
    object_type: Deal
    effect: deny
    operations: []
    role_ids: [x]
    is_active: true
    expression: {condition: {field: a, operator: eq, value: 1}}
`},
		{"duplicate rule id", `
rules:
  - id: r1
    tenant_id: t1
    object_type: Deal
    effect: allow
    operations: [read]
    role_ids: [x]
    is_active: true
    expression: {condition: {field: a, operator: eq, value: 1}}
  - id: r1
    tenant_id: t1
    object_type: Deal
    effect: allow
    operations: [read]
    role_ids: [x]
    is_active: true
    expression: {condition: {field: a, operator: eq, value: 1}}
`},
		{"membership missing role", `
rules: []
memberships:
  - principal_id: alice
    role_id: ""
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := loader.LoadYAML([]byte(tc.yaml))
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestConfigSeedAndDecide(t *testing.T) {
	ctx := context.Background()
	cfg, err := NewConfigLoader().LoadYAML([]byte(testConfigYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	rules := NewMemoryRuleStore()
	memberships := NewMemoryRoleMembershipStore()
	if err := cfg.Seed(ctx, rules, memberships); err != nil {
		t.Fatalf("seed: %v", err)
	}

	builder := NewMembershipContextBuilder(memberships)
	ec, err := builder.BuildContext(ctx, "t1", "alice")
	if err != nil {
		t.Fatalf("build context: %v", err)
	}
	if !ec.HasRole("sales") {
		t.Fatalf("seeded membership missing: %+v", ec)
	}

	engine := NewEngine(rules)
	res, err := engine.Decide(ctx, ec, "Contact", OperationRead,
		map[string]any{"id": "c1", "ownerId": "alice", "status": "lead"})
	if err != nil || !res.Allowed {
		t.Fatalf("seeded rule should allow: %+v, %v", res, err)
	}
	res, err = engine.Decide(ctx, ec, "Contact", OperationRead,
		map[string]any{"id": "c2", "ownerId": "bob", "status": "lead"})
	if err != nil || res.Allowed {
		t.Fatalf("whitelist should deny foreign contact: %+v, %v", res, err)
	}
}

func TestConfigFileRoundtrip(t *testing.T) {
	loader := NewConfigLoader()
	cfg, err := loader.LoadYAML([]byte(testConfigYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	dir := t.TempDir()
	for _, name := range []string{"cfg.yaml", "cfg.json"} {
		path := filepath.Join(dir, name)
		if err := loader.SaveFile(cfg, path); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
		loaded, err := loader.LoadFile(path)
		if err != nil {
			t.Fatalf("load %s: %v", name, err)
		}
		if err := loaded.Validate(); err != nil {
			t.Fatalf("reloaded %s invalid: %v", name, err)
		}
		if len(loaded.Rules) != 1 || loaded.Rules[0].Expression.String() != cfg.Rules[0].Expression.String() {
			t.Fatalf("roundtrip through %s changed the rule set", name)
		}
	}

	if _, err := loader.LoadFile(filepath.Join(dir, "cfg.toml")); err == nil {
		t.Fatalf("expected error for unsupported extension")
	}
}
