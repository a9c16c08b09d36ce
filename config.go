package rls

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ============================================================================
// CONFIGURATION
// ============================================================================

// Config is the declarative form of an engine setup: rule fixtures, role
// memberships and engine tuning. It exists for bootstrapping and tooling;
// at runtime rules live in the RuleStore.
type Config struct {
	Version     int              `json:"version" yaml:"version"`
	Rules       []*Rule          `json:"rules" yaml:"rules"`
	Memberships []RoleMembership `json:"memberships,omitempty" yaml:"memberships,omitempty"`
	Engine      EngineConfig     `json:"engine,omitempty" yaml:"engine,omitempty"`
}

type RoleMembership struct {
	PrincipalID string `json:"principal_id" yaml:"principal_id"`
	RoleID      string `json:"role_id" yaml:"role_id"`
}

// EngineConfig tunes the optional decision cache.
type EngineConfig struct {
	DecisionCacheTTLMs  int64 `json:"decision_cache_ttl_ms" yaml:"decision_cache_ttl_ms"`
	RistrettoNumCounter int64 `json:"ristretto_num_counter" yaml:"ristretto_num_counter"`
	RistrettoMaxCost    int64 `json:"ristretto_max_cost" yaml:"ristretto_max_cost"`
	RistrettoBuffer     int64 `json:"ristretto_buffer" yaml:"ristretto_buffer"`
}

func (c *EngineConfig) applyDefaults() {
	if c.DecisionCacheTTLMs <= 0 {
		c.DecisionCacheTTLMs = 1000
	}
	if c.RistrettoNumCounter <= 0 {
		c.RistrettoNumCounter = 100_000
	}
	if c.RistrettoMaxCost <= 0 {
		c.RistrettoMaxCost = 10_000
	}
	if c.RistrettoBuffer <= 0 {
		c.RistrettoBuffer = 64
	}
}

// ConfigLoader loads configuration from YAML or JSON.
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader { return &ConfigLoader{} }

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml config: %w", err)
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse json config: %w", err)
	}
	return cfg, nil
}

// LoadFile dispatches on the file extension (.yaml/.yml/.json).
func (l *ConfigLoader) LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return l.LoadYAML(data)
	case ".json":
		return l.LoadJSON(data)
	default:
		return nil, fmt.Errorf("unsupported config format: %s", path)
	}
}

// SaveFile writes the config in the format implied by the extension.
func (l *ConfigLoader) SaveFile(cfg *Config, path string) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	default:
		return fmt.Errorf("unsupported config format: %s", path)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks every rule and membership against the write-time
// invariants.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Rules))
	for i, rule := range c.Rules {
		if rule == nil {
			return fmt.Errorf("rules[%d] is null", i)
		}
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("rules[%d]: %w", i, err)
		}
		key := rule.TenantID + "/" + rule.ID
		if _, dup := seen[key]; dup {
			return fmt.Errorf("rules[%d]: duplicate rule id %s in tenant %s", i, rule.ID, rule.TenantID)
		}
		seen[key] = struct{}{}
	}
	for i, m := range c.Memberships {
		if m.PrincipalID == "" || m.RoleID == "" {
			return fmt.Errorf("memberships[%d]: principal_id and role_id are required", i)
		}
	}
	return nil
}

// Seed writes the config's rules and memberships into the given stores.
// Either store may be nil to skip that part. Callers seeding a live engine
// must still invalidate affected tenants afterwards.
func (c *Config) Seed(ctx context.Context, rules RuleStore, memberships RoleMembershipStore) error {
	if rules != nil {
		for _, rule := range c.Rules {
			if err := rules.CreateRule(ctx, rule); err != nil {
				return fmt.Errorf("seed rule %s: %w", rule.ID, err)
			}
		}
	}
	if memberships != nil {
		for _, m := range c.Memberships {
			if err := memberships.AssignRole(ctx, m.PrincipalID, m.RoleID); err != nil {
				return fmt.Errorf("seed membership %s->%s: %w", m.PrincipalID, m.RoleID, err)
			}
		}
	}
	return nil
}

// Tenants returns the distinct tenant ids named by the config's rules.
func (c *Config) Tenants() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, rule := range c.Rules {
		if _, ok := seen[rule.TenantID]; ok {
			continue
		}
		seen[rule.TenantID] = struct{}{}
		out = append(out, rule.TenantID)
	}
	return out
}
