package rls

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/agnihq/rls/logger"
)

// ============================================================================
// TENANT RULE CACHE
// ============================================================================

// tenantSnapshot is the complete derived state for one tenant. Snapshots
// are immutable after publication; replacement is a single map write under
// the cache mutex, so readers see either the old complete snapshot or the
// new complete one, never a mix.
type tenantSnapshot struct {
	byID         map[string]*Rule
	byObjectType map[string][]string // objectType -> ruleIDs, arrival order
	byRoleID     map[string][]string // roleID -> ruleIDs
	computedAt   time.Time
}

// RuleCache maintains per-tenant snapshots of the active rule set. It is
// strictly derived state: it exposes no mutation API beyond invalidation,
// and a cache miss triggers exactly one full ListActiveRules read which is
// collapsed across concurrent misses for the same tenant.
type RuleCache struct {
	store RuleStore
	log   logger.Logger

	mu      sync.RWMutex
	tenants map[string]*tenantSnapshot
	flight  singleflight.Group

	hits   atomic.Uint64
	misses atomic.Uint64
}

// CacheStats is a point-in-time view of cache effectiveness.
type CacheStats struct {
	Hits    uint64
	Misses  uint64
	Tenants int
}

func NewRuleCache(store RuleStore, log logger.Logger) *RuleCache {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &RuleCache{
		store:   store,
		log:     log,
		tenants: make(map[string]*tenantSnapshot),
	}
}

// GetApplicableRules returns the active rules for the tenant that govern
// objectType and list at least one of the caller's roles. Arrival order
// from the store is preserved; priority ordering is the engine's concern.
func (c *RuleCache) GetApplicableRules(ctx context.Context, tenantID, objectType string, roleIDs []string) ([]*Rule, error) {
	snap, err := c.snapshotFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	// Rule ids reachable through any of the caller's roles.
	roleRuleIDs := make(map[string]struct{})
	for _, roleID := range roleIDs {
		for _, ruleID := range snap.byRoleID[roleID] {
			roleRuleIDs[ruleID] = struct{}{}
		}
	}

	var out []*Rule
	for _, ruleID := range snap.byObjectType[objectType] {
		if _, ok := roleRuleIDs[ruleID]; !ok {
			continue
		}
		if rule, ok := snap.byID[ruleID]; ok {
			out = append(out, rule)
		}
	}
	return out, nil
}

// InvalidateAndRecompute drops the tenant's snapshot and synchronously
// rebuilds it, so a mutation path that awaits this call observes its own
// write on the next decision.
func (c *RuleCache) InvalidateAndRecompute(ctx context.Context, tenantID string) error {
	c.mu.Lock()
	delete(c.tenants, tenantID)
	c.mu.Unlock()

	_, err := c.recompute(ctx, tenantID)
	return err
}

// Stats returns hit/miss counters and the number of cached tenants.
func (c *RuleCache) Stats() CacheStats {
	c.mu.RLock()
	tenants := len(c.tenants)
	c.mu.RUnlock()
	return CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Tenants: tenants,
	}
}

func (c *RuleCache) snapshotFor(ctx context.Context, tenantID string) (*tenantSnapshot, error) {
	c.mu.RLock()
	snap := c.tenants[tenantID]
	c.mu.RUnlock()
	if snap != nil {
		c.hits.Add(1)
		return snap, nil
	}
	c.misses.Add(1)
	return c.recompute(ctx, tenantID)
}

// recompute performs the single full read of the tenant's active rules and
// publishes a fresh snapshot. Concurrent misses share one store read.
func (c *RuleCache) recompute(ctx context.Context, tenantID string) (*tenantSnapshot, error) {
	v, err, _ := c.flight.Do(tenantID, func() (any, error) {
		rules, err := c.store.ListActiveRules(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("list active rules for tenant %s: %w", tenantID, err)
		}
		snap := buildSnapshot(tenantID, rules, c.log)

		c.mu.Lock()
		c.tenants[tenantID] = snap
		c.mu.Unlock()

		c.log.Debug("rule cache recomputed", "tenant_id", tenantID, "rules", len(snap.byID))
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*tenantSnapshot), nil
}

// buildSnapshot indexes the rule set. Inactive or cross-tenant rows are
// skipped even if the store hands them back.
func buildSnapshot(tenantID string, rules []*Rule, log logger.Logger) *tenantSnapshot {
	snap := &tenantSnapshot{
		byID:         make(map[string]*Rule, len(rules)),
		byObjectType: make(map[string][]string),
		byRoleID:     make(map[string][]string),
		computedAt:   time.Now(),
	}
	for _, rule := range rules {
		if rule == nil || !rule.IsActive {
			continue
		}
		if rule.TenantID != tenantID {
			log.Error("store returned cross-tenant rule, skipping", "tenant_id", tenantID, "rule_id", rule.ID, "rule_tenant_id", rule.TenantID)
			continue
		}
		snap.byID[rule.ID] = rule
		snap.byObjectType[rule.ObjectType] = append(snap.byObjectType[rule.ObjectType], rule.ID)
		for _, roleID := range rule.RoleIDs {
			snap.byRoleID[roleID] = append(snap.byRoleID[roleID], rule.ID)
		}
	}
	return snap
}
