package rls

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ============================================================================
// IN-MEMORY STORES
// ============================================================================

// MemoryRuleStore is a mutex-protected RuleStore for tests and embedding.
// Arrival order per tenant is preserved, which the engine relies on for
// deterministic ties.
type MemoryRuleStore struct {
	mu      sync.RWMutex
	rules   map[string]map[string]*Rule // tenantID -> ruleID -> rule
	arrival map[string][]string         // tenantID -> ruleIDs in insert order
}

func NewMemoryRuleStore() *MemoryRuleStore {
	return &MemoryRuleStore{
		rules:   make(map[string]map[string]*Rule),
		arrival: make(map[string][]string),
	}
}

func (s *MemoryRuleStore) CreateRule(_ context.Context, r *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tenant := s.rules[r.TenantID]
	if tenant == nil {
		tenant = make(map[string]*Rule)
		s.rules[r.TenantID] = tenant
	}
	if _, exists := tenant[r.ID]; exists {
		return fmt.Errorf("rule %s already exists in tenant %s", r.ID, r.TenantID)
	}
	dup := r.Clone()
	if dup.CreatedAt.IsZero() {
		dup.CreatedAt = time.Now()
	}
	dup.UpdatedAt = dup.CreatedAt
	tenant[r.ID] = dup
	s.arrival[r.TenantID] = append(s.arrival[r.TenantID], r.ID)
	return nil
}

func (s *MemoryRuleStore) UpdateRule(_ context.Context, r *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tenant := s.rules[r.TenantID]
	existing, ok := tenant[r.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, r.ID)
	}
	dup := r.Clone()
	dup.CreatedAt = existing.CreatedAt
	dup.UpdatedAt = time.Now()
	tenant[r.ID] = dup
	return nil
}

func (s *MemoryRuleStore) SoftDeleteRule(_ context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[tenantID][id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	dup := rule.Clone()
	dup.IsActive = false
	dup.UpdatedAt = time.Now()
	s.rules[tenantID][id] = dup
	return nil
}

func (s *MemoryRuleStore) HardDeleteRule(_ context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[tenantID][id]; !ok {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	delete(s.rules[tenantID], id)
	order := s.arrival[tenantID]
	for i, rid := range order {
		if rid == id {
			s.arrival[tenantID] = append(order[:i], order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryRuleStore) GetRule(_ context.Context, tenantID, id string) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[tenantID][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	return rule.Clone(), nil
}

func (s *MemoryRuleStore) ListRules(_ context.Context, tenantID string) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Rule, 0, len(s.arrival[tenantID]))
	for _, id := range s.arrival[tenantID] {
		if rule, ok := s.rules[tenantID][id]; ok {
			out = append(out, rule.Clone())
		}
	}
	return out, nil
}

func (s *MemoryRuleStore) ListActiveRules(_ context.Context, tenantID string) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Rule, 0, len(s.arrival[tenantID]))
	for _, id := range s.arrival[tenantID] {
		if rule, ok := s.rules[tenantID][id]; ok && rule.IsActive {
			out = append(out, rule.Clone())
		}
	}
	return out, nil
}

// MemoryRoleMembershipStore is an in-memory principal -> roles map.
type MemoryRoleMembershipStore struct {
	mu    sync.RWMutex
	roles map[string][]string
}

func NewMemoryRoleMembershipStore() *MemoryRoleMembershipStore {
	return &MemoryRoleMembershipStore{roles: make(map[string][]string)}
}

func (s *MemoryRoleMembershipStore) AssignRole(_ context.Context, principalID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles[principalID] {
		if r == roleID {
			return nil
		}
	}
	s.roles[principalID] = append(s.roles[principalID], roleID)
	return nil
}

func (s *MemoryRoleMembershipStore) RevokeRole(_ context.Context, principalID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	assigned := s.roles[principalID]
	for i, r := range assigned {
		if r == roleID {
			s.roles[principalID] = append(assigned[:i], assigned[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MemoryRoleMembershipStore) ListRoles(_ context.Context, principalID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.roles[principalID]...), nil
}
