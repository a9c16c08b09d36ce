package rls

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/agnihq/rls/logger"
)

// ============================================================================
// POLICY ENGINE
// ============================================================================

// EvaluationResult is the outcome of a single decision. MatchedRuleIDs
// lists every rule whose expression matched, in evaluation order, including
// rules whose effect did not decide the outcome; callers use it for audit.
type EvaluationResult struct {
	Allowed        bool     `json:"allowed"`
	MatchedRuleIDs []string `json:"matched_rule_ids"`
	DeniedBy       string   `json:"denied_by,omitempty"`
}

// Engine evaluates row-level rules for decisions. Evaluation is stateless
// per call; the only shared state is the tenant rule cache and, when
// enabled, the decision cache.
type Engine struct {
	store RuleStore
	cache *RuleCache
	log   logger.Logger

	decisions   *ristretto.Cache
	decisionTTL time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger replaces the default phuslu-backed logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithDecisionCache enables a TTL-bounded ristretto cache of per-record
// decisions. Only records carrying a string "id" are cached, and
// InvalidateAndRecompute clears the cache, so staleness is bounded by the
// TTL and never by rule mutations routed through this engine.
func WithDecisionCache(cfg EngineConfig) Option {
	return func(e *Engine) {
		cfg.applyDefaults()
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: cfg.RistrettoNumCounter,
			MaxCost:     cfg.RistrettoMaxCost,
			BufferItems: cfg.RistrettoBuffer,
		})
		if err != nil {
			e.log.Error("decision cache disabled", "error", err.Error())
			return
		}
		e.decisions = cache
		e.decisionTTL = time.Duration(cfg.DecisionCacheTTLMs) * time.Millisecond
	}
}

// NewEngine wires the engine to its rule store. The tenant rule cache is
// owned by the engine instance: created here, torn down with the process,
// no global registry.
func NewEngine(store RuleStore, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		log:   logger.NewPhusluLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cache = NewRuleCache(store, e.log)
	return e
}

// Cache exposes the engine's rule cache, mainly for stats.
func (e *Engine) Cache() *RuleCache { return e.cache }

// Decide evaluates access for one record.
//
// Conflict resolution: no governing rules at all defers to the caller's
// base permission system (allow); the highest-priority matching DENY wins
// unconditionally; otherwise any matching ALLOW allows. When rules exist
// but none match, the default is asymmetric: if the candidate set grants
// anything (contains an ALLOW rule) the unmatched record is denied; a
// purely prohibitive set of DENY rules acts as a blacklist, so an
// unmatched record falls through to the base-permission system.
func (e *Engine) Decide(ctx context.Context, ec *Context, objectType string, op Operation, record map[string]any) (*EvaluationResult, error) {
	if err := validateInput(ec, objectType, op); err != nil {
		return nil, err
	}

	key, cacheable := e.decisionKey(ec, objectType, op, record)
	if cacheable {
		if v, ok := e.decisions.Get(key); ok {
			if res, ok := v.(*EvaluationResult); ok {
				return res, nil
			}
		}
	}

	rules, err := e.candidateRules(ctx, ec, objectType, op)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		// No policy configured for this object/operation: defer to the
		// broader base-permission system.
		return &EvaluationResult{Allowed: true, MatchedRuleIDs: []string{}}, nil
	}

	res := e.fold(rules, record, ec)
	if cacheable {
		e.decisions.SetWithTTL(key, res, 1, e.decisionTTL)
	}
	return res, nil
}

// DecideBatch evaluates access for a set of records, fetching and sorting
// the rule set exactly once. Results are keyed by each record's "id" field;
// records without one are skipped with a warning.
func (e *Engine) DecideBatch(ctx context.Context, ec *Context, objectType string, op Operation, records []map[string]any) (map[string]bool, error) {
	if err := validateInput(ec, objectType, op); err != nil {
		return nil, err
	}

	rules, err := e.candidateRules(ctx, ec, objectType, op)
	if err != nil {
		return nil, err
	}

	results := make(map[string]bool, len(records))
	for _, record := range records {
		id, ok := recordID(record)
		if !ok {
			e.log.Info("batch record without id skipped", "object_type", objectType)
			continue
		}
		if len(rules) == 0 {
			results[id] = true
			continue
		}
		results[id] = e.fold(rules, record, ec).Allowed
	}
	return results, nil
}

// InvalidateAndRecompute is the administrative hook for the rule-mutation
// path: it drops and synchronously rebuilds the tenant's rule snapshot and
// clears any cached decisions.
func (e *Engine) InvalidateAndRecompute(ctx context.Context, tenantID string) error {
	if err := e.cache.InvalidateAndRecompute(ctx, tenantID); err != nil {
		return err
	}
	if e.decisions != nil {
		e.decisions.Clear()
	}
	return nil
}

// candidateRules fetches via the cache, filters to the requested operation
// and sorts by priority descending. The sort is stable: equal priorities
// keep store arrival order, which is deterministic within one evaluation
// but carries no semantic weight.
func (e *Engine) candidateRules(ctx context.Context, ec *Context, objectType string, op Operation) ([]*Rule, error) {
	rules, err := e.cache.GetApplicableRules(ctx, ec.TenantID, objectType, ec.RoleIDs)
	if err != nil {
		return nil, fmt.Errorf("fetch applicable rules: %w", err)
	}

	filtered := rules[:0]
	for _, rule := range rules {
		if rule.HasOperation(op) {
			filtered = append(filtered, rule)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Priority > filtered[j].Priority
	})
	return filtered, nil
}

// fold applies the conflict-resolution policy to a sorted rule set. A rule
// whose expression fails to evaluate is treated as not matching; one
// malformed rule never aborts the decision.
func (e *Engine) fold(rules []*Rule, record map[string]any, ec *Context) *EvaluationResult {
	res := &EvaluationResult{MatchedRuleIDs: []string{}}
	allowMatched := false
	hasAllowCandidate := false
	for _, rule := range rules {
		if rule.Effect == EffectAllow {
			hasAllowCandidate = true
			break
		}
	}

	for _, rule := range rules {
		matched, err := rule.Expression.Evaluate(record, ec)
		if err != nil {
			e.log.Warn("rule expression failed, treating as non-matching", "rule_id", rule.ID, "tenant_id", rule.TenantID, "error", err.Error())
			continue
		}
		if !matched {
			continue
		}
		res.MatchedRuleIDs = append(res.MatchedRuleIDs, rule.ID)
		if rule.Effect == EffectDeny {
			// DENY is absolute once reached.
			res.Allowed = false
			res.DeniedBy = rule.ID
			return res
		}
		allowMatched = true
	}

	// Nothing matched: an ALLOW whitelist that excluded the record denies
	// it; a DENY-only blacklist that missed it does not.
	res.Allowed = allowMatched || !hasAllowCandidate
	return res
}

func validateInput(ec *Context, objectType string, op Operation) error {
	if ec == nil || ec.TenantID == "" {
		return ErrMissingTenant
	}
	if objectType == "" {
		return ErrMissingObjectType
	}
	if op == "" {
		return ErrMissingOperation
	}
	return nil
}

func recordID(record map[string]any) (string, bool) {
	v, ok := record["id"]
	if !ok || v == nil {
		return "", false
	}
	return stringify(v), true
}

// decisionKey builds the cache key for a decision. Role order matters to
// the key, so callers should hand the engine stable role slices.
func (e *Engine) decisionKey(ec *Context, objectType string, op Operation, record map[string]any) (string, bool) {
	if e.decisions == nil {
		return "", false
	}
	id, ok := recordID(record)
	if !ok {
		return "", false
	}
	return ec.TenantID + "|" + ec.PrincipalID + "|" + strings.Join(ec.RoleIDs, ",") + "|" + objectType + "|" + string(op) + "|" + id, true
}

// ============================================================================
// RULE MANAGEMENT
// ============================================================================

// The mutation surface below is a convenience for embedders: each write
// goes to the store and then invalidates and recomputes the tenant's
// snapshot before returning, so the writer observes its own change.

func (e *Engine) CreateRule(ctx context.Context, rule *Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if err := e.store.CreateRule(ctx, rule); err != nil {
		return err
	}
	return e.InvalidateAndRecompute(ctx, rule.TenantID)
}

func (e *Engine) UpdateRule(ctx context.Context, rule *Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if err := e.store.UpdateRule(ctx, rule); err != nil {
		return err
	}
	return e.InvalidateAndRecompute(ctx, rule.TenantID)
}

func (e *Engine) SoftDeleteRule(ctx context.Context, tenantID, id string) error {
	if err := e.store.SoftDeleteRule(ctx, tenantID, id); err != nil {
		return err
	}
	return e.InvalidateAndRecompute(ctx, tenantID)
}

func (e *Engine) HardDeleteRule(ctx context.Context, tenantID, id string) error {
	if err := e.store.HardDeleteRule(ctx, tenantID, id); err != nil {
		return err
	}
	return e.InvalidateAndRecompute(ctx, tenantID)
}
