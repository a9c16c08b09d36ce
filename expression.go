package rls

import (
	"encoding/json"
	"fmt"
	"strings"

	phlog "github.com/oarkflow/log"
	"gopkg.in/yaml.v3"
)

// ============================================================================
// EXPRESSION TREES (rule conditions)
// ============================================================================

// Operator is a comparison applied by a Condition leaf.
type Operator string

const (
	OpEq         Operator = "eq"
	OpNe         Operator = "ne"
	OpIn         Operator = "in"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startsWith"
	OpEndsWith   Operator = "endsWith"
)

// Condition compares a record field against a value. Value may be a
// context-variable placeholder string resolved against the evaluation
// Context rather than the record (see ContextVariable).
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value" yaml:"value"`
}

// Expression is a boolean tree over record fields. Exactly one of And, Or,
// Condition is populated per node; the JSON/YAML decoders reject anything
// else. An empty And list is vacuously true, an empty Or list is vacuously
// false. A zero-value node evaluates to false.
type Expression struct {
	And       []*Expression
	Or        []*Expression
	Condition *Condition
}

// expressionVariants is the wire shape; pointer fields distinguish an
// absent variant from a present-but-empty one.
type expressionVariants struct {
	And       *[]*Expression `json:"and,omitempty" yaml:"and,omitempty"`
	Or        *[]*Expression `json:"or,omitempty" yaml:"or,omitempty"`
	Condition *Condition     `json:"condition,omitempty" yaml:"condition,omitempty"`
}

func (e *Expression) fromVariants(v expressionVariants) error {
	populated := 0
	if v.And != nil {
		populated++
	}
	if v.Or != nil {
		populated++
	}
	if v.Condition != nil {
		populated++
	}
	if populated == 0 {
		return fmt.Errorf("expression node populates none of and/or/condition")
	}
	if populated > 1 {
		return fmt.Errorf("expression node populates %d of and/or/condition, want exactly one", populated)
	}
	e.And, e.Or, e.Condition = nil, nil, nil
	switch {
	case v.And != nil:
		e.And = *v.And
	case v.Or != nil:
		e.Or = *v.Or
	default:
		e.Condition = v.Condition
	}
	return nil
}

func (e *Expression) toVariants() expressionVariants {
	var v expressionVariants
	switch {
	case e.And != nil:
		v.And = &e.And
	case e.Or != nil:
		v.Or = &e.Or
	case e.Condition != nil:
		v.Condition = e.Condition
	}
	return v
}

func (e *Expression) UnmarshalJSON(data []byte) error {
	var v expressionVariants
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return e.fromVariants(v)
}

func (e *Expression) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.toVariants())
}

func (e *Expression) UnmarshalYAML(value *yaml.Node) error {
	var v expressionVariants
	if err := value.Decode(&v); err != nil {
		return err
	}
	return e.fromVariants(v)
}

func (e *Expression) MarshalYAML() (any, error) {
	return e.toVariants(), nil
}

// Evaluate walks the tree depth-first against a record and an evaluation
// context. And/Or short-circuit. It returns an error only for nodes that
// populate more than one variant (hand-built, never from the decoders);
// everything else fails closed.
func (e *Expression) Evaluate(record map[string]any, ec *Context) (bool, error) {
	if e == nil {
		return false, nil
	}
	populated := 0
	if e.And != nil {
		populated++
	}
	if e.Or != nil {
		populated++
	}
	if e.Condition != nil {
		populated++
	}
	if populated > 1 {
		return false, fmt.Errorf("ambiguous expression node: %d variants populated", populated)
	}

	switch {
	case e.And != nil:
		for _, child := range e.And {
			ok, err := child.Evaluate(record, ec)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case e.Or != nil:
		for _, child := range e.Or {
			ok, err := child.Evaluate(record, ec)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case e.Condition != nil:
		return evaluateCondition(e.Condition, record, ec), nil
	}
	// Empty node: the defensive default.
	return false, nil
}

func evaluateCondition(c *Condition, record map[string]any, ec *Context) bool {
	fieldValue := record[c.Field]

	compareValue := c.Value
	if s, ok := c.Value.(string); ok && ec != nil {
		if resolved, ok := ec.ResolveVariable(s); ok {
			compareValue = resolved
		}
	}

	switch c.Operator {
	case OpEq:
		return valuesEqual(fieldValue, compareValue)
	case OpNe:
		return !valuesEqual(fieldValue, compareValue)
	case OpIn:
		return valueIn(fieldValue, compareValue)
	case OpContains:
		s, ok := fieldValue.(string)
		return ok && strings.Contains(s, stringify(compareValue))
	case OpStartsWith:
		s, ok := fieldValue.(string)
		return ok && strings.HasPrefix(s, stringify(compareValue))
	case OpEndsWith:
		s, ok := fieldValue.(string)
		return ok && strings.HasSuffix(s, stringify(compareValue))
	}
	phlog.Warn().Str("operator", string(c.Operator)).Str("field", c.Field).Msg("rls: unknown condition operator")
	return false
}

// valuesEqual compares loosely across the numeric types JSON decoding
// produces; everything else requires matching concrete types.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

// valueIn tests membership of fieldValue in a collection compare value.
// A non-collection compare value fails closed.
func valueIn(fieldValue, compareValue any) bool {
	switch vs := compareValue.(type) {
	case []any:
		for _, v := range vs {
			if valuesEqual(fieldValue, v) {
				return true
			}
		}
	case []string:
		for _, v := range vs {
			if valuesEqual(fieldValue, v) {
				return true
			}
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Validate reports structural problems a write path should reject:
// ambiguous or empty nodes, empty branch lists (which would otherwise hit
// the documented vacuous defaults), blank fields and unknown operators.
func (e *Expression) Validate() error {
	if e == nil {
		return fmt.Errorf("expression is nil")
	}
	populated := 0
	if e.And != nil {
		populated++
	}
	if e.Or != nil {
		populated++
	}
	if e.Condition != nil {
		populated++
	}
	if populated != 1 {
		return fmt.Errorf("expression node populates %d of and/or/condition, want exactly one", populated)
	}
	switch {
	case e.And != nil:
		if len(e.And) == 0 {
			return fmt.Errorf("and branch is empty (would be vacuously true)")
		}
		for i, child := range e.And {
			if err := child.Validate(); err != nil {
				return fmt.Errorf("and[%d]: %w", i, err)
			}
		}
	case e.Or != nil:
		if len(e.Or) == 0 {
			return fmt.Errorf("or branch is empty (would be vacuously false)")
		}
		for i, child := range e.Or {
			if err := child.Validate(); err != nil {
				return fmt.Errorf("or[%d]: %w", i, err)
			}
		}
	default:
		if e.Condition.Field == "" {
			return fmt.Errorf("condition field is empty")
		}
		switch e.Condition.Operator {
		case OpEq, OpNe, OpIn, OpContains, OpStartsWith, OpEndsWith:
		default:
			return fmt.Errorf("unknown operator %q", e.Condition.Operator)
		}
	}
	return nil
}

func (e *Expression) String() string {
	if e == nil {
		return "<nil>"
	}
	switch {
	case e.And != nil:
		parts := make([]string, len(e.And))
		for i, child := range e.And {
			parts[i] = child.String()
		}
		return "(" + strings.Join(parts, " AND ") + ")"
	case e.Or != nil:
		parts := make([]string, len(e.Or))
		for i, child := range e.Or {
			parts[i] = child.String()
		}
		return "(" + strings.Join(parts, " OR ") + ")"
	case e.Condition != nil:
		return fmt.Sprintf("%s %s %v", e.Condition.Field, e.Condition.Operator, e.Condition.Value)
	}
	return "<empty>"
}
