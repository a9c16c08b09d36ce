package rls

// Builders provide a fluent API for creating Rules and expression trees.

// RuleBuilder builds a Rule.
type RuleBuilder struct {
	r *Rule
}

func NewRuleBuilder() *RuleBuilder {
	return &RuleBuilder{r: &Rule{Operations: []Operation{}, RoleIDs: []string{}, IsActive: true}}
}

func (b *RuleBuilder) ID(id string) *RuleBuilder           { b.r.ID = id; return b }
func (b *RuleBuilder) Tenant(t string) *RuleBuilder        { b.r.TenantID = t; return b }
func (b *RuleBuilder) ObjectType(o string) *RuleBuilder    { b.r.ObjectType = o; return b }
func (b *RuleBuilder) Name(n string) *RuleBuilder          { b.r.Name = n; return b }
func (b *RuleBuilder) Description(d string) *RuleBuilder   { b.r.Description = d; return b }
func (b *RuleBuilder) Effect(e Effect) *RuleBuilder        { b.r.Effect = e; return b }
func (b *RuleBuilder) Priority(p int) *RuleBuilder         { b.r.Priority = p; return b }
func (b *RuleBuilder) Active(active bool) *RuleBuilder     { b.r.IsActive = active; return b }
func (b *RuleBuilder) Expression(e *Expression) *RuleBuilder {
	b.r.Expression = e
	return b
}
func (b *RuleBuilder) Operations(ops ...Operation) *RuleBuilder {
	b.r.Operations = append(b.r.Operations, ops...)
	return b
}
func (b *RuleBuilder) Roles(ids ...string) *RuleBuilder {
	b.r.RoleIDs = append(b.r.RoleIDs, ids...)
	return b
}
func (b *RuleBuilder) Build() *Rule { return b.r }

// Cond builds a condition leaf.
func Cond(field string, op Operator, value any) *Expression {
	return &Expression{Condition: &Condition{Field: field, Operator: op, Value: value}}
}

// And builds a conjunction node; all children must hold.
func And(children ...*Expression) *Expression {
	if children == nil {
		children = []*Expression{}
	}
	return &Expression{And: children}
}

// Or builds a disjunction node; any child suffices.
func Or(children ...*Expression) *Expression {
	if children == nil {
		children = []*Expression{}
	}
	return &Expression{Or: children}
}
