package scope

import "github.com/km-arc/go-inject/framework/expr"

// ContextualBuilder implements the fluent contextual binding API.
//
//	s.When("UserManager").Needs("@adminId").Give(1)
//	s.When("UserManager").Needs("~IDBConn").GiveExpr("PgSQLConn")
type ContextualBuilder struct {
	scope  *Scope
	target string
	needs  string
}

// When starts a contextual binding chain for the target expression.
func (s *Scope) When(target string) *ContextualBuilder {
	return &ContextualBuilder{scope: s, target: target}
}

// Needs names the dependency, as a source expression, that receives the value.
func (b *ContextualBuilder) Needs(dependency string) *ContextualBuilder {
	b.needs = dependency
	return b
}

// Give binds a plain value for the dependency while the target is resolved.
func (b *ContextualBuilder) Give(value any) error {
	return b.scope.BindContext(b.target, map[string]any{b.needs: value})
}

// GiveExpr redirects the dependency to another expression, optionally with
// its own extra bindings.
func (b *ContextualBuilder) GiveExpr(expression string, binds ...map[string]any) error {
	if _, err := expr.ParseTarget(expression); err != nil {
		return err
	}
	return b.Give(expr.Inject(expression, binds...))
}
