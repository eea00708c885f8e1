package container

import (
	"context"

	"go.uber.org/zap"

	"github.com/km-arc/go-inject/framework/errs"
	"github.com/km-arc/go-inject/framework/expr"
	"github.com/km-arc/go-inject/framework/registry"
	"github.com/km-arc/go-inject/framework/scope"
)

// Resolution kinds, reported to the Recorder.
const (
	kindVariable    = "variable"
	kindContext     = "context"
	kindFactory     = "factory"
	kindClass       = "class"
	kindWildcard    = "wildcard"
	kindConstructor = "constructor"
)

// ── Build context ─────────────────────────────────────────────────────────────

// buildContext is the per-step state of one top-level Get call. It is
// copied, never shared, when descending into a dependency.
type buildContext struct {
	ctx  context.Context
	root string

	// scope serves bindings, variables, singletons and owns teardowns.
	scope *scope.Scope

	// build caches per-call (scoped) products; destroyed when Get returns.
	build *scope.Scope

	binds map[string]any
	types []string
	path  []string

	// receiver is set while building the holder of a factory method, where
	// private classes may be constructed.
	receiver bool
}

// enter records key on the path and overlays the scope's context bindings
// for the expression under the inherited ones.
func (bc *buildContext) enter(t *expr.Target, key string) *buildContext {
	cp := *bc
	cp.path = append(append([]string(nil), bc.path...), key)

	var scoped map[string]any
	if bare := t.WithoutVar().Required().Text; bare != key {
		scoped = bc.scope.FindContextBindings(bare)
	}
	scoped = expr.MergeBinds(scoped, bc.scope.FindContextBindings(key))
	cp.binds = expr.MergeBinds(scoped, bc.binds)
	return &cp
}

// fork prepares the context of a dependency.
func (bc *buildContext) fork(binds map[string]any) *buildContext {
	cp := *bc
	cp.binds = expr.MergeBinds(bc.binds, binds)
	cp.types = nil
	cp.receiver = false
	return &cp
}

// dependencyError marks a failure raised while resolving a dependency, so
// that it is never mistaken for a miss of the requesting expression.
type dependencyError struct {
	expr string
	err  error
}

func (e *dependencyError) Error() string { return "resolving " + e.expr + ": " + e.err.Error() }
func (e *dependencyError) Unwrap() error { return e.err }

// ── Resolution ────────────────────────────────────────────────────────────────

// resolve applies the precedence rules to t:
//
//  1. cycle guard
//  2. variable already bound
//  3. context override (an expr.Injection value redirects)
//  4. explicit factory method
//  5. scope rebinding, by variable, full expression, then type
//  6. unique factory producing the type
//  7. class construction
func (c *Container) resolve(bc *buildContext, t *expr.Target) (any, string, error) {
	if err := bc.ctx.Err(); err != nil {
		return nil, "", err
	}

	key := t.Required().Text
	for _, p := range bc.path {
		if p == key {
			return nil, "", errs.CyclicDependency(key, bc.path)
		}
	}
	bc = bc.enter(t, key)

	v, kind, err := c.resolveStep(bc, t)
	if err == nil || !isRootMiss(err) {
		return v, kind, err
	}

	missKey := t.TypeKey()
	if missKey == "" {
		missKey = t.VarKey()
	}
	loaded, herr := c.fireMissing(bc.ctx, missKey)
	if herr != nil {
		return nil, "", herr
	}
	if !loaded {
		return nil, "", err
	}
	c.logger.Debug("retrying after missing handler", zap.String("expr", key))
	return c.resolveStep(bc, t)
}

func (c *Container) resolveStep(bc *buildContext, t *expr.Target) (any, string, error) {
	switch {
	case t.Wildcard:
		return c.resolveWildcard(bc, t)
	case t.Constructor:
		cls, err := c.registry.Get(t.Type)
		if err != nil {
			return nil, "", withPath(err, bc.path)
		}
		return cls.Constructor(), kindConstructor, nil
	}

	if name, global := t.ProductVar(); name != "" {
		if v, ok := c.lookupVar(bc, name, global); ok {
			return v, kindVariable, nil
		}
	}

	if v, ok := c.contextOverride(bc, t); ok {
		if inj, redirect := asInjection(v); redirect {
			return c.redirect(bc, t, inj.Expr, inj.Binds)
		}
		return v, kindContext, nil
	}

	if t.Method != "" {
		v, err := c.explicitFactory(bc, t)
		return c.store(bc, t, v, kindFactory, err)
	}

	if b, ok := c.findBind(bc, t); ok {
		return c.redirect(bc, t, b.Target, b.Binds)
	}

	if t.Type == "" {
		return nil, "", errs.FactoryNotFound(t.Text).WithPath(bc.path)
	}

	if m := c.inferFactory(t); m != nil {
		v, err := c.factoryOfClass(bc, t, m)
		return c.store(bc, t, v, kindFactory, err)
	}

	cls, err := c.pickClass(bc, t)
	if err != nil {
		return nil, "", err
	}
	v, err := c.buildClass(bc, cls)
	return c.store(bc, t, v, kindClass, err)
}

// store binds a freshly resolved value to the requested variable.
func (c *Container) store(bc *buildContext, t *expr.Target, v any, kind string, err error) (any, string, error) {
	if err != nil {
		return nil, "", err
	}
	if name, global := t.ProductVar(); name != "" {
		if global {
			c.SetGlobal(name, v)
		} else {
			bc.scope.BindValue(name, v)
		}
	}
	return v, kind, nil
}

func (c *Container) lookupVar(bc *buildContext, name string, global bool) (any, bool) {
	if global {
		return c.Global(name)
	}
	return bc.scope.GetValue(name)
}

func (c *Container) contextOverride(bc *buildContext, t *expr.Target) (any, bool) {
	if len(bc.binds) == 0 {
		return nil, false
	}
	for _, k := range lookupKeys(t) {
		if v, ok := bc.binds[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func (c *Container) findBind(bc *buildContext, t *expr.Target) (*scope.Bind, bool) {
	for _, k := range lookupKeys(t) {
		if b, ok := bc.scope.FindBind(k); ok {
			return b, true
		}
	}
	return nil, false
}

// lookupKeys lists the binding keys of t in precedence order: variable,
// full expression, type. Factory requests are keyed by variable and
// "Receiver::method" only.
func lookupKeys(t *expr.Target) []string {
	keys := make([]string, 0, 4)
	add := func(k string) {
		if k == "" {
			return
		}
		for _, x := range keys {
			if x == k {
				return
			}
		}
		keys = append(keys, k)
	}
	if name, _ := t.ProductVar(); name != "" {
		add(t.VarKey())
	}
	if t.Method == "" {
		add(t.Required().Text)
		add(t.TypeKey())
	}
	add(t.FactoryKey())
	return keys
}

// redirect resolves target in place of t. The result is still stored under
// t's variable.
func (c *Container) redirect(bc *buildContext, t *expr.Target, target string, binds map[string]any) (any, string, error) {
	rt, err := c.parse(target)
	if err != nil {
		return nil, "", err
	}
	c.logger.Debug("redirecting", zap.String("from", t.Text), zap.String("to", rt.Text))
	v, kind, err := c.resolve(bc.fork(binds), rt)
	return c.store(bc, t, v, kind, err)
}

// inferFactory returns the single factory producing t, if any.
func (c *Container) inferFactory(t *expr.Target) *registry.Method {
	if t.Abstract {
		if ms := c.registry.FindFactoryMethodsByType(t.Type); len(ms) == 1 {
			return ms[0]
		}
		return nil
	}
	ms := c.registry.FindFactoryMethodsByClass(t.Type)
	if len(ms) == 1 {
		return ms[0]
	}
	if len(ms) == 0 && !c.registry.Has(t.Type) {
		if fam := c.registry.FindWildcardFactories(t.Type); len(fam) > 0 {
			return fam[0]
		}
	}
	return nil
}

// pickClass selects the concrete class serving t.
func (c *Container) pickClass(bc *buildContext, t *expr.Target) (*registry.Class, error) {
	if t.Abstract {
		var (
			pick  *registry.Class
			names []string
		)
		for _, cls := range c.registry.FindByType(t.Type) {
			if cls.Private {
				continue
			}
			pick = cls
			names = append(names, cls.Name)
		}
		if len(names) != 1 {
			return nil, errs.FactoryNotFound(t.TypeKey(), names...).WithPath(bc.path)
		}
		return pick, nil
	}

	cls, err := c.registry.Get(t.Type)
	if err != nil {
		return nil, withPath(err, bc.path)
	}
	if cls.Private && !bc.receiver {
		return nil, errs.PrivateClass(cls.Name).WithPath(bc.path)
	}
	return cls, nil
}

// resolveDependency resolves one injection on behalf of the current
// expression. An optional dependency that cannot be found yields nil.
func (c *Container) resolveDependency(bc *buildContext, inj expr.Injection) (any, error) {
	t, err := c.parse(inj.Expr)
	if err != nil {
		return nil, err
	}
	v, _, err := c.resolve(bc.fork(inj.Binds), t)
	if err != nil {
		if t.Optional && isRootMiss(err) {
			return nil, nil
		}
		return nil, &dependencyError{expr: t.Text, err: err}
	}
	return v, nil
}

func (c *Container) resolveArgs(bc *buildContext, params []expr.Injection) ([]any, error) {
	args := make([]any, 0, len(params))
	for _, p := range params {
		v, err := c.resolveDependency(bc, p)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return args, nil
}

// parse compiles an expression, memoising the result in a bounded LRU.
// Targets are never mutated after parsing.
func (c *Container) parse(text string) (*expr.Target, error) {
	if t, ok := c.parsed.Get(text); ok {
		return t, nil
	}
	t, err := expr.ParseTarget(text)
	if err != nil {
		return nil, err
	}
	c.parsed.Add(text, t)
	return t, nil
}

// ParsedExpressions reports how many compiled expressions are cached.
func (c *Container) ParsedExpressions() int { return c.parsed.Len() }

func asInjection(v any) (expr.Injection, bool) {
	switch inj := v.(type) {
	case expr.Injection:
		return inj, true
	case *expr.Injection:
		if inj != nil {
			return *inj, true
		}
	}
	return expr.Injection{}, false
}

func withPath(err error, path []string) error {
	if e, ok := err.(*errs.Error); ok {
		return e.WithPath(path)
	}
	return err
}
