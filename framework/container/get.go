package container

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/km-arc/go-inject/framework/errs"
	"github.com/km-arc/go-inject/framework/expr"
	"github.com/km-arc/go-inject/framework/scope"
)

// ── Get options ───────────────────────────────────────────────────────────────

type getOptions struct {
	scope     *scope.Scope
	scopeName string
	binds     map[string]any
	def       any
	wrapper   func(any) (any, error)
	types     []string
}

// GetOption customises a single Get call.
type GetOption func(*getOptions)

// InScope resolves inside the given scope instead of the global one.
func InScope(s *scope.Scope) GetOption {
	return func(o *getOptions) { o.scope = s }
}

// InScopeNamed resolves inside the named scope.
func InScopeNamed(name string) GetOption {
	return func(o *getOptions) { o.scopeName = name }
}

// WithBinds adds context bindings for this call. Keys are source
// expressions ("@adminId", "~IDBConn"); an expr.Injection value redirects
// the keyed dependency.
func WithBinds(binds map[string]any) GetOption {
	return func(o *getOptions) { o.binds = expr.MergeBinds(o.binds, binds) }
}

// WithDefault sets the value returned when an optional ("?") root
// expression cannot be resolved. The default is nil.
func WithDefault(v any) GetOption {
	return func(o *getOptions) { o.def = v }
}

// WithWrapper decorates the resolved root value before it is returned.
//
//	c.Get(ctx, "~logger", container.WithWrapper(func(v any) (any, error) {
//	    return v.(*zap.Logger).With(zap.String("request", id)), nil
//	}))
func WithWrapper(fn func(any) (any, error)) GetOption {
	return func(o *getOptions) { o.wrapper = fn }
}

// WithTypes restricts a wildcard request to classes declaring one of the
// abstract types.
func WithTypes(types ...string) GetOption {
	return func(o *getOptions) { o.types = append(o.types, types...) }
}

// ── Get ───────────────────────────────────────────────────────────────────────

// Get resolves an injection expression.
//
//	conn, err := c.Get(ctx, "~IDBConn")
//	mgr, err := c.Get(ctx, "UserManager", container.WithBinds(map[string]any{"@adminId": 1}))
//	drivers, err := c.Get(ctx, "&drivers.*")   // map[string]any of constructors
func (c *Container) Get(ctx context.Context, expression string, opts ...GetOption) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var o getOptions
	for _, opt := range opts {
		opt(&o)
	}

	t, err := c.parse(expression)
	if err != nil {
		c.recorder.ObserveFailure(string(errs.CodeOf(err)))
		return nil, err
	}
	for k := range o.binds {
		if _, err := expr.ParseSource(k); err != nil {
			return nil, err
		}
	}

	s := o.scope
	if s == nil {
		if s, err = c.GetScope(o.scopeName); err != nil {
			return nil, err
		}
	}
	if s.Destroyed() {
		return nil, errs.ScopeDestroyed(s.Name())
	}

	// Transient caches of this call live in an ephemeral scope.
	build := scope.New("~"+t.Text, nil, scope.WithLogger(c.logger))
	defer func() {
		if derr := build.Destroy(context.Background()); derr != nil {
			c.logger.Warn("ephemeral scope teardown failed", zap.Error(derr))
		}
	}()

	bc := &buildContext{
		ctx:   ctx,
		root:  t.Text,
		scope: s,
		build: build,
		binds: o.binds,
		types: o.types,
	}

	start := time.Now()
	v, kind, err := c.resolve(bc, t)
	if err != nil {
		if t.Optional && isRootMiss(err) {
			c.logger.Debug("optional expression not resolved",
				zap.String("expr", t.Text), zap.String("scope", s.Name()))
			return o.def, nil
		}
		c.recorder.ObserveFailure(string(errs.CodeOf(err)))
		c.logger.Debug("resolution failed", zap.String("expr", t.Text), zap.Error(err))
		return nil, err
	}
	c.recorder.ObserveResolution(kind, time.Since(start))

	if o.wrapper != nil {
		return o.wrapper(v)
	}
	return v, nil
}

// MustGet is like Get but panics on error. Intended for bootstrap code.
func (c *Container) MustGet(ctx context.Context, expression string, opts ...GetOption) any {
	v, err := c.Get(ctx, expression, opts...)
	if err != nil {
		panic(err)
	}
	return v
}

// Resolve is a generic helper that calls Get and type-asserts the result.
//
//	conn, err := container.Resolve[*MySQLConn](ctx, c, "~IDBConn")
func Resolve[T any](ctx context.Context, c *Container, expression string, opts ...GetOption) (T, error) {
	var zero T
	v, err := c.Get(ctx, expression, opts...)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	typed, ok := v.(T)
	if !ok {
		return zero, errs.InvalidInjection(expression, fmt.Sprintf("resolved to %T, not %T", v, zero))
	}
	return typed, nil
}

// MustResolve is like Resolve but panics on error.
func MustResolve[T any](ctx context.Context, c *Container, expression string, opts ...GetOption) T {
	v, err := Resolve[T](ctx, c, expression, opts...)
	if err != nil {
		panic(err)
	}
	return v
}

// ── Request context ───────────────────────────────────────────────────────────

type requestKey struct{}

// RequestedTarget returns the expression a factory method is serving. It is
// set on the context passed to factories that accept one, and lets a
// namespace family factory ("ns.*") learn which member was asked for.
func RequestedTarget(ctx context.Context) (*expr.Target, bool) {
	t, ok := ctx.Value(requestKey{}).(*expr.Target)
	return t, ok
}

// isRootMiss reports whether err is a not-found failure of the expression
// itself rather than of one of its dependencies.
func isRootMiss(err error) bool {
	var dep *dependencyError
	if errors.As(err, &dep) {
		return false
	}
	switch errs.CodeOf(err) {
	case errs.CodeClassNotFound, errs.CodeFactoryNotFound:
		return true
	}
	return false
}
