package container

import (
	"context"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/km-arc/go-inject/framework/errs"
	"github.com/km-arc/go-inject/framework/expr"
	"github.com/km-arc/go-inject/framework/registry"
)

// ── Classes ───────────────────────────────────────────────────────────────────

// buildClass constructs cls: dependencies in declaration order, then
// properties, then the initializer. Singletons are cached only once the
// initializer has returned.
func (c *Container) buildClass(bc *buildContext, cls *registry.Class) (any, error) {
	if cls.Singleton {
		if v, ok := bc.scope.GetSingleton(cls.Name); ok {
			return v, nil
		}
	}
	if cls.ContextSingleton {
		if v, ok := bc.build.GetSingleton(cls.Name); ok {
			return v, nil
		}
	}
	if cls.Deprecated != "" {
		c.logger.Warn("building deprecated class",
			zap.String("class", cls.Name),
			zap.String("note", cls.Deprecated),
			zap.String("root", bc.root),
		)
	}

	args, err := c.resolveArgs(bc, cls.Params)
	if err != nil {
		return nil, err
	}
	obj, err := cls.Construct(bc.ctx, args)
	if err != nil {
		return nil, err
	}
	for _, p := range cls.Properties {
		v, err := c.resolveDependency(bc, p.Injection)
		if err != nil {
			return nil, err
		}
		if err := cls.SetProperty(obj, p, v); err != nil {
			return nil, err
		}
	}
	if err := c.lifecycle(bc, cls, obj); err != nil {
		return nil, err
	}

	switch {
	case cls.Singleton:
		bc.scope.SetSingleton(cls.Name, obj)
	case cls.ContextSingleton:
		bc.build.SetSingleton(cls.Name, obj)
	}
	c.logger.Debug("built class",
		zap.String("class", cls.Name),
		zap.String("scope", bc.scope.Name()),
		zap.Strings("path", bc.path),
	)
	return obj, nil
}

// lifecycle runs the initializer of obj and queues its uninitializer on the
// resolving scope.
func (c *Container) lifecycle(bc *buildContext, cls *registry.Class, obj any) error {
	if m := cls.Initializer; m != nil {
		args, err := c.resolveArgs(bc, m.Params)
		if err != nil {
			return err
		}
		if _, err := m.Invoke(bc.ctx, obj, args); err != nil {
			return err
		}
	}
	if m := cls.Uninitializer; m != nil {
		bc.scope.AddUninitializer(obj, m.Name, func(ctx context.Context) error {
			_, err := m.Invoke(ctx, obj, nil)
			return err
		})
	}
	return nil
}

// ── Factories ─────────────────────────────────────────────────────────────────

// explicitFactory serves "receiver::method".
func (c *Container) explicitFactory(bc *buildContext, t *expr.Target) (any, error) {
	rt := t.Receiver()
	recvCtx := bc.fork(nil)
	recvCtx.receiver = true
	recv, _, err := c.resolve(recvCtx, rt)
	if err != nil {
		return nil, err
	}
	if recv == nil {
		return nil, nilReceiver(bc, t, rt.Text)
	}

	cls, err := c.classOfReceiver(bc, rt, recv)
	if err != nil {
		return nil, err
	}
	m, err := cls.Method(t.Method)
	if err != nil {
		return nil, withPath(err, bc.path)
	}
	return c.invokeFactory(bc, t, cls, m, recv)
}

// factoryOfClass serves a request through a factory found by inference.
func (c *Container) factoryOfClass(bc *buildContext, t *expr.Target, m *registry.Method) (any, error) {
	cls, err := c.registry.Get(m.Class)
	if err != nil {
		return nil, withPath(err, bc.path)
	}
	recvCtx := bc.fork(nil)
	recvCtx.receiver = true
	recv, _, err := c.resolve(recvCtx, &expr.Target{Text: cls.Name, Type: cls.Name})
	if err != nil {
		return nil, err
	}
	if recv == nil {
		return nil, nilReceiver(bc, t, cls.Name)
	}
	return c.invokeFactory(bc, t, cls, m, recv)
}

// classOfReceiver picks the descriptor whose methods serve recv. The
// instance decides when it belongs to a registered class, since a
// rebinding or context override may hand over another class than the one
// named; the named class is the fallback.
func (c *Container) classOfReceiver(bc *buildContext, rt *expr.Target, recv any) (*registry.Class, error) {
	if rt.Type != "" && !rt.Abstract {
		named, err := c.registry.Get(rt.Type)
		if err != nil {
			return nil, withPath(err, bc.path)
		}
		if named.GoType == reflect.TypeOf(recv) {
			return named, nil
		}
		if cls, ok := c.registry.FindClassOfInstance(recv); ok {
			return cls, nil
		}
		return named, nil
	}
	cls, ok := c.registry.FindClassOfInstance(recv)
	if !ok {
		return nil, errs.ClassNotFound(fmt.Sprintf("%T", recv)).WithPath(bc.path)
	}
	return cls, nil
}

// nilReceiver reports a factory request whose receiver resolved to nil,
// e.g. through a nil context binding or scope variable.
func nilReceiver(bc *buildContext, t *expr.Target, receiver string) error {
	return errs.FactoryNotFound(t.Text).
		WithMeta("receiver", receiver).
		WithMeta("reason", "receiver is nil").
		WithPath(bc.path)
}

// invokeFactory calls m on recv and applies the product's lifetime hint.
// The hint decides caching regardless of any scope default.
func (c *Container) invokeFactory(bc *buildContext, t *expr.Target, cls *registry.Class, m *registry.Method, recv any) (any, error) {
	key := m.Key()
	if m.IsWildcardProduct() {
		key += "(" + t.Type + ")"
	}
	if v, ok := bc.scope.GetSingleton(key); ok {
		return v, nil
	}
	if v, ok := bc.build.GetSingleton(key); ok {
		return v, nil
	}

	args, err := c.resolveArgs(bc, m.Params)
	if err != nil {
		return nil, err
	}
	fctx := context.WithValue(bc.ctx, requestKey{}, t)
	out, err := m.Invoke(fctx, recv, args)
	if err != nil {
		return nil, err
	}

	value, lifetime := unwrapProduct(out)
	if value != nil {
		if pcls, ok := c.registry.FindClassOfInstance(value); ok {
			if err := c.lifecycle(bc, pcls, value); err != nil {
				return nil, err
			}
		}
	}

	switch lifetime {
	case registry.LifetimeSingleton:
		bc.scope.SetSingleton(key, value)
	case registry.LifetimeScoped:
		bc.build.SetSingleton(key, value)
	case registry.LifetimeNone:
	default:
		return nil, errs.MalformedProduct(cls.Name, m.Name, string(lifetime))
	}
	c.logger.Debug("factory produced",
		zap.String("factory", key),
		zap.String("lifetime", string(lifetime)),
		zap.String("scope", bc.scope.Name()),
	)
	return value, nil
}

func unwrapProduct(out any) (any, registry.Lifetime) {
	switch p := out.(type) {
	case registry.Product:
		return p.Value, p.Lifetime
	case *registry.Product:
		if p == nil {
			return nil, registry.LifetimeNone
		}
		return p.Value, p.Lifetime
	}
	return out, registry.LifetimeNone
}
