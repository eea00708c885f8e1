package registry

import (
	"context"
	"fmt"
	"reflect"

	"github.com/km-arc/go-inject/framework/errs"
	"github.com/km-arc/go-inject/framework/expr"
)

// ── Lifetime ──────────────────────────────────────────────────────────────────

// Lifetime is the caching hint a factory method may return with its product.
type Lifetime string

const (
	// LifetimeNone leaves the product uncached.
	LifetimeNone Lifetime = ""

	// LifetimeSingleton caches the product in the resolving scope.
	LifetimeSingleton Lifetime = "singleton"

	// LifetimeScoped caches the product for one top-level Get call only.
	LifetimeScoped Lifetime = "scoped"
)

// Product is what a factory method returns when it wants to control how its
// result is cached. A factory returning any other value is treated as
// Product{Value: v}.
//
//	func (f *LoggerFactory) Named(subject string) registry.Product {
//	    return registry.Product{Value: f.base.Named(subject), Lifetime: registry.LifetimeScoped}
//	}
type Product struct {
	Value    any
	Lifetime Lifetime
}

// ── Class ─────────────────────────────────────────────────────────────────────

// Class is the immutable descriptor of a registered component.
type Class struct {
	Name string

	// Types lists the abstract types the class satisfies, without "~".
	Types []string

	Params     []expr.Injection
	Properties []Property

	Singleton        bool
	ContextSingleton bool
	Private          bool

	Initializer   *Method
	Uninitializer *Method
	Factories     []*Method

	// Deprecated holds the deprecation note, empty when not deprecated.
	Deprecated string

	// GoType is the dynamic type of the values the constructor builds.
	GoType reflect.Type

	ctor       reflect.Value
	ctorCtx    bool
	ctorErr    bool
	paramTypes []reflect.Type
}

// Property is a field assigned after construction.
type Property struct {
	Field     string
	Injection expr.Injection

	index []int
}

// Method describes an initializer, uninitializer or factory method.
type Method struct {
	Class string
	Name  string

	// Product is set on factory methods only: "Name", "~Type" or "ns.*".
	Product string
	Params  []expr.Injection

	takesCtx   bool
	paramTypes []reflect.Type
}

// IsWildcardProduct reports whether the method produces a whole namespace.
func (m *Method) IsWildcardProduct() bool {
	return len(m.Product) > 2 && m.Product[len(m.Product)-2:] == ".*"
}

// Key returns "Class::method".
func (m *Method) Key() string { return m.Class + "::" + m.Name }

// Method returns the factory method with the given name.
func (c *Class) Method(name string) (*Method, error) {
	for _, m := range c.Factories {
		if m.Name == name {
			return m, nil
		}
	}
	return nil, errs.MethodNotFound(c.Name, name)
}

// HasType reports whether the class declares the abstract type.
func (c *Class) HasType(typ string) bool {
	typ = stripAbstract(typ)
	for _, t := range c.Types {
		if t == typ {
			return true
		}
	}
	return false
}

// Constructor returns the raw constructor function.
func (c *Class) Constructor() any { return c.ctor.Interface() }

// ── Invocation ────────────────────────────────────────────────────────────────

// Construct calls the constructor with already resolved arguments.
func (c *Class) Construct(ctx context.Context, args []any) (obj any, err error) {
	in, err := convertArgs(c.Name, c.paramTypes, args)
	if err != nil {
		return nil, err
	}
	if c.ctorCtx {
		in = append([]reflect.Value{ctxValue(ctx)}, in...)
	}

	defer recoverInto(c.Name, &err)

	out := c.ctor.Call(in)
	if c.ctorErr && !out[1].IsNil() {
		return nil, errs.ConstructionFailed(c.Name, out[1].Interface().(error))
	}
	return out[0].Interface(), nil
}

// SetProperty assigns v to the property on obj.
func (c *Class) SetProperty(obj any, p Property, v any) error {
	target := reflect.ValueOf(obj)
	for target.Kind() == reflect.Ptr {
		target = target.Elem()
	}
	field := target.FieldByIndex(p.index)
	if !field.CanSet() {
		return errs.InvalidInjection(c.Name+"."+p.Field, "field is not settable")
	}
	val, err := convertArg(c.Name+"."+p.Field, field.Type(), v)
	if err != nil {
		return err
	}
	field.Set(val)
	return nil
}

// Invoke calls the method on obj with already resolved arguments.
// A trailing error result is returned as err; a missing value result yields nil.
func (m *Method) Invoke(ctx context.Context, obj any, args []any) (result any, err error) {
	if obj == nil {
		return nil, errs.InvalidInjection(m.Key(), "receiver is nil")
	}
	fn := reflect.ValueOf(obj).MethodByName(m.Name)
	if !fn.IsValid() {
		return nil, errs.MethodNotFound(m.Class, m.Name)
	}
	in, err := convertArgs(m.Key(), m.paramTypes, args)
	if err != nil {
		return nil, err
	}
	if m.takesCtx {
		in = append([]reflect.Value{ctxValue(ctx)}, in...)
	}

	defer recoverInto(m.Key(), &err)

	out := fn.Call(in)
	return splitResults(m.Key(), out)
}

func splitResults(target string, out []reflect.Value) (any, error) {
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if out[0].Type() == errorType {
			if out[0].IsNil() {
				return nil, nil
			}
			return nil, errs.ConstructionFailed(target, out[0].Interface().(error))
		}
		return out[0].Interface(), nil
	default:
		if e := out[len(out)-1]; e.Type() == errorType && !e.IsNil() {
			return nil, errs.ConstructionFailed(target, e.Interface().(error))
		}
		return out[0].Interface(), nil
	}
}

func convertArgs(target string, types []reflect.Type, args []any) ([]reflect.Value, error) {
	if len(args) != len(types) {
		return nil, errs.InvalidInjection(target, fmt.Sprintf("expected %d argument(s), got %d", len(types), len(args)))
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		v, err := convertArg(fmt.Sprintf("%s#%d", target, i), types[i], a)
		if err != nil {
			return nil, err
		}
		in[i] = v
	}
	return in, nil
}

func convertArg(target string, want reflect.Type, v any) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(want), nil
	}
	rv := reflect.ValueOf(v)
	switch {
	case rv.Type().AssignableTo(want):
		return rv, nil
	case rv.Type().ConvertibleTo(want) && rv.Kind() == want.Kind():
		return rv.Convert(want), nil
	}
	return reflect.Value{}, errs.InvalidInjection(target, fmt.Sprintf("cannot use %s as %s", rv.Type(), want))
}

func ctxValue(ctx context.Context) reflect.Value {
	if ctx == nil {
		ctx = context.Background()
	}
	return reflect.ValueOf(&ctx).Elem()
}

func recoverInto(target string, err *error) {
	if r := recover(); r != nil {
		if e, ok := r.(error); ok {
			*err = errs.ConstructionFailed(target, e)
			return
		}
		*err = errs.ConstructionFailed(target, fmt.Errorf("panic: %v", r))
	}
}

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)
