package registry

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"

	"github.com/km-arc/go-inject/framework/errs"
	"github.com/km-arc/go-inject/framework/expr"
)

// ClassBuilder collects the metadata of one component before registration.
// Errors are recorded and reported by Registry.Register, so calls can be
// chained freely.
//
//	reg.MustRegister(registry.NewClass(NewMySQLConn).
//	    Prefix("demo").
//	    Types("~IDBConn").
//	    Inject("@dbconfig").
//	    Uninitializer("Close"))
type ClassBuilder struct {
	ctor   reflect.Value
	goType reflect.Type

	name      string
	anonymous bool
	prefix    string
	types     []string

	params []expr.Injection
	props  []Property

	singleton        bool
	contextSingleton bool
	private          bool
	deprecated       string

	initializers   []methodSpec
	uninitializers []methodSpec
	factories      []methodSpec

	err error
}

type methodSpec struct {
	name    string
	product string
	params  []expr.Injection
}

// NewClass starts a descriptor from a constructor function.
//
// The constructor may take a leading context.Context followed by one
// parameter per injection, and must return T or (T, error) where T is a
// concrete type.
func NewClass(ctor any) *ClassBuilder {
	b := &ClassBuilder{}
	v := reflect.ValueOf(ctor)
	if !v.IsValid() || v.Kind() != reflect.Func {
		b.fail(errs.InvalidInjection(fmt.Sprintf("%T", ctor), "constructor must be a function"))
		return b
	}
	t := v.Type()
	switch {
	case t.NumOut() == 1 && t.Out(0) != errorType:
	case t.NumOut() == 2 && t.Out(1) == errorType:
	default:
		b.fail(errs.InvalidInjection(t.String(), "constructor must return T or (T, error)"))
		return b
	}
	if t.Out(0).Kind() == reflect.Interface {
		b.fail(errs.InvalidInjection(t.String(), "constructor must return a concrete type"))
		return b
	}
	if t.IsVariadic() {
		b.fail(errs.InvalidInjection(t.String(), "variadic constructors are not supported"))
		return b
	}
	b.ctor = v
	b.goType = t.Out(0)
	return b
}

// NewStruct starts a descriptor whose constructor returns new(T). Use it
// with Property injections.
func NewStruct[T any]() *ClassBuilder {
	return NewClass(func() *T { return new(T) })
}

// Name sets an explicit class name. The default is the Go type name.
func (b *ClassBuilder) Name(name string) *ClassBuilder {
	b.name = name
	return b
}

// Anonymous asks the registry to generate a unique name.
func (b *ClassBuilder) Anonymous() *ClassBuilder {
	b.anonymous = true
	return b
}

// Prefix places the class under a dotted namespace: Prefix("demo") turns
// "MySQLConn" into "demo.MySQLConn".
func (b *ClassBuilder) Prefix(ns string) *ClassBuilder {
	b.prefix = strings.TrimSuffix(ns, ".")
	return b
}

// Types declares the abstract types the class satisfies, with or without "~".
func (b *ClassBuilder) Types(types ...string) *ClassBuilder {
	b.types = append(b.types, types...)
	return b
}

// Inject declares the constructor injections in parameter order. Each
// argument is an expression string or an expr.Injection.
func (b *ClassBuilder) Inject(injections ...any) *ClassBuilder {
	b.params = append(b.params, b.injections("constructor", injections)...)
	return b
}

// InjectWith is Inject for fully specified injections.
func (b *ClassBuilder) InjectWith(injections ...expr.Injection) *ClassBuilder {
	b.params = append(b.params, injections...)
	return b
}

// Property injects an exported struct field after construction.
func (b *ClassBuilder) Property(field string, injection any) *ClassBuilder {
	inj := b.injections("property "+field, []any{injection})
	if len(inj) == 1 {
		b.props = append(b.props, Property{Field: field, Injection: inj[0]})
	}
	return b
}

// Singleton caches the instance in the resolving scope.
func (b *ClassBuilder) Singleton() *ClassBuilder {
	b.singleton = true
	return b
}

// ContextSingleton caches the instance for one top-level Get call only.
func (b *ClassBuilder) ContextSingleton() *ClassBuilder {
	b.contextSingleton = true
	return b
}

// Private forbids direct construction; the class is reachable through its
// factories only.
func (b *ClassBuilder) Private() *ClassBuilder {
	b.private = true
	return b
}

// Deprecated marks the class; building it logs the note as a warning.
func (b *ClassBuilder) Deprecated(note string) *ClassBuilder {
	if note == "" {
		note = "deprecated"
	}
	b.deprecated = note
	return b
}

// Initializer names the method run after construction, with its injections.
func (b *ClassBuilder) Initializer(method string, injections ...any) *ClassBuilder {
	b.initializers = append(b.initializers, methodSpec{
		name:   method,
		params: b.injections(method, injections),
	})
	return b
}

// Uninitializer names the method run when the owning scope is destroyed.
// It may only take a context.Context.
func (b *ClassBuilder) Uninitializer(method string) *ClassBuilder {
	b.uninitializers = append(b.uninitializers, methodSpec{name: method})
	return b
}

// Provide declares a factory method and the product it builds:
// "Name", "~Type" or a namespace family "ns.*".
func (b *ClassBuilder) Provide(method, product string, injections ...any) *ClassBuilder {
	b.factories = append(b.factories, methodSpec{
		name:    method,
		product: product,
		params:  b.injections(method, injections),
	})
	return b
}

func (b *ClassBuilder) injections(target string, in []any) []expr.Injection {
	out := make([]expr.Injection, 0, len(in))
	for _, v := range in {
		switch i := v.(type) {
		case string:
			out = append(out, expr.Inject(i))
		case expr.Injection:
			out = append(out, i)
		case *expr.Injection:
			out = append(out, *i)
		default:
			b.fail(errs.InvalidInjection(target, fmt.Sprintf("unsupported injection %T", v)))
		}
	}
	return out
}

func (b *ClassBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// ── Compilation ───────────────────────────────────────────────────────────────

func (b *ClassBuilder) className() string {
	var name string
	switch {
	case b.anonymous:
		name = "Anonymous_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	case b.name != "":
		name = b.name
	default:
		t := b.goType
		for t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
		name = t.Name()
	}
	if b.prefix != "" {
		name = b.prefix + "." + name
	}
	return name
}

// build validates the collected metadata and produces the descriptor.
func (b *ClassBuilder) build() (*Class, error) {
	if b.err != nil {
		return nil, b.err
	}
	name := b.className()
	if !expr.IsDotted(name) {
		return nil, errs.MalformedExpression(name, "invalid class name")
	}

	c := &Class{
		Name:             name,
		Singleton:        b.singleton,
		ContextSingleton: b.contextSingleton && !b.singleton,
		Private:          b.private,
		Deprecated:       b.deprecated,
		GoType:           b.goType,
		ctor:             b.ctor,
		ctorErr:          b.ctor.Type().NumOut() == 2,
	}

	for _, t := range b.types {
		t = stripAbstract(t)
		if !expr.IsDotted(t) {
			return nil, errs.MalformedExpression("~"+t, "invalid abstract type")
		}
		c.Types = appendUnique(c.Types, t)
	}

	params, takesCtx := paramTypes(b.ctor.Type(), 0)
	if err := checkArity(name, "", len(params), b.params); err != nil {
		return nil, err
	}
	if err := compileAll(b.params); err != nil {
		return nil, err
	}
	c.Params, c.paramTypes, c.ctorCtx = b.params, params, takesCtx

	for _, p := range b.props {
		if err := b.resolveField(name, &p); err != nil {
			return nil, err
		}
		if err := compileAll([]expr.Injection{p.Injection}); err != nil {
			return nil, err
		}
		c.Properties = append(c.Properties, p)
	}

	switch {
	case len(b.initializers) > 1:
		return nil, errs.DuplicateInitializer(name)
	case len(b.initializers) == 1:
		m, err := b.method(name, b.initializers[0])
		if err != nil {
			return nil, err
		}
		c.Initializer = m
	}

	switch {
	case len(b.uninitializers) > 1:
		return nil, errs.DuplicateUninitializer(name)
	case len(b.uninitializers) == 1:
		spec := b.uninitializers[0]
		rm, ok := b.goType.MethodByName(spec.name)
		if !ok {
			return nil, errs.MethodNotFound(name, spec.name)
		}
		params, takesCtx := paramTypes(rm.Type, 1)
		if len(params) > 0 {
			return nil, errs.MalformedUninitializer(name, spec.name)
		}
		c.Uninitializer = &Method{Class: name, Name: spec.name, takesCtx: takesCtx}
	}

	seen := map[string]bool{}
	for _, spec := range b.factories {
		if seen[spec.name] {
			return nil, errs.InvalidInjection(name+"::"+spec.name, "factory method declared twice")
		}
		seen[spec.name] = true
		if !validProduct(spec.product) {
			return nil, errs.MalformedProduct(name, spec.name, spec.product)
		}
		m, err := b.method(name, spec)
		if err != nil {
			return nil, err
		}
		m.Product = spec.product
		c.Factories = append(c.Factories, m)
	}
	return c, nil
}

func (b *ClassBuilder) method(class string, spec methodSpec) (*Method, error) {
	rm, ok := b.goType.MethodByName(spec.name)
	if !ok {
		return nil, errs.MethodNotFound(class, spec.name)
	}
	// Skip the receiver.
	params, takesCtx := paramTypes(rm.Type, 1)
	if rm.Type.IsVariadic() {
		return nil, errs.InvalidInjection(class+"::"+spec.name, "variadic methods are not supported")
	}
	if err := checkArity(class, spec.name, len(params), spec.params); err != nil {
		return nil, err
	}
	if err := compileAll(spec.params); err != nil {
		return nil, err
	}
	return &Method{
		Class:      class,
		Name:       spec.name,
		Params:     spec.params,
		takesCtx:   takesCtx,
		paramTypes: params,
	}, nil
}

func (b *ClassBuilder) resolveField(class string, p *Property) error {
	t := b.goType
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return errs.InvalidInjection(class+"."+p.Field, "properties require a struct type")
	}
	f, ok := t.FieldByName(p.Field)
	if !ok || !f.IsExported() {
		return errs.InvalidInjection(class+"."+p.Field, "no exported field with that name")
	}
	p.index = f.Index
	return nil
}

// paramTypes lists the injectable parameters of fn, skipping the first
// `skip` inputs and an optional leading context.Context.
func paramTypes(fn reflect.Type, skip int) ([]reflect.Type, bool) {
	takesCtx := false
	i := skip
	if fn.NumIn() > i && fn.In(i) == contextType {
		takesCtx = true
		i++
	}
	out := make([]reflect.Type, 0, fn.NumIn()-i)
	for ; i < fn.NumIn(); i++ {
		out = append(out, fn.In(i))
	}
	return out, takesCtx
}

func checkArity(class, method string, want int, got []expr.Injection) error {
	switch {
	case len(got) < want:
		return errs.LackOfParameterMetadata(class, method, want, len(got))
	case len(got) > want:
		target := class
		if method != "" {
			target += "::" + method
		}
		return errs.InvalidInjection(target, fmt.Sprintf("%d injection(s) declared for %d parameter(s)", len(got), want))
	}
	return nil
}

func compileAll(injections []expr.Injection) error {
	for _, inj := range injections {
		if _, err := inj.Compile(); err != nil {
			return err
		}
		for k := range inj.Binds {
			if _, err := expr.ParseSource(k); err != nil {
				return err
			}
		}
	}
	return nil
}

func validProduct(p string) bool {
	switch {
	case strings.HasSuffix(p, ".*"):
		return expr.IsDotted(strings.TrimSuffix(p, ".*"))
	case strings.HasPrefix(p, "~"):
		return expr.IsDotted(p[1:])
	default:
		return expr.IsDotted(p)
	}
}

func stripAbstract(t string) string { return strings.TrimPrefix(t, "~") }

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
