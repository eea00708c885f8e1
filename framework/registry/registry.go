package registry

import (
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/km-arc/go-inject/framework/errs"
)

// Registry stores class descriptors for the life of the process. It is
// append-only: classes are never removed.
type Registry struct {
	mu sync.RWMutex

	// name → class
	classes map[string]*Class

	// abstract type → class names, in registration order
	byType map[string][]string

	// Go type → class name, for reverse lookup of built instances
	byGoType map[reflect.Type]string

	// every factory method, in registration order
	factories []*Method
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		classes:  make(map[string]*Class),
		byType:   make(map[string][]string),
		byGoType: make(map[reflect.Type]string),
	}
}

// ── Registration ──────────────────────────────────────────────────────────────

// Register validates the builder and indexes the resulting class by name,
// by abstract type and by Go type. It returns the assigned name.
func (r *Registry) Register(b *ClassBuilder) (string, error) {
	c, err := b.build()
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.classes[c.Name]; ok {
		return "", errs.DuplicateClass(c.Name)
	}
	r.classes[c.Name] = c
	for _, t := range c.Types {
		r.byType[t] = append(r.byType[t], c.Name)
	}
	if _, ok := r.byGoType[c.GoType]; !ok {
		r.byGoType[c.GoType] = c.Name
	}
	r.factories = append(r.factories, c.Factories...)
	return c.Name, nil
}

// MustRegister is like Register but panics on error. Intended for package
// init and bootstrap code.
func (r *Registry) MustRegister(b *ClassBuilder) string {
	name, err := r.Register(b)
	if err != nil {
		panic(err)
	}
	return name
}

// ── Lookups ───────────────────────────────────────────────────────────────────

// Get returns the class registered under name.
func (r *Registry) Get(name string) (*Class, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classes[name]
	if !ok {
		return nil, errs.ClassNotFound(name)
	}
	return c, nil
}

// Has reports whether a class is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.classes[name]
	return ok
}

// Names returns every registered class name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.classes))
	for name := range r.classes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// FindByType returns the classes declaring the abstract type, in
// registration order. The "~" marker is optional.
func (r *Registry) FindByType(typ string) []*Class {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := r.byType[stripAbstract(typ)]
	out := make([]*Class, 0, len(names))
	for _, n := range names {
		out = append(out, r.classes[n])
	}
	return out
}

// FindByPattern returns the classes whose name matches re, sorted by name.
func (r *Registry) FindByPattern(re *regexp.Regexp) []*Class {
	return r.filter(func(c *Class) bool { return re.MatchString(c.Name) })
}

// FindInNamespace returns every class whose name lies under ns, including
// sub-namespaces, sorted by name.
func (r *Registry) FindInNamespace(ns string) []*Class {
	prefix := strings.TrimSuffix(ns, ".") + "."
	return r.filter(func(c *Class) bool { return strings.HasPrefix(c.Name, prefix) })
}

// FindFactoryMethodsByType returns the factory methods producing "~typ".
func (r *Registry) FindFactoryMethodsByType(typ string) []*Method {
	want := "~" + stripAbstract(typ)
	return r.filterMethods(func(m *Method) bool { return m.Product == want })
}

// FindFactoryMethodsByClass returns the factory methods producing the
// concrete product name.
func (r *Registry) FindFactoryMethodsByClass(name string) []*Method {
	return r.filterMethods(func(m *Method) bool { return m.Product == name })
}

// FindWildcardFactories returns the factory methods whose "ns.*" product
// covers name. Longer namespaces come first.
func (r *Registry) FindWildcardFactories(name string) []*Method {
	out := r.filterMethods(func(m *Method) bool {
		if !m.IsWildcardProduct() {
			return false
		}
		ns := strings.TrimSuffix(m.Product, "*")
		return strings.HasPrefix(name, ns) && len(name) > len(ns)
	})
	sort.SliceStable(out, func(i, j int) bool { return len(out[i].Product) > len(out[j].Product) })
	return out
}

// FindClassOfInstance maps a built object back to its descriptor through
// its dynamic Go type.
func (r *Registry) FindClassOfInstance(obj any) (*Class, bool) {
	if obj == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byGoType[reflect.TypeOf(obj)]
	if !ok {
		return nil, false
	}
	return r.classes[name], true
}

func (r *Registry) filter(keep func(*Class) bool) []*Class {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Class
	for _, c := range r.classes {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) filterMethods(keep func(*Method) bool) []*Method {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Method
	for _, m := range r.factories {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}
