package scope

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/km-arc/go-inject/framework/errs"
	"github.com/km-arc/go-inject/framework/expr"
)

// ── Tables ────────────────────────────────────────────────────────────────────

// Bind redirects a source expression to a target expression.
type Bind struct {
	Source string
	Target string

	// Binds are extra context bindings applied while resolving Target.
	Binds map[string]any
}

// teardown is one registered uninitializer.
type teardown struct {
	object any
	method string
	run    func(ctx context.Context) error
}

// ── Scope ─────────────────────────────────────────────────────────────────────

// Scope is a hierarchical store of variables, singletons, rebindings and
// context bindings, plus the teardown queue of the objects it owns.
//
// Reads walk up the parent chain; writes always land in the local tables.
// A child holds a reference on its parent, so the parent cannot be
// destroyed while the child is alive.
type Scope struct {
	mu sync.RWMutex

	name   string
	parent *Scope
	refs   int

	destroyed bool

	// variable name (without "@") → value
	vars map[string]any

	// class or factory key → instance
	singletons map[string]any

	// source expression → rebinding
	binds map[string]*Bind

	// target expression → extra context bindings
	contexts map[string]map[string]any

	// LIFO queue
	teardowns []teardown

	logger *zap.Logger
}

// Option configures a Scope.
type Option func(*Scope)

// WithLogger sets the logger used for teardown failures.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scope) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a scope. A non-nil parent gains one reference.
func New(name string, parent *Scope, opts ...Option) *Scope {
	s := &Scope{
		name:       name,
		parent:     parent,
		vars:       make(map[string]any),
		singletons: make(map[string]any),
		binds:      make(map[string]*Bind),
		contexts:   make(map[string]map[string]any),
		logger:     zap.NewNop(),
	}
	if parent != nil {
		s.logger = parent.logger
	}
	for _, opt := range opts {
		opt(s)
	}
	if parent != nil {
		parent.Ref()
	}
	return s
}

// Name returns the scope name.
func (s *Scope) Name() string { return s.name }

// Parent returns the parent scope, nil for a root scope.
func (s *Scope) Parent() *Scope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.parent
}

// Destroyed reports whether Destroy has completed its bookkeeping.
func (s *Scope) Destroyed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.destroyed
}

// ── Variables ─────────────────────────────────────────────────────────────────

// GetValue looks a variable up through the parent chain. The name may carry
// a single "@" marker.
func (s *Scope) GetValue(name string) (any, bool) {
	name = strings.TrimPrefix(name, "@")
	for cur := s; cur != nil; cur = cur.Parent() {
		cur.mu.RLock()
		v, ok := cur.vars[name]
		cur.mu.RUnlock()
		if ok {
			return v, true
		}
	}
	return nil, false
}

// BindValue sets a variable in this scope.
func (s *Scope) BindValue(name string, value any) {
	name = strings.TrimPrefix(name, "@")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[name] = value
}

// ── Singletons ────────────────────────────────────────────────────────────────

// GetSingleton looks a cached instance up through the parent chain.
func (s *Scope) GetSingleton(key string) (any, bool) {
	for cur := s; cur != nil; cur = cur.Parent() {
		cur.mu.RLock()
		v, ok := cur.singletons[key]
		cur.mu.RUnlock()
		if ok {
			return v, true
		}
	}
	return nil, false
}

// SetSingleton caches an instance in this scope.
func (s *Scope) SetSingleton(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.singletons[key] = value
}

// ── Rebindings ────────────────────────────────────────────────────────────────

// Bind redirects requests for source to target in this scope and its
// descendants.
//
//	s.Bind("~IDBConn", "MySQLConn", nil)
//	s.Bind("@admin", "UserManager", map[string]any{"@adminId": 1})
func (s *Scope) Bind(source, target string, binds map[string]any) error {
	src, err := expr.ParseSource(source)
	if err != nil {
		return err
	}
	dst, err := expr.ParseTarget(target)
	if err != nil {
		return err
	}
	if dst.Wildcard || dst.Constructor {
		return errs.MalformedExpression(target, "rebinding target must name a single component")
	}
	for k := range binds {
		if _, err := expr.ParseSource(k); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.binds[src.Text] = &Bind{Source: src.Text, Target: dst.Text, Binds: binds}
	return nil
}

// FindBind looks a rebinding up through the parent chain. Key is the
// canonical source expression: "@var", "~Type", "Type" or "Type@var".
func (s *Scope) FindBind(key string) (*Bind, bool) {
	if key == "" {
		return nil, false
	}
	for cur := s; cur != nil; cur = cur.Parent() {
		cur.mu.RLock()
		b, ok := cur.binds[key]
		cur.mu.RUnlock()
		if ok {
			return b, true
		}
	}
	return nil, false
}

// ── Context bindings ──────────────────────────────────────────────────────────

// BindContext adds extra bindings visible only while target is resolved.
// Keys are source expressions; a value of type expr.Injection redirects the
// keyed dependency to another expression.
func (s *Scope) BindContext(target string, binds map[string]any) error {
	t, err := expr.ParseTarget(target)
	if err != nil {
		return err
	}
	for k := range binds {
		if _, err := expr.ParseSource(k); err != nil {
			return err
		}
	}
	key := t.Required().Text

	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.contexts[key]
	if m == nil {
		m = make(map[string]any, len(binds))
		s.contexts[key] = m
	}
	for k, v := range binds {
		if src, _ := expr.ParseSource(k); src != nil {
			m[src.Text] = v
		}
	}
	return nil
}

// FindContextBindings returns the context bindings registered for target
// along the parent chain, child entries overriding parent entries.
func (s *Scope) FindContextBindings(target string) map[string]any {
	var chain []*Scope
	for cur := s; cur != nil; cur = cur.Parent() {
		chain = append(chain, cur)
	}
	var out map[string]any
	for i := len(chain) - 1; i >= 0; i-- {
		cur := chain[i]
		cur.mu.RLock()
		out = expr.MergeBinds(out, cur.contexts[target])
		cur.mu.RUnlock()
	}
	return out
}

// ── Teardown ──────────────────────────────────────────────────────────────────

// AddUninitializer queues run to be called when the scope is destroyed.
// Queued actions run in reverse registration order.
func (s *Scope) AddUninitializer(obj any, method string, run func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardowns = append(s.teardowns, teardown{object: obj, method: method, run: run})
}

// ── Reference counting ────────────────────────────────────────────────────────

// Ref adds a reference. Child scopes hold one on their parent.
func (s *Scope) Ref() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs++
}

// Unref releases a reference.
func (s *Scope) Unref() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs > 0 {
		s.refs--
	}
}

// Refs returns the current reference count.
func (s *Scope) Refs() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refs
}

// Destroy tears the scope down. It fails with ScopeReferred while child
// scopes are alive. Otherwise it releases the parent, clears every table
// and runs the queued uninitializers last-in first-out. A failing
// uninitializer does not stop the others; the first failure is returned.
func (s *Scope) Destroy(ctx context.Context) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return errs.ScopeDestroyed(s.name)
	}
	if s.refs > 0 {
		refs := s.refs
		s.mu.Unlock()
		return errs.ScopeReferred(s.name, refs)
	}
	s.destroyed = true
	parent := s.parent
	queue := s.teardowns
	s.parent = nil
	s.teardowns = nil
	s.vars = make(map[string]any)
	s.singletons = make(map[string]any)
	s.binds = make(map[string]*Bind)
	s.contexts = make(map[string]map[string]any)
	s.mu.Unlock()

	if parent != nil {
		parent.Unref()
	}

	var first error
	for i := len(queue) - 1; i >= 0; i-- {
		td := queue[i]
		if err := runTeardown(ctx, td); err != nil {
			s.logger.Error("uninitializer failed",
				zap.String("scope", s.name),
				zap.String("method", td.method),
				zap.String("object", fmt.Sprintf("%T", td.object)),
				zap.Error(err),
			)
			if first == nil {
				first = err
			}
		}
	}
	s.logger.Debug("scope destroyed", zap.String("scope", s.name), zap.Int("uninitializers", len(queue)))
	return first
}

func runTeardown(ctx context.Context, td teardown) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%T.%s panicked: %v", td.object, td.method, r)
		}
	}()
	return td.run(ctx)
}

// ── Introspection ─────────────────────────────────────────────────────────────

// Snapshot is a read-only view of the local tables of a scope.
type Snapshot struct {
	Name           string            `json:"name"`
	Parent         string            `json:"parent,omitempty"`
	Refs           int               `json:"refs"`
	Variables      []string          `json:"variables"`
	Singletons     []string          `json:"singletons"`
	Binds          map[string]string `json:"binds"`
	Contexts       []string          `json:"contexts"`
	Uninitializers int               `json:"uninitializers"`
}

// Snapshot returns the local state of the scope.
func (s *Scope) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Name:           s.name,
		Refs:           s.refs,
		Variables:      sortedKeys(s.vars),
		Singletons:     sortedKeys(s.singletons),
		Binds:          make(map[string]string, len(s.binds)),
		Contexts:       sortedKeys(s.contexts),
		Uninitializers: len(s.teardowns),
	}
	if s.parent != nil {
		snap.Parent = s.parent.name
	}
	for k, b := range s.binds {
		snap.Binds[k] = b.Target
	}
	return snap
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
