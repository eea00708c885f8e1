package container

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/km-arc/go-inject/framework/errs"
	"github.com/km-arc/go-inject/framework/expr"
	"github.com/km-arc/go-inject/framework/registry"
	"github.com/km-arc/go-inject/framework/scope"
)

// DefaultGlobalScope is the name of the root scope every container owns.
const DefaultGlobalScope = "_global"

// DefaultParseCacheSize bounds the number of compiled expressions a
// container keeps.
const DefaultParseCacheSize = 1024

// Recorder receives resolution and scope events. *metrics.Metrics
// implements it.
type Recorder interface {
	ObserveResolution(kind string, elapsed time.Duration)
	ObserveFailure(code string)
	ScopeCreated()
	ScopeDestroyed(failed bool)
}

// MissingHandler is consulted when a request names nothing registered. It
// returns true when it registered something and the request should be
// retried. Deferred service providers hook in here.
type MissingHandler func(ctx context.Context, key string) (bool, error)

// ── Container ─────────────────────────────────────────────────────────────────

// Container resolves injection expressions against a registry, inside
// named scopes.
//
// It supports:
//   - classes, abstract types and factory methods
//   - scoped (@name) and process-global (@@name) variables
//   - per-scope rebindings and context bindings
//   - singleton and per-call caching
//   - namespace wildcards (ns.*) and raw constructors (&Name)
//   - LIFO teardown when scopes are destroyed
type Container struct {
	registry *registry.Registry
	logger   *zap.Logger
	recorder Recorder

	mu         sync.RWMutex
	globalName string
	scopes     map[string]*scope.Scope

	// @@name → value; outlives every scope
	gmu     sync.RWMutex
	globals map[string]any

	hmu     sync.RWMutex
	missing []MissingHandler

	// expression text → *expr.Target, least recently used evicted
	parseCacheSize int
	parsed         *lru.Cache[string, *expr.Target]
}

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the zap logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Container) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Container) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithGlobalScopeName renames the root scope.
func WithGlobalScopeName(name string) Option {
	return func(c *Container) {
		if name != "" {
			c.globalName = name
		}
	}
}

// WithParseCacheSize bounds the compiled expression cache.
func WithParseCacheSize(n int) Option {
	return func(c *Container) {
		if n > 0 {
			c.parseCacheSize = n
		}
	}
}

// New creates a container over reg with a fresh global scope.
func New(reg *registry.Registry, opts ...Option) *Container {
	c := &Container{
		registry:       reg,
		logger:         zap.NewNop(),
		recorder:       nopRecorder{},
		globalName:     DefaultGlobalScope,
		scopes:         make(map[string]*scope.Scope),
		globals:        make(map[string]any),
		parseCacheSize: DefaultParseCacheSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	// Only fails for a non-positive size, which the option rules out.
	c.parsed, _ = lru.New[string, *expr.Target](c.parseCacheSize)
	c.scopes[c.globalName] = c.newScope(c.globalName, nil)
	return c
}

// Registry returns the class registry.
func (c *Container) Registry() *registry.Registry { return c.registry }

// Logger returns the container logger.
func (c *Container) Logger() *zap.Logger { return c.logger }

// ── Scopes ────────────────────────────────────────────────────────────────────

// CreateScope creates a named scope. The parent defaults to the global scope.
//
//	req, err := c.CreateScope("request-42")
//	err = req.Bind("~IDBConn", "PgSQLConn", nil)
func (c *Container) CreateScope(name string, base ...string) (*scope.Scope, error) {
	parentName := c.globalName
	if len(base) > 0 && base[0] != "" {
		parentName = base[0]
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.scopes[name]; ok {
		return nil, errs.DuplicateScope(name)
	}
	parent, ok := c.scopes[parentName]
	if !ok {
		return nil, errs.ScopeNotFound(parentName)
	}
	s := c.newScope(name, parent)
	c.scopes[name] = s
	return s, nil
}

// GetScope returns a named scope, or the global scope when name is omitted.
func (c *Container) GetScope(name ...string) (*scope.Scope, error) {
	key := c.globalName
	if len(name) > 0 && name[0] != "" {
		key = name[0]
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.scopes[key]
	if !ok {
		return nil, errs.ScopeNotFound(key)
	}
	return s, nil
}

// Scopes returns the names of the live scopes, sorted.
func (c *Container) Scopes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.scopes))
	for name := range c.scopes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Destroy destroys the named scope. Without a name every scope is
// destroyed, children first, and a fresh global scope replaces the old one.
// Process-global (@@) variables survive.
func (c *Container) Destroy(ctx context.Context, name ...string) error {
	if len(name) > 0 && name[0] != "" {
		return c.destroyOne(ctx, name[0])
	}
	return c.destroyAll(ctx)
}

func (c *Container) destroyOne(ctx context.Context, name string) error {
	c.mu.Lock()
	s, ok := c.scopes[name]
	if !ok {
		c.mu.Unlock()
		return errs.ScopeNotFound(name)
	}
	if s.Refs() > 0 {
		c.mu.Unlock()
		return errs.ScopeReferred(name, s.Refs())
	}
	delete(c.scopes, name)
	if name == c.globalName {
		c.scopes[name] = c.newScope(name, nil)
	}
	c.mu.Unlock()

	return c.teardown(ctx, s)
}

func (c *Container) destroyAll(ctx context.Context) error {
	var result error
	for {
		c.mu.Lock()
		var ready []*scope.Scope
		for name, s := range c.scopes {
			if s.Refs() == 0 {
				ready = append(ready, s)
				delete(c.scopes, name)
			}
		}
		left := len(c.scopes)
		c.mu.Unlock()

		if len(ready) == 0 {
			if left > 0 {
				result = multierr.Append(result, errs.ScopeReferred(strings.Join(c.Scopes(), ","), left))
			}
			break
		}
		sort.Slice(ready, func(i, j int) bool { return ready[i].Name() < ready[j].Name() })
		for _, s := range ready {
			result = multierr.Append(result, c.teardown(ctx, s))
		}
	}

	c.mu.Lock()
	if _, ok := c.scopes[c.globalName]; !ok {
		c.scopes[c.globalName] = c.newScope(c.globalName, nil)
	}
	c.mu.Unlock()
	return result
}

func (c *Container) teardown(ctx context.Context, s *scope.Scope) error {
	err := s.Destroy(ctx)
	c.recorder.ScopeDestroyed(err != nil)
	if err != nil {
		c.logger.Warn("scope destroyed with errors", zap.String("scope", s.Name()), zap.Error(err))
	}
	return err
}

func (c *Container) newScope(name string, parent *scope.Scope) *scope.Scope {
	c.recorder.ScopeCreated()
	c.logger.Debug("scope created", zap.String("scope", name))
	return scope.New(name, parent, scope.WithLogger(c.logger))
}

// ── Globals ───────────────────────────────────────────────────────────────────

// SetGlobal stores a process-global variable, visible as "@@name".
func (c *Container) SetGlobal(name string, value any) {
	name = strings.TrimLeft(name, "@")
	c.gmu.Lock()
	defer c.gmu.Unlock()
	c.globals[name] = value
}

// Global reads a process-global variable.
func (c *Container) Global(name string) (any, bool) {
	name = strings.TrimLeft(name, "@")
	c.gmu.RLock()
	defer c.gmu.RUnlock()
	v, ok := c.globals[name]
	return v, ok
}

// ── Introspection ─────────────────────────────────────────────────────────────

// GetClassesByType returns the classes declaring any of the abstract types,
// keyed by class name.
func (c *Container) GetClassesByType(types ...string) map[string]*registry.Class {
	out := make(map[string]*registry.Class)
	for _, t := range types {
		for _, cls := range c.registry.FindByType(t) {
			out[cls.Name] = cls
		}
	}
	return out
}

// GetClassesByPattern returns the classes whose name matches re, keyed by
// class name.
func (c *Container) GetClassesByPattern(re *regexp.Regexp) map[string]*registry.Class {
	out := make(map[string]*registry.Class)
	for _, cls := range c.registry.FindByPattern(re) {
		out[cls.Name] = cls
	}
	return out
}

// ── Missing handlers ──────────────────────────────────────────────────────────

// OnMissing registers a handler consulted before a request fails with
// ClassNotFound or FactoryNotFound.
func (c *Container) OnMissing(h MissingHandler) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.missing = append(c.missing, h)
}

func (c *Container) fireMissing(ctx context.Context, key string) (bool, error) {
	c.hmu.RLock()
	handlers := append([]MissingHandler(nil), c.missing...)
	c.hmu.RUnlock()

	loaded := false
	for _, h := range handlers {
		ok, err := h(ctx, key)
		if err != nil {
			return false, err
		}
		loaded = loaded || ok
	}
	return loaded, nil
}

type nopRecorder struct{}

func (nopRecorder) ObserveResolution(string, time.Duration) {}
func (nopRecorder) ObserveFailure(string)                   {}
func (nopRecorder) ScopeCreated()                           {}
func (nopRecorder) ScopeDestroyed(bool)                     {}
