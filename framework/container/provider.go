package container

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ── ServiceProvider interface ─────────────────────────────────────────────────

// ServiceProvider groups the registrations of one subsystem.
//
// Register is called as soon as the provider is added (unless deferred).
// Boot is called after ALL providers have been registered, making it safe
// to resolve other components inside Boot.
//
//	type DatabaseProvider struct{ container.BaseProvider }
//
//	func (p *DatabaseProvider) Register(app *container.Container) error {
//	    _, err := app.Registry().Register(registry.NewClass(NewMySQLConn).
//	        Name("MySQLConn").Types("IDBConn").Inject("@dbconfig").Uninitializer("Close"))
//	    return err
//	}
//
//	func (p *DatabaseProvider) Boot(ctx context.Context, app *container.Container) error {
//	    _, err := app.Get(ctx, "~IDBConn")
//	    return err
//	}
type ServiceProvider interface {
	// Register adds classes, globals and scope bindings.
	// Do NOT resolve components here; use Boot for that.
	Register(app *Container) error

	// Boot is called after all providers are registered.
	Boot(ctx context.Context, app *Container) error

	// Provides lists the keys a deferred provider serves: class names,
	// abstract types ("~cache") or global variables ("@@config").
	Provides() []string

	// IsDeferred returns true if the provider should be loaded lazily,
	// the first time one of its Provides() keys misses.
	IsDeferred() bool
}

// ── BaseProvider ──────────────────────────────────────────────────────────────

// BaseProvider is an embeddable struct that provides no-op implementations
// of Boot, Provides and IsDeferred.
//
//	type MyProvider struct{ container.BaseProvider }
//	func (p *MyProvider) Register(app *container.Container) error { ... }
type BaseProvider struct{}

func (p *BaseProvider) Boot(context.Context, *Container) error { return nil }
func (p *BaseProvider) Provides() []string                     { return nil }
func (p *BaseProvider) IsDeferred() bool                       { return false }

// ── ProviderRegistry ──────────────────────────────────────────────────────────

// ProviderRegistry manages registration and booting of ServiceProviders,
// including deferred providers, which it loads through the container's
// missing handler.
type ProviderRegistry struct {
	app *Container

	mu         sync.Mutex
	eager      []ServiceProvider
	deferred   map[string]ServiceProvider // key → provider
	registered map[ServiceProvider]bool
	booted     bool
}

// NewProviderRegistry creates a registry bound to app.
func NewProviderRegistry(app *Container) *ProviderRegistry {
	r := &ProviderRegistry{
		app:        app,
		deferred:   make(map[string]ServiceProvider),
		registered: make(map[ServiceProvider]bool),
	}
	app.OnMissing(r.loadDeferred)
	return r
}

// Register adds a provider and calls its Register method (unless deferred).
// A provider added after Boot is booted immediately.
func (r *ProviderRegistry) Register(ctx context.Context, provider ServiceProvider) error {
	r.mu.Lock()
	if r.registered[provider] {
		r.mu.Unlock()
		return nil
	}
	r.registered[provider] = true

	if provider.IsDeferred() {
		for _, key := range provider.Provides() {
			r.deferred[key] = provider
		}
		r.mu.Unlock()
		return nil
	}
	booted := r.booted
	r.eager = append(r.eager, provider)
	r.mu.Unlock()

	if err := provider.Register(r.app); err != nil {
		return fmt.Errorf("registering %T: %w", provider, err)
	}
	if booted {
		return r.boot(ctx, provider)
	}
	return nil
}

// Boot calls Boot on all eager providers, in registration order. Later
// calls are no-ops.
func (r *ProviderRegistry) Boot(ctx context.Context) error {
	r.mu.Lock()
	if r.booted {
		r.mu.Unlock()
		return nil
	}
	r.booted = true
	providers := append([]ServiceProvider(nil), r.eager...)
	r.mu.Unlock()

	for _, provider := range providers {
		if err := r.boot(ctx, provider); err != nil {
			return err
		}
	}
	return nil
}

func (r *ProviderRegistry) boot(ctx context.Context, provider ServiceProvider) error {
	if err := provider.Boot(ctx, r.app); err != nil {
		return fmt.Errorf("booting %T: %w", provider, err)
	}
	return nil
}

// loadDeferred registers the deferred provider serving key, if any.
func (r *ProviderRegistry) loadDeferred(ctx context.Context, key string) (bool, error) {
	r.mu.Lock()
	provider, ok := r.deferred[key]
	if !ok {
		r.mu.Unlock()
		return false, nil
	}
	for _, k := range provider.Provides() {
		delete(r.deferred, k)
	}
	booted := r.booted
	r.mu.Unlock()

	r.app.Logger().Debug("loading deferred provider",
		zap.String("key", key),
		zap.String("provider", fmt.Sprintf("%T", provider)),
	)
	if err := provider.Register(r.app); err != nil {
		return false, fmt.Errorf("registering %T: %w", provider, err)
	}
	if booted {
		if err := r.boot(ctx, provider); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Booted returns true if Boot has been called.
func (r *ProviderRegistry) Booted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.booted
}

// Providers returns all registered eager providers.
func (r *ProviderRegistry) Providers() []ServiceProvider {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ServiceProvider(nil), r.eager...)
}

// Deferred returns the keys still waiting on a deferred provider.
func (r *ProviderRegistry) Deferred() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.deferred))
	for k := range r.deferred {
		out = append(out, k)
	}
	return out
}
