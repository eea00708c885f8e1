package providers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/km-arc/go-inject/framework/config"
	"github.com/km-arc/go-inject/framework/container"
	"github.com/km-arc/go-inject/framework/inspect"
	"github.com/km-arc/go-inject/framework/metrics"
	"github.com/km-arc/go-inject/framework/registry"
	"github.com/km-arc/go-inject/routing"
)

// Router resolves the application router.
func Router(ctx context.Context, app *container.Container) (*routing.Router, error) {
	return container.Resolve[*routing.Router](ctx, app, "Router")
}

// ── ConfigServiceProvider ─────────────────────────────────────────────────────

// ConfigServiceProvider publishes the configuration as process-global
// variables.
//
// Globals:
//   - "@@config"   → *config.Config
//   - "@@dbconfig" → config.DBConfig
type ConfigServiceProvider struct {
	container.BaseProvider
	Config *config.Config
}

func (p *ConfigServiceProvider) Register(app *container.Container) error {
	if p.Config == nil {
		return fmt.Errorf("config provider: no configuration")
	}
	app.SetGlobal("config", p.Config)
	app.SetGlobal("dbconfig", p.Config.DB)
	return nil
}

// ── LoggingServiceProvider ────────────────────────────────────────────────────

// LoggingServiceProvider publishes the root logger.
//
// Globals:
//   - "@@logger" → *zap.Logger
type LoggingServiceProvider struct {
	container.BaseProvider
	Logger *zap.Logger
}

func (p *LoggingServiceProvider) Register(app *container.Container) error {
	log := p.Logger
	if log == nil {
		log = app.Logger()
	}
	app.SetGlobal("logger", log)
	return nil
}

// ── RoutingServiceProvider ────────────────────────────────────────────────────

// RoutingServiceProvider registers the HTTP router as a singleton class.
//
// Classes:
//   - "Router" → *routing.Router, built with "@@logger"
type RoutingServiceProvider struct {
	container.BaseProvider
}

func (p *RoutingServiceProvider) Register(app *container.Container) error {
	_, err := app.Registry().Register(
		registry.NewClass(routing.New).Name("Router").Inject("?@@logger").Singleton(),
	)
	return err
}

// ── MetricsServiceProvider ────────────────────────────────────────────────────

// MetricsServiceProvider publishes the collectors and, when enabled, mounts
// the prometheus exporter on the router.
//
// Globals:
//   - "@@metrics" → *metrics.Metrics
type MetricsServiceProvider struct {
	container.BaseProvider
	Metrics *metrics.Metrics
	Config  config.MetricsConfig
}

func (p *MetricsServiceProvider) Register(app *container.Container) error {
	if p.Metrics != nil {
		app.SetGlobal("metrics", p.Metrics)
	}
	return nil
}

func (p *MetricsServiceProvider) Boot(ctx context.Context, app *container.Container) error {
	if p.Metrics == nil || !p.Config.Enabled {
		return nil
	}
	r, err := Router(ctx, app)
	if err != nil {
		return err
	}
	path := p.Config.Path
	if path == "" {
		path = "/metrics"
	}
	r.Mount(path, p.Metrics.Handler())
	return nil
}

// ── InspectServiceProvider ────────────────────────────────────────────────────

// InspectServiceProvider mounts the introspection routes under Prefix
// (default "/ioc").
type InspectServiceProvider struct {
	container.BaseProvider
	Prefix string
}

func (p *InspectServiceProvider) Register(*container.Container) error { return nil }

func (p *InspectServiceProvider) Boot(ctx context.Context, app *container.Container) error {
	r, err := Router(ctx, app)
	if err != nil {
		return err
	}
	prefix := p.Prefix
	if prefix == "" {
		prefix = "/ioc"
	}
	r.Prefix(prefix, inspect.New(app).Routes)
	return nil
}

// ── ManifestServiceProvider ───────────────────────────────────────────────────

// ManifestServiceProvider applies a YAML scope manifest at boot, once every
// other provider has registered its classes.
type ManifestServiceProvider struct {
	container.BaseProvider
	Path string
}

func (p *ManifestServiceProvider) Register(*container.Container) error { return nil }

func (p *ManifestServiceProvider) Boot(_ context.Context, app *container.Container) error {
	if p.Path == "" {
		return nil
	}
	m, err := container.LoadManifest(p.Path)
	if err != nil {
		return err
	}
	if err := app.ApplyManifest(m); err != nil {
		return fmt.Errorf("applying %s: %w", p.Path, err)
	}
	app.Logger().Info("manifest applied", zap.String("path", p.Path), zap.Int("scopes", len(m.Scopes)))
	return nil
}
