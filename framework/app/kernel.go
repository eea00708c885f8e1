package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/km-arc/go-inject/framework/config"
	"github.com/km-arc/go-inject/framework/container"
	"github.com/km-arc/go-inject/framework/logging"
	"github.com/km-arc/go-inject/framework/metrics"
	"github.com/km-arc/go-inject/framework/providers"
	"github.com/km-arc/go-inject/framework/registry"
	"github.com/km-arc/go-inject/routing"
)

// ShutdownTimeout bounds the graceful HTTP shutdown in Run.
const ShutdownTimeout = 10 * time.Second

// Application is the top-level application container.
// It embeds the injection Container and ProviderRegistry so user code can
// call app.Get(), app.CreateScope() and app.Register() directly.
type Application struct {
	*container.Container
	Providers *container.ProviderRegistry

	config  *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New loads the configuration and wires logger, metrics, registry,
// container and the framework providers.
func New(ctx context.Context, envFiles ...string) (*Application, error) {
	cfg := config.Load(envFiles...)

	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("app", cfg.App.Name), zap.String("env", cfg.App.Env))

	opts := []container.Option{
		container.WithLogger(log),
		container.WithGlobalScopeName(cfg.Container.GlobalScope),
	}
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(metrics.Config{Namespace: cfg.Metrics.Namespace, EnableGo: true})
		opts = append(opts, container.WithRecorder(m))
	}

	c := container.New(registry.New(), opts...)
	app := &Application{
		Container: c,
		Providers: container.NewProviderRegistry(c),
		config:    cfg,
		logger:    log,
		metrics:   m,
	}

	// Framework core providers; the manifest goes last so its bindings can
	// name classes registered by any provider.
	core := []container.ServiceProvider{
		&providers.ConfigServiceProvider{Config: cfg},
		&providers.LoggingServiceProvider{Logger: log},
		&providers.RoutingServiceProvider{},
		&providers.MetricsServiceProvider{Metrics: m, Config: cfg.Metrics},
	}
	if cfg.Container.Inspect {
		core = append(core, &providers.InspectServiceProvider{})
	}
	for _, p := range core {
		if err := app.Register(ctx, p); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// Register adds a ServiceProvider to the application.
func (a *Application) Register(ctx context.Context, provider container.ServiceProvider) error {
	return a.Providers.Register(ctx, provider)
}

// Boot applies the manifest, if configured, and runs the Boot phase on
// all providers.
func (a *Application) Boot(ctx context.Context) error {
	if a.Providers.Booted() {
		return nil
	}
	if err := a.Register(ctx, &providers.ManifestServiceProvider{Path: a.config.Container.Manifest}); err != nil {
		return err
	}
	return a.Providers.Boot(ctx)
}

// Config returns the loaded configuration.
func (a *Application) Config() *config.Config { return a.config }

// Router resolves the router from the container.
func (a *Application) Router(ctx context.Context) (*routing.Router, error) {
	return providers.Router(ctx, a.Container)
}

// Run boots the application (if needed) and serves HTTP until ctx is
// cancelled, then shuts down and destroys every scope.
func (a *Application) Run(ctx context.Context) error {
	if err := a.Boot(ctx); err != nil {
		return err
	}
	router, err := a.Router(ctx)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + a.config.App.Port,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	served := make(chan error, 1)
	go func() { served <- srv.ListenAndServe() }()
	a.logger.Info("listening", zap.String("addr", srv.Addr))

	var result error
	select {
	case err := <-served:
		if !errors.Is(err, http.ErrServerClosed) {
			result = err
		}
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
		defer cancel()
		result = srv.Shutdown(sctx)
	}
	return multierr.Append(result, a.Shutdown(context.WithoutCancel(ctx)))
}

// Shutdown destroys every scope and flushes the logger.
func (a *Application) Shutdown(ctx context.Context) error {
	err := a.Destroy(ctx)
	if err != nil {
		a.logger.Error("shutdown", zap.Error(err))
	}
	_ = a.logger.Sync()
	return err
}

// Environment returns APP_ENV value.
func (a *Application) Environment() string { return a.config.App.Env }
func (a *Application) IsLocal() bool       { return a.Environment() == "local" }
func (a *Application) IsProduction() bool  { return a.config.IsProduction() }
func (a *Application) IsDebug() bool       { return a.config.App.Debug }
