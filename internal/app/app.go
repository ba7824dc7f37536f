package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vk/modgrid/internal/ctxlog"
	"github.com/vk/modgrid/internal/hclregistry"
	"github.com/vk/modgrid/internal/invoker"
	"github.com/vk/modgrid/internal/logsink"
	"github.com/vk/modgrid/internal/logsink/socketiosink"
	"github.com/vk/modgrid/internal/metrics"
	"github.com/vk/modgrid/internal/module"
	"github.com/vk/modgrid/internal/orchestrator"
	"github.com/vk/modgrid/internal/postgrest"
	"github.com/vk/modgrid/internal/registry"
	"go.uber.org/multierr"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	ctx    context.Context
	logger *slog.Logger
	config *Config

	modules  []module.Module
	table    *module.Table
	registry registry.Registry
	sink     logsink.Sink
	services *services
	metrics  *metrics.Recorder

	orchestrator *orchestrator.Orchestrator
	httpServer   *http.Server

	// closers are released in reverse order by Close.
	closers []io.Closer
	db      *postgrest.Client
}

// Option customises an App, mostly for tests.
type Option func(*App)

// WithModules replaces the compiled-in module list.
func WithModules(mods ...module.Module) Option {
	return func(a *App) { a.modules = mods }
}

// WithRegistry replaces the configured registry backend.
func WithRegistry(reg registry.Registry) Option {
	return func(a *App) { a.registry = reg }
}

// WithSink replaces the configured sinks.
func WithSink(sink logsink.Sink) Option {
	return func(a *App) { a.sink = sink }
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger, module table,
// registry and sinks.
func NewApp(ctx context.Context, outW io.Writer, cfg *Config, opts ...Option) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	a := &App{
		outW:    outW,
		ctx:     ctx,
		logger:  logger,
		config:  cfg,
		modules: coreModules,
		metrics: metrics.NewRecorder(),
	}
	for _, opt := range opts {
		opt(a)
	}

	a.table = module.NewTable(a.modules...)
	logger.Debug("All Go modules registered.", "count", len(a.modules), "units", a.table.Units())

	a.services = newServices(logger, cfg.Settings, outW)

	if err := a.setupRegistry(); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to set up registry: %w", err), a.Close())
	}
	if err := a.setupSinks(); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to set up log sinks: %w", err), a.Close())
	}

	policy := invoker.TolerateNonMapping
	if cfg.StrictReturns {
		policy = invoker.RejectNonMapping
	}
	inv := invoker.New(a.table, invoker.Options{Policy: policy, Timeout: cfg.InvokeTimeout})
	a.orchestrator = orchestrator.New(a.registry, inv, a.sink, orchestrator.WithMetrics(a.metrics))

	logger.Debug("Application initialized.", "registry", cfg.Registry, "sinks", cfg.Sinks)
	return a, nil
}

// postgrestClient returns the Supabase client shared by the registry and the sink.
func (a *App) postgrestClient() (*postgrest.Client, error) {
	if a.db != nil {
		return a.db, nil
	}
	c, err := postgrest.New(a.config.postgrestConfig())
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(a.ctx).Info("Supabase client created successfully.", "url", a.config.SupabaseURL)
	a.db = c
	a.closers = append(a.closers, c)
	return c, nil
}

func (a *App) setupRegistry() error {
	if a.registry != nil {
		return nil
	}
	switch a.config.Registry {
	case RegistryFile:
		a.registry = hclregistry.New(a.config.RegistryPaths...)
	case RegistryPostgREST:
		c, err := a.postgrestClient()
		if err != nil {
			return err
		}
		a.registry = c
	default:
		return fmt.Errorf("unknown registry %q", a.config.Registry)
	}
	return nil
}

// setupSinks opens every configured sink. The socket.io feed is optional: if
// it cannot connect while another sink is available, the run continues
// without it.
func (a *App) setupSinks() error {
	if a.sink != nil {
		return nil
	}
	logger := ctxlog.FromContext(a.ctx)

	var sinks logsink.Multi
	for _, name := range a.config.Sinks {
		switch name {
		case SinkPostgREST:
			c, err := a.postgrestClient()
			if err != nil {
				return err
			}
			sinks = append(sinks, c)
		case SinkFile:
			f, err := logsink.OpenFile(a.config.EventsFile)
			if err != nil {
				return err
			}
			a.closers = append(a.closers, f)
			sinks = append(sinks, f)
		case SinkSocketIO:
			s, err := socketiosink.Dial(a.ctx, socketiosink.Options{
				URL:       a.config.SocketIOURL,
				Namespace: a.config.SocketIONamespace,
			})
			if err != nil {
				if len(a.config.Sinks) > 1 {
					logger.Warn("Event stream unavailable, continuing without it.", "error", err)
					continue
				}
				return err
			}
			a.closers = append(a.closers, s)
			sinks = append(sinks, s)
		default:
			return fmt.Errorf("unknown sink %q", name)
		}
	}

	if len(sinks) == 1 {
		a.sink = sinks[0]
	} else {
		a.sink = sinks
	}
	return nil
}

// Run executes the configured module once and returns its outcome.
func (a *App) Run(ctx context.Context) *orchestrator.Outcome {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	a.healthCheckServer()

	var svc module.Services
	if a.services != nil {
		svc = a.services
	}

	a.logger.Info("Starting pipeline orchestrator.", "module_id", a.config.ModuleID, "units", a.table.Units())
	out := a.orchestrator.Run(ctx, orchestrator.Request{
		ModuleID: a.config.ModuleID,
		Services: svc,
	})

	if out.Succeeded() {
		a.logger.Info("Pipeline orchestrator finished successfully.", "run_id", out.RunID)
	} else {
		a.logger.Error("Pipeline orchestrator finished with an error.", "run_id", out.RunID, "exit_code", out.ExitCode)
	}
	return out
}

// Close releases the health check server, the sinks and the shared clients.
// It is safe to call more than once.
func (a *App) Close() error {
	err := a.closeHealthCheckServer()
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i].Close())
	}
	a.closers = nil
	if a.services != nil {
		err = multierr.Append(err, a.services.close())
		a.services = nil
	}
	return err
}

// Table returns the module registration table. This is primarily for testing.
func (a *App) Table() *module.Table { return a.table }

// Metrics returns the run metrics. This is primarily for testing.
func (a *App) Metrics() *metrics.Recorder { return a.metrics }
