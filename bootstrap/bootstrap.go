// Package bootstrap wires all dependencies and starts the application:
// database, module registry, entity engine, converter, webhook ingestor and
// the HTTP server.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/artpar/crmgate/adapters/audit"
	"github.com/artpar/crmgate/adapters/auth"
	"github.com/artpar/crmgate/adapters/clock"
	"github.com/artpar/crmgate/adapters/idgen"
	"github.com/artpar/crmgate/adapters/metrics"
	"github.com/artpar/crmgate/adapters/sqlite"
	"github.com/artpar/crmgate/app"
	"github.com/artpar/crmgate/config"
	"github.com/artpar/crmgate/core/convert"
	"github.com/artpar/crmgate/core/engine"
	"github.com/artpar/crmgate/core/registry"
	"github.com/artpar/crmgate/core/relation"
	"github.com/artpar/crmgate/web"
	"github.com/rs/zerolog"
)

// App represents the running application.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	DB         *sqlite.DB
	Registry   *registry.Registry
	Engine     *engine.Engine
	Converter  *convert.Converter
	Metrics    *metrics.Collector
	HTTPServer *http.Server

	holder *config.Holder
}

// New creates and initializes the application from the given configuration.
func New(cfg *config.Config) (*App, error) {
	logger := NewLogger(cfg.Logging)
	logger.Info().Msg("initializing crmgate")

	a := &App{Config: cfg, Logger: logger}

	db, err := sqlite.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	a.DB = db
	logger.Info().Str("dsn", cfg.Database.DSN).Msg("database initialized")

	ids := idgen.UUID{}
	clk := clock.Real{}
	auditSink := audit.New(logger)

	moduleStore := sqlite.NewModuleStore(db)
	entityStore := sqlite.NewEntityStore(db)
	roleStore := sqlite.NewRoleStore(db)
	ruleStore := sqlite.NewRuleStore(db)
	ingestStore := sqlite.NewIngestStore(db)

	ctx := context.Background()

	a.Registry = registry.New(moduleStore, ids, logger)
	if err := a.Registry.Load(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := seedModules(ctx, a.Registry, cfg.Seed.ModulesDir); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed modules: %w", err)
	}
	if err := seedRules(ctx, ruleStore, cfg.Seed.RulesFile); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed rules: %w", err)
	}
	if err := seedRoles(ctx, roleStore, ids); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed roles: %w", err)
	}

	a.Metrics = metrics.New()
	if cfg.Metrics.Enabled {
		logger.Info().Msg("prometheus metrics enabled")
	}

	a.Engine = engine.New(a.Registry, entityStore, ids, clk, auditSink, logger)
	a.Converter = convert.New(a.Registry, a.Engine, entityStore, ruleStore, clk, auditSink, logger)
	resolver := relation.New(a.Registry, entityStore)
	ingestor := app.NewLeadIngestor(a.Engine, ingestStore, cfg.Webhook.Secret, a.Metrics, logger)

	// The /metrics route is only mounted when enabled; internal counters are
	// collected either way.
	var webMetrics *metrics.Collector
	if cfg.Metrics.Enabled {
		webMetrics = a.Metrics
	}

	handler := web.New(web.Config{
		Registry:  a.Registry,
		Engine:    a.Engine,
		Converter: a.Converter,
		Resolver:  resolver,
		Roles:     roleStore,
		Rules:     ruleStore,
		Ingestor:  ingestor,
		Auth:      auth.NewHeaderAuthenticator(roleStore),
		IDs:       ids,
		Metrics:   webMetrics,
		Logger:    logger,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	a.HTTPServer = &http.Server{
		Addr:         addr,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info().Str("addr", addr).Msg("http server configured")
	return a, nil
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", a.HTTPServer.Addr).Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.holder != nil {
		a.holder.Stop()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// NewLogger builds the application logger from the logging configuration.
func NewLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
