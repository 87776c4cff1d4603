package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/keyline/keyline/internal/http"
	"github.com/keyline/keyline/internal/introspect"
	"github.com/keyline/keyline/internal/refresh"
	"github.com/keyline/keyline/internal/refresh/sqlite"
	"github.com/keyline/keyline/pkg/jwtx"
	"github.com/keyline/keyline/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
var BuildVersion = "v0.1.0"

// Application bundles the token service, refresh token manager, and
// HTTP surface with their lifecycle.
type Application struct {
	cfg    Config
	logger *slog.Logger

	store        refresh.Store
	tokens       *jwtx.TokenService
	sessions     *refresh.Manager
	introspector *introspect.Service
	housekeeping *refresh.Housekeeping

	server *http.Server
	router *httpapi.Router
}

// New initializes an Application with all dependencies wired.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "keyline",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initStore(); err != nil {
		return nil, err
	}
	if err := app.initServices(); err != nil {
		_ = app.store.Close()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeeping.Start()

	app.logger.Info("keyline starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown drains in-flight requests, stops housekeeping, and closes
// the store.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down keyline...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeeping.Stop()

	if err := app.store.Close(); err != nil {
		app.logger.Error("error closing store", "error", err)
		return err
	}

	app.logger.Info("keyline stopped")
	return nil
}

// initStore selects the refresh record store: SQLite when a database
// file is configured, otherwise in-memory.
func (app *Application) initStore() error {
	if app.cfg.DatabaseFile == "" {
		app.logger.Warn("no database file configured, refresh records are in-memory only")
		app.store = refresh.NewMemStore()
		return nil
	}

	dsn := fmt.Sprintf("file:%s", app.cfg.DatabaseFile)
	store, err := sqlite.New(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := store.ApplyMigrations(); err != nil {
		_ = store.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied", "file", app.cfg.DatabaseFile)
	app.store = store
	return nil
}

func (app *Application) initServices() error {
	keys, err := InitSigningKeys(app.cfg, app.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize signing keys: %w", err)
	}

	app.tokens, err = jwtx.NewTokenService(jwtx.ServiceConfig{
		Keys:     keys,
		Issuer:   app.cfg.Issuer,
		Audience: app.cfg.Audience,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}

	app.sessions = refresh.NewManager(refresh.Config{
		MaxLifetime:           app.cfg.RefreshMaxLifetime,
		RotationEnabled:       app.cfg.RefreshRotation,
		MaxTokensPerUser:      app.cfg.RefreshMaxPerUser,
		RevokeOnSecurityEvent: app.cfg.RefreshRevokeReplay,
	}, app.tokens, app.store, app.logger)

	app.introspector = introspect.New(app.tokens, app.sessions, app.logger)
	app.housekeeping = refresh.NewHousekeeping(app.sessions, app.logger, app.cfg.HousekeepingInterval)

	return nil
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.tokens,
		app.sessions,
		app.introspector,
		BuildVersion,
		app.logger,
	)
	router.ApplyRoutes()
	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
