package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/visualedit/internal/columns"
	"github.com/JonMunkholm/visualedit/internal/config"
	"github.com/JonMunkholm/visualedit/internal/dataset"
	"github.com/JonMunkholm/visualedit/internal/definition"
	"github.com/JonMunkholm/visualedit/internal/grid"
	"github.com/JonMunkholm/visualedit/internal/logging"
	"github.com/JonMunkholm/visualedit/internal/lookup"
	"github.com/JonMunkholm/visualedit/internal/telemetry"
	"github.com/JonMunkholm/visualedit/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"definitions", cfg.Grid.DefinitionsFile,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	store := dataset.NewStore(pool, logger)
	if err := store.EnsureSchema(ctx); err != nil {
		slog.Error("failed to create edit log table", "error", err)
		os.Exit(1)
	}

	var sink telemetry.Sink = telemetry.LogSink{Logger: logger}
	if cfg.Telemetry.URL != "" {
		sink = telemetry.NewHTTPSink(cfg.Telemetry.URL, &http.Client{Timeout: cfg.Telemetry.DeliveryTimeout})
	}
	emitter := telemetry.NewEmitter(sink, telemetry.Options{
		PluginVersion:   cfg.Telemetry.PluginVersion,
		Buffer:          cfg.Telemetry.Buffer,
		DeliveryTimeout: cfg.Telemetry.DeliveryTimeout,
		Logger:          logger,
	})

	var transport lookup.Transport = store
	if cfg.Lookup.BaseURL != "" {
		transport = lookup.NewHTTPTransport(cfg.Lookup.BaseURL, &http.Client{Timeout: cfg.Server.RequestTimeout})
		slog.Info("using remote lookups", "base_url", cfg.Lookup.BaseURL)
	}

	resolver := columns.NewResolver(columns.Builtins())
	lookupOpts := lookup.Options{
		Debounce:      cfg.Lookup.Debounce,
		RetryAttempts: cfg.Lookup.RetryAttempts,
		RetryBackoff:  cfg.Lookup.RetryBackoff,
		Logger:        logger,
	}

	catalog := grid.NewCatalog()
	applier := definition.NewApplier(catalog, store, func(g definition.Grid) *grid.Controller {
		return grid.NewController(
			grid.Config{ID: g.ID, Dataset: g.Dataset, Columns: g.Columns},
			grid.Deps{
				Grid:      grid.NewMemoryGrid(g.KeyField),
				Resolver:  resolver,
				Transport: transport,
				Lookup:    lookupOpts,
				Source:    store,
				EditLog:   store,
				Emitter:   emitter,
				Logger:    logger,
			},
		)
	}, logger)

	grids, err := definition.LoadFile(cfg.Grid.DefinitionsFile)
	if err != nil {
		slog.Error("failed to load grid definitions", "error", err)
		os.Exit(1)
	}
	if err := applier.Apply(ctx, grids); err != nil {
		// Grids that failed stay unmounted; the rest are served.
		slog.Warn("some grids failed to mount", "error", err)
	}
	slog.Info("grids mounted", "count", len(catalog.IDs()))

	var watcher *definition.Watcher
	if cfg.Grid.Watch {
		watcher, err = definition.NewWatcher(cfg.Grid.DefinitionsFile, applier.Apply, definition.WatcherOptions{
			Debounce: cfg.Grid.WatchDebounce,
			Logger:   logger,
		})
		if err != nil {
			slog.Warn("grid definitions will not be reloaded", "error", err)
		}
	}

	server := web.NewServer(cfg, catalog, store, store)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		if watcher != nil {
			if err := watcher.Close(); err != nil {
				slog.Warn("definition watcher close", "error", err)
			}
		}
		catalog.UnmountAll()
		if err := emitter.Close(shutdownCtx); err != nil {
			slog.Warn("telemetry events lost", "error", err)
		}
		stats := emitter.Stats()
		slog.Info("telemetry delivered", "sent", stats.Sent, "failed", stats.Failed, "dropped", stats.Dropped)
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
