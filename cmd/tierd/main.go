// tierd is the storage lifecycle daemon: it archives cold time-series
// partitions to external disk, restores them on demand, backs up the
// relational metadata store and prunes stale credentials.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/egibi/tierd/internal/config"
	"github.com/egibi/tierd/internal/engine"
	"github.com/egibi/tierd/internal/logging"
	"github.com/egibi/tierd/internal/metastore"
	"github.com/egibi/tierd/internal/runtime"
	"github.com/egibi/tierd/internal/scheduler"
	"github.com/egibi/tierd/internal/server"
	"github.com/egibi/tierd/internal/tiering"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfgPath := flag.String("config", "tierd.yaml", "config file path")
	listen := flag.String("listen", "", "listen address (overrides config)")
	noSchedule := flag.Bool("no-schedule", false, "disable the periodic auto-archive pass")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		// Load wraps the read error, so unwrap-aware matching is required
		// here; os.IsNotExist would miss it.
		if errors.Is(err, fs.ErrNotExist) {
			cfg = config.DefaultConfig()
		} else {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	logging.Init(logLevel(cfg.LogLevel), cfg.LogJSON)
	log := logging.Component("tierd")
	log.Info("starting", "version", Version, "listen", cfg.Listen)
	if err != nil {
		log.Warn("no config file found, using defaults", "path", *cfgPath)
	}

	// =========================================================================
	// Relational metadata store
	// =========================================================================

	db, err := sql.Open("pgx", cfg.Postgres.DSN)
	if err != nil {
		log.Error("open metadata store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := metastore.NewStore(db)
	if err := store.Init(context.Background()); err != nil {
		log.Error("init metadata store", "error", err)
		os.Exit(1)
	}
	cleaner := metastore.NewCleaner(db)

	// =========================================================================
	// Engine client and process runtimes
	// =========================================================================

	engineClient := engine.NewClient(cfg.Engine.URL, cfg.Engine.Table, cfg.CommandTimeout)

	var engineRuntime runtime.Runtime
	if cfg.Engine.Container != "" {
		engineRuntime = runtime.NewDockerRuntime(cfg.Engine.Container, cfg.CommandTimeout)
	} else {
		engineRuntime = runtime.NewLocalRuntime(cfg.CommandTimeout)
	}

	var dbRuntime runtime.Runtime
	dumpCmd := []string{"pg_dump", "-U", cfg.Postgres.User, "-Fc", cfg.Postgres.Database}
	if cfg.Postgres.Container != "" {
		dbRuntime = runtime.NewDockerRuntime(cfg.Postgres.Container, cfg.CommandTimeout)
	} else {
		dbRuntime = runtime.NewLocalRuntime(cfg.CommandTimeout)
	}

	// =========================================================================
	// Lifecycle service, scheduler, HTTP server
	// =========================================================================

	svc := tiering.NewService(tiering.Options{
		Store:         store,
		Cleaner:       cleaner,
		Engine:        engineClient,
		EngineRuntime: engineRuntime,
		DBRuntime:     dbRuntime,
		EngineDataDir: cfg.Engine.DataDir,
		HotDiskPath:   cfg.Engine.HotDiskPath,
		DumpCommand:   dumpCmd,
	})

	var sched *scheduler.Scheduler
	if !*noSchedule {
		sched = scheduler.New(svc)
		sched.Start()
	}

	srv := server.New(cfg.Listen, svc)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("signal received, shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			log.Error("http server failed", "error", err)
		}
	}

	if sched != nil {
		sched.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown", "error", err)
	}
	log.Info("stopped")
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
