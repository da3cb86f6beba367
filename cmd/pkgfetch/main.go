package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"

	"github.com/pkgfetch/pkgfetch/internal/api"
	"github.com/pkgfetch/pkgfetch/internal/catalog"
	"github.com/pkgfetch/pkgfetch/internal/config"
	"github.com/pkgfetch/pkgfetch/internal/database"
	"github.com/pkgfetch/pkgfetch/internal/download"
	"github.com/pkgfetch/pkgfetch/internal/logger"
	"github.com/pkgfetch/pkgfetch/internal/preferences"
	"github.com/pkgfetch/pkgfetch/internal/scheduler"
	"github.com/pkgfetch/pkgfetch/internal/scheduler/tasks"
	"github.com/pkgfetch/pkgfetch/internal/websocket"
)

func main() {
	// Optional .env for local development; a missing file is fine.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer log.Close()

	log.Info().
		Str("version", config.Version).
		Str("logLevel", cfg.Logging.Level).
		Msg("starting pkgfetch")

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open settings database")
	}
	defer db.Close()

	log.Info().Msg("running database migrations")
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	hub := websocket.NewHub()
	go hub.Run()

	prefsService := preferences.NewService(db.Conn(), preferences.Defaults{
		SeedProgram: cfg.Catalog.SeedProgram,
		OSFilter:    cfg.Catalog.OSFilter,
		DownloadDir: cfg.Download.Directory,
	})

	feeds, err := catalog.LoadFeedSet()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load catalog feed definitions")
	}

	catalogService := catalog.NewService(
		catalog.NewFetcher(cfg.Catalog.RequestTimeout, log.Logger),
		catalog.NewDistributionLoader(cfg.Catalog.RequestTimeout, log.Logger),
		feeds,
		prefsService,
		hub,
		log.Logger,
	)

	fs := afero.NewOsFs()
	pool := download.NewPool(fs, download.NewDirGrantProvider(fs), prefsService, hub, log.Logger, download.Config{
		MaxConcurrent:   cfg.Download.MaxConcurrent,
		RetryLimit:      cfg.Download.RetryLimit,
		RetryDelay:      cfg.Download.RetryDelay,
		RequestTimeout:  cfg.Download.RequestTimeout,
		TransferTimeout: cfg.Download.TransferTimeout,
	})

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}
	if err := tasks.RegisterCatalogRefreshTask(sched, catalogService, &cfg.Catalog); err != nil {
		log.Fatal().Err(err).Msg("failed to register catalog refresh task")
	}
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	server := api.NewServer(cfg, hub, catalogService, pool, prefsService, sched, log.Logger)

	go func() {
		if err := server.Start(cfg.Server.Address()); err != nil {
			log.Info().Msg("server stopped")
		}
	}()

	// Kick off the initial catalog load once the server is up.
	go func() {
		if err := catalogService.Load(context.Background()); err != nil {
			log.Warn().Err(err).Msg("initial catalog load failed to start")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("received shutdown signal")

	if err := sched.Stop(); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server stopped")
}
