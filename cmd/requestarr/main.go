package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/amaumene/requestarr/internal/api"
	"github.com/amaumene/requestarr/internal/config"
	"github.com/amaumene/requestarr/internal/controllers"
	"github.com/amaumene/requestarr/internal/models"
	"github.com/amaumene/requestarr/internal/notifications"
	"github.com/amaumene/requestarr/internal/scheduler"
	"github.com/amaumene/requestarr/internal/services/plex"
	"github.com/amaumene/requestarr/internal/services/tmdb"
	"github.com/amaumene/requestarr/internal/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Setup logger
	logger := utils.NewLogger(cfg.LogLevel, cfg.LogJSON)
	logger.Info("Starting Requestarr")
	logger.WithField("config_dir", filepath.Dir(cfg.DatabaseFile)).Info("Configuration loaded")

	// 3. Initialize database
	db, err := models.NewDatabase(cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	logger.Info("Database initialized")

	// 4. Initialize services
	tmdbClient, err := tmdb.NewClient(cfg.TMDBAPIKey, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize TMDB client: %w", err)
	}
	logger.Info("TMDB client initialized")

	plexClient := plex.NewClient(logger)
	logger.Info("Plex client initialized")

	notifier := notifications.NewLogNotifier(logger)

	// 5. Initialize controllers
	movieCtrl := controllers.NewMovieController(db, cfg, notifier, logger)
	seriesCtrl := controllers.NewSeriesController(db, cfg, tmdbClient, notifier, logger)
	statusCtrl := controllers.NewStatusController(db, movieCtrl, seriesCtrl, tmdbClient, notifier, logger)
	requestCtrl := controllers.NewRequestController(db, tmdbClient, statusCtrl, logger)
	watchlistCtrl := controllers.NewWatchlistController(plexClient, requestCtrl, cfg.PlexUsers, logger)
	logger.Info("Controllers initialized")

	// 6. Initialize scheduler
	sched := scheduler.NewScheduler(watchlistCtrl, statusCtrl, cfg.WatchlistSyncMinutes, cfg.DispatchSweepMinutes, cfg.DispatchGraceMinutes, logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	// 7. Initialize HTTP server
	server := api.NewServer(cfg, db, requestCtrl, logger)

	// Start server in goroutine
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErrChan := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErrChan <- err
		}
	}()

	// 8. Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Requestarr is running")

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		logger.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
		if err := server.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Error("Error during server shutdown")
		}
	}

	// Let in-flight dispatches finish before closing the database
	movieCtrl.Wait()
	seriesCtrl.Wait()

	logger.Info("Requestarr stopped")
	return nil
}
