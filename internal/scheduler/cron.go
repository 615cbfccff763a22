package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/amaumene/requestarr/internal/controllers"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler manages the periodic sweeps
type Scheduler struct {
	cron          *cron.Cron
	watchlistCtrl *controllers.WatchlistController
	statusCtrl    *controllers.StatusController
	syncMinutes   int
	sweepMinutes  int
	graceMinutes  int
	logger        *logrus.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(
	watchlistCtrl *controllers.WatchlistController,
	statusCtrl *controllers.StatusController,
	syncMinutes, sweepMinutes, graceMinutes int,
	logger *logrus.Logger,
) *Scheduler {
	return &Scheduler{
		cron:          cron.New(),
		watchlistCtrl: watchlistCtrl,
		statusCtrl:    statusCtrl,
		syncMinutes:   syncMinutes,
		sweepMinutes:  sweepMinutes,
		graceMinutes:  graceMinutes,
		logger:        logger,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.logger.Info("Starting scheduler")

	// Poll watchlists and request unseen titles
	_, err := s.cron.AddFunc(fmt.Sprintf("*/%d * * * *", s.syncMinutes), func() {
		s.runWatchlistSync()
	})
	if err != nil {
		return fmt.Errorf("failed to add watchlist sync job: %w", err)
	}

	// Re-dispatch approved requests whose add call was never confirmed
	_, err = s.cron.AddFunc(fmt.Sprintf("*/%d * * * *", s.sweepMinutes), func() {
		s.runDispatchSweep()
	})
	if err != nil {
		return fmt.Errorf("failed to add dispatch sweep job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Scheduler started")

	// Run the initial sync immediately
	go func() {
		s.runWatchlistSync()
		s.runDispatchSweep()
	}()

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cron.Stop()
}

// runWatchlistSync executes the watchlist sync job
func (s *Scheduler) runWatchlistSync() {
	s.logger.Info("Running scheduled watchlist sync")
	ctx := context.Background()

	if err := s.watchlistCtrl.SyncAll(ctx); err != nil {
		s.logger.WithError(err).Error("Watchlist sync job failed")
	} else {
		s.logger.Info("Watchlist sync job completed")
	}
}

// runDispatchSweep executes the dispatch reconciliation sweep
func (s *Scheduler) runDispatchSweep() {
	s.logger.Debug("Running dispatch sweep")
	ctx := context.Background()

	cutoff := time.Now().Add(-time.Duration(s.graceMinutes) * time.Minute)
	if err := s.statusCtrl.RedispatchStale(ctx, cutoff); err != nil {
		s.logger.WithError(err).Error("Dispatch sweep failed")
	}
}
