package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hooprank/internal/config"
	"github.com/hooprank/internal/service"
)

// SyncWorker runs the periodic maintenance loops: expiring stale game
// rooms and mirroring rank scores into the cache and archive.
type SyncWorker struct {
	matches *service.MatchService
	config  *config.SyncConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(matches *service.MatchService, cfg *config.SyncConfig, logger *slog.Logger) *SyncWorker {
	return &SyncWorker{
		matches: matches,
		config:  cfg,
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins the background loops
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("sync worker started",
		"sweep_interval", w.config.SweepInterval,
		"rankings_interval", w.config.RankingsInterval,
	)

	go w.run(ctx)
	return nil
}

// Stop stops the background loops
func (w *SyncWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("sync worker stopped")
	return nil
}

// run is the main worker loop
func (w *SyncWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	sweepTicker := time.NewTicker(w.config.SweepInterval)
	defer sweepTicker.Stop()
	rankingsTicker := time.NewTicker(w.config.RankingsInterval)
	defer rankingsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-sweepTicker.C:
			w.sweepRooms(ctx)
		case <-rankingsTicker.C:
			w.syncRankings(ctx)
		}
	}
}

// sweepRooms expires invite rooms past their deadline
func (w *SyncWorker) sweepRooms(ctx context.Context) {
	expired := w.matches.SweepExpiredRooms(ctx, time.Now())
	if expired > 0 {
		w.logger.Info("expired stale rooms", "count", expired)
	}
}

// syncRankings mirrors rank scores into Redis and PostgreSQL
func (w *SyncWorker) syncRankings(ctx context.Context) {
	startTime := time.Now()
	if err := w.matches.SyncRankings(ctx); err != nil {
		w.logger.Error("rankings sync failed", "error", err)
		return
	}
	w.logger.Debug("rankings sync completed", "duration", time.Since(startTime))
}

// IsRunning returns whether the worker is currently running
func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single maintenance cycle (useful for manual triggers)
func (w *SyncWorker) RunOnce(ctx context.Context) {
	w.sweepRooms(ctx)
	w.syncRankings(ctx)
}
