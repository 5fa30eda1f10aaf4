package scheduler

import (
	"context"
	"time"

	"court-watcher/internal/config"
	"court-watcher/internal/constants"
	"court-watcher/internal/service"

	"github.com/rs/zerolog"
)

// Worker drives the sync loop: one cycle runs start-to-finish before the next
// is scheduled, so cycles never overlap.
type Worker struct {
	svc      *service.AvailabilityService
	interval time.Duration
	logger   zerolog.Logger
}

func NewWorker(cfg *config.Config, svc *service.AvailabilityService, logger zerolog.Logger) *Worker {
	interval := cfg.ScrapeInterval
	if interval < constants.MinScrapeInterval {
		interval = constants.MinScrapeInterval
	}
	return &Worker{svc: svc, interval: interval, logger: logger}
}

func (w *Worker) Interval() time.Duration {
	return w.interval
}

// Run blocks until ctx is cancelled. Every cycle outcome is followed by a
// sleep and a retry; no cycle error stops the loop.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info().Dur("interval", w.interval).Msg("sync worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("sync worker stopped")
			return
		default:
		}

		if err := w.svc.RunCycle(ctx); err != nil {
			w.logger.Warn().Err(err).Msg("sync cycle failed")
		}

		select {
		case <-ctx.Done():
			w.logger.Info().Msg("sync worker stopped")
			return
		case <-time.After(w.interval):
		}
	}
}
