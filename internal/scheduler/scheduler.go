// Package scheduler runs the periodic data refresh and retrain jobs.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Jobs is the work the scheduler triggers. Implementations serialize with
// request-triggered retrains.
type Jobs interface {
	// RefreshAndRetrain appends today's prices and forces a retrain.
	RefreshAndRetrain(ctx context.Context) error
	// CheckStaleness refreshes and retrains when the data is behind today.
	CheckStaleness(ctx context.Context) (bool, error)
}

// Config controls when jobs fire.
type Config struct {
	// DailyHour and DailyMinute give the local wall-clock time of the daily job.
	DailyHour   int
	DailyMinute int
	// CheckInterval is the period of the staleness check.
	CheckInterval time.Duration
	// PollInterval is how often the loop wakes up to look for due jobs.
	PollInterval time.Duration
}

// Scheduler is a single cooperative loop: it wakes every PollInterval and
// runs whichever jobs are due, one at a time.
type Scheduler struct {
	jobs   Jobs
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	nextDaily time.Time
	nextCheck time.Time
}

// New creates a Scheduler. A nil clock means time.Now.
func New(jobs Jobs, cfg Config, logger *zap.Logger, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Hour
	}
	s := &Scheduler{jobs: jobs, cfg: cfg, logger: logger, now: now}
	start := now()
	s.nextDaily = s.dailyAfter(start)
	s.nextCheck = start.Add(cfg.CheckInterval)
	return s
}

// dailyAfter returns the first daily fire time strictly after t.
func (s *Scheduler) dailyAfter(t time.Time) time.Time {
	y, m, d := t.Date()
	at := time.Date(y, m, d, s.cfg.DailyHour, s.cfg.DailyMinute, 0, 0, t.Location())
	if !at.After(t) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

// NextRuns returns the next daily and staleness-check fire times.
func (s *Scheduler) NextRuns() (daily, check time.Time) {
	return s.nextDaily, s.nextCheck
}

// Start runs the loop until ctx is cancelled. It is meant to run in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.logger.Info("Scheduler started",
		zap.Time("next_daily", s.nextDaily),
		zap.Duration("check_interval", s.cfg.CheckInterval))

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			s.logger.Info("Stopping scheduler")
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()

	if !now.Before(s.nextDaily) {
		s.logger.Info("Starting daily update job")
		if err := s.jobs.RefreshAndRetrain(ctx); err != nil {
			s.logger.Error("Daily update job failed", zap.Error(err))
		} else {
			s.logger.Info("Daily update completed")
		}
		s.nextDaily = s.dailyAfter(now)
		// The daily job already brought the data up to date.
		s.nextCheck = now.Add(s.cfg.CheckInterval)
		return
	}

	if !now.Before(s.nextCheck) {
		ran, err := s.jobs.CheckStaleness(ctx)
		switch {
		case err != nil:
			s.logger.Error("Staleness check failed", zap.Error(err))
		case ran:
			s.logger.Info("Stale data refreshed and model retrained")
		default:
			s.logger.Debug("Data is up to date")
		}
		s.nextCheck = now.Add(s.cfg.CheckInterval)
	}
}
