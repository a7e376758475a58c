package submissions

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CleanupScheduler prunes old terminal submissions on a cron schedule
type CleanupScheduler struct {
	cron    *cron.Cron
	tracker *Tracker
	days    int
	logger  *logrus.Logger
}

// NewCleanupScheduler registers a cleanup job for the standard cron
// expression schedule. The job is not running until Start.
func NewCleanupScheduler(tracker *Tracker, schedule string, days int, logger *logrus.Logger) (*CleanupScheduler, error) {
	if days <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %d days", days)
	}
	if logger == nil {
		logger = logrus.New()
	}

	s := &CleanupScheduler{
		cron:    cron.New(),
		tracker: tracker,
		days:    days,
		logger:  logger,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs the scheduler in its own goroutine
func (s *CleanupScheduler) Start() {
	s.cron.Start()
	s.logger.WithField("retention_days", s.days).Info("Submission cleanup scheduled")
}

// Stop halts the scheduler. The returned context is done once a running
// cleanup has finished.
func (s *CleanupScheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Next returns when the cleanup job will run next, or the zero time when
// the scheduler is stopped
func (s *CleanupScheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunOnce performs a cleanup immediately
func (s *CleanupScheduler) RunOnce() (int, error) {
	return s.tracker.CleanupOldSubmissions(s.days)
}

func (s *CleanupScheduler) run() {
	start := time.Now()
	removed, err := s.RunOnce()
	if err != nil {
		s.logger.WithError(err).Error("Submission cleanup failed")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"removed":  removed,
		"duration": time.Since(start).String(),
	}).Info("Submission cleanup completed")
}
