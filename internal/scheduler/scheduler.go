// Package scheduler runs the periodic pipeline jobs: queue dispatch, token
// refresh, and daily maintenance.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"coldflow/internal/config"
	"coldflow/internal/dispatch"
	"coldflow/internal/quota"
	"coldflow/internal/repository"
	"coldflow/internal/tokens"
)

// Scheduler manages the periodic jobs. Each job runs inside the scheduler's
// context so an in-flight cycle observes shutdown.
type Scheduler struct {
	cron    *cron.Cron
	config  *config.SchedulerConfig
	engine  *dispatch.Engine
	tokens  *tokens.Manager
	tracker *quota.Tracker
	repo    *repository.Repository
	logger  *logrus.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.RWMutex
}

// NewScheduler creates a scheduler wired to the pipeline components.
func NewScheduler(
	cfg *config.SchedulerConfig,
	engine *dispatch.Engine,
	tokenManager *tokens.Manager,
	tracker *quota.Tracker,
	repo *repository.Repository,
	logger *logrus.Logger,
) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:    cron.New(),
		config:  cfg,
		engine:  engine,
		tokens:  tokenManager,
		tracker: tracker,
		repo:    repo,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start registers the cron jobs and starts the scheduler.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	queueSchedule := fmt.Sprintf("*/%d * * * *", s.config.QueueIntervalMinutes)
	if _, err := s.cron.AddFunc(queueSchedule, s.processQueue); err != nil {
		return fmt.Errorf("failed to add queue job: %w", err)
	}

	refreshSchedule := fmt.Sprintf("*/%d * * * *", s.config.RefreshIntervalMinutes)
	if _, err := s.cron.AddFunc(refreshSchedule, s.refreshTokens); err != nil {
		return fmt.Errorf("failed to add refresh job: %w", err)
	}

	// daily maintenance shortly after the UTC quota boundary
	if _, err := s.cron.AddFunc("5 0 * * *", s.runMaintenance); err != nil {
		return fmt.Errorf("failed to add maintenance job: %w", err)
	}

	s.cron.Start()
	s.isRunning = true

	s.logger.WithFields(logrus.Fields{
		"queue_interval_minutes":   s.config.QueueIntervalMinutes,
		"refresh_interval_minutes": s.config.RefreshIntervalMinutes,
	}).Info("Scheduler started")
	return nil
}

// Stop stops the scheduler and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	s.cancel()
	ctx := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
	case <-time.After(30 * time.Second):
		s.logger.Warn("Scheduler stop timeout, forcing shutdown")
		s.isRunning = false
		return nil
	}

	select {
	case <-done:
		s.logger.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		s.logger.Warn("Timed out waiting for running jobs")
	}

	s.isRunning = false
	return nil
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

func (s *Scheduler) processQueue() {
	s.wg.Add(1)
	defer s.wg.Done()

	if s.ctx.Err() != nil {
		return
	}

	result, err := s.engine.ProcessBatch(s.ctx, 0)
	if err != nil {
		s.logger.WithError(err).Error("Scheduled queue processing failed")
		return
	}
	if result.Processed > 0 {
		s.logger.WithFields(logrus.Fields{
			"sent":   result.Sent,
			"failed": result.Failed,
		}).Info("Scheduled queue cycle completed")
	}
}

func (s *Scheduler) refreshTokens() {
	s.wg.Add(1)
	defer s.wg.Done()

	if s.ctx.Err() != nil {
		return
	}

	if _, err := s.tokens.RefreshExpiringBatch(s.ctx); err != nil {
		s.logger.WithError(err).Error("Scheduled token refresh failed")
	}
}

func (s *Scheduler) runMaintenance() {
	s.wg.Add(1)
	defer s.wg.Done()

	if s.ctx.Err() != nil {
		return
	}

	quotasReset, err := s.tracker.ResetDue()
	if err != nil {
		s.logger.WithError(err).Error("Quota reset failed")
	}

	cutoff := time.Now().AddDate(0, 0, -s.config.RetentionDays)
	deleted, err := s.repo.CleanupSentBefore(cutoff)
	if err != nil {
		s.logger.WithError(err).Error("Sent entry cleanup failed")
	}

	s.logger.WithFields(logrus.Fields{
		"quotas_reset":    quotasReset,
		"entries_deleted": deleted,
	}).Info("Maintenance completed")
}
