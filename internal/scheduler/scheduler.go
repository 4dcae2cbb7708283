package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ContentRefresher reloads scraped content into the cache.
type ContentRefresher interface {
	Refresh(ctx context.Context) error
}

// ArtifactInvalidator drops cached model artifacts so retrained ones are picked up.
type ArtifactInvalidator interface {
	Invalidate(symbols ...string)
}

// Scheduler runs the background maintenance jobs.
type Scheduler struct {
	cron      *cron.Cron
	content   ContentRefresher
	artifacts ArtifactInvalidator
	timeout   time.Duration
	logger    *logrus.Logger
	ctx       context.Context
}

// NewScheduler creates a scheduler. Jobs run with ctx as parent and are
// bounded by timeout each.
func NewScheduler(ctx context.Context, content ContentRefresher, artifacts ArtifactInvalidator, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scheduler{
		cron:      cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		content:   content,
		artifacts: artifacts,
		timeout:   time.Minute,
		logger:    logger,
		ctx:       ctx,
	}
}

// RegisterAll registers the content refresh and artifact invalidation jobs.
// An empty spec skips that job.
func (s *Scheduler) RegisterAll(contentRefreshSpec, artifactInvalidateSpec string) error {
	if contentRefreshSpec != "" && s.content != nil {
		if _, err := s.cron.AddFunc(contentRefreshSpec, s.refreshContent); err != nil {
			return fmt.Errorf("register content refresh: %w", err)
		}
	}
	if artifactInvalidateSpec != "" && s.artifacts != nil {
		if _, err := s.cron.AddFunc(artifactInvalidateSpec, s.invalidateArtifacts); err != nil {
			return fmt.Errorf("register artifact invalidation: %w", err)
		}
	}
	return nil
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.WithField("jobs", s.Jobs()).Info("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) refreshContent() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	if err := s.content.Refresh(ctx); err != nil {
		s.logger.WithError(err).Error("Content refresh failed")
	}
}

func (s *Scheduler) invalidateArtifacts() {
	s.artifacts.Invalidate()
	s.logger.Info("Model artifact cache invalidated")
}
