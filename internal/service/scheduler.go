package service

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ifuryst/threads-insights/internal/config"
	"github.com/ifuryst/threads-insights/internal/models"
)

// Scheduler triggers the ingest pipeline on a cron schedule.
type Scheduler struct {
	config        *config.SchedulerConfig
	logger        *zap.Logger
	ingestService *IngestService
	engine        *cron.Cron
	ctx           context.Context
}

func NewScheduler(cfg *config.SchedulerConfig, location *time.Location, logger *zap.Logger, ingestService *IngestService) *Scheduler {
	return &Scheduler{
		config:        cfg,
		logger:        logger,
		ingestService: ingestService,
		engine:        cron.New(cron.WithLocation(location)),
		ctx:           context.Background(),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Scheduler is disabled")
		return nil
	}

	s.ctx = ctx
	if _, err := s.engine.AddJob(s.config.Spec, s); err != nil {
		s.logger.Error("Invalid schedule", zap.String("spec", s.config.Spec), zap.Error(err))
		return err
	}

	s.logger.Info("Starting scheduler", zap.String("spec", s.config.Spec))
	s.engine.Start()
	return nil
}

// Stop waits for a running job to return.
func (s *Scheduler) Stop() {
	<-s.engine.Stop().Done()
	s.logger.Info("Scheduler shutdown completed")
}

// Run implements cron.Job.
func (s *Scheduler) Run() {
	s.logger.Info("Running scheduled ingest")
	run, err := s.ingestService.Run(s.ctx, models.TriggerScheduler)
	if errors.Is(err, ErrRunInProgress) {
		s.logger.Warn("Scheduled ingest skipped, a run is already in progress")
		return
	}
	if err != nil {
		s.logger.Error("Scheduled ingest failed", zap.String("run_id", run.ID), zap.Error(err))
		return
	}
	s.logger.Info("Scheduled ingest completed", zap.String("run_id", run.ID), zap.Int("media_count", run.MediaCount))
}
