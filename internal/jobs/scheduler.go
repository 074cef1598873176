package jobs

import (
	"context"
	"errors"

	"CollectLedger/internal/config"
	"CollectLedger/internal/logger"
	"CollectLedger/internal/serviceiface"

	"github.com/robfig/cron/v3"
)

type CronService struct {
	config  map[string]interface{}
	sweeper Sweeper
	runner  *cron.Cron
}

func NewCronService(cfg map[string]interface{}, sweeper Sweeper) serviceiface.Service {
	return &CronService{
		config:  cfg,
		sweeper: sweeper,
	}
}

func (s *CronService) Name() string {
	return "cron"
}

func (s *CronService) Start() error {
	if s.sweeper == nil {
		return errors.New("cron service needs the resource manager")
	}
	logger.Log().Info("Starting cron service...")

	janitorConfig := NewDefaultJanitorConfig()
	janitorConfig.Schedule = config.String(s.config, "janitor_schedule", janitorConfig.Schedule)
	janitorConfig.TimeZone = config.String(s.config, "timezone", janitorConfig.TimeZone)

	runner, err := RunJanitor(janitorConfig, s.sweeper)
	if err != nil {
		return err
	}
	s.runner = runner
	logger.Log().Info("Cron service started: scratch janitor scheduled")
	return nil
}

// Stop waits for a running sweep to finish or for ctx to expire.
func (s *CronService) Stop(ctx context.Context) error {
	if s.runner == nil {
		return nil
	}
	done := s.runner.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	logger.Log().Info("Cron service stopped.")
	return nil
}
