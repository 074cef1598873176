package jobs

import (
	"fmt"
	"time"

	"CollectLedger/internal/config"
	"CollectLedger/internal/logger"

	"github.com/robfig/cron/v3"
)

// Sweeper deletes stale scratch files; *resource.ResourceManager implements it.
type Sweeper interface {
	Sweep(now time.Time) (int, error)
}

// JanitorConfig holds configuration for the scratch file janitor
type JanitorConfig struct {
	Schedule string
	TimeZone string
}

func NewDefaultJanitorConfig() *JanitorConfig {
	return &JanitorConfig{
		Schedule: config.DefaultJanitorSchedule,
		TimeZone: config.DefaultTimeZone,
	}
}

// RunJanitor schedules the sweep and starts the cron runner. The caller owns
// the returned runner and stops it on shutdown.
func RunJanitor(cfg *JanitorConfig, sweeper Sweeper) (*cron.Cron, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = config.DefaultJanitorSchedule
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = config.DefaultTimeZone
	}

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		loc = time.UTC
	}

	c := cron.New(cron.WithLocation(loc))
	_, err = c.AddFunc(cfg.Schedule, func() {
		sweepOnce(sweeper, time.Now())
	})
	if err != nil {
		return nil, fmt.Errorf("unable to schedule scratch janitor: %v", err)
	}

	c.Start()
	logger.Audit("Scratch janitor scheduled (%s %s)", cfg.Schedule, loc)
	return c, nil
}

func sweepOnce(sweeper Sweeper, now time.Time) int {
	n, err := sweeper.Sweep(now)
	if err != nil {
		logger.Log().WithError(err).Error("[JANITOR] scratch sweep failed")
		return n
	}
	if n > 0 {
		logger.Audit("[JANITOR] removed %d stale upload files", n)
	}
	return n
}
