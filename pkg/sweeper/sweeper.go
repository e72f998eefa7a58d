// Package sweeper runs the scheduled cool-down housekeeping job. Expired
// cool-down markers are cleared from credential records; availability never
// depends on the sweep (the pool compares expiries against the clock), it
// only keeps listings tidy.
package sweeper

import (
	"context"
	"time"

	"github.com/adhocore/gronx"

	"branchchat/pkg/config"
	"branchchat/pkg/keypool"
	"branchchat/pkg/logger"
)

const defaultCron = "*/10 * * * *"

// Start launches the sweep scheduler if enabled and returns a cancel func.
func Start(ctx context.Context, pool *keypool.Pool, cfg config.Config) (context.CancelFunc, error) {
	if !cfg.Sweeper.Enabled {
		logger.Info("sweeper_disabled")
		return func() {}, nil
	}
	cron := cfg.Sweeper.Cron
	if cron == "" {
		cron = defaultCron
	}
	g := gronx.New()
	if !g.IsValid(cron) {
		logger.Warn("sweeper_invalid_cron", "cron", cron, "fallback", defaultCron)
		cron = defaultCron
	}

	cctx, cancel := context.WithCancel(ctx)
	go func() {
		tick := time.NewTicker(time.Minute)
		defer tick.Stop()
		for {
			select {
			case <-cctx.Done():
				return
			case now := <-tick.C:
				due, err := g.IsDue(cron, now)
				if err != nil || !due {
					continue
				}
				runOnce(pool)
			}
		}
	}()
	logger.Info("sweeper_started", "cron", cron)
	return cancel, nil
}

func runOnce(pool *keypool.Pool) {
	n, err := pool.ClearExpiredCooldowns(time.Now())
	if err != nil {
		logger.Error("sweep_failed", "error", err)
		return
	}
	if n > 0 {
		logger.Info("sweep_cleared_cooldowns", "count", n)
	}
}
