// services/scheduler.go
package services

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartSweepScheduler runs the resolution sweep on an interval
// (RESOLVE_SWEEP_MINUTES, default 15). The external /cron/resolve trigger
// stays available alongside it; the sweep is idempotent either way.
func (s *ResolutionService) StartSweepScheduler(ctx context.Context) {
	minutes := 15
	if raw := os.Getenv("RESOLVE_SWEEP_MINUTES"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			minutes = n
		}
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Printf("[RESOLVE] ❌ Failed to create scheduler: %v", err)
		return
	}
	sched.Start()

	if _, err := sched.NewJob(
		gocron.DurationJob(time.Duration(minutes)*time.Minute),
		gocron.NewTask(func() {
			if _, err := s.RunSweep(ctx); err != nil {
				log.Printf("[RESOLVE] ❌ Scheduled sweep failed: %v", err)
			}
		}),
	); err != nil {
		log.Printf("[RESOLVE] ❌ Failed to schedule sweep job: %v", err)
		_ = sched.Shutdown()
		return
	}

	log.Printf("[RESOLVE] ⏰ Sweep scheduler started (every %d minute(s))", minutes)

	go func() {
		<-ctx.Done()
		_ = sched.Shutdown()
	}()
}
