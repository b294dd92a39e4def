package main

import (
	"context"
	"log"
	"time"
)

// CronScheduler triggers the daily batches shortly after midnight in
// the billing timezone when the process runs in serve mode. Deployments
// that use an external cron run the subcommands instead and never start
// it.
type CronScheduler struct {
	scheduler *DailyScheduler
	db        *DatabaseService
	loc       *time.Location
	stop      chan struct{}
}

func NewCronScheduler(scheduler *DailyScheduler, db *DatabaseService, quota *QuotaService) *CronScheduler {
	return &CronScheduler{
		scheduler: scheduler,
		db:        db,
		loc:       quota.Location(),
		stop:      make(chan struct{}),
	}
}

func (c *CronScheduler) Start(ctx context.Context) {
	go c.loop(ctx)
}

func (c *CronScheduler) Stop() {
	close(c.stop)
}

func (c *CronScheduler) loop(ctx context.Context) {
	for {
		wait := c.untilNextRun()
		log.Printf("⏰ Next scheduled batch in %s", wait.Round(time.Minute))
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-time.After(wait):
			c.runAll(ctx)
		}
	}
}

// untilNextRun targets 00:05 in the billing timezone; the offset keeps
// the run clear of the window boundary.
func (c *CronScheduler) untilNextRun() time.Duration {
	now := time.Now().In(c.loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 5, 0, 0, c.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

func (c *CronScheduler) runAll(ctx context.Context) {
	if _, err := c.scheduler.RunDaily(ctx, PROJECT_VARIANT_DOMAIN); err != nil {
		log.Printf("Domain batch error: %v", err)
	}
	if _, err := c.scheduler.RunDaily(ctx, PROJECT_VARIANT_BRAND); err != nil {
		log.Printf("Brand batch error: %v", err)
	}
	// Serve mode without assistant keys simply has no LLM batch; the
	// subcommand entry point treats that as a misconfiguration instead.
	if len(c.scheduler.llm.ProviderNames()) > 0 {
		if _, err := c.scheduler.RunLLMDaily(ctx); err != nil {
			log.Printf("LLM batch error: %v", err)
		}
	}
	if pruned, err := c.db.PruneEvents(EVENT_RETENTION_DAYS); err != nil {
		log.Printf("Event pruning error: %v", err)
	} else if pruned > 0 {
		log.Printf("🧹 Pruned %d events older than %d days", pruned, EVENT_RETENTION_DAYS)
	}
}
