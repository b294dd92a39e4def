package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"
)

// Advisory lock class shared by every batch kind; two batch processes
// on the same database never run concurrently.
const SCHEDULER_LOCK_CLASS = 0x5E4B
const SCHEDULER_LOCK_TTL = 2 * time.Hour

// DailyScheduler walks every active project of one variant and runs the
// analysis pipeline for each. One scheduler run holds a database-level
// lock so overlapping cron triggers collapse into a single run.
type DailyScheduler struct {
	db       *DatabaseService
	engine   *AnalysisEngine
	llm      *LLMMonitoringService
	notifier *AdminNotifier
	clock    Clock

	// pinned connection holding the postgres advisory lock
	lockConn *sql.Conn
}

func NewDailyScheduler(db *DatabaseService, engine *AnalysisEngine, llm *LLMMonitoringService, notifier *AdminNotifier, clock Clock) *DailyScheduler {
	return &DailyScheduler{db: db, engine: engine, llm: llm, notifier: notifier, clock: clock}
}

type BatchSummary struct {
	Variant         string        `json:"variant"`
	LockHeld        bool          `json:"lock_held,omitempty"`
	Projects        int           `json:"projects"`
	Succeeded       int           `json:"succeeded"`
	Failed          int           `json:"failed"`
	KeywordsStored  int           `json:"keywords_stored"`
	KeywordsFailed  int           `json:"keywords_failed"`
	KeywordsSkipped int           `json:"keywords_skipped"`
	RUsConsumed     int           `json:"rus_consumed"`
	Duration        time.Duration `json:"duration"`
}

// RunDaily runs the analysis batch for one project variant ("domain" or
// "brand"). A lock held by another process is a clean no-op: the
// summary comes back marked LockHeld with a nil error. Returns an error
// when at least one project failed fatally; per-keyword failures do not
// fail the batch.
func (s *DailyScheduler) RunDaily(ctx context.Context, variant string) (*BatchSummary, error) {
	acquired, err := s.acquireLock(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduler lock: %w", err)
	}
	if !acquired {
		log.Printf("⚠️ Daily %s batch skipped: scheduler lock is held by another process", variant)
		return &BatchSummary{Variant: variant, LockHeld: true}, nil
	}
	defer s.releaseLock()

	start := time.Now()
	summary := &BatchSummary{Variant: variant}

	projects, err := s.db.ListActiveProjects(variant)
	if err != nil {
		return nil, fmt.Errorf("list active projects: %w", err)
	}
	summary.Projects = len(projects)
	log.Printf("🚀 Daily %s batch started: %d projects", variant, len(projects))

	for _, project := range projects {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		run := s.engine.AnalyzeProject(ctx, project.ID, AnalysisOptions{})
		summary.KeywordsStored += run.Stored
		summary.KeywordsFailed += run.Failed
		summary.KeywordsSkipped += run.Skipped
		summary.RUsConsumed += run.RUsConsumed
		if run.Success {
			summary.Succeeded++
			log.Printf("✅ Project %s: %d stored, %d skipped, %d failed, %d RU",
				project.ID, run.Stored, run.Skipped, run.Failed, run.RUsConsumed)
		} else {
			summary.Failed++
			log.Printf("❌ Project %s failed: %s", project.ID, run.FatalError)
		}
	}

	summary.Duration = time.Since(start)
	log.Printf("🏁 Daily %s batch finished in %s: %d/%d projects ok, %d keywords stored, %d RU",
		variant, summary.Duration.Round(time.Second), summary.Succeeded, summary.Projects,
		summary.KeywordsStored, summary.RUsConsumed)
	s.notifier.NotifyBatch(summary)

	if summary.Failed > 0 {
		return summary, fmt.Errorf("%d of %d projects failed", summary.Failed, summary.Projects)
	}
	return summary, nil
}

// RunLLMDaily runs assistant monitoring for every project that has
// tracked queries. Starting a batch with zero configured providers is a
// misconfiguration, not an empty day, and fails before the lock.
func (s *DailyScheduler) RunLLMDaily(ctx context.Context) (*BatchSummary, error) {
	if len(s.llm.ProviderNames()) == 0 {
		return nil, fmt.Errorf("no LLM provider API keys configured")
	}

	acquired, err := s.acquireLock(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduler lock: %w", err)
	}
	if !acquired {
		log.Printf("⚠️ Daily LLM batch skipped: scheduler lock is held by another process")
		return &BatchSummary{Variant: "llm", LockHeld: true}, nil
	}
	defer s.releaseLock()

	start := time.Now()
	summary := &BatchSummary{Variant: "llm"}

	projects, err := s.db.ListProjectsWithLLMQueries()
	if err != nil {
		return nil, fmt.Errorf("list LLM projects: %w", err)
	}
	summary.Projects = len(projects)
	log.Printf("🚀 Daily LLM batch started: %d projects", len(projects))

	for _, project := range projects {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		run, err := s.llm.MonitorProject(ctx, project.ID)
		summary.KeywordsStored += run.Stored
		summary.KeywordsFailed += run.Failed
		summary.KeywordsSkipped += run.Skipped + run.QuotaSkipped
		summary.RUsConsumed += run.RUsConsumed
		if err != nil {
			summary.Failed++
			log.Printf("❌ LLM monitoring failed for project %s: %v", project.ID, err)
			continue
		}
		summary.Succeeded++
		log.Printf("✅ Project %s LLM: %d stored, %d skipped, %d failed, %d RU",
			project.ID, run.Stored, run.Skipped+run.QuotaSkipped, run.Failed, run.RUsConsumed)
	}

	summary.Duration = time.Since(start)
	log.Printf("🏁 Daily LLM batch finished in %s: %d/%d projects ok, %d RU",
		summary.Duration.Round(time.Second), summary.Succeeded, summary.Projects, summary.RUsConsumed)
	s.notifier.NotifyBatch(summary)

	if summary.Failed > 0 {
		return summary, fmt.Errorf("%d of %d projects failed", summary.Failed, summary.Projects)
	}
	return summary, nil
}

// acquireLock takes a session-scoped advisory lock on postgres. The
// lock and its unlock must run on the same session, so the connection
// is pinned out of the pool for the lock's whole lifetime. On sqlite
// there are no advisory locks, so a lock row with an expiry stands in;
// a stale row from a crashed process is overwritten once the TTL
// passes.
func (s *DailyScheduler) acquireLock(ctx context.Context) (bool, error) {
	if s.db.IsPostgres() {
		sqlDB, err := s.db.DB().DB()
		if err != nil {
			return false, err
		}
		conn, err := sqlDB.Conn(ctx)
		if err != nil {
			return false, err
		}
		var acquired bool
		if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", SCHEDULER_LOCK_CLASS).Scan(&acquired); err != nil {
			conn.Close()
			return false, err
		}
		if !acquired {
			conn.Close()
			return false, nil
		}
		s.lockConn = conn
		return true, nil
	}

	now := time.Now().UTC()
	var existing SchedulerLockModel
	err := s.db.DB().Where("lock_class = ?", SCHEDULER_LOCK_CLASS).First(&existing).Error
	if err == nil && existing.ExpiresAt.After(now) {
		return false, nil
	}
	lock := SchedulerLockModel{
		LockClass:  SCHEDULER_LOCK_CLASS,
		AcquiredAt: now,
		ExpiresAt:  now.Add(SCHEDULER_LOCK_TTL),
	}
	return true, s.db.DB().Save(&lock).Error
}

func (s *DailyScheduler) releaseLock() {
	if s.lockConn != nil {
		if _, err := s.lockConn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", SCHEDULER_LOCK_CLASS); err != nil {
			log.Printf("⚠️ Scheduler lock release failed: %v", err)
		}
		s.lockConn.Close()
		s.lockConn = nil
		return
	}
	s.db.DB().Where("lock_class = ?", SCHEDULER_LOCK_CLASS).Delete(&SchedulerLockModel{})
}
