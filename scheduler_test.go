package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serplens/serplens/llmprovider"
)

func setupScheduler(t *testing.T, db *DatabaseService, serp SerpSearcher, providers ...llmprovider.Provider) (*DailyScheduler, *QuotaService) {
	clock := FixedClock{Time: time.Date(2026, 9, 15, 12, 0, 0, 0, time.UTC)}
	quota, err := NewQuotaService(db, DEFAULT_BILLING_TIMEZONE, clock)
	require.NoError(t, err)

	engine := NewAnalysisEngine(db, quota, serp, clock, 2)
	registry := llmprovider.NewRegistry(llmprovider.Keys{})
	for _, provider := range providers {
		registry.Register(provider)
	}
	llm := NewLLMMonitoringService(db, quota, registry, clock, 2)
	notifier := NewAdminNotifier("", 0)
	return NewDailyScheduler(db, engine, llm, notifier, clock), quota
}

func TestDailyScheduler_Lock(t *testing.T) {
	db := setupTestDB(t)
	scheduler, _ := setupScheduler(t, db, &fakeSerpClient{})

	ctx := context.Background()

	t.Run("AcquireAndBlock", func(t *testing.T) {
		acquired, err := scheduler.acquireLock(ctx)
		require.NoError(t, err)
		assert.True(t, acquired)

		again, err := scheduler.acquireLock(ctx)
		require.NoError(t, err)
		assert.False(t, again)
	})

	t.Run("ReleaseFreesLock", func(t *testing.T) {
		scheduler.releaseLock()

		acquired, err := scheduler.acquireLock(ctx)
		require.NoError(t, err)
		assert.True(t, acquired)
		scheduler.releaseLock()
	})

	t.Run("StaleLockOverwritten", func(t *testing.T) {
		stale := SchedulerLockModel{
			LockClass:  SCHEDULER_LOCK_CLASS,
			AcquiredAt: time.Now().UTC().Add(-3 * time.Hour),
			ExpiresAt:  time.Now().UTC().Add(-time.Hour),
		}
		require.NoError(t, db.DB().Save(&stale).Error)

		acquired, err := scheduler.acquireLock(ctx)
		require.NoError(t, err)
		assert.True(t, acquired)
		scheduler.releaseLock()
	})
}

func TestDailyScheduler_RunDaily(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, PLAN_BASIC)
	project := createTestProject(t, db, user.ID, PROJECT_VARIANT_DOMAIN)
	_, err := db.AddKeywords(project.ID, []string{"laser madrid"})
	require.NoError(t, err)

	serp := &fakeSerpClient{responses: map[string][]byte{
		"laser madrid": []byte(aiOverviewPayload),
	}}
	scheduler, _ := setupScheduler(t, db, serp)

	summary, err := scheduler.RunDaily(context.Background(), PROJECT_VARIANT_DOMAIN)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Projects)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.KeywordsStored)

	t.Run("OtherVariantSeesNoProjects", func(t *testing.T) {
		summary, err := scheduler.RunDaily(context.Background(), PROJECT_VARIANT_BRAND)
		require.NoError(t, err)
		assert.Equal(t, 0, summary.Projects)
	})

	t.Run("LockReleasedAfterRun", func(t *testing.T) {
		acquired, err := scheduler.acquireLock(context.Background())
		require.NoError(t, err)
		assert.True(t, acquired)
		scheduler.releaseLock()
	})

	t.Run("HeldLockIsCleanNoop", func(t *testing.T) {
		acquired, err := scheduler.acquireLock(context.Background())
		require.NoError(t, err)
		require.True(t, acquired)
		defer scheduler.releaseLock()

		// An overlapping invocation must exit cleanly without writes,
		// not report a failure.
		summary, err := scheduler.RunDaily(context.Background(), PROJECT_VARIANT_DOMAIN)
		require.NoError(t, err)
		assert.True(t, summary.LockHeld)
		assert.Equal(t, 0, summary.Projects)
		assert.Equal(t, 0, summary.KeywordsStored)
	})
}

func TestDailyScheduler_RunLLMDaily(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, PLAN_PREMIUM)
	project := createTestProject(t, db, user.ID, PROJECT_VARIANT_BRAND)
	_, err := db.AddLLMQuery(project.ID, "best clinic?")
	require.NoError(t, err)

	provider := &fakeLLMProvider{name: "openai", content: "Láserum leads", tokens: 300}
	scheduler, quota := setupScheduler(t, db, &fakeSerpClient{}, provider)

	summary, err := scheduler.RunLLMDaily(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Projects)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.KeywordsStored)

	usage, err := quota.Usage(user.ID, quota.WindowStart())
	require.NoError(t, err)
	assert.Equal(t, 1, usage)

	t.Run("HeldLockIsCleanNoop", func(t *testing.T) {
		acquired, err := scheduler.acquireLock(context.Background())
		require.NoError(t, err)
		require.True(t, acquired)
		defer scheduler.releaseLock()

		summary, err := scheduler.RunLLMDaily(context.Background())
		require.NoError(t, err)
		assert.True(t, summary.LockHeld)
		assert.Equal(t, 0, summary.Projects)
	})
}

func TestDailyScheduler_RunLLMDailyRequiresProviders(t *testing.T) {
	db := setupTestDB(t)
	scheduler, _ := setupScheduler(t, db, &fakeSerpClient{})

	_, err := scheduler.RunLLMDaily(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no LLM provider API keys")

	// The misconfiguration check runs before the lock is touched.
	acquired, lockErr := scheduler.acquireLock(context.Background())
	require.NoError(t, lockErr)
	assert.True(t, acquired)
	scheduler.releaseLock()
}
