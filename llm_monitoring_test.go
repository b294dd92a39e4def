package main

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serplens/serplens/llmprovider"
)

type fakeLLMProvider struct {
	name    string
	content string
	sources []string
	tokens  int
	fail    bool

	mu    sync.Mutex
	calls int
}

func (f *fakeLLMProvider) Name() string             { return f.name }
func (f *fakeLLMProvider) ModelDisplayName() string { return "fake " + f.name }

func (f *fakeLLMProvider) ExecuteQuery(ctx context.Context, prompt string) (*llmprovider.QueryResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail {
		return nil, fmt.Errorf("provider unavailable")
	}
	sources := f.sources
	if sources == nil {
		sources = []string{"https://laserum.com/about"}
	}
	return &llmprovider.QueryResult{
		Success:   true,
		Content:   f.content,
		Sources:   sources,
		Tokens:    f.tokens,
		ModelUsed: f.name + "-model",
	}, nil
}

func (f *fakeLLMProvider) TestConnection(ctx context.Context) bool { return !f.fail }

func (f *fakeLLMProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func setupLLMService(t *testing.T, db *DatabaseService, providers ...llmprovider.Provider) (*LLMMonitoringService, *QuotaService) {
	clock := FixedClock{Time: time.Date(2026, 9, 15, 12, 0, 0, 0, time.UTC)}
	quota, err := NewQuotaService(db, DEFAULT_BILLING_TIMEZONE, clock)
	require.NoError(t, err)

	registry := llmprovider.NewRegistry(llmprovider.Keys{})
	for _, provider := range providers {
		registry.Register(provider)
	}
	return NewLLMMonitoringService(db, quota, registry, clock, 2), quota
}

func TestLLMMonitoring_StoresPerPairResults(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, PLAN_PREMIUM)
	project := createTestProject(t, db, user.ID, PROJECT_VARIANT_BRAND)
	_, err := db.AddLLMQuery(project.ID, "best laser clinic in Madrid?")
	require.NoError(t, err)
	_, err = db.AddLLMQuery(project.ID, "where to get hair removal?")
	require.NoError(t, err)

	mentioning := &fakeLLMProvider{name: "openai", content: "Clínica Láserum is a top choice", tokens: 1200}
	silent := &fakeLLMProvider{name: "gemini", content: "There are many clinics", tokens: 400}
	service, quota := setupLLMService(t, db, mentioning, silent)

	summary, err := service.MonitorProject(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Pairs)
	assert.Equal(t, 4, summary.Stored)
	assert.Equal(t, 0, summary.Failed)

	t.Run("BrandDetectionPerProvider", func(t *testing.T) {
		results, err := db.ListLLMResults(project.ID, "2026-08-01")
		require.NoError(t, err)
		require.Len(t, results, 4)
		for _, result := range results {
			if result.Provider == "openai" {
				assert.True(t, result.BrandMentioned)
			} else {
				assert.False(t, result.BrandMentioned)
			}
			assert.NotEmpty(t, result.ModelUsed)
		}
	})

	t.Run("TokenCostSettled", func(t *testing.T) {
		// openai pairs cost 2 RU each (1200 tokens), gemini pairs 1 RU.
		usage, err := quota.Usage(user.ID, quota.WindowStart())
		require.NoError(t, err)
		assert.Equal(t, 6, usage)
		assert.Equal(t, 6, summary.RUsConsumed)
	})

	t.Run("SecondRunSkipsExistingPairs", func(t *testing.T) {
		callsBefore := mentioning.callCount()
		again, err := service.MonitorProject(context.Background(), project.ID)
		require.NoError(t, err)
		assert.Equal(t, 4, again.Skipped)
		assert.Equal(t, 0, again.Stored)
		assert.Equal(t, 0, again.RUsConsumed)
		assert.Equal(t, callsBefore, mentioning.callCount())
	})
}

func TestLLMMonitoring_DomainProjectMatchesDomain(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, PLAN_PREMIUM)
	project := createTestProject(t, db, user.ID, PROJECT_VARIANT_DOMAIN)
	_, err := db.AddLLMQuery(project.ID, "best provider?")
	require.NoError(t, err)

	// Domain projects have no brand name; the domain itself counts as
	// the mention, in the answer text or among the cited sources.
	inText := &fakeLLMProvider{name: "openai", content: "Try example.com for this", tokens: 100,
		sources: []string{"https://unrelated.org"}}
	inSources := &fakeLLMProvider{name: "gemini", content: "Several options exist", tokens: 100,
		sources: []string{"https://example.com/page"}}
	noMatch := &fakeLLMProvider{name: "perplexity", content: "Nothing relevant", tokens: 100,
		sources: []string{"https://unrelated.org"}}
	service, _ := setupLLMService(t, db, inText, inSources, noMatch)

	summary, err := service.MonitorProject(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Stored)

	results, err := db.ListLLMResults(project.ID, "2026-08-01")
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, result := range results {
		switch result.Provider {
		case "openai", "gemini":
			assert.True(t, result.BrandMentioned, result.Provider)
		case "perplexity":
			assert.False(t, result.BrandMentioned)
		}
	}
}

func TestLLMMonitoring_ProviderFailureIsolated(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, PLAN_PREMIUM)
	project := createTestProject(t, db, user.ID, PROJECT_VARIANT_BRAND)
	_, err := db.AddLLMQuery(project.ID, "best clinic?")
	require.NoError(t, err)

	healthy := &fakeLLMProvider{name: "openai", content: "Láserum wins", tokens: 100}
	broken := &fakeLLMProvider{name: "perplexity", fail: true}
	service, quota := setupLLMService(t, db, healthy, broken)

	summary, err := service.MonitorProject(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Stored)
	assert.Equal(t, 1, summary.Failed)

	// The failed call keeps its pre-debit: debits precede calls and are
	// never refunded.
	usage, err := quota.Usage(user.ID, quota.WindowStart())
	require.NoError(t, err)
	assert.Equal(t, 2, usage)
}

func TestLLMMonitoring_PlanGate(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, PLAN_BASIC)
	project := createTestProject(t, db, user.ID, PROJECT_VARIANT_BRAND)
	_, err := db.AddLLMQuery(project.ID, "best clinic?")
	require.NoError(t, err)

	provider := &fakeLLMProvider{name: "openai", content: "answer", tokens: 100}
	service, quota := setupLLMService(t, db, provider)

	summary, err := service.MonitorProject(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.QuotaSkipped)
	assert.Equal(t, 0, summary.Stored)
	assert.Equal(t, 0, provider.callCount())

	usage, err := quota.Usage(user.ID, quota.WindowStart())
	require.NoError(t, err)
	assert.Equal(t, 0, usage)
}

func TestLLMMonitoring_NoQueriesIsNoop(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, PLAN_PREMIUM)
	project := createTestProject(t, db, user.ID, PROJECT_VARIANT_BRAND)

	provider := &fakeLLMProvider{name: "openai", content: "answer", tokens: 100}
	service, _ := setupLLMService(t, db, provider)

	summary, err := service.MonitorProject(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Pairs)
	assert.Equal(t, 0, provider.callCount())
}
