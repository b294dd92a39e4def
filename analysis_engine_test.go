package main

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serplens/serplens/serpapi"
)

type fakeSerpClient struct {
	mu        sync.Mutex
	responses map[string][]byte
	errors    map[string]error
	calls     []string
}

func (f *fakeSerpClient) Search(ctx context.Context, request serpapi.SearchRequest) (*serpapi.SearchResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, request.Query)
	f.mu.Unlock()

	if err, ok := f.errors[request.Query]; ok {
		return nil, err
	}
	body, ok := f.responses[request.Query]
	if !ok {
		body = []byte(`{}`)
	}
	return &serpapi.SearchResponse{StatusCode: 200, RawBody: body}, nil
}

func (f *fakeSerpClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

const aiOverviewPayload = `{
	"ai_overview": {
		"text_blocks": [{"snippet": "Example is a leading provider"}],
		"references": [
			{"link": "https://www.example.com/page"},
			{"link": "https://rival.com/article"}
		]
	}
}`

const aiModePayload = `{
	"text_blocks": [{"snippet": "La mejor opción es Clínica Láserum en Madrid"}],
	"references": [{"link": "https://laserum.com"}]
}`

func setupEngine(t *testing.T, db *DatabaseService, serp SerpSearcher) (*AnalysisEngine, *QuotaService) {
	clock := FixedClock{Time: time.Date(2026, 9, 15, 12, 0, 0, 0, time.UTC)}
	quota, err := NewQuotaService(db, DEFAULT_BILLING_TIMEZONE, clock)
	require.NoError(t, err)
	return NewAnalysisEngine(db, quota, serp, clock, 2), quota
}

func TestAnalysisEngine_DomainProject(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, PLAN_BASIC)
	project := createTestProject(t, db, user.ID, PROJECT_VARIANT_DOMAIN)
	_, _, err := db.UpdateCompetitors(project.ID, []string{"rival.com"})
	require.NoError(t, err)
	_, err = db.AddKeywords(project.ID, []string{"laser madrid", "hair removal"})
	require.NoError(t, err)

	serp := &fakeSerpClient{responses: map[string][]byte{
		"laser madrid": []byte(aiOverviewPayload),
		"hair removal": []byte(aiOverviewPayload),
	}}
	engine, quota := setupEngine(t, db, serp)

	summary := engine.AnalyzeProject(context.Background(), project.ID, AnalysisOptions{})
	require.True(t, summary.Success)
	assert.Equal(t, 2, summary.Stored)
	assert.Equal(t, 2, summary.AIOverviewCount)
	assert.Equal(t, 2, summary.MentionCount)
	assert.Equal(t, 2, summary.RUsConsumed)

	t.Run("ResultClassification", func(t *testing.T) {
		results, err := db.ListResultsForDate(project.ID, summary.AnalysisDate)
		require.NoError(t, err)
		require.Len(t, results, 2)
		for _, result := range results {
			assert.True(t, result.HasAIOverview)
			assert.True(t, result.Mentioned)
			require.NotNil(t, result.Position)
			assert.Equal(t, 1, *result.Position)
			assert.True(t, result.Flags()["rival.com"])
		}
	})

	t.Run("SnapshotRegenerated", func(t *testing.T) {
		snapshot, err := db.GetSnapshot(project.ID, summary.AnalysisDate)
		require.NoError(t, err)
		assert.Equal(t, 2, snapshot.KeywordsAnalyzed)
		assert.Equal(t, 2, snapshot.KeywordsMentioned)
		assert.Equal(t, 100.0, snapshot.VisibilityPercent)
	})

	t.Run("QuotaDebited", func(t *testing.T) {
		usage, err := quota.Usage(user.ID, quota.WindowStart())
		require.NoError(t, err)
		assert.Equal(t, 2, usage)
	})

	t.Run("SecondRunIsIdempotent", func(t *testing.T) {
		callsBefore := serp.callCount()
		again := engine.AnalyzeProject(context.Background(), project.ID, AnalysisOptions{})
		require.True(t, again.Success)
		assert.Equal(t, 2, again.Skipped)
		assert.Equal(t, 0, again.Attempted)
		assert.Equal(t, 0, again.RUsConsumed)
		assert.Equal(t, callsBefore, serp.callCount())

		usage, err := quota.Usage(user.ID, quota.WindowStart())
		require.NoError(t, err)
		assert.Equal(t, 2, usage)
	})

	t.Run("ForceOverwriteReanalyzes", func(t *testing.T) {
		forced := engine.AnalyzeProject(context.Background(), project.ID, AnalysisOptions{ForceOverwrite: true})
		require.True(t, forced.Success)
		assert.Equal(t, 2, forced.Stored)

		results, err := db.ListResultsForDate(project.ID, forced.AnalysisDate)
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})
}

func TestAnalysisEngine_BrandProject(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, PLAN_PREMIUM)
	project := createTestProject(t, db, user.ID, PROJECT_VARIANT_BRAND)
	_, err := db.AddKeywords(project.ID, []string{"mejor depilación madrid"})
	require.NoError(t, err)

	serp := &fakeSerpClient{responses: map[string][]byte{
		"mejor depilación madrid": []byte(aiModePayload),
	}}
	engine, quota := setupEngine(t, db, serp)

	summary := engine.AnalyzeProject(context.Background(), project.ID, AnalysisOptions{})
	require.True(t, summary.Success)
	assert.Equal(t, 1, summary.Stored)
	assert.Equal(t, 1, summary.MentionCount)
	assert.Equal(t, RU_COST_BRAND_KEYWORD, summary.RUsConsumed)

	results, err := db.ListResultsForDate(project.ID, summary.AnalysisDate)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Mentioned)
	require.NotNil(t, results[0].Position)
	assert.Equal(t, 6, *results[0].Position)
	assert.NotEmpty(t, results[0].RawPayload)

	usage, err := quota.Usage(user.ID, quota.WindowStart())
	require.NoError(t, err)
	assert.Equal(t, RU_COST_BRAND_KEYWORD, usage)
}

func TestAnalysisEngine_PartialQuotaTruncates(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, PLAN_FREE)
	project := createTestProject(t, db, user.ID, PROJECT_VARIANT_DOMAIN)

	keywords := make([]string, 5)
	responses := map[string][]byte{}
	for i := range keywords {
		keywords[i] = fmt.Sprintf("keyword %d", i)
		responses[keywords[i]] = []byte(aiOverviewPayload)
	}
	_, err := db.AddKeywords(project.ID, keywords)
	require.NoError(t, err)

	serp := &fakeSerpClient{responses: responses}
	engine, quota := setupEngine(t, db, serp)

	// Burn the free allowance down to 3 RU.
	require.NoError(t, quota.RecordOperation(user.ID, 22, QUOTA_SOURCE_SERPAPI, OP_DOMAIN_KEYWORD_ANALYSIS))

	summary := engine.AnalyzeProject(context.Background(), project.ID, AnalysisOptions{})
	require.True(t, summary.Success)
	assert.Equal(t, 3, summary.Stored)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 3, summary.RUsConsumed)
	assert.Equal(t, 3, serp.callCount())

	quotaSkipped := 0
	for _, outcome := range summary.Details {
		if outcome.Status == OUTCOME_QUOTA_SKIPPED {
			quotaSkipped++
		}
	}
	assert.Equal(t, 2, quotaSkipped)

	t.Run("LedgerStopsAtAllowance", func(t *testing.T) {
		usage, err := quota.Usage(user.ID, quota.WindowStart())
		require.NoError(t, err)
		assert.Equal(t, 25, usage)
	})

	t.Run("ProjectPaused", func(t *testing.T) {
		stored, err := db.GetProject(project.ID)
		require.NoError(t, err)
		assert.True(t, stored.IsPausedByQuota)
		assert.Equal(t, QUOTA_REASON_PLAN_EXHAUSTED, stored.PauseReason)
	})

	t.Run("QuotaEventAppended", func(t *testing.T) {
		events, err := db.ListEvents(project.ID, 20)
		require.NoError(t, err)
		found := false
		for _, event := range events {
			if event.Type == EVENT_ANALYSIS_QUOTA_EXCEEDED {
				found = true
			}
		}
		assert.True(t, found)
	})

	t.Run("PausedProjectSkipsEntirely", func(t *testing.T) {
		again := engine.AnalyzeProject(context.Background(), project.ID, AnalysisOptions{})
		require.True(t, again.Success)
		assert.Equal(t, 0, again.Attempted)

		usage, err := quota.Usage(user.ID, quota.WindowStart())
		require.NoError(t, err)
		assert.Equal(t, 25, usage)
	})
}

func TestAnalysisEngine_FailureIsolation(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, PLAN_BASIC)
	project := createTestProject(t, db, user.ID, PROJECT_VARIANT_DOMAIN)
	_, err := db.AddKeywords(project.ID, []string{"good one", "bad one", "good two"})
	require.NoError(t, err)

	serp := &fakeSerpClient{
		responses: map[string][]byte{
			"good one": []byte(aiOverviewPayload),
			"good two": []byte(aiOverviewPayload),
		},
		errors: map[string]error{
			"bad one": fmt.Errorf("upstream timeout"),
		},
	}
	engine, _ := setupEngine(t, db, serp)

	summary := engine.AnalyzeProject(context.Background(), project.ID, AnalysisOptions{})
	assert.True(t, summary.Success)
	assert.Equal(t, 2, summary.Stored)
	assert.Equal(t, 1, summary.Failed)

	results, err := db.ListResultsForDate(project.ID, summary.AnalysisDate)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestAnalysisEngine_AuthErrorIsFatal(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, PLAN_BASIC)
	project := createTestProject(t, db, user.ID, PROJECT_VARIANT_DOMAIN)
	_, err := db.AddKeywords(project.ID, []string{"only keyword"})
	require.NoError(t, err)

	serp := &fakeSerpClient{
		errors: map[string]error{
			"only keyword": &serpapi.APIError{StatusCode: 401, Body: "invalid api key"},
		},
	}
	engine, _ := setupEngine(t, db, serp)

	summary := engine.AnalyzeProject(context.Background(), project.ID, AnalysisOptions{})
	assert.False(t, summary.Success)
	assert.Contains(t, summary.FatalError, "auth")

	events, err := db.ListEvents(project.ID, 20)
	require.NoError(t, err)
	found := false
	for _, event := range events {
		if event.Type == EVENT_ANALYSIS_FAILED {
			found = true
		}
	}
	assert.True(t, found)
}

func TestAnalysisEngine_ClusterRetag(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, PLAN_BASIC)
	project := ProjectModel{
		UserID:        user.ID,
		Name:          "Clustered",
		Variant:       PROJECT_VARIANT_DOMAIN,
		Domain:        "example.com",
		CountryCode:   "US",
		ClusterConfig: `{"enabled":true,"clusters":[{"name":"pricing","terms":["price"]}]}`,
	}
	created, err := db.CreateProject(project)
	require.NoError(t, err)
	_, err = db.AddKeywords(created.ID, []string{"laser price madrid"})
	require.NoError(t, err)

	serp := &fakeSerpClient{responses: map[string][]byte{
		"laser price madrid": []byte(aiOverviewPayload),
	}}
	engine, _ := setupEngine(t, db, serp)

	summary := engine.AnalyzeProject(context.Background(), created.ID, AnalysisOptions{})
	require.True(t, summary.Success)

	keywords, err := db.ListActiveKeywords(created.ID)
	require.NoError(t, err)
	require.Len(t, keywords, 1)
	assert.Equal(t, []string{"pricing"}, keywords[0].ClusterNames())
}

func TestAnalysisEngine_KeywordSubset(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, PLAN_BASIC)
	project := createTestProject(t, db, user.ID, PROJECT_VARIANT_DOMAIN)
	_, err := db.AddKeywords(project.ID, []string{"first", "second"})
	require.NoError(t, err)
	keywords, err := db.ListActiveKeywords(project.ID)
	require.NoError(t, err)

	serp := &fakeSerpClient{responses: map[string][]byte{
		keywords[0].Keyword: []byte(aiOverviewPayload),
		keywords[1].Keyword: []byte(aiOverviewPayload),
	}}
	engine, _ := setupEngine(t, db, serp)

	summary := engine.AnalyzeProject(context.Background(), project.ID, AnalysisOptions{
		KeywordIDs: []string{keywords[0].ID},
	})
	require.True(t, summary.Success)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Stored)
	assert.Equal(t, 1, serp.callCount())
}
