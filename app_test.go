package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupApplication(t *testing.T, db *DatabaseService) *Application {
	clock := FixedClock{Time: time.Date(2026, 9, 15, 12, 0, 0, 0, time.UTC)}
	quota, err := NewQuotaService(db, DEFAULT_BILLING_TIMEZONE, clock)
	require.NoError(t, err)
	return &Application{
		databaseService: db,
		statistics:      NewStatisticsService(db, quota, clock),
		resolver:        NewCompetitorResolver(db),
	}
}

func TestApplication_SetCompetitors(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, PLAN_BASIC)
	project := createTestProject(t, db, user.ID, PROJECT_VARIANT_DOMAIN)
	_, err := db.AddKeywords(project.ID, []string{"alpha"})
	require.NoError(t, err)
	keywords, err := db.ListActiveKeywords(project.ID)
	require.NoError(t, err)
	require.NoError(t, db.UpsertResult(ResultModel{
		ProjectID:    project.ID,
		KeywordID:    keywords[0].ID,
		AnalysisDate: "2026-09-14",
		MediaSources: marshalJSON([]string{"rival.com", "neutral.org"}),
	}))

	app := setupApplication(t, db)
	require.NoError(t, app.SetCompetitors(project.ID, []string{"rival.com"}))

	// Reconciliation runs in the background; historical flags catch up
	// shortly after the save.
	require.Eventually(t, func() bool {
		results, err := db.ListAllResults(project.ID)
		if err != nil || len(results) == 0 {
			return false
		}
		return results[0].Flags()["rival.com"]
	}, 2*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		events, err := db.ListEvents(project.ID, 10)
		if err != nil {
			return false
		}
		for _, event := range events {
			if event.Type == EVENT_COMPETITORS_CHANGED {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)

	t.Run("SameSetIsNoop", func(t *testing.T) {
		before, err := db.ListEvents(project.ID, 50)
		require.NoError(t, err)

		require.NoError(t, app.SetCompetitors(project.ID, []string{"rival.com"}))

		after, err := db.ListEvents(project.ID, 50)
		require.NoError(t, err)
		assert.Len(t, after, len(before))
	})
}
