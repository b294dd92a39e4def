package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordImporter_Import(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, PLAN_BASIC)
	project := createTestProject(t, db, user.ID, PROJECT_VARIANT_DOMAIN)
	importer := NewKeywordImporter(db)

	t.Run("HeaderAndDuplicatesSkipped", func(t *testing.T) {
		csv := "keyword\nlaser madrid\nLaser Madrid\nhair removal\n\n"
		result, err := importer.Import(project.ID, strings.NewReader(csv))
		require.NoError(t, err)
		assert.Equal(t, 2, result.Added)
		assert.True(t, result.Skipped >= 2)

		keywords, err := db.ListActiveKeywords(project.ID)
		require.NoError(t, err)
		assert.Len(t, keywords, 2)
	})

	t.Run("ExtraColumnsIgnored", func(t *testing.T) {
		csv := "clinic prices,120,extra\n"
		result, err := importer.Import(project.ID, strings.NewReader(csv))
		require.NoError(t, err)
		assert.Equal(t, 1, result.Added)
	})

	t.Run("MissingFileErrors", func(t *testing.T) {
		_, err := importer.ImportFile(project.ID, "does_not_exist.csv")
		assert.Error(t, err)
	})
}
