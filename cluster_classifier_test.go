package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClusterConfig(t *testing.T) {
	t.Run("EmptyString", func(t *testing.T) {
		cfg, err := ParseClusterConfig("")
		require.NoError(t, err)
		assert.False(t, cfg.Enabled)
		assert.Empty(t, cfg.Clusters)
	})

	t.Run("ValidJSON", func(t *testing.T) {
		cfg, err := ParseClusterConfig(`{"enabled":true,"clusters":[{"name":"pricing","terms":["price","cost"]}]}`)
		require.NoError(t, err)
		assert.True(t, cfg.Enabled)
		require.Len(t, cfg.Clusters, 1)
		assert.Equal(t, "pricing", cfg.Clusters[0].Name)
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		_, err := ParseClusterConfig("{broken")
		assert.Error(t, err)
	})
}

func TestValidateClusterConfig(t *testing.T) {
	t.Run("DuplicateName", func(t *testing.T) {
		_, err := ValidateClusterConfig(&ClusterConfig{Clusters: []Cluster{
			{Name: "a", Terms: []string{"x"}},
			{Name: "a", Terms: []string{"y"}},
		}})
		assert.Error(t, err)
	})

	t.Run("EmptyTerms", func(t *testing.T) {
		_, err := ValidateClusterConfig(&ClusterConfig{Clusters: []Cluster{
			{Name: "a", Terms: nil},
		}})
		assert.Error(t, err)
	})

	t.Run("TooManyClusters", func(t *testing.T) {
		clusters := make([]Cluster, MAX_CLUSTERS_PER_PROJECT+1)
		for i := range clusters {
			clusters[i] = Cluster{Name: string(rune('a' + i)), Terms: []string{"x"}}
		}
		_, err := ValidateClusterConfig(&ClusterConfig{Clusters: clusters})
		assert.Error(t, err)
	})

	t.Run("WarnsOnEmptyNormalizedTerm", func(t *testing.T) {
		warnings, err := ValidateClusterConfig(&ClusterConfig{Clusters: []Cluster{
			{Name: "a", Terms: []string{"---", "real"}},
		}})
		require.NoError(t, err)
		assert.Len(t, warnings, 1)
	})
}

func TestClassifyKeyword(t *testing.T) {
	cfg := &ClusterConfig{
		Enabled: true,
		Clusters: []Cluster{
			{Name: "pricing", Terms: []string{"price", "cost", "cuánto cuesta"}},
			{Name: "comparison", Terms: []string{"vs", "alternative"}},
		},
	}

	t.Run("SingleCluster", func(t *testing.T) {
		assert.Equal(t, []string{"pricing"}, ClassifyKeyword("laser hair removal price", cfg))
	})

	t.Run("MultiLabel", func(t *testing.T) {
		assigned := ClassifyKeyword("price of brand X vs brand Y", cfg)
		assert.ElementsMatch(t, []string{"pricing", "comparison"}, assigned)
	})

	t.Run("AccentInsensitiveTerm", func(t *testing.T) {
		assert.Equal(t, []string{"pricing"}, ClassifyKeyword("cuanto cuesta la depilación", cfg))
	})

	t.Run("NoMatch", func(t *testing.T) {
		assert.Empty(t, ClassifyKeyword("best clinic madrid", cfg))
	})

	t.Run("DisabledConfig", func(t *testing.T) {
		disabled := &ClusterConfig{Enabled: false, Clusters: cfg.Clusters}
		assert.Empty(t, ClassifyKeyword("price", disabled))
	})

	t.Run("SameInputSameOutput", func(t *testing.T) {
		first := ClassifyKeyword("price vs cost", cfg)
		second := ClassifyKeyword("price vs cost", cfg)
		assert.Equal(t, first, second)
	})
}
