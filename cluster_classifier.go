package main

import (
	"encoding/json"
	"fmt"
)

// ClusterConfig is the per-project topic cluster setup stored as JSON on
// the project row.
type ClusterConfig struct {
	Enabled  bool      `json:"enabled"`
	Clusters []Cluster `json:"clusters"`
}

type Cluster struct {
	Name  string   `json:"name"`
	Terms []string `json:"terms"`
}

// ParseClusterConfig decodes the stored JSON. An empty string is a valid
// disabled configuration.
func ParseClusterConfig(raw string) (*ClusterConfig, error) {
	if raw == "" {
		return &ClusterConfig{}, nil
	}
	var cfg ClusterConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("invalid cluster config: %w", err)
	}
	return &cfg, nil
}

// ValidateClusterConfig rejects configurations that cannot classify
// anything sensibly. Warnings are non-fatal and cover terms that
// normalize to nothing.
func ValidateClusterConfig(cfg *ClusterConfig) ([]string, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cluster config is nil")
	}
	if len(cfg.Clusters) > MAX_CLUSTERS_PER_PROJECT {
		return nil, fmt.Errorf("too many clusters: %d, limit is %d", len(cfg.Clusters), MAX_CLUSTERS_PER_PROJECT)
	}

	var warnings []string
	seen := map[string]bool{}
	for _, cluster := range cfg.Clusters {
		if cluster.Name == "" {
			return nil, fmt.Errorf("cluster with empty name")
		}
		if seen[cluster.Name] {
			return nil, fmt.Errorf("duplicate cluster name: %s", cluster.Name)
		}
		seen[cluster.Name] = true
		if len(cluster.Terms) == 0 {
			return nil, fmt.Errorf("cluster %s has no terms", cluster.Name)
		}
		if len(cluster.Terms) > MAX_TERMS_PER_CLUSTER {
			return nil, fmt.Errorf("cluster %s has %d terms, limit is %d", cluster.Name, len(cluster.Terms), MAX_TERMS_PER_CLUSTER)
		}
		for _, term := range cluster.Terms {
			if len(Tokenize(term)) == 0 {
				warnings = append(warnings, fmt.Sprintf("cluster %s: term %q normalizes to nothing and will never match", cluster.Name, term))
			}
		}
	}
	return warnings, nil
}

// ClassifyKeyword assigns a keyword to every cluster with at least one
// term contained in the keyword (accent- and case-insensitive, token
// bounded). Pure function: same input, same output. Zero-or-many
// assignment; a keyword matching two clusters belongs to both.
func ClassifyKeyword(keyword string, cfg *ClusterConfig) []string {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	tokens := Tokenize(keyword)
	if len(tokens) == 0 {
		return nil
	}

	var assigned []string
	for _, cluster := range cfg.Clusters {
		for _, term := range cluster.Terms {
			needle := Tokenize(term)
			if len(needle) == 0 {
				continue
			}
			if findTokenSequence(tokens, needle) > 0 {
				assigned = append(assigned, cluster.Name)
				break
			}
		}
	}
	return assigned
}
