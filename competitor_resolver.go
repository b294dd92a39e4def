package main

import (
	"log"
)

// CompetitorResolver rewrites competitor_flags on historical results
// when the selected competitor set changes. media_sources is never
// touched; only the flags are derived from it again.
type CompetitorResolver struct {
	db *DatabaseService
}

func NewCompetitorResolver(db *DatabaseService) *CompetitorResolver {
	return &CompetitorResolver{db: db}
}

// Reconcile recomputes the flags of every stored result against the new
// competitor set and appends the competitors_changed event. Flags of
// removed competitors are dropped.
func (r *CompetitorResolver) Reconcile(projectID string, previous, next []string) error {
	results, err := r.db.ListAllResults(projectID)
	if err != nil {
		return err
	}

	for _, result := range results {
		sources := result.Sources()
		flags := make(map[string]bool, len(next))
		for _, competitor := range next {
			mentioned, _ := DomainPosition(sources, competitor)
			flags[NormalizeDomain(competitor)] = mentioned
		}
		if err := r.db.UpdateResultCompetitorFlags(result.ID, flags); err != nil {
			return err
		}
	}

	removed, added := diffCompetitors(previous, next)
	project, err := r.db.GetProject(projectID)
	userID := ""
	if err == nil {
		userID = project.UserID
	}
	return r.db.AppendEvent(projectID, userID, EVENT_COMPETITORS_CHANGED, "Competitors changed", "",
		map[string]interface{}{
			"removed":  removed,
			"added":    added,
			"previous": previous,
			"new":      next,
		})
}

// ReconcileAsync runs the reconciliation in the background after the
// competitor list was saved; the dashboard does not wait for it.
func (r *CompetitorResolver) ReconcileAsync(projectID string, previous, next []string) {
	go func() {
		if err := r.Reconcile(projectID, previous, next); err != nil {
			log.Printf("Competitor reconciliation failed for project %s: %v", projectID, err)
		}
	}()
}

func diffCompetitors(previous, next []string) (removed, added []string) {
	prevSet := make(map[string]bool, len(previous))
	for _, c := range previous {
		prevSet[NormalizeDomain(c)] = true
	}
	nextSet := make(map[string]bool, len(next))
	for _, c := range next {
		nextSet[NormalizeDomain(c)] = true
	}
	for _, c := range previous {
		if !nextSet[NormalizeDomain(c)] {
			removed = append(removed, c)
		}
	}
	for _, c := range next {
		if !prevSet[NormalizeDomain(c)] {
			added = append(added, c)
		}
	}
	return removed, added
}
