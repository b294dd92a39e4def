package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/serplens/serplens/serpapi"
)

// SerpSearcher is the slice of the SerpAPI client the engine needs;
// tests substitute a canned implementation.
type SerpSearcher interface {
	Search(ctx context.Context, request serpapi.SearchRequest) (*serpapi.SearchResponse, error)
}

// AnalysisEngine runs the per-project visibility pipeline: plan the
// keywords, debit quota, query SerpAPI with bounded concurrency, parse
// and classify each response, upsert per-day results and record events.
type AnalysisEngine struct {
	db      *DatabaseService
	quota   *QuotaService
	serp    SerpSearcher
	clock   Clock
	loc     *time.Location
	workers int
}

func NewAnalysisEngine(db *DatabaseService, quota *QuotaService, serp SerpSearcher, clock Clock, workers int) *AnalysisEngine {
	if workers <= 0 {
		workers = DEFAULT_ANALYSIS_WORKERS
	}
	return &AnalysisEngine{
		db:      db,
		quota:   quota,
		serp:    serp,
		clock:   clock,
		loc:     quota.Location(),
		workers: workers,
	}
}

type AnalysisOptions struct {
	// KeywordIDs restricts the run to a subset; empty means all active
	// keywords.
	KeywordIDs []string
	// ForceOverwrite re-analyzes keywords that already have a result
	// for today. The daily cron never sets it.
	ForceOverwrite bool
}

type KeywordOutcome struct {
	KeywordID string `json:"keyword_id"`
	Keyword   string `json:"keyword"`
	Status    string `json:"status"` // "stored", "skipped", "failed", "quota_skipped"
	Mentioned bool   `json:"mentioned"`
	Position  *int   `json:"position,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RunSummary is the structured outcome of one project analysis. The
// engine never lets per-keyword errors escape; Success is false only on
// project-level fatal conditions.
type RunSummary struct {
	RunID           string           `json:"run_id"`
	ProjectID       string           `json:"project_id"`
	AnalysisDate    string           `json:"analysis_date"`
	Success         bool             `json:"success"`
	FatalError      string           `json:"fatal_error,omitempty"`
	Total           int              `json:"total"`
	Attempted       int              `json:"attempted"`
	Stored          int              `json:"stored"`
	Failed          int              `json:"failed"`
	Skipped         int              `json:"skipped"`
	AIOverviewCount int              `json:"ai_overview_count"`
	MentionCount    int              `json:"mention_count"`
	RUsConsumed     int              `json:"rus_consumed"`
	Details         []KeywordOutcome `json:"details,omitempty"`
}

type variantParams struct {
	opType string
	source string
	cost   int
	engine serpapi.Engine
}

func paramsForVariant(variant string) (variantParams, error) {
	switch variant {
	case PROJECT_VARIANT_DOMAIN:
		return variantParams{
			opType: OP_DOMAIN_KEYWORD_ANALYSIS,
			source: QUOTA_SOURCE_SERPAPI,
			cost:   RU_COST_DOMAIN_KEYWORD,
			engine: serpapi.EngineAIOverview,
		}, nil
	case PROJECT_VARIANT_BRAND:
		return variantParams{
			opType: OP_BRAND_KEYWORD_ANALYSIS,
			source: QUOTA_SOURCE_AI_MODE,
			cost:   RU_COST_BRAND_KEYWORD,
			engine: serpapi.EngineAIMode,
		}, nil
	}
	return variantParams{}, fmt.Errorf("unknown project variant: %s", variant)
}

// AnalyzeProject runs the full pipeline for one project.
func (e *AnalysisEngine) AnalyzeProject(ctx context.Context, projectID string, opts AnalysisOptions) *RunSummary {
	summary := &RunSummary{
		RunID:        uuid.NewString(),
		ProjectID:    projectID,
		AnalysisDate: BusinessDate(e.clock, e.loc),
		Success:      true,
	}

	details, err := e.db.GetProjectWithDetails(projectID)
	if err != nil {
		return e.fatal(summary, fmt.Sprintf("load project: %v", err))
	}
	project := details.Project
	summary.Total = len(details.Keywords)

	if !project.IsActive {
		summary.Skipped = summary.Total
		return summary
	}
	if project.IsPausedByQuota {
		e.appendQuotaEvent(&project, "project is paused by quota")
		summary.Skipped = summary.Total
		return summary
	}

	params, err := paramsForVariant(project.Variant)
	if err != nil {
		return e.fatal(summary, err.Error())
	}

	keywords := filterKeywords(details.Keywords, opts.KeywordIDs)
	summary.Total = len(keywords)

	// Idempotence gate: without force, keywords already analyzed today
	// are skipped before any quota is touched.
	pending := make([]KeywordModel, 0, len(keywords))
	for _, keyword := range keywords {
		if !opts.ForceOverwrite && e.db.ResultExists(projectID, keyword.ID, summary.AnalysisDate) {
			summary.Skipped++
			summary.Details = append(summary.Details, KeywordOutcome{
				KeywordID: keyword.ID, Keyword: keyword.Keyword, Status: OUTCOME_SKIPPED,
			})
			continue
		}
		pending = append(pending, keyword)
	}
	if len(pending) == 0 {
		e.postProcess(&project, details, summary)
		return summary
	}

	// Pre-flight quota: one test-and-debit for the whole batch; partial
	// capacity truncates the keyword list.
	totalCost := len(pending) * params.cost
	decision, err := e.quota.CheckAndDebit(project.UserID, totalCost, params.source, params.opType)
	if err != nil {
		return e.fatal(summary, fmt.Sprintf("quota check: %v", err))
	}
	if decision.Allowed {
		summary.RUsConsumed = totalCost
	} else {
		switch decision.Reason {
		case QUOTA_REASON_USER_PAUSED, QUOTA_REASON_FEATURE_NOT_IN_PLAN:
			e.appendQuotaEvent(&project, decision.Reason)
			summary.Skipped += len(pending)
			return summary
		}

		affordable := decision.Remaining / params.cost
		if affordable == 0 {
			e.appendQuotaEvent(&project, QUOTA_REASON_PLAN_EXHAUSTED)
			e.pauseForQuota(&project)
			summary.Skipped += len(pending)
			return summary
		}

		if err := e.quota.RecordOperation(project.UserID, affordable*params.cost, params.source, params.opType); err != nil {
			return e.fatal(summary, fmt.Sprintf("quota debit: %v", err))
		}
		summary.RUsConsumed = affordable * params.cost
		truncated := len(pending) - affordable
		log.Printf("Project %s: quota allows %d of %d keywords, truncating", projectID, affordable, len(pending))
		for _, keyword := range pending[affordable:] {
			summary.Skipped++
			summary.Details = append(summary.Details, KeywordOutcome{
				KeywordID: keyword.ID, Keyword: keyword.Keyword, Status: OUTCOME_QUOTA_SKIPPED,
			})
		}
		pending = pending[:affordable]
		e.appendQuotaEvent(&project, fmt.Sprintf("partial capacity: %d keywords truncated", truncated))
		e.pauseForQuota(&project)
	}

	e.runKeywords(ctx, &project, details, params, pending, summary)
	e.postProcess(&project, details, summary)

	if summary.FatalError != "" {
		summary.Success = false
		e.db.AppendEvent(project.ID, project.UserID, EVENT_ANALYSIS_FAILED, "Analysis failed", summary.FatalError, nil)
	}
	return summary
}

// runKeywords fans the pending keywords out over the worker pool.
// Per-keyword failures are isolated; only permanent upstream errors
// (auth, malformed request) abort the project.
func (e *AnalysisEngine) runKeywords(ctx context.Context, project *ProjectModel, details *ProjectDetails, params variantParams, pending []KeywordModel, summary *RunSummary) {
	country, known := LookupCountry(project.CountryCode)
	if !known {
		log.Printf("Project %s: unknown country code %q, falling back to US/en/google.com", project.ID, project.CountryCode)
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.workers)

	for _, keyword := range pending {
		keyword := keyword
		group.Go(func() error {
			outcome := e.analyzeKeyword(groupCtx, project, details, params, country, keyword, summary.AnalysisDate)

			mu.Lock()
			defer mu.Unlock()
			summary.Attempted++
			summary.Details = append(summary.Details, outcome.outcome)
			switch outcome.outcome.Status {
			case OUTCOME_STORED:
				summary.Stored++
				if outcome.hasAIOverview {
					summary.AIOverviewCount++
				}
				if outcome.outcome.Mentioned {
					summary.MentionCount++
				}
			case OUTCOME_FAILED:
				summary.Failed++
			}
			if outcome.fatal != nil && summary.FatalError == "" {
				summary.FatalError = outcome.fatal.Error()
				return outcome.fatal // cancels the remaining workers
			}
			return nil
		})
	}
	group.Wait()
}

type keywordResult struct {
	outcome       KeywordOutcome
	hasAIOverview bool
	fatal         error
}

func (e *AnalysisEngine) analyzeKeyword(ctx context.Context, project *ProjectModel, details *ProjectDetails, params variantParams, country CountryParams, keyword KeywordModel, analysisDate string) keywordResult {
	outcome := KeywordOutcome{KeywordID: keyword.ID, Keyword: keyword.Keyword}

	response, err := e.serp.Search(ctx, serpapi.SearchRequest{
		Engine:       params.engine,
		Query:        keyword.Keyword,
		GL:           country.GL,
		HL:           country.HL,
		GoogleDomain: country.GoogleDomain,
	})
	if err != nil {
		outcome.Status = OUTCOME_FAILED
		outcome.Error = err.Error()
		log.Printf("Keyword %q failed: %v", keyword.Keyword, err)

		var apiErr *serpapi.APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == 401 || apiErr.StatusCode == 403) {
			return keywordResult{outcome: outcome, fatal: fmt.Errorf("serpapi auth error: %w", err)}
		}
		return keywordResult{outcome: outcome}
	}

	result := e.buildResult(project, details, keyword, analysisDate, response.RawBody)
	if err := e.db.UpsertResult(*result); err != nil {
		outcome.Status = OUTCOME_FAILED
		outcome.Error = err.Error()
		log.Printf("Keyword %q result upsert failed: %v", keyword.Keyword, err)
		return keywordResult{outcome: outcome}
	}

	outcome.Status = OUTCOME_STORED
	outcome.Mentioned = result.Mentioned
	outcome.Position = result.Position
	return keywordResult{outcome: outcome, hasAIOverview: result.HasAIOverview}
}

// buildResult parses the raw payload per variant and classifies the
// observation against the project's target and competitors.
func (e *AnalysisEngine) buildResult(project *ProjectModel, details *ProjectDetails, keyword KeywordModel, analysisDate string, raw []byte) *ResultModel {
	result := &ResultModel{
		ProjectID:    project.ID,
		KeywordID:    keyword.ID,
		AnalysisDate: analysisDate,
	}

	var observation SerpObservation
	switch project.Variant {
	case PROJECT_VARIANT_DOMAIN:
		observation = ParseAIOverview(raw)
	default:
		observation = ParseAIMode(raw)
		result.RawPayload = string(raw)
	}

	sources := SourceDomains(observation.CitedURLs)
	result.HasAIOverview = observation.HasAIOverview
	result.MediaSources = marshalJSON(sources)
	result.AIElementsCount = len(observation.CitedURLs)

	if project.Variant == PROJECT_VARIANT_DOMAIN {
		mentioned, position := DomainPosition(sources, project.Domain)
		result.Mentioned = mentioned
		if mentioned {
			result.Position = &position
		}
	} else {
		match := ContainsBrand(observation.AnswerText, project.BrandName, project.Aliases()...)
		result.Mentioned = match.Matched
		if match.Matched {
			position := match.Position
			result.Position = &position
		}
	}

	flags := make(map[string]bool, len(details.Competitors))
	for _, competitor := range details.Competitors {
		mentioned, _ := DomainPosition(sources, competitor)
		flags[NormalizeDomain(competitor)] = mentioned
	}
	result.CompetitorFlags = marshalJSON(flags)
	return result
}

// postProcess regenerates the day's snapshot, re-tags keyword clusters
// and appends the analysis_completed event.
func (e *AnalysisEngine) postProcess(project *ProjectModel, details *ProjectDetails, summary *RunSummary) {
	if err := e.regenerateSnapshot(project.ID, summary.AnalysisDate); err != nil {
		log.Printf("Snapshot regeneration failed for project %s: %v", project.ID, err)
	}

	if details.ClusterConfig != nil && details.ClusterConfig.Enabled {
		for _, keyword := range details.Keywords {
			clusters := ClassifyKeyword(keyword.Keyword, details.ClusterConfig)
			if err := e.db.UpdateKeywordClusters(keyword.ID, clusters); err != nil {
				log.Printf("Cluster tagging failed for keyword %s: %v", keyword.ID, err)
			}
		}
	}

	if summary.Attempted > 0 {
		e.db.AppendEvent(project.ID, project.UserID, EVENT_ANALYSIS_COMPLETED, "Analysis completed", "",
			map[string]interface{}{
				"keywords_attempted":  summary.Attempted,
				"keywords_stored":     summary.Stored,
				"keywords_failed":     summary.Failed,
				"ai_overview_present": summary.AIOverviewCount,
				"brand_mentions":      summary.MentionCount,
				"rus_consumed":        summary.RUsConsumed,
			})
	}
}

func (e *AnalysisEngine) regenerateSnapshot(projectID, analysisDate string) error {
	results, err := e.db.ListResultsForDate(projectID, analysisDate)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return nil
	}

	snapshot := SnapshotModel{
		ProjectID:    projectID,
		SnapshotDate: analysisDate,
	}
	positionSum := 0
	positionCount := 0
	for _, result := range results {
		snapshot.KeywordsAnalyzed++
		if result.Mentioned {
			snapshot.KeywordsMentioned++
		}
		if result.HasAIOverview {
			snapshot.AIOverviewCount++
		}
		if result.Position != nil {
			positionSum += *result.Position
			positionCount++
		}
	}
	if positionCount > 0 {
		snapshot.AvgPosition = float64(positionSum) / float64(positionCount)
	}
	if snapshot.KeywordsAnalyzed > 0 {
		snapshot.VisibilityPercent = float64(snapshot.KeywordsMentioned) / float64(snapshot.KeywordsAnalyzed) * 100
	}
	return e.db.UpsertSnapshot(snapshot)
}

func (e *AnalysisEngine) appendQuotaEvent(project *ProjectModel, reason string) {
	err := e.db.AppendEvent(project.ID, project.UserID, EVENT_ANALYSIS_QUOTA_EXCEEDED, "Analysis quota exceeded", reason, nil)
	if err != nil {
		log.Printf("Failed to append quota event for project %s: %v", project.ID, err)
	}
}

func (e *AnalysisEngine) pauseForQuota(project *ProjectModel) {
	if err := e.db.SetProjectPaused(project.ID, true, QUOTA_REASON_PLAN_EXHAUSTED, nil); err != nil {
		log.Printf("Failed to pause project %s: %v", project.ID, err)
	}
}

func (e *AnalysisEngine) fatal(summary *RunSummary, message string) *RunSummary {
	summary.Success = false
	summary.FatalError = message
	return summary
}

func filterKeywords(keywords []KeywordModel, ids []string) []KeywordModel {
	if len(ids) == 0 {
		return keywords
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	filtered := make([]KeywordModel, 0, len(ids))
	for _, keyword := range keywords {
		if want[keyword.ID] {
			filtered = append(filtered, keyword)
		}
	}
	return filtered
}
