package main

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/serplens/serplens/llmprovider"
)

// LLMMonitoringService asks every configured assistant the project's
// tracked queries once per day and records whether the brand shows up
// in the answers. One unit of work is a (query, provider) pair.
type LLMMonitoringService struct {
	db       *DatabaseService
	quota    *QuotaService
	registry *llmprovider.Registry
	clock    Clock
	loc      *time.Location
	workers  int
}

func NewLLMMonitoringService(db *DatabaseService, quota *QuotaService, registry *llmprovider.Registry, clock Clock, workers int) *LLMMonitoringService {
	if workers <= 0 {
		workers = DEFAULT_LLM_WORKERS
	}
	return &LLMMonitoringService{
		db:       db,
		quota:    quota,
		registry: registry,
		clock:    clock,
		loc:      quota.Location(),
		workers:  workers,
	}
}

// ProviderNames lists the registered providers; an empty list means no
// assistant API key is configured.
func (s *LLMMonitoringService) ProviderNames() []string {
	return s.registry.Names()
}

type LLMRunSummary struct {
	ProjectID    string `json:"project_id"`
	AnalysisDate string `json:"analysis_date"`
	Pairs        int    `json:"pairs"`
	Stored       int    `json:"stored"`
	Skipped      int    `json:"skipped"`
	Failed       int    `json:"failed"`
	QuotaSkipped int    `json:"quota_skipped"`
	RUsConsumed  int    `json:"rus_consumed"`
}

type llmWorkItem struct {
	query    LLMQueryModel
	provider llmprovider.Provider
}

// MonitorProject runs all active queries of one project against all
// registered providers. Pairs already answered today are skipped before
// quota is touched; each remaining pair pre-debits one RU and settles
// the token-based remainder after the call.
func (s *LLMMonitoringService) MonitorProject(ctx context.Context, projectID string) (*LLMRunSummary, error) {
	summary := &LLMRunSummary{
		ProjectID:    projectID,
		AnalysisDate: BusinessDate(s.clock, s.loc),
	}

	details, err := s.db.GetProjectWithDetails(projectID)
	if err != nil {
		return summary, err
	}
	project := details.Project
	if !project.IsActive {
		return summary, nil
	}

	queries, err := s.db.ListActiveLLMQueries(projectID)
	if err != nil {
		return summary, err
	}
	providers := s.registry.Providers()
	if len(queries) == 0 || len(providers) == 0 {
		return summary, nil
	}

	var items []llmWorkItem
	for _, query := range queries {
		for _, provider := range providers {
			summary.Pairs++
			if s.db.LLMResultExists(query.ID, provider.Name(), summary.AnalysisDate) {
				summary.Skipped++
				continue
			}
			items = append(items, llmWorkItem{query: query, provider: provider})
		}
	}
	if len(items) == 0 {
		return summary, nil
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.workers)

	for _, item := range items {
		item := item
		group.Go(func() error {
			stored, consumed, quotaDenied := s.runPair(groupCtx, &project, item, summary.AnalysisDate)

			mu.Lock()
			defer mu.Unlock()
			summary.RUsConsumed += consumed
			switch {
			case quotaDenied:
				summary.QuotaSkipped++
			case stored:
				summary.Stored++
			default:
				summary.Failed++
			}
			return nil
		})
	}
	group.Wait()
	return summary, nil
}

// runPair executes one (query, provider) call. The pre-debit of one RU
// happens before the call; the token-based remainder is recorded after,
// capped per call.
func (s *LLMMonitoringService) runPair(ctx context.Context, project *ProjectModel, item llmWorkItem, analysisDate string) (stored bool, consumed int, quotaDenied bool) {
	decision, err := s.quota.CheckAndDebit(project.UserID, 1, QUOTA_SOURCE_LLM, OP_LLM_QUERY)
	if err != nil {
		log.Printf("LLM quota check failed for project %s: %v", project.ID, err)
		return false, 0, false
	}
	if !decision.Allowed {
		return false, 0, true
	}
	consumed = 1

	result, err := item.provider.ExecuteQuery(ctx, item.query.QueryText)
	if err != nil {
		log.Printf("LLM query %q via %s failed: %v", item.query.QueryText, item.provider.Name(), err)
		return false, consumed, false
	}

	actualCost := LLMCallCost(result.Tokens)
	if extra := actualCost - 1; extra > 0 {
		if err := s.quota.RecordOperation(project.UserID, extra, QUOTA_SOURCE_LLM, OP_LLM_QUERY); err != nil {
			log.Printf("LLM cost settle failed for project %s: %v", project.ID, err)
		} else {
			consumed += extra
		}
	}

	row := LLMResultModel{
		ID:             uuid.NewString(),
		ProjectID:      project.ID,
		QueryID:        item.query.ID,
		Provider:       item.provider.Name(),
		AnalysisDate:   analysisDate,
		ResponseText:   result.Content,
		Sources:        marshalJSON(SourceDomains(result.Sources)),
		BrandMentioned: answerMentions(project, result),
		Tokens:         result.Tokens,
		CostUSD:        result.CostUSD,
		LatencyMS:      result.ResponseTimeMS,
		ModelUsed:      result.ModelUsed,
	}
	if err := s.db.UpsertLLMResult(row); err != nil {
		log.Printf("LLM result upsert failed for query %s: %v", item.query.ID, err)
		return false, consumed, false
	}
	return true, consumed, false
}

// answerMentions checks the assistant's answer for the project's brand.
// Domain projects carry no brand name, so the project domain is matched
// instead, first in the answer text, then among the cited sources.
func answerMentions(project *ProjectModel, result *llmprovider.QueryResult) bool {
	if project.BrandName != "" {
		return ContainsBrand(result.Content, project.BrandName, project.Aliases()...).Matched
	}
	if ContainsBrand(result.Content, project.Domain).Matched {
		return true
	}
	mentioned, _ := DomainPosition(SourceDomains(result.Sources), project.Domain)
	return mentioned
}
