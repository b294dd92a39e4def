package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

const STATS_CACHE_TTL = 60 * time.Second

// StatisticsService computes dashboard aggregates from stored results
// and snapshots. Everything is cached for a minute; the daily batch is
// the only writer, so staleness is bounded and harmless.
type StatisticsService struct {
	db    *DatabaseService
	clock Clock
	loc   *time.Location
	cache *cache.Cache
}

func NewStatisticsService(db *DatabaseService, quota *QuotaService, clock Clock) *StatisticsService {
	return &StatisticsService{
		db:    db,
		clock: clock,
		loc:   quota.Location(),
		cache: cache.New(STATS_CACHE_TTL, 5*time.Minute),
	}
}

type MainStats struct {
	ProjectID         string  `json:"project_id"`
	KeywordsTracked   int     `json:"keywords_tracked"`
	KeywordsAnalyzed  int     `json:"keywords_analyzed"`
	KeywordsMentioned int     `json:"keywords_mentioned"`
	VisibilityPercent float64 `json:"visibility_percent"`
	AIOverviewRate    float64 `json:"ai_overview_rate"`
	AvgPosition       float64 `json:"avg_position"`
	LastAnalysisDate  string  `json:"last_analysis_date,omitempty"`
}

// MainStats aggregates over the latest stored result of every keyword,
// so keywords analyzed on different days still count once each.
func (s *StatisticsService) MainStats(projectID string) (*MainStats, error) {
	cacheKey := "main:" + projectID
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.(*MainStats), nil
	}

	keywords, err := s.db.ListActiveKeywords(projectID)
	if err != nil {
		return nil, err
	}
	latest, err := s.db.LatestResultPerKeyword(projectID)
	if err != nil {
		return nil, err
	}

	stats := &MainStats{ProjectID: projectID, KeywordsTracked: len(keywords)}
	positionSum, positionCount, aiOverviewCount := 0, 0, 0
	for _, result := range latest {
		stats.KeywordsAnalyzed++
		if result.Mentioned {
			stats.KeywordsMentioned++
		}
		if result.HasAIOverview {
			aiOverviewCount++
		}
		if result.Position != nil {
			positionSum += *result.Position
			positionCount++
		}
		if result.AnalysisDate > stats.LastAnalysisDate {
			stats.LastAnalysisDate = result.AnalysisDate
		}
	}
	if stats.KeywordsAnalyzed > 0 {
		stats.VisibilityPercent = float64(stats.KeywordsMentioned) / float64(stats.KeywordsAnalyzed) * 100
		stats.AIOverviewRate = float64(aiOverviewCount) / float64(stats.KeywordsAnalyzed) * 100
	}
	if positionCount > 0 {
		stats.AvgPosition = float64(positionSum) / float64(positionCount)
	}

	s.cache.Set(cacheKey, stats, cache.DefaultExpiration)
	return stats, nil
}

type VisibilityPoint struct {
	Date              string  `json:"date"`
	KeywordsAnalyzed  int     `json:"keywords_analyzed"`
	KeywordsMentioned int     `json:"keywords_mentioned"`
	VisibilityPercent float64 `json:"visibility_percent"`
	AvgPosition       float64 `json:"avg_position"`
}

// VisibilitySeries returns one point per day over the trailing window,
// read from the per-day snapshots. Days without a snapshot are omitted.
func (s *StatisticsService) VisibilitySeries(projectID string, days int) ([]VisibilityPoint, error) {
	if days <= 0 {
		days = 30
	}
	cacheKey := fmt.Sprintf("series:%s:%d", projectID, days)
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.([]VisibilityPoint), nil
	}

	points := make([]VisibilityPoint, 0, days)
	for offset := days - 1; offset >= 0; offset-- {
		date := DaysAgoDate(s.clock, s.loc, offset)
		snapshot, err := s.db.GetSnapshot(projectID, date)
		if err != nil {
			continue
		}
		points = append(points, VisibilityPoint{
			Date:              date,
			KeywordsAnalyzed:  snapshot.KeywordsAnalyzed,
			KeywordsMentioned: snapshot.KeywordsMentioned,
			VisibilityPercent: snapshot.VisibilityPercent,
			AvgPosition:       snapshot.AvgPosition,
		})
	}

	s.cache.Set(cacheKey, points, cache.DefaultExpiration)
	return points, nil
}

type PositionBuckets struct {
	Top3      int `json:"top_3"`
	Top4To10  int `json:"top_4_10"`
	Top11To20 int `json:"top_11_20"`
	Beyond20  int `json:"beyond_20"`
}

// PositionBuckets counts latest-result positions into the dashboard's
// four ranges. Unmentioned keywords do not appear in any bucket.
func (s *StatisticsService) PositionBuckets(projectID string) (*PositionBuckets, error) {
	cacheKey := "buckets:" + projectID
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.(*PositionBuckets), nil
	}

	latest, err := s.db.LatestResultPerKeyword(projectID)
	if err != nil {
		return nil, err
	}
	buckets := &PositionBuckets{}
	for _, result := range latest {
		if result.Position == nil {
			continue
		}
		switch position := *result.Position; {
		case position <= 3:
			buckets.Top3++
		case position <= 10:
			buckets.Top4To10++
		case position <= 20:
			buckets.Top11To20++
		default:
			buckets.Beyond20++
		}
	}

	s.cache.Set(cacheKey, buckets, cache.DefaultExpiration)
	return buckets, nil
}

type DomainStat struct {
	Domain       string `json:"domain"`
	Count        int    `json:"count"`
	IsOwn        bool   `json:"is_own"`
	IsCompetitor bool   `json:"is_competitor"`
}

// TopDomains ranks the source domains cited across the trailing window
// and annotates the project's own domain and selected competitors.
func (s *StatisticsService) TopDomains(projectID string, days, limit int) ([]DomainStat, error) {
	if days <= 0 {
		days = 30
	}
	if limit <= 0 {
		limit = 20
	}
	cacheKey := fmt.Sprintf("domains:%s:%d:%d", projectID, days, limit)
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.([]DomainStat), nil
	}

	details, err := s.db.GetProjectWithDetails(projectID)
	if err != nil {
		return nil, err
	}
	// analysis_date > sinceDate, so the window is days calendar days
	// ending today
	sinceDate := DaysAgoDate(s.clock, s.loc, days)
	results, err := s.db.ListResults(projectID, sinceDate)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, result := range results {
		for _, domain := range result.Sources() {
			counts[NormalizeDomain(domain)]++
		}
	}

	competitors := make(map[string]bool, len(details.Competitors))
	for _, competitor := range details.Competitors {
		competitors[NormalizeDomain(competitor)] = true
	}

	stats := make([]DomainStat, 0, len(counts))
	for domain, count := range counts {
		stats = append(stats, DomainStat{
			Domain:       domain,
			Count:        count,
			IsOwn:        ownsDomain(domain, details),
			IsCompetitor: competitors[domain],
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Domain < stats[j].Domain
	})
	if len(stats) > limit {
		stats = stats[:limit]
	}

	s.cache.Set(cacheKey, stats, cache.DefaultExpiration)
	return stats, nil
}

// ownsDomain reports whether a normalized cited domain belongs to the
// project: equal to (or a subdomain of) the project domain, or carrying
// the folded brand name or an alias as one of its labels, so brand
// projects without a domain still get the own annotation
// ("laserum.com" for brand "Láserum").
func ownsDomain(domain string, details *ProjectDetails) bool {
	if details.Project.Domain != "" && DomainsEqual(domain, details.Project.Domain) {
		return true
	}
	names := append([]string{details.Project.BrandName}, details.Project.Aliases()...)
	for _, name := range names {
		folded := strings.Join(Tokenize(name), "")
		if folded == "" {
			continue
		}
		for _, label := range strings.Split(domain, ".") {
			if label == folded {
				return true
			}
		}
	}
	return false
}

type ClusterStat struct {
	Cluster           string  `json:"cluster"`
	Keywords          int     `json:"keywords"`
	Mentioned         int     `json:"mentioned"`
	VisibilityPercent float64 `json:"visibility_percent"`
}

// ClusterStats groups latest results by the cluster tags on keywords.
// A keyword in several clusters counts in each of them.
func (s *StatisticsService) ClusterStats(projectID string) ([]ClusterStat, error) {
	cacheKey := "clusters:" + projectID
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.([]ClusterStat), nil
	}

	keywords, err := s.db.ListActiveKeywords(projectID)
	if err != nil {
		return nil, err
	}
	latest, err := s.db.LatestResultPerKeyword(projectID)
	if err != nil {
		return nil, err
	}

	byCluster := make(map[string]*ClusterStat)
	for _, keyword := range keywords {
		result, analyzed := latest[keyword.ID]
		for _, cluster := range keyword.ClusterNames() {
			stat, ok := byCluster[cluster]
			if !ok {
				stat = &ClusterStat{Cluster: cluster}
				byCluster[cluster] = stat
			}
			if !analyzed {
				continue
			}
			stat.Keywords++
			if result.Mentioned {
				stat.Mentioned++
			}
		}
	}

	stats := make([]ClusterStat, 0, len(byCluster))
	for _, stat := range byCluster {
		if stat.Keywords > 0 {
			stat.VisibilityPercent = float64(stat.Mentioned) / float64(stat.Keywords) * 100
		}
		stats = append(stats, *stat)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Cluster < stats[j].Cluster })

	s.cache.Set(cacheKey, stats, cache.DefaultExpiration)
	return stats, nil
}

type LLMProviderStat struct {
	Provider    string  `json:"provider"`
	Queries     int     `json:"queries"`
	Mentions    int     `json:"mentions"`
	MentionRate float64 `json:"mention_rate"`
	TotalTokens int     `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost_usd"`
}

// LLMStats summarizes assistant monitoring per provider over the
// trailing window.
func (s *StatisticsService) LLMStats(projectID string, days int) ([]LLMProviderStat, error) {
	if days <= 0 {
		days = 30
	}
	cacheKey := fmt.Sprintf("llm:%s:%d", projectID, days)
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.([]LLMProviderStat), nil
	}

	sinceDate := DaysAgoDate(s.clock, s.loc, days)
	results, err := s.db.ListLLMResults(projectID, sinceDate)
	if err != nil {
		return nil, err
	}

	byProvider := make(map[string]*LLMProviderStat)
	for _, result := range results {
		stat, ok := byProvider[result.Provider]
		if !ok {
			stat = &LLMProviderStat{Provider: result.Provider}
			byProvider[result.Provider] = stat
		}
		stat.Queries++
		if result.BrandMentioned {
			stat.Mentions++
		}
		stat.TotalTokens += result.Tokens
		stat.TotalCost += result.CostUSD
	}

	stats := make([]LLMProviderStat, 0, len(byProvider))
	for _, stat := range byProvider {
		if stat.Queries > 0 {
			stat.MentionRate = float64(stat.Mentions) / float64(stat.Queries) * 100
		}
		stats = append(stats, *stat)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Provider < stats[j].Provider })

	s.cache.Set(cacheKey, stats, cache.DefaultExpiration)
	return stats, nil
}

// Invalidate drops every cached aggregate of one project. Mutating
// endpoints call it so the dashboard reflects writes immediately.
func (s *StatisticsService) Invalidate(projectID string) {
	for _, key := range []string{"main:" + projectID, "buckets:" + projectID, "clusters:" + projectID} {
		s.cache.Delete(key)
	}
	// windowed keys carry parameters; flushing them individually is not
	// worth tracking, the TTL handles them
}
