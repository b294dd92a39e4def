package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type DatabaseService struct {
	db         *gorm.DB
	isPostgres bool
}

// NewDatabaseService opens the relational store. A postgres:// URL uses
// the postgres driver; anything else is treated as a sqlite file path so
// development and tests run without a server.
func NewDatabaseService(databaseURL string) (*DatabaseService, error) {
	var dialector gorm.Dialector
	isPostgres := false
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		dialector = postgres.Open(databaseURL)
		isPostgres = true
	} else {
		if databaseURL == "" {
			databaseURL = "serplens.db"
		}
		dialector = sqlite.Open(databaseURL)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Silent to reduce log noise
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	service := &DatabaseService{db: db, isPostgres: isPostgres}
	if err := service.runMigrations(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return service, nil
}

func (s *DatabaseService) runMigrations() error {
	return s.db.AutoMigrate(
		&UserModel{},
		&ProjectModel{},
		&KeywordModel{},
		&ResultModel{},
		&EventModel{},
		&SnapshotModel{},
		&QuotaEventModel{},
		&LLMQueryModel{},
		&LLMResultModel{},
		&SchedulerLockModel{},
	)
}

func (s *DatabaseService) DB() *gorm.DB {
	return s.db
}

func (s *DatabaseService) IsPostgres() bool {
	return s.isPostgres
}

func (s *DatabaseService) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// User related methods

func (s *DatabaseService) SaveUser(user UserModel) error {
	user.UpdatedAt = time.Now().UTC()
	return s.db.Save(&user).Error
}

func (s *DatabaseService) GetUser(id string) (*UserModel, error) {
	var user UserModel
	err := s.db.Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Project related methods

// CreateProject validates the variant and competitor cap, persists the
// project and appends the project_created event.
func (s *DatabaseService) CreateProject(project ProjectModel) (*ProjectModel, error) {
	switch project.Variant {
	case PROJECT_VARIANT_DOMAIN:
		if project.Domain == "" {
			return nil, fmt.Errorf("domain project requires a domain")
		}
	case PROJECT_VARIANT_BRAND:
		if project.BrandName == "" {
			return nil, fmt.Errorf("brand project requires a brand name")
		}
	default:
		return nil, fmt.Errorf("unknown project variant: %s", project.Variant)
	}
	if len(project.Competitors()) > project.MaxCompetitors() {
		return nil, fmt.Errorf("too many competitors: %d, limit is %d", len(project.Competitors()), project.MaxCompetitors())
	}
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	project.IsActive = true
	project.CreatedAt = time.Now().UTC()
	project.UpdatedAt = project.CreatedAt

	if err := s.db.Create(&project).Error; err != nil {
		return nil, err
	}
	s.AppendEvent(project.ID, project.UserID, EVENT_PROJECT_CREATED, "Project created", project.Name, nil)
	return &project, nil
}

func (s *DatabaseService) GetProject(id string) (*ProjectModel, error) {
	var project ProjectModel
	err := s.db.Where("id = ?", id).First(&project).Error
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// ProjectDetails is a project with its keywords and parsed cluster
// configuration eagerly loaded.
type ProjectDetails struct {
	Project       ProjectModel
	Keywords      []KeywordModel
	Competitors   []string
	ClusterConfig *ClusterConfig
}

func (s *DatabaseService) GetProjectWithDetails(id string) (*ProjectDetails, error) {
	project, err := s.GetProject(id)
	if err != nil {
		return nil, err
	}
	keywords, err := s.ListActiveKeywords(id)
	if err != nil {
		return nil, err
	}
	cfg, err := ParseClusterConfig(project.ClusterConfig)
	if err != nil {
		return nil, err
	}
	return &ProjectDetails{
		Project:       *project,
		Keywords:      keywords,
		Competitors:   project.Competitors(),
		ClusterConfig: cfg,
	}, nil
}

// ProjectWithStats decorates a project with the aggregates the dashboard
// list view needs.
type ProjectWithStats struct {
	ProjectModel
	KeywordCount      int64   `json:"keyword_count"`
	LastAnalysisDate  string  `json:"last_analysis_date,omitempty"`
	VisibilityPercent float64 `json:"visibility_percent"`
}

// ListProjectsByUser returns the user's projects with keyword count,
// last analysis date and 30-day visibility. Ownership checks belong to
// the caller.
func (s *DatabaseService) ListProjectsByUser(userID string, windowStartDate string) ([]ProjectWithStats, error) {
	var projects []ProjectModel
	err := s.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&projects).Error
	if err != nil {
		return nil, err
	}

	result := make([]ProjectWithStats, 0, len(projects))
	for _, project := range projects {
		stats := ProjectWithStats{ProjectModel: project}
		s.db.Model(&KeywordModel{}).Where("project_id = ? AND is_active = ?", project.ID, true).Count(&stats.KeywordCount)

		var last ResultModel
		if err := s.db.Where("project_id = ?", project.ID).Order("analysis_date DESC").First(&last).Error; err == nil {
			stats.LastAnalysisDate = last.AnalysisDate
		}

		var analyzed, mentioned int64
		s.db.Model(&ResultModel{}).Where("project_id = ? AND analysis_date > ?", project.ID, windowStartDate).
			Distinct("keyword_id").Count(&analyzed)
		s.db.Model(&ResultModel{}).Where("project_id = ? AND analysis_date > ? AND mentioned = ?", project.ID, windowStartDate, true).
			Distinct("keyword_id").Count(&mentioned)
		if analyzed > 0 {
			stats.VisibilityPercent = float64(mentioned) / float64(analyzed) * 100
		}
		result = append(result, stats)
	}
	return result, nil
}

// ListActiveProjects returns active, non-paused projects of a variant
// for the daily batch.
func (s *DatabaseService) ListActiveProjects(variant string) ([]ProjectModel, error) {
	var projects []ProjectModel
	err := s.db.Where("variant = ? AND is_active = ? AND is_paused_by_quota = ?", variant, true, false).
		Order("created_at ASC").Find(&projects).Error
	return projects, err
}

// ListProjectsWithLLMQueries returns active projects that have at least
// one active monitored LLM query.
func (s *DatabaseService) ListProjectsWithLLMQueries() ([]ProjectModel, error) {
	var projects []ProjectModel
	err := s.db.Where("is_active = ? AND is_paused_by_quota = ? AND id IN (?)", true, false,
		s.db.Model(&LLMQueryModel{}).Select("project_id").Where("is_active = ?", true)).
		Order("created_at ASC").Find(&projects).Error
	return projects, err
}

// UpdateCompetitors replaces the selected competitor list atomically.
// Returns whether the set changed and the previous list so the caller
// can trigger reconciliation.
func (s *DatabaseService) UpdateCompetitors(projectID string, competitors []string) (bool, []string, error) {
	project, err := s.GetProject(projectID)
	if err != nil {
		return false, nil, err
	}
	if len(competitors) > project.MaxCompetitors() {
		return false, nil, fmt.Errorf("too many competitors: %d, limit is %d", len(competitors), project.MaxCompetitors())
	}

	previous := project.Competitors()
	if sameStringSet(previous, competitors) {
		return false, previous, nil
	}

	err = s.db.Model(&ProjectModel{}).Where("id = ?", projectID).
		Updates(map[string]interface{}{
			"selected_competitors": marshalJSON(competitors),
			"updated_at":           time.Now().UTC(),
		}).Error
	if err != nil {
		return false, nil, err
	}
	return true, previous, nil
}

func sameStringSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[NormalizeDomain(v)] = true
	}
	for _, v := range b {
		if !set[NormalizeDomain(v)] {
			return false
		}
	}
	return true
}

func (s *DatabaseService) SetProjectPaused(projectID string, paused bool, reason string, until *time.Time) error {
	updates := map[string]interface{}{
		"is_paused_by_quota": paused,
		"pause_reason":       reason,
		"paused_until":       until,
		"updated_at":         time.Now().UTC(),
	}
	return s.db.Model(&ProjectModel{}).Where("id = ?", projectID).Updates(updates).Error
}

// DeleteCounts reports how many dependent rows a project delete removed.
type DeleteCounts struct {
	Keywords   int64
	Results    int64
	Events     int64
	Snapshots  int64
	LLMQueries int64
	LLMResults int64
}

// DeleteProject removes a project and everything hanging off it. The
// userID must match the owner; a mismatch is a programming error
// upstream and fails loudly.
func (s *DatabaseService) DeleteProject(projectID, userID string) (*DeleteCounts, error) {
	project, err := s.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	if project.UserID != userID {
		return nil, fmt.Errorf("project %s is not owned by user %s", projectID, userID)
	}

	counts := &DeleteCounts{}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		for _, del := range []struct {
			model interface{}
			count *int64
		}{
			{&KeywordModel{}, &counts.Keywords},
			{&ResultModel{}, &counts.Results},
			{&EventModel{}, &counts.Events},
			{&SnapshotModel{}, &counts.Snapshots},
			{&LLMQueryModel{}, &counts.LLMQueries},
			{&LLMResultModel{}, &counts.LLMResults},
		} {
			res := tx.Where("project_id = ?", projectID).Delete(del.model)
			if res.Error != nil {
				return res.Error
			}
			*del.count = res.RowsAffected
		}
		return tx.Delete(&ProjectModel{}, "id = ?", projectID).Error
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// Keyword related methods

// NormalizeKeyword is the canonical form behind the per-project
// uniqueness constraint: NFC, trimmed, lowercased.
func NormalizeKeyword(keyword string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(keyword)))
}

// AddKeywords inserts the given keywords, deduplicating
// case-insensitively against existing ones and enforcing the variant
// keyword cap. Returns how many were actually added.
func (s *DatabaseService) AddKeywords(projectID string, keywords []string) (int, error) {
	project, err := s.GetProject(projectID)
	if err != nil {
		return 0, err
	}

	var existing []KeywordModel
	if err := s.db.Where("project_id = ?", projectID).Find(&existing).Error; err != nil {
		return 0, err
	}
	seen := make(map[string]bool, len(existing))
	for _, k := range existing {
		seen[k.KeywordNorm] = true
	}

	added := 0
	total := len(existing)
	for _, raw := range keywords {
		text := strings.TrimSpace(norm.NFC.String(raw))
		if text == "" {
			continue
		}
		normText := NormalizeKeyword(text)
		if seen[normText] {
			continue
		}
		if total >= project.MaxKeywords() {
			return added, fmt.Errorf("keyword limit reached: %d", project.MaxKeywords())
		}
		keyword := KeywordModel{
			ID:          uuid.NewString(),
			ProjectID:   projectID,
			Keyword:     text,
			KeywordNorm: normText,
			IsActive:    true,
			CreatedAt:   time.Now().UTC(),
			UpdatedAt:   time.Now().UTC(),
		}
		if err := s.db.Create(&keyword).Error; err != nil {
			return added, err
		}
		seen[normText] = true
		added++
		total++
	}

	if added > 0 {
		s.AppendEvent(projectID, project.UserID, EVENT_KEYWORDS_ADDED, "Keywords added",
			fmt.Sprintf("%d keywords added", added), nil)
	}
	return added, nil
}

// UpdateKeyword changes the keyword text. Returns false when the new
// text collides with an existing keyword of the project.
func (s *DatabaseService) UpdateKeyword(projectID, keywordID, newText string) (bool, error) {
	text := strings.TrimSpace(norm.NFC.String(newText))
	if text == "" {
		return false, fmt.Errorf("keyword text is empty")
	}
	normText := NormalizeKeyword(text)

	var count int64
	s.db.Model(&KeywordModel{}).Where("project_id = ? AND keyword_norm = ? AND id != ?", projectID, normText, keywordID).Count(&count)
	if count > 0 {
		return false, nil
	}

	err := s.db.Model(&KeywordModel{}).Where("id = ? AND project_id = ?", keywordID, projectID).
		Updates(map[string]interface{}{
			"keyword":      text,
			"keyword_norm": normText,
			"updated_at":   time.Now().UTC(),
		}).Error
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteKeyword removes a keyword and returns the deleted text.
func (s *DatabaseService) DeleteKeyword(projectID, keywordID string) (string, error) {
	var keyword KeywordModel
	if err := s.db.Where("id = ? AND project_id = ?", keywordID, projectID).First(&keyword).Error; err != nil {
		return "", err
	}
	if err := s.db.Delete(&KeywordModel{}, "id = ?", keywordID).Error; err != nil {
		return "", err
	}
	return keyword.Keyword, nil
}

func (s *DatabaseService) ListActiveKeywords(projectID string) ([]KeywordModel, error) {
	var keywords []KeywordModel
	err := s.db.Where("project_id = ? AND is_active = ?", projectID, true).Order("created_at ASC").Find(&keywords).Error
	return keywords, err
}

func (s *DatabaseService) UpdateKeywordClusters(keywordID string, clusters []string) error {
	return s.db.Model(&KeywordModel{}).Where("id = ?", keywordID).
		Updates(map[string]interface{}{
			"clusters":   marshalJSON(clusters),
			"updated_at": time.Now().UTC(),
		}).Error
}

// Result related methods

// UpsertResult writes the per-day observation. (project_id, keyword_id,
// analysis_date) is the conflict key; a re-analysis overwrites in full.
func (s *DatabaseService) UpsertResult(result ResultModel) error {
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	result.CreatedAt = now
	result.UpdatedAt = now
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "project_id"}, {Name: "keyword_id"}, {Name: "analysis_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"has_ai_overview", "mentioned", "position", "ai_elements_count",
			"competitor_flags", "media_sources", "raw_payload", "updated_at",
		}),
	}).Create(&result).Error
}

func (s *DatabaseService) ResultExists(projectID, keywordID, analysisDate string) bool {
	var count int64
	s.db.Model(&ResultModel{}).
		Where("project_id = ? AND keyword_id = ? AND analysis_date = ?", projectID, keywordID, analysisDate).
		Count(&count)
	return count > 0
}

// ResultWithKeyword joins a result with its keyword text for dashboard
// listings.
type ResultWithKeyword struct {
	ResultModel
	Keyword string `json:"keyword"`
}

// ListResults returns results newer than sinceDate, newest first, with
// the keyword joined.
func (s *DatabaseService) ListResults(projectID string, sinceDate string) ([]ResultWithKeyword, error) {
	var results []ResultModel
	err := s.db.Where("project_id = ? AND analysis_date > ?", projectID, sinceDate).
		Order("analysis_date DESC, created_at DESC").Find(&results).Error
	if err != nil {
		return nil, err
	}

	keywords, err := s.keywordTextByID(projectID)
	if err != nil {
		return nil, err
	}

	joined := make([]ResultWithKeyword, 0, len(results))
	for _, r := range results {
		joined = append(joined, ResultWithKeyword{ResultModel: r, Keyword: keywords[r.KeywordID]})
	}
	return joined, nil
}

// ListAllResults returns every result of a project, used by competitor
// reconciliation.
func (s *DatabaseService) ListAllResults(projectID string) ([]ResultModel, error) {
	var results []ResultModel
	err := s.db.Where("project_id = ?", projectID).Order("analysis_date ASC").Find(&results).Error
	return results, err
}

// ListResultsForDate returns all results of one analysis day.
func (s *DatabaseService) ListResultsForDate(projectID, analysisDate string) ([]ResultModel, error) {
	var results []ResultModel
	err := s.db.Where("project_id = ? AND analysis_date = ?", projectID, analysisDate).Find(&results).Error
	return results, err
}

// LatestResultPerKeyword returns the newest result of each keyword.
func (s *DatabaseService) LatestResultPerKeyword(projectID string) (map[string]ResultModel, error) {
	var results []ResultModel
	err := s.db.Where("project_id = ?", projectID).Order("analysis_date DESC").Find(&results).Error
	if err != nil {
		return nil, err
	}
	latest := make(map[string]ResultModel)
	for _, r := range results {
		if _, ok := latest[r.KeywordID]; !ok {
			latest[r.KeywordID] = r
		}
	}
	return latest, nil
}

func (s *DatabaseService) UpdateResultCompetitorFlags(resultID string, flags map[string]bool) error {
	return s.db.Model(&ResultModel{}).Where("id = ?", resultID).
		Updates(map[string]interface{}{
			"competitor_flags": marshalJSON(flags),
			"updated_at":       time.Now().UTC(),
		}).Error
}

func (s *DatabaseService) keywordTextByID(projectID string) (map[string]string, error) {
	var keywords []KeywordModel
	if err := s.db.Where("project_id = ?", projectID).Find(&keywords).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]string, len(keywords))
	for _, k := range keywords {
		byID[k.ID] = k.Keyword
	}
	return byID, nil
}

// Event related methods

// AppendEvent writes one audit log row. Events are append-only; errors
// are logged by callers but never block the pipeline.
func (s *DatabaseService) AppendEvent(projectID, userID, eventType, title, description string, payload interface{}) error {
	event := EventModel{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		UserID:      userID,
		Type:        eventType,
		Title:       title,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	if payload != nil {
		event.Payload = marshalJSON(payload)
	}
	return s.db.Create(&event).Error
}

func (s *DatabaseService) ListEvents(projectID string, limit int) ([]EventModel, error) {
	var events []EventModel
	err := s.db.Where("project_id = ?", projectID).Order("created_at DESC").Limit(limit).Find(&events).Error
	return events, err
}

// PruneEvents deletes audit rows older than the retention window and
// returns the number removed.
func (s *DatabaseService) PruneEvents(olderThanDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
	res := s.db.Where("created_at < ?", cutoff).Delete(&EventModel{})
	return res.RowsAffected, res.Error
}

// Snapshot related methods

func (s *DatabaseService) UpsertSnapshot(snapshot SnapshotModel) error {
	if snapshot.ID == "" {
		snapshot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	snapshot.CreatedAt = now
	snapshot.UpdatedAt = now
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "project_id"}, {Name: "snapshot_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"keywords_analyzed", "keywords_mentioned", "ai_overview_count",
			"avg_position", "visibility_percent", "updated_at",
		}),
	}).Create(&snapshot).Error
}

func (s *DatabaseService) GetSnapshot(projectID, snapshotDate string) (*SnapshotModel, error) {
	var snapshot SnapshotModel
	err := s.db.Where("project_id = ? AND snapshot_date = ?", projectID, snapshotDate).First(&snapshot).Error
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// LLM query/result related methods

// AddLLMQuery registers a monitored prompt. Duplicates per project are
// rejected.
func (s *DatabaseService) AddLLMQuery(projectID, queryText string) (*LLMQueryModel, error) {
	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return nil, fmt.Errorf("query text is empty")
	}
	var count int64
	s.db.Model(&LLMQueryModel{}).Where("project_id = ? AND query_text = ?", projectID, queryText).Count(&count)
	if count > 0 {
		return nil, fmt.Errorf("query already exists for project")
	}
	query := LLMQueryModel{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		QueryText: queryText,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.Create(&query).Error; err != nil {
		return nil, err
	}
	return &query, nil
}

func (s *DatabaseService) ListActiveLLMQueries(projectID string) ([]LLMQueryModel, error) {
	var queries []LLMQueryModel
	err := s.db.Where("project_id = ? AND is_active = ?", projectID, true).Order("created_at ASC").Find(&queries).Error
	return queries, err
}

func (s *DatabaseService) LLMResultExists(queryID, provider, analysisDate string) bool {
	var count int64
	s.db.Model(&LLMResultModel{}).
		Where("query_id = ? AND llm_provider = ? AND analysis_date = ?", queryID, provider, analysisDate).
		Count(&count)
	return count > 0
}

func (s *DatabaseService) UpsertLLMResult(result LLMResultModel) error {
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	result.CreatedAt = now
	result.UpdatedAt = now
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "query_id"}, {Name: "llm_provider"}, {Name: "analysis_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"response_text", "sources", "brand_mentioned", "tokens",
			"cost_usd", "latency_ms", "model_used", "updated_at",
		}),
	}).Create(&result).Error
}

func (s *DatabaseService) ListLLMResults(projectID string, sinceDate string) ([]LLMResultModel, error) {
	var results []LLMResultModel
	err := s.db.Where("project_id = ? AND analysis_date > ?", projectID, sinceDate).
		Order("analysis_date DESC").Find(&results).Error
	return results, err
}
