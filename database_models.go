package main

import (
	"encoding/json"
	"time"
)

// User model. Accounts are created by the auth layer; the engine only
// reads plan and pause state from it.
type UserModel struct {
	ID                    string     `gorm:"primaryKey;column:id" json:"id"`
	Email                 string     `gorm:"column:email;uniqueIndex" json:"email"`
	Plan                  string     `gorm:"column:plan;default:free" json:"plan"`
	TrialUsed             bool       `gorm:"column:trial_used;default:false" json:"trial_used"`
	MonthlyRUOverride     int        `gorm:"column:monthly_ru_override;default:0" json:"monthly_ru_override"` // 0 means plan default
	AIOverviewPausedUntil *time.Time `gorm:"column:ai_overview_paused_until" json:"ai_overview_paused_until,omitempty"`
	CreatedAt             time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt             time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (UserModel) TableName() string {
	return "users"
}

// Project model. Variant decides which engine analyzes it: "domain"
// projects track Domain inside AI Overview citations, "brand" projects
// track BrandName inside the AI Mode answer text.
type ProjectModel struct {
	ID                  string     `gorm:"primaryKey;column:id" json:"id"`
	UserID              string     `gorm:"column:user_id;index;index:idx_user_paused,priority:1" json:"user_id"`
	Name                string     `gorm:"column:name" json:"name"`
	Variant             string     `gorm:"column:variant;index" json:"variant"` // "domain" or "brand"
	Domain              string     `gorm:"column:domain" json:"domain,omitempty"`
	BrandName           string     `gorm:"column:brand_name" json:"brand_name,omitempty"`
	BrandAliases        string     `gorm:"column:brand_aliases" json:"brand_aliases,omitempty"` // JSON list
	CountryCode         string     `gorm:"column:country_code" json:"country_code"`
	IsActive            bool       `gorm:"column:is_active;default:true" json:"is_active"`
	IsPausedByQuota     bool       `gorm:"column:is_paused_by_quota;default:false;index:idx_user_paused,priority:2" json:"is_paused_by_quota"`
	PausedUntil         *time.Time `gorm:"column:paused_until" json:"paused_until,omitempty"`
	PauseReason         string     `gorm:"column:pause_reason" json:"pause_reason,omitempty"`
	SelectedCompetitors string     `gorm:"column:selected_competitors" json:"selected_competitors,omitempty"` // ordered JSON list of domains
	ClusterConfig       string     `gorm:"column:cluster_config" json:"cluster_config,omitempty"`             // JSON, see ClusterConfig
	CreatedAt           time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (ProjectModel) TableName() string {
	return "projects"
}

func (p *ProjectModel) Competitors() []string {
	return unmarshalStringList(p.SelectedCompetitors)
}

func (p *ProjectModel) SetCompetitors(competitors []string) {
	p.SelectedCompetitors = marshalJSON(competitors)
}

func (p *ProjectModel) Aliases() []string {
	return unmarshalStringList(p.BrandAliases)
}

func (p *ProjectModel) MaxKeywords() int {
	if p.Variant == PROJECT_VARIANT_BRAND {
		return MAX_KEYWORDS_BRAND
	}
	return MAX_KEYWORDS_DOMAIN
}

func (p *ProjectModel) MaxCompetitors() int {
	if p.Variant == PROJECT_VARIANT_BRAND {
		return MAX_COMPETITORS_BRAND
	}
	return MAX_COMPETITORS_DOMAIN
}

// Keyword model. KeywordNorm is the trimmed, NFC, lowercased form used
// for the per-project uniqueness constraint.
type KeywordModel struct {
	ID          string    `gorm:"primaryKey;column:id" json:"id"`
	ProjectID   string    `gorm:"column:project_id;index;uniqueIndex:idx_project_keyword,priority:1" json:"project_id"`
	Keyword     string    `gorm:"column:keyword" json:"keyword"`
	KeywordNorm string    `gorm:"column:keyword_norm;uniqueIndex:idx_project_keyword,priority:2" json:"keyword_norm"`
	IsActive    bool      `gorm:"column:is_active;default:true" json:"is_active"`
	Clusters    string    `gorm:"column:clusters" json:"clusters,omitempty"` // JSON list of assigned cluster names
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (KeywordModel) TableName() string {
	return "keywords"
}

func (k *KeywordModel) ClusterNames() []string {
	return unmarshalStringList(k.Clusters)
}

// Result model, one row per (project, keyword, analysis date). Domain
// and brand variants share the row shape; Mentioned/Position carry
// domain_mentioned/domain_position or brand_mentioned/mention_position
// depending on the project variant.
type ResultModel struct {
	ID              string    `gorm:"primaryKey;column:id" json:"id"`
	ProjectID       string    `gorm:"column:project_id;uniqueIndex:idx_result_day,priority:1;index:idx_date_project,priority:2" json:"project_id"`
	KeywordID       string    `gorm:"column:keyword_id;uniqueIndex:idx_result_day,priority:2" json:"keyword_id"`
	AnalysisDate    string    `gorm:"column:analysis_date;uniqueIndex:idx_result_day,priority:3;index:idx_date_project,priority:1" json:"analysis_date"` // YYYY-MM-DD in billing timezone
	HasAIOverview   bool      `gorm:"column:has_ai_overview" json:"has_ai_overview"`
	Mentioned       bool      `gorm:"column:mentioned" json:"mentioned"`
	Position        *int      `gorm:"column:position" json:"position,omitempty"`
	AIElementsCount int       `gorm:"column:ai_elements_count" json:"ai_elements_count"`
	CompetitorFlags string    `gorm:"column:competitor_flags" json:"competitor_flags,omitempty"` // JSON map domain -> bool
	MediaSources    string    `gorm:"column:media_sources" json:"media_sources,omitempty"`       // ordered JSON list of cited domains
	RawPayload      string    `gorm:"column:raw_payload" json:"raw_payload,omitempty"`
	CreatedAt       time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (ResultModel) TableName() string {
	return "results"
}

func (r *ResultModel) Sources() []string {
	return unmarshalStringList(r.MediaSources)
}

func (r *ResultModel) Flags() map[string]bool {
	flags := map[string]bool{}
	if r.CompetitorFlags != "" {
		json.Unmarshal([]byte(r.CompetitorFlags), &flags)
	}
	return flags
}

// Event model, append-only audit log per project.
type EventModel struct {
	ID          string    `gorm:"primaryKey;column:id" json:"id"`
	ProjectID   string    `gorm:"column:project_id;index" json:"project_id"`
	UserID      string    `gorm:"column:user_id" json:"user_id,omitempty"`
	Type        string    `gorm:"column:type;index" json:"type"`
	Title       string    `gorm:"column:title" json:"title"`
	Description string    `gorm:"column:description" json:"description,omitempty"`
	Payload     string    `gorm:"column:payload" json:"payload,omitempty"` // JSON
	CreatedAt   time.Time `gorm:"column:created_at;index" json:"created_at"`
}

func (EventModel) TableName() string {
	return "events"
}

// Snapshot model, per-day per-project roll-up regenerated after every
// analysis of that day.
type SnapshotModel struct {
	ID                string    `gorm:"primaryKey;column:id" json:"id"`
	ProjectID         string    `gorm:"column:project_id;uniqueIndex:idx_snapshot_day,priority:1" json:"project_id"`
	SnapshotDate      string    `gorm:"column:snapshot_date;uniqueIndex:idx_snapshot_day,priority:2" json:"snapshot_date"`
	KeywordsAnalyzed  int       `gorm:"column:keywords_analyzed" json:"keywords_analyzed"`
	KeywordsMentioned int       `gorm:"column:keywords_mentioned" json:"keywords_mentioned"`
	AIOverviewCount   int       `gorm:"column:ai_overview_count" json:"ai_overview_count"`
	AvgPosition       float64   `gorm:"column:avg_position" json:"avg_position"`
	VisibilityPercent float64   `gorm:"column:visibility_percent" json:"visibility_percent"`
	CreatedAt         time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (SnapshotModel) TableName() string {
	return "snapshots"
}

// QuotaEvent model, append-only RU ledger row. Usage for a billing
// window is SUM(ru_cost) WHERE timestamp >= window start.
type QuotaEventModel struct {
	ID            uint      `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	UserID        string    `gorm:"column:user_id;index:idx_quota_user_ts,priority:1" json:"user_id"`
	Timestamp     time.Time `gorm:"column:timestamp;index;index:idx_quota_user_ts,priority:2" json:"timestamp"`
	Source        string    `gorm:"column:source" json:"source"` // "serpapi", "manual_ai", "ai_mode", "llm"
	OperationType string    `gorm:"column:operation_type" json:"operation_type"`
	RUCost        int       `gorm:"column:ru_cost" json:"ru_cost"`
}

func (QuotaEventModel) TableName() string {
	return "quota_events"
}

// LLMQuery model, a monitored prompt for the LLM-assistant variant.
type LLMQueryModel struct {
	ID        string    `gorm:"primaryKey;column:id" json:"id"`
	ProjectID string    `gorm:"column:project_id;index;uniqueIndex:idx_project_query,priority:1" json:"project_id"`
	QueryText string    `gorm:"column:query_text;uniqueIndex:idx_project_query,priority:2" json:"query_text"`
	IsActive  bool      `gorm:"column:is_active;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (LLMQueryModel) TableName() string {
	return "llm_queries"
}

// LLMResult model, one row per (query, provider, analysis date).
type LLMResultModel struct {
	ID             string    `gorm:"primaryKey;column:id" json:"id"`
	ProjectID      string    `gorm:"column:project_id;index" json:"project_id"`
	QueryID        string    `gorm:"column:query_id;uniqueIndex:idx_llm_result_day,priority:1" json:"query_id"`
	Provider       string    `gorm:"column:llm_provider;uniqueIndex:idx_llm_result_day,priority:2" json:"llm_provider"`
	AnalysisDate   string    `gorm:"column:analysis_date;uniqueIndex:idx_llm_result_day,priority:3" json:"analysis_date"`
	ResponseText   string    `gorm:"column:response_text" json:"response_text"`
	Sources        string    `gorm:"column:sources" json:"sources,omitempty"` // ordered JSON list of cited domains
	BrandMentioned bool      `gorm:"column:brand_mentioned" json:"brand_mentioned"`
	Tokens         int       `gorm:"column:tokens" json:"tokens"`
	CostUSD        float64   `gorm:"column:cost_usd" json:"cost_usd"`
	LatencyMS      int64     `gorm:"column:latency_ms" json:"latency_ms"`
	ModelUsed      string    `gorm:"column:model_used" json:"model_used"`
	CreatedAt      time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (LLMResultModel) TableName() string {
	return "llm_results"
}

// SchedulerLock model backs the advisory lock on non-postgres databases.
type SchedulerLockModel struct {
	LockClass  int       `gorm:"primaryKey;column:lock_class" json:"lock_class"`
	AcquiredAt time.Time `gorm:"column:acquired_at" json:"acquired_at"`
	ExpiresAt  time.Time `gorm:"column:expires_at" json:"expires_at"`
}

func (SchedulerLockModel) TableName() string {
	return "scheduler_locks"
}

func marshalJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalStringList(raw string) []string {
	if raw == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil
	}
	return list
}
