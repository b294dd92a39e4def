package main

const ENV_DATABASE_URL = "DATABASE_URL"
const ENV_SERPAPI_KEY = "SERPAPI_KEY"
const ENV_OPENAI_API_KEY = "OPENAI_API_KEY"
const ENV_ANTHROPIC_API_KEY = "ANTHROPIC_API_KEY"
const ENV_GOOGLE_API_KEY = "GOOGLE_API_KEY"
const ENV_PERPLEXITY_API_KEY = "PERPLEXITY_API_KEY"
const ENV_TELEGRAM_API_KEY = "TELEGRAM_API_KEY"
const ENV_TELEGRAM_ADMIN_CHAT_ID = "TG_ADMIN_CHAT_ID"
const ENV_RAILWAY_ENVIRONMENT = "RAILWAY_ENVIRONMENT" // "production", "staging" or "development"
const ENV_BILLING_TIMEZONE = "BILLING_TIMEZONE"
const ENV_ANALYSIS_WORKERS = "ANALYSIS_WORKERS"
const ENV_LLM_WORKERS = "LLM_WORKERS"
const ENV_APP_URL = "APP_URL"

// Project variant constants
const PROJECT_VARIANT_DOMAIN = "domain" // tracks a domain inside Google AI Overview
const PROJECT_VARIANT_BRAND = "brand"   // tracks a brand name inside Google AI Mode

// Quota source constants
const QUOTA_SOURCE_SERPAPI = "serpapi"
const QUOTA_SOURCE_MANUAL_AI = "manual_ai"
const QUOTA_SOURCE_AI_MODE = "ai_mode"
const QUOTA_SOURCE_LLM = "llm"

// Operation type constants
const OP_DOMAIN_KEYWORD_ANALYSIS = "domain_keyword_analysis"
const OP_BRAND_KEYWORD_ANALYSIS = "brand_keyword_analysis"
const OP_LLM_QUERY = "llm_query"

const RU_COST_DOMAIN_KEYWORD = 1
const RU_COST_BRAND_KEYWORD = 2
const RU_COST_LLM_PER_1K_TOKENS = 1
const RU_COST_LLM_CAP_PER_CALL = 10

// Plan constants
const PLAN_FREE = "free"
const PLAN_BASIC = "basic"
const PLAN_PREMIUM = "premium"
const PLAN_BUSINESS = "business"
const PLAN_ENTERPRISE = "enterprise"

// Monthly RU allowance per plan, overridable per user
var planAllowances = map[string]int{
	PLAN_FREE:       25,
	PLAN_BASIC:      300,
	PLAN_PREMIUM:    1000,
	PLAN_BUSINESS:   3000,
	PLAN_ENTERPRISE: 10000,
}

// Plans that include LLM assistant monitoring
var llmEnabledPlans = map[string]bool{
	PLAN_PREMIUM:    true,
	PLAN_BUSINESS:   true,
	PLAN_ENTERPRISE: true,
}

// Quota refusal reason constants
const QUOTA_REASON_PLAN_EXHAUSTED = "plan_exhausted"
const QUOTA_REASON_USER_PAUSED = "user_paused"
const QUOTA_REASON_FEATURE_NOT_IN_PLAN = "feature_not_in_plan"

// Event type constants
const EVENT_PROJECT_CREATED = "project_created"
const EVENT_KEYWORDS_ADDED = "keywords_added"
const EVENT_ANALYSIS_COMPLETED = "analysis_completed"
const EVENT_ANALYSIS_FAILED = "analysis_failed"
const EVENT_ANALYSIS_QUOTA_EXCEEDED = "analysis_quota_exceeded"
const EVENT_COMPETITORS_CHANGED = "competitors_changed"
const EVENT_MANUAL_NOTE_ADDED = "manual_note_added"

// Keyword outcome status constants
const OUTCOME_STORED = "stored"
const OUTCOME_SKIPPED = "skipped"
const OUTCOME_FAILED = "failed"
const OUTCOME_QUOTA_SKIPPED = "quota_skipped"

// Per-project limits
const MAX_KEYWORDS_BRAND = 100
const MAX_KEYWORDS_DOMAIN = 200
const MAX_COMPETITORS_DOMAIN = 4
const MAX_COMPETITORS_BRAND = 10
const MAX_CLUSTERS_PER_PROJECT = 10
const MAX_TERMS_PER_CLUSTER = 20

const DEFAULT_BILLING_TIMEZONE = "Europe/Madrid"
const DEFAULT_ANALYSIS_WORKERS = 4
const DEFAULT_LLM_WORKERS = 10

// Events older than this are pruned by the nightly cron
const EVENT_RETENTION_DAYS = 180
