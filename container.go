package main

import (
	"fmt"
	"os"
	"strconv"

	"go.uber.org/dig"

	"github.com/serplens/serplens/llmprovider"
	"github.com/serplens/serplens/serpapi"
)

type Config struct {
	DatabaseURL         string
	SerpAPIKey          string
	OpenAIAPIKey        string
	AnthropicAPIKey     string
	GoogleAPIKey        string
	PerplexityAPIKey    string
	TelegramAPIKey      string
	TelegramAdminChatID int64
	BillingTimezone     string
	AnalysisWorkers     int
	LLMWorkers          int
}

func ProvideConfig() (*Config, error) {
	serpAPIKey := os.Getenv(ENV_SERPAPI_KEY)
	if serpAPIKey == "" {
		return nil, fmt.Errorf("%s environment variable is not set", ENV_SERPAPI_KEY)
	}

	timezone := os.Getenv(ENV_BILLING_TIMEZONE)
	if timezone == "" {
		timezone = DEFAULT_BILLING_TIMEZONE
	}

	adminChatID, _ := strconv.ParseInt(os.Getenv(ENV_TELEGRAM_ADMIN_CHAT_ID), 10, 64)

	analysisWorkers, _ := strconv.Atoi(os.Getenv(ENV_ANALYSIS_WORKERS))
	if analysisWorkers <= 0 {
		analysisWorkers = DEFAULT_ANALYSIS_WORKERS
	}
	llmWorkers, _ := strconv.Atoi(os.Getenv(ENV_LLM_WORKERS))
	if llmWorkers <= 0 {
		llmWorkers = DEFAULT_LLM_WORKERS
	}

	return &Config{
		DatabaseURL:         os.Getenv(ENV_DATABASE_URL),
		SerpAPIKey:          serpAPIKey,
		OpenAIAPIKey:        os.Getenv(ENV_OPENAI_API_KEY),
		AnthropicAPIKey:     os.Getenv(ENV_ANTHROPIC_API_KEY),
		GoogleAPIKey:        os.Getenv(ENV_GOOGLE_API_KEY),
		PerplexityAPIKey:    os.Getenv(ENV_PERPLEXITY_API_KEY),
		TelegramAPIKey:      os.Getenv(ENV_TELEGRAM_API_KEY),
		TelegramAdminChatID: adminChatID,
		BillingTimezone:     timezone,
		AnalysisWorkers:     analysisWorkers,
		LLMWorkers:          llmWorkers,
	}, nil
}

func ProvideClock() Clock {
	return SystemClock
}

func ProvideDatabaseService(config *Config) (*DatabaseService, error) {
	return NewDatabaseService(config.DatabaseURL)
}

func ProvideQuotaService(config *Config, db *DatabaseService, clock Clock) (*QuotaService, error) {
	return NewQuotaService(db, config.BillingTimezone, clock)
}

func ProvideSerpAPIClient(config *Config) *serpapi.Client {
	return serpapi.NewClient(config.SerpAPIKey, serpapi.DEFAULT_BASE_URL, serpapi.DefaultPolicy())
}

func ProvideLLMRegistry(config *Config) *llmprovider.Registry {
	return llmprovider.NewRegistry(llmprovider.Keys{
		OpenAI:     config.OpenAIAPIKey,
		Anthropic:  config.AnthropicAPIKey,
		Google:     config.GoogleAPIKey,
		Perplexity: config.PerplexityAPIKey,
	})
}

func ProvideAnalysisEngine(config *Config, db *DatabaseService, quota *QuotaService, serp *serpapi.Client, clock Clock) *AnalysisEngine {
	return NewAnalysisEngine(db, quota, serp, clock, config.AnalysisWorkers)
}

func ProvideLLMMonitoringService(config *Config, db *DatabaseService, quota *QuotaService, registry *llmprovider.Registry, clock Clock) *LLMMonitoringService {
	return NewLLMMonitoringService(db, quota, registry, clock, config.LLMWorkers)
}

func ProvideStatisticsService(db *DatabaseService, quota *QuotaService, clock Clock) *StatisticsService {
	return NewStatisticsService(db, quota, clock)
}

func ProvideCompetitorResolver(db *DatabaseService) *CompetitorResolver {
	return NewCompetitorResolver(db)
}

func ProvideKeywordImporter(db *DatabaseService) *KeywordImporter {
	return NewKeywordImporter(db)
}

func ProvideAdminNotifier(config *Config) *AdminNotifier {
	return NewAdminNotifier(config.TelegramAPIKey, config.TelegramAdminChatID)
}

func ProvideDailyScheduler(db *DatabaseService, engine *AnalysisEngine, llm *LLMMonitoringService, notifier *AdminNotifier, clock Clock) *DailyScheduler {
	return NewDailyScheduler(db, engine, llm, notifier, clock)
}

func ProvideCronScheduler(scheduler *DailyScheduler, db *DatabaseService, quota *QuotaService) *CronScheduler {
	return NewCronScheduler(scheduler, db, quota)
}

func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	if err := container.Provide(ProvideConfig); err != nil {
		return nil, fmt.Errorf("failed to provide config: %w", err)
	}

	if err := container.Provide(ProvideClock); err != nil {
		return nil, fmt.Errorf("failed to provide clock: %w", err)
	}

	if err := container.Provide(ProvideDatabaseService); err != nil {
		return nil, fmt.Errorf("failed to provide database service: %w", err)
	}

	if err := container.Provide(ProvideQuotaService); err != nil {
		return nil, fmt.Errorf("failed to provide quota service: %w", err)
	}

	if err := container.Provide(ProvideSerpAPIClient); err != nil {
		return nil, fmt.Errorf("failed to provide SerpAPI client: %w", err)
	}

	if err := container.Provide(ProvideLLMRegistry); err != nil {
		return nil, fmt.Errorf("failed to provide LLM registry: %w", err)
	}

	if err := container.Provide(ProvideAnalysisEngine); err != nil {
		return nil, fmt.Errorf("failed to provide analysis engine: %w", err)
	}

	if err := container.Provide(ProvideLLMMonitoringService); err != nil {
		return nil, fmt.Errorf("failed to provide LLM monitoring service: %w", err)
	}

	if err := container.Provide(ProvideStatisticsService); err != nil {
		return nil, fmt.Errorf("failed to provide statistics service: %w", err)
	}

	if err := container.Provide(ProvideCompetitorResolver); err != nil {
		return nil, fmt.Errorf("failed to provide competitor resolver: %w", err)
	}

	if err := container.Provide(ProvideKeywordImporter); err != nil {
		return nil, fmt.Errorf("failed to provide keyword importer: %w", err)
	}

	if err := container.Provide(ProvideAdminNotifier); err != nil {
		return nil, fmt.Errorf("failed to provide admin notifier: %w", err)
	}

	if err := container.Provide(ProvideDailyScheduler); err != nil {
		return nil, fmt.Errorf("failed to provide daily scheduler: %w", err)
	}

	if err := container.Provide(ProvideCronScheduler); err != nil {
		return nil, fmt.Errorf("failed to provide cron scheduler: %w", err)
	}

	if err := container.Provide(NewApplication); err != nil {
		return nil, fmt.Errorf("failed to provide application: %w", err)
	}

	return container, nil
}
