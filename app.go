package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
)

type Application struct {
	config          *Config
	databaseService *DatabaseService
	quotaService    *QuotaService
	engine          *AnalysisEngine
	llmMonitoring   *LLMMonitoringService
	statistics      *StatisticsService
	scheduler       *DailyScheduler
	cronScheduler   *CronScheduler
	importer        *KeywordImporter
	resolver        *CompetitorResolver
	notifier        *AdminNotifier
}

func NewApplication(
	config *Config,
	databaseService *DatabaseService,
	quotaService *QuotaService,
	engine *AnalysisEngine,
	llmMonitoring *LLMMonitoringService,
	statistics *StatisticsService,
	scheduler *DailyScheduler,
	cronScheduler *CronScheduler,
	importer *KeywordImporter,
	resolver *CompetitorResolver,
	notifier *AdminNotifier,
) (*Application, error) {
	return &Application{
		config:          config,
		databaseService: databaseService,
		quotaService:    quotaService,
		engine:          engine,
		llmMonitoring:   llmMonitoring,
		statistics:      statistics,
		scheduler:       scheduler,
		cronScheduler:   cronScheduler,
		importer:        importer,
		resolver:        resolver,
		notifier:        notifier,
	}, nil
}

func (app *Application) Initialize() error {
	log.Println("Database service initialized successfully")
	log.Printf("Billing timezone: %s", app.config.BillingTimezone)
	if app.notifier.Enabled() {
		log.Println("Admin notifications enabled")
	}
	return nil
}

// Run keeps the process alive in serve mode: the in-process cron fires
// the daily batches, a signal stops everything.
func (app *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app.cronScheduler.Start(ctx)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	received := <-signals
	log.Printf("Received signal %s, stopping", received)

	app.cronScheduler.Stop()
	return nil
}

// RunBatch executes one batch kind and exits; deployments with an
// external cron call this through the subcommands.
func (app *Application) RunBatch(ctx context.Context, kind string) error {
	switch kind {
	case COMMAND_DAILY_AI_ANALYSIS:
		_, err := app.scheduler.RunDaily(ctx, PROJECT_VARIANT_DOMAIN)
		return err
	case COMMAND_DAILY_AI_MODE_ANALYSIS:
		_, err := app.scheduler.RunDaily(ctx, PROJECT_VARIANT_BRAND)
		return err
	case COMMAND_DAILY_LLM_MONITORING:
		_, err := app.scheduler.RunLLMDaily(ctx)
		return err
	}
	return nil
}

// SetCompetitors replaces a project's selected competitor set. When the
// set actually changes, historical competitor flags are recomputed in
// the background and the dashboard caches are dropped.
func (app *Application) SetCompetitors(projectID string, competitors []string) error {
	changed, previous, err := app.databaseService.UpdateCompetitors(projectID, competitors)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	app.resolver.ReconcileAsync(projectID, previous, competitors)
	app.statistics.Invalidate(projectID)
	return nil
}

func (app *Application) ImportKeywords(projectID, csvPath string) error {
	result, err := app.importer.ImportFile(projectID, csvPath)
	if err != nil {
		return err
	}
	log.Printf("Import finished: %d rows read, %d added, %d skipped", result.RowsRead, result.Added, result.Skipped)
	return nil
}

func (app *Application) Shutdown() {
	log.Println("Shutting down application...")
	app.databaseService.Close()
	log.Println("Application shutdown completed")
}
