package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/perlustro/perlustro/internal/common"
	"github.com/perlustro/perlustro/internal/handlers"
	"github.com/perlustro/perlustro/internal/interfaces"
	"github.com/perlustro/perlustro/internal/models"
	"github.com/perlustro/perlustro/internal/orchestrator"
	"github.com/perlustro/perlustro/internal/queue"
	"github.com/perlustro/perlustro/internal/services/analyzer"
	"github.com/perlustro/perlustro/internal/services/extract"
	"github.com/perlustro/perlustro/internal/services/llm"
	"github.com/perlustro/perlustro/internal/services/objectstore"
	"github.com/perlustro/perlustro/internal/services/report"
	"github.com/perlustro/perlustro/internal/services/status"
	"github.com/perlustro/perlustro/internal/storage/badger"
	"github.com/perlustro/perlustro/internal/workers"
)

// App holds all application components and dependencies.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager *badger.Manager
	ObjectStore    *objectstore.Store
	Downloader     *objectstore.Downloader
	Engine         interfaces.ReasoningEngine
	Extractor      interfaces.ContentExtractor

	Runtime      *queue.Runtime
	Orchestrator *orchestrator.Orchestrator
	Reconciler   *orchestrator.Reconciler
	Aggregator   *status.Aggregator
	Report       *report.Generator

	// HTTP handlers
	APIHandler     *handlers.APIHandler
	StartupHandler *handlers.StartupHandler
	SourceHandler  *handlers.SourceHandler
	JobHandler     *handlers.JobHandler
	ObjectHandler  *handlers.ObjectHandler
}

// New initializes the application with all dependencies. Workers are
// registered but the queue runtime is not started until Start.
func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := app.initServices(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	if err := app.initPipeline(); err != nil {
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	app.initHandlers()

	return app, nil
}

func (a *App) initStorage() error {
	manager, err := badger.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}
	a.StorageManager = manager
	return nil
}

func (a *App) initServices(ctx context.Context) error {
	baseURL := fmt.Sprintf("http://%s:%d", a.Config.Server.Host, a.Config.Server.Port)
	store, err := objectstore.NewStore(a.Config.ObjectStore.Root, baseURL, a.Config.ObjectStore.URLTTL, a.Logger)
	if err != nil {
		return err
	}
	a.ObjectStore = store
	a.Downloader = objectstore.NewDownloader(a.Config.ObjectStore.MaxBodySize, a.Logger)
	a.Extractor = extract.NewService(store, a.Downloader, a.Logger)

	claude, err := llm.NewClaudeClient(&a.Config.LLM.Claude, a.Logger)
	if err != nil {
		return err
	}
	gemini, err := llm.NewGeminiClient(ctx, &a.Config.LLM.Gemini, a.Logger)
	if err != nil {
		return err
	}
	a.Engine = llm.NewEngine(claude, gemini)
	return nil
}

func (a *App) initPipeline() error {
	runtime, err := queue.NewRuntime(a.StorageManager.DB().Badger(), &a.Config.Queue, a.Logger)
	if err != nil {
		return err
	}
	a.Runtime = runtime
	a.Orchestrator = orchestrator.NewOrchestrator(a.StorageManager, runtime, a.Logger)
	a.Reconciler = orchestrator.NewReconciler(a.Orchestrator, &a.Config.Reconciler, a.Logger)
	a.Aggregator = status.NewAggregator(a.StorageManager, a.Logger)
	a.Report = report.NewGenerator(a.StorageManager, a.Logger)

	ingestionAnalyzer := analyzer.NewIngestionService(a.Engine, a.Logger)
	riskAnalyzer := analyzer.NewRiskService(a.Engine, a.Logger)
	competitorAnalyzer := analyzer.NewCompetitorService(a.Engine, analyzer.NewSiteFetcher(a.Downloader, a.Logger), a.Logger)

	ingestion := workers.NewIngestionWorker(a.StorageManager, a.Extractor, ingestionAnalyzer, a.Orchestrator, a.Logger)
	risk := workers.NewRiskWorker(a.StorageManager, riskAnalyzer, a.Logger)
	competitor := workers.NewCompetitorWorker(a.StorageManager, competitorAnalyzer, a.Logger)

	runtime.RegisterHandler(models.JobTypeIngestion, ingestion.Handle)
	runtime.RegisterHandler(models.JobTypeRiskAssessment, risk.Handle)
	runtime.RegisterHandler(models.JobTypeCompetitorAnalysis, competitor.Handle)
	runtime.OnExhausted(a.Orchestrator.HandleExhausted)
	return nil
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.StartupHandler = handlers.NewStartupHandler(a.StorageManager, a.Orchestrator, a.Aggregator, a.Report, a.Logger)
	a.SourceHandler = handlers.NewSourceHandler(a.StorageManager, a.ObjectStore, a.Logger)
	a.JobHandler = handlers.NewJobHandler(a.StorageManager, a.Runtime, a.Logger)
	a.ObjectHandler = handlers.NewObjectHandler(a.ObjectStore, a.Logger)
}

// Start launches the queue runtime and the reconciler sweep.
func (a *App) Start() error {
	if err := a.Runtime.Start(); err != nil {
		return fmt.Errorf("failed to start queue runtime: %w", err)
	}
	if err := a.Reconciler.Start(); err != nil {
		return fmt.Errorf("failed to start reconciler: %w", err)
	}
	return nil
}

// Close shuts the application down in dependency order: no new scheduled
// work, then the worker pools, then storage.
func (a *App) Close(ctx context.Context) error {
	a.Logger.Info().Msg("Shutting down application")

	if a.Reconciler != nil {
		a.Reconciler.Stop()
	}

	var firstErr error
	if a.Runtime != nil {
		if err := a.Runtime.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("Queue runtime shutdown failed")
			firstErr = err
		}
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("Storage shutdown failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	a.Logger.Info().Msg("Application stopped")
	return firstErr
}
