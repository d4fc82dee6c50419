// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ersauravadhikari/blueberry-go/blueberry"
	"github.com/ersauravadhikari/blueberry-go/blueberry/store"

	"rickybot/internal/classifier"
	"rickybot/internal/client"
	"rickybot/internal/config"
	"rickybot/internal/httpx"
	"rickybot/internal/jobs"
	"rickybot/internal/journal"
	"rickybot/internal/logger"
	"rickybot/internal/metrics"
	"rickybot/internal/models"
	"rickybot/internal/secrets"
	"rickybot/internal/storage"
	"rickybot/internal/tasks"
)

type App struct {
	Config      *config.Config
	Log         *slog.Logger
	BlueBerry   *blueberry.BlueBerry
	Storage     *storage.MongoStorage
	Runner      *jobs.Runner
	TaskManager tasks.TaskManagerInterface

	stopMetrics context.CancelFunc
}

// Initialize builds the full service: job runner, scheduler and dashboard
func Initialize() (*App, error) {
	app, err := InitializeRunner()
	if err != nil {
		return nil, err
	}

	schedulerDBName := app.Config.SchedulerDatabaseName
	blueBerryStore, err := store.NewMongoDB(app.Config.MongoDBURI, schedulerDBName)
	if err != nil {
		app.Storage.Close()
		return nil, fmt.Errorf("failed to initialize BlueBerry MongoDB store: %w", err)
	}

	bb := blueberry.NewBlueBerryInstance(blueBerryStore)
	bb.AddWebOnlyPasswordAuth(app.Config.WebAuthUser, app.Config.WebAuthPassword)
	app.BlueBerry = bb

	app.TaskManager = tasks.NewJobTaskManager(bb, app.Runner, app.Config, app.Log)
	if err := app.TaskManager.RegisterTasks(); err != nil {
		app.Shutdown()
		return nil, fmt.Errorf("failed to register tasks: %w", err)
	}

	return app, nil
}

// InitializeRunner builds only what a single job invocation needs
func InitializeRunner() (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	mongoStore, err := storage.NewMongoStorage(cfg.MongoDBURI, cfg.DatabaseName)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MongoDB storage: %w", err)
	}

	opts := httpx.DefaultOptions()
	opts.Timeout = cfg.RequestTimeout
	httpClient := httpx.NewClient(log, opts)

	predictor := classifier.NewHTTPPredictor(cfg.ClassifierURL, httpClient)

	runner := jobs.NewRunner(jobs.Deps{
		Secrets:    secrets.NewFileSource(cfg.SecretsFile),
		Store:      mongoStore,
		Blobs:      mongoStore.Blobs(),
		Dialer:     client.NewBskyDialer(cfg.BskyHost, httpClient, cfg.APIRateLimit),
		Classifier: classifier.New(httpClient, predictor, log),
		Journal: func(token, repo string) journal.Appender {
			return journal.NewGitHubAppender(httpClient, cfg.GitHubAPIURL, repo, token, cfg.GitHubBranch)
		},
		Files: jobs.LogFiles{
			Follow:    cfg.LogFileFollow,
			Prune:     cfg.LogFilePrune,
			Aggregate: cfg.LogFileAggregate,
			Status:    cfg.LogFileStatus,
		},
		Location: cfg.Location(),
		Log:      log,
	})

	return &App{
		Config:  cfg,
		Log:     log,
		Storage: mongoStore,
		Runner:  runner,
	}, nil
}

// RunOnce executes one job outside the scheduler
func (a *App) RunOnce(ctx context.Context, job string) (models.Result, error) {
	return a.Runner.Run(ctx, job)
}

func (a *App) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.stopMetrics = cancel
	if a.Config.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, a.Config.MetricsAddr, a.Log); err != nil {
				a.Log.Error("metrics server stopped", "error", err)
			}
		}()
	}

	a.Log.Info("initializing task scheduler")
	a.BlueBerry.InitTaskScheduler()

	a.Log.Info("starting API server", "port", a.Config.ServerPort)
	a.BlueBerry.RunAPI(a.Config.ServerPort)

	return nil
}

func (a *App) Shutdown() {
	a.Log.Info("shutting down rickybot")
	if a.stopMetrics != nil {
		a.stopMetrics()
	}
	if a.BlueBerry != nil {
		a.BlueBerry.Shutdown()
	}
	if a.Storage != nil {
		a.Storage.Close()
	}
}
