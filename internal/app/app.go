package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"PaperDigest/internal/classify"
	"PaperDigest/internal/config"
	"PaperDigest/internal/dedup"
	"PaperDigest/internal/enrich"
	"PaperDigest/internal/infrastructure/mail"
	"PaperDigest/internal/infrastructure/notify"
	"PaperDigest/internal/infrastructure/render"
	"PaperDigest/internal/infrastructure/scheduler"
	"PaperDigest/internal/infrastructure/source"
	"PaperDigest/internal/infrastructure/storage"
	"PaperDigest/internal/logging"
	"PaperDigest/internal/ports"
	"PaperDigest/internal/rank"
	"PaperDigest/internal/scanner"
	"PaperDigest/internal/usecase"
)

// Application wires configuration into adapters and use cases.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	pipeline *usecase.Pipeline
}

// New builds a runnable application instance. Optional adapters (email,
// webhook, archive) are wired only when their configuration is present;
// a missing enrichment API key is fatal.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	registry := scanner.NewRegistry()
	registry.Register(source.NewAPIScanner(cfg.Arxiv, nil))
	registry.Register(source.NewListScanner(nil))

	sites := cfg.Sites
	if len(sites) == 0 {
		sites = []config.SiteConfig{{Name: "arxiv", Scanner: "arxiv-api"}}
	}
	paperSource := source.NewStrategySource(registry, sites, baseLogger.With("component", "source"))

	seen := dedup.NewStore(cfg.Dedup.CacheFile, baseLogger.With("component", "dedup"))
	seen.Load()

	classifier := classify.New(cfg.Topics, baseLogger.With("component", "classify"))

	client, err := enrich.NewServiceClient(cfg.Enrich, baseLogger.With("component", "enrich.client"))
	if err != nil {
		return nil, fmt.Errorf("enrichment client: %w", err)
	}
	enricher := enrich.New(client, enrich.Options{
		BatchSize:  cfg.Enrich.BatchSize,
		MaxRetries: cfg.Enrich.MaxRetries,
		RetryDelay: time.Duration(cfg.Enrich.RetryDelaySec) * time.Second,
		BatchPause: time.Duration(cfg.Enrich.BatchPauseSec) * time.Second,
	}, baseLogger.With("component", "enrich"))

	ranker := rank.New(rank.Weights{
		Quality:   cfg.Ranking.QualityWeight,
		Relevance: cfg.Ranking.RelevanceWeight,
	}, baseLogger.With("component", "rank"))

	renderer, err := render.NewFormatter(baseLogger.With("component", "render"))
	if err != nil {
		return nil, fmt.Errorf("digest renderer: %w", err)
	}

	var sender ports.DigestSender
	if cfg.Email.Host != "" {
		s, err := mail.NewSender(cfg.Email, baseLogger.With("component", "mail"))
		if err != nil {
			return nil, fmt.Errorf("mail sender: %w", err)
		}
		sender = s
	}

	var notifier ports.Notifier
	if cfg.DingTalk.Enabled && cfg.DingTalk.Webhook != "" {
		notifier = notify.NewDingTalkNotifier(cfg.DingTalk.Webhook)
	}

	var archive ports.Archive
	if cfg.Storage.ArchiveDSN != "" {
		db, err := storage.Open(ctx, cfg.Storage.ArchiveDSN)
		if err != nil {
			baseLogger.Warn("archive unavailable, continuing without it", "error", err)
		} else {
			archive = storage.NewPostgresArchive(db)
		}
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:     paperSource,
		Seen:       seen,
		Classifier: classifier,
		Enricher:   enricher,
		Ranker:     ranker,
		Renderer:   renderer,
		Sender:     sender,
		Notifier:   notifier,
		Archive:    archive,
		Filter:     cfg.Filter,
		OutputDir:  cfg.Storage.OutputDir,
		Logger:     baseLogger.With("component", "pipeline"),
	})

	return &Application{cfg: cfg, logger: baseLogger, pipeline: pipeline}, nil
}

// RunOnce executes a single digest pass.
func (a *Application) RunOnce(ctx context.Context, opts usecase.RunOptions) error {
	stats, err := a.pipeline.Run(ctx, opts)
	if err != nil {
		return err
	}

	a.logger.Info("run finished",
		"fetched", stats.Fetched,
		"unique", stats.Unique,
		"selected", stats.Filtered,
		"duration", stats.FinishedAt.Sub(stats.StartedAt),
	)
	return nil
}

// Schedule blocks running the pipeline daily at the configured time until
// the context is cancelled.
func (a *Application) Schedule(ctx context.Context, opts usecase.RunOptions) error {
	driver, err := scheduler.NewDailyScheduler(a.cfg.Scheduler.ExecuteTime, a.cfg.Scheduler.Location(), a.logger.With("component", "scheduler"))
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	sched := usecase.NewScheduler(driver, a.pipeline, opts, a.logger.With("component", "runner"))
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	<-ctx.Done()
	return sched.Stop(context.Background())
}
