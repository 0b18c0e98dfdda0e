package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/ports"
)

const fallbackSummaryChars = 300

// Options tune the orchestrator's batching and retry behaviour.
type Options struct {
	BatchSize  int
	MaxRetries int
	RetryDelay time.Duration
	BatchPause time.Duration
}

// Orchestrator runs both enrichment operations for every paper through a
// Client, in bounded concurrent batches. A run never fails as a whole:
// individual operations degrade to fallback or error outcomes.
type Orchestrator struct {
	client     Client
	batchSize  int
	maxRetries int
	retryDelay time.Duration
	batchPause time.Duration
	logger     *slog.Logger
}

var _ ports.Enricher = (*Orchestrator)(nil)

// New builds an orchestrator. Zero options get conservative defaults; a
// negative MaxRetries disables retries.
func New(client Client, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 3
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}

	return &Orchestrator{
		client:     client,
		batchSize:  opts.BatchSize,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		batchPause: opts.BatchPause,
		logger:     logger,
	}
}

// Enrich processes papers in batches of batchSize. Output order matches
// input order regardless of per-paper completion order.
func (o *Orchestrator) Enrich(ctx context.Context, papers []domain.ClassifiedPaper) ([]domain.EnrichmentOutcome, domain.EnrichmentStats) {
	start := time.Now()
	outcomes := make([]domain.EnrichmentOutcome, len(papers))

	for offset := 0; offset < len(papers); offset += o.batchSize {
		end := offset + o.batchSize
		if end > len(papers) {
			end = len(papers)
		}
		o.debug("enrichment batch", "batch", offset/o.batchSize+1, "size", end-offset)

		var g errgroup.Group
		for i := offset; i < end; i++ {
			idx := i
			g.Go(func() error {
				outcomes[idx] = o.enrichOne(ctx, papers[idx])
				return nil
			})
		}
		g.Wait()

		if end < len(papers) && o.batchPause > 0 {
			sleep(ctx, o.batchPause)
		}
	}

	stats := tally(outcomes)
	stats.Duration = time.Since(start)
	o.info("enrichment complete",
		"total", stats.Total,
		"summary_success", stats.Summary.Success,
		"summary_fallback", stats.Summary.Fallback,
		"summary_error", stats.Summary.Error,
		"quality_success", stats.Quality.Success,
		"quality_fallback", stats.Quality.Fallback,
		"quality_error", stats.Quality.Error,
		"duration", stats.Duration,
	)
	return outcomes, stats
}

// enrichOne runs the summary and quality operations concurrently for a
// single paper and joins the halves into one outcome.
func (o *Orchestrator) enrichOne(ctx context.Context, paper domain.ClassifiedPaper) domain.EnrichmentOutcome {
	outcome := domain.EnrichmentOutcome{
		PaperID: paper.ID,
		Title:   paper.Title,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		outcome.Quality = o.assessQuality(ctx, paper)
	}()
	outcome.Summary = o.summarize(ctx, paper)
	<-done

	outcome.EnrichedAt = time.Now().UTC()
	return outcome
}

func (o *Orchestrator) summarize(ctx context.Context, paper domain.ClassifiedPaper) (result domain.SummaryResult) {
	defer func() {
		if r := recover(); r != nil {
			o.warn("summary panic", "paper", paper.ID, "panic", r)
			result = domain.SummaryResult{
				Text:   fallbackSummary(paper.Abstract),
				Status: domain.StatusError,
				Err:    fmt.Sprintf("panic: %v", r),
			}
		}
	}()

	var lastErr error
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		text, err := o.client.Summarize(ctx, paper.Title, paper.Abstract)
		if err == nil {
			return domain.SummaryResult{Text: text, Status: domain.StatusSuccess}
		}
		lastErr = err

		if IsAuthoritative(err) || ctx.Err() != nil {
			o.warn("summary failed, not retrying", "paper", paper.ID, "error", err)
			break
		}
		if attempt < o.maxRetries {
			o.debug("summary retry", "paper", paper.ID, "attempt", attempt+1, "error", err)
			sleep(ctx, o.retryDelay*time.Duration(attempt+1))
		}
	}

	return domain.SummaryResult{
		Text:   fallbackSummary(paper.Abstract),
		Status: domain.StatusFallback,
		Err:    lastErr.Error(),
	}
}

func (o *Orchestrator) assessQuality(ctx context.Context, paper domain.ClassifiedPaper) (result domain.QualityResult) {
	defer func() {
		if r := recover(); r != nil {
			o.warn("quality panic", "paper", paper.ID, "panic", r)
			result = fallbackQuality(paper.RelevanceScore, nil)
			result.Status = domain.StatusError
			result.Err = fmt.Sprintf("panic: %v", r)
		}
	}()

	var lastErr error
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		quality, err := o.client.AssessQuality(ctx, paper.Title, paper.Abstract)
		if err == nil {
			return quality
		}
		lastErr = err

		if IsAuthoritative(err) || ctx.Err() != nil {
			o.warn("quality failed, not retrying", "paper", paper.ID, "error", err)
			break
		}
		if attempt < o.maxRetries {
			o.debug("quality retry", "paper", paper.ID, "attempt", attempt+1, "error", err)
			sleep(ctx, o.retryDelay*time.Duration(attempt+1))
		}
	}

	return fallbackQuality(paper.RelevanceScore, lastErr)
}

// fallbackSummary truncates the abstract when the model is unavailable.
func fallbackSummary(abstract string) string {
	runes := []rune(abstract)
	if len(runes) <= fallbackSummaryChars {
		return abstract
	}
	return string(runes[:fallbackSummaryChars]) + "..."
}

// fallbackQuality maps keyword relevance onto a conservative 4-7 score so
// ranking stays meaningful when the model is unavailable.
func fallbackQuality(relevance float64, cause error) domain.QualityResult {
	base := 4.0 + relevance*3.0

	result := domain.QualityResult{
		Innovation:        base,
		Practicality:      base,
		TechnicalDepth:    base,
		ExperimentalRigor: base,
		ImpactPotential:   base,
		Overall:           base,
		Level:             "Fair",
		Reasoning:         "Model assessment unavailable; conservative score derived from keyword relevance.",
		Strengths:         []string{"Matches configured research keywords"},
		Weaknesses:        []string{"Full text not assessed"},
		Status:            domain.StatusFallback,
	}
	if cause != nil {
		result.Err = cause.Error()
	}
	return result
}

func tally(outcomes []domain.EnrichmentOutcome) domain.EnrichmentStats {
	stats := domain.EnrichmentStats{Total: len(outcomes)}
	for _, outcome := range outcomes {
		count(&stats.Summary, outcome.Summary.Status)
		count(&stats.Quality, outcome.Quality.Status)
	}
	return stats
}

func count(op *domain.OpStats, status domain.EnrichmentStatus) {
	switch status {
	case domain.StatusSuccess:
		op.Success++
	case domain.StatusFallback:
		op.Fallback++
	default:
		op.Error++
	}
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (o *Orchestrator) debug(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Debug(msg, args...)
	}
}

func (o *Orchestrator) info(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Info(msg, args...)
	}
}

func (o *Orchestrator) warn(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Warn(msg, args...)
	}
}
