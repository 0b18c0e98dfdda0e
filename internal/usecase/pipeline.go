package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"PaperDigest/internal/classify"
	"PaperDigest/internal/config"
	"PaperDigest/internal/domain"
	"PaperDigest/internal/ports"
	"PaperDigest/internal/rank"
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source     ports.PaperSource
	Seen       ports.SeenStore
	Classifier *classify.Classifier
	Enricher   ports.Enricher
	Ranker     *rank.Ranker
	Renderer   ports.DigestRenderer
	Sender     ports.DigestSender
	Notifier   ports.Notifier
	Archive    ports.Archive

	Filter    config.FilterConfig
	OutputDir string
	Logger    *slog.Logger
}

// RunOptions override per-run behaviour from the CLI.
type RunOptions struct {
	DaysBack  int
	TopN      int
	OnlyNew   bool
	SendEmail bool
	HTMLOut   string
}

// Pipeline implements the daily digest workflow: fetch, dedupe, classify,
// enrich, rank, render, deliver, archive.
type Pipeline struct {
	deps PipelineDeps
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{deps: deps}
}

// Run executes one full digest pass. Enrichment and delivery failures are
// absorbed into the run statistics; only fetch-side errors abort the run.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (domain.RunStats, error) {
	if opts.DaysBack <= 0 {
		opts.DaysBack = 1
	}
	if opts.TopN <= 0 {
		opts.TopN = p.deps.Filter.TopN
	}

	stats := domain.RunStats{
		StartedAt: time.Now().UTC(),
		DaysBack:  opts.DaysBack,
		TopN:      opts.TopN,
		OnlyNew:   opts.OnlyNew,
	}

	if p.deps.Notifier != nil {
		if err := p.deps.Notifier.JobStarted(ctx, opts.DaysBack, opts.TopN); err != nil {
			p.warn("start notification failed", "error", err)
		}
	}

	since := stats.StartedAt.AddDate(0, 0, -opts.DaysBack).Truncate(24 * time.Hour)
	papers, err := p.deps.Source.Fetch(ctx, since)
	if err != nil {
		err = fmt.Errorf("fetch papers: %w", err)
		p.notifyFailure(ctx, err)
		return stats, err
	}
	stats.Fetched = len(papers)
	p.info("papers fetched", "count", len(papers), "since", since.Format("2006-01-02"))

	fresh := papers
	if opts.OnlyNew && p.deps.Seen != nil {
		var duplicates []domain.Duplicate
		fresh, duplicates = p.deps.Seen.Partition(papers)
		stats.Duplicates = len(duplicates)
		for _, dup := range duplicates {
			p.debug("duplicate skipped", "paper", dup.Paper.ID, "first_seen", dup.FirstSeenID)
		}
	}
	stats.Unique = len(fresh)

	kept, rejected := p.deps.Classifier.FilterAndRank(fresh, p.deps.Filter.MinRelevanceScore, classify.SortKey(p.deps.Filter.SortBy))
	stats.Candidates = len(kept)
	stats.Rejected = len(rejected)

	selected := kept
	if len(selected) > opts.TopN {
		selected = selected[:opts.TopN]
	}
	stats.Filtered = len(selected)
	p.info("papers selected", "candidates", stats.Candidates, "rejected", stats.Rejected, "selected", stats.Filtered)

	if len(selected) == 0 {
		stats.FinishedAt = time.Now().UTC()
		p.notifyCompletion(ctx, stats)
		return stats, nil
	}

	outcomes, enrichStats := p.deps.Enricher.Enrich(ctx, selected)
	stats.Enrichment = enrichStats

	final := p.deps.Ranker.Rank(selected, outcomes)

	generatedAt := time.Now().UTC()
	html, err := p.deps.Renderer.RenderHTML(final, generatedAt)
	if err != nil {
		err = fmt.Errorf("render digest: %w", err)
		p.notifyFailure(ctx, err)
		return stats, err
	}
	text := p.deps.Renderer.RenderText(final, generatedAt)

	delivered := true
	if opts.SendEmail && p.deps.Sender != nil {
		subject := fmt.Sprintf("Paper Digest %s - %d papers", generatedAt.Format("2006-01-02"), len(final))
		delivery := p.deps.Sender.SendBatch(ctx, subject, html, text)
		stats.Delivery = &delivery
		delivered = delivery.Success > 0
		p.info("digest delivery", "success", delivery.Success, "failed", delivery.Failed)
	}

	// Papers count as processed only once a digest actually went out, so a
	// failed delivery gets retried by the next run.
	if delivered {
		p.recordDelivered(ctx, final)
	}

	stats.FinishedAt = time.Now().UTC()
	stats.HTMLPath = p.writeArtifact(opts.HTMLOut, "daily", generatedAt, ".html", []byte(html))
	stats.ReportPath = p.writeReport(generatedAt, &stats, final)
	p.notifyCompletion(ctx, stats)
	return stats, nil
}

func (p *Pipeline) recordDelivered(ctx context.Context, papers []domain.FinalPaper) {
	for _, paper := range papers {
		if p.deps.Seen != nil {
			p.deps.Seen.MarkSeen(paper.Paper)
		}
		if p.deps.Archive != nil {
			if err := p.deps.Archive.SaveDelivered(ctx, paper); err != nil {
				p.warn("archive failed", "paper", paper.ID, "error", err)
			}
		}
	}
}

// writeArtifact persists a run artifact and returns its path, or "" when
// writing is disabled or fails. Artifacts never abort a run.
func (p *Pipeline) writeArtifact(explicit, prefix string, at time.Time, ext string, data []byte) string {
	path := explicit
	if path == "" {
		if p.deps.OutputDir == "" {
			return ""
		}
		path = filepath.Join(p.deps.OutputDir, prefix+"_"+at.Format("20060102")+ext)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		p.warn("artifact dir failed", "path", path, "error", err)
		return ""
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		p.warn("artifact write failed", "path", path, "error", err)
		return ""
	}

	p.info("artifact written", "path", path)
	return path
}

func (p *Pipeline) writeReport(at time.Time, stats *domain.RunStats, papers []domain.FinalPaper) string {
	if p.deps.OutputDir == "" {
		return ""
	}

	type reportPaper struct {
		ID         string  `json:"id"`
		Title      string  `json:"title"`
		Topic      string  `json:"topic"`
		Relevance  float64 `json:"relevance_score"`
		Quality    float64 `json:"quality_score"`
		FinalScore float64 `json:"final_score"`
		AbsURL     string  `json:"abs_url"`
	}
	report := struct {
		Stats  domain.RunStats `json:"stats"`
		Papers []reportPaper   `json:"papers"`
	}{Stats: *stats}

	for _, paper := range papers {
		report.Papers = append(report.Papers, reportPaper{
			ID:         paper.ID,
			Title:      paper.Title,
			Topic:      paper.Topic,
			Relevance:  paper.RelevanceScore,
			Quality:    paper.Quality.Overall,
			FinalScore: paper.FinalScore,
			AbsURL:     paper.AbsURL,
		})
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		p.warn("report marshal failed", "error", err)
		return ""
	}

	return p.writeArtifact("", "report", at, ".json", data)
}

func (p *Pipeline) notifyCompletion(ctx context.Context, stats domain.RunStats) {
	if p.deps.Notifier == nil {
		return
	}
	if err := p.deps.Notifier.JobCompleted(ctx, stats); err != nil {
		p.warn("completion notification failed", "error", err)
	}
}

func (p *Pipeline) notifyFailure(ctx context.Context, cause error) {
	if p.deps.Notifier == nil {
		return
	}
	if err := p.deps.Notifier.JobFailed(ctx, cause.Error()); err != nil {
		p.warn("failure notification failed", "error", err)
	}
}

func (p *Pipeline) debug(msg string, args ...any) {
	if p.deps.Logger != nil {
		p.deps.Logger.Debug(msg, args...)
	}
}

func (p *Pipeline) info(msg string, args ...any) {
	if p.deps.Logger != nil {
		p.deps.Logger.Info(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...any) {
	if p.deps.Logger != nil {
		p.deps.Logger.Warn(msg, args...)
	}
}
