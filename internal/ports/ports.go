package ports

import (
	"context"
	"time"

	"PaperDigest/internal/domain"
)

// PaperSource pulls papers published after the given cutoff from upstream
// providers. The result is a finite, already-materialized list ordered
// descending by recency.
type PaperSource interface {
	Fetch(ctx context.Context, since time.Time) ([]domain.Paper, error)
}

// SeenStore decides which papers were already processed in prior runs.
// Partition is a pure split; papers are recorded only through MarkSeen,
// which callers invoke once the papers were actually delivered.
type SeenStore interface {
	CheckDuplicate(paper domain.Paper) (bool, string)
	MarkSeen(paper domain.Paper) bool
	Partition(papers []domain.Paper) ([]domain.Paper, []domain.Duplicate)
}

// Enricher produces a narrative summary and a quality assessment per paper.
// Every paper resolves to a usable outcome; remote failures never surface.
type Enricher interface {
	Enrich(ctx context.Context, papers []domain.ClassifiedPaper) ([]domain.EnrichmentOutcome, domain.EnrichmentStats)
}

// DigestRenderer formats the final ordered list into deliverable documents.
type DigestRenderer interface {
	RenderHTML(papers []domain.FinalPaper, generatedAt time.Time) (string, error)
	RenderText(papers []domain.FinalPaper, generatedAt time.Time) string
}

// DigestSender delivers the rendered digest to the configured recipients.
type DigestSender interface {
	SendBatch(ctx context.Context, subject, html, text string) domain.DeliveryStats
}

// Notifier streams job lifecycle events to an ops channel (DingTalk, etc.).
type Notifier interface {
	JobStarted(ctx context.Context, daysBack, topN int) error
	JobCompleted(ctx context.Context, stats domain.RunStats) error
	JobFailed(ctx context.Context, reason string) error
}

// Archive persists delivered papers for audit and history.
type Archive interface {
	SaveDelivered(ctx context.Context, paper domain.FinalPaper) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
