package domain

import "time"

// Paper is a core entity describing metadata fetched from a source.
// It is immutable once fetched.
type Paper struct {
	ID         string
	Title      string
	Authors    []string
	Abstract   string
	Published  time.Time
	Updated    time.Time
	Categories []string
	AbsURL     string
	PDFURL     string
	DOI        string
	Source     string
	FetchedAt  time.Time
}

// Duplicate is a paper rejected by the fingerprint store, annotated with
// the identifier of the first occurrence for observability.
type Duplicate struct {
	Paper       Paper
	FirstSeenID string
}

// ClassifiedPaper carries the relevance verdict computed for one run.
// It is derived and never persisted.
type ClassifiedPaper struct {
	Paper

	RelevanceScore  float64
	MatchedKeywords []string
	Topic           string
	TopicScores     map[string]float64
}

// EnrichmentStatus records how an enrichment operation resolved.
type EnrichmentStatus string

const (
	StatusSuccess  EnrichmentStatus = "success"
	StatusFallback EnrichmentStatus = "fallback"
	StatusError    EnrichmentStatus = "error"
)

// SummaryResult is the narrative-summary half of an enrichment outcome.
type SummaryResult struct {
	Text   string
	Status EnrichmentStatus
	Err    string
}

// QualityResult is the multi-dimensional assessment half of an enrichment
// outcome. All scores live on a 1-10 scale.
type QualityResult struct {
	Innovation        float64
	Practicality      float64
	TechnicalDepth    float64
	ExperimentalRigor float64
	ImpactPotential   float64
	Overall           float64
	Level             string
	Reasoning         string
	Strengths         []string
	Weaknesses        []string
	Status            EnrichmentStatus
	Err               string
}

// EnrichmentOutcome holds both operation results for one paper. The two
// halves are independent: one may succeed while the other falls back.
type EnrichmentOutcome struct {
	PaperID    string
	Title      string
	Summary    SummaryResult
	Quality    QualityResult
	EnrichedAt time.Time
}

// FinalPaper is the merged, read-only record consumed by rendering and
// delivery. FinalScore combines quality and relevance on a 0-10 scale.
type FinalPaper struct {
	ClassifiedPaper

	Summary    SummaryResult
	Quality    QualityResult
	FinalScore float64
}

// OpStats tallies terminal statuses for one enrichment operation.
type OpStats struct {
	Success  int
	Fallback int
	Error    int
}

// EnrichmentStats aggregates a whole enrichment pass.
type EnrichmentStats struct {
	Total    int
	Summary  OpStats
	Quality  OpStats
	Duration time.Duration
}

// DeliveryStats reports the outcome of a batch email send.
type DeliveryStats struct {
	Total         int
	Success       int
	Failed        int
	FailedReasons map[string]string
}

// RunStats is the full per-run report. A run always completes with one of
// these regardless of how many individual enrichment calls failed.
type RunStats struct {
	StartedAt  time.Time
	FinishedAt time.Time

	DaysBack int
	TopN     int
	OnlyNew  bool

	Fetched    int
	Unique     int
	Duplicates int
	Candidates int
	Filtered   int
	Rejected   int

	Enrichment EnrichmentStats
	Delivery   *DeliveryStats

	HTMLPath   string
	ReportPath string
}
