package rank

import (
	"log/slog"
	"sort"

	"PaperDigest/internal/domain"
)

// Weights control how quality and relevance combine into the final score.
// Relevance sits on a 0-1 scale and is lifted to 0-10 before weighting.
type Weights struct {
	Quality   float64
	Relevance float64
}

// DefaultWeights favour the model's quality verdict over keyword relevance.
var DefaultWeights = Weights{Quality: 0.7, Relevance: 0.3}

// Ranker merges enrichment outcomes back onto classified papers and orders
// the result by final score.
type Ranker struct {
	weights Weights
	logger  *slog.Logger
}

func New(weights Weights, logger *slog.Logger) *Ranker {
	if weights.Quality == 0 && weights.Relevance == 0 {
		weights = DefaultWeights
	}
	return &Ranker{weights: weights, logger: logger}
}

// Score computes the combined 0-10 score for one merged paper.
func (r *Ranker) Score(paper domain.FinalPaper) float64 {
	return r.weights.Quality*paper.Quality.Overall + r.weights.Relevance*(paper.RelevanceScore*10)
}

// Merge joins outcomes to papers by ID. Papers without an outcome keep
// zero-valued enrichment halves; outcomes without a paper are dropped. A
// non-empty outcome title overrides the fetched one.
func Merge(papers []domain.ClassifiedPaper, outcomes []domain.EnrichmentOutcome) []domain.FinalPaper {
	byID := make(map[string]domain.EnrichmentOutcome, len(outcomes))
	for _, outcome := range outcomes {
		byID[outcome.PaperID] = outcome
	}

	merged := make([]domain.FinalPaper, 0, len(papers))
	for _, paper := range papers {
		final := domain.FinalPaper{ClassifiedPaper: paper}
		if outcome, ok := byID[paper.ID]; ok {
			final.Summary = outcome.Summary
			final.Quality = outcome.Quality
			if outcome.Title != "" {
				final.Title = outcome.Title
			}
		}
		merged = append(merged, final)
	}
	return merged
}

// Rank merges, scores, and sorts. Ordering is final score descending, with
// relevance then recency breaking ties.
func (r *Ranker) Rank(papers []domain.ClassifiedPaper, outcomes []domain.EnrichmentOutcome) []domain.FinalPaper {
	merged := Merge(papers, outcomes)
	for i := range merged {
		merged[i].FinalScore = r.Score(merged[i])
	}

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		if a.RelevanceScore != b.RelevanceScore {
			return a.RelevanceScore > b.RelevanceScore
		}
		return a.Published.After(b.Published)
	})

	if r.logger != nil && len(merged) > 0 {
		r.logger.Debug("ranking complete", "papers", len(merged), "top_score", merged[0].FinalScore)
	}
	return merged
}
