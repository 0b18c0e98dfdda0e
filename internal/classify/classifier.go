package classify

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"PaperDigest/internal/config"
	"PaperDigest/internal/domain"
)

// SortKey selects the ordering applied by FilterAndRank.
type SortKey string

const (
	SortByRelevance SortKey = "relevance"
	SortByPublished SortKey = "published"
	SortByTopic     SortKey = "topic"
)

// Rejected pairs a filtered-out paper with a human-readable reason.
type Rejected struct {
	Paper  domain.Paper
	Reason string
}

type topic struct {
	name        string
	description string
	weight      float64
	keywords    []string
	patterns    []*regexp.Regexp
}

// Classifier scores papers against an ordered table of weighted
// topic-keyword groups. It performs no external calls and is fully
// deterministic given its topic table.
type Classifier struct {
	topics []topic
	logger *slog.Logger
}

// New compiles whole-word patterns for every keyword in the table.
// Table order is preserved: the first-defined topic wins score ties.
func New(topics []config.TopicConfig, logger *slog.Logger) *Classifier {
	compiled := make([]topic, 0, len(topics))
	for _, t := range topics {
		entry := topic{
			name:        t.Name,
			description: t.Description,
			weight:      t.Weight,
			keywords:    t.Keywords,
			patterns:    make([]*regexp.Regexp, 0, len(t.Keywords)),
		}
		for _, keyword := range t.Keywords {
			pattern := `\b` + regexp.QuoteMeta(strings.ToLower(keyword)) + `\b`
			entry.patterns = append(entry.patterns, regexp.MustCompile(pattern))
		}
		compiled = append(compiled, entry)
	}

	return &Classifier{topics: compiled, logger: logger}
}

// combinedText joins lowercased title and abstract the way scoring sees them.
func combinedText(paper domain.Paper) string {
	return strings.ToLower(paper.Title) + ". " + strings.ToLower(paper.Abstract)
}

// score is matched-keyword-count / keyword-count x weight, clamped to [0,1].
func (t topic) score(text string) float64 {
	if len(t.patterns) == 0 {
		return 0
	}

	matched := 0
	for _, pattern := range t.patterns {
		if pattern.MatchString(text) {
			matched++
		}
	}

	score := float64(matched) / float64(len(t.patterns)) * t.weight
	if score > 1 {
		score = 1
	}
	return score
}

// Classify returns the dominant topic, the per-topic score breakdown, and
// the max score. Ties break to the first-defined topic.
func (c *Classifier) Classify(paper domain.Paper) (string, map[string]float64, float64) {
	text := combinedText(paper)

	scores := make(map[string]float64, len(c.topics))
	dominant := ""
	maxScore := -1.0
	for _, t := range c.topics {
		s := t.score(text)
		scores[t.name] = s
		if s > maxScore {
			maxScore = s
			dominant = t.name
		}
	}
	if maxScore < 0 {
		maxScore = 0
	}

	return dominant, scores, maxScore
}

// MatchedKeywords returns the union, across all topics, of keywords whose
// whole-word pattern matches the paper. Order follows the topic table;
// repeated keywords appear once.
func (c *Classifier) MatchedKeywords(paper domain.Paper) []string {
	text := combinedText(paper)

	seen := map[string]struct{}{}
	var matched []string
	for _, t := range c.topics {
		for i, pattern := range t.patterns {
			keyword := t.keywords[i]
			if _, ok := seen[keyword]; ok {
				continue
			}
			if pattern.MatchString(text) {
				seen[keyword] = struct{}{}
				matched = append(matched, keyword)
			}
		}
	}

	return matched
}

// ClassifyPaper builds the full classified view for one paper.
func (c *Classifier) ClassifyPaper(paper domain.Paper) domain.ClassifiedPaper {
	dominant, scores, maxScore := c.Classify(paper)
	return domain.ClassifiedPaper{
		Paper:           paper,
		RelevanceScore:  maxScore,
		MatchedKeywords: c.MatchedKeywords(paper),
		Topic:           dominant,
		TopicScores:     scores,
	}
}

// FilterAndRank keeps papers whose max score reaches minScore and sorts
// them by the requested key. Rejections carry a reason string.
func (c *Classifier) FilterAndRank(papers []domain.Paper, minScore float64, key SortKey) ([]domain.ClassifiedPaper, []Rejected) {
	var kept []domain.ClassifiedPaper
	var rejected []Rejected

	for _, paper := range papers {
		classified := c.ClassifyPaper(paper)
		if classified.RelevanceScore < minScore {
			rejected = append(rejected, Rejected{
				Paper:  paper,
				Reason: fmt.Sprintf("relevance score too low: %.2f < %.2f", classified.RelevanceScore, minScore),
			})
			continue
		}
		kept = append(kept, classified)
	}

	switch key {
	case SortByPublished:
		sort.SliceStable(kept, func(i, j int) bool {
			return kept[i].Published.After(kept[j].Published)
		})
	case SortByTopic:
		sort.SliceStable(kept, func(i, j int) bool {
			return kept[i].Topic < kept[j].Topic
		})
	default:
		sort.SliceStable(kept, func(i, j int) bool {
			return kept[i].RelevanceScore > kept[j].RelevanceScore
		})
	}

	if c.logger != nil {
		c.logger.Debug("filter complete", "kept", len(kept), "rejected", len(rejected))
	}
	return kept, rejected
}

// GroupByTopic buckets classified papers by their dominant topic.
func GroupByTopic(papers []domain.ClassifiedPaper) map[string][]domain.ClassifiedPaper {
	grouped := map[string][]domain.ClassifiedPaper{}
	for _, paper := range papers {
		grouped[paper.Topic] = append(grouped[paper.Topic], paper)
	}
	return grouped
}

// Statistics summarizes a classified batch for reporting.
type Statistics struct {
	Total             int
	AvgRelevanceScore float64
	Topics            map[string]int
	KeywordFrequency  map[string]int
}

// Summarize computes aggregate statistics over classified papers.
func Summarize(papers []domain.ClassifiedPaper) Statistics {
	stats := Statistics{
		Topics:           map[string]int{},
		KeywordFrequency: map[string]int{},
	}
	if len(papers) == 0 {
		return stats
	}

	total := 0.0
	for _, paper := range papers {
		stats.Topics[paper.Topic]++
		total += paper.RelevanceScore
		for _, keyword := range paper.MatchedKeywords {
			stats.KeywordFrequency[keyword]++
		}
	}

	stats.Total = len(papers)
	stats.AvgRelevanceScore = total / float64(len(papers))
	return stats
}
