package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"PaperDigest/internal/config"
	"PaperDigest/internal/domain"
)

// Client is the minimal surface the orchestrator needs from a language
// model backend.
type Client interface {
	Summarize(ctx context.Context, title, abstract string) (string, error)
	AssessQuality(ctx context.Context, title, abstract string) (domain.QualityResult, error)
}

const defaultSummaryPrompt = `You are an expert at summarizing academic papers. Summarize the core
ideas of the paper covering: 1) the research problem 2) the methodological
novelty 3) the main contributions 4) the experimental results.
Keep it within 200-300 words, concise and academic.`

const evaluationPrompt = `You are a senior academic reviewer. Evaluate this paper objectively and
rigorously along five dimensions.

Paper:
Title: %s
Abstract: %s

Dimensions (score each 1-10):
1. Innovation: novelty of the method, theoretical or technical breakthrough
2. Practicality: value for real problems, application potential
3. Technical Depth: technical complexity, depth of theoretical contribution
4. Experimental Rigor: soundness of the experimental design and validation
5. Impact Potential: likely influence on academia or industry

Scoring scale:
- 9-10: Top
- 7-8: Excellent
- 5-6: Good
- 3-4: Fair
- 1-2: Weak

Respond with JSON only, no other text:
{
    "innovation_score": number,
    "practicality_score": number,
    "technical_depth_score": number,
    "experimental_rigor_score": number,
    "impact_potential_score": number,
    "overall_score": number,
    "quality_level": "Top/Excellent/Good/Fair/Weak",
    "reasoning": "100-200 words justifying the per-dimension scores",
    "strengths": ["...", "..."],
    "weaknesses": ["...", "..."]
}

The overall score should be a weighted average of the five dimensions with
innovation and impact weighted higher. Most papers should land between 4
and 7. Ground strengths and weaknesses in the abstract.`

// ServiceClient talks to an OpenAI-compatible chat-completions API using
// the official SDK. It builds a client per call from stored options and
// disables the SDK's own retries so callers own the retry policy.
type ServiceClient struct {
	model            string
	opts             []option.RequestOption
	timeout          time.Duration
	summaryPrompt    string
	maxAbstractChars int
	logger           *slog.Logger
}

var _ Client = (*ServiceClient)(nil)

// NewServiceClient builds a client from configuration. A missing API key
// is a fatal configuration error.
func NewServiceClient(cfg config.EnrichConfig, logger *slog.Logger) (*ServiceClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("enrichment api key missing")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	prompt := cfg.SummaryPrompt
	if strings.TrimSpace(prompt) == "" {
		prompt = defaultSummaryPrompt
	}

	maxChars := cfg.MaxAbstractChars
	if maxChars <= 0 {
		maxChars = 1500
	}

	return &ServiceClient{
		model:            cfg.Model,
		opts:             opts,
		timeout:          time.Duration(cfg.TimeoutSec) * time.Second,
		summaryPrompt:    prompt,
		maxAbstractChars: maxChars,
		logger:           logger,
	}, nil
}

// Summarize asks the model for a narrative summary of one paper.
func (s *ServiceClient) Summarize(ctx context.Context, title, abstract string) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(s.summaryPrompt),
		openai.UserMessage(fmt.Sprintf("Title: %s\n\nAbstract: %s", title, s.truncate(abstract))),
	}

	content, err := s.complete(ctx, messages, 0.7, 500)
	if err != nil {
		return "", err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", errors.New("empty summary response")
	}
	return content, nil
}

type qualityResponse struct {
	Innovation        float64  `json:"innovation_score"`
	Practicality      float64  `json:"practicality_score"`
	TechnicalDepth    float64  `json:"technical_depth_score"`
	ExperimentalRigor float64  `json:"experimental_rigor_score"`
	ImpactPotential   float64  `json:"impact_potential_score"`
	Overall           float64  `json:"overall_score"`
	Level             string   `json:"quality_level"`
	Reasoning         string   `json:"reasoning"`
	Strengths         []string `json:"strengths"`
	Weaknesses        []string `json:"weaknesses"`
}

// AssessQuality asks the model for a five-dimension assessment. Scores are
// clamped to the 1-10 scale before they are returned.
func (s *ServiceClient) AssessQuality(ctx context.Context, title, abstract string) (domain.QualityResult, error) {
	prompt := fmt.Sprintf(evaluationPrompt, title, s.truncate(abstract))
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.UserMessage(prompt),
	}

	content, err := s.complete(ctx, messages, 0.3, 800)
	if err != nil {
		return domain.QualityResult{}, err
	}

	raw, ok := extractJSON(content)
	if !ok {
		return domain.QualityResult{}, fmt.Errorf("no JSON object in response: %q", snippet(content))
	}

	var parsed qualityResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return domain.QualityResult{}, fmt.Errorf("decode quality response: %w", err)
	}

	return domain.QualityResult{
		Innovation:        clampScore(parsed.Innovation),
		Practicality:      clampScore(parsed.Practicality),
		TechnicalDepth:    clampScore(parsed.TechnicalDepth),
		ExperimentalRigor: clampScore(parsed.ExperimentalRigor),
		ImpactPotential:   clampScore(parsed.ImpactPotential),
		Overall:           clampScore(parsed.Overall),
		Level:             parsed.Level,
		Reasoning:         parsed.Reasoning,
		Strengths:         parsed.Strengths,
		Weaknesses:        parsed.Weaknesses,
		Status:            domain.StatusSuccess,
	}, nil
}

func (s *ServiceClient) complete(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, temperature float64, maxTokens int64) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	client := openai.NewClient(s.opts...)
	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(s.model),
		Messages:    messages,
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(maxTokens),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (s *ServiceClient) truncate(abstract string) string {
	runes := []rune(abstract)
	if len(runes) <= s.maxAbstractChars {
		return abstract
	}
	return string(runes[:s.maxAbstractChars])
}

// IsAuthoritative reports whether an error indicates the request can never
// succeed as configured, so retrying would only waste quota.
func IsAuthoritative(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return true
		}
	}
	return false
}

// extractJSON pulls the outermost brace-delimited object out of model
// output that may wrap it in prose.
func extractJSON(content string) (string, bool) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return content[start : end+1], true
}

func clampScore(score float64) float64 {
	if score < 1 {
		return 1
	}
	if score > 10 {
		return 10
	}
	return score
}

func snippet(content string) string {
	runes := []rune(content)
	if len(runes) > 120 {
		return string(runes[:120]) + "..."
	}
	return content
}
