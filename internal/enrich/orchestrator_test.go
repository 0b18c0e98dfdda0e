package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	openai "github.com/openai/openai-go"

	"PaperDigest/internal/domain"
)

type fakeClient struct {
	mu             sync.Mutex
	summarizeCalls int
	qualityCalls   int

	summarize func(call int, title string) (string, error)
	quality   func(call int, title string) (domain.QualityResult, error)
}

func (f *fakeClient) Summarize(_ context.Context, title, _ string) (string, error) {
	f.mu.Lock()
	f.summarizeCalls++
	call := f.summarizeCalls
	f.mu.Unlock()
	return f.summarize(call, title)
}

func (f *fakeClient) AssessQuality(_ context.Context, title, _ string) (domain.QualityResult, error) {
	f.mu.Lock()
	f.qualityCalls++
	call := f.qualityCalls
	f.mu.Unlock()
	return f.quality(call, title)
}

func goodQuality() domain.QualityResult {
	return domain.QualityResult{Overall: 8, Level: "Excellent", Status: domain.StatusSuccess}
}

func testOptions() Options {
	return Options{BatchSize: 3, MaxRetries: 2, RetryDelay: time.Millisecond, BatchPause: time.Millisecond}
}

func classified(id string, relevance float64) domain.ClassifiedPaper {
	return domain.ClassifiedPaper{
		Paper:          domain.Paper{ID: id, Title: "Paper " + id, Abstract: strings.Repeat("w ", 200)},
		RelevanceScore: relevance,
	}
}

func TestEnrichAllFailuresDegradeToFallback(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		summarize: func(int, string) (string, error) { return "", errors.New("unavailable") },
		quality: func(int, string) (domain.QualityResult, error) {
			return domain.QualityResult{}, errors.New("unavailable")
		},
	}
	o := New(client, testOptions(), nil)

	paper := classified("p1", 0.5)
	outcomes, stats := o.Enrich(context.Background(), []domain.ClassifiedPaper{paper})

	if len(outcomes) != 1 {
		t.Fatalf("outcomes = %d", len(outcomes))
	}
	out := outcomes[0]
	if out.Summary.Status != domain.StatusFallback {
		t.Fatalf("summary status = %q", out.Summary.Status)
	}
	want := fallbackSummary(paper.Abstract)
	if out.Summary.Text != want {
		t.Fatalf("summary text = %q, want truncated abstract", out.Summary.Text)
	}
	if out.Quality.Status != domain.StatusFallback {
		t.Fatalf("quality status = %q", out.Quality.Status)
	}
	if out.Quality.Overall != 5.5 {
		t.Fatalf("fallback overall = %v, want 5.5", out.Quality.Overall)
	}
	if out.Quality.Level != "Fair" {
		t.Fatalf("fallback level = %q", out.Quality.Level)
	}
	if stats.Summary.Fallback != 1 || stats.Quality.Fallback != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestEnrichRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		summarize: func(call int, _ string) (string, error) {
			if call < 3 {
				return "", errors.New("timeout")
			}
			return "a summary", nil
		},
		quality: func(int, string) (domain.QualityResult, error) { return goodQuality(), nil },
	}
	o := New(client, testOptions(), nil)

	outcomes, stats := o.Enrich(context.Background(), []domain.ClassifiedPaper{classified("p1", 1)})

	if outcomes[0].Summary.Status != domain.StatusSuccess {
		t.Fatalf("summary status = %q", outcomes[0].Summary.Status)
	}
	if client.summarizeCalls != 3 {
		t.Fatalf("summarize calls = %d, want 3", client.summarizeCalls)
	}
	if stats.Summary.Success != 1 || stats.Quality.Success != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestEnrichDoesNotRetryAuthFailures(t *testing.T) {
	t.Parallel()

	req, err := http.NewRequest(http.MethodPost, "http://llm.test/chat/completions", nil)
	if err != nil {
		t.Fatal(err)
	}
	authErr := fmt.Errorf("call api: %w", &openai.Error{
		StatusCode: 401,
		Request:    req,
		Response:   &http.Response{StatusCode: 401, Request: req},
	})

	client := &fakeClient{
		summarize: func(int, string) (string, error) { return "", authErr },
		quality:   func(int, string) (domain.QualityResult, error) { return domain.QualityResult{}, authErr },
	}
	o := New(client, testOptions(), nil)

	outcomes, _ := o.Enrich(context.Background(), []domain.ClassifiedPaper{classified("p1", 0)})

	if client.summarizeCalls != 1 {
		t.Fatalf("summarize calls = %d, want 1", client.summarizeCalls)
	}
	if client.qualityCalls != 1 {
		t.Fatalf("quality calls = %d, want 1", client.qualityCalls)
	}
	if outcomes[0].Summary.Status != domain.StatusFallback {
		t.Fatalf("summary status = %q", outcomes[0].Summary.Status)
	}
}

func TestEnrichPreservesInputOrder(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		summarize: func(_ int, title string) (string, error) {
			if strings.HasSuffix(title, "p1") {
				time.Sleep(20 * time.Millisecond)
			}
			return "summary of " + title, nil
		},
		quality: func(int, string) (domain.QualityResult, error) { return goodQuality(), nil },
	}
	o := New(client, testOptions(), nil)

	papers := []domain.ClassifiedPaper{classified("p1", 1), classified("p2", 1), classified("p3", 1)}
	outcomes, _ := o.Enrich(context.Background(), papers)

	for i, paper := range papers {
		if outcomes[i].PaperID != paper.ID {
			t.Fatalf("outcome[%d] = %q, want %q", i, outcomes[i].PaperID, paper.ID)
		}
	}
}

func TestEnrichRecoversFromPanics(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		summarize: func(int, string) (string, error) { panic("boom") },
		quality:   func(int, string) (domain.QualityResult, error) { panic("boom") },
	}
	o := New(client, testOptions(), nil)

	paper := classified("p1", 0.5)
	outcomes, stats := o.Enrich(context.Background(), []domain.ClassifiedPaper{paper})

	out := outcomes[0]
	if out.Summary.Status != domain.StatusError {
		t.Fatalf("summary status = %q", out.Summary.Status)
	}
	if out.Summary.Err == "" {
		t.Fatal("panic left no error message")
	}
	if want := fallbackSummary(paper.Abstract); out.Summary.Text != want {
		t.Fatalf("summary text = %q, want truncated abstract", out.Summary.Text)
	}
	if out.Quality.Status != domain.StatusError {
		t.Fatalf("quality status = %q", out.Quality.Status)
	}
	if out.Quality.Overall < 1 || out.Quality.Overall > 10 {
		t.Fatalf("quality overall = %v, want within 1-10", out.Quality.Overall)
	}
	if out.Quality.Overall != 5.5 {
		t.Fatalf("quality overall = %v, want 5.5", out.Quality.Overall)
	}
	if stats.Summary.Error != 1 || stats.Quality.Error != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestNewDefaultsRetries(t *testing.T) {
	t.Parallel()

	o := New(&fakeClient{}, Options{}, nil)
	if o.maxRetries != 3 {
		t.Fatalf("maxRetries = %d, want 3", o.maxRetries)
	}

	o = New(&fakeClient{}, Options{MaxRetries: -1}, nil)
	if o.maxRetries != 0 {
		t.Fatalf("maxRetries = %d, want 0", o.maxRetries)
	}
}

func TestFallbackSummaryShortAbstractUnchanged(t *testing.T) {
	t.Parallel()

	if got := fallbackSummary("short abstract"); got != "short abstract" {
		t.Fatalf("got %q", got)
	}

	long := strings.Repeat("x", 500)
	got := fallbackSummary(long)
	if len([]rune(got)) != fallbackSummaryChars+3 || !strings.HasSuffix(got, "...") {
		t.Fatalf("truncated length = %d", len([]rune(got)))
	}
}
