package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"PaperDigest/internal/classify"
	"PaperDigest/internal/config"
	"PaperDigest/internal/dedup"
	"PaperDigest/internal/domain"
	"PaperDigest/internal/rank"
)

type fakeSource struct {
	papers []domain.Paper
	err    error
}

func (f *fakeSource) Fetch(context.Context, time.Time) ([]domain.Paper, error) {
	return f.papers, f.err
}

type fakeSeen struct {
	known  map[string]string
	marked []string
}

func (f *fakeSeen) CheckDuplicate(paper domain.Paper) (bool, string) {
	id, ok := f.known[paper.ID]
	return ok, id
}

func (f *fakeSeen) MarkSeen(paper domain.Paper) bool {
	f.marked = append(f.marked, paper.ID)
	return true
}

func (f *fakeSeen) Partition(papers []domain.Paper) ([]domain.Paper, []domain.Duplicate) {
	var fresh []domain.Paper
	var dups []domain.Duplicate
	for _, p := range papers {
		if id, ok := f.known[p.ID]; ok {
			dups = append(dups, domain.Duplicate{Paper: p, FirstSeenID: id})
			continue
		}
		fresh = append(fresh, p)
	}
	return fresh, dups
}

type fakeEnricher struct {
	enriched int
}

func (f *fakeEnricher) Enrich(_ context.Context, papers []domain.ClassifiedPaper) ([]domain.EnrichmentOutcome, domain.EnrichmentStats) {
	f.enriched = len(papers)
	outcomes := make([]domain.EnrichmentOutcome, len(papers))
	for i, p := range papers {
		outcomes[i] = domain.EnrichmentOutcome{
			PaperID: p.ID,
			Summary: domain.SummaryResult{Text: "summary", Status: domain.StatusSuccess},
			Quality: domain.QualityResult{Overall: 7, Status: domain.StatusSuccess},
		}
	}
	return outcomes, domain.EnrichmentStats{Total: len(papers)}
}

type fakeRenderer struct{}

func (fakeRenderer) RenderHTML(papers []domain.FinalPaper, _ time.Time) (string, error) {
	return "<html>" + papers[0].Title + "</html>", nil
}

func (fakeRenderer) RenderText([]domain.FinalPaper, time.Time) string { return "text" }

type fakeSender struct {
	calls int
	stats domain.DeliveryStats
}

func (f *fakeSender) SendBatch(context.Context, string, string, string) domain.DeliveryStats {
	f.calls++
	return f.stats
}

type fakeNotifier struct {
	started   int
	completed []domain.RunStats
	failed    []string
}

func (f *fakeNotifier) JobStarted(context.Context, int, int) error {
	f.started++
	return nil
}

func (f *fakeNotifier) JobCompleted(_ context.Context, stats domain.RunStats) error {
	f.completed = append(f.completed, stats)
	return nil
}

func (f *fakeNotifier) JobFailed(_ context.Context, reason string) error {
	f.failed = append(f.failed, reason)
	return nil
}

type fakeArchive struct {
	saved []string
}

func (f *fakeArchive) SaveDelivered(_ context.Context, paper domain.FinalPaper) error {
	f.saved = append(f.saved, paper.ID)
	return nil
}

func testPapers() []domain.Paper {
	return []domain.Paper{
		{ID: "new1", Title: "Reinforcement learning in the wild", Published: time.Now()},
		{ID: "dup1", Title: "Reinforcement learning revisited", Published: time.Now()},
		{ID: "new2", Title: "Astronomy catalogue update", Published: time.Now()},
	}
}

func testDeps(t *testing.T, src *fakeSource, seen *fakeSeen, sender *fakeSender, notifier *fakeNotifier, archive *fakeArchive) PipelineDeps {
	t.Helper()

	topics := []config.TopicConfig{
		{Name: "reinforcement_learning", Weight: 1.0, Keywords: []string{"reinforcement learning"}},
	}

	return PipelineDeps{
		Source:     src,
		Seen:       seen,
		Classifier: classify.New(topics, nil),
		Enricher:   &fakeEnricher{},
		Ranker:     rank.New(rank.DefaultWeights, nil),
		Renderer:   fakeRenderer{},
		Sender:     sender,
		Notifier:   notifier,
		Archive:    archive,
		Filter:     config.FilterConfig{MinRelevanceScore: 0.3, TopN: 10},
		OutputDir:  t.TempDir(),
	}
}

func TestRunFullFlow(t *testing.T) {
	t.Parallel()

	src := &fakeSource{papers: testPapers()}
	seen := &fakeSeen{known: map[string]string{"dup1": "old1"}}
	sender := &fakeSender{stats: domain.DeliveryStats{Total: 1, Success: 1}}
	notifier := &fakeNotifier{}
	archive := &fakeArchive{}

	p := NewPipeline(testDeps(t, src, seen, sender, notifier, archive))
	stats, err := p.Run(context.Background(), RunOptions{DaysBack: 1, OnlyNew: true, SendEmail: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if stats.Fetched != 3 || stats.Unique != 2 || stats.Duplicates != 1 {
		t.Fatalf("dedup stats = %+v", stats)
	}
	// astronomy paper scores below the relevance threshold
	if stats.Candidates != 1 || stats.Rejected != 1 || stats.Filtered != 1 {
		t.Fatalf("filter stats = %+v", stats)
	}
	if sender.calls != 1 {
		t.Fatalf("sender calls = %d", sender.calls)
	}
	if len(seen.marked) != 1 || seen.marked[0] != "new1" {
		t.Fatalf("marked = %v", seen.marked)
	}
	if len(archive.saved) != 1 || archive.saved[0] != "new1" {
		t.Fatalf("archived = %v", archive.saved)
	}
	if notifier.started != 1 || len(notifier.completed) != 1 {
		t.Fatalf("notifier = %+v", notifier)
	}

	if stats.HTMLPath == "" || stats.ReportPath == "" {
		t.Fatalf("artifact paths missing: %+v", stats)
	}
	html, err := os.ReadFile(stats.HTMLPath)
	if err != nil {
		t.Fatalf("read html: %v", err)
	}
	if !strings.Contains(string(html), "Reinforcement learning in the wild") {
		t.Fatalf("html = %q", html)
	}
	if filepath.Ext(stats.ReportPath) != ".json" {
		t.Fatalf("report path = %q", stats.ReportPath)
	}
}

func TestRunFetchFailureNotifies(t *testing.T) {
	t.Parallel()

	src := &fakeSource{err: errors.New("network down")}
	notifier := &fakeNotifier{}

	p := NewPipeline(testDeps(t, src, &fakeSeen{}, &fakeSender{}, notifier, &fakeArchive{}))
	if _, err := p.Run(context.Background(), RunOptions{}); err == nil {
		t.Fatal("expected fetch error")
	}
	if len(notifier.failed) != 1 || !strings.Contains(notifier.failed[0], "network down") {
		t.Fatalf("failed notifications = %v", notifier.failed)
	}
}

func TestRunFailedDeliveryLeavesPapersUnmarked(t *testing.T) {
	t.Parallel()

	src := &fakeSource{papers: testPapers()}
	seen := &fakeSeen{known: map[string]string{}}
	sender := &fakeSender{stats: domain.DeliveryStats{Total: 1, Failed: 1}}

	p := NewPipeline(testDeps(t, src, seen, sender, &fakeNotifier{}, &fakeArchive{}))
	stats, err := p.Run(context.Background(), RunOptions{OnlyNew: true, SendEmail: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(seen.marked) != 0 {
		t.Fatalf("papers marked despite failed delivery: %v", seen.marked)
	}
	if stats.Delivery == nil || stats.Delivery.Failed != 1 {
		t.Fatalf("delivery stats = %+v", stats.Delivery)
	}
}

func TestRunFailedDeliveryRetriesWithPersistentStore(t *testing.T) {
	t.Parallel()

	src := &fakeSource{papers: testPapers()}
	store := dedup.NewStore(filepath.Join(t.TempDir(), "seen.json"), nil)
	store.Load()
	sender := &fakeSender{stats: domain.DeliveryStats{Total: 1, Failed: 1}}

	deps := testDeps(t, src, &fakeSeen{}, sender, &fakeNotifier{}, &fakeArchive{})
	deps.Seen = store

	p := NewPipeline(deps)
	if _, err := p.Run(context.Background(), RunOptions{OnlyNew: true, SendEmail: true}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, paper := range testPapers() {
		if isDup, _ := store.CheckDuplicate(paper); isDup {
			t.Fatalf("paper %s seen despite fully failed delivery", paper.ID)
		}
	}

	// The next run picks the same papers up again and marks them once the
	// digest goes out.
	sender.stats = domain.DeliveryStats{Total: 1, Success: 1}
	stats, err := p.Run(context.Background(), RunOptions{OnlyNew: true, SendEmail: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Unique != 3 || stats.Filtered != 2 {
		t.Fatalf("retry stats = %+v", stats)
	}
	if isDup, _ := store.CheckDuplicate(testPapers()[0]); !isDup {
		t.Fatal("delivered paper should now count as seen")
	}
}

func TestRunWithoutEmailStillMarksSeen(t *testing.T) {
	t.Parallel()

	src := &fakeSource{papers: testPapers()}
	seen := &fakeSeen{known: map[string]string{}}
	sender := &fakeSender{}

	p := NewPipeline(testDeps(t, src, seen, sender, &fakeNotifier{}, &fakeArchive{}))
	stats, err := p.Run(context.Background(), RunOptions{OnlyNew: true, SendEmail: false})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if sender.calls != 0 {
		t.Fatalf("sender called %d times", sender.calls)
	}
	if stats.Delivery != nil {
		t.Fatalf("delivery stats = %+v", stats.Delivery)
	}
	if len(seen.marked) != 2 {
		t.Fatalf("marked = %v", seen.marked)
	}
}

func TestRunTopNTruncation(t *testing.T) {
	t.Parallel()

	papers := []domain.Paper{
		{ID: "a", Title: "reinforcement learning one"},
		{ID: "b", Title: "reinforcement learning two"},
		{ID: "c", Title: "reinforcement learning three"},
	}
	src := &fakeSource{papers: papers}
	seen := &fakeSeen{known: map[string]string{}}

	p := NewPipeline(testDeps(t, src, seen, &fakeSender{}, &fakeNotifier{}, &fakeArchive{}))
	stats, err := p.Run(context.Background(), RunOptions{TopN: 2, OnlyNew: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if stats.Candidates != 3 || stats.Filtered != 2 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestRunEmptySelectionShortCircuits(t *testing.T) {
	t.Parallel()

	src := &fakeSource{papers: []domain.Paper{{ID: "x", Title: "unrelated topic"}}}
	sender := &fakeSender{}
	notifier := &fakeNotifier{}

	p := NewPipeline(testDeps(t, src, &fakeSeen{}, sender, notifier, &fakeArchive{}))
	stats, err := p.Run(context.Background(), RunOptions{SendEmail: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if sender.calls != 0 {
		t.Fatal("sender called for empty digest")
	}
	if len(notifier.completed) != 1 {
		t.Fatalf("completion not sent: %+v", notifier)
	}
	if stats.Filtered != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}
