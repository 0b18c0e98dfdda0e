package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"PaperDigest/internal/config"
	"PaperDigest/internal/domain"
	"PaperDigest/internal/scanner"
)

const defaultQueryURL = "http://export.arxiv.org/api/query"

// APIScanner queries the arXiv Atom API sorted by submission date. Entries
// arrive newest first, so the scan stops at the first entry older than the
// requested window.
type APIScanner struct {
	parser   *gofeed.Parser
	cfg      config.ArxivConfig
	queryURL string
}

var _ scanner.Scanner = (*APIScanner)(nil)

// NewAPIScanner wires a feed parser; a nil client gets a 30s timeout.
func NewAPIScanner(cfg config.ArxivConfig, client *http.Client) *APIScanner {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = "PaperDigest/1.0"

	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 50
	}
	if cfg.SearchMode == "" {
		cfg.SearchMode = "or"
	}

	return &APIScanner{parser: parser, cfg: cfg, queryURL: defaultQueryURL}
}

// Name identifies the strategy inside the registry.
func (a *APIScanner) Name() string {
	return "arxiv-api"
}

// Scan executes one API query and keeps entries published on or after
// req.Since. Options may override searchMode and maxResults per site.
func (a *APIScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Paper, error) {
	mode := a.cfg.SearchMode
	if v, ok := req.Options["searchMode"]; ok && v != "" {
		mode = v
	}
	maxResults := a.cfg.MaxResults
	if v, ok := req.Options["maxResults"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxResults = n
		}
	}

	query := buildQuery(a.cfg.Keywords, a.cfg.Categories, mode)
	feedURL := a.queryURL + "?" + url.Values{
		"search_query": {query},
		"start":        {"0"},
		"max_results":  {strconv.Itoa(maxResults)},
		"sortBy":       {"submittedDate"},
		"sortOrder":    {"descending"},
	}.Encode()

	feed, err := a.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("query arxiv api: %w", err)
	}

	source := req.SiteName
	if source == "" {
		source = a.Name()
	}

	now := time.Now().UTC()
	papers := make([]domain.Paper, 0, len(feed.Items))
	for _, item := range feed.Items {
		paper := itemToPaper(item, source, now)
		if !req.Since.IsZero() && paper.Published.Before(req.Since) {
			break
		}
		papers = append(papers, paper)
	}

	return papers, nil
}

// buildQuery assembles the search_query expression. Keyword terms match any
// field, category terms match the taxonomy; the mode picks how the two
// groups combine.
func buildQuery(keywords, categories []string, mode string) string {
	kwTerms := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kwTerms = append(kwTerms, fmt.Sprintf("all:%q", kw))
	}
	catTerms := make([]string, 0, len(categories))
	for _, cat := range categories {
		catTerms = append(catTerms, "cat:"+cat)
	}

	kwExpr := strings.Join(kwTerms, " OR ")
	catExpr := strings.Join(catTerms, " OR ")

	switch mode {
	case "keyword_only":
		if kwExpr != "" {
			return kwExpr
		}
	case "category_only":
		if catExpr != "" {
			return catExpr
		}
	case "and":
		if kwExpr != "" && catExpr != "" {
			return fmt.Sprintf("(%s) AND (%s)", kwExpr, catExpr)
		}
	default:
		if kwExpr != "" && catExpr != "" {
			return fmt.Sprintf("(%s) OR (%s)", kwExpr, catExpr)
		}
	}

	if kwExpr != "" {
		return kwExpr
	}
	if catExpr != "" {
		return catExpr
	}
	return "cat:cs.CV"
}

func itemToPaper(item *gofeed.Item, source string, fetchedAt time.Time) domain.Paper {
	absURL := item.Link
	if absURL == "" {
		absURL = item.GUID
	}

	paper := domain.Paper{
		ID:         arxivID(item.GUID, absURL),
		Title:      collapseWhitespace(item.Title),
		Abstract:   collapseWhitespace(item.Description),
		Categories: item.Categories,
		AbsURL:     absURL,
		PDFURL:     strings.Replace(absURL, "/abs/", "/pdf/", 1),
		DOI:        extractDOI(item),
		Source:     source,
		FetchedAt:  fetchedAt,
	}

	for _, author := range item.Authors {
		if author != nil && author.Name != "" {
			paper.Authors = append(paper.Authors, author.Name)
		}
	}
	if item.PublishedParsed != nil {
		paper.Published = item.PublishedParsed.UTC()
	}
	if item.UpdatedParsed != nil {
		paper.Updated = item.UpdatedParsed.UTC()
	}

	return paper
}

// arxivID strips the feed's URL framing down to the bare identifier,
// e.g. "http://arxiv.org/abs/2408.01234v1" -> "2408.01234v1".
func arxivID(guid, link string) string {
	raw := guid
	if raw == "" {
		raw = link
	}
	if idx := strings.LastIndex(raw, "/abs/"); idx >= 0 {
		return raw[idx+len("/abs/"):]
	}
	return raw
}

func extractDOI(item *gofeed.Item) string {
	if ext, ok := item.Extensions["arxiv"]; ok {
		if values, ok := ext["doi"]; ok && len(values) > 0 {
			return strings.TrimSpace(values[0].Value)
		}
	}
	return ""
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
