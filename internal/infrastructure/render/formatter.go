package render

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/ports"
)

const digestTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
  body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; color: #24292e; max-width: 860px; margin: 0 auto; padding: 16px; }
  h1 { border-bottom: 2px solid #0366d6; padding-bottom: 8px; }
  .meta { color: #586069; font-size: 13px; margin-bottom: 24px; }
  .paper { border: 1px solid #e1e4e8; border-radius: 6px; padding: 16px; margin-bottom: 16px; }
  .paper h2 { margin: 0 0 4px 0; font-size: 17px; }
  .paper h2 a { color: #0366d6; text-decoration: none; }
  .score { display: inline-block; background: #0366d6; color: #fff; border-radius: 10px; padding: 1px 10px; font-size: 13px; margin-right: 6px; }
  .level { display: inline-block; background: #f1f8ff; color: #0366d6; border-radius: 10px; padding: 1px 10px; font-size: 13px; }
  .authors, .tags { color: #586069; font-size: 13px; margin: 4px 0; }
  .summary { margin-top: 8px; font-size: 14px; }
  .assessment { font-size: 13px; margin-top: 8px; }
  .assessment ul { margin: 4px 0; padding-left: 20px; }
  .links { font-size: 13px; margin-top: 8px; }
  .fallback { color: #b08800; font-size: 12px; }
</style>
</head>
<body>
<h1>Paper Digest</h1>
<div class="meta">
  {{.GeneratedAt.Format "2006-01-02 15:04 MST"}} &middot; {{len .Papers}} papers
  {{- if .TopicCounts}} &middot;
    {{- range $i, $t := .TopicCounts}}{{if $i}}, {{end}} {{$t.Name}}: {{$t.Count}}{{end}}
  {{- end}}
</div>
{{range $i, $p := .Papers}}
<div class="paper">
  <h2>{{add $i 1}}. <a href="{{$p.AbsURL}}">{{$p.Title}}</a></h2>
  <div>
    <span class="score">{{printf "%.1f" $p.FinalScore}}/10</span>
    {{- if $p.Quality.Level}}<span class="level">{{$p.Quality.Level}}</span>{{end}}
  </div>
  <div class="authors">{{join $p.Authors ", "}}</div>
  <div class="tags">
    {{- if $p.Topic}}{{$p.Topic}}{{end}}
    {{- if $p.MatchedKeywords}} &middot; {{join $p.MatchedKeywords ", "}}{{end}}
    {{- if not $p.Published.IsZero}} &middot; {{$p.Published.Format "2006-01-02"}}{{end}}
  </div>
  <div class="summary">{{markdown $p.Summary.Text}}</div>
  {{- if eq (string $p.Summary.Status) "fallback"}}<div class="fallback">Summary generated from abstract.</div>{{end}}
  {{- if or $p.Quality.Strengths $p.Quality.Weaknesses}}
  <div class="assessment">
    {{- if $p.Quality.Strengths}}<strong>Strengths</strong><ul>{{range $p.Quality.Strengths}}<li>{{.}}</li>{{end}}</ul>{{end}}
    {{- if $p.Quality.Weaknesses}}<strong>Weaknesses</strong><ul>{{range $p.Quality.Weaknesses}}<li>{{.}}</li>{{end}}</ul>{{end}}
  </div>
  {{- end}}
  <div class="links"><a href="{{$p.AbsURL}}">abstract</a>{{if $p.PDFURL}} &middot; <a href="{{$p.PDFURL}}">pdf</a>{{end}}</div>
</div>
{{end}}
</body>
</html>`

type topicCount struct {
	Name  string
	Count int
}

type digestData struct {
	GeneratedAt time.Time
	Papers      []domain.FinalPaper
	TopicCounts []topicCount
}

// Formatter renders the final paper list into an HTML digest and a plain
// text alternative. AI summaries are treated as Markdown.
type Formatter struct {
	tmpl     *template.Template
	markdown goldmark.Markdown
	logger   *slog.Logger
}

var _ ports.DigestRenderer = (*Formatter)(nil)

// NewFormatter compiles the digest template once.
func NewFormatter(logger *slog.Logger) (*Formatter, error) {
	md := goldmark.New()

	f := &Formatter{markdown: md, logger: logger}
	tmpl, err := template.New("digest").Funcs(template.FuncMap{
		"add":      func(a, b int) int { return a + b },
		"join":     strings.Join,
		"string":   func(s domain.EnrichmentStatus) string { return string(s) },
		"markdown": f.renderMarkdown,
	}).Parse(digestTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse digest template: %w", err)
	}

	f.tmpl = tmpl
	return f, nil
}

// RenderHTML produces the full digest document.
func (f *Formatter) RenderHTML(papers []domain.FinalPaper, generatedAt time.Time) (string, error) {
	data := digestData{
		GeneratedAt: generatedAt,
		Papers:      papers,
		TopicCounts: countTopics(papers),
	}

	var buf bytes.Buffer
	if err := f.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render digest: %w", err)
	}
	return buf.String(), nil
}

// RenderText produces a plain text alternative for clients without HTML.
func (f *Formatter) RenderText(papers []domain.FinalPaper, generatedAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Paper Digest - %s (%d papers)\n\n", generatedAt.Format("2006-01-02"), len(papers))

	for i, p := range papers {
		fmt.Fprintf(&b, "%d. %s\n", i+1, p.Title)
		fmt.Fprintf(&b, "   Score: %.1f/10", p.FinalScore)
		if p.Quality.Level != "" {
			fmt.Fprintf(&b, " (%s)", p.Quality.Level)
		}
		b.WriteString("\n")
		if len(p.Authors) > 0 {
			fmt.Fprintf(&b, "   Authors: %s\n", strings.Join(p.Authors, ", "))
		}
		if p.Summary.Text != "" {
			fmt.Fprintf(&b, "   %s\n", p.Summary.Text)
		}
		if p.AbsURL != "" {
			fmt.Fprintf(&b, "   %s\n", p.AbsURL)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// renderMarkdown converts one AI summary to inline HTML. On conversion
// failure the raw text is escaped and used as-is.
func (f *Formatter) renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := f.markdown.Convert([]byte(text), &buf); err != nil {
		if f.logger != nil {
			f.logger.Warn("markdown conversion failed", "error", err)
		}
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String())
}

func countTopics(papers []domain.FinalPaper) []topicCount {
	index := map[string]int{}
	var counts []topicCount
	for _, p := range papers {
		if p.Topic == "" {
			continue
		}
		if i, ok := index[p.Topic]; ok {
			counts[i].Count++
			continue
		}
		index[p.Topic] = len(counts)
		counts = append(counts, topicCount{Name: p.Topic, Count: 1})
	}
	return counts
}
