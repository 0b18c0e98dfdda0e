package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/ports"
)

// PostgresArchive persists delivered papers into Postgres for audit and
// history queries. A nil db disables the archive.
type PostgresArchive struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.Archive = (*PostgresArchive)(nil)

// NewPostgresArchive wires a sql.DB implementation.
func NewPostgresArchive(db *sql.DB) *PostgresArchive {
	return &PostgresArchive{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Open connects to Postgres using the lib/pq driver and verifies the
// connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// SaveDelivered upserts one delivered paper snapshot.
func (a *PostgresArchive) SaveDelivered(ctx context.Context, paper domain.FinalPaper) error {
	if a == nil || a.db == nil {
		return nil
	}

	query, args, err := a.builder.
		Insert("delivered_papers").
		Columns(
			"paper_id", "title", "authors", "abstract", "categories",
			"abs_url", "pdf_url", "doi", "published",
			"topic", "relevance_score", "matched_keywords",
			"ai_summary", "summary_status",
			"quality_overall", "quality_level", "quality_status",
			"final_score",
		).
		Values(
			paper.ID, paper.Title, pq.StringArray(paper.Authors), paper.Abstract, pq.StringArray(paper.Categories),
			paper.AbsURL, paper.PDFURL, paper.DOI, paper.Published,
			paper.Topic, paper.RelevanceScore, pq.StringArray(paper.MatchedKeywords),
			paper.Summary.Text, string(paper.Summary.Status),
			paper.Quality.Overall, paper.Quality.Level, string(paper.Quality.Status),
			paper.FinalScore,
		).
		Suffix(`ON CONFLICT (paper_id) DO UPDATE
            SET ai_summary = EXCLUDED.ai_summary,
                summary_status = EXCLUDED.summary_status,
                quality_overall = EXCLUDED.quality_overall,
                quality_level = EXCLUDED.quality_level,
                quality_status = EXCLUDED.quality_status,
                final_score = EXCLUDED.final_score,
                delivered_at = NOW()`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := a.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert delivered: %w", err)
	}

	return nil
}

// RecentDelivered returns the newest archived papers, most recent first.
func (a *PostgresArchive) RecentDelivered(ctx context.Context, limit int) ([]domain.FinalPaper, error) {
	if a == nil || a.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	query, args, err := a.builder.
		Select("paper_id", "title", "topic", "relevance_score", "ai_summary", "quality_overall", "quality_level", "final_score").
		From("delivered_papers").
		OrderBy("delivered_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query delivered: %w", err)
	}
	defer rows.Close()

	var papers []domain.FinalPaper
	for rows.Next() {
		var p domain.FinalPaper
		if err := rows.Scan(
			&p.ID, &p.Title, &p.Topic, &p.RelevanceScore,
			&p.Summary.Text, &p.Quality.Overall, &p.Quality.Level, &p.FinalScore,
		); err != nil {
			return nil, fmt.Errorf("scan delivered: %w", err)
		}
		papers = append(papers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return papers, nil
}
