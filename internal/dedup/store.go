package dedup

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/ports"
)

// Entry is the persisted record for one seen fingerprint. Entries are
// created on first sight and never mutated or deleted afterwards.
type Entry struct {
	PaperID   string    `json:"paper_id"`
	Title     string    `json:"title"`
	Authors   []string  `json:"authors"`
	DOI       string    `json:"doi,omitempty"`
	FirstSeen time.Time `json:"marked_at"`
}

type cacheFile struct {
	Records    map[string]Entry `json:"records"`
	UpdatedAt  time.Time        `json:"updated_at"`
	TotalCount int              `json:"total_count"`
}

// Store is the fingerprint store: a persistent set of paper fingerprints
// backed by a JSON cache file that is fully rewritten on every mark.
// Within a run it has a single logical writer; concurrent runs against the
// same file require external mutual exclusion.
type Store struct {
	path    string
	records map[string]Entry
	logger  *slog.Logger
}

var _ ports.SeenStore = (*Store)(nil)

// NewStore wires the cache file path; call Load before first use.
func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{
		path:    path,
		records: map[string]Entry{},
		logger:  logger,
	}
}

// Load reads persisted entries into memory. A missing or unparsable file
// degrades to an empty store with a warning; it is never fatal.
func (s *Store) Load() {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.debug("cache file absent, starting fresh", "path", s.path)
		} else {
			s.warn("cannot read cache file", "path", s.path, "error", err)
		}
		return
	}

	var cache cacheFile
	if err := json.Unmarshal(raw, &cache); err != nil {
		s.warn("cannot parse cache file, starting fresh", "path", s.path, "error", err)
		return
	}

	if cache.Records != nil {
		s.records = cache.Records
	}
	s.debug("loaded seen papers", "count", len(s.records))
}

// Len reports how many fingerprints are currently known.
func (s *Store) Len() int {
	return len(s.records)
}

// CheckDuplicate computes the paper's fingerprint and looks it up without
// mutating state. The second return value carries the identifier of the
// first occurrence when the paper is a duplicate.
func (s *Store) CheckDuplicate(paper domain.Paper) (bool, string) {
	entry, ok := s.records[Fingerprint(paper)]
	if !ok {
		return false, ""
	}
	return true, entry.PaperID
}

// MarkSeen inserts the paper's fingerprint and persists immediately.
// Returns false when the fingerprint is already present (idempotent).
// Persistence failures are logged and swallowed; a failed save degrades
// dedup accuracy of future runs but never aborts the current one.
func (s *Store) MarkSeen(paper domain.Paper) bool {
	key := Fingerprint(paper)
	if _, ok := s.records[key]; ok {
		return false
	}

	s.records[key] = Entry{
		PaperID:   paper.ID,
		Title:     paper.Title,
		Authors:   paper.Authors,
		DOI:       paper.DOI,
		FirstSeen: time.Now().UTC(),
	}

	if err := s.save(); err != nil {
		s.warn("cannot persist seen cache", "path", s.path, "error", err)
	}

	return true
}

// Partition splits papers into unseen and duplicates without mutating the
// store; callers mark papers via MarkSeen once the run has delivered them.
// Repeats within the batch collapse onto their first occurrence. Order of
// the unique slice preserves input order.
func (s *Store) Partition(papers []domain.Paper) ([]domain.Paper, []domain.Duplicate) {
	var unique []domain.Paper
	var duplicates []domain.Duplicate
	batch := map[string]string{}

	for _, paper := range papers {
		key := Fingerprint(paper)
		if entry, ok := s.records[key]; ok {
			duplicates = append(duplicates, domain.Duplicate{Paper: paper, FirstSeenID: entry.PaperID})
			continue
		}
		if firstID, ok := batch[key]; ok {
			duplicates = append(duplicates, domain.Duplicate{Paper: paper, FirstSeenID: firstID})
			continue
		}
		batch[key] = paper.ID
		unique = append(unique, paper)
	}

	s.debug("partition complete", "unique", len(unique), "duplicates", len(duplicates))
	return unique, duplicates
}

// Prune drops entries first seen before the cutoff and persists the result.
// Nothing in the pipeline schedules this; it exists for operators who decide
// to bound store growth.
func (s *Store) Prune(olderThan time.Time) int {
	removed := 0
	for key, entry := range s.records {
		if entry.FirstSeen.Before(olderThan) {
			delete(s.records, key)
			removed++
		}
	}

	if removed > 0 {
		if err := s.save(); err != nil {
			s.warn("cannot persist pruned cache", "path", s.path, "error", err)
		}
	}
	return removed
}

// save rewrites the whole cache file. Writing to a temp file and renaming
// keeps already-flushed entries intact if the process dies mid-write.
func (s *Store) save() error {
	raw, err := json.MarshalIndent(cacheFile{
		Records:    s.records,
		UpdatedAt:  time.Now().UTC(),
		TotalCount: len(s.records),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "seen-*.json")
	if err != nil {
		return fmt.Errorf("create temp cache: %w", err)
	}

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write temp cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp cache: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace cache file: %w", err)
	}

	return nil
}

func (s *Store) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Store) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
