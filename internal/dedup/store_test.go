package dedup

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"PaperDigest/internal/domain"
)

func samplePaper(id, title string, authors ...string) domain.Paper {
	return domain.Paper{ID: id, Title: title, Authors: authors}
}

func TestFingerprintIgnoresFormatting(t *testing.T) {
	t.Parallel()

	a := samplePaper("1", "LayerComposer: Interactive Personalized T2I", "Alice One", "Bob Two", "Carol Three")
	b := samplePaper("2", "layercomposer  interactive personalized t2i!", "alice one ", "BOB TWO", "Carol Three")

	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("expected identical fingerprints for trivially reformatted papers")
	}
}

func TestFingerprintIgnoresTailAuthors(t *testing.T) {
	t.Parallel()

	a := samplePaper("1", "Some Title", "A", "B", "C", "D", "E")
	b := samplePaper("2", "Some Title", "A", "B", "C", "E", "D")

	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("reordering authors beyond the first three must not change the fingerprint")
	}

	c := samplePaper("3", "Some Title", "B", "A", "C", "D", "E")
	if Fingerprint(a) == Fingerprint(c) {
		t.Fatalf("reordering head authors must change the fingerprint")
	}
}

func TestPartitionAnnotatesDuplicates(t *testing.T) {
	t.Parallel()

	store := NewStore(filepath.Join(t.TempDir(), "seen.json"), nil)
	store.Load()

	papers := []domain.Paper{
		samplePaper("2510.20820v1", "Towards General Modality Translation", "Nimrod Berman", "Omkar Joglekar", "Eitan Kosman"),
		samplePaper("2510.20820v2", "Towards  General Modality Translation.", "Nimrod Berman", "Omkar Joglekar", "Eitan Kosman"),
	}

	unique, duplicates := store.Partition(papers)
	if len(unique) != 1 || len(duplicates) != 1 {
		t.Fatalf("expected 1 unique and 1 duplicate, got %d/%d", len(unique), len(duplicates))
	}
	if unique[0].ID != "2510.20820v1" {
		t.Fatalf("unexpected unique paper: %s", unique[0].ID)
	}
	if duplicates[0].FirstSeenID != "2510.20820v1" {
		t.Fatalf("duplicate should carry first-seen id, got %q", duplicates[0].FirstSeenID)
	}
}

func TestPartitionChecksWithoutMarking(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "seen.json")
	papers := []domain.Paper{
		samplePaper("a1", "First Paper", "A"),
		samplePaper("b1", "Second Paper", "B"),
	}

	store := NewStore(path, nil)
	store.Load()
	unique, _ := store.Partition(papers)
	if len(unique) != 2 {
		t.Fatalf("first pass should see 2 unique papers, got %d", len(unique))
	}

	// Partition alone persists nothing, so an undelivered run can be
	// reprocessed in full.
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("partition must not write the cache file, stat err = %v", err)
	}
	unique, _ = store.Partition(papers)
	if len(unique) != 2 {
		t.Fatalf("repeated pass should still see 2 unique papers, got %d", len(unique))
	}

	for _, paper := range papers {
		store.MarkSeen(paper)
	}

	second := NewStore(path, nil)
	second.Load()
	unique, duplicates := second.Partition(papers)
	if len(unique) != 0 {
		t.Fatalf("marked papers should not come back unique, got %d", len(unique))
	}
	if len(duplicates) != 2 {
		t.Fatalf("marked papers should all be duplicates, got %d", len(duplicates))
	}
}

func TestMarkSeenPersistsImmediately(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "seen.json")
	store := NewStore(path, nil)
	store.Load()

	if !store.MarkSeen(samplePaper("x1", "Persisted Paper", "A")) {
		t.Fatalf("first MarkSeen must report insertion")
	}
	if store.MarkSeen(samplePaper("x2", "Persisted Paper", "A")) {
		t.Fatalf("second MarkSeen for same fingerprint must report false")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("cache file should exist after MarkSeen: %v", err)
	}

	var cache struct {
		Records    map[string]Entry `json:"records"`
		TotalCount int              `json:"total_count"`
	}
	if err := json.Unmarshal(raw, &cache); err != nil {
		t.Fatalf("cache file should be valid JSON: %v", err)
	}
	if cache.TotalCount != 1 || len(cache.Records) != 1 {
		t.Fatalf("expected exactly one persisted record, got %d", len(cache.Records))
	}
	for _, entry := range cache.Records {
		if entry.PaperID != "x1" {
			t.Fatalf("persisted entry should keep the first id, got %s", entry.PaperID)
		}
	}
}

func TestLoadToleratesMissingAndCorruptFiles(t *testing.T) {
	t.Parallel()

	missing := NewStore(filepath.Join(t.TempDir(), "absent.json"), nil)
	missing.Load()
	if missing.Len() != 0 {
		t.Fatalf("missing file should load as empty store")
	}

	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	broken := NewStore(path, nil)
	broken.Load()
	if broken.Len() != 0 {
		t.Fatalf("corrupt file should load as empty store")
	}

	// The run must still proceed with dedup on top of the empty state.
	unique, _ := broken.Partition([]domain.Paper{samplePaper("y1", "Recovered", "A")})
	if len(unique) != 1 {
		t.Fatalf("store should keep working after a failed load")
	}
}

func TestSaveFailureDoesNotAbortMarking(t *testing.T) {
	t.Parallel()

	// Point the cache path at a directory so every save fails.
	dir := t.TempDir()
	store := NewStore(dir, nil)
	store.Load()

	if !store.MarkSeen(samplePaper("z1", "Unsaveable", "A")) {
		t.Fatalf("marking must keep working when persistence fails")
	}
	if isDup, _ := store.CheckDuplicate(samplePaper("z2", "Unsaveable", "A")); !isDup {
		t.Fatalf("in-memory state must survive a failed save")
	}
}
