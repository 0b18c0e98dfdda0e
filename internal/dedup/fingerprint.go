package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"PaperDigest/internal/domain"
)

// topAuthors bounds how many authors feed the fingerprint, so that author
// reordering beyond the head of the list does not change it.
const topAuthors = 3

// Fingerprint derives the content-addressed dedup key for a paper:
// hash of the normalized title joined with a hash of the first three
// normalized author names. Equal normalized (title, head authors) always
// yields an equal fingerprint.
func Fingerprint(paper domain.Paper) string {
	return titleHash(paper.Title) + "_" + authorsHash(paper.Authors)
}

func titleHash(title string) string {
	return hashString(normalizeTitle(title))
}

func authorsHash(authors []string) string {
	head := authors
	if len(head) > topAuthors {
		head = head[:topAuthors]
	}

	normalized := make([]string, 0, len(head))
	for _, author := range head {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(author)))
	}

	return hashString(strings.Join(normalized, "|"))
}

// normalizeTitle lowercases, strips everything but letters, digits, and
// spaces, and collapses runs of whitespace, so trivial formatting
// differences between revisions collide to the same key.
func normalizeTitle(title string) string {
	lowered := strings.ToLower(strings.TrimSpace(title))

	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

func hashString(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
