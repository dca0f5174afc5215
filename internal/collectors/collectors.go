// Package collectors reads the application's source tables and turns
// their rows into normalised records ready for embedding. One collector
// per domain; all of them share the same filtering, hashing and stats
// machinery and differ only in their row-to-text template and metadata
// projection.
package collectors

import (
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/semdex/internal/core/domain"
)

// Options are the knobs shared by every collector.
type Options struct {
	// MinContentLength drops records whose embeddable text is too short
	// to be worth embedding.
	MinContentLength int

	// ReplyPreviewChars bounds the assistant reply portion of a
	// conversation turn's embeddable text.
	ReplyPreviewChars int
}

// DefaultOptions mirror the built-in configuration defaults.
func DefaultOptions() Options {
	return Options{
		MinContentLength:  15,
		ReplyPreviewChars: 500,
	}
}

// builder accumulates records for one collector pass, applying the
// minimum-length filter and computing content hashes as records are
// added. Stats are tracked as a side effect.
type builder struct {
	minLength int
	records   []domain.Record
	stats     domain.CollectorStats
}

func newBuilder(minLength int) *builder {
	return &builder{minLength: minLength}
}

// add appends one candidate record. Records below the length floor are
// counted as seen but not indexable.
func (b *builder) add(dom domain.Domain, identity domain.Identity, text string, metadata map[string]any) {
	b.stats.TotalSeen++

	text = strings.TrimSpace(text)
	if len(text) < b.minLength {
		return
	}

	b.records = append(b.records, domain.Record{
		Domain:      dom,
		Identity:    identity,
		Text:        text,
		ContentHash: domain.HashText(text),
		Metadata:    metadata,
	})
	b.stats.Indexable++
}

// malformed counts a skipped source row that failed normalisation.
func (b *builder) malformed() {
	b.stats.TotalSeen++
	b.stats.Malformed++
}

// finish returns the collected records and stats with the distinct
// group count filled in.
func (b *builder) finish(groups int) ([]domain.Record, domain.CollectorStats) {
	b.stats.DistinctGroups = groups
	return b.records, b.stats
}

// joinNonEmpty joins the non-empty parts with the separator. Used by
// the templates that omit absent fields.
func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, sep)
}

// truncate bounds s to at most max bytes, cutting on a rune boundary.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := s[:max]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
