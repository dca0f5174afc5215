// Package chunker splits long documents into semantically bounded text
// chunks along markdown heading boundaries, honouring size floors and
// ceilings. Chunk indices are part of record identity, so re-chunking
// with changed thresholds requires a full document reindex.
package chunker

import (
	"strings"
)

// DefaultMinSize is the default chunk size floor in characters.
// Chunks below the floor are too small to be independently meaningful
// and are discarded.
const DefaultMinSize = 80

// DefaultMaxSize is the default chunk size ceiling in characters.
// The ceiling is best-effort: a single oversized paragraph with no blank
// lines is emitted as-is.
const DefaultMaxSize = 2000

// Chunk is a bounded contiguous slice of a document's text.
type Chunk struct {
	// Heading is the level-1 or level-2 heading the chunk falls under,
	// empty for documents without headings.
	Heading string

	// Text is the chunk content, heading line included.
	Text string

	// Index is the 0-based position in document order. It is part of the
	// record identity and must be stable for unchanged input.
	Index int
}

// Chunker splits document text into chunks.
type Chunker struct {
	minSize int
	maxSize int
}

// Option configures the chunker.
type Option func(*Chunker)

// WithMinSize sets the chunk size floor in characters.
func WithMinSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.minSize = size
		}
	}
}

// WithMaxSize sets the chunk size ceiling in characters.
func WithMaxSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.maxSize = size
		}
	}
}

// New creates a chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		minSize: DefaultMinSize,
		maxSize: DefaultMaxSize,
	}

	for _, opt := range opts {
		opt(c)
	}

	// Ceiling must sit above the floor
	if c.maxSize <= c.minSize {
		c.maxSize = c.minSize * 2
	}

	return c
}

// MinSize returns the configured chunk size floor.
func (c *Chunker) MinSize() int { return c.minSize }

// MaxSize returns the configured chunk size ceiling.
func (c *Chunker) MaxSize() int { return c.maxSize }

// Chunk splits document text into ordered chunks. An empty or
// whitespace-only document produces zero chunks.
func (c *Chunker) Chunk(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	sections := splitSections(text)

	var chunks []Chunk
	for _, sec := range sections {
		body := strings.TrimSpace(sec.text)
		if len(body) < c.minSize {
			continue
		}

		if len(body) <= c.maxSize {
			chunks = append(chunks, Chunk{Heading: sec.heading, Text: body})
			continue
		}

		// Oversized section: re-split on paragraph boundaries, greedily
		// accumulating up to the ceiling. Sub-chunks inherit the heading.
		for _, sub := range c.splitParagraphs(body) {
			if len(sub) < c.minSize {
				continue
			}
			chunks = append(chunks, Chunk{Heading: sec.heading, Text: sub})
		}
	}

	for i := range chunks {
		chunks[i].Index = i
	}

	return chunks
}

// section is a heading-delimited region of the document.
type section struct {
	heading string
	text    string
}

// splitSections scans lines; a level-1 or level-2 heading starts a new
// section with the heading line included. A document without headings is
// a single section.
func splitSections(text string) []section {
	lines := strings.Split(text, "\n")

	var sections []section
	var current []string
	var heading string

	flush := func() {
		if len(current) == 0 {
			return
		}
		sections = append(sections, section{
			heading: heading,
			text:    strings.Join(current, "\n"),
		})
		current = nil
	}

	for _, line := range lines {
		if h, ok := headingText(line); ok {
			flush()
			heading = h
		}
		current = append(current, line)
	}
	flush()

	return sections
}

// headingText returns the heading title when the line is a markdown
// level-1 or level-2 heading.
func headingText(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	for _, marker := range []string{"## ", "# "} {
		if strings.HasPrefix(trimmed, marker) {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, marker)), true
		}
	}
	return "", false
}

// splitParagraphs re-splits an oversized body on blank-line-delimited
// paragraph boundaries, greedily packing paragraphs until the ceiling
// would be exceeded. A single paragraph larger than the ceiling is
// emitted as-is; the ceiling is best-effort, not hard.
func (c *Chunker) splitParagraphs(body string) []string {
	paragraphs := blankLineSplit(body)

	var out []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		out = append(out, current.String())
		current.Reset()
	}

	for _, par := range paragraphs {
		if current.Len() > 0 && current.Len()+len(par)+2 > c.maxSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(par)
	}
	flush()

	return out
}

// blankLineSplit splits text into paragraphs on runs of blank lines.
func blankLineSplit(text string) []string {
	lines := strings.Split(text, "\n")

	var paragraphs []string
	var current []string

	flush := func() {
		if len(current) == 0 {
			return
		}
		paragraphs = append(paragraphs, strings.Join(current, "\n"))
		current = nil
	}

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()

	return paragraphs
}
