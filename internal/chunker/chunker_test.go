package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := New()
		assert.Equal(t, DefaultMinSize, c.MinSize())
		assert.Equal(t, DefaultMaxSize, c.MaxSize())
	})

	t.Run("custom sizes", func(t *testing.T) {
		c := New(WithMinSize(10), WithMaxSize(100))
		assert.Equal(t, 10, c.MinSize())
		assert.Equal(t, 100, c.MaxSize())
	})

	t.Run("zero values ignored", func(t *testing.T) {
		c := New(WithMinSize(0), WithMaxSize(-5))
		assert.Equal(t, DefaultMinSize, c.MinSize())
		assert.Equal(t, DefaultMaxSize, c.MaxSize())
	})

	t.Run("ceiling below floor corrected", func(t *testing.T) {
		c := New(WithMinSize(100), WithMaxSize(50))
		assert.Greater(t, c.MaxSize(), c.MinSize())
	})
}

func TestChunk_EmptyDocument(t *testing.T) {
	c := New()

	assert.Empty(t, c.Chunk(""))
	assert.Empty(t, c.Chunk("   \n\t\n  "))
}

func TestChunk_DocumentBelowFloor(t *testing.T) {
	c := New(WithMinSize(50), WithMaxSize(500))

	chunks := c.Chunk("too short")
	assert.Empty(t, chunks)
}

func TestChunk_NoHeadings(t *testing.T) {
	c := New(WithMinSize(10), WithMaxSize(5000))

	text := "A plain document without any headings.\nIt still has several lines.\nAll of it forms one chunk."
	chunks := c.Chunk(text)

	require.Len(t, chunks, 1)
	assert.Empty(t, chunks[0].Heading)
	assert.Equal(t, text, chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestChunk_HeadingBoundaries(t *testing.T) {
	c := New(WithMinSize(10), WithMaxSize(5000))

	text := strings.Join([]string{
		"# Introduction",
		"This section introduces the system in enough words to clear the floor.",
		"",
		"## Configuration",
		"This section explains every configuration knob in detail.",
		"",
		"## Usage",
		"This section shows how the system is used day to day.",
	}, "\n")

	chunks := c.Chunk(text)
	require.Len(t, chunks, 3)

	assert.Equal(t, "Introduction", chunks[0].Heading)
	assert.Equal(t, "Configuration", chunks[1].Heading)
	assert.Equal(t, "Usage", chunks[2].Heading)

	// The heading line belongs to the new chunk, not the previous one
	assert.True(t, strings.HasPrefix(chunks[1].Text, "## Configuration"))
	assert.False(t, strings.Contains(chunks[0].Text, "Configuration"))

	// Indices follow document order
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
	}
}

func TestChunk_Level3HeadingsDoNotSplit(t *testing.T) {
	c := New(WithMinSize(10), WithMaxSize(5000))

	text := strings.Join([]string{
		"# Guide",
		"Opening paragraph that is long enough to be kept.",
		"### Subsection",
		"Level-3 headings stay inside the parent chunk.",
	}, "\n")

	chunks := c.Chunk(text)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Text, "### Subsection")
}

func TestChunk_SectionBelowFloorDiscarded(t *testing.T) {
	c := New(WithMinSize(60), WithMaxSize(5000))

	text := strings.Join([]string{
		"# Keep",
		"This section has enough content to clear the sixty character floor easily.",
		"",
		"# Tiny",
		"nope",
	}, "\n")

	chunks := c.Chunk(text)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Keep", chunks[0].Heading)
}

func TestChunk_OversizedSectionResplit(t *testing.T) {
	c := New(WithMinSize(10), WithMaxSize(120))

	para := strings.Repeat("word ", 18) // ~90 chars
	text := strings.Join([]string{
		"# Big Section",
		strings.TrimSpace(para),
		"",
		strings.TrimSpace(para),
		"",
		strings.TrimSpace(para),
	}, "\n")

	chunks := c.Chunk(text)
	require.Greater(t, len(chunks), 1)

	// Sub-chunks inherit the parent heading
	for _, chunk := range chunks {
		assert.Equal(t, "Big Section", chunk.Heading)
		assert.GreaterOrEqual(t, len(chunk.Text), 10)
	}

	// Indices stay sequential across sub-chunks
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
	}
}

func TestChunk_SingleOversizedParagraphEmittedAsIs(t *testing.T) {
	c := New(WithMinSize(10), WithMaxSize(100))

	// One paragraph, no blank lines, well above the ceiling
	para := strings.TrimSpace(strings.Repeat("overflow ", 40))
	chunks := c.Chunk(para)

	require.Len(t, chunks, 1)
	assert.Greater(t, len(chunks[0].Text), 100)
}

func TestChunk_Idempotent(t *testing.T) {
	c := New(WithMinSize(20), WithMaxSize(200))

	text := strings.Join([]string{
		"# First",
		strings.Repeat("alpha beta gamma delta. ", 10),
		"",
		"## Second",
		strings.Repeat("epsilon zeta eta theta. ", 10),
	}, "\n")

	first := c.Chunk(text)
	second := c.Chunk(text)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i], second[i])
	}
}

func TestChunk_ChunkSizeBounds(t *testing.T) {
	c := New(WithMinSize(40), WithMaxSize(300))

	text := strings.Join([]string{
		"# A",
		strings.Repeat("lorem ipsum dolor sit amet. ", 30),
		"",
		"# B",
		strings.Repeat("consectetur adipiscing elit. ", 5),
	}, "\n")

	for _, chunk := range c.Chunk(text) {
		assert.GreaterOrEqual(t, len(chunk.Text), 40)
	}
}
