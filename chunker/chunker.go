// Package chunker splits parsed legal text into overlapping, hierarchy-aware
// passages suitable for embedding.
package chunker

import (
	"errors"
	"regexp"
	"strings"

	"legalqa-backend/models"
)

// DefaultWindowSize is the default maximum chunk size in characters.
const DefaultWindowSize = 1000

// DefaultOverlap is the default number of characters shared between
// adjacent windows cut from the same structural unit.
const DefaultOverlap = 200

// DefaultMinChunkSize is the default minimum chunk size in characters.
// Units below this are merged with a neighbor instead of emitted.
const DefaultMinChunkSize = 100

// ErrInvalidInput is returned when the input contains no usable text.
var ErrInvalidInput = errors.New("document contains no text")

var (
	chapterPattern = regexp.MustCompile(`(?i)\bCHAPTER\s+[IVXLCDM]+\b`)
	articlePattern = regexp.MustCompile(`(?i)\bArticle\s+\d+\b`)
	paragraphSplit = regexp.MustCompile(`\n\s*\n`)
)

// Chunker performs hierarchical splitting: strong structural boundaries
// (chapters, numbered articles) first, fixed windows with overlap within
// each unit second.
type Chunker struct {
	windowSize   int
	overlap      int
	minChunkSize int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithWindowSize sets the maximum chunk size in characters.
func WithWindowSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.windowSize = size
		}
	}
}

// WithOverlap sets the overlap between adjacent windows in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// WithMinChunkSize sets the minimum chunk size in characters.
func WithMinChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.minChunkSize = size
		}
	}
}

// New creates a chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		windowSize:   DefaultWindowSize,
		overlap:      DefaultOverlap,
		minChunkSize: DefaultMinChunkSize,
	}

	for _, opt := range opts {
		opt(c)
	}

	// Overlap must leave the window a positive step
	if c.overlap >= c.windowSize {
		c.overlap = c.windowSize / 4
	}
	if c.minChunkSize > c.windowSize {
		c.minChunkSize = c.windowSize
	}

	return c
}

// unit is one structural piece of a section: an article, a chapter without
// articles, or a fallback paragraph.
type unit struct {
	text   string
	start  int // character offset within the section text
	level  models.ChunkLevel
	labels map[string]interface{}
}

// Chunk splits the ordered sections into chunks with stable 0-based indices.
// The same input always produces the same sequence; the chunk index is the
// join key to the embedding matrix.
func (c *Chunker) Chunk(sections []models.Section) ([]models.Chunk, error) {
	hasText := false
	for _, s := range sections {
		if strings.TrimSpace(s.Text) != "" {
			hasText = true
			break
		}
	}
	if !hasText {
		return nil, ErrInvalidInput
	}

	chunks := make([]models.Chunk, 0)
	for _, section := range sections {
		if strings.TrimSpace(section.Text) == "" {
			continue
		}

		units := c.splitUnits(section.Text)
		units = c.mergeSmallUnits(section.Text, units)

		for _, u := range units {
			chunks = c.appendWindows(chunks, section, u)
		}
	}

	if len(chunks) == 0 {
		// Non-empty input must never produce zero chunks
		return nil, ErrInvalidInput
	}

	return chunks, nil
}

// splitUnits cuts section text at structural boundaries. Articles are the
// preferred granularity; chapters without articles stay whole; text with no
// recognizable numbering falls back to blank-line paragraphs.
func (c *Chunker) splitUnits(text string) []unit {
	articles := articlePattern.FindAllStringIndex(text, -1)
	if len(articles) > 0 {
		return c.splitByHeadings(text, articles, "article", models.LevelArticle)
	}

	chapters := chapterPattern.FindAllStringIndex(text, -1)
	if len(chapters) > 0 {
		return c.splitByHeadings(text, chapters, "chapter", models.LevelChapter)
	}

	return c.splitByParagraphs(text)
}

// splitByHeadings cuts text at each heading match, keeping any preamble
// before the first heading as its own paragraph-level unit.
func (c *Chunker) splitByHeadings(text string, matches [][]int, key string, level models.ChunkLevel) []unit {
	units := make([]unit, 0, len(matches)+1)

	if pre := text[:matches[0][0]]; strings.TrimSpace(pre) != "" {
		units = append(units, unit{
			text:   pre,
			start:  0,
			level:  models.LevelParagraph,
			labels: map[string]interface{}{},
		})
	}

	chapters := chapterPattern.FindAllStringIndex(text, -1)

	for i, m := range matches {
		start := m[0]
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}

		labels := map[string]interface{}{
			key: text[m[0]:m[1]],
		}
		if key == "article" {
			// Attribute the article to the last chapter heading before it
			for _, ch := range chapters {
				if ch[0] <= start {
					labels["chapter"] = text[ch[0]:ch[1]]
				} else {
					break
				}
			}
		}

		units = append(units, unit{
			text:   text[start:end],
			start:  start,
			level:  level,
			labels: labels,
		})
	}

	return units
}

// splitByParagraphs cuts text at blank lines.
func (c *Chunker) splitByParagraphs(text string) []unit {
	boundaries := paragraphSplit.FindAllStringIndex(text, -1)

	units := make([]unit, 0, len(boundaries)+1)
	start := 0
	for _, b := range boundaries {
		if strings.TrimSpace(text[start:b[0]]) != "" {
			units = append(units, unit{
				text:   text[start:b[0]],
				start:  start,
				level:  models.LevelParagraph,
				labels: map[string]interface{}{},
			})
		}
		start = b[1]
	}
	if strings.TrimSpace(text[start:]) != "" {
		units = append(units, unit{
			text:   text[start:],
			start:  start,
			level:  models.LevelParagraph,
			labels: map[string]interface{}{},
		})
	}

	return units
}

// mergeSmallUnits folds units below the minimum size into their neighbor so
// near-empty chunks are never emitted. A leading small unit is prepended to
// the one that follows; all others are appended to the one before. Merged
// units span the original text, so Text stays an exact slice of the section.
func (c *Chunker) mergeSmallUnits(text string, units []unit) []unit {
	merged := make([]unit, 0, len(units))
	for _, u := range units {
		if len(strings.TrimSpace(u.text)) >= c.minChunkSize || len(merged) == 0 {
			merged = append(merged, u)
			continue
		}
		prev := &merged[len(merged)-1]
		prev.text = text[prev.start : u.start+len(u.text)]
	}

	// A single leading small unit followed by a full one: fold forward
	if len(merged) >= 2 && len(strings.TrimSpace(merged[0].text)) < c.minChunkSize {
		first, second := merged[0], merged[1]
		merged[1] = unit{
			text:   text[first.start : second.start+len(second.text)],
			start:  first.start,
			level:  second.level,
			labels: second.labels,
		}
		merged = merged[1:]
	}

	return merged
}

// appendWindows emits one chunk per window of the unit. A unit that fits in
// one window is kept whole; a trailing window shorter than the minimum is
// merged into the previous chunk rather than dropped.
func (c *Chunker) appendWindows(chunks []models.Chunk, section models.Section, u unit) []models.Chunk {
	step := c.windowSize - c.overlap
	emitted := 0

	for start := 0; start < len(u.text); start += step {
		end := start + c.windowSize
		if end > len(u.text) {
			end = len(u.text)
		}

		// Trailing partial window below the minimum extends the previous
		// chunk instead of becoming its own
		if emitted > 0 && end-start < c.minChunkSize {
			prev := &chunks[len(chunks)-1]
			prev.Text = u.text[prev.Start-u.start : end]
			prev.End = u.start + end
			break
		}

		level := u.level
		if end-start < len(u.text) {
			level = models.LevelWindow
		}

		chunks = append(chunks, models.Chunk{
			Index:    len(chunks),
			Text:     u.text[start:end],
			Start:    u.start + start,
			End:      u.start + end,
			Level:    level,
			Metadata: c.chunkMetadata(section, u),
		})
		emitted++

		if end == len(u.text) {
			break
		}
	}

	return chunks
}

// chunkMetadata copies section metadata and adds any structural labels
// detected for the unit. Consumers treat missing keys as absent.
func (c *Chunker) chunkMetadata(section models.Section, u unit) map[string]interface{} {
	meta := make(map[string]interface{}, len(section.Metadata)+len(u.labels))
	for k, v := range section.Metadata {
		meta[k] = v
	}
	for k, v := range u.labels {
		meta[k] = v
	}
	return meta
}
