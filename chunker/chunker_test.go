package chunker

import (
	"strings"
	"testing"

	"legalqa-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func article(n string, length int) string {
	body := strings.Repeat("The controller shall implement appropriate measures. ", 1+length/53)
	return "Article " + n + "\n" + body[:length] + "\n"
}

func TestChunkEmptyInput(t *testing.T) {
	c := New()

	tests := []struct {
		name     string
		sections []models.Section
	}{
		{"no sections", nil},
		{"empty section", []models.Section{{Text: ""}}},
		{"whitespace only", []models.Section{{Text: "   \n\t  "}, {Text: "\n\n"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Chunk(tt.sections)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestChunkArticleStructure(t *testing.T) {
	c := New()

	text := "CHAPTER I\nGeneral provisions\n" +
		article("1", 200) + article("2", 200) + article("3", 200)

	chunks, err := c.Chunk([]models.Section{{
		Text:     text,
		Metadata: map[string]interface{}{"page": 1},
	}})
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
		assert.NotEmpty(t, chunk.Text)
		assert.Equal(t, models.LevelArticle, chunk.Level)
		assert.Equal(t, 1, chunk.Metadata["page"])
		assert.Equal(t, "CHAPTER I", chunk.Metadata["chapter"])
	}

	assert.Equal(t, "Article 1", chunks[0].Metadata["article"])
	assert.Equal(t, "Article 2", chunks[1].Metadata["article"])
	assert.Equal(t, "Article 3", chunks[2].Metadata["article"])
}

func TestChunkChapterFallback(t *testing.T) {
	c := New()

	body := strings.Repeat("Provisions applying to the whole chapter follow here. ", 4)
	text := "CHAPTER I\n" + body + "\nCHAPTER II\n" + body

	chunks, err := c.Chunk([]models.Section{{Text: text}})
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, models.LevelChapter, chunks[0].Level)
	assert.Equal(t, "CHAPTER I", chunks[0].Metadata["chapter"])
	assert.Equal(t, "CHAPTER II", chunks[1].Metadata["chapter"])
	assert.NotContains(t, chunks[0].Metadata, "article")
}

func TestChunkDeterminism(t *testing.T) {
	c := New()

	sections := []models.Section{
		{Text: "CHAPTER I\n" + article("1", 300) + article("2", 2500)},
		{Text: strings.Repeat("A plain paragraph about data protection rights. ", 10)},
	}

	first, err := c.Chunk(sections)
	require.NoError(t, err)

	second, err := c.Chunk(sections)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestChunkWindowSplitWithOverlap(t *testing.T) {
	c := New()

	// One article far larger than the window must become several
	// overlapping chunks sharing the article metadata
	text := article("1", 2500)
	chunks, err := c.Chunk([]models.Section{{Text: text}})
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk.Text), DefaultWindowSize)
		assert.Equal(t, models.LevelWindow, chunk.Level)
		assert.Equal(t, "Article 1", chunk.Metadata["article"])
	}

	// Adjacent windows step by windowSize-overlap
	step := DefaultWindowSize - DefaultOverlap
	assert.Equal(t, chunks[0].Start+step, chunks[1].Start)
	assert.Equal(t, chunks[1].Start+step, chunks[2].Start)
}

func TestChunkParagraphFallback(t *testing.T) {
	c := New()

	para := strings.Repeat("Data subjects have the right to access their data. ", 4)
	text := para + "\n\n" + para + "\n\n" + para

	chunks, err := c.Chunk([]models.Section{{Text: text}})
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	for _, chunk := range chunks {
		assert.Equal(t, models.LevelParagraph, chunk.Level)
		assert.Contains(t, text, chunk.Text)
	}
}

func TestChunkCoverage(t *testing.T) {
	c := New()

	text := "CHAPTER I\nIntro text before the first article that is long enough to stand on its own as a preamble unit here.\n" +
		article("1", 400) + article("2", 1800)

	chunks, err := c.Chunk([]models.Section{{Text: text}})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	// Every character position is inside at least one chunk span
	covered := make([]bool, len(text))
	for _, chunk := range chunks {
		for i := chunk.Start; i < chunk.End && i < len(text); i++ {
			covered[i] = true
		}
	}
	for i, ok := range covered {
		assert.True(t, ok, "position %d not covered", i)
	}
}

func TestChunkMergesSmallUnits(t *testing.T) {
	c := New()

	long := strings.Repeat("The supervisory authority shall monitor compliance. ", 4)

	t.Run("trailing small unit folds backward", func(t *testing.T) {
		chunks, err := c.Chunk([]models.Section{{Text: long + "\n\nShort note."}})
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Contains(t, chunks[0].Text, "Short note.")
	})

	t.Run("leading small unit folds forward", func(t *testing.T) {
		chunks, err := c.Chunk([]models.Section{{Text: "Short note.\n\n" + long}})
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, 0, chunks[0].Start)
		assert.Contains(t, chunks[0].Text, "Short note.")
	})

	t.Run("single small unit kept whole", func(t *testing.T) {
		chunks, err := c.Chunk([]models.Section{{Text: "Tiny."}})
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "Tiny.", chunks[0].Text)
	})
}

func TestChunkTrailingWindowMerged(t *testing.T) {
	// min > overlap makes a trailing partial window possible: it must be
	// absorbed into the previous chunk, not emitted or dropped
	c := New(WithWindowSize(100), WithOverlap(10), WithMinChunkSize(50))

	text := strings.Repeat("x", 130)
	chunks, err := c.Chunk([]models.Section{{Text: text}})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 130, chunks[0].End)
	assert.Equal(t, text, chunks[0].Text)
}

func TestChunkOptionClamping(t *testing.T) {
	c := New(WithWindowSize(100), WithOverlap(200))
	assert.Equal(t, 25, c.overlap) // clamped to windowSize/4

	c = New(WithWindowSize(100), WithMinChunkSize(500))
	assert.Equal(t, 100, c.minChunkSize)
}
