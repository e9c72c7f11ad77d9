package epub

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TonyXing/youtube-to-epub/internal/types"
)

func testBook() *types.Book {
	return &types.Book{
		Metadata: types.VideoMetadata{
			VideoID:     "dQw4w9WgXcQ",
			Title:       "Understanding Things: A Guide",
			Channel:     "Good Channel",
			Duration:    3725,
			PublishDate: "2024-01-15",
		},
		OverallSummary: types.Summary{
			Overview:  "First paragraph.\n\nSecond paragraph.",
			KeyPoints: []string{"point one", "point <two>"},
		},
		Chapters: []types.Chapter{
			{
				Title:      "Intro & Setup",
				StartTime:  0,
				EndTime:    1800,
				Transcript: "Welcome everyone. Today we cover things.",
				Summary:    types.Summary{Overview: "The intro.", KeyPoints: []string{"hello"}},
			},
			{
				Title:      "Main Part",
				StartTime:  1800,
				EndTime:    3725,
				Transcript: "Now the details.",
				Summary:    types.Summary{Overview: "The details."},
			},
		},
	}
}

func TestAssembleWritesEpub(t *testing.T) {
	dir := t.TempDir()
	a := New(dir)

	path, err := a.Assemble(context.Background(), testBook())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "Understanding Things A Guide.epub"), path)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestAssembleRejectsEmptyBook(t *testing.T) {
	a := New(t.TempDir())
	book := testBook()
	book.Chapters = nil

	_, err := a.Assemble(context.Background(), book)
	require.Error(t, err)

	var ce *types.ConversionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, types.KindAssembly, ce.Kind)
}

func TestSummarySectionContent(t *testing.T) {
	book := testBook()
	body := summarySection(book)

	assert.Contains(t, body, "<p>First paragraph.</p>")
	assert.Contains(t, body, "<p>Second paragraph.</p>")
	assert.Contains(t, body, "Key Takeaways")
	// HTML in model output must never reach the book unescaped.
	assert.Contains(t, body, "point &lt;two&gt;")
	assert.NotContains(t, body, "point <two>")
	assert.Contains(t, body, "Published: 2024-01-15")
	assert.Contains(t, body, "Chapters: 2")
	assert.Contains(t, body, "Duration: 1:02:05")
}

func TestChapterSectionOrdering(t *testing.T) {
	chapter := &types.Chapter{
		Title:      "Intro",
		StartTime:  0,
		EndTime:    930,
		Transcript: "Some transcript text.",
		Summary:    types.Summary{Overview: "Short overview.", KeyPoints: []string{"kp"}},
	}
	body := chapterSection(chapter)

	// Summary precedes the timestamp, which precedes the transcript.
	summaryIdx := strings.Index(body, "Chapter Summary")
	timeIdx := strings.Index(body, "0:00 - 15:30")
	transcriptIdx := strings.Index(body, "Some transcript text.")
	require.NotEqual(t, -1, summaryIdx)
	require.NotEqual(t, -1, timeIdx)
	require.NotEqual(t, -1, transcriptIdx)
	assert.Less(t, summaryIdx, timeIdx)
	assert.Less(t, timeIdx, transcriptIdx)
}

func TestCoverSectionEscapesTitle(t *testing.T) {
	meta := &types.VideoMetadata{Title: "Tom & Jerry <3", Channel: "Cartoons", Duration: 60}
	body := coverSection(meta, "")

	assert.Contains(t, body, "Tom &amp; Jerry &lt;3")
	assert.NotContains(t, body, "<img")
}

func TestSplitParagraphs(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("This is a sentence. ", 100))
	paragraphs := splitParagraphs(text, 500)

	require.Greater(t, len(paragraphs), 1)
	for _, p := range paragraphs {
		assert.LessOrEqual(t, len(p), 520)
		assert.True(t, strings.HasSuffix(p, "."), "paragraph should end at a sentence boundary")
	}
	assert.Equal(t, text, strings.Join(paragraphs, " "))

	assert.Nil(t, splitParagraphs("", 500))
	assert.Equal(t, []string{"no punctuation here"}, splitParagraphs("no punctuation here", 500))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "My Video.epub", FileName("My Video"))
	assert.Equal(t, "Whats up Part 2.epub", FileName(`What's "up" / Part 2?`))
	assert.Equal(t, "video.epub", FileName("???!!!"))

	long := FileName(strings.Repeat("a", 200))
	assert.LessOrEqual(t, len(long), 105)
}
