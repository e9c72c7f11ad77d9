package epub

import (
	"context"
	"fmt"
	"html"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	goepub "github.com/bmaupin/go-epub"

	"github.com/TonyXing/youtube-to-epub/internal/types"
	"github.com/TonyXing/youtube-to-epub/internal/youtube"
)

// Paragraph sizing for transcript text inside chapter sections.
const transcriptParagraphChars = 500

// Assembler writes finished books as EPUB files into the output directory.
type Assembler struct {
	outputDir string
	http      *http.Client
}

// New creates an assembler writing into outputDir.
func New(outputDir string) *Assembler {
	return &Assembler{
		outputDir: outputDir,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

// Assemble renders the book into a single EPUB and returns the written file
// path. Section order is fixed: cover, overall summary, then one section per
// chapter in playback order.
func (a *Assembler) Assemble(ctx context.Context, book *types.Book) (string, error) {
	if len(book.Chapters) == 0 {
		return "", types.NewConversionError(types.KindAssembly, "could not assemble the book",
			fmt.Errorf("book has no chapters"))
	}

	e := goepub.NewEpub(book.Metadata.Title)
	e.SetAuthor(book.Metadata.Channel)
	e.SetDescription(fmt.Sprintf("Generated from the YouTube video %q by %s",
		book.Metadata.Title, book.Metadata.Channel))

	coverImage := a.fetchThumbnail(ctx, e, book.Metadata.ThumbnailURL)

	if _, err := e.AddSection(coverSection(&book.Metadata, coverImage), "Cover", "cover.xhtml", ""); err != nil {
		return "", types.NewConversionError(types.KindAssembly, "could not assemble the book", err)
	}
	if _, err := e.AddSection(summarySection(book), "Summary", "summary.xhtml", ""); err != nil {
		return "", types.NewConversionError(types.KindAssembly, "could not assemble the book", err)
	}
	for i, chapter := range book.Chapters {
		fileName := fmt.Sprintf("chapter_%02d.xhtml", i+1)
		if _, err := e.AddSection(chapterSection(&chapter), chapter.Title, fileName, ""); err != nil {
			return "", types.NewConversionError(types.KindAssembly, "could not assemble the book", err)
		}
	}

	if err := os.MkdirAll(a.outputDir, 0755); err != nil {
		return "", types.NewConversionError(types.KindAssembly, "could not assemble the book", err)
	}
	outPath := filepath.Join(a.outputDir, FileName(book.Metadata.Title))
	if err := e.Write(outPath); err != nil {
		return "", types.NewConversionError(types.KindAssembly, "could not assemble the book", err)
	}

	log.Printf("Assembled %s (%d chapters)", outPath, len(book.Chapters))
	return outPath, nil
}

// fetchThumbnail downloads the video thumbnail and registers it with the
// book. Thumbnails are decoration: any failure is logged and skipped.
func (a *Assembler) fetchThumbnail(ctx context.Context, e *goepub.Epub, thumbnailURL string) string {
	if thumbnailURL == "" {
		return ""
	}

	localPath, err := a.downloadThumbnail(ctx, thumbnailURL)
	if err != nil {
		log.Printf("Skipping thumbnail: %v", err)
		return ""
	}
	defer os.Remove(localPath)

	internalPath, err := e.AddImage(localPath, "cover"+filepath.Ext(localPath))
	if err != nil {
		log.Printf("Skipping thumbnail: %v", err)
		return ""
	}
	return internalPath
}

func (a *Assembler) downloadThumbnail(ctx context.Context, thumbnailURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, thumbnailURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("thumbnail download returned HTTP %d", resp.StatusCode)
	}

	ext := ".jpg"
	if strings.Contains(resp.Header.Get("Content-Type"), "png") {
		ext = ".png"
	}
	tmp, err := os.CreateTemp("", "thumbnail-*"+ext)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// coverSection renders the title page: video title, channel, duration, and
// the thumbnail when one was fetched.
func coverSection(meta *types.VideoMetadata, coverImage string) string {
	var b strings.Builder
	b.WriteString(`<div style="text-align: center;">`)
	if coverImage != "" {
		fmt.Fprintf(&b, `<img src="%s" alt="Cover" style="max-width: 100%%;"/>`, coverImage)
	}
	fmt.Fprintf(&b, "<h1>%s</h1>", html.EscapeString(meta.Title))
	fmt.Fprintf(&b, "<p>by %s</p>", html.EscapeString(meta.Channel))
	fmt.Fprintf(&b, "<p>Duration: %s</p>", youtube.FormatDuration(meta.Duration))
	b.WriteString(`</div>`)
	return b.String()
}

// summarySection renders the document-level summary followed by the video
// details block.
func summarySection(book *types.Book) string {
	var b strings.Builder
	b.WriteString("<h1>Summary</h1>")
	writeParagraphs(&b, book.OverallSummary.Overview)

	if len(book.OverallSummary.KeyPoints) > 0 {
		b.WriteString("<h2>Key Takeaways</h2><ul>")
		for _, point := range book.OverallSummary.KeyPoints {
			fmt.Fprintf(&b, "<li>%s</li>", html.EscapeString(point))
		}
		b.WriteString("</ul>")
	}

	b.WriteString("<h2>Video Information</h2><ul>")
	fmt.Fprintf(&b, "<li>Channel: %s</li>", html.EscapeString(book.Metadata.Channel))
	fmt.Fprintf(&b, "<li>Duration: %s</li>", youtube.FormatDuration(book.Metadata.Duration))
	if book.Metadata.PublishDate != "" {
		fmt.Fprintf(&b, "<li>Published: %s</li>", html.EscapeString(book.Metadata.PublishDate))
	}
	fmt.Fprintf(&b, "<li>Chapters: %d</li>", len(book.Chapters))
	b.WriteString("</ul>")
	return b.String()
}

// chapterSection renders one chapter: summary first, then the time range,
// then the full transcript text.
func chapterSection(chapter *types.Chapter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h1>%s</h1>", html.EscapeString(chapter.Title))

	b.WriteString("<h2>Chapter Summary</h2>")
	writeParagraphs(&b, chapter.Summary.Overview)
	if len(chapter.Summary.KeyPoints) > 0 {
		b.WriteString("<ul>")
		for _, point := range chapter.Summary.KeyPoints {
			fmt.Fprintf(&b, "<li>%s</li>", html.EscapeString(point))
		}
		b.WriteString("</ul>")
	}

	fmt.Fprintf(&b, "<p><em>%s - %s</em></p>",
		youtube.FormatDuration(int(chapter.StartTime)),
		youtube.FormatDuration(int(chapter.EndTime)))

	b.WriteString("<h2>Transcript</h2>")
	for _, para := range splitParagraphs(chapter.Transcript, transcriptParagraphChars) {
		fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(para))
	}
	return b.String()
}

func writeParagraphs(b *strings.Builder, text string) {
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		fmt.Fprintf(b, "<p>%s</p>", html.EscapeString(para))
	}
}

// splitParagraphs breaks a long flat text into readable paragraphs of roughly
// targetChars, preferring sentence boundaries.
func splitParagraphs(text string, targetChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var paragraphs []string
	var current strings.Builder
	for _, sentence := range splitSentences(text) {
		if current.Len() > 0 && current.Len()+len(sentence) > targetChars {
			paragraphs = append(paragraphs, strings.TrimSpace(current.String()))
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		paragraphs = append(paragraphs, strings.TrimSpace(current.String()))
	}
	return paragraphs
}

// splitSentences is a cheap splitter on sentence-final punctuation. Caption
// text rarely abbreviates, so this is good enough for paragraph breaks.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if (c == '.' || c == '!' || c == '?') && (i+1 == len(text) || text[i+1] == ' ') {
			sentences = append(sentences, strings.TrimSpace(text[start:i+1]))
			start = i + 1
		}
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

// FileName derives the output file name from the video title.
func FileName(title string) string {
	return sanitizeFilename(title) + ".epub"
}

// sanitizeFilename keeps letters, digits, spaces, hyphens and underscores,
// collapsing everything else away, and caps the length.
func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	out := strings.Join(strings.Fields(b.String()), " ")
	if out == "" {
		out = "video"
	}
	if len(out) > 100 {
		out = strings.TrimSpace(out[:100])
	}
	return out
}
