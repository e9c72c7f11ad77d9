package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/TonyXing/youtube-to-epub/internal/types"
)

// PlaceholderOverview is the deterministic fallback used when best-effort
// mode accepts a failed chapter summary.
const PlaceholderOverview = "Summary unavailable"

// Output bounds, enforced regardless of what the model returns.
const (
	maxOverviewChars = 4000
	maxKeyPoints     = 7
)

// Defaults for the call-site retry policy and request sizing.
const (
	DefaultMaxRetries      = 3
	DefaultMaxRequestChars = 24000
	DefaultOverlapChars    = 800
)

var errEmptyCompletion = errors.New("completion returned no choices")

// Service produces summaries through an external Client, handling input
// chunking, bounded retries and response parsing at the call boundary.
type Service struct {
	client          Client
	maxRetries      int
	maxRequestChars int
	overlapChars    int
}

// New creates a summarization service. Zero arguments fall back to defaults.
func New(client Client, maxRetries, maxRequestChars int) *Service {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if maxRequestChars <= 0 {
		maxRequestChars = DefaultMaxRequestChars
	}
	return &Service{
		client:          client,
		maxRetries:      maxRetries,
		maxRequestChars: maxRequestChars,
		overlapChars:    DefaultOverlapChars,
	}
}

const summarySystemPrompt = "You are an expert content summarizer. Create clear, informative summaries. Respond only with valid JSON."

// summaryPayload matches the JSON shape requested from the model.
type summaryPayload struct {
	Title     string   `json:"title"`
	Overview  string   `json:"overview"`
	KeyPoints []string `json:"key_points"`
}

// SummarizeDocument produces the single document-level summary from the full
// transcript, reducing over per-chunk summaries when the text exceeds the
// request budget.
func (s *Service) SummarizeDocument(ctx context.Context, meta *types.VideoMetadata, fullText string) (types.Summary, error) {
	chunks := chunkText(fullText, s.maxRequestChars, s.overlapChars)

	source := fullText
	if len(chunks) > 1 {
		parts := make([]string, 0, len(chunks))
		for i, chunk := range chunks {
			part, err := s.summarizeChunk(ctx, chunk, i+1, len(chunks))
			if err != nil {
				return types.Summary{}, err
			}
			parts = append(parts, part)
		}
		source = strings.Join(parts, "\n\n")
		if len(source) > s.maxRequestChars {
			source = truncate(source, s.maxRequestChars)
		}
	}

	prompt := fmt.Sprintf(`Analyze this video content and create a comprehensive summary.

Video: %q by %s
Duration: %d minutes

Content:
%s

Provide:
1. An overview (2-3 paragraphs) that captures the main points
2. 5-7 key takeaways as bullet points

Respond with ONLY valid JSON in this exact format:
{"overview": "...", "key_points": ["...", "..."]}`,
		meta.Title, meta.Channel, meta.Duration/60, source)

	payload, err := s.completeJSON(ctx, prompt)
	if err != nil {
		return types.Summary{}, types.NewConversionError(types.KindSummarization, "could not summarize the video", err)
	}
	return clampSummary(payload), nil
}

// SummarizeChapter produces one chapter's summary. For placeholder-titled
// chapters the model is also asked for a descriptive title; the returned
// title is empty otherwise.
func (s *Service) SummarizeChapter(ctx context.Context, chapter types.Chapter) (types.Summary, string, error) {
	text := chapter.Transcript
	if len(text) > s.maxRequestChars {
		text = truncate(text, s.maxRequestChars)
	}

	var prompt string
	if chapter.Placeholder {
		prompt = fmt.Sprintf(`Summarize this section of a video.

Transcript:
%s

Provide:
1. A short descriptive title for the section (not "Chapter N" or "Part N")
2. A concise summary (1-2 paragraphs) capturing the main points
3. Up to 5 key points

Respond with ONLY valid JSON in this exact format:
{"title": "...", "overview": "...", "key_points": ["...", "..."]}`, text)
	} else {
		prompt = fmt.Sprintf(`Summarize this chapter of a video.

Chapter: %q
Transcript:
%s

Provide a concise summary (1-2 paragraphs) and up to 5 key points.

Respond with ONLY valid JSON in this exact format:
{"overview": "...", "key_points": ["...", "..."]}`, chapter.Title, text)
	}

	payload, err := s.completeJSON(ctx, prompt)
	if err != nil {
		return types.Summary{}, "", types.NewConversionError(types.KindSummarization,
			fmt.Sprintf("could not summarize chapter %q", chapter.Title), err)
	}
	return clampSummary(payload), strings.TrimSpace(payload.Title), nil
}

// summarizeChunk reduces one oversized-transcript chunk to prose.
func (s *Service) summarizeChunk(ctx context.Context, chunk string, index, total int) (string, error) {
	prompt := fmt.Sprintf(`Summarize this portion of a video transcript (part %d of %d).
Focus on the key points and main ideas.

Transcript:
%s

Provide a concise summary (2-3 paragraphs).`, index, total, chunk)

	var out string
	err := s.withRetries(ctx, func() error {
		content, err := s.client.Complete(ctx, "You are an expert content summarizer. Create clear, informative summaries.", prompt)
		if err != nil {
			return err
		}
		out = strings.TrimSpace(content)
		return nil
	})
	if err != nil {
		return "", types.NewConversionError(types.KindSummarization, "could not summarize the video", err)
	}
	return out, nil
}

// completeJSON runs one retried completion and parses the JSON payload,
// tolerating markdown code fences around it.
func (s *Service) completeJSON(ctx context.Context, prompt string) (*summaryPayload, error) {
	var payload summaryPayload
	err := s.withRetries(ctx, func() error {
		content, err := s.client.Complete(ctx, summarySystemPrompt, prompt)
		if err != nil {
			return err
		}
		payload = summaryPayload{}
		if err := json.Unmarshal([]byte(stripCodeFences(content)), &payload); err != nil {
			return fmt.Errorf("unparseable summary response: %w", err)
		}
		if strings.TrimSpace(payload.Overview) == "" {
			return errors.New("summary response missing overview")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &payload, nil
}

// withRetries runs fn up to maxRetries times with attempt-squared backoff.
// Retries are invisible outside this boundary.
func (s *Service) withRetries(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == s.maxRetries {
			break
		}
		log.Printf("Summarization attempt %d/%d failed: %v", attempt, s.maxRetries, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt*attempt) * time.Second):
		}
	}
	return err
}

// clampSummary enforces the documented output bounds.
func clampSummary(payload *summaryPayload) types.Summary {
	overview := strings.TrimSpace(payload.Overview)
	if len(overview) > maxOverviewChars {
		overview = truncate(overview, maxOverviewChars)
	}
	points := payload.KeyPoints
	if len(points) > maxKeyPoints {
		points = points[:maxKeyPoints]
	}
	return types.Summary{Overview: overview, KeyPoints: points}
}

// stripCodeFences unwraps ```json ... ``` style responses.
func stripCodeFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.Contains(content, "```") {
		return content
	}
	parts := strings.Split(content, "```")
	if len(parts) < 2 {
		return content
	}
	inner := parts[1]
	inner = strings.TrimPrefix(inner, "json")
	return strings.TrimSpace(inner)
}

// chunkText splits text into rune-safe chunks of at most maxChars with the
// given overlap between consecutive chunks.
func chunkText(text string, maxChars, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return []string{text}
	}
	if overlap >= maxChars {
		overlap = maxChars / 4
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + maxChars
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
		start = end - overlap
	}
	return chunks
}

// truncate cuts text to at most maxChars runes.
func truncate(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars])
}
