package summarizer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TonyXing/youtube-to-epub/internal/types"
)

// stubClient replays canned responses (or errors) in order, recording the
// prompts it received.
type stubClient struct {
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (s *stubClient) Complete(_ context.Context, _, userPrompt string) (string, error) {
	i := s.calls
	s.calls++
	s.prompts = append(s.prompts, userPrompt)
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return s.responses[len(s.responses)-1], nil
}

func testMeta() *types.VideoMetadata {
	return &types.VideoMetadata{VideoID: "v", Title: "A Talk", Channel: "Chan", Duration: 1800}
}

func TestSummarizeDocument(t *testing.T) {
	client := &stubClient{responses: []string{
		`{"overview": "A clear overview.", "key_points": ["one", "two"]}`,
	}}
	svc := New(client, 1, 0)

	summary, err := svc.SummarizeDocument(context.Background(), testMeta(), "short transcript text")
	require.NoError(t, err)
	assert.Equal(t, "A clear overview.", summary.Overview)
	assert.Equal(t, []string{"one", "two"}, summary.KeyPoints)
	assert.Equal(t, 1, client.calls)
}

func TestSummarizeDocumentChunked(t *testing.T) {
	client := &stubClient{responses: []string{
		"chunk one summary",
		"chunk two summary",
		`{"overview": "Combined overview.", "key_points": ["merged"]}`,
	}}
	svc := New(client, 1, 0)

	longText := strings.Repeat("word ", 6000)
	summary, err := svc.SummarizeDocument(context.Background(), testMeta(), longText)
	require.NoError(t, err)
	assert.Equal(t, "Combined overview.", summary.Overview)
	// Two chunk calls plus the reduce call.
	assert.Equal(t, 3, client.calls)
	assert.Contains(t, client.prompts[0], "part 1 of 2")
	assert.Contains(t, client.prompts[2], "chunk one summary")
}

func TestSummarizeDocumentStripsCodeFences(t *testing.T) {
	client := &stubClient{responses: []string{
		"```json\n{\"overview\": \"Fenced.\", \"key_points\": []}\n```",
	}}
	svc := New(client, 1, 0)

	summary, err := svc.SummarizeDocument(context.Background(), testMeta(), "text")
	require.NoError(t, err)
	assert.Equal(t, "Fenced.", summary.Overview)
}

func TestSummarizeDocumentRetriesThenSucceeds(t *testing.T) {
	client := &stubClient{
		errs:      []error{errors.New("rate limited"), nil},
		responses: []string{"", `{"overview": "Eventually.", "key_points": []}`},
	}
	svc := New(client, 2, 0)

	summary, err := svc.SummarizeDocument(context.Background(), testMeta(), "text")
	require.NoError(t, err)
	assert.Equal(t, "Eventually.", summary.Overview)
	assert.Equal(t, 2, client.calls)
}

func TestSummarizeDocumentFailsAfterRetries(t *testing.T) {
	boom := errors.New("upstream down")
	client := &stubClient{errs: []error{boom, boom}, responses: []string{""}}
	svc := New(client, 2, 0)

	_, err := svc.SummarizeDocument(context.Background(), testMeta(), "text")
	require.Error(t, err)

	var ce *types.ConversionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, types.KindSummarization, ce.Kind)
	assert.Equal(t, 2, client.calls)
}

func TestSummarizeDocumentRejectsMissingOverview(t *testing.T) {
	client := &stubClient{responses: []string{`{"overview": "", "key_points": ["x"]}`}}
	svc := New(client, 1, 0)

	_, err := svc.SummarizeDocument(context.Background(), testMeta(), "text")
	assert.Error(t, err)
}

func TestSummarizeChapterPlaceholderGetsTitle(t *testing.T) {
	client := &stubClient{responses: []string{
		`{"title": "Real Title", "overview": "Chapter overview.", "key_points": ["kp"]}`,
	}}
	svc := New(client, 1, 0)

	chapter := types.Chapter{Title: "Part 1", Transcript: "some text", Placeholder: true}
	summary, title, err := svc.SummarizeChapter(context.Background(), chapter)
	require.NoError(t, err)
	assert.Equal(t, "Real Title", title)
	assert.Equal(t, "Chapter overview.", summary.Overview)
	assert.Contains(t, client.prompts[0], "descriptive title")
}

func TestSummarizeChapterPublisherTitleKept(t *testing.T) {
	client := &stubClient{responses: []string{
		`{"overview": "Chapter overview.", "key_points": []}`,
	}}
	svc := New(client, 1, 0)

	chapter := types.Chapter{Title: "Intro", Transcript: "some text"}
	_, title, err := svc.SummarizeChapter(context.Background(), chapter)
	require.NoError(t, err)
	assert.Empty(t, title)
	assert.NotContains(t, client.prompts[0], "descriptive title")
}

func TestClampSummary(t *testing.T) {
	payload := &summaryPayload{
		Overview:  strings.Repeat("x", maxOverviewChars+100),
		KeyPoints: make([]string, maxKeyPoints+5),
	}
	summary := clampSummary(payload)
	assert.Len(t, summary.Overview, maxOverviewChars)
	assert.Len(t, summary.KeyPoints, maxKeyPoints)
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFences(`{"a":1}`))
}

func TestChunkText(t *testing.T) {
	text := strings.Repeat("a", 100)

	assert.Equal(t, []string{text}, chunkText(text, 100, 10))

	chunks := chunkText(text, 40, 10)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 40)
	assert.Len(t, chunks[1], 40)
	assert.Len(t, chunks[2], 40)

	// Consecutive chunks share the overlap window.
	assert.Equal(t, chunks[0][30:], chunks[1][:10])
}
