package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/TonyXing/youtube-to-epub/internal/types"
)

// ErrNoTranscript marks a video with no usable caption track. It is a
// distinct terminal condition, not a network failure.
var ErrNoTranscript = errors.New("no transcript available")

// Preferred caption languages, in order.
var captionLanguages = []string{"en", "en-US", "en-GB", "en-orig"}

// Client fetches video metadata and transcripts. Metadata comes from a
// yt-dlp subprocess (JSON dump, no media download); the transcript is the
// json3 caption track referenced by that dump.
type Client struct {
	binPath string
	http    *http.Client
	timeout time.Duration
}

// NewClient creates a fetcher around the given yt-dlp binary.
func NewClient(binPath string, timeoutSeconds int) *Client {
	if binPath == "" {
		binPath = "yt-dlp"
	}
	timeout := time.Duration(timeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		binPath: binPath,
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// videoDump matches the subset of yt-dlp's --dump-single-json output we use.
type videoDump struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Channel    string  `json:"channel"`
	Uploader   string  `json:"uploader"`
	Duration   float64 `json:"duration"`
	Thumbnail  string  `json:"thumbnail"`
	UploadDate string  `json:"upload_date"`
	Chapters   []struct {
		Title     string  `json:"title"`
		StartTime float64 `json:"start_time"`
	} `json:"chapters"`
	Subtitles         map[string][]captionTrack `json:"subtitles"`
	AutomaticCaptions map[string][]captionTrack `json:"automatic_captions"`
}

type captionTrack struct {
	URL string `json:"url"`
	Ext string `json:"ext"`
}

// dump runs yt-dlp and parses its single-JSON description of the video.
func (c *Client) dump(ctx context.Context, ref types.VideoReference) (*videoDump, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.binPath,
		"--dump-single-json",
		"--skip-download",
		"--no-warnings",
		ref.URL,
	)

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("yt-dlp failed: %v\nOutput: %s", err, string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("yt-dlp failed: %w", err)
	}

	var dump videoDump
	if err := json.Unmarshal(output, &dump); err != nil {
		return nil, fmt.Errorf("failed to parse yt-dlp output: %w", err)
	}
	return &dump, nil
}

// Metadata fetches title, channel, duration, thumbnail and publisher
// chapters for a video.
func (c *Client) Metadata(ctx context.Context, ref types.VideoReference) (*types.VideoMetadata, error) {
	dump, err := c.dump(ctx, ref)
	if err != nil {
		return nil, types.NewConversionError(types.KindFetchError, "could not fetch video metadata", err)
	}
	return metadataFromDump(ref, dump), nil
}

func metadataFromDump(ref types.VideoReference, dump *videoDump) *types.VideoMetadata {
	channel := dump.Channel
	if channel == "" {
		channel = dump.Uploader
	}

	meta := &types.VideoMetadata{
		VideoID:      ref.VideoID,
		Title:        dump.Title,
		Channel:      channel,
		Duration:     int(dump.Duration),
		ThumbnailURL: dump.Thumbnail,
		PublishDate:  formatUploadDate(dump.UploadDate),
	}
	for _, ch := range dump.Chapters {
		meta.Chapters = append(meta.Chapters, types.PublisherChapter{
			Title:     ch.Title,
			StartTime: ch.StartTime,
		})
	}
	return meta
}

// formatUploadDate converts yt-dlp's YYYYMMDD into YYYY-MM-DD.
func formatUploadDate(raw string) string {
	if len(raw) != 8 {
		return ""
	}
	return raw[0:4] + "-" + raw[4:6] + "-" + raw[6:8]
}

// Transcript fetches and parses the caption track for a video. Returns
// ErrNoTranscript (wrapped) when the video has no usable captions.
func (c *Client) Transcript(ctx context.Context, ref types.VideoReference) (types.Transcript, error) {
	dump, err := c.dump(ctx, ref)
	if err != nil {
		return nil, types.NewConversionError(types.KindFetchError, "could not fetch caption listing", err)
	}

	trackURL := pickCaptionTrack(dump)
	if trackURL == "" {
		return nil, types.NewConversionError(types.KindEmptyTranscript, "no transcript available", ErrNoTranscript)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trackURL, nil)
	if err != nil {
		return nil, types.NewConversionError(types.KindFetchError, "could not fetch transcript", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, types.NewConversionError(types.KindFetchError, "could not fetch transcript", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewConversionError(types.KindFetchError, "could not fetch transcript",
			fmt.Errorf("caption download returned HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewConversionError(types.KindFetchError, "could not fetch transcript", err)
	}

	transcript, err := parseJSON3(body)
	if err != nil {
		return nil, types.NewConversionError(types.KindFetchError, "could not parse transcript", err)
	}
	if len(transcript) == 0 {
		return nil, types.NewConversionError(types.KindEmptyTranscript, "no transcript available", ErrNoTranscript)
	}

	log.Printf("Fetched transcript for %s (%d segments)", ref.VideoID, len(transcript))
	return transcript, nil
}

// pickCaptionTrack prefers manual subtitles over automatic captions, and
// English variants over everything else.
func pickCaptionTrack(dump *videoDump) string {
	for _, tracks := range []map[string][]captionTrack{dump.Subtitles, dump.AutomaticCaptions} {
		if len(tracks) == 0 {
			continue
		}
		for _, lang := range captionLanguages {
			if url := json3URL(tracks[lang]); url != "" {
				return url
			}
		}
		// No English track: fall back to any language, deterministically.
		langs := make([]string, 0, len(tracks))
		for lang := range tracks {
			langs = append(langs, lang)
		}
		sort.Strings(langs)
		for _, lang := range langs {
			if url := json3URL(tracks[lang]); url != "" {
				return url
			}
		}
	}
	return ""
}

func json3URL(tracks []captionTrack) string {
	for _, t := range tracks {
		if t.Ext == "json3" {
			return t.URL
		}
	}
	return ""
}

// json3Body matches YouTube's json3 caption format: a flat event list where
// each event carries a start offset and text runs.
type json3Body struct {
	Events []struct {
		TStartMs int64 `json:"tStartMs"`
		Segs     []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

func parseJSON3(data []byte) (types.Transcript, error) {
	var body json3Body
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("invalid json3 captions: %w", err)
	}

	var transcript types.Transcript
	for _, ev := range body.Events {
		text := ""
		for _, seg := range ev.Segs {
			text += seg.UTF8
		}
		text = normalizeCaptionText(text)
		if text == "" {
			continue
		}
		transcript = append(transcript, types.TranscriptSegment{
			Start: float64(ev.TStartMs) / 1000.0,
			Text:  text,
		})
	}
	return transcript, nil
}

// normalizeCaptionText collapses caption newlines and runs of whitespace.
func normalizeCaptionText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Preview is the fetch-only view of a video, shown before conversion.
type Preview struct {
	VideoID           string `json:"video_id"`
	Title             string `json:"title"`
	Channel           string `json:"channel"`
	Duration          int    `json:"duration"`
	DurationFormatted string `json:"duration_formatted"`
	ThumbnailURL      string `json:"thumbnail_url,omitempty"`
	HasChapters       bool   `json:"has_chapters"`
	ChapterCount      int    `json:"chapter_count"`
}

// Preview fetches metadata without creating a job.
func (c *Client) Preview(ctx context.Context, ref types.VideoReference) (*Preview, error) {
	meta, err := c.Metadata(ctx, ref)
	if err != nil {
		return nil, err
	}
	return &Preview{
		VideoID:           meta.VideoID,
		Title:             meta.Title,
		Channel:           meta.Channel,
		Duration:          meta.Duration,
		DurationFormatted: FormatDuration(meta.Duration),
		ThumbnailURL:      meta.ThumbnailURL,
		HasChapters:       len(meta.Chapters) > 0,
		ChapterCount:      len(meta.Chapters),
	}, nil
}
