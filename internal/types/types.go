package types

import "time"

// Job status constants
const (
	StatusQueued           = "QUEUED"
	StatusFetchingMetadata = "FETCHING_METADATA"
	StatusSegmenting       = "SEGMENTING"
	StatusSummarizing      = "SUMMARIZING"
	StatusAssembling       = "ASSEMBLING"
	StatusCompleted        = "COMPLETED"
	StatusFailed           = "FAILED"
)

// IsTerminal reports whether a status admits no further transitions.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// VideoReference is a validated video identifier with its canonical URL form.
type VideoReference struct {
	VideoID string
	URL     string
}

// PublisherChapter is a chapter marker declared by the video publisher.
type PublisherChapter struct {
	Title     string  `json:"title"`
	StartTime float64 `json:"start_time"`
}

// VideoMetadata holds everything fetched once per job about the video.
type VideoMetadata struct {
	VideoID      string             `json:"video_id"`
	Title        string             `json:"title"`
	Channel      string             `json:"channel"`
	Duration     int                `json:"duration"` // seconds
	ThumbnailURL string             `json:"thumbnail_url,omitempty"`
	Chapters     []PublisherChapter `json:"chapters,omitempty"`
	PublishDate  string             `json:"publish_date,omitempty"`
}

// TranscriptSegment is one time-aligned piece of the transcript.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	Text  string  `json:"text"`
}

// Transcript is the ordered segment sequence covering the video.
type Transcript []TranscriptSegment

// Text joins all segment texts into the full transcript text.
func (t Transcript) Text() string {
	total := 0
	for _, seg := range t {
		total += len(seg.Text) + 1
	}
	buf := make([]byte, 0, total)
	for i, seg := range t {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = append(buf, seg.Text...)
	}
	return string(buf)
}

// Slice returns the text of all segments whose start falls in [start, end).
func (t Transcript) Slice(start, end float64) string {
	buf := make([]byte, 0, 256)
	for _, seg := range t {
		if seg.Start >= start && seg.Start < end {
			if len(buf) > 0 {
				buf = append(buf, ' ')
			}
			buf = append(buf, seg.Text...)
		}
	}
	return string(buf)
}

// Summary is a bounded-length overview plus key points, attached at the
// document level and once per chapter.
type Summary struct {
	Overview  string   `json:"overview"`
	KeyPoints []string `json:"key_points"`
}

// Chapter is a contiguous, titled slice of the transcript destined for one
// book section. Chapters partition [0, duration) with no gaps or overlaps.
type Chapter struct {
	Title      string  `json:"title"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Transcript string  `json:"transcript"`
	Summary    Summary `json:"summary"`

	// Placeholder marks algorithmically produced chapters whose title is
	// provisional until the summarizer assigns one.
	Placeholder bool `json:"placeholder,omitempty"`
}

// Book is the fully assembled input to the EPUB writer.
type Book struct {
	Metadata       VideoMetadata
	OverallSummary Summary
	Chapters       []Chapter
}

// ProgressEvent is one published update on a job's progress stream.
type ProgressEvent struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Percent  int    `json:"percent"`
	Message  string `json:"message"`
	Error    string `json:"error,omitempty"`
	Terminal bool   `json:"-"`
}

// BookRecord is one row of the finished-book registry.
type BookRecord struct {
	JobID        string    `json:"job_id"`
	VideoID      string    `json:"video_id"`
	Title        string    `json:"title"`
	Channel      string    `json:"channel"`
	FileName     string    `json:"file_name"`
	LocalPath    string    `json:"local_path"`
	DriveURL     string    `json:"drive_url,omitempty"`
	Duration     int       `json:"duration"`
	ChapterCount int       `json:"chapter_count"`
	CreatedAt    time.Time `json:"created_at"`
}
