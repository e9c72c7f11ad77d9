package conversion

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TonyXing/youtube-to-epub/internal/progress"
	"github.com/TonyXing/youtube-to-epub/internal/types"
	"github.com/TonyXing/youtube-to-epub/internal/youtube"
)

// Artifact lookup errors, distinguished so the handlers can map them to
// different HTTP statuses.
var (
	ErrJobNotFound         = errors.New("job not found")
	ErrArtifactNotReady    = errors.New("artifact not ready")
	ErrArtifactUnavailable = errors.New("artifact unavailable")
)

// Fetcher provides video metadata and transcripts.
type Fetcher interface {
	Metadata(ctx context.Context, ref types.VideoReference) (*types.VideoMetadata, error)
	Transcript(ctx context.Context, ref types.VideoReference) (types.Transcript, error)
}

// Segmenter turns metadata plus a transcript into the chapter partition.
type Segmenter interface {
	Segment(meta *types.VideoMetadata, transcript types.Transcript) ([]types.Chapter, error)
}

// Summarizer produces the document and chapter summaries.
type Summarizer interface {
	SummarizeDocument(ctx context.Context, meta *types.VideoMetadata, fullText string) (types.Summary, error)
	SummarizeChapter(ctx context.Context, chapter types.Chapter) (types.Summary, string, error)
}

// Assembler writes a finished book and returns the artifact path.
type Assembler interface {
	Assemble(ctx context.Context, book *types.Book) (string, error)
}

// BookStore records finished books.
type BookStore interface {
	SaveBook(rec *types.BookRecord) error
}

// Uploader mirrors finished books to remote storage.
type Uploader interface {
	UploadBook(localPath, fileName string) (string, error)
}

// DefaultChapterConcurrency bounds parallel chapter summarization per job.
const DefaultChapterConcurrency = 3

// Job is one conversion from submission to its terminal state.
type Job struct {
	ID           string
	Ref          types.VideoReference
	Status       string
	Err          *types.ConversionError
	ArtifactPath string
	ArtifactName string
	ChapterCount int
	CreatedAt    time.Time

	cancelled bool
}

// Manager owns the job registry and runs one pipeline goroutine per job.
type Manager struct {
	fetcher    Fetcher
	segmenter  Segmenter
	summarizer Summarizer
	assembler  Assembler
	hub        *progress.Hub

	books BookStore // optional
	drive Uploader  // optional

	chapterConcurrency int
	bestEffort         bool

	mu   sync.RWMutex
	jobs map[string]*Job
}

// Options carries the optional pieces and policy knobs for a Manager.
type Options struct {
	Books              BookStore
	Drive              Uploader
	ChapterConcurrency int
	BestEffort         bool
}

// NewManager wires the pipeline stages together.
func NewManager(fetcher Fetcher, segmenter Segmenter, summarizer Summarizer, assembler Assembler, hub *progress.Hub, opts Options) *Manager {
	concurrency := opts.ChapterConcurrency
	if concurrency <= 0 {
		concurrency = DefaultChapterConcurrency
	}
	return &Manager{
		fetcher:            fetcher,
		segmenter:          segmenter,
		summarizer:         summarizer,
		assembler:          assembler,
		hub:                hub,
		books:              opts.Books,
		drive:              opts.Drive,
		chapterConcurrency: concurrency,
		bestEffort:         opts.BestEffort,
		jobs:               make(map[string]*Job),
	}
}

// Submit validates the URL, creates a job and starts its pipeline. An
// unrecognized URL is rejected here and no job exists afterwards.
func (m *Manager) Submit(rawURL string) (string, error) {
	ref, err := youtube.ParseReference(rawURL)
	if err != nil {
		return "", err
	}

	job := &Job{
		ID:        uuid.New().String(),
		Ref:       ref,
		Status:    types.StatusQueued,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.hub.Register(job.ID)
	m.publish(job, types.StatusQueued, percentQueued, "Queued for conversion")

	go m.run(job)

	return job.ID, nil
}

// Job returns a snapshot copy of the job, or nil when unknown.
func (m *Manager) Job(jobID string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil
	}
	snapshot := *job
	return &snapshot
}

// Progress attaches a subscriber to the job's progress stream.
func (m *Manager) Progress(jobID string) (<-chan types.ProgressEvent, func(), error) {
	ch, cancel, err := m.hub.Subscribe(jobID)
	if errors.Is(err, progress.ErrUnknownJob) {
		return nil, nil, ErrJobNotFound
	}
	return ch, cancel, err
}

// Cancel requests a job stop at its next stage boundary. Cancelling a
// terminal job is a harmless no-op.
func (m *Manager) Cancel(jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if types.IsTerminal(job.Status) {
		return nil
	}
	job.cancelled = true
	return nil
}

// Artifact resolves a job's finished EPUB. Distinguishes not-ready (job
// still running) from unavailable (job failed).
func (m *Manager) Artifact(jobID string) (path, fileName string, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return "", "", ErrJobNotFound
	}
	switch job.Status {
	case types.StatusCompleted:
		return job.ArtifactPath, job.ArtifactName, nil
	case types.StatusFailed:
		return "", "", ErrArtifactUnavailable
	default:
		return "", "", ErrArtifactNotReady
	}
}

func (m *Manager) isCancelled(job *Job) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[job.ID].cancelled
}

func (m *Manager) setStatus(job *Job, status string) {
	m.mu.Lock()
	m.jobs[job.ID].Status = status
	m.mu.Unlock()
}

func (m *Manager) publish(job *Job, status string, percent int, message string) {
	m.hub.Publish(job.ID, types.ProgressEvent{
		JobID:   job.ID,
		Status:  status,
		Percent: percent,
		Message: message,
	})
}
