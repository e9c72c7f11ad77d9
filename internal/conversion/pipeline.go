package conversion

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TonyXing/youtube-to-epub/internal/summarizer"
	"github.com/TonyXing/youtube-to-epub/internal/types"
)

// Progress bands per stage. Within the summarization band, the document
// summary takes the first half and the chapter fan-out walks the rest.
const (
	percentQueued       = 5
	percentMetadata     = 15
	percentTranscript   = 30
	percentSegmented    = 40
	percentDocSummary   = 50
	percentSummarized   = 80
	percentAssembled    = 95
	percentDone         = 100
	chapterPercentSpan  = percentSummarized - percentDocSummary
	driveUploadAttempts = 3
)

// run drives one job through the pipeline and always ends it with exactly
// one terminal event.
func (m *Manager) run(job *Job) {
	if err := m.pipeline(context.Background(), job); err != nil {
		m.fail(job, err)
	}
}

func (m *Manager) pipeline(ctx context.Context, job *Job) error {
	// Fetch stage: metadata first, then the transcript.
	if err := m.checkpoint(job); err != nil {
		return err
	}
	m.setStatus(job, types.StatusFetchingMetadata)
	m.publish(job, types.StatusFetchingMetadata, percentQueued, "Fetching video metadata")

	meta, err := m.fetcher.Metadata(ctx, job.Ref)
	if err != nil {
		return err
	}
	m.publish(job, types.StatusFetchingMetadata, percentMetadata, "Fetching transcript")

	transcript, err := m.fetcher.Transcript(ctx, job.Ref)
	if err != nil {
		return err
	}
	m.publish(job, types.StatusFetchingMetadata, percentTranscript, "Transcript fetched")

	// Segmentation stage.
	if err := m.checkpoint(job); err != nil {
		return err
	}
	m.setStatus(job, types.StatusSegmenting)
	m.publish(job, types.StatusSegmenting, percentTranscript, "Segmenting video into chapters")

	chapters, err := m.segmenter.Segment(meta, transcript)
	if err != nil {
		return err
	}
	m.publish(job, types.StatusSegmenting, percentSegmented,
		fmt.Sprintf("Segmented into %d chapters", len(chapters)))

	// Summarization stage: document summary, then chapters in parallel.
	if err := m.checkpoint(job); err != nil {
		return err
	}
	m.setStatus(job, types.StatusSummarizing)
	m.publish(job, types.StatusSummarizing, percentSegmented, "Summarizing video")

	overall, err := m.summarizer.SummarizeDocument(ctx, meta, transcript.Text())
	if err != nil {
		if !m.bestEffort {
			return err
		}
		log.Printf("Job %s: document summary failed, using placeholder: %v", job.ID, err)
		overall = types.Summary{Overview: summarizer.PlaceholderOverview}
	}
	m.publish(job, types.StatusSummarizing, percentDocSummary, "Summarizing chapters")

	if err := m.summarizeChapters(ctx, job, chapters); err != nil {
		return err
	}

	// Assembly stage.
	if err := m.checkpoint(job); err != nil {
		return err
	}
	m.setStatus(job, types.StatusAssembling)
	m.publish(job, types.StatusAssembling, percentSummarized, "Assembling EPUB")

	book := &types.Book{
		Metadata:       *meta,
		OverallSummary: overall,
		Chapters:       chapters,
	}
	artifactPath, err := m.assembler.Assemble(ctx, book)
	if err != nil {
		return err
	}
	m.publish(job, types.StatusAssembling, percentAssembled, "EPUB assembled")

	m.complete(job, meta, artifactPath, len(chapters))
	return nil
}

// summarizeChapters runs the per-chapter summaries with bounded parallelism,
// updating each chapter in place and the progress band as results land.
func (m *Manager) summarizeChapters(ctx context.Context, job *Job, chapters []types.Chapter) error {
	total := len(chapters)
	var done int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.chapterConcurrency)

	for i := range chapters {
		i := i
		g.Go(func() error {
			summary, title, err := m.summarizer.SummarizeChapter(gctx, chapters[i])
			if err != nil {
				if !m.bestEffort {
					return err
				}
				log.Printf("Job %s: chapter %d summary failed, using placeholder: %v", job.ID, i+1, err)
				summary = types.Summary{Overview: summarizer.PlaceholderOverview}
				title = ""
			}
			chapters[i].Summary = summary
			if chapters[i].Placeholder && title != "" {
				chapters[i].Title = title
				chapters[i].Placeholder = false
			}

			n := atomic.AddInt64(&done, 1)
			percent := percentDocSummary + int(int64(chapterPercentSpan)*n/int64(total))
			m.publish(job, types.StatusSummarizing, percent,
				fmt.Sprintf("Summarized chapter %d of %d", n, total))
			return nil
		})
	}

	return g.Wait()
}

// complete records the finished book, mirrors it to Drive when configured,
// and publishes the single terminal event.
func (m *Manager) complete(job *Job, meta *types.VideoMetadata, artifactPath string, chapterCount int) {
	fileName := filepath.Base(artifactPath)

	driveURL := ""
	if m.drive != nil {
		driveURL = m.uploadWithRetries(job, artifactPath, fileName)
	}

	if m.books != nil {
		rec := &types.BookRecord{
			JobID:        job.ID,
			VideoID:      meta.VideoID,
			Title:        meta.Title,
			Channel:      meta.Channel,
			FileName:     fileName,
			LocalPath:    artifactPath,
			DriveURL:     driveURL,
			Duration:     meta.Duration,
			ChapterCount: chapterCount,
		}
		if err := m.books.SaveBook(rec); err != nil {
			log.Printf("Job %s: failed to record book: %v", job.ID, err)
		}
	}

	m.mu.Lock()
	stored := m.jobs[job.ID]
	stored.Status = types.StatusCompleted
	stored.ArtifactPath = artifactPath
	stored.ArtifactName = fileName
	stored.ChapterCount = chapterCount
	m.mu.Unlock()

	m.hub.Publish(job.ID, types.ProgressEvent{
		JobID:    job.ID,
		Status:   types.StatusCompleted,
		Percent:  percentDone,
		Message:  "Conversion complete",
		Terminal: true,
	})
	log.Printf("Job %s completed: %s", job.ID, artifactPath)
}

// uploadWithRetries mirrors the EPUB to Drive. Upload failures never fail
// the job.
func (m *Manager) uploadWithRetries(job *Job, artifactPath, fileName string) string {
	for attempt := 1; attempt <= driveUploadAttempts; attempt++ {
		url, err := m.drive.UploadBook(artifactPath, fileName)
		if err == nil {
			log.Printf("Job %s: uploaded to Drive: %s", job.ID, url)
			return url
		}
		log.Printf("Job %s: Drive upload attempt %d/%d failed: %v", job.ID, attempt, driveUploadAttempts, err)
		if attempt < driveUploadAttempts {
			time.Sleep(time.Duration(attempt*attempt) * time.Second)
		}
	}
	return ""
}

// fail marks the job failed and publishes the terminal event. The hub keeps
// the percentage where it was.
func (m *Manager) fail(job *Job, err error) {
	ce := types.AsConversionError(err, types.KindFetchError)

	m.mu.Lock()
	stored := m.jobs[job.ID]
	stored.Status = types.StatusFailed
	stored.Err = ce
	m.mu.Unlock()

	m.hub.Publish(job.ID, types.ProgressEvent{
		JobID:    job.ID,
		Status:   types.StatusFailed,
		Message:  ce.UserMessage(),
		Error:    ce.Kind,
		Terminal: true,
	})
	log.Printf("Job %s failed: %v", job.ID, ce)
}

// checkpoint enforces cancellation at stage boundaries only: work inside a
// stage always runs to completion.
func (m *Manager) checkpoint(job *Job) error {
	if m.isCancelled(job) {
		return types.NewConversionError(types.KindCancelled, "conversion cancelled", nil)
	}
	return nil
}
