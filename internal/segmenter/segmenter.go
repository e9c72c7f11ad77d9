package segmenter

import (
	"fmt"
	"log"

	"github.com/TonyXing/youtube-to-epub/internal/types"
)

// Defaults for the algorithmic strategy. Both are overridable via config.
const (
	DefaultShortVideoThresholdMinutes = 15
	DefaultMaxChapters                = 7
)

// Segmenter turns a flat transcript plus optional publisher chapters into an
// ordered chapter list that partitions [0, duration) with no gaps or
// overlaps.
type Segmenter struct {
	thresholdSeconds float64
	maxChapters      int
}

// New creates a segmenter. Zero or negative arguments fall back to defaults.
func New(shortVideoThresholdMinutes, maxChapters int) *Segmenter {
	if shortVideoThresholdMinutes <= 0 {
		shortVideoThresholdMinutes = DefaultShortVideoThresholdMinutes
	}
	if maxChapters <= 0 {
		maxChapters = DefaultMaxChapters
	}
	return &Segmenter{
		thresholdSeconds: float64(shortVideoThresholdMinutes) * 60,
		maxChapters:      maxChapters,
	}
}

// Segment resolves the strategy once per job: publisher chapter markers when
// present, otherwise duration-based splitting. An empty transcript is a hard
// failure for the whole job.
func (s *Segmenter) Segment(meta *types.VideoMetadata, transcript types.Transcript) ([]types.Chapter, error) {
	if len(transcript) == 0 {
		return nil, types.NewConversionError(types.KindEmptyTranscript, "no transcript available", nil)
	}

	if len(meta.Chapters) > 0 {
		return s.fromPublisherChapters(meta, transcript), nil
	}
	return s.fromDuration(meta, transcript), nil
}

// fromPublisherChapters maps each publisher marker to one chapter, taking
// titles verbatim. Each chapter ends where the next begins; the last ends at
// the video duration.
func (s *Segmenter) fromPublisherChapters(meta *types.VideoMetadata, transcript types.Transcript) []types.Chapter {
	duration := float64(meta.Duration)
	chapters := make([]types.Chapter, 0, len(meta.Chapters))

	for i, marker := range meta.Chapters {
		end := duration
		if i < len(meta.Chapters)-1 {
			end = meta.Chapters[i+1].StartTime
		}
		chapters = append(chapters, types.Chapter{
			Title:      marker.Title,
			StartTime:  marker.StartTime,
			EndTime:    end,
			Transcript: transcript.Slice(marker.StartTime, end),
		})
	}

	// Publisher markers are expected to begin at 0:00; clamp the first
	// chapter so the chapter set always covers [0, duration).
	if chapters[0].StartTime > 0 {
		chapters[0].StartTime = 0
		chapters[0].Transcript = transcript.Slice(0, chapters[0].EndTime)
	}

	log.Printf("Segmented %s into %d publisher chapters", meta.VideoID, len(chapters))
	return chapters
}

// fromDuration splits long videos into roughly equal-duration chapters whose
// boundaries land exactly on transcript segment starts. Short videos (below
// the threshold) become a single chapter regardless of segment count.
func (s *Segmenter) fromDuration(meta *types.VideoMetadata, transcript types.Transcript) []types.Chapter {
	duration := float64(meta.Duration)

	if duration < s.thresholdSeconds || len(transcript) == 1 {
		return []types.Chapter{{
			Title:      meta.Title,
			StartTime:  0,
			EndTime:    duration,
			Transcript: transcript.Text(),
		}}
	}

	count := s.maxChapters
	if count > len(transcript) {
		count = len(transcript)
	}

	// Snap each ideal boundary to the nearest following segment start.
	// Boundaries never split a segment, so no sentence is cut in half.
	boundaries := []float64{0}
	segIdx := 0
	for i := 1; i < count; i++ {
		target := duration * float64(i) / float64(count)
		for segIdx < len(transcript) && transcript[segIdx].Start < target {
			segIdx++
		}
		if segIdx >= len(transcript) {
			break
		}
		start := transcript[segIdx].Start
		if start > boundaries[len(boundaries)-1] && start < duration {
			boundaries = append(boundaries, start)
		}
	}

	chapters := make([]types.Chapter, 0, len(boundaries))
	for i, start := range boundaries {
		end := duration
		if i < len(boundaries)-1 {
			end = boundaries[i+1]
		}
		chapters = append(chapters, types.Chapter{
			Title:       fmt.Sprintf("Part %d", i+1),
			StartTime:   start,
			EndTime:     end,
			Transcript:  transcript.Slice(start, end),
			Placeholder: true,
		})
	}

	log.Printf("Segmented %s into %d duration-based chapters", meta.VideoID, len(chapters))
	return chapters
}
