package youtube

import (
	"fmt"
	"regexp"

	"github.com/TonyXing/youtube-to-epub/internal/types"
)

// The three accepted URL forms, each followed by an 11-character video id.
var urlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtube\.com/watch\?v=([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtu\.be/([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtube\.com/embed/([a-zA-Z0-9_-]{11})`),
}

// ParseReference validates a raw URL and extracts the video id. Anything that
// does not match one of the accepted forms is rejected before a job exists.
func ParseReference(rawURL string) (types.VideoReference, error) {
	for _, pattern := range urlPatterns {
		if m := pattern.FindStringSubmatch(rawURL); m != nil {
			id := m[1]
			return types.VideoReference{
				VideoID: id,
				URL:     "https://www.youtube.com/watch?v=" + id,
			}, nil
		}
	}
	return types.VideoReference{}, types.NewConversionError(
		types.KindInvalidReference,
		"not a recognized YouTube video URL",
		fmt.Errorf("unsupported URL shape: %q", rawURL),
	)
}

// FormatDuration renders seconds as HH:MM:SS, or MM:SS under one hour.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}
