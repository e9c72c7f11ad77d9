package youtube

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TonyXing/youtube-to-epub/internal/types"
)

func TestParseReferenceAcceptedForms(t *testing.T) {
	cases := []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtube.com/watch?v=dQw4w9WgXcQ",
		"http://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"www.youtube.com/watch?v=dQw4w9WgXcQ",
		"youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ",
		"youtu.be/dQw4w9WgXcQ",
		"https://www.youtube.com/embed/dQw4w9WgXcQ",
	}
	for _, rawURL := range cases {
		ref, err := ParseReference(rawURL)
		require.NoError(t, err, rawURL)
		assert.Equal(t, "dQw4w9WgXcQ", ref.VideoID, rawURL)
		assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", ref.URL, rawURL)
	}
}

func TestParseReferenceRejected(t *testing.T) {
	cases := []string{
		"",
		"not a url",
		"https://vimeo.com/123456",
		"https://www.youtube.com/watch?v=short",
		"https://www.youtube.com/playlist?list=PL123",
		"ftp://youtube.com/watch?v=dQw4w9WgXcQ",
	}
	for _, rawURL := range cases {
		_, err := ParseReference(rawURL)
		require.Error(t, err, rawURL)

		var ce *types.ConversionError
		require.True(t, errors.As(err, &ce), rawURL)
		assert.Equal(t, types.KindInvalidReference, ce.Kind, rawURL)
	}
}

func TestParseReferenceExtraQueryParams(t *testing.T) {
	ref, err := ParseReference("https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s")
	require.NoError(t, err)
	assert.Equal(t, "dQw4w9WgXcQ", ref.VideoID)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0:00", FormatDuration(0))
	assert.Equal(t, "0:45", FormatDuration(45))
	assert.Equal(t, "5:03", FormatDuration(303))
	assert.Equal(t, "59:59", FormatDuration(3599))
	assert.Equal(t, "1:00:00", FormatDuration(3600))
	assert.Equal(t, "2:05:09", FormatDuration(7509))
	assert.Equal(t, "0:00", FormatDuration(-10))
}
