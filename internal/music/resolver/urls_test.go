package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyQuery(t *testing.T) {
	tests := []struct {
		in      string
		youtube bool
		spotify bool
		url     bool
	}{
		{in: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", youtube: true, url: true},
		{in: "youtu.be/dQw4w9WgXcQ", youtube: true},
		{in: "https://music.youtube.com/watch?v=dQw4w9WgXcQ&list=x", youtube: true, url: true},
		{in: "https://www.youtube.com/shorts/dQw4w9WgXcQ", youtube: true, url: true},
		{in: "https://www.youtube.com/@channel", url: true},
		{in: "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC", spotify: true, url: true},
		{in: "https://open.spotify.com/intl-de/track/4uLU6hMCjMI75M1A2tKUQC", spotify: true, url: true},
		{in: "spotify:track:4uLU6hMCjMI75M1A2tKUQC", spotify: true},
		{in: "https://open.spotify.com/album/4uLU6hMCjMI75M1A2tKUQC", url: true},
		{in: "daft punk one more time"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.youtube, isYouTubeVideoURL(tt.in))
			assert.Equal(t, tt.spotify, isSpotifyTrack(tt.in))
			assert.Equal(t, tt.url, isURL(tt.in))
		})
	}
}

func TestCleanVideoURL(t *testing.T) {
	tests := map[string]string{
		"https://youtu.be/dQw4w9WgXcQ?t=42":                          "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PL1&t=3s": "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"music.youtube.com/watch?v=dQw4w9WgXcQ":                      "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://www.youtube.com/shorts/dQw4w9WgXcQ":                 "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://example.com/x":                                      "https://example.com/x",
	}
	for in, want := range tests {
		assert.Equal(t, want, CleanVideoURL(in), in)
	}
}
