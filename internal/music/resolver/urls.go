package resolver

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	youtubeURLPattern = regexp.MustCompile(`^(?:https?://)?(?:www\.|music\.|m\.)?(?:youtube\.com|youtu\.be)/\S+`)
	spotifyURLPattern = regexp.MustCompile(`^(?:https?://)?open\.spotify\.com/(?:intl-[a-z]+/)?track/([A-Za-z0-9]{22})`)
	spotifyURIPattern = regexp.MustCompile(`^spotify:track:([A-Za-z0-9]{22})$`)
)

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func isYouTubeVideoURL(s string) bool {
	if !youtubeURLPattern.MatchString(s) {
		return false
	}
	return strings.Contains(s, "/watch?v=") ||
		strings.Contains(s, "youtu.be/") ||
		strings.Contains(s, "/shorts/")
}

func isSpotifyTrack(s string) bool {
	return spotifyTrackID(s) != ""
}

// spotifyTrackID extracts the 22 character track id from a Spotify URL or URI.
func spotifyTrackID(s string) string {
	if m := spotifyURLPattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if m := spotifyURIPattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

// CleanVideoURL strips everything but the video id from a YouTube URL.
func CleanVideoURL(raw string) string {
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	host := u.Hostname()
	switch host {
	case "youtu.be":
		vid := strings.Trim(u.Path, "/")
		if vid == "" {
			return raw
		}
		return watchURL(vid)

	case "www.youtube.com", "youtube.com", "music.youtube.com", "m.youtube.com":
		if u.Path == "/watch" {
			if vid := u.Query().Get("v"); vid != "" {
				return watchURL(vid)
			}
		}
		if vid, ok := strings.CutPrefix(u.Path, "/shorts/"); ok && vid != "" {
			return watchURL(strings.Trim(vid, "/"))
		}
		return raw

	default:
		return raw
	}
}

func watchURL(videoID string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
}
