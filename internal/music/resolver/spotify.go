package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/keshon/jukebox/pkg/retrylimit"
)

type spotifyTrack struct {
	Name       string `json:"name"`
	DurationMs int64  `json:"duration_ms"`
	Artists    []struct {
		Name string `json:"name"`
	} `json:"artists"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

// resolveSpotify looks the track up on Spotify and plays the best YouTube
// match for "<artists> - <name>".
func (r *Resolver) resolveSpotify(ctx context.Context, query string) (Track, error) {
	id := spotifyTrackID(query)

	var st spotifyTrack
	err := retrylimit.Do(ctx, r.limiter, r.retry, func(ctx context.Context) error {
		st = spotifyTrack{}
		resp, err := r.spotify.R().
			SetContext(ctx).
			SetPathParam("id", id).
			SetResult(&st).
			Get("/tracks/{id}")
		return checkResponse(resp, err)
	})
	if err != nil {
		return Track{}, fmt.Errorf("spotify track %s: %w", id, err)
	}

	artists := make([]string, 0, len(st.Artists))
	for _, a := range st.Artists {
		artists = append(artists, a.Name)
	}
	search := st.Name
	if len(artists) > 0 {
		search = strings.Join(artists, ", ") + " - " + st.Name
	}

	t, err := r.searchYouTube(ctx, search)
	if err != nil {
		return Track{}, err
	}
	t.Title = search
	t.Source = SourceSpotify
	if t.Duration == 0 {
		t.Duration = time.Duration(st.DurationMs) * time.Millisecond
	}
	return t, nil
}
