package resolver

import (
	"context"
	"fmt"
	"html"

	"github.com/keshon/jukebox/pkg/retrylimit"
)

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			ChannelTitle string `json:"channelTitle"`
		} `json:"snippet"`
	} `json:"items"`
}

// searchYouTube returns the first video matching query via the Data API.
func (r *Resolver) searchYouTube(ctx context.Context, query string) (Track, error) {
	var result searchResponse
	err := retrylimit.Do(ctx, r.limiter, r.retry, func(ctx context.Context) error {
		result = searchResponse{}
		resp, err := r.search.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"part":       "snippet",
				"type":       "video",
				"maxResults": "1",
				"q":          query,
				"key":        r.apiKey,
			}).
			SetResult(&result).
			Get("/search")
		return checkResponse(resp, err)
	})
	if err != nil {
		return Track{}, fmt.Errorf("youtube search: %w", err)
	}

	for _, item := range result.Items {
		if item.ID.VideoID == "" {
			continue
		}
		r.log.Debug().Str("query", query).Str("video", item.ID.VideoID).Msg("search hit")
		return Track{
			Title:   html.UnescapeString(item.Snippet.Title),
			URL:     watchURL(item.ID.VideoID),
			VideoID: item.ID.VideoID,
			Source:  SourceYouTube,
		}, nil
	}
	return Track{}, fmt.Errorf("%w: %q", ErrNoResults, query)
}
