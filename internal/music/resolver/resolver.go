// Package resolver turns a user query into a playable track and opens its
// audio stream.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	youtube "github.com/kkdai/youtube/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/keshon/jukebox/pkg/retrylimit"
)

const (
	SourceYouTube = "youtube"
	SourceSpotify = "spotify"
)

var (
	ErrUnsupportedURL = errors.New("unsupported URL")
	ErrNoResults      = errors.New("no video found for the given title")
	ErrNoAudioFormat  = errors.New("no opus audio format available")
)

// Track is a resolved, playable item.
type Track struct {
	Title    string
	URL      string
	VideoID  string
	Source   string
	Duration time.Duration
}

// VideoClient is the subset of the kkdai YouTube client used here.
type VideoClient interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetStreamContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error)
}

// Config holds credentials and endpoints. Empty endpoints use the public APIs.
type Config struct {
	YouTubeAPIKey       string
	SpotifyClientID     string
	SpotifyClientSecret string
	Proxy               string

	SearchEndpoint    string
	SpotifyEndpoint   string
	SpotifyTokenURL   string
	Retry             retrylimit.Config
	RequestsPerSecond float64
}

// Resolver resolves queries against YouTube and Spotify.
type Resolver struct {
	videos  VideoClient
	search  *resty.Client
	spotify *resty.Client
	apiKey  string
	limiter *retrylimit.AdaptiveLimiter
	retry   retrylimit.Config
	log     zerolog.Logger
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithVideoClient replaces the kkdai client.
func WithVideoClient(c VideoClient) Option {
	return func(r *Resolver) { r.videos = c }
}

// New builds a Resolver. The YouTube client honours cfg.Proxy.
func New(cfg Config, opts ...Option) (*Resolver, error) {
	if cfg.SearchEndpoint == "" {
		cfg.SearchEndpoint = "https://www.googleapis.com/youtube/v3"
	}
	if cfg.SpotifyEndpoint == "" {
		cfg.SpotifyEndpoint = "https://api.spotify.com/v1"
	}
	if cfg.SpotifyTokenURL == "" {
		cfg.SpotifyTokenURL = "https://accounts.spotify.com/api/token"
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retrylimit.DefaultConfig()
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}

	httpClient, err := newHTTPClient(cfg.Proxy)
	if err != nil {
		return nil, err
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.SpotifyClientID,
		ClientSecret: cfg.SpotifyClientSecret,
		TokenURL:     cfg.SpotifyTokenURL,
	}

	limit := rate.Limit(cfg.RequestsPerSecond)
	r := &Resolver{
		videos: &youtube.Client{HTTPClient: httpClient},
		search: resty.New().
			SetBaseURL(cfg.SearchEndpoint).
			SetTimeout(10 * time.Second),
		spotify: resty.NewWithClient(cc.Client(context.Background())).
			SetBaseURL(cfg.SpotifyEndpoint).
			SetTimeout(10 * time.Second),
		apiKey:  cfg.YouTubeAPIKey,
		limiter: retrylimit.NewAdaptiveLimiter(limit, limit/5, limit*2, limit/10, 0.5),
		retry:   cfg.Retry,
		log:     log.With().Str("component", "resolver").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve maps query to a Track. Supported inputs are YouTube video URLs,
// Spotify track URLs or URIs, and free text searched on YouTube.
func (r *Resolver) Resolve(ctx context.Context, query string) (Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Track{}, errors.New("empty query")
	}

	switch {
	case isYouTubeVideoURL(query):
		return r.resolveVideo(ctx, CleanVideoURL(query))
	case isSpotifyTrack(query):
		return r.resolveSpotify(ctx, query)
	case isURL(query):
		return Track{}, fmt.Errorf("%w: %s", ErrUnsupportedURL, query)
	default:
		return r.searchYouTube(ctx, query)
	}
}

func (r *Resolver) resolveVideo(ctx context.Context, videoURL string) (Track, error) {
	var video *youtube.Video
	err := retrylimit.Do(ctx, r.limiter, r.retry, func(ctx context.Context) error {
		v, err := r.videos.GetVideoContext(ctx, videoURL)
		if err != nil {
			return classify(err)
		}
		video = v
		return nil
	})
	if err != nil {
		return Track{}, fmt.Errorf("youtube video lookup: %w", err)
	}

	return Track{
		Title:    video.Title,
		URL:      watchURL(video.ID),
		VideoID:  video.ID,
		Source:   SourceYouTube,
		Duration: video.Duration,
	}, nil
}

// Open fetches the track's audio as a WebM/Opus byte stream.
func (r *Resolver) Open(ctx context.Context, t Track) (io.ReadCloser, error) {
	id := t.VideoID
	if id == "" {
		id = t.URL
	}

	var rc io.ReadCloser
	err := retrylimit.Do(ctx, r.limiter, r.retry, func(ctx context.Context) error {
		video, err := r.videos.GetVideoContext(ctx, id)
		if err != nil {
			return classify(err)
		}
		format, err := pickOpusFormat(video.Formats)
		if err != nil {
			return retrylimit.Permanent(err)
		}
		stream, _, err := r.videos.GetStreamContext(ctx, video, format)
		if err != nil {
			return classify(err)
		}
		rc = stream
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("open stream for %q: %w", t.Title, err)
	}
	r.log.Debug().Str("title", t.Title).Str("video", id).Msg("stream opened")
	return rc, nil
}

// pickOpusFormat prefers itag 251 and falls back to the best audio/webm
// format.
func pickOpusFormat(formats youtube.FormatList) (*youtube.Format, error) {
	if f := formats.Itag(251); len(f) > 0 {
		return &f[0], nil
	}
	var best *youtube.Format
	for i := range formats {
		f := &formats[i]
		if !strings.HasPrefix(f.MimeType, "audio/webm") || !strings.Contains(f.MimeType, "opus") {
			continue
		}
		if best == nil || f.Bitrate > best.Bitrate {
			best = f
		}
	}
	if best == nil {
		return nil, ErrNoAudioFormat
	}
	return best, nil
}

// statusError carries an HTTP status so retrylimit can classify it.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.code, e.body)
}

func (e *statusError) StatusCode() int { return e.code }

// checkResponse turns a failed resty response into an error. Client errors
// other than 429 are not retried.
func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}
	serr := &statusError{code: resp.StatusCode(), body: truncate(resp.String(), 200)}
	if serr.code < 500 && serr.code != http.StatusTooManyRequests {
		return retrylimit.Permanent(serr)
	}
	return serr
}

// classify marks kkdai errors that will not change on retry as permanent.
func classify(err error) error {
	switch {
	case errors.Is(err, youtube.ErrVideoPrivate),
		errors.Is(err, youtube.ErrLoginRequired),
		errors.Is(err, youtube.ErrNotPlayableInEmbed),
		errors.Is(err, youtube.ErrInvalidCharactersInVideoID):
		return retrylimit.Permanent(err)
	}
	var playErr *youtube.ErrPlayabiltyStatus
	if errors.As(err, &playErr) {
		return retrylimit.Permanent(err)
	}
	return err
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}
