package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/jukebox/internal/media"
	"github.com/keshon/jukebox/internal/metrics"
	"github.com/keshon/jukebox/internal/music/resolver"
	"github.com/keshon/jukebox/internal/music/stream"
	"github.com/keshon/jukebox/internal/storage"
	"github.com/keshon/jukebox/pkg/jobmgr"
)

var (
	ErrNoVoice         = errors.New("not connected to a voice channel")
	ErrNoTrackPlaying  = errors.New("no track is currently playing")
	ErrNoTracksInQueue = errors.New("no tracks in queue")
)

// Opener opens a resolved track's WebM/Opus stream.
type Opener interface {
	Open(ctx context.Context, t resolver.Track) (io.ReadCloser, error)
}

// TrackHistory stores started tracks.
type TrackHistory interface {
	AppendTrackToHistory(guildID string, track storage.TrackHistoryRecord) error
}

// Player owns one guild's voice connection, queue and playback job.
type Player struct {
	guildID string
	jobs    *jobmgr.Manager
	opener  Opener
	history TrackHistory
	events  chan Event
	log     zerolog.Logger

	// ctrl serializes Enqueue, Skip and Stop.
	ctrl sync.Mutex

	mu        sync.Mutex
	voice     Voice
	queue     []resolver.Track
	current   *resolver.Track
	running   bool
	job       *jobmgr.Job
	skipTrack context.CancelFunc
	listeners map[uint64]func(media.TrackEnd)
	nextID    uint64

	// skipPending records a Skip that arrived between two tracks.
	skipPending bool
}

func newPlayer(guildID string, jobs *jobmgr.Manager, opener Opener, history TrackHistory, events chan Event, logger zerolog.Logger) *Player {
	return &Player{
		guildID:   guildID,
		jobs:      jobs,
		opener:    opener,
		history:   history,
		events:    events,
		log:       logger.With().Str("guild", guildID).Logger(),
		queue:     make([]resolver.Track, 0),
		listeners: make(map[uint64]func(media.TrackEnd)),
	}
}

func (p *Player) playbackJob() string { return "playback:" + p.guildID }

// Enqueue appends t and starts playback if the player is idle. It returns
// true when the track was queued behind a playing one.
func (p *Player) Enqueue(ctx context.Context, t resolver.Track) (bool, error) {
	p.ctrl.Lock()
	defer p.ctrl.Unlock()

	p.mu.Lock()
	if p.voice == nil {
		p.mu.Unlock()
		return false, ErrNoVoice
	}
	if p.running {
		p.queue = append(p.queue, t)
		n := len(p.queue)
		p.mu.Unlock()
		p.log.Info().Str("title", t.Title).Int("queue", n).Msg("track added to queue")
		p.emit(StatusAdded, t.Title)
		return true, nil
	}
	prev := p.job
	voice := p.voice
	p.mu.Unlock()

	// a finished job may still be unregistering its name
	if prev != nil {
		<-prev.Done()
	}

	// the stream outlives the request that started it
	rc, err := p.opener.Open(context.WithoutCancel(ctx), t)
	if err != nil {
		p.emit(StatusError, t.Title)
		return false, fmt.Errorf("failed to open stream for track: %w", err)
	}

	p.mu.Lock()
	p.running = true
	p.current = &t
	p.mu.Unlock()

	job, err := p.jobs.StartAsync(p.playbackJob(), func(ctx context.Context) error {
		return p.run(ctx, voice, t, rc)
	})
	if err != nil {
		_ = rc.Close()
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		return false, err
	}

	p.mu.Lock()
	p.job = job
	p.mu.Unlock()
	return false, nil
}

// run plays first and then every queued track until the queue is empty or
// ctx is cancelled.
func (p *Player) run(ctx context.Context, voice Voice, first resolver.Track, rc io.ReadCloser) error {
	track := first
	for {
		trackCtx, cancel := context.WithCancel(ctx)
		p.mu.Lock()
		p.current = &track
		p.skipTrack = cancel
		if p.skipPending {
			p.skipPending = false
			cancel()
		}
		p.mu.Unlock()

		p.started(track)
		cur := rc
		release := context.AfterFunc(trackCtx, func() { _ = cur.Close() })
		err := stream.Play(trackCtx, rc, voice)
		release()
		_ = rc.Close()
		p.mu.Lock()
		p.skipTrack = nil
		p.mu.Unlock()
		skipped := trackCtx.Err() != nil && ctx.Err() == nil
		cancel()

		if ctx.Err() != nil {
			p.finish()
			p.log.Info().Str("title", track.Title).Msg("playback stopped")
			p.emit(StatusStopped, track.Title)
			return nil
		}

		switch {
		case skipped:
			err = nil
			p.emit(StatusSkipped, track.Title)
		case err != nil:
			err = &media.PlaybackError{Title: track.Title, Err: err}
			metrics.TracksFailed.Inc()
			p.log.Warn().Err(err).Msg("track ended with error")
			p.emit(StatusError, track.Title)
		default:
			p.log.Info().Str("title", track.Title).Msg("track finished")
		}

		next, nextRC, ok := p.advance(ctx, track, err)
		if !ok {
			return nil
		}
		track, rc = next, nextRC
	}
}

// advance notifies listeners that ended has finished and opens the next
// queued track. Tracks that fail to open are reported and skipped. It
// returns false once the queue is drained or ctx is cancelled.
func (p *Player) advance(ctx context.Context, ended resolver.Track, endErr error) (resolver.Track, io.ReadCloser, bool) {
	for {
		p.mu.Lock()
		remaining := len(p.queue)
		if remaining == 0 {
			p.running = false
			p.current = nil
			p.skipTrack = nil
			p.skipPending = false
			p.notifyLocked(media.TrackEnd{Queue: p.ref(), Title: ended.Title, Remaining: 0, Err: endErr})
			p.mu.Unlock()
			p.log.Info().Msg("queue is empty, playback finished")
			p.emit(StatusStopped, ended.Title)
			return resolver.Track{}, nil, false
		}
		next := p.queue[0]
		p.queue = p.queue[1:]
		p.notifyLocked(media.TrackEnd{Queue: p.ref(), Title: ended.Title, Remaining: remaining, Err: endErr})
		p.mu.Unlock()

		rc, err := p.opener.Open(ctx, next)
		if err == nil {
			return next, rc, true
		}
		if ctx.Err() != nil {
			p.finish()
			return resolver.Track{}, nil, false
		}
		p.log.Warn().Err(err).Str("title", next.Title).Msg("skipping track due to error")
		metrics.TracksFailed.Inc()
		p.emit(StatusError, next.Title)
		ended, endErr = next, &media.PlaybackError{Title: next.Title, Err: err}
	}
}

func (p *Player) started(t resolver.Track) {
	p.log.Info().Str("title", t.Title).Str("url", t.URL).Msg("now playing")
	metrics.TracksStarted.WithLabelValues(t.Source).Inc()
	p.emit(StatusPlaying, t.Title)
	if p.history == nil {
		return
	}
	rec := storage.TrackHistoryRecord{Title: t.Title, URL: t.URL, Source: t.Source, Datetime: time.Now()}
	if err := p.history.AppendTrackToHistory(p.guildID, rec); err != nil {
		p.log.Warn().Err(err).Msg("failed to store track history")
	}
}

func (p *Player) finish() {
	p.mu.Lock()
	p.running = false
	p.current = nil
	p.skipTrack = nil
	p.skipPending = false
	p.mu.Unlock()
}

// Skip ends the current track; the playback job moves on to the next one.
func (p *Player) Skip() error {
	p.ctrl.Lock()
	defer p.ctrl.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return ErrNoTrackPlaying
	}
	if p.skipTrack == nil {
		p.skipPending = true
		return nil
	}
	p.skipTrack()
	return nil
}

// Stop clears the queue and halts playback. The voice connection stays open.
func (p *Player) Stop() error {
	p.ctrl.Lock()
	defer p.ctrl.Unlock()
	return p.stopLocked()
}

func (p *Player) stopLocked() error {
	p.mu.Lock()
	p.queue = p.queue[:0]
	p.mu.Unlock()

	if err := p.jobs.Stop(p.playbackJob()); err != nil && !errors.Is(err, jobmgr.ErrNotRunning) {
		return err
	}
	p.finish()
	return nil
}

// attach replaces the voice connection, closing the old one.
func (p *Player) attach(v Voice) {
	p.ctrl.Lock()
	defer p.ctrl.Unlock()

	p.mu.Lock()
	old := p.voice
	p.mu.Unlock()
	if old != nil && old != v {
		_ = p.stopLocked()
		if err := old.Close(); err != nil {
			p.log.Warn().Err(err).Msg("failed to close previous voice connection")
		}
	}

	p.mu.Lock()
	p.voice = v
	p.mu.Unlock()
}

// detach stops playback and closes v if it is still the player's connection.
// It reports false when v was already closed.
func (p *Player) detach(v media.Connection) (bool, error) {
	p.ctrl.Lock()
	defer p.ctrl.Unlock()

	p.mu.Lock()
	current := p.voice
	p.mu.Unlock()
	if current == nil || media.Connection(current) != v {
		return false, nil
	}

	_ = p.stopLocked()
	p.mu.Lock()
	p.voice = nil
	p.mu.Unlock()

	if err := current.Close(); err != nil {
		return true, fmt.Errorf("voice disconnect: %w", err)
	}
	return true, nil
}

func (p *Player) Voice() Voice {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.voice
}

// IsPlaying returns current playback state
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// CurrentTrack returns currently playing track
func (p *Player) CurrentTrack() (*resolver.Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running || p.current == nil {
		return nil, ErrNoTrackPlaying
	}
	t := *p.current
	return &t, nil
}

// Queue returns a copy of current queue
func (p *Player) Queue() []resolver.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.queue)
}

func (p *Player) subscribe(fn func(media.TrackEnd)) media.Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn

	var once sync.Once
	return media.SubscriptionFunc(func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	})
}

// notifyLocked fires listeners on their own goroutines so they may call back
// into the player.
func (p *Player) notifyLocked(ev media.TrackEnd) {
	for _, fn := range p.listeners {
		go fn(ev)
	}
}

func (p *Player) ref() media.QueueRef { return media.QueueRef(p.guildID) }

func (p *Player) emit(status PlayerStatus, title string) {
	if p.events == nil {
		return
	}
	emitStatus(p.events, Event{GuildID: p.guildID, Status: status, Title: title})
}
