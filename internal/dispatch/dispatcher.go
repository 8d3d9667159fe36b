// Package dispatch maps decoded user commands onto per-guild session state
// and the media provider.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/keshon/jukebox/internal/media"
	"github.com/keshon/jukebox/internal/session"
)

// Observer is notified once per handled command with its outcome label.
type Observer func(command, outcome string)

// Dispatcher runs play/skip/stop against the session registry. Commands for
// one guild are serialized by the registry's guild lock.
type Dispatcher struct {
	sessions       *session.Registry
	provider       media.Provider
	recorder       media.Recorder
	recordIdle     bool
	autoDisconnect bool
	observer       Observer
	notifier       Notifier
	tokens         atomic.Uint64
	log            zerolog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithAutoDisconnect controls whether the connection is closed once the
// queue drains. Enabled by default.
func WithAutoDisconnect(on bool) Option {
	return func(d *Dispatcher) { d.autoDisconnect = on }
}

// WithRecorder sets the recorder stopped before playback. With idle set, a
// drained queue that keeps the connection starts a recording.
func WithRecorder(r media.Recorder, idle bool) Option {
	return func(d *Dispatcher) {
		d.recorder = r
		d.recordIdle = idle
	}
}

// WithObserver registers a command outcome observer.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// WithNotifier sets where playback errors are reported. Messages go to the
// text channel of the last successful play.
func WithNotifier(n Notifier) Option {
	return func(d *Dispatcher) { d.notifier = n }
}

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// New creates a Dispatcher over sessions and provider.
func New(sessions *session.Registry, provider media.Provider, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sessions:       sessions,
		provider:       provider,
		autoDisconnect: true,
		log:            log.With().Str("component", "dispatch").Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs c for the interaction. Command failures are answered on the
// interaction; the returned error only reports reply delivery problems.
func (d *Dispatcher) Dispatch(ctx context.Context, in Interaction, c Command) error {
	switch c := c.(type) {
	case Play:
		return d.play(ctx, in, c.Query)
	case Skip:
		return d.skip(ctx, in)
	case Stop:
		return d.stop(ctx, in)
	default:
		return d.Reject(ctx, in, "", fmt.Errorf("%w: %T", ErrUnknownCommand, c))
	}
}

// Reject answers an interaction that could not be decoded into a Command.
// name is the command it was addressed to, "" when that is not a known one.
func (d *Dispatcher) Reject(ctx context.Context, in Interaction, name string, err error) error {
	if name == "" {
		name = "unknown"
	}
	d.observe(in, name, err)
	d.log.Warn().Err(err).Str("guild", in.GuildID()).Str("user", in.UserID()).Str("command", name).Msg("rejected command")
	return in.Reply(ctx, replyFor(err))
}

func (d *Dispatcher) play(ctx context.Context, in Interaction, query string) error {
	if !in.Acknowledged() {
		if err := in.Defer(ctx); err != nil {
			return fmt.Errorf("failed to defer play: %w", err)
		}
	}

	guildID := in.GuildID()
	logger := d.log.With().Str("guild", guildID).Str("user", in.UserID()).Str("command", NamePlay).Logger()

	unlock := d.sessions.Lock(guildID)
	defer unlock()

	s, exists := d.sessions.Get(guildID)
	target := ""
	if exists {
		target = s.VoiceChannelID
	}
	if target == "" {
		target = in.UserVoiceChannel()
	}
	if target == "" {
		return d.fail(ctx, in, NamePlay, ErrNoChannel)
	}
	if !exists {
		s = d.sessions.GetOrCreate(guildID)
	}

	if s.Conn != nil && s.Conn.ChannelID() != target {
		logger.Info().Str("from", s.Conn.ChannelID()).Str("to", target).Msg("switching voice channel")
		d.disconnect(ctx, s)
	}

	if s.Recording {
		if d.recorder != nil {
			if err := d.recorder.StopRecording(ctx, guildID); err != nil {
				logger.Warn().Err(err).Msg("failed to stop recording")
			}
		}
		s.Recording = false
	}

	opened := false
	if s.Conn == nil {
		conn, err := d.provider.Connect(ctx, guildID, target)
		if err != nil {
			d.dropIfIdle(s)
			return d.fail(ctx, in, NamePlay, fmt.Errorf("failed to join voice channel: %w", err))
		}
		s.Bind(conn)
		opened = true
	}

	res, err := d.provider.Play(ctx, s.Conn, query)
	if err != nil {
		logger.Warn().Err(err).Str("query", query).Msg("play failed")
		if opened {
			d.disconnect(ctx, s)
		}
		d.dropIfIdle(s)
		return d.fail(ctx, in, NamePlay, err)
	}

	s.Playing = true
	s.Queue = res.Queue
	s.TextChannelID = in.ChannelID()
	if !s.Subscribed() {
		d.subscribe(s)
	}

	logger.Info().Str("title", res.Title).Bool("queued", res.Queued).Msg("track enqueued")
	d.observe(in, NamePlay, nil)
	return in.Reply(ctx, Reply{Content: fmt.Sprintf(msgEnqueued, res.Title)})
}

func (d *Dispatcher) skip(ctx context.Context, in Interaction) error {
	guildID := in.GuildID()
	unlock := d.sessions.Lock(guildID)
	defer unlock()

	s, err := d.activeSession(guildID)
	if err != nil {
		return d.fail(ctx, in, NameSkip, err)
	}

	if d.provider.Remaining(s.Queue) == 0 {
		d.teardown(ctx, s)
		d.log.Info().Str("guild", guildID).Msg("queue empty on skip, stopped")
		d.observe(in, NameSkip, nil)
		return in.Reply(ctx, Reply{Content: msgNoMoreTracks})
	}

	if err := d.provider.Skip(ctx, s.Queue); err != nil {
		return d.fail(ctx, in, NameSkip, err)
	}

	d.observe(in, NameSkip, nil)
	return in.Reply(ctx, Reply{Content: msgSkipped})
}

func (d *Dispatcher) stop(ctx context.Context, in Interaction) error {
	guildID := in.GuildID()
	unlock := d.sessions.Lock(guildID)
	defer unlock()

	s, err := d.activeSession(guildID)
	if err != nil {
		return d.fail(ctx, in, NameStop, err)
	}

	d.teardown(ctx, s)
	d.log.Info().Str("guild", guildID).Str("user", in.UserID()).Msg("stopped")
	d.observe(in, NameStop, nil)
	return in.Reply(ctx, Reply{Content: msgStopped})
}

// activeSession returns the guild's session if it is connected and playing.
func (d *Dispatcher) activeSession(guildID string) (*session.Session, error) {
	s, ok := d.sessions.Get(guildID)
	if !ok || !s.Connected() {
		return nil, ErrNoActiveSession
	}
	if !s.Playing {
		return nil, ErrNothingPlaying
	}
	return s, nil
}

func (d *Dispatcher) subscribe(s *session.Session) {
	token := d.tokens.Add(1)
	guildID := s.GuildID
	sub := d.provider.OnTrackEnd(s.Queue, func(ev media.TrackEnd) {
		d.trackEnded(guildID, token, ev)
	})
	s.Subscribe(sub, token)
}

// trackEnded handles provider notifications. Notifications from a subscription
// that is no longer attached to the session are dropped.
func (d *Dispatcher) trackEnded(guildID string, token uint64, ev media.TrackEnd) {
	channelID, ok := d.advance(guildID, token, ev)
	if !ok || ev.Err == nil || channelID == "" || d.notifier == nil {
		return
	}
	if err := d.notifier.Notify(context.Background(), channelID, trackErrorMessage(ev.Err)); err != nil {
		d.log.Warn().Err(err).Str("guild", guildID).Msg("failed to report player error")
	}
}

// advance applies a track end to the session under the guild lock. It
// returns the session's text channel and false for stale notifications.
func (d *Dispatcher) advance(guildID string, token uint64, ev media.TrackEnd) (string, bool) {
	unlock := d.sessions.Lock(guildID)
	defer unlock()

	s, ok := d.sessions.Get(guildID)
	if !ok || s.CurrentToken() != token {
		return "", false
	}
	channelID := s.TextChannelID

	logger := d.log.With().Str("guild", guildID).Str("title", ev.Title).Logger()
	if ev.Err != nil {
		logger.Warn().Err(ev.Err).Msg("track ended with error")
	}
	if ev.Remaining > 0 || d.provider.Playing(s.Queue) {
		logger.Debug().Int("remaining", ev.Remaining).Msg("track ended, queue continues")
		return channelID, true
	}

	s.Playing = false
	ctx := context.Background()
	if d.autoDisconnect {
		logger.Info().Msg("queue drained, leaving voice channel")
		d.teardown(ctx, s)
		return channelID, true
	}

	if d.recorder != nil && d.recordIdle && s.Connected() && !s.Recording {
		if err := d.recorder.StartRecording(ctx, guildID); err != nil {
			logger.Warn().Err(err).Msg("failed to start recording")
			return channelID, true
		}
		s.Recording = true
	}
	return channelID, true
}

// teardown stops playback, closes the connection and forgets the session.
func (d *Dispatcher) teardown(ctx context.Context, s *session.Session) {
	s.CancelSubscription()
	if s.Queue != "" {
		if err := d.provider.Stop(ctx, s.Queue); err != nil {
			d.log.Debug().Err(err).Str("guild", s.GuildID).Msg("provider stop")
		}
	}
	if s.Recording && d.recorder != nil {
		if err := d.recorder.StopRecording(ctx, s.GuildID); err != nil {
			d.log.Warn().Err(err).Str("guild", s.GuildID).Msg("failed to stop recording")
		}
	}
	d.disconnect(ctx, s)
	s.Reset()
	d.sessions.Remove(s.GuildID)
}

// disconnect closes the session's connection, if any. The track-end
// subscription belongs to the old queue and is cancelled with it.
func (d *Dispatcher) disconnect(ctx context.Context, s *session.Session) {
	if s.Conn == nil {
		return
	}
	s.CancelSubscription()
	if err := d.provider.Disconnect(ctx, s.Conn); err != nil {
		d.log.Warn().Err(err).Str("guild", s.GuildID).Msg("failed to disconnect")
	}
	s.Unbind()
}

// dropIfIdle forgets a session that ended up without a connection.
func (d *Dispatcher) dropIfIdle(s *session.Session) {
	if s.Connected() {
		return
	}
	s.Reset()
	d.sessions.Remove(s.GuildID)
}

func (d *Dispatcher) fail(ctx context.Context, in Interaction, command string, err error) error {
	d.observe(in, command, err)

	var resErr *media.ResolutionError
	var playErr *media.PlaybackError
	switch {
	case errors.As(err, &resErr), errors.As(err, &playErr):
		d.log.Warn().Err(err).Str("guild", in.GuildID()).Str("command", command).Msg("provider error")
	default:
		d.log.Debug().Err(err).Str("guild", in.GuildID()).Str("command", command).Msg("command refused")
	}
	return in.Reply(ctx, replyFor(err))
}

func (d *Dispatcher) observe(in Interaction, command string, err error) {
	outcome := outcomeOf(err)
	if r, ok := in.(OutcomeRecorder); ok {
		r.RecordOutcome(outcome)
	}
	if d.observer != nil {
		d.observer(command, outcome)
	}
}
