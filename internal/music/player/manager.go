// Package player plays resolved tracks into Discord voice channels. Manager
// implements media.Provider and media.Recorder on top of one Player per guild.
package player

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/keshon/jukebox/internal/media"
	"github.com/keshon/jukebox/internal/music/resolver"
	"github.com/keshon/jukebox/pkg/jobmgr"
)

// Resolver maps a user query to a track.
type Resolver interface {
	Resolve(ctx context.Context, query string) (resolver.Track, error)
}

// Manager owns every guild's Player.
type Manager struct {
	mu      sync.Mutex
	players map[string]*Player

	joiner   Joiner
	resolver Resolver
	opener   Opener
	history  TrackHistory
	jobs     *jobmgr.Manager
	events   chan Event
	log      zerolog.Logger

	recMu      sync.Mutex
	recordings map[string]*Recording
}

// Option configures a Manager.
type Option func(*Manager)

// WithHistory stores every started track.
func WithHistory(h TrackHistory) Option {
	return func(m *Manager) { m.history = h }
}

// WithJobs shares a job manager, e.g. to list jobs on the status server.
func WithJobs(jobs *jobmgr.Manager) Option {
	return func(m *Manager) { m.jobs = jobs }
}

// NewManager creates a Manager. res resolves queries and opener opens the
// resolved tracks; the resolver package's Resolver serves as both.
func NewManager(joiner Joiner, res Resolver, opener Opener, opts ...Option) *Manager {
	m := &Manager{
		players:    make(map[string]*Player),
		joiner:     joiner,
		resolver:   res,
		opener:     opener,
		events:     make(chan Event, 32),
		log:        log.With().Str("component", "player").Logger(),
		recordings: make(map[string]*Recording),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.jobs == nil {
		m.jobs = jobmgr.NewManager(func(s string) { m.log.Debug().Str("job", s).Msg("job status") })
	}
	return m
}

// Events streams player status changes. Events are dropped when the channel
// is full.
func (m *Manager) Events() <-chan Event { return m.events }

// Jobs returns the job manager running playback and recordings.
func (m *Manager) Jobs() *jobmgr.Manager { return m.jobs }

// GetOrCreatePlayer returns the guild's player.
func (m *Manager) GetOrCreatePlayer(guildID string) *Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[guildID]
	if !ok {
		p = newPlayer(guildID, m.jobs, m.opener, m.history, m.events, m.log)
		m.players[guildID] = p
	}
	return p
}

func (m *Manager) player(q media.QueueRef) (*Player, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[string(q)]
	return p, ok
}

// Connect joins channelID, reusing the guild's connection when it is already
// in that channel.
func (m *Manager) Connect(ctx context.Context, guildID, channelID string) (media.Connection, error) {
	p := m.GetOrCreatePlayer(guildID)
	if v := p.Voice(); v != nil && v.ChannelID() == channelID {
		return v, nil
	}

	v, err := m.joiner.Join(ctx, guildID, channelID)
	if err != nil {
		return nil, err
	}
	p.attach(v)
	return v, nil
}

// Disconnect stops playback and recording and closes conn. Closing an
// already closed connection is a no-op.
func (m *Manager) Disconnect(ctx context.Context, conn media.Connection) error {
	if conn == nil {
		return nil
	}
	p, ok := m.player(media.QueueRef(conn.GuildID()))
	if !ok {
		return nil
	}
	if err := m.StopRecording(ctx, conn.GuildID()); err != nil {
		m.log.Warn().Err(err).Str("guild", conn.GuildID()).Msg("failed to stop recording")
	}

	closed, err := p.detach(conn)
	if closed {
		m.log.Info().Str("guild", conn.GuildID()).Str("channel", conn.ChannelID()).Msg("left voice channel")
	}
	return err
}

// Play resolves query and enqueues it on conn's guild. It returns once the
// track is queued or its playback has started.
func (m *Manager) Play(ctx context.Context, conn media.Connection, query string) (media.PlayResult, error) {
	if conn == nil {
		return media.PlayResult{}, &media.PlaybackError{Title: query, Err: ErrNoVoice}
	}

	track, err := m.resolver.Resolve(ctx, query)
	if err != nil {
		return media.PlayResult{}, &media.ResolutionError{Query: query, Err: err}
	}

	p := m.GetOrCreatePlayer(conn.GuildID())
	queued, err := p.Enqueue(ctx, track)
	if err != nil {
		return media.PlayResult{}, &media.PlaybackError{Title: track.Title, Err: err}
	}

	return media.PlayResult{
		Title:  track.Title,
		URL:    track.URL,
		Queue:  p.ref(),
		Queued: queued,
	}, nil
}

func (m *Manager) Skip(_ context.Context, q media.QueueRef) error {
	p, ok := m.player(q)
	if !ok {
		return ErrNoTrackPlaying
	}
	return p.Skip()
}

func (m *Manager) Stop(_ context.Context, q media.QueueRef) error {
	p, ok := m.player(q)
	if !ok {
		return nil
	}
	return p.Stop()
}

func (m *Manager) Remaining(q media.QueueRef) int {
	p, ok := m.player(q)
	if !ok {
		return 0
	}
	return len(p.Queue())
}

func (m *Manager) Playing(q media.QueueRef) bool {
	p, ok := m.player(q)
	return ok && p.IsPlaying()
}

// OnTrackEnd registers fn with the queue's player. Callbacks run on their
// own goroutine.
func (m *Manager) OnTrackEnd(q media.QueueRef, fn func(media.TrackEnd)) media.Subscription {
	return m.GetOrCreatePlayer(string(q)).subscribe(fn)
}

// Snapshot describes one guild's player for reporting.
type Snapshot struct {
	GuildID   string   `json:"guild_id"`
	ChannelID string   `json:"channel_id,omitempty"`
	Playing   bool     `json:"playing"`
	Current   string   `json:"current,omitempty"`
	Queue     []string `json:"queue"`
	Recording bool     `json:"recording"`
}

// Snapshots returns the state of every known player sorted by guild.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.Lock()
	players := make([]*Player, 0, len(m.players))
	for _, p := range m.players {
		players = append(players, p)
	}
	m.mu.Unlock()

	out := make([]Snapshot, 0, len(players))
	for _, p := range players {
		s := Snapshot{GuildID: p.guildID, Playing: p.IsPlaying(), Queue: []string{}}
		if v := p.Voice(); v != nil {
			s.ChannelID = v.ChannelID()
		}
		if t, err := p.CurrentTrack(); err == nil {
			s.Current = t.Title
		}
		for _, t := range p.Queue() {
			s.Queue = append(s.Queue, t.Title)
		}
		s.Recording = m.jobs.Running(recordJob(p.guildID))
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GuildID < out[j].GuildID })
	return out
}

// Shutdown stops every job and closes every voice connection.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	players := make([]*Player, 0, len(m.players))
	for _, p := range m.players {
		players = append(players, p)
	}
	m.mu.Unlock()

	for _, p := range players {
		if v := p.Voice(); v != nil {
			if err := m.Disconnect(ctx, v); err != nil {
				m.log.Warn().Err(err).Str("guild", p.guildID).Msg("disconnect on shutdown")
			}
		}
	}
	m.jobs.StopAll()
}

var (
	_ media.Provider = (*Manager)(nil)
	_ media.Recorder = (*Manager)(nil)
)
