// Package session tracks the voice/playback state of each guild.
package session

import (
	"github.com/keshon/jukebox/internal/media"
)

// Session is one guild's media session. Fields are only read or written while
// holding the guild lock obtained from Registry.Lock.
type Session struct {
	GuildID        string
	VoiceChannelID string
	Conn           media.Connection
	Playing        bool
	Queue          media.QueueRef
	Recording      bool

	// TextChannelID is where the last successful play was issued.
	TextChannelID string

	sub      media.Subscription
	subToken uint64
}

// Connected reports whether the session holds a live connection.
func (s *Session) Connected() bool {
	return s.Conn != nil
}

// Bind records a live connection and the channel it belongs to.
func (s *Session) Bind(conn media.Connection) {
	s.Conn = conn
	s.VoiceChannelID = conn.ChannelID()
}

// Unbind forgets the connection. The channel binding is kept.
func (s *Session) Unbind() {
	s.Conn = nil
	s.Playing = false
}

// Subscribed reports whether a track-end subscription is attached.
func (s *Session) Subscribed() bool {
	return s.sub != nil
}

// Subscribe attaches sub and returns the token that identifies it. A callback
// holding an older token belongs to a superseded subscription.
func (s *Session) Subscribe(sub media.Subscription, token uint64) {
	s.sub = sub
	s.subToken = token
}

// CurrentToken returns the token of the attached subscription, 0 if none.
func (s *Session) CurrentToken() uint64 {
	if s.sub == nil {
		return 0
	}
	return s.subToken
}

// CancelSubscription detaches and cancels the track-end subscription.
func (s *Session) CancelSubscription() {
	if s.sub != nil {
		s.sub.Cancel()
	}
	s.sub = nil
	s.subToken = 0
}

// Reset clears every field except the guild id.
func (s *Session) Reset() {
	s.CancelSubscription()
	s.VoiceChannelID = ""
	s.Conn = nil
	s.Playing = false
	s.Queue = ""
	s.Recording = false
	s.TextChannelID = ""
}

// Snapshot is a read-only copy of a Session for reporting.
type Snapshot struct {
	GuildID        string `json:"guild_id"`
	VoiceChannelID string `json:"voice_channel_id,omitempty"`
	Connected      bool   `json:"connected"`
	Playing        bool   `json:"playing"`
	Queue          string `json:"queue,omitempty"`
	Recording      bool   `json:"recording"`
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{
		GuildID:        s.GuildID,
		VoiceChannelID: s.VoiceChannelID,
		Connected:      s.Conn != nil,
		Playing:        s.Playing,
		Queue:          string(s.Queue),
		Recording:      s.Recording,
	}
}
