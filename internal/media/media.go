// Package media defines the contract between the command dispatcher and the
// component that actually joins voice channels, resolves queries and plays
// tracks.
package media

import (
	"context"
	"fmt"
)

// Connection is an open voice connection handle.
type Connection interface {
	GuildID() string
	ChannelID() string
}

// QueueRef identifies a provider-side track queue.
type QueueRef string

// PlayResult describes the outcome of a successful Play.
type PlayResult struct {
	Title string
	URL   string
	Queue QueueRef
	// Queued is true when the track was appended behind a playing one.
	Queued bool
}

// TrackEnd is delivered when a track finishes, is skipped, or fails mid-stream.
type TrackEnd struct {
	Queue     QueueRef
	Title     string
	Remaining int
	Err       error
}

// Subscription is a cancellable track-end registration.
type Subscription interface {
	Cancel()
}

// Provider performs voice transport, track resolution and queueing.
// All methods may block on the network; none of them retries on behalf of
// the caller unless documented by the implementation.
type Provider interface {
	Connect(ctx context.Context, guildID, channelID string) (Connection, error)
	// Disconnect is a no-op for a connection that is already closed.
	Disconnect(ctx context.Context, conn Connection) error
	// Play resolves query, enqueues it and returns once playback of the
	// queue has started.
	Play(ctx context.Context, conn Connection, query string) (PlayResult, error)
	Skip(ctx context.Context, q QueueRef) error
	// Stop clears the queue and halts playback.
	Stop(ctx context.Context, q QueueRef) error
	// Remaining reports tracks queued after the current one.
	Remaining(q QueueRef) int
	// Playing reports whether a track of the queue is being played.
	Playing(q QueueRef) bool
	// OnTrackEnd registers fn until the returned subscription is cancelled.
	// fn is never invoked synchronously from a Provider method.
	OnTrackEnd(q QueueRef, fn func(TrackEnd)) Subscription
}

// Recorder captures incoming voice in a guild while nothing is played.
type Recorder interface {
	StartRecording(ctx context.Context, guildID string) error
	StopRecording(ctx context.Context, guildID string) error
}

// ResolutionError reports that a query could not be turned into a playable track.
type ResolutionError struct {
	Query string
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("could not resolve %q: %v", e.Query, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// PlaybackError reports that a resolved track could not be streamed.
type PlaybackError struct {
	Title string
	Err   error
}

func (e *PlaybackError) Error() string {
	if e.Title == "" {
		return fmt.Sprintf("playback failed: %v", e.Err)
	}
	return fmt.Sprintf("playback of %q failed: %v", e.Title, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func()

// Cancel calls f.
func (f SubscriptionFunc) Cancel() { f() }
