package dispatch

import "errors"

var (
	// ErrNoChannel: the user is not in a voice channel and the session is unbound.
	ErrNoChannel = errors.New("no voice channel to join")
	// ErrNoActiveSession: skip/stop without a connected session.
	ErrNoActiveSession = errors.New("no active session")
	// ErrNothingPlaying: skip/stop while no track is playing.
	ErrNothingPlaying = errors.New("no track is currently playing")
	ErrUnknownCommand  = errors.New("unknown command")
	ErrMissingArgument = errors.New("missing argument")
)
