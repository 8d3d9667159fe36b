package dispatch

import (
	"errors"
	"fmt"

	"github.com/keshon/jukebox/internal/media"
)

const (
	msgErrorPrefix  = "⚠️ Error"
	msgNoChannel    = "You need to join a voice channel first!"
	msgNotConnected = msgErrorPrefix + " | I am **not** in a voice channel"
	msgNotPlaying   = msgErrorPrefix + " | There is no track **currently** playing"
	msgEnqueued     = "**%s** enqueued!"
	msgFailed       = "Something went wrong: %v"
	msgNoMoreTracks = "⏹ | There are no more tracks to play, stopping the music"
	msgSkipped      = "⏩ | I have skipped to the next track"
	msgStopped      = "⏹ | I have stopped the music"
	msgUnknown      = "Unknown command."
	msgMissingSong  = "Tell me what to play: `song_url` is required."
	msgError        = "An error occurred: %v"
	msgPlayerError  = "A player error occurred: %v"
)

// replyFor maps a command failure to the message shown to the user.
func replyFor(err error) Reply {
	switch {
	case errors.Is(err, ErrNoChannel):
		return Reply{Content: msgNoChannel}
	case errors.Is(err, ErrNoActiveSession):
		return Reply{Content: msgNotConnected, Ephemeral: true}
	case errors.Is(err, ErrNothingPlaying):
		return Reply{Content: msgNotPlaying, Ephemeral: true}
	case errors.Is(err, ErrUnknownCommand):
		return Reply{Content: msgUnknown, Ephemeral: true}
	case errors.Is(err, ErrMissingArgument):
		return Reply{Content: msgMissingSong, Ephemeral: true}
	default:
		return Reply{Content: fmt.Sprintf(msgFailed, err)}
	}
}

// trackErrorMessage is posted to the text channel when a track fails.
func trackErrorMessage(err error) string {
	var playErr *media.PlaybackError
	if errors.As(err, &playErr) {
		return fmt.Sprintf(msgPlayerError, playErr.Err)
	}
	return fmt.Sprintf(msgError, err)
}

// outcomeOf labels a command result for metrics.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoChannel):
		return "no_channel"
	case errors.Is(err, ErrNoActiveSession):
		return "no_session"
	case errors.Is(err, ErrNothingPlaying):
		return "nothing_playing"
	case errors.Is(err, ErrUnknownCommand), errors.Is(err, ErrMissingArgument):
		return "rejected"
	default:
		return "error"
	}
}
