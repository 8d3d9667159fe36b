package dispatch

import (
	"fmt"
	"strings"
)

// Command is a decoded user command: Play, Skip or Stop.
type Command interface {
	Name() string
	isCommand()
}

// Play enqueues Query and starts playback.
type Play struct {
	Query string
}

// Skip advances to the next queued track.
type Skip struct{}

// Stop clears the queue and leaves the voice channel.
type Stop struct{}

func (Play) Name() string { return NamePlay }
func (Skip) Name() string { return NameSkip }
func (Stop) Name() string { return NameStop }

func (Play) isCommand() {}
func (Skip) isCommand() {}
func (Stop) isCommand() {}

// Decode turns a command name and its named arguments into a Command.
func Decode(name string, args map[string]string) (Command, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NamePlay:
		q := strings.TrimSpace(args[OptionSongURL])
		if q == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingArgument, OptionSongURL)
		}
		return Play{Query: q}, nil
	case NameSkip:
		return Skip{}, nil
	case NameStop:
		return Stop{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
}
