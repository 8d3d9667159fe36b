package dispatch

import (
	"context"
	"fmt"

	"github.com/keshon/jukebox/pkg/cmd"
)

// Command names and options as announced to the platform.
const (
	NamePlay      = "play"
	NameSkip      = "skip"
	NameStop      = "stop"
	OptionSongURL = "song_url"
)

// Specs returns the static command set.
func Specs() []cmd.Spec {
	return []cmd.Spec{
		{
			Name:        NamePlay,
			Description: "Play a song",
			Options: []cmd.Option{
				{Name: OptionSongURL, Description: "Name of the song to play", Required: true},
			},
		},
		{Name: NameSkip, Description: "Skip the current song"},
		{Name: NameStop, Description: "Stop the music"},
	}
}

// Commands returns one cmd.Command per spec, each decoding its invocation and
// handing it to d. Invocation.Data must carry an Interaction.
func Commands(d *Dispatcher) []cmd.Command {
	specs := Specs()
	out := make([]cmd.Command, 0, len(specs))
	for _, s := range specs {
		out = append(out, &command{spec: s, d: d})
	}
	return out
}

type command struct {
	spec cmd.Spec
	d    *Dispatcher
}

func (c *command) Name() string        { return c.spec.Name }
func (c *command) Description() string { return c.spec.Description }
func (c *command) Spec() cmd.Spec      { return c.spec }

func (c *command) Run(ctx context.Context, inv *cmd.Invocation) error {
	in, ok := inv.Data.(Interaction)
	if !ok {
		return fmt.Errorf("%s: unsupported invocation payload %T", c.spec.Name, inv.Data)
	}

	decoded, err := Decode(c.spec.Name, inv.Args)
	if err != nil {
		return c.d.Reject(ctx, in, c.spec.Name, err)
	}
	return c.d.Dispatch(ctx, in, decoded)
}
