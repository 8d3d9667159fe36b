package middleware

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/keshon/jukebox/pkg/cmd"
)

// WithGuildOnly drops commands invoked outside a guild, e.g. in DMs.
func WithGuildOnly() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			if caller, ok := callerOf(inv); ok && caller.GuildID() == "" {
				log.Debug().Str("command", c.Name()).Str("user", caller.UserID()).Msg("ignoring command outside a guild")
				return nil
			}
			return c.Run(ctx, inv)
		})
	}
}
