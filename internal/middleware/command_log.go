package middleware

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/keshon/jukebox/internal/storage"
	"github.com/keshon/jukebox/pkg/cmd"
)

// HistoryWriter stores executed commands.
type HistoryWriter interface {
	AppendCommandToHistory(guildID string, record storage.CommandHistoryRecord) error
}

// WithCommandLogger logs every command run and, when history is non-nil,
// appends it to the guild's command history.
func WithCommandLogger(history HistoryWriter) cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			start := time.Now()
			err := c.Run(ctx, inv)

			caller, ok := callerOf(inv)
			if !ok {
				return err
			}

			event := log.Info()
			if err != nil {
				event = log.Error().Err(err)
			}
			event.
				Str("command", c.Name()).
				Str("guild", caller.GuildID()).
				Str("user", caller.UserID()).
				Str("args", formatArgs(inv.Args)).
				Dur("took", time.Since(start)).
				Msg("command handled")

			if history == nil || caller.GuildID() == "" {
				return err
			}
			record := storage.CommandHistoryRecord{
				UserID:   caller.UserID(),
				Command:  c.Name(),
				Param:    formatArgs(inv.Args),
				Outcome:  "ok",
				Datetime: start,
			}
			if err != nil {
				record.Outcome = "error"
			}
			if j, ok := caller.(Judged); ok && j.Outcome() != "" {
				record.Outcome = j.Outcome()
			}
			if n, ok := caller.(Named); ok {
				record.Username = n.Username()
				record.GuildName = n.GuildName()
			}
			if l, ok := caller.(Located); ok {
				record.ChannelID = l.ChannelID()
			}
			if e := history.AppendCommandToHistory(caller.GuildID(), record); e != nil {
				log.Warn().Err(e).Str("command", c.Name()).Msg("failed to log command")
			}
			return err
		})
	}
}

func formatArgs(args map[string]string) string {
	if len(args) == 0 {
		return ""
	}
	parts := make([]string, 0, len(args))
	for k, v := range args {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
