// Package middleware holds cmd.Middleware shared by every bot command.
package middleware

import "github.com/keshon/jukebox/pkg/cmd"

// Caller is what middleware needs to know about whoever invoked a command.
// Invocation.Data is expected to implement it; other payloads pass through
// untouched.
type Caller interface {
	GuildID() string
	UserID() string
}

// Named is optionally implemented by callers that know display names.
type Named interface {
	Username() string
	GuildName() string
}

// Judged is optionally implemented by callers that carry the outcome label
// assigned by the command handler. Commands that refuse a request still
// return nil, so the label is more precise than the returned error.
type Judged interface {
	Outcome() string
}

// Located is optionally implemented by callers that know the text channel.
type Located interface {
	ChannelID() string
}

func callerOf(inv *cmd.Invocation) (Caller, bool) {
	if inv == nil {
		return nil, false
	}
	c, ok := inv.Data.(Caller)
	return c, ok
}

// Defaults returns the middleware chain used for bot commands, innermost
// first.
func Defaults(history HistoryWriter) []cmd.Middleware {
	return []cmd.Middleware{
		WithMetrics(),
		WithCommandLogger(history),
		WithGuildOnly(),
	}
}
