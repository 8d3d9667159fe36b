package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/jukebox/internal/metrics"
	"github.com/keshon/jukebox/internal/storage"
	"github.com/keshon/jukebox/pkg/cmd"
)

type stubCommand struct {
	name string
	err  error
	runs int
}

func (s *stubCommand) Name() string        { return s.name }
func (s *stubCommand) Description() string { return "" }

func (s *stubCommand) Run(context.Context, *cmd.Invocation) error {
	s.runs++
	return s.err
}

type caller struct {
	guild, user string
}

func (c caller) GuildID() string   { return c.guild }
func (c caller) UserID() string    { return c.user }
func (c caller) Username() string  { return "name-" + c.user }
func (c caller) GuildName() string { return "guild-" + c.guild }

type memHistory struct {
	records map[string][]storage.CommandHistoryRecord
	err     error
}

func (m *memHistory) AppendCommandToHistory(guildID string, r storage.CommandHistoryRecord) error {
	if m.err != nil {
		return m.err
	}
	if m.records == nil {
		m.records = map[string][]storage.CommandHistoryRecord{}
	}
	m.records[guildID] = append(m.records[guildID], r)
	return nil
}

func TestGuildOnlyDropsDirectMessages(t *testing.T) {
	inner := &stubCommand{name: "play"}
	c := WithGuildOnly()(inner)

	require.NoError(t, c.Run(context.Background(), &cmd.Invocation{Data: caller{user: "u1"}}))
	assert.Equal(t, 0, inner.runs)

	require.NoError(t, c.Run(context.Background(), &cmd.Invocation{Data: caller{guild: "g1", user: "u1"}}))
	assert.Equal(t, 1, inner.runs)

	require.NoError(t, c.Run(context.Background(), &cmd.Invocation{Data: "cli"}))
	assert.Equal(t, 2, inner.runs, "non-caller payloads pass through")
}

func TestCommandLoggerWritesHistory(t *testing.T) {
	history := &memHistory{}
	inner := &stubCommand{name: "play"}
	c := WithCommandLogger(history)(inner)

	inv := &cmd.Invocation{
		Name: "play",
		Args: map[string]string{"song_url": "lofi"},
		Data: caller{guild: "g1", user: "u1"},
	}
	require.NoError(t, c.Run(context.Background(), inv))

	require.Len(t, history.records["g1"], 1)
	rec := history.records["g1"][0]
	assert.Equal(t, "play", rec.Command)
	assert.Equal(t, "song_url=lofi", rec.Param)
	assert.Equal(t, "name-u1", rec.Username)
	assert.Equal(t, "guild-g1", rec.GuildName)
	assert.Equal(t, "ok", rec.Outcome)
}

func TestCommandLoggerKeepsCommandError(t *testing.T) {
	boom := errors.New("boom")
	history := &memHistory{err: errors.New("disk full")}
	c := WithCommandLogger(history)(&stubCommand{name: "skip", err: boom})

	err := c.Run(context.Background(), &cmd.Invocation{Data: caller{guild: "g1", user: "u1"}})
	assert.ErrorIs(t, err, boom)
}

type judgedCaller struct {
	caller
	outcome string
}

func (j *judgedCaller) Outcome() string { return j.outcome }

// refusingCommand answers the caller itself and reports success, the way the
// dispatcher handles a refused request.
type refusingCommand struct{ stubCommand }

func (r *refusingCommand) Run(_ context.Context, inv *cmd.Invocation) error {
	inv.Data.(*judgedCaller).outcome = "no_channel"
	return nil
}

func TestCommandLoggerUsesHandlerOutcome(t *testing.T) {
	history := &memHistory{}
	c := WithCommandLogger(history)(&refusingCommand{stubCommand{name: "play"}})

	inv := &cmd.Invocation{Name: "play", Data: &judgedCaller{caller: caller{guild: "g1", user: "u1"}}}
	require.NoError(t, c.Run(context.Background(), inv))

	require.Len(t, history.records["g1"], 1)
	assert.Equal(t, "no_channel", history.records["g1"][0].Outcome)

	boom := errors.New("boom")
	c = WithCommandLogger(history)(&stubCommand{name: "skip", err: boom})
	err := c.Run(context.Background(), &cmd.Invocation{Data: &judgedCaller{caller: caller{guild: "g1", user: "u1"}}})
	assert.ErrorIs(t, err, boom)
	require.Len(t, history.records["g1"], 2)
	assert.Equal(t, "error", history.records["g1"][1].Outcome, "unlabelled failures stay errors")
}

func TestDefaultsChain(t *testing.T) {
	history := &memHistory{}
	inner := &stubCommand{name: "stop"}
	c := cmd.Apply(inner, Defaults(history)...)

	before := testutil.CollectAndCount(metrics.CommandDuration)
	require.NoError(t, c.Run(context.Background(), &cmd.Invocation{Data: caller{guild: "g1", user: "u1"}}))

	assert.Equal(t, 1, inner.runs)
	assert.Len(t, history.records["g1"], 1)
	assert.Same(t, inner, cmd.Root(c))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(metrics.CommandDuration), before)
}

func TestFormatArgsIsSorted(t *testing.T) {
	assert.Equal(t, "", formatArgs(nil))
	assert.Equal(t, "a=1 b=2", formatArgs(map[string]string{"b": "2", "a": "1"}))
}
