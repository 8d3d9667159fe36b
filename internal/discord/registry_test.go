package discord

import (
	"context"
	"net/http"
	"strconv"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/jukebox/internal/command"
	"github.com/keshon/jukebox/internal/dispatch"
	"github.com/keshon/jukebox/pkg/retrylimit"
)

type fakeCommandAPI struct {
	commands []*discordgo.ApplicationCommand
	// failures are returned by successive creates before they succeed.
	failures []error
	creates  int
}

func (f *fakeCommandAPI) ApplicationCommands(_, _ string, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	return f.commands, nil
}

func (f *fakeCommandAPI) ApplicationCommandCreate(_, _ string, c *discordgo.ApplicationCommand, _ ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error) {
	f.creates++
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return nil, err
	}
	for i, existing := range f.commands {
		if existing.Name == c.Name {
			f.commands[i] = c
			return c, nil
		}
	}
	f.commands = append(f.commands, c)
	return c, nil
}

func (f *fakeCommandAPI) ApplicationCommandBulkOverwrite(_, _ string, cs []*discordgo.ApplicationCommand, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	f.commands = cs
	return cs, nil
}

func (f *fakeCommandAPI) names() []string {
	out := make([]string, 0, len(f.commands))
	for _, c := range f.commands {
		out = append(out, c.Name)
	}
	return out
}

func restErr(status int) error {
	return &discordgo.RESTError{
		Response:     &http.Response{StatusCode: status, Status: strconv.Itoa(status)},
		ResponseBody: []byte(`{"message":"nope"}`),
	}
}

func fastRegistry(api commandAPI) *CommandRegistry {
	r := NewCommandRegistry(api, "app", "g1", nil)
	r.retry.InitialDelay = 0
	r.retry.RateLimitDelay = 0
	r.retry.Jitter = false
	return r
}

func TestSyncReplacesStaleCommands(t *testing.T) {
	api := &fakeCommandAPI{}
	for _, n := range []string{"a", "b", "c", "d", "e"} {
		api.commands = append(api.commands, &discordgo.ApplicationCommand{Name: n})
	}

	res, err := command.Sync(context.Background(), fastRegistry(api), dispatch.Specs(), 3)
	require.NoError(t, err)
	assert.True(t, res.Cleared)
	assert.Equal(t, []string{"play", "skip", "stop"}, api.names())

	play := api.commands[0]
	assert.Equal(t, discordgo.ChatApplicationCommand, play.Type)
	require.Len(t, play.Options, 1)
	assert.Equal(t, "song_url", play.Options[0].Name)
	assert.True(t, play.Options[0].Required)
	assert.Equal(t, discordgo.ApplicationCommandOptionString, play.Options[0].Type)
}

func TestListMapsOptions(t *testing.T) {
	api := &fakeCommandAPI{}
	r := fastRegistry(api)
	for _, s := range dispatch.Specs() {
		require.NoError(t, r.Register(context.Background(), s))
	}

	specs, err := r.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dispatch.Specs(), specs)
}

func TestRegisterRetriesRateLimits(t *testing.T) {
	api := &fakeCommandAPI{failures: []error{restErr(http.StatusTooManyRequests), restErr(http.StatusBadGateway)}}
	r := fastRegistry(api)

	require.NoError(t, r.Register(context.Background(), dispatch.Specs()[1]))
	assert.Equal(t, 3, api.creates)
}

func TestRegisterDoesNotRetryClientErrors(t *testing.T) {
	api := &fakeCommandAPI{failures: []error{restErr(http.StatusBadRequest)}}
	r := fastRegistry(api)

	err := r.Register(context.Background(), dispatch.Specs()[1])
	require.Error(t, err)
	assert.Equal(t, 1, api.creates)

	var rest *discordgo.RESTError
	assert.ErrorAs(t, err, &rest)
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))
	assert.True(t, retrylimit.IsRateLimited(classify(restErr(http.StatusTooManyRequests))))
	assert.True(t, retrylimit.IsServerError(classify(restErr(http.StatusInternalServerError))))

	var perm *retrylimit.PermanentError
	assert.ErrorAs(t, classify(restErr(http.StatusForbidden)), &perm)
}
