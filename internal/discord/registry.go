package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/keshon/jukebox/internal/command"
	"github.com/keshon/jukebox/pkg/cmd"
	"github.com/keshon/jukebox/pkg/retrylimit"
)

// commandAPI is the part of *discordgo.Session that manages application
// commands.
type commandAPI interface {
	ApplicationCommands(appID, guildID string, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
	ApplicationCommandCreate(appID, guildID string, cmd *discordgo.ApplicationCommand, options ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error)
	ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// NewCommandLimiter returns the limiter shared by every guild's registry.
// Discord allows a few hundred command writes per day per guild, but bursts
// of creates are throttled much earlier.
func NewCommandLimiter() *retrylimit.AdaptiveLimiter {
	return retrylimit.NewAdaptiveLimiter(rate.Limit(5), rate.Limit(1), rate.Limit(20), rate.Limit(1), 0.5)
}

// CommandRegistry is a command.Registry backed by one guild's application
// commands.
type CommandRegistry struct {
	api     commandAPI
	appID   string
	guildID string
	limiter *retrylimit.AdaptiveLimiter
	retry   retrylimit.Config
}

// NewCommandRegistry returns the registry of guildID. limiter may be nil.
func NewCommandRegistry(api commandAPI, appID, guildID string, limiter *retrylimit.AdaptiveLimiter) *CommandRegistry {
	return &CommandRegistry{
		api:     api,
		appID:   appID,
		guildID: guildID,
		limiter: limiter,
		retry:   retrylimit.DefaultConfig(),
	}
}

// List returns the specs of the registered commands.
func (r *CommandRegistry) List(ctx context.Context) ([]cmd.Spec, error) {
	var remote []*discordgo.ApplicationCommand
	err := r.do(ctx, func(ctx context.Context) error {
		var err error
		remote, err = r.api.ApplicationCommands(r.appID, r.guildID, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return nil, err
	}

	specs := make([]cmd.Spec, 0, len(remote))
	for _, c := range remote {
		specs = append(specs, specFromCommand(c))
	}
	return specs, nil
}

// Clear removes every registered command of the guild.
func (r *CommandRegistry) Clear(ctx context.Context) error {
	return r.do(ctx, func(ctx context.Context) error {
		_, err := r.api.ApplicationCommandBulkOverwrite(r.appID, r.guildID, []*discordgo.ApplicationCommand{}, discordgo.WithContext(ctx))
		return err
	})
}

// Register creates spec; Discord replaces a command with the same name.
func (r *CommandRegistry) Register(ctx context.Context, spec cmd.Spec) error {
	def := commandFromSpec(spec)
	return r.do(ctx, func(ctx context.Context) error {
		_, err := r.api.ApplicationCommandCreate(r.appID, r.guildID, def, discordgo.WithContext(ctx))
		return err
	})
}

func (r *CommandRegistry) do(ctx context.Context, fn func(ctx context.Context) error) error {
	return retrylimit.Do(ctx, r.limiter, r.retry, func(ctx context.Context) error {
		return classify(fn(ctx))
	})
}

// restError exposes the HTTP status of a *discordgo.RESTError to retrylimit.
type restError struct {
	err    *discordgo.RESTError
	status int
}

func (e *restError) Error() string   { return e.err.Error() }
func (e *restError) Unwrap() error   { return e.err }
func (e *restError) StatusCode() int { return e.status }

// classify makes client errors other than 429 permanent.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) || rest.Response == nil {
		return err
	}
	wrapped := &restError{err: rest, status: rest.Response.StatusCode}
	if wrapped.status >= 400 && wrapped.status < 500 && wrapped.status != http.StatusTooManyRequests {
		return retrylimit.Permanent(wrapped)
	}
	return wrapped
}

func commandFromSpec(spec cmd.Spec) *discordgo.ApplicationCommand {
	def := &discordgo.ApplicationCommand{
		Type:        discordgo.ChatApplicationCommand,
		Name:        spec.Name,
		Description: spec.Description,
	}
	for _, o := range spec.Options {
		def.Options = append(def.Options, &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        o.Name,
			Description: o.Description,
			Required:    o.Required,
		})
	}
	return def
}

func specFromCommand(c *discordgo.ApplicationCommand) cmd.Spec {
	spec := cmd.Spec{Name: c.Name, Description: c.Description}
	for _, o := range c.Options {
		spec.Options = append(spec.Options, cmd.Option{
			Name:        o.Name,
			Description: o.Description,
			Required:    o.Required,
		})
	}
	return spec
}

// appID returns the application id of the logged in bot.
func appID(s *discordgo.Session) (string, error) {
	if s.State != nil && s.State.User != nil && s.State.User.ID != "" {
		return s.State.User.ID, nil
	}
	u, err := s.User("@me")
	if err != nil {
		return "", fmt.Errorf("failed to fetch bot user: %w", err)
	}
	return u.ID, nil
}

var _ command.Registry = (*CommandRegistry)(nil)
