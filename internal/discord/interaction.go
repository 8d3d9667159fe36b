package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/jukebox/internal/dispatch"
)

// responder is the part of *discordgo.Session used to answer interactions.
type responder interface {
	InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(i *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// guildState is the part of *discordgo.State used to describe the caller.
type guildState interface {
	VoiceState(guildID, userID string) (*discordgo.VoiceState, error)
	Guild(guildID string) (*discordgo.Guild, error)
}

// Interaction adapts a discordgo application command interaction to
// dispatch.Interaction. It also carries caller details for middleware.
type Interaction struct {
	api   responder
	state guildState
	raw   *discordgo.Interaction

	mu      sync.Mutex
	acked   bool
	outcome string
}

// NewInteraction wraps i. state may be nil, in which case the caller's voice
// channel and guild name are unknown.
func NewInteraction(api responder, state guildState, i *discordgo.Interaction) *Interaction {
	return &Interaction{api: api, state: state, raw: i}
}

func (in *Interaction) GuildID() string   { return in.raw.GuildID }
func (in *Interaction) ChannelID() string { return in.raw.ChannelID }

func (in *Interaction) user() *discordgo.User {
	if in.raw.Member != nil && in.raw.Member.User != nil {
		return in.raw.Member.User
	}
	return in.raw.User
}

func (in *Interaction) UserID() string {
	if u := in.user(); u != nil {
		return u.ID
	}
	return ""
}

func (in *Interaction) Username() string {
	if u := in.user(); u != nil {
		return u.Username
	}
	return ""
}

func (in *Interaction) GuildName() string {
	if in.state == nil || in.raw.GuildID == "" {
		return ""
	}
	g, err := in.state.Guild(in.raw.GuildID)
	if err != nil || g == nil {
		return ""
	}
	return g.Name
}

// UserVoiceChannel looks the caller up in the cached voice states.
func (in *Interaction) UserVoiceChannel() string {
	if in.state == nil || in.raw.GuildID == "" {
		return ""
	}
	vs, err := in.state.VoiceState(in.raw.GuildID, in.UserID())
	if err != nil || vs == nil {
		return ""
	}
	return vs.ChannelID
}

func (in *Interaction) Acknowledged() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.acked
}

// Defer sends a deferred channel message response.
func (in *Interaction) Defer(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.acked {
		return nil
	}
	err := in.api.InteractionRespond(in.raw, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("defer interaction: %w", err)
	}
	in.acked = true
	return nil
}

// Reply responds to the interaction, or sends a follow-up when it was
// already acknowledged.
func (in *Interaction) Reply(ctx context.Context, r dispatch.Reply) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	var flags discordgo.MessageFlags
	if r.Ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}

	if in.acked {
		_, err := in.api.FollowupMessageCreate(in.raw, true, &discordgo.WebhookParams{
			Content: r.Content,
			Flags:   flags,
		}, discordgo.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("send follow-up: %w", err)
		}
		return nil
	}

	err := in.api.InteractionRespond(in.raw, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: r.Content, Flags: flags},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("respond to interaction: %w", err)
	}
	in.acked = true
	return nil
}

// RecordOutcome keeps the dispatcher's outcome label for the command log.
func (in *Interaction) RecordOutcome(outcome string) {
	in.mu.Lock()
	in.outcome = outcome
	in.mu.Unlock()
}

// Outcome returns the recorded outcome label, "" if none was recorded.
func (in *Interaction) Outcome() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.outcome
}

// optionArgs flattens top-level command options into named strings.
func optionArgs(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]string {
	args := make(map[string]string, len(opts))
	for _, o := range opts {
		if o.Type == discordgo.ApplicationCommandOptionString {
			args[o.Name] = o.StringValue()
			continue
		}
		args[o.Name] = fmt.Sprint(o.Value)
	}
	return args
}

var (
	_ dispatch.Interaction     = (*Interaction)(nil)
	_ dispatch.OutcomeRecorder = (*Interaction)(nil)
)
