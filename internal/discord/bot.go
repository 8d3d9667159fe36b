// Package discord connects the command dispatcher to a Discord gateway
// session.
package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/keshon/jukebox/internal/command"
	"github.com/keshon/jukebox/internal/dispatch"
	"github.com/keshon/jukebox/internal/metrics"
	"github.com/keshon/jukebox/internal/music/player"
	"github.com/keshon/jukebox/internal/session"
	"github.com/keshon/jukebox/pkg/cmd"
	"github.com/keshon/jukebox/pkg/retrylimit"
	"github.com/keshon/jukebox/pkg/util"
)

const syncWorkers = 4

// ErrNoCommands is returned by Run when the startup sync left no guild with
// any registered command.
var ErrNoCommands = errors.New("no commands could be registered")

// Bot is a Discord bot
type Bot struct {
	dg         *discordgo.Session
	commands   *cmd.Registry
	dispatcher *dispatch.Dispatcher
	sessions   *session.Registry
	events     <-chan player.Event
	blacklist  func(guildID string) bool
	threshold  int
	limiter    *retrylimit.AdaptiveLimiter

	mu     sync.Mutex
	ctx    context.Context
	synced map[string]bool
	fatal  chan error

	log zerolog.Logger
}

// Option configures a Bot.
type Option func(*Bot)

// WithBlacklist makes the bot leave guilds for which fn reports true.
func WithBlacklist(fn func(guildID string) bool) Option {
	return func(b *Bot) { b.blacklist = fn }
}

// WithClearThreshold sets the command sync clear threshold.
func WithClearThreshold(n int) Option {
	return func(b *Bot) { b.threshold = n }
}

// WithPlayerEvents shows the playing track as the bot's presence.
func WithPlayerEvents(events <-chan player.Event) Option {
	return func(b *Bot) { b.events = events }
}

// WithSessions reports the session count to the active sessions gauge.
func WithSessions(r *session.Registry) Option {
	return func(b *Bot) { b.sessions = r }
}

// New creates a bot that serves the commands of reg over dg. Commands that
// are not in reg are rejected through d.
func New(dg *discordgo.Session, reg *cmd.Registry, d *dispatch.Dispatcher, opts ...Option) *Bot {
	b := &Bot{
		dg:         dg,
		commands:   reg,
		dispatcher: d,
		blacklist:  func(string) bool { return false },
		threshold:  command.DefaultClearThreshold,
		limiter:    NewCommandLimiter(),
		ctx:        context.Background(),
		synced:     make(map[string]bool),
		fatal:      make(chan error, 1),
		log:        log.With().Str("component", "discord").Logger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run opens the gateway session and blocks until ctx is cancelled or the
// startup command sync fails for every guild.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	b.dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	b.dg.AddHandler(b.onReady)
	b.dg.AddHandler(b.onGuildCreate)
	b.dg.AddHandler(b.onInteractionCreate)

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer b.dg.Close()

	if b.events != nil {
		go b.watchPlayer(ctx)
	}

	select {
	case <-ctx.Done():
		b.log.Info().Msg("shutdown signal received, closing gateway")
		return nil
	case err := <-b.fatal:
		return err
	}
}

func (b *Bot) context() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctx
}

// onReady syncs commands in every guild the bot is in.
func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("connected to gateway")

	var guilds []string
	for _, g := range r.Guilds {
		if b.leaveIfBlacklisted(s, g.ID) {
			continue
		}
		if b.claimSync(g.ID) {
			guilds = append(guilds, g.ID)
		}
	}
	if len(guilds) == 0 {
		return
	}

	var (
		mu    sync.Mutex
		fatal int
	)
	err := util.Parallel(b.context(), guilds, syncWorkers, func(ctx context.Context, guildID string) error {
		err := b.syncGuild(ctx, s, guildID)
		if command.IsFatal(err) {
			mu.Lock()
			fatal++
			mu.Unlock()
		}
		return err
	})
	if err == nil {
		b.log.Info().Int("guilds", len(guilds)).Msg("commands synced")
		return
	}
	if fatal == len(guilds) {
		b.log.Error().Err(err).Msg("command sync failed in every guild")
		select {
		case b.fatal <- fmt.Errorf("%w: %v", ErrNoCommands, err):
		default:
		}
		return
	}
	b.log.Warn().Err(err).Int("failed", fatal).Int("guilds", len(guilds)).Msg("command sync degraded")
}

// onGuildCreate syncs commands in guilds joined after startup.
func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if b.leaveIfBlacklisted(s, g.ID) {
		return
	}
	if !b.claimSync(g.ID) {
		return
	}
	b.log.Info().Str("guild", g.ID).Str("name", g.Name).Msg("bot added to guild")
	if err := b.syncGuild(b.context(), s, g.ID); err != nil {
		b.log.Error().Err(err).Str("guild", g.ID).Msg("failed to sync commands")
	}
}

// claimSync reports whether guildID has not been synced yet and marks it.
func (b *Bot) claimSync(guildID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.synced[guildID] {
		return false
	}
	b.synced[guildID] = true
	return true
}

func (b *Bot) leaveIfBlacklisted(s *discordgo.Session, guildID string) bool {
	if !b.blacklist(guildID) {
		return false
	}
	b.log.Info().Str("guild", guildID).Msg("leaving blacklisted guild")
	if err := s.GuildLeave(guildID); err != nil {
		b.log.Error().Err(err).Str("guild", guildID).Msg("failed to leave guild")
	}
	return true
}

// syncGuild converges the guild's application commands to the served set.
// Non-fatal registration errors are logged and swallowed.
func (b *Bot) syncGuild(ctx context.Context, s *discordgo.Session, guildID string) error {
	id, err := appID(s)
	if err != nil {
		metrics.CommandSyncTotal.WithLabelValues("failed").Inc()
		return err
	}

	reg := NewCommandRegistry(s, id, guildID, b.limiter)
	res, err := command.Sync(ctx, reg, b.commands.Specs(), b.threshold)
	logger := b.log.With().Str("guild", guildID).Int("existing", res.Existing).Bool("cleared", res.Cleared).Strs("registered", res.Registered).Logger()

	switch {
	case err == nil:
		metrics.CommandSyncTotal.WithLabelValues("ok").Inc()
		logger.Debug().Msg("commands synced")
		return nil
	case command.IsFatal(err):
		metrics.CommandSyncTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("guild %s: %w", guildID, err)
	default:
		metrics.CommandSyncTotal.WithLabelValues("degraded").Inc()
		logger.Warn().Err(err).Msg("some commands failed to register")
		return nil
	}
}

// onInteractionCreate runs slash commands.
func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		b.log.Debug().Int("type", int(i.Type)).Msg("ignoring interaction")
		return
	}
	b.handleCommand(b.context(), NewInteraction(s, s.State, i.Interaction), i.ApplicationCommandData())
}

func (b *Bot) handleCommand(ctx context.Context, in *Interaction, data discordgo.ApplicationCommandInteractionData) {
	defer b.reportSessions()

	c := b.commands.Get(data.Name)
	if c == nil {
		if err := b.dispatcher.Reject(ctx, in, "", fmt.Errorf("%w: %q", dispatch.ErrUnknownCommand, data.Name)); err != nil {
			b.log.Error().Err(err).Str("command", data.Name).Msg("failed to reject command")
		}
		return
	}

	inv := &cmd.Invocation{Name: data.Name, Args: optionArgs(data.Options), Data: in}
	if err := c.Run(ctx, inv); err != nil {
		b.log.Error().Err(err).Str("command", data.Name).Str("guild", in.GuildID()).Msg("command failed")
	}
}

func (b *Bot) reportSessions() {
	if b.sessions != nil {
		metrics.ActiveSessions.Set(float64(b.sessions.Len()))
	}
}

// watchPlayer mirrors player status in the bot's presence.
func (b *Bot) watchPlayer(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.events:
			b.log.Debug().Str("guild", ev.GuildID).Str("status", string(ev.Status)).Str("title", ev.Title).Msg("player status")
			status := presenceFor(ev)
			if status == nil {
				continue
			}
			if err := b.dg.UpdateListeningStatus(*status); err != nil {
				b.log.Debug().Err(err).Msg("failed to update presence")
			}
			b.reportSessions()
		}
	}
}

// presenceFor returns the listening status for ev, or nil when ev does not
// change it.
func presenceFor(ev player.Event) *string {
	var s string
	switch ev.Status {
	case player.StatusPlaying:
		s = ev.Title
	case player.StatusStopped:
		s = ""
	default:
		return nil
	}
	return &s
}
