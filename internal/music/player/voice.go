package player

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/keshon/jukebox/internal/media"
	"github.com/keshon/jukebox/internal/music/stream"
)

// Voice is an open voice connection as seen by the player.
type Voice interface {
	media.Connection
	stream.Sink
	// Packets yields received audio; nil when receiving is unsupported.
	Packets() <-chan *discordgo.Packet
	Close() error
}

// Joiner opens voice connections.
type Joiner interface {
	Join(ctx context.Context, guildID, channelID string) (Voice, error)
}

// DiscordJoiner joins voice channels through a discordgo session.
type DiscordJoiner struct {
	dg *discordgo.Session
}

func NewDiscordJoiner(dg *discordgo.Session) *DiscordJoiner {
	return &DiscordJoiner{dg: dg}
}

func (j *DiscordJoiner) Join(ctx context.Context, guildID, channelID string) (Voice, error) {
	if channelID == "" {
		return nil, errors.New("voice channel ID is not set")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vc, err := j.dg.ChannelVoiceJoin(guildID, channelID, false, false)
	if err != nil {
		return nil, fmt.Errorf("failed to join voice channel: %w", err)
	}
	log.Info().Str("guild", guildID).Str("channel", channelID).Msg("joined voice channel")
	return &discordVoice{vc: vc, guildID: guildID}, nil
}

type discordVoice struct {
	vc      *discordgo.VoiceConnection
	guildID string
}

func (v *discordVoice) GuildID() string { return v.guildID }

// ChannelID reports the channel the connection is in right now; it follows
// moves made by moderators.
func (v *discordVoice) ChannelID() string {
	v.vc.RLock()
	defer v.vc.RUnlock()
	return v.vc.ChannelID
}

func (v *discordVoice) Speaking(b bool) error { return v.vc.Speaking(b) }

func (v *discordVoice) OpusFrames() chan<- []byte { return v.vc.OpusSend }

func (v *discordVoice) Packets() <-chan *discordgo.Packet { return v.vc.OpusRecv }

func (v *discordVoice) Close() error {
	return v.vc.Disconnect()
}
