package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/jukebox/internal/dispatch"
)

// messageSender is the part of *discordgo.Session used to post to a channel.
type messageSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// ChannelNotifier posts dispatcher notices as plain channel messages.
type ChannelNotifier struct {
	api messageSender
}

func NewChannelNotifier(api messageSender) *ChannelNotifier {
	return &ChannelNotifier{api: api}
}

func (n *ChannelNotifier) Notify(ctx context.Context, channelID, content string) error {
	if _, err := n.api.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send message to channel %s: %w", channelID, err)
	}
	return nil
}

var _ dispatch.Notifier = (*ChannelNotifier)(nil)
