package dispatch

import "context"

// Reply is a message sent back on the originating interaction.
type Reply struct {
	Content   string
	Ephemeral bool
}

// Interaction is an inbound command invocation with reply capability.
type Interaction interface {
	GuildID() string
	// ChannelID is the text channel the command was issued in.
	ChannelID() string
	UserID() string
	// UserVoiceChannel returns the voice channel the issuing user is in, "" if none.
	UserVoiceChannel() string
	Acknowledged() bool
	// Defer acknowledges the interaction without content.
	Defer(ctx context.Context) error
	// Reply answers the interaction, as a follow-up when already acknowledged.
	Reply(ctx context.Context, r Reply) error
}

// OutcomeRecorder is optionally implemented by interactions that keep the
// outcome label of the command they carried.
type OutcomeRecorder interface {
	RecordOutcome(outcome string)
}

// Notifier posts unsolicited messages to a text channel.
type Notifier interface {
	Notify(ctx context.Context, channelID, content string) error
}
