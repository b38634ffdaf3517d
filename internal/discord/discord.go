package discord

import "context"

type FileMessage struct {
	ChannelID string
	Content   string
	Filename  string
	FileBody  []byte
}

// Client posts finished transcripts to a text channel.
type Client interface {
	Connect(ctx context.Context) error
	Close() error
	SendChannelMessageWithFile(msg FileMessage) error
	// ChannelName returns the channel's display name, or the ID when it
	// cannot be resolved.
	ChannelName(channelID string) string
}
