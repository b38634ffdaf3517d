package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	discordpkg "github.com/foxseedlab/koewake/internal/discord"
	"github.com/rs/zerolog/log"
)

var errNotConnected = errors.New("discord client is not connected")

type Client struct {
	session   *discordgo.Session
	token     string
	botUserID string
}

func NewClient(token string) discordpkg.Client {
	return &Client{
		token: token,
	}
}

// Connect prepares a REST session and checks the token. No gateway
// connection is opened; transcripts are only uploaded.
func (c *Client) Connect(ctx context.Context) error {
	s, err := discordgo.New("Bot " + c.token)
	if err != nil {
		return err
	}
	u, err := s.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("verify discord token: %w", err)
	}
	c.session = s
	c.botUserID = u.ID
	log.Info().Str("component", "discord").Str("botUserId", u.ID).Msg("discord client ready")
	return nil
}

func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

func (c *Client) SendChannelMessageWithFile(msg discordpkg.FileMessage) error {
	if c.session == nil {
		return errNotConnected
	}
	_, err := c.session.ChannelMessageSendComplex(msg.ChannelID, &discordgo.MessageSend{
		Content: msg.Content,
		Files: []*discordgo.File{
			{Name: msg.Filename, ContentType: "text/plain", Reader: bytes.NewReader(msg.FileBody)},
		},
	})
	return err
}

func (c *Client) ChannelName(channelID string) string {
	if channel := c.resolveChannel(channelID); channel != nil {
		return channel.Name
	}
	return channelID
}

func (c *Client) resolveChannel(channelID string) *discordgo.Channel {
	if c.session == nil {
		return nil
	}
	if c.session.State != nil {
		channel, err := c.session.State.Channel(channelID)
		if err == nil && channel != nil && channel.Name != "" {
			return channel
		}
	}
	channel, err := c.session.Channel(channelID)
	if err != nil || channel == nil {
		return nil
	}
	if channel.Name == "" {
		return nil
	}
	return channel
}

// disabledClient stands in when no bot token is configured.
type disabledClient struct{}

func NewDisabledClient() discordpkg.Client {
	return disabledClient{}
}

func (disabledClient) Connect(context.Context) error                           { return nil }
func (disabledClient) Close() error                                            { return nil }
func (disabledClient) SendChannelMessageWithFile(discordpkg.FileMessage) error { return nil }
func (disabledClient) ChannelName(channelID string) string                     { return channelID }
