package config

import (
	"fmt"
	"net/url"
	"time"
)

const (
	AudioInputFFmpeg = "ffmpeg"
	AudioInputFile   = "file"
	AudioInputOpus   = "opus"
)

// Config is the recording client's configuration.
type Config struct {
	Env                     string
	LogLevel                string
	LogFormat               string
	LogFile                 string
	BackendURL              string
	TransportConnectTimeout time.Duration
	TransportCloseTimeout   time.Duration
	SendQueueFrames         int
	AudioInput              string
	AudioFFmpegPath         string
	AudioFFmpegFormat       string
	AudioDevice             string
	AudioFile               string
	AudioRealtime           bool
	AudioBlockSize          int
	DatabaseURL             string
	KafkaBrokers            []string
	KafkaTopic              string
	DiscordToken            string
	DiscordChannelID        string
	TranscriptWebhookURL    string
	TranscriptTimezone      string
	MetricsAddr             string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return fmt.Errorf("BACKEND_URL is invalid: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("BACKEND_URL must use ws:// or wss://, got %q", c.BackendURL)
	}
	if c.TransportConnectTimeout <= 0 {
		return fmt.Errorf("TRANSPORT_CONNECT_TIMEOUT must be positive, got %s", c.TransportConnectTimeout)
	}
	if c.TransportCloseTimeout <= 0 {
		return fmt.Errorf("TRANSPORT_CLOSE_TIMEOUT must be positive, got %s", c.TransportCloseTimeout)
	}
	if c.SendQueueFrames <= 0 {
		return fmt.Errorf("SEND_QUEUE_FRAMES must be positive, got %d", c.SendQueueFrames)
	}
	if c.AudioBlockSize <= 0 {
		return fmt.Errorf("AUDIO_BLOCK_SIZE must be positive, got %d", c.AudioBlockSize)
	}
	switch c.AudioInput {
	case AudioInputFFmpeg:
	case AudioInputFile, AudioInputOpus:
		if c.AudioFile == "" {
			return fmt.Errorf("AUDIO_FILE is required when AUDIO_INPUT=%s", c.AudioInput)
		}
	default:
		return fmt.Errorf("AUDIO_INPUT must be one of ffmpeg, file, opus; got %q", c.AudioInput)
	}
	if c.DiscordToken != "" && c.DiscordChannelID == "" {
		return fmt.Errorf("DISCORD_CHANNEL_ID is required when DISCORD_TOKEN is set")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	if _, err := time.LoadLocation(c.TranscriptTimezone); err != nil {
		return fmt.Errorf("TRANSCRIPT_TIMEZONE is invalid: %w", err)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "BACKEND_URL", value: c.BackendURL},
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "TRANSCRIPT_TIMEZONE", value: c.TranscriptTimezone},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Location returns the transcript timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TranscriptTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
