package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/koewake/internal/config"
)

type envConfig struct {
	Env                     string        `env:"ENV" envDefault:"production"`
	LogLevel                string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat               string        `env:"LOG_FORMAT" envDefault:"json"`
	LogFile                 string        `env:"LOG_FILE" envDefault:"koewake.log"`
	BackendURL              string        `env:"BACKEND_URL" envDefault:"ws://localhost:8000/ws"`
	TransportConnectTimeout time.Duration `env:"TRANSPORT_CONNECT_TIMEOUT" envDefault:"10s"`
	TransportCloseTimeout   time.Duration `env:"TRANSPORT_CLOSE_TIMEOUT" envDefault:"2s"`
	SendQueueFrames         int           `env:"SEND_QUEUE_FRAMES" envDefault:"4"`
	AudioInput              string        `env:"AUDIO_INPUT" envDefault:"ffmpeg"`
	AudioFFmpegPath         string        `env:"AUDIO_FFMPEG_PATH" envDefault:"ffmpeg"`
	AudioFFmpegFormat       string        `env:"AUDIO_FFMPEG_FORMAT" envDefault:"pulse"`
	AudioDevice             string        `env:"AUDIO_DEVICE" envDefault:"default"`
	AudioFile               string        `env:"AUDIO_FILE"`
	AudioRealtime           bool          `env:"AUDIO_REALTIME" envDefault:"true"`
	AudioBlockSize          int           `env:"AUDIO_BLOCK_SIZE" envDefault:"4096"`
	DatabaseURL             string        `env:"DATABASE_URL" envDefault:"sqlite://koewake.sqlite"`
	KafkaBrokers            []string      `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic              string        `env:"KAFKA_TOPIC" envDefault:"koewake.transcript.final"`
	DiscordToken            string        `env:"DISCORD_TOKEN"`
	DiscordChannelID        string        `env:"DISCORD_CHANNEL_ID"`
	TranscriptWebhookURL    string        `env:"TRANSCRIPT_WEBHOOK_URL"`
	TranscriptTimezone      string        `env:"TRANSCRIPT_TIMEZONE" envDefault:"UTC"`
	MetricsAddr             string        `env:"METRICS_ADDR"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                     raw.Env,
		LogLevel:                raw.LogLevel,
		LogFormat:               raw.LogFormat,
		LogFile:                 raw.LogFile,
		BackendURL:              raw.BackendURL,
		TransportConnectTimeout: raw.TransportConnectTimeout,
		TransportCloseTimeout:   raw.TransportCloseTimeout,
		SendQueueFrames:         raw.SendQueueFrames,
		AudioInput:              raw.AudioInput,
		AudioFFmpegPath:         raw.AudioFFmpegPath,
		AudioFFmpegFormat:       raw.AudioFFmpegFormat,
		AudioDevice:             raw.AudioDevice,
		AudioFile:               raw.AudioFile,
		AudioRealtime:           raw.AudioRealtime,
		AudioBlockSize:          raw.AudioBlockSize,
		DatabaseURL:             raw.DatabaseURL,
		KafkaBrokers:            raw.KafkaBrokers,
		KafkaTopic:              raw.KafkaTopic,
		DiscordToken:            raw.DiscordToken,
		DiscordChannelID:        raw.DiscordChannelID,
		TranscriptWebhookURL:    raw.TranscriptWebhookURL,
		TranscriptTimezone:      raw.TranscriptTimezone,
		MetricsAddr:             raw.MetricsAddr,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type relayEnvConfig struct {
	Env                        string   `env:"ENV" envDefault:"production"`
	LogLevel                   string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat                  string   `env:"LOG_FORMAT" envDefault:"json"`
	LogFile                    string   `env:"LOG_FILE"`
	RelayAddr                  string   `env:"RELAY_ADDR" envDefault:":8000"`
	AllowedOrigins             []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	GoogleCloudCredentialsJSON string   `env:"GOOGLE_CLOUD_CREDENTIALS_JSON"`
	SpeechLanguage             string   `env:"SPEECH_LANGUAGE" envDefault:"en-US"`
	SpeechModel                string   `env:"SPEECH_MODEL" envDefault:"phone_call"`
	VADEnabled                 bool     `env:"VAD_ENABLED" envDefault:"true"`
	VADAggressiveness          int      `env:"VAD_AGGRESSIVENESS" envDefault:"3"`
	VADPrerollMS               int      `env:"VAD_PREROLL_MS" envDefault:"150"`
	VADHangoverMS              int      `env:"VAD_HANGOVER_MS" envDefault:"400"`
	SilenceKeepaliveMS         int      `env:"SILENCE_KEEPALIVE_MS" envDefault:"0"`
	VoteTailWords              int      `env:"VOTE_TAIL_WORDS" envDefault:"3"`
	VoteTailWeight             float64  `env:"VOTE_TAIL_WEIGHT" envDefault:"2.0"`
	VoteMinSwitchWords         int      `env:"VOTE_MIN_SWITCH_WORDS" envDefault:"3"`
}

func LoadRelay() (*internalconfig.RelayConfig, error) {
	var raw relayEnvConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.RelayConfig{
		Env:                        raw.Env,
		LogLevel:                   raw.LogLevel,
		LogFormat:                  raw.LogFormat,
		LogFile:                    raw.LogFile,
		RelayAddr:                  raw.RelayAddr,
		AllowedOrigins:             raw.AllowedOrigins,
		GoogleCloudCredentialsJSON: raw.GoogleCloudCredentialsJSON,
		SpeechLanguage:             raw.SpeechLanguage,
		SpeechModel:                raw.SpeechModel,
		VADEnabled:                 raw.VADEnabled,
		VADAggressiveness:          raw.VADAggressiveness,
		VADPrerollMS:               raw.VADPrerollMS,
		VADHangoverMS:              raw.VADHangoverMS,
		SilenceKeepaliveMS:         raw.SilenceKeepaliveMS,
		VoteTailWords:              raw.VoteTailWords,
		VoteTailWeight:             raw.VoteTailWeight,
		VoteMinSwitchWords:         raw.VoteMinSwitchWords,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
