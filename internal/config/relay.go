package config

import "fmt"

// RelayConfig configures the speech relay backend.
type RelayConfig struct {
	Env                        string
	LogLevel                   string
	LogFormat                  string
	LogFile                    string
	RelayAddr                  string
	AllowedOrigins             []string
	GoogleCloudCredentialsJSON string
	SpeechLanguage             string
	SpeechModel                string
	VADEnabled                 bool
	VADAggressiveness          int
	VADPrerollMS               int
	VADHangoverMS              int
	SilenceKeepaliveMS         int
	VoteTailWords              int
	VoteTailWeight             float64
	VoteMinSwitchWords         int
}

func (c *RelayConfig) Validate() error {
	if c.RelayAddr == "" {
		return fmt.Errorf("RELAY_ADDR is required")
	}
	if c.SpeechLanguage == "" {
		return fmt.Errorf("SPEECH_LANGUAGE is required")
	}
	if c.VADAggressiveness < 0 || c.VADAggressiveness > 3 {
		return fmt.Errorf("VAD_AGGRESSIVENESS must be between 0 and 3, got %d", c.VADAggressiveness)
	}
	if c.VADPrerollMS < 0 {
		return fmt.Errorf("VAD_PREROLL_MS must not be negative, got %d", c.VADPrerollMS)
	}
	if c.VADHangoverMS < 0 {
		return fmt.Errorf("VAD_HANGOVER_MS must not be negative, got %d", c.VADHangoverMS)
	}
	if c.SilenceKeepaliveMS < 0 {
		return fmt.Errorf("SILENCE_KEEPALIVE_MS must not be negative, got %d", c.SilenceKeepaliveMS)
	}
	if c.VoteTailWords < 0 {
		return fmt.Errorf("VOTE_TAIL_WORDS must not be negative, got %d", c.VoteTailWords)
	}
	if c.VoteTailWeight < 1 {
		return fmt.Errorf("VOTE_TAIL_WEIGHT must be at least 1, got %g", c.VoteTailWeight)
	}
	if c.VoteMinSwitchWords < 1 {
		return fmt.Errorf("VOTE_MIN_SWITCH_WORDS must be at least 1, got %d", c.VoteMinSwitchWords)
	}
	return nil
}

func (c *RelayConfig) IsDevelopment() bool {
	return c.Env == "development"
}
