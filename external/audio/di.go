package audio

import (
	"github.com/foxseedlab/koewake/internal/audio"
	"github.com/foxseedlab/koewake/internal/config"
	"github.com/foxseedlab/koewake/internal/logging"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (audio.SourceFactory, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewSourceFactory(c), nil
	})
}

// NewSourceFactory returns a factory for the input selected by AUDIO_INPUT.
// Each recording gets a fresh source.
func NewSourceFactory(c *config.Config) audio.SourceFactory {
	logger := logging.WithComponent("audio")
	switch c.AudioInput {
	case config.AudioInputFile:
		return func() audio.Source {
			return NewFileSource(c.AudioFile, c.AudioRealtime, logger)
		}
	case config.AudioInputOpus:
		return func() audio.Source {
			return NewOpusFileSource(c.AudioFile, c.AudioRealtime, logger)
		}
	default:
		return func() audio.Source {
			return NewFFmpegSource(c.AudioFFmpegPath, c.AudioFFmpegFormat, c.AudioDevice, logger)
		}
	}
}
