//go:build !opus

package audio

import (
	"context"
	"errors"

	"github.com/foxseedlab/koewake/internal/audio"
	"github.com/rs/zerolog"
)

var errOpusUnavailable = errors.New("opus input requires a build with -tags opus")

type unavailableOpusSource struct{}

func NewOpusFileSource(_ string, _ bool, _ zerolog.Logger) audio.Source {
	return unavailableOpusSource{}
}

func (unavailableOpusSource) Start(context.Context, audio.BlockSink) error { return errOpusUnavailable }
func (unavailableOpusSource) Close() error                                 { return nil }
