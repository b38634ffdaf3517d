//go:build opus

package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/foxseedlab/koewake/internal/audio"
	"github.com/hraban/opus"
	"github.com/rs/zerolog"
)

const (
	opusSampleRate = 48000
	// 120 ms at 48 kHz, the longest Opus frame.
	opusReadSamples = 5760
)

// OpusFileSource decodes a mono Ogg Opus file and resamples it to 16 kHz.
type OpusFileSource struct {
	path     string
	realtime bool
	logger   zerolog.Logger

	mu     sync.Mutex
	stop   chan struct{}
	closed bool
}

func NewOpusFileSource(path string, realtime bool, logger zerolog.Logger) audio.Source {
	return &OpusFileSource{
		path:     path,
		realtime: realtime,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

func (s *OpusFileSource) Start(_ context.Context, sink audio.BlockSink) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("audio source is closed")
	}
	f, err := os.Open(s.path)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("open opus file: %w", err)
	}
	stream, err := opus.NewStream(f)
	if err != nil {
		s.mu.Unlock()
		_ = f.Close()
		return fmt.Errorf("open opus stream: %w", err)
	}
	s.mu.Unlock()

	dec := newDecimator(opusSampleRate / audio.SampleRate)
	pcm := make([]float32, opusReadSamples)
	next := func() ([]float32, error) {
		for {
			n, err := stream.ReadFloat32(pcm)
			if err != nil {
				return nil, err
			}
			if out := dec.process(pcm[:n]); len(out) > 0 {
				return out, nil
			}
		}
	}

	release := func() {
		if err := stream.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("failed to close opus stream")
		}
		_ = f.Close()
	}

	first, err := next()
	if err != nil {
		release()
		_ = s.Close()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("opus file %s has no audio", s.path)
		}
		return fmt.Errorf("decode opus file: %w", err)
	}

	s.logger.Info().Str("path", s.path).Bool("realtime", s.realtime).Msg("started opus file capture")
	go func() {
		deliverLoop(first, next, sink, audio.SampleRate, s.realtime, s.stop)
		release()
	}()
	return nil
}

// Close stops delivery. The decoder is released by the delivery goroutine
// once it notices.
func (s *OpusFileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.stop)
	return nil
}
