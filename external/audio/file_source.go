package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/foxseedlab/koewake/internal/audio"
	"github.com/rs/zerolog"
)

const stdinPath = "-"

// FileSource replays raw little-endian float32 mono 16 kHz samples from a
// file, or from stdin when the path is "-".
type FileSource struct {
	path     string
	realtime bool
	stdin    io.Reader
	logger   zerolog.Logger

	mu     sync.Mutex
	file   io.Closer
	stop   chan struct{}
	closed bool
}

func NewFileSource(path string, realtime bool, logger zerolog.Logger) *FileSource {
	return &FileSource{
		path:     path,
		realtime: realtime,
		stdin:    os.Stdin,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

func (s *FileSource) Start(ctx context.Context, sink audio.BlockSink) error {
	r, err := s.open()
	if err != nil {
		return err
	}
	reader := newF32Reader(r)

	type result struct {
		samples []float32
		err     error
	}
	firstCh := make(chan result, 1)
	go func() {
		samples, err := reader.next()
		firstCh <- result{samples, err}
	}()

	var first result
	select {
	case first = <-firstCh:
	case <-ctx.Done():
		_ = s.Close()
		return ctx.Err()
	}
	if first.err != nil {
		_ = s.Close()
		if errors.Is(first.err, io.EOF) {
			return fmt.Errorf("audio file %s has no samples", s.path)
		}
		return fmt.Errorf("read audio file %s: %w", s.path, first.err)
	}

	s.logger.Info().Str("path", s.path).Bool("realtime", s.realtime).Msg("started file capture")
	go func() {
		deliverLoop(first.samples, reader.next, sink, audio.SampleRate, s.realtime, s.stop)
		_ = s.closeFile()
	}()
	return nil
}

func (s *FileSource) open() (io.Reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("audio source is closed")
	}
	if s.path == stdinPath {
		return s.stdin, nil
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	s.file = f
	return f, nil
}

func (s *FileSource) closeFile() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	return f.Close()
}

func (s *FileSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stop)
	s.mu.Unlock()
	return s.closeFile()
}
