package audio

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/foxseedlab/koewake/internal/audio"
	"github.com/rs/zerolog"
)

const (
	stderrTailBytes  = 2048
	processStopGrace = 2 * time.Second
)

// FFmpegSource captures a microphone through an ffmpeg child process that
// writes mono 16 kHz float32 samples to stdout.
type FFmpegSource struct {
	path   string
	format string
	device string
	logger zerolog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	cancel context.CancelFunc
	exited chan struct{}
	stop   chan struct{}
	closed bool
}

func NewFFmpegSource(path, format, device string, logger zerolog.Logger) *FFmpegSource {
	return &FFmpegSource{
		path:   path,
		format: format,
		device: device,
		logger: logger,
		stop:   make(chan struct{}),
	}
}

func (s *FFmpegSource) args() []string {
	return []string{
		"-hide_banner", "-nostdin", "-loglevel", "error",
		"-f", s.format, "-i", s.device,
		"-ac", "1", "-ar", fmt.Sprint(audio.SampleRate),
		"-f", "f32le", "-",
	}
}

// Start returns once ffmpeg has produced its first samples, or with the
// reason it could not.
func (s *FFmpegSource) Start(ctx context.Context, sink audio.BlockSink) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("audio source is closed")
	}
	// The process must outlive ctx, which only bounds startup.
	runCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(runCtx, s.path, s.args()...)
	cmd.WaitDelay = processStopGrace
	stderr := &tailBuffer{limit: stderrTailBytes}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.mu.Unlock()
		cancel()
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		cancel()
		return fmt.Errorf("start ffmpeg: %w", err)
	}
	s.cmd = cmd
	s.cancel = cancel
	s.exited = make(chan struct{})
	s.mu.Unlock()

	reader := newF32Reader(stdout)
	type result struct {
		samples []float32
		err     error
	}
	firstCh := make(chan result, 1)
	go func() {
		samples, err := reader.next()
		firstCh <- result{samples, err}
	}()

	timer := time.NewTimer(firstAudioTimeout)
	defer timer.Stop()

	abort := func() error {
		cancel()
		<-firstCh
		err := cmd.Wait()
		close(s.exited)
		_ = s.Close()
		return err
	}

	var first result
	select {
	case first = <-firstCh:
	case <-ctx.Done():
		_ = abort()
		return ctx.Err()
	case <-timer.C:
		_ = abort()
		return fmt.Errorf("ffmpeg produced no audio within %s", firstAudioTimeout)
	}
	if first.err != nil {
		firstCh <- first
		waitErr := abort()
		return fmt.Errorf("ffmpeg exited before audio (%v): %s", waitErr, stderr.String())
	}

	s.logger.Info().Str("format", s.format).Str("device", s.device).Msg("started microphone capture")
	go func() {
		deliverLoop(first.samples, reader.next, sink, audio.SampleRate, false, s.stop)
		if err := cmd.Wait(); err != nil {
			s.logger.Debug().Err(err).Str("stderr", stderr.String()).Msg("ffmpeg exited")
		}
		close(s.exited)
	}()
	return nil
}

// Close stops the ffmpeg process. It is safe to call before Start and more
// than once.
func (s *FFmpegSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stop)
	cancel := s.cancel
	exited := s.exited
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-exited:
	case <-time.After(processStopGrace * 2):
		return errors.New("ffmpeg did not exit")
	}
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}
