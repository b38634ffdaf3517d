package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/foxseedlab/koewake/internal/audio"
	"github.com/foxseedlab/koewake/internal/diarization"
	"github.com/foxseedlab/koewake/internal/observability"
	"github.com/foxseedlab/koewake/internal/transcript"
	"github.com/foxseedlab/koewake/internal/transport"
	"github.com/rs/zerolog"
)

const (
	defaultQueueFrames    = 4
	defaultConnectTimeout = 10 * time.Second
	defaultCloseTimeout   = 2 * time.Second
)

// Observer is told about everything a session does. Calls are made outside
// the session lock; entries and partials arrive in receipt order.
type Observer interface {
	StateChanged(state State)
	EntryAppended(entry transcript.Entry)
	PartialReceived(label, text string)
	Failed(err error)
	Closed(reason string)
}

type Options struct {
	BlockSize      int
	QueueFrames    int
	ConnectTimeout time.Duration
	CloseTimeout   time.Duration
	Metrics        *observability.Metrics
	Logger         zerolog.Logger
	Now            func() time.Time
}

func (o Options) withDefaults() Options {
	if o.BlockSize <= 0 {
		o.BlockSize = audio.DefaultBlockSize
	}
	if o.QueueFrames <= 0 {
		o.QueueFrames = defaultQueueFrames
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = defaultCloseTimeout
	}
	if o.Metrics == nil {
		o.Metrics = observability.DefaultMetrics
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Session is one recording attempt: one transport, one capture device, one
// encoder. All state lives behind mu; capture and transport callbacks are
// concurrent producers.
type Session struct {
	id        string
	dialer    transport.Dialer
	newSource audio.SourceFactory
	roles     *diarization.RoleMap
	log       *transcript.Log
	observer  Observer
	opts      Options
	logger    zerolog.Logger

	mu         sync.Mutex
	state      State
	conn       transport.Conn
	source     audio.Source
	encoder    *audio.Encoder
	outbound   chan audio.Frame
	pumpStop   chan struct{}
	stopReason string
	failure    error
	done       chan struct{}

	// capture end reported before the session went Active
	captureEnded bool
	captureErr   error
}

func New(id string, dialer transport.Dialer, newSource audio.SourceFactory, roles *diarization.RoleMap, log *transcript.Log, observer Observer, opts Options) *Session {
	if observer == nil {
		observer = noopObserver{}
	}
	opts = opts.withDefaults()
	return &Session{
		id:        id,
		dialer:    dialer,
		newSource: newSource,
		roles:     roles,
		log:       log,
		observer:  observer,
		opts:      opts,
		logger:    opts.Logger.With().Str("sessionId", id).Logger(),
		state:     StateIdle,
		done:      make(chan struct{}),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StopReason is set once the session starts closing.
func (s *Session) StopReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopReason
}

// Done is closed once the session is Closed and the observer has been told.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Entries() []transcript.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.Entries()
}

func (s *Session) Assignments() []diarization.Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roles.Assignments()
}

// Start opens the transport and then the capture device. It is a no-op
// unless the session is Idle. A capture failure rolls the session back to
// Idle with the transport closed; a connect failure closes the session.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		s.logger.Debug().Str("state", state.String()).Msg("start ignored; session is not idle")
		return nil
	}
	s.roles.Reset()
	s.log.Reset()
	s.captureEnded = false
	s.captureErr = nil
	s.state = StateConnecting
	s.mu.Unlock()
	s.observer.StateChanged(StateConnecting)
	s.logger.Info().Msg("connecting to backend")

	dialCtx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	conn, err := s.dialer.Dial(dialCtx, &transportReceiver{session: s})
	cancel()
	if err != nil {
		s.logger.Error().Err(err).Msg("backend connect failed")
		cause := fmt.Errorf("%w: %w", ErrTransportFailure, err)
		s.shutdown(ctx, stopReasonStartFailed, cause)
		return cause
	}

	src := s.newSource()
	s.mu.Lock()
	if s.state != StateConnecting {
		failure := s.failure
		s.mu.Unlock()
		s.closeConn(ctx, conn)
		return failure
	}
	s.conn = conn
	s.source = src
	s.encoder = audio.NewEncoder(s.opts.BlockSize)
	s.outbound = make(chan audio.Frame, s.opts.QueueFrames)
	s.pumpStop = make(chan struct{})
	go s.pump(conn, s.outbound, s.pumpStop)
	s.mu.Unlock()

	if err := src.Start(ctx, &captureSink{session: s}); err != nil {
		s.logger.Error().Err(err).Msg("audio capture failed to open")
		cause := fmt.Errorf("%w: %w", ErrAcquisitionFailure, err)
		if !s.rollback(ctx) {
			return s.currentFailure()
		}
		s.opts.Metrics.SessionsFailed.WithLabelValues(stopReasonStartFailed).Inc()
		s.observer.StateChanged(StateIdle)
		s.observer.Failed(cause)
		return cause
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		failure := s.failure
		s.mu.Unlock()
		return failure
	}
	s.state = StateActive
	ended, captureErr := s.captureEnded, s.captureErr
	s.mu.Unlock()

	s.opts.Metrics.SessionsStarted.Inc()
	s.opts.Metrics.SessionsActive.Inc()
	s.observer.StateChanged(StateActive)
	s.logger.Info().Int("blockSize", s.opts.BlockSize).Msg("session active")
	if ended {
		s.handleCaptureEnd(captureErr)
	}
	return nil
}

// rollback releases everything acquired by a Start that failed to open the
// capture device and returns the session to Idle. It reports false when a
// concurrent Stop already took over teardown.
func (s *Session) rollback(ctx context.Context) bool {
	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		return false
	}
	res := s.detachLocked()
	s.state = StateIdle
	s.mu.Unlock()
	s.release(ctx, res)
	return true
}

func (s *Session) currentFailure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// SendFrame queues an encoded frame for transmission. It never blocks: the
// frame is dropped unless the session is Active and the queue has room.
func (s *Session) SendFrame(frame audio.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		s.opts.Metrics.FramesDropped.WithLabelValues(observability.DropNotActive).Inc()
		return false
	}
	select {
	case s.outbound <- frame:
		return true
	default:
		s.opts.Metrics.FramesDropped.WithLabelValues(observability.DropBackpressure).Inc()
		return false
	}
}

// Stop closes the session. It is safe from any state and any number of times.
func (s *Session) Stop(ctx context.Context) error {
	s.shutdown(ctx, stopReasonManual, nil)
	return nil
}

func (s *Session) shutdown(ctx context.Context, reason string, cause error) {
	s.mu.Lock()
	if s.state == StateIdle || s.state == StateClosing || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	wasActive := s.state == StateActive
	s.state = StateClosing
	s.stopReason = reason
	s.failure = cause
	res := s.detachLocked()
	s.mu.Unlock()

	s.observer.StateChanged(StateClosing)
	s.logger.Info().Str("reason", reason).Msg("closing session")
	s.release(ctx, res)

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()

	if wasActive {
		s.opts.Metrics.SessionsActive.Dec()
	}
	if cause != nil {
		s.opts.Metrics.SessionsFailed.WithLabelValues(reason).Inc()
		s.observer.Failed(cause)
	}
	s.observer.StateChanged(StateClosed)
	s.observer.Closed(reason)
	s.logger.Info().Str("reason", reason).Msg("session closed")
	close(s.done)
}

// fail tears the session down from a callback goroutine. Teardown waits on
// the transport and capture goroutines, so it must not run on them.
func (s *Session) fail(reason string, cause error) {
	go s.shutdown(context.Background(), reason, cause)
}

type resources struct {
	conn     transport.Conn
	source   audio.Source
	encoder  *audio.Encoder
	outbound chan audio.Frame
	pumpStop chan struct{}
}

func (s *Session) detachLocked() resources {
	res := resources{
		conn:     s.conn,
		source:   s.source,
		encoder:  s.encoder,
		outbound: s.outbound,
		pumpStop: s.pumpStop,
	}
	s.conn = nil
	s.source = nil
	s.encoder = nil
	s.outbound = nil
	s.pumpStop = nil
	return res
}

// release frees whatever was acquired: transport, then the encoder and any
// queued frames, then the capture device. The pump is told to stop first so
// a send cut short by the close is not reported as a failure.
func (s *Session) release(ctx context.Context, res resources) {
	if res.pumpStop != nil {
		close(res.pumpStop)
	}
	if res.conn != nil {
		s.closeConn(ctx, res.conn)
	}
	if res.outbound != nil {
		discarded := drain(res.outbound)
		if discarded > 0 {
			s.logger.Debug().Int("frames", discarded).Msg("discarded queued frames")
		}
	}
	if res.encoder != nil {
		res.encoder.Close()
	}
	if res.source != nil {
		if err := res.source.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("audio capture close failed")
		}
	}
}

func (s *Session) closeConn(ctx context.Context, conn transport.Conn) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.CloseTimeout)
	defer cancel()
	if err := conn.Close(closeCtx); err != nil {
		s.logger.Warn().Err(err).Msg("transport close failed")
	}
}

func drain(ch chan audio.Frame) int {
	n := 0
	for {
		select {
		case <-ch:
			n++
		default:
			return n
		}
	}
}

func (s *Session) pump(conn transport.Conn, outbound <-chan audio.Frame, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case frame := <-outbound:
			data := frame.Bytes()
			if err := conn.SendBinary(data); err != nil {
				select {
				case <-stop:
					return
				default:
				}
				s.logger.Error().Err(err).Msg("audio frame send failed")
				s.fail(stopReasonSendFailed, fmt.Errorf("%w: %w", ErrTransportFailure, err))
				return
			}
			s.opts.Metrics.FramesSent.Inc()
			s.opts.Metrics.AudioBytesSent.Add(float64(len(data)))
		}
	}
}

func (s *Session) handleSamples(samples []float32) {
	s.mu.Lock()
	enc := s.encoder
	s.mu.Unlock()
	if enc == nil {
		return
	}
	enc.Push(samples, func(frame audio.Frame) {
		s.SendFrame(frame)
	})
}

func (s *Session) handleCaptureEnd(err error) {
	s.mu.Lock()
	state := s.state
	if state == StateConnecting && s.source != nil {
		// Start finishes the transition and acts on it.
		s.captureEnded = true
		s.captureErr = err
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	if state != StateActive {
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("audio capture ended unexpectedly")
		s.fail(stopReasonCaptureEnded, fmt.Errorf("%w: %w", ErrAcquisitionFailure, err))
		return
	}
	s.logger.Info().Msg("audio capture finished")
	s.fail(stopReasonCaptureEnded, nil)
}

func (s *Session) handleMessage(msg []byte) {
	ev, err := diarization.DecodeEvent(msg)
	if err != nil {
		s.opts.Metrics.EventsMalformed.Inc()
		s.logger.Warn().Err(err).Int("bytes", len(msg)).Msg("dropping malformed event")
		return
	}

	s.mu.Lock()
	if s.state == StateIdle || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	if !ev.IsFinal {
		role, _ := s.roles.Lookup(ev.Tag)
		s.mu.Unlock()
		s.opts.Metrics.EventsReceived.WithLabelValues("partial").Inc()
		s.observer.PartialReceived(diarization.Label(ev.Tag, role), ev.Text)
		return
	}
	_, known := s.roles.Lookup(ev.Tag)
	role := s.roles.Observe(ev.Tag)
	entry := s.log.Append(ev.Tag, role, ev.Text, s.opts.Now())
	s.mu.Unlock()

	s.opts.Metrics.EventsReceived.WithLabelValues("final").Inc()
	if !known {
		if role.Assigned() {
			s.logger.Info().Int("speakerTag", int(ev.Tag)).Str("role", role.String()).Msg("speaker role assigned")
		} else {
			s.opts.Metrics.UnassignedSpeakers.Inc()
			s.logger.Warn().Int("speakerTag", int(ev.Tag)).Msg("both roles taken; speaker left unassigned")
		}
	}
	s.observer.EntryAppended(entry)
}

func (s *Session) handleTransportClosed(err error) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state != StateActive && state != StateConnecting {
		return
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error().Err(err).Msg("backend connection lost")
		s.fail(stopReasonTransportError, fmt.Errorf("%w: %w", ErrTransportFailure, err))
		return
	}
	s.logger.Warn().Msg("backend closed the connection")
	s.fail(stopReasonTransportClosed, fmt.Errorf("%w: closed by backend", ErrTransportFailure))
}

type transportReceiver struct {
	session *Session
}

func (r *transportReceiver) OnText(msg []byte) {
	r.session.handleMessage(msg)
}

func (r *transportReceiver) OnClosed(err error) {
	r.session.handleTransportClosed(err)
}

type captureSink struct {
	session *Session
}

func (c *captureSink) OnSamples(samples []float32) {
	c.session.handleSamples(samples)
}

func (c *captureSink) OnCaptureEnd(err error) {
	c.session.handleCaptureEnd(err)
}

type noopObserver struct{}

func (noopObserver) StateChanged(State)             {}
func (noopObserver) EntryAppended(transcript.Entry) {}
func (noopObserver) PartialReceived(string, string) {}
func (noopObserver) Failed(error)                   {}
func (noopObserver) Closed(string)                  {}
