package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/foxseedlab/koewake/internal/audio"
	"github.com/foxseedlab/koewake/internal/diarization"
	"github.com/foxseedlab/koewake/internal/observability"
	"github.com/foxseedlab/koewake/internal/transcript"
	"github.com/foxseedlab/koewake/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

type fakeConn struct {
	mu        sync.Mutex
	receiver  transport.Receiver
	sent      [][]byte
	sendCalls int
	closed    int
	sendErr   error
	block     chan struct{}
	// failOnClose makes sends wait for Close and then fail, like a socket
	// torn down under an in-flight write.
	failOnClose bool
	closing     chan struct{}
	closeGate   chan struct{}
}

func (c *fakeConn) SendBinary(data []byte) error {
	c.mu.Lock()
	c.sendCalls++
	c.mu.Unlock()
	if c.failOnClose {
		<-c.closing
		return errors.New("connection is closing")
	}
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeConn) Close(_ context.Context) error {
	c.mu.Lock()
	c.closed++
	if c.closed == 1 {
		close(c.closing)
	}
	c.mu.Unlock()
	if c.closeGate != nil {
		<-c.closeGate
	}
	return nil
}

func (c *fakeConn) sendCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendCalls
}

func (c *fakeConn) sentFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) final(tag int, text string) {
	c.receiver.OnText([]byte(fmt.Sprintf(`{"is_final":true,"speaker_tag":%d,"transcript":%q}`, tag, text)))
}

type fakeDialer struct {
	mu          sync.Mutex
	dials       int
	err         error
	gate        chan struct{}
	conns       []*fakeConn
	block       chan struct{}
	failOnClose bool
	closeGate   chan struct{}
}

func (d *fakeDialer) Dial(ctx context.Context, receiver transport.Receiver) (transport.Conn, error) {
	d.mu.Lock()
	d.dials++
	gate := d.gate
	d.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	conn := &fakeConn{
		receiver:    receiver,
		block:       d.block,
		failOnClose: d.failOnClose,
		closing:     make(chan struct{}),
		closeGate:   d.closeGate,
	}
	d.mu.Lock()
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

type fakeSource struct {
	mu       sync.Mutex
	startErr error
	sink     audio.BlockSink
	started  int
	closed   int
	// endDuringStart delivers a block and the end of input before Start
	// returns, as a short file read without pacing does.
	endDuringStart bool
	endErr         error
}

func (s *fakeSource) Start(_ context.Context, sink audio.BlockSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started++
	if s.startErr != nil {
		return s.startErr
	}
	s.sink = sink
	if s.endDuringStart {
		sink.OnSamples(make([]float32, 8))
		sink.OnCaptureEnd(s.endErr)
	}
	return nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSource) counts() (started, closed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started, s.closed
}

func (s *fakeSource) blockSink() audio.BlockSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sink
}

type fakeObserver struct {
	mu       sync.Mutex
	states   []State
	entries  []transcript.Entry
	partials []string
	failures []error
	closed   []string
}

func (o *fakeObserver) StateChanged(state State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, state)
}

func (o *fakeObserver) EntryAppended(entry transcript.Entry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = append(o.entries, entry)
}

func (o *fakeObserver) PartialReceived(label, text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.partials = append(o.partials, label+": "+text)
}

func (o *fakeObserver) Failed(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, err)
}

func (o *fakeObserver) Closed(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = append(o.closed, reason)
}

func (o *fakeObserver) snapshot() fakeObserver {
	o.mu.Lock()
	defer o.mu.Unlock()
	return fakeObserver{
		states:   append([]State(nil), o.states...),
		entries:  append([]transcript.Entry(nil), o.entries...),
		partials: append([]string(nil), o.partials...),
		failures: append([]error(nil), o.failures...),
		closed:   append([]string(nil), o.closed...),
	}
}

type harness struct {
	session  *Session
	dialer   *fakeDialer
	source   *fakeSource
	observer *fakeObserver
	metrics  *observability.Metrics
	roles    *diarization.RoleMap
	log      *transcript.Log
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		dialer:   &fakeDialer{},
		source:   &fakeSource{},
		observer: &fakeObserver{},
		metrics:  observability.NewMetrics(prometheus.NewRegistry()),
		roles:    diarization.NewRoleMap(),
		log:      transcript.NewLog(),
	}
	opts.Metrics = h.metrics
	opts.Logger = zerolog.Nop()
	if opts.CloseTimeout == 0 {
		opts.CloseTimeout = time.Second
	}
	h.session = New("rec-test", h.dialer, func() audio.Source { return h.source }, h.roles, h.log, h.observer, opts)
	return h
}

func (h *harness) start(t *testing.T) *fakeConn {
	t.Helper()
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := h.session.State(); got != StateActive {
		t.Fatalf("expected Active after start, got %s", got)
	}
	return h.dialer.last()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not close; state %s", s.State())
	}
}

func TestSession_ScenarioLabelsFollowFirstSeenOrder(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.start(t)

	tags := []int{5, 5, 7, 5, 9}
	texts := []string{"hi", "there", "hello", "again", "what"}
	for i := range tags {
		conn.final(tags[i], texts[i])
	}

	entries := h.session.Entries()
	want := []string{"User", "User", "AI Agent", "User", "Speaker 9"}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, e := range entries {
		if e.Label() != want[i] || e.Text != texts[i] || e.Index != i {
			t.Fatalf("entry %d: got (%d, %q, %q), want (%d, %q, %q)", i, e.Index, e.Label(), e.Text, i, want[i], texts[i])
		}
	}

	assignments := h.session.Assignments()
	if len(assignments) != 3 {
		t.Fatalf("expected 3 distinct tags, got %+v", assignments)
	}
	if assignments[0].Tag != 5 || assignments[0].Role != diarization.RoleUser {
		t.Fatalf("tag 5 should be User: %+v", assignments[0])
	}
	if assignments[1].Tag != 7 || assignments[1].Role != diarization.RoleAIAgent {
		t.Fatalf("tag 7 should be AI Agent: %+v", assignments[1])
	}
	if assignments[2].Tag != 9 || assignments[2].Role.Assigned() {
		t.Fatalf("tag 9 should be unassigned: %+v", assignments[2])
	}
	if got := testutil.ToFloat64(h.metrics.UnassignedSpeakers); got != 1 {
		t.Fatalf("expected 1 unassigned speaker, got %v", got)
	}
	if got := len(h.observer.snapshot().entries); got != 5 {
		t.Fatalf("expected 5 observed entries, got %d", got)
	}
}

func TestSession_RepeatedFinalEventAppendsTwice(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.start(t)

	conn.final(3, "same")
	before := h.session.Assignments()
	conn.final(3, "same")

	if after := h.session.Assignments(); len(after) != len(before) || after[0] != before[0] {
		t.Fatalf("role map changed: before %+v after %+v", before, after)
	}
	entries := h.session.Entries()
	if len(entries) != 2 || entries[0].Text != "same" || entries[1].Text != "same" {
		t.Fatalf("expected the text twice, got %+v", entries)
	}
}

func TestSession_StartResetsRolesAndLog(t *testing.T) {
	h := newHarness(t, Options{})
	h.roles.Observe(1)
	h.log.Append(1, diarization.RoleUser, "stale", time.Now())

	h.start(t)

	if n := len(h.session.Entries()); n != 0 {
		t.Fatalf("expected empty log after start, got %d entries", n)
	}
	if n := len(h.session.Assignments()); n != 0 {
		t.Fatalf("expected empty role map after start, got %d", n)
	}
}

func TestSession_DoubleStartOpensOneTransport(t *testing.T) {
	h := newHarness(t, Options{})
	h.start(t)
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("second start should be a no-op, got %v", err)
	}
	if got := h.dialer.dialCount(); got != 1 {
		t.Fatalf("expected 1 dial, got %d", got)
	}
	if started, _ := h.source.counts(); started != 1 {
		t.Fatalf("expected capture opened once, got %d", started)
	}
}

func TestSession_StartWhileConnectingIsNoop(t *testing.T) {
	h := newHarness(t, Options{})
	h.dialer.gate = make(chan struct{})

	errCh := make(chan error, 1)
	go func() { errCh <- h.session.Start(context.Background()) }()
	waitFor(t, "dial", func() bool { return h.dialer.dialCount() == 1 })

	if got := h.session.State(); got != StateConnecting {
		t.Fatalf("expected Connecting, got %s", got)
	}
	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("start while connecting should be a no-op, got %v", err)
	}
	close(h.dialer.gate)
	if err := <-errCh; err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if got := h.dialer.dialCount(); got != 1 {
		t.Fatalf("expected 1 dial, got %d", got)
	}
}

func TestSession_SendFrameDroppedUnlessActive(t *testing.T) {
	h := newHarness(t, Options{})
	frame := audio.Frame{1, 2, 3}

	if h.session.SendFrame(frame) {
		t.Fatal("expected drop while Idle")
	}

	h.dialer.gate = make(chan struct{})
	errCh := make(chan error, 1)
	go func() { errCh <- h.session.Start(context.Background()) }()
	waitFor(t, "dial", func() bool { return h.dialer.dialCount() == 1 })
	if h.session.SendFrame(frame) {
		t.Fatal("expected drop while Connecting")
	}
	close(h.dialer.gate)
	if err := <-errCh; err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := h.session.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if h.session.SendFrame(frame) {
		t.Fatal("expected drop after stop")
	}
	if n := len(h.dialer.last().sentFrames()); n != 0 {
		t.Fatalf("expected nothing sent, got %d frames", n)
	}
	if got := testutil.ToFloat64(h.metrics.FramesDropped.WithLabelValues(observability.DropNotActive)); got != 3 {
		t.Fatalf("expected 3 not-active drops, got %v", got)
	}
}

func TestSession_SendFrameNeverBlocks(t *testing.T) {
	h := newHarness(t, Options{QueueFrames: 1})
	h.dialer.block = make(chan struct{})
	h.start(t)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			h.session.SendFrame(audio.Frame{int16(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SendFrame blocked on a stalled transport")
	}
	if got := testutil.ToFloat64(h.metrics.FramesDropped.WithLabelValues(observability.DropBackpressure)); got == 0 {
		t.Fatal("expected backpressure drops")
	}
	close(h.dialer.block)
	if err := h.session.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestSession_CapturedSamplesAreSentAsBlocks(t *testing.T) {
	h := newHarness(t, Options{BlockSize: 4})
	conn := h.start(t)

	sink := h.source.blockSink()
	sink.OnSamples([]float32{0.5, -0.5, 1.5, 0})
	sink.OnSamples([]float32{0.25, 0.25})
	sink.OnSamples([]float32{0, 0})

	waitFor(t, "two frames", func() bool { return len(conn.sentFrames()) == 2 })
	frames := conn.sentFrames()
	want0 := []byte{0xFF, 0x3F, 0x01, 0xC0, 0xFF, 0x7F, 0x00, 0x00}
	if string(frames[0]) != string(want0) {
		t.Fatalf("unexpected first frame bytes: % x", frames[0])
	}
	if len(frames[1]) != 8 {
		t.Fatalf("expected 8 bytes in second frame, got %d", len(frames[1]))
	}
	if got := testutil.ToFloat64(h.metrics.FramesSent); got != 2 {
		t.Fatalf("expected 2 frames sent, got %v", got)
	}
}

func TestSession_AcquisitionFailureRollsBackToIdle(t *testing.T) {
	h := newHarness(t, Options{})
	h.source.startErr = errors.New("permission denied")

	err := h.session.Start(context.Background())
	if !errors.Is(err, ErrAcquisitionFailure) {
		t.Fatalf("expected acquisition failure, got %v", err)
	}
	if got := h.session.State(); got != StateIdle {
		t.Fatalf("expected Idle after rollback, got %s", got)
	}
	conn := h.dialer.last()
	if conn == nil || conn.closeCount() != 1 {
		t.Fatal("expected the opened transport to be closed")
	}
	if _, closed := h.source.counts(); closed != 1 {
		t.Fatalf("expected capture released once, got %d", closed)
	}
	obs := h.observer.snapshot()
	if len(obs.failures) != 1 || !errors.Is(obs.failures[0], ErrAcquisitionFailure) {
		t.Fatalf("expected one acquisition failure notification, got %v", obs.failures)
	}
	if len(obs.closed) != 0 {
		t.Fatalf("rollback must not report Closed, got %v", obs.closed)
	}
}

func TestSession_ConnectFailureClosesSession(t *testing.T) {
	h := newHarness(t, Options{})
	h.dialer.err = errors.New("connection refused")

	err := h.session.Start(context.Background())
	if !errors.Is(err, ErrTransportFailure) {
		t.Fatalf("expected transport failure, got %v", err)
	}
	if got := h.session.State(); got != StateClosed {
		t.Fatalf("expected Closed, got %s", got)
	}
	if started, _ := h.source.counts(); started != 0 {
		t.Fatal("capture must not open without a transport")
	}
	if got := h.session.StopReason(); got != stopReasonStartFailed {
		t.Fatalf("unexpected stop reason %q", got)
	}
}

func TestSession_TransportLossReleasesCapture(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.start(t)

	conn.receiver.OnClosed(errors.New("connection reset"))
	waitDone(t, h.session)

	if got := h.session.State(); got != StateClosed {
		t.Fatalf("expected Closed, got %s", got)
	}
	if _, closed := h.source.counts(); closed != 1 {
		t.Fatalf("expected capture released, got %d closes", closed)
	}
	if got := h.session.StopReason(); got != stopReasonTransportError {
		t.Fatalf("unexpected stop reason %q", got)
	}
	obs := h.observer.snapshot()
	if len(obs.failures) != 1 || !errors.Is(obs.failures[0], ErrTransportFailure) {
		t.Fatalf("expected transport failure notification, got %v", obs.failures)
	}
}

func TestSession_SendErrorClosesSession(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.start(t)
	conn.mu.Lock()
	conn.sendErr = errors.New("broken pipe")
	conn.mu.Unlock()

	if !h.session.SendFrame(audio.Frame{1}) {
		t.Fatal("expected frame to be queued")
	}
	waitDone(t, h.session)
	if got := h.session.StopReason(); got != stopReasonSendFailed {
		t.Fatalf("unexpected stop reason %q", got)
	}
}

func TestSession_CaptureEndClosesSession(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.start(t)

	h.source.blockSink().OnCaptureEnd(nil)
	waitDone(t, h.session)

	if got := h.session.StopReason(); got != stopReasonCaptureEnded {
		t.Fatalf("unexpected stop reason %q", got)
	}
	if conn.closeCount() != 1 {
		t.Fatal("expected transport closed")
	}
	if n := len(h.observer.snapshot().failures); n != 0 {
		t.Fatalf("end of input is not a failure, got %d", n)
	}
}

func TestSession_MalformedEventIsDropped(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.start(t)

	conn.receiver.OnText([]byte("not json"))
	conn.receiver.OnText([]byte(`{"is_final":true,"transcript":"no tag"}`))

	if n := len(h.session.Entries()); n != 0 {
		t.Fatalf("expected no entries, got %d", n)
	}
	if got := h.session.State(); got != StateActive {
		t.Fatalf("malformed events must not change state, got %s", got)
	}
	if got := testutil.ToFloat64(h.metrics.EventsMalformed); got != 2 {
		t.Fatalf("expected 2 malformed events, got %v", got)
	}
}

func TestSession_PartialEventsAreNotLogged(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.start(t)

	conn.receiver.OnText([]byte(`{"is_final":false,"speaker_tag":2,"transcript":"hel"}`))

	if n := len(h.session.Entries()); n != 0 {
		t.Fatalf("expected no entries, got %d", n)
	}
	if n := len(h.session.Assignments()); n != 0 {
		t.Fatalf("partials must not assign roles, got %d", n)
	}
	obs := h.observer.snapshot()
	if len(obs.partials) != 1 || obs.partials[0] != "Speaker 2: hel" {
		t.Fatalf("unexpected partials: %v", obs.partials)
	}
}

func TestSession_StopIsIdempotent(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.start(t)

	for i := 0; i < 3; i++ {
		if err := h.session.Stop(context.Background()); err != nil {
			t.Fatalf("stop %d: %v", i, err)
		}
	}
	if got := h.session.State(); got != StateClosed {
		t.Fatalf("expected Closed, got %s", got)
	}
	if conn.closeCount() != 1 {
		t.Fatalf("expected transport closed once, got %d", conn.closeCount())
	}
	if _, closed := h.source.counts(); closed != 1 {
		t.Fatalf("expected capture closed once, got %d", closed)
	}
	obs := h.observer.snapshot()
	want := []State{StateConnecting, StateActive, StateClosing, StateClosed}
	if len(obs.states) != len(want) {
		t.Fatalf("unexpected transitions: %v", obs.states)
	}
	for i := range want {
		if obs.states[i] != want[i] {
			t.Fatalf("unexpected transitions: %v", obs.states)
		}
	}
	if len(obs.closed) != 1 || obs.closed[0] != stopReasonManual {
		t.Fatalf("expected one manual close, got %v", obs.closed)
	}
}

func TestSession_StopWhenIdleIsNoop(t *testing.T) {
	h := newHarness(t, Options{})
	if err := h.session.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := h.session.State(); got != StateIdle {
		t.Fatalf("expected Idle, got %s", got)
	}
	if n := len(h.observer.snapshot().states); n != 0 {
		t.Fatalf("expected no transitions, got %d", n)
	}
}

func TestSession_EventsAfterStopAreIgnored(t *testing.T) {
	h := newHarness(t, Options{})
	conn := h.start(t)
	conn.final(1, "kept")
	if err := h.session.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	conn.final(1, "late")

	entries := h.session.Entries()
	if len(entries) != 1 || entries[0].Text != "kept" {
		t.Fatalf("unexpected entries after stop: %+v", entries)
	}
}

func TestSession_StopDuringConnectClosesLateTransport(t *testing.T) {
	h := newHarness(t, Options{})
	h.dialer.gate = make(chan struct{})

	errCh := make(chan error, 1)
	go func() { errCh <- h.session.Start(context.Background()) }()
	waitFor(t, "dial", func() bool { return h.dialer.dialCount() == 1 })

	if err := h.session.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := h.session.State(); got != StateClosed {
		t.Fatalf("expected Closed, got %s", got)
	}
	close(h.dialer.gate)
	if err := <-errCh; err != nil {
		t.Fatalf("start interrupted by stop should not fail, got %v", err)
	}
	conn := h.dialer.last()
	if conn == nil || conn.closeCount() != 1 {
		t.Fatal("expected the late transport to be closed")
	}
	if started, _ := h.source.counts(); started != 0 {
		t.Fatal("capture must not open after stop")
	}
}

func TestSession_CaptureEndBeforeActiveClosesSession(t *testing.T) {
	h := newHarness(t, Options{})
	h.source.endDuringStart = true

	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, h.session)

	if got := h.session.StopReason(); got != stopReasonCaptureEnded {
		t.Fatalf("unexpected stop reason %q", got)
	}
	if _, closed := h.source.counts(); closed != 1 {
		t.Fatalf("expected capture closed once, got %d", closed)
	}
	if conn := h.dialer.last(); conn.closeCount() != 1 {
		t.Fatal("expected transport closed")
	}
	if n := len(h.observer.snapshot().failures); n != 0 {
		t.Fatalf("end of input is not a failure, got %d", n)
	}
}

func TestSession_CaptureErrorBeforeActiveIsAcquisitionFailure(t *testing.T) {
	h := newHarness(t, Options{})
	h.source.endDuringStart = true
	h.source.endErr = errors.New("ffmpeg exited with status 1")

	if err := h.session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, h.session)

	obs := h.observer.snapshot()
	if len(obs.failures) != 1 || !errors.Is(obs.failures[0], ErrAcquisitionFailure) {
		t.Fatalf("expected acquisition failure, got %v", obs.failures)
	}
	if _, closed := h.source.counts(); closed != 1 {
		t.Fatalf("expected capture closed once, got %d", closed)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSession_StopDuringSendIsNotASendFailure(t *testing.T) {
	h := newHarness(t, Options{})
	h.dialer.failOnClose = true
	var logs syncBuffer
	h.session.logger = zerolog.New(&logs)
	conn := h.start(t)

	if !h.session.SendFrame(audio.Frame{1}) {
		t.Fatal("expected frame to be queued")
	}
	waitFor(t, "send in flight", func() bool { return conn.sendCount() == 1 })

	if err := h.session.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if got := h.session.StopReason(); got != stopReasonManual {
		t.Fatalf("unexpected stop reason %q", got)
	}
	if n := len(h.observer.snapshot().failures); n != 0 {
		t.Fatalf("manual stop must not report a failure, got %d", n)
	}
	if strings.Contains(logs.String(), "audio frame send failed") {
		t.Fatalf("send cut short by stop was logged as a failure:\n%s", logs.String())
	}
}

func TestSession_FinalEventDuringClosingIsKept(t *testing.T) {
	h := newHarness(t, Options{})
	h.dialer.closeGate = make(chan struct{})
	conn := h.start(t)
	conn.final(1, "before")

	stopped := make(chan struct{})
	go func() {
		_ = h.session.Stop(context.Background())
		close(stopped)
	}()
	waitFor(t, "closing", func() bool { return h.session.State() == StateClosing })

	conn.final(2, "tail")
	close(h.dialer.closeGate)
	<-stopped
	waitDone(t, h.session)

	entries := h.session.Entries()
	if len(entries) != 2 || entries[1].Text != "tail" || entries[1].Label() != "AI Agent" {
		t.Fatalf("expected the tail entry to be kept, got %+v", entries)
	}
	if n := len(h.observer.snapshot().entries); n != 2 {
		t.Fatalf("expected observer to see 2 entries, got %d", n)
	}
}
