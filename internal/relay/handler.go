// Package relay is the diarization backend: it accepts PCM over a WebSocket,
// gates it by voice activity, streams it to a recognizer and answers with one
// speaker-tagged event per final result.
package relay

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/foxseedlab/koewake/internal/config"
	"github.com/foxseedlab/koewake/internal/diarization"
	"github.com/foxseedlab/koewake/internal/observability"
	"github.com/foxseedlab/koewake/internal/recognizer"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeTimeout   = 5 * time.Second
	closeGrace     = time.Second
	maxMessageSize = 1 << 20
)

var errClientGone = errors.New("client connection closed")

// Handler serves one recognition stream per WebSocket connection.
type Handler struct {
	recognizer recognizer.Recognizer
	cfg        *config.RelayConfig
	metrics    *observability.Metrics
	logger     zerolog.Logger
	upgrader   websocket.Upgrader
}

func NewHandler(rec recognizer.Recognizer, cfg *config.RelayConfig, metrics *observability.Metrics, logger zerolog.Logger) *Handler {
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}
	return &Handler{
		recognizer: rec,
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 << 10,
			WriteBufferSize: 4 << 10,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}
}

// originChecker allows every origin when allowed is empty. Requests without
// an Origin header come from native clients and are always allowed.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("origin", r.Header.Get("Origin")).Msg("websocket upgrade failed")
		return
	}
	ws.SetReadLimit(maxMessageSize)

	id := uuid.NewString()
	logger := h.logger.With().Str("connectionId", id).Logger()
	logger.Info().Str("remoteAddr", r.RemoteAddr).Msg("client connected")
	h.metrics.RelayConnections.Inc()
	defer h.metrics.RelayConnections.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	client := &clientConn{ws: ws, logger: logger}
	defer client.close(websocket.CloseNormalClosure, "")

	fwd := &resultForwarder{
		client:  client,
		voter:   NewSpeakerVoter(h.voteConfig()),
		metrics: h.metrics,
		logger:  logger,
	}
	writer, err := h.recognizer.StartStreaming(ctx, id, fwd)
	if err != nil {
		h.metrics.RecognizerErrors.Inc()
		logger.Error().Err(err).Msg("failed to start recognizer stream")
		client.close(websocket.CloseInternalServerErr, "recognizer unavailable")
		return
	}
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Debug().Err(err).Msg("recognizer stream close returned an error")
		}
	}()

	gate := NewGate(h.gateConfig())
	forward := func(frame []byte, kind string) error {
		h.metrics.RelayFramesForwarded.WithLabelValues(kind).Inc()
		return writer.Write(frame)
	}
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Info().Msg("client disconnected")
			} else {
				logger.Warn().Err(err).Msg("client connection ended")
			}
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		gated, err := gate.Push(data, forward)
		h.metrics.RelayFramesGated.Add(float64(gated))
		if err != nil {
			h.metrics.RecognizerErrors.Inc()
			logger.Error().Err(err).Msg("failed to forward audio to recognizer")
			client.close(websocket.CloseInternalServerErr, "recognizer failed")
			return
		}
	}
}

func (h *Handler) gateConfig() GateConfig {
	return GateConfig{
		Enabled:     h.cfg.VADEnabled,
		Detector:    NewEnergyDetector(h.cfg.VADAggressiveness),
		PrerollMS:   h.cfg.VADPrerollMS,
		HangoverMS:  h.cfg.VADHangoverMS,
		KeepaliveMS: h.cfg.SilenceKeepaliveMS,
	}
}

func (h *Handler) voteConfig() VoteConfig {
	return VoteConfig{
		TailWords:      h.cfg.VoteTailWords,
		TailWeight:     h.cfg.VoteTailWeight,
		MinSwitchWords: h.cfg.VoteMinSwitchWords,
	}
}

// clientConn serializes writes to one client socket.
type clientConn struct {
	ws     *websocket.Conn
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
}

func (c *clientConn) writeText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClientGone
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// close sends a close frame with code and drops the socket. Only the first
// call has any effect.
func (c *clientConn) close(code int, text string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(code, text)
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace)); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.logger.Debug().Err(err).Msg("failed to send close frame")
	}
	_ = c.ws.Close()
}

// resultForwarder turns final recognizer results into diarization events.
type resultForwarder struct {
	client  *clientConn
	metrics *observability.Metrics
	logger  zerolog.Logger

	mu    sync.Mutex
	voter *SpeakerVoter
}

func (f *resultForwarder) OnResult(r recognizer.Result) {
	if !r.IsFinal || len(r.Words) == 0 {
		return
	}
	f.mu.Lock()
	tag, suppressed, ok := f.voter.Decide(r.Words)
	f.mu.Unlock()
	if !ok {
		return
	}
	if suppressed {
		f.metrics.RelaySwitchesSuppressed.Inc()
	}

	payload, err := diarization.EncodeEvent(diarization.Event{
		Tag:     diarization.Tag(tag),
		Text:    r.Transcript,
		IsFinal: true,
	})
	if err != nil {
		f.logger.Error().Err(err).Msg("failed to encode transcript event")
		return
	}
	f.logger.Info().Int("speakerTag", tag).Str("transcript", r.Transcript).Msg("sending final transcript")
	if err := f.client.writeText(payload); err != nil {
		f.logger.Warn().Err(err).Msg("unable to send final transcript")
		return
	}
	f.metrics.RelayFinalResults.Inc()
}

// OnError ends the client connection so the client sees the failure.
func (f *resultForwarder) OnError(err error) {
	f.metrics.RecognizerErrors.Inc()
	f.logger.Error().Err(err).Msg("recognizer stream failed")
	f.client.close(websocket.CloseInternalServerErr, "recognizer failed")
}
