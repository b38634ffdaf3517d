package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/foxseedlab/koewake/internal/transport"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultWriteTimeout = 5 * time.Second
	closeWriteGrace     = time.Second
	readLimitBytes      = 1 << 20
)

// WebSocketDialer opens gorilla/websocket connections to the relay.
type WebSocketDialer struct {
	url          string
	header       http.Header
	dialer       *websocket.Dialer
	writeTimeout time.Duration
	logger       zerolog.Logger
}

func NewWebSocketDialer(url string, logger zerolog.Logger) *WebSocketDialer {
	return &WebSocketDialer{
		url:    url,
		header: http.Header{"User-Agent": []string{"koewake/1.0"}},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		writeTimeout: defaultWriteTimeout,
		logger:       logger,
	}
}

func (d *WebSocketDialer) Dial(ctx context.Context, receiver transport.Receiver) (transport.Conn, error) {
	ws, resp, err := d.dialer.DialContext(ctx, d.url, d.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", d.url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", d.url, err)
	}
	ws.SetReadLimit(readLimitBytes)

	c := &webSocketConn{
		ws:           ws,
		receiver:     receiver,
		writeTimeout: d.writeTimeout,
		logger:       d.logger,
		done:         make(chan struct{}),
	}
	go c.readLoop()
	d.logger.Debug().Str("url", d.url).Msg("connected to backend")
	return c, nil
}

type webSocketConn struct {
	ws           *websocket.Conn
	receiver     transport.Receiver
	writeTimeout time.Duration
	logger       zerolog.Logger

	writeMu sync.Mutex
	closing atomic.Bool
	done    chan struct{}
}

func (c *webSocketConn) readLoop() {
	defer close(c.done)
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			c.receiver.OnClosed(c.closeCause(err))
			return
		}
		if mt != websocket.TextMessage {
			c.logger.Debug().Int("messageType", mt).Msg("ignored non-text message from backend")
			continue
		}
		c.receiver.OnText(data)
	}
}

// closeCause is nil for a close we started or a normal close from the peer.
func (c *webSocketConn) closeCause(err error) error {
	if c.closing.Load() {
		return nil
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return err
}

func (c *webSocketConn) SendBinary(data []byte) error {
	if c.closing.Load() {
		return errors.New("connection is closing")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("write audio frame: %w", err)
	}
	return nil
}

// Close sends a close frame and waits for the peer to answer until ctx ends,
// then drops the socket. It never waits past ctx. It is safe to call more
// than once.
func (c *webSocketConn) Close(ctx context.Context) error {
	if c.closing.CompareAndSwap(false, true) {
		deadline := time.Now().Add(closeWriteGrace)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := c.ws.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			c.logger.Debug().Err(err).Msg("failed to send close frame")
		}
	}

	select {
	case <-c.done:
	case <-ctx.Done():
	}
	err := c.ws.Close()
	select {
	case <-c.done:
	case <-ctx.Done():
		// The read loop is still inside a receiver callback; it exits on
		// its own once the callback returns.
		c.logger.Debug().Msg("close deadline reached before the read loop finished")
	}
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.logger.Debug().Err(err).Msg("socket close returned an error")
	}
	return nil
}
