package transport

import "context"

// Receiver gets inbound traffic from a Conn. OnText is called in arrival
// order from a single goroutine. OnClosed is called exactly once when the
// connection ends: err is nil for a close we initiated or a normal remote
// close, non-nil otherwise.
type Receiver interface {
	OnText(msg []byte)
	OnClosed(err error)
}

// Conn is an open, ready connection to the diarization backend.
type Conn interface {
	SendBinary(data []byte) error
	Close(ctx context.Context) error
}

// Dialer opens connections. Dial returns once the connection is ready to
// carry audio.
type Dialer interface {
	Dial(ctx context.Context, receiver Receiver) (Conn, error)
}
