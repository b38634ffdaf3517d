package session

import "errors"

var (
	// ErrAcquisitionFailure covers a denied or missing capture device.
	ErrAcquisitionFailure = errors.New("audio capture unavailable")
	// ErrTransportFailure covers connect errors and mid-session disconnects.
	ErrTransportFailure = errors.New("backend connection failed")
)

const (
	stopReasonManual          = "manual"
	stopReasonTransportError  = "transport_error"
	stopReasonTransportClosed = "transport_closed"
	stopReasonCaptureEnded    = "capture_ended"
	stopReasonSendFailed      = "send_failed"
	stopReasonStartFailed     = "start_failed"
	stopReasonOrphaned        = "orphaned"
)
