package session

import (
	"errors"
	"fmt"
)

const (
	messageTranscriptAttachment = ":page_facing_up: **Transcript of recording %s**"

	messageAcquisitionFailed = "Microphone unavailable: check the input device and its permissions."
	messageTransportFailed   = "Lost the connection to the transcription backend."
	messageUnknownFailure    = "Recording failed unexpectedly."
)

func transcriptAttachmentTitle(recordingID string) string {
	return fmt.Sprintf(messageTranscriptAttachment, recordingID)
}

// failureMessage is the one line shown to the user for a session failure.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, ErrAcquisitionFailure):
		return messageAcquisitionFailed
	case errors.Is(err, ErrTransportFailure):
		return messageTransportFailed
	default:
		return messageUnknownFailure
	}
}

func stopReasonDetail(reason string) string {
	switch reason {
	case stopReasonManual:
		return "stopped by the user."
	case stopReasonTransportError:
		return "the backend connection failed."
	case stopReasonTransportClosed:
		return "the backend closed the connection."
	case stopReasonCaptureEnded:
		return "the audio input ended."
	case stopReasonSendFailed:
		return "audio could not be sent to the backend."
	case stopReasonStartFailed:
		return "the recording could not start."
	case stopReasonOrphaned:
		return "the previous process exited without closing the recording."
	default:
		return "unknown reason."
	}
}
