// Package recognizer defines the streaming speech recognizer the relay feeds.
package recognizer

import "context"

// Word is one recognized word. SpeakerTag is 0 when diarization gave none.
type Word struct {
	Text       string
	SpeakerTag int
}

// Result is the top alternative of one recognition result.
type Result struct {
	Transcript string
	Words      []Word
	IsFinal    bool
}

type StreamWriter interface {
	Write(pcm []byte) error
	Close() error
}

type ResultReceiver interface {
	OnResult(result Result)
	OnError(err error)
}

type Recognizer interface {
	StartStreaming(ctx context.Context, streamID string, receiver ResultReceiver) (StreamWriter, error)
}
