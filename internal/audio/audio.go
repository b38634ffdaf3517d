package audio

import (
	"context"
	"encoding/binary"
)

const (
	SampleRate       = 16000
	DefaultBlockSize = 4096
	AmplitudeCeiling = 32767
)

// Frame is one encoded block of mono 16 kHz signed 16-bit samples.
type Frame []int16

// Bytes returns the frame as little-endian PCM for the wire.
func (f Frame) Bytes() []byte {
	buf := make([]byte, len(f)*2)
	for i, s := range f {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// BlockSink receives captured samples. Calls come from the capture goroutine.
type BlockSink interface {
	OnSamples(samples []float32)
	OnCaptureEnd(err error)
}

// Source is a capture device. Start returns once the device is delivering
// audio or has failed to open; Close releases the device and may be called
// at any time, including before Start.
type Source interface {
	Start(ctx context.Context, sink BlockSink) error
	Close() error
}

type SourceFactory func() Source
