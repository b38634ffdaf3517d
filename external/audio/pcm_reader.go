package audio

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"time"

	"github.com/foxseedlab/koewake/internal/audio"
)

const (
	bytesPerSample    = 4
	readChunkSamples  = 1024
	firstAudioTimeout = 5 * time.Second
)

// f32Reader turns a raw little-endian float32 stream into sample chunks.
// Bytes of an incomplete sample are held until the rest arrives.
type f32Reader struct {
	r       io.Reader
	buf     []byte
	pending int
}

func newF32Reader(r io.Reader) *f32Reader {
	return &f32Reader{r: r, buf: make([]byte, readChunkSamples*bytesPerSample)}
}

// next returns whatever whole samples the next read yields. A trailing
// partial sample is dropped at the end of the stream.
func (f *f32Reader) next() ([]float32, error) {
	for {
		n, err := f.r.Read(f.buf[f.pending:])
		f.pending += n
		if whole := f.pending - f.pending%bytesPerSample; whole > 0 {
			samples := make([]float32, whole/bytesPerSample)
			for i := range samples {
				samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(f.buf[i*bytesPerSample:]))
			}
			f.pending = copy(f.buf, f.buf[whole:f.pending])
			return samples, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// pacer sleeps so that delivered audio never runs ahead of the wall clock.
type pacer struct {
	start time.Time
	sent  int64
	rate  int64
}

func newPacer(rate int) *pacer {
	return &pacer{start: time.Now(), rate: int64(rate)}
}

// wait blocks until n more samples are due, returning false if stop closes first.
func (p *pacer) wait(n int, stop <-chan struct{}) bool {
	p.sent += int64(n)
	due := p.start.Add(time.Duration(p.sent) * time.Second / time.Duration(p.rate))
	d := time.Until(due)
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-stop:
		return false
	}
}

// deliverLoop feeds chunks from next to sink until the stream ends or stop
// closes. The capture end is reported only when stop has not closed.
func deliverLoop(first []float32, next func() ([]float32, error), sink audio.BlockSink, rate int, realtime bool, stop <-chan struct{}) {
	var p *pacer
	if realtime {
		p = newPacer(rate)
	}
	chunk := first
	for {
		if p != nil && !p.wait(len(chunk), stop) {
			return
		}
		select {
		case <-stop:
			return
		default:
		}
		sink.OnSamples(chunk)

		var err error
		chunk, err = next()
		if err != nil {
			select {
			case <-stop:
				return
			default:
			}
			if errors.Is(err, io.EOF) {
				sink.OnCaptureEnd(nil)
			} else {
				sink.OnCaptureEnd(err)
			}
			return
		}
	}
}
