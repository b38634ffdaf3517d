package audio

import "sync"

// EncodeSamples writes the int16 form of src into dst and returns the number
// of samples written. Samples are clipped to [-1, 1], scaled by
// AmplitudeCeiling and truncated toward zero.
func EncodeSamples(dst []int16, src []float32) int {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] = encodeSample(src[i])
	}
	return n
}

func encodeSample(v float32) int16 {
	if v != v { // NaN
		return 0
	}
	if v > 1 {
		v = 1
	}
	if v < -1 {
		v = -1
	}
	return int16(v * AmplitudeCeiling)
}

// Encoder re-blocks arbitrarily sized capture callbacks into fixed-size
// frames. Every input sample lands in exactly one frame, in order.
type Encoder struct {
	mu        sync.Mutex
	blockSize int
	pending   []float32
	closed    bool
}

func NewEncoder(blockSize int) *Encoder {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Encoder{
		blockSize: blockSize,
		pending:   make([]float32, 0, blockSize),
	}
}

func (e *Encoder) BlockSize() int {
	return e.blockSize
}

// Push appends samples and calls emit once per completed frame. emit runs
// with the encoder lock held and must not call back into the encoder.
func (e *Encoder) Push(samples []float32, emit func(Frame)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	for len(samples) > 0 {
		take := min(e.blockSize-len(e.pending), len(samples))
		e.pending = append(e.pending, samples[:take]...)
		samples = samples[take:]
		if len(e.pending) < e.blockSize {
			return
		}
		frame := make(Frame, e.blockSize)
		EncodeSamples(frame, e.pending)
		e.pending = e.pending[:0]
		emit(frame)
	}
}

// Pending reports how many samples are waiting for the next frame.
func (e *Encoder) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Close discards the partial block. Later pushes are ignored.
func (e *Encoder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.pending = nil
}
