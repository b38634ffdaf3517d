package audio

// decimator downsamples by an integer factor, averaging each group of input
// samples. Its phase carries over between calls.
type decimator struct {
	factor int
	acc    float32
	n      int
}

func newDecimator(factor int) *decimator {
	if factor < 1 {
		factor = 1
	}
	return &decimator{factor: factor}
}

func (d *decimator) process(in []float32) []float32 {
	out := make([]float32, 0, (len(in)+d.n)/d.factor)
	for _, v := range in {
		d.acc += v
		d.n++
		if d.n == d.factor {
			out = append(out, d.acc/float32(d.factor))
			d.acc = 0
			d.n = 0
		}
	}
	return out
}
