package relay

import (
	"encoding/binary"
	"math"
)

const (
	sampleRate     = 16000
	bytesPerSample = 2
	FrameMS        = 30
	FrameBytes     = sampleRate * FrameMS / 1000 * bytesPerSample
)

// Frame kinds reported to the forward callback.
const (
	FrameRaw       = "raw"
	FramePreroll   = "preroll"
	FrameSpeech    = "speech"
	FrameKeepalive = "keepalive"
)

// VoiceDetector decides whether one 30ms frame holds speech.
type VoiceDetector interface {
	IsSpeech(frame []byte) bool
}

// energyThresholds are RMS levels in int16 units, indexed by aggressiveness.
// Higher aggressiveness needs louder audio before a frame counts as speech.
var energyThresholds = [4]float64{150, 300, 600, 1000}

type energyDetector struct {
	threshold float64
}

func NewEnergyDetector(aggressiveness int) VoiceDetector {
	aggressiveness = min(max(aggressiveness, 0), len(energyThresholds)-1)
	return energyDetector{threshold: energyThresholds[aggressiveness]}
}

func (d energyDetector) IsSpeech(frame []byte) bool {
	return frameRMS(frame) >= d.threshold
}

func frameRMS(frame []byte) float64 {
	n := len(frame) / bytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(frame[i*bytesPerSample:])))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

type GateConfig struct {
	Enabled     bool
	Detector    VoiceDetector
	PrerollMS   int
	HangoverMS  int
	KeepaliveMS int
}

// Gate withholds audio outside speech. It buffers incoming PCM into 30ms
// frames, keeps a short preroll of unvoiced frames, opens on the first voiced
// frame and closes after a hangover of unvoiced frames.
type Gate struct {
	enabled         bool
	detector        VoiceDetector
	prerollFrames   int
	hangoverFrames  int
	keepaliveFrames int

	buf       []byte
	preroll   [][]byte
	active    bool
	unvoiced  int
	sinceSent int
	silence   []byte
}

func NewGate(cfg GateConfig) *Gate {
	g := &Gate{
		enabled:        cfg.Enabled,
		detector:       cfg.Detector,
		prerollFrames:  max(1, cfg.PrerollMS/FrameMS),
		hangoverFrames: max(1, cfg.HangoverMS/FrameMS),
		silence:        make([]byte, FrameBytes),
	}
	if cfg.KeepaliveMS > 0 {
		g.keepaliveFrames = max(1, cfg.KeepaliveMS/FrameMS)
	}
	if g.detector == nil {
		g.detector = NewEnergyDetector(3)
	}
	return g
}

// Push consumes pcm and calls forward for every frame that should reach the
// recognizer. It returns how many frames were withheld.
func (g *Gate) Push(pcm []byte, forward func(frame []byte, kind string) error) (gated int, err error) {
	if !g.enabled {
		return 0, forward(pcm, FrameRaw)
	}
	g.buf = append(g.buf, pcm...)
	for len(g.buf) >= FrameBytes {
		frame := make([]byte, FrameBytes)
		copy(frame, g.buf[:FrameBytes])
		g.buf = g.buf[FrameBytes:]

		withheld, err := g.step(frame, forward)
		gated += withheld
		if err != nil {
			return gated, err
		}
	}
	if len(g.buf) == 0 {
		g.buf = nil
	}
	return gated, nil
}

func (g *Gate) step(frame []byte, forward func([]byte, string) error) (int, error) {
	voiced := g.detector.IsSpeech(frame)

	if g.active {
		if voiced {
			g.unvoiced = 0
		} else {
			g.unvoiced++
			if g.unvoiced >= g.hangoverFrames {
				g.active = false
				g.unvoiced = 0
				g.preroll = g.preroll[:0]
			}
		}
		return 0, forward(frame, FrameSpeech)
	}

	g.preroll = append(g.preroll, frame)
	if len(g.preroll) > g.prerollFrames {
		g.preroll = g.preroll[1:]
	}
	if !voiced {
		return 1, g.keepalive(forward)
	}

	g.active = true
	g.unvoiced = 0
	g.sinceSent = 0
	// The voiced frame is the last preroll entry.
	for i, f := range g.preroll {
		kind := FramePreroll
		if i == len(g.preroll)-1 {
			kind = FrameSpeech
		}
		if err := forward(f, kind); err != nil {
			g.preroll = g.preroll[:0]
			return 0, err
		}
	}
	g.preroll = g.preroll[:0]
	return 0, nil
}

func (g *Gate) keepalive(forward func([]byte, string) error) error {
	if g.keepaliveFrames == 0 {
		return nil
	}
	g.sinceSent++
	if g.sinceSent < g.keepaliveFrames {
		return nil
	}
	g.sinceSent = 0
	return forward(g.silence, FrameKeepalive)
}

// Active reports whether the gate is currently passing audio.
func (g *Gate) Active() bool {
	return g.active
}
