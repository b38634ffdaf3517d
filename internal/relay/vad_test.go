package relay

import (
	"encoding/binary"
	"testing"
)

func toneFrame(amplitude int16) []byte {
	frame := make([]byte, FrameBytes)
	for i := 0; i < FrameBytes/2; i++ {
		v := amplitude
		if i%2 == 1 {
			v = -amplitude
		}
		binary.LittleEndian.PutUint16(frame[i*2:], uint16(v))
	}
	return frame
}

// scriptedDetector marks frames voiced by their first byte.
type scriptedDetector struct{}

func (scriptedDetector) IsSpeech(frame []byte) bool { return frame[0] == 1 }

func marked(voiced bool, id byte) []byte {
	f := make([]byte, FrameBytes)
	if voiced {
		f[0] = 1
	}
	f[1] = id
	return f
}

type forwarded struct {
	id   byte
	kind string
}

func collect(out *[]forwarded) func([]byte, string) error {
	return func(frame []byte, kind string) error {
		*out = append(*out, forwarded{id: frame[1], kind: kind})
		return nil
	}
}

func TestFrameBytes(t *testing.T) {
	if FrameBytes != 960 {
		t.Fatalf("FrameBytes = %d, want 960", FrameBytes)
	}
}

func TestEnergyDetector_ThresholdsByAggressiveness(t *testing.T) {
	quiet := toneFrame(400)
	if !NewEnergyDetector(0).IsSpeech(quiet) {
		t.Fatal("aggressiveness 0 should pass a 400 RMS frame")
	}
	if NewEnergyDetector(3).IsSpeech(quiet) {
		t.Fatal("aggressiveness 3 should gate a 400 RMS frame")
	}
	if !NewEnergyDetector(3).IsSpeech(toneFrame(5000)) {
		t.Fatal("loud frame should count as speech")
	}
	if NewEnergyDetector(9).IsSpeech(make([]byte, FrameBytes)) {
		t.Fatal("silence is never speech")
	}
}

func TestGate_DisabledPassesChunksThrough(t *testing.T) {
	g := NewGate(GateConfig{Enabled: false})
	var got []string
	gated, err := g.Push([]byte{1, 2, 3}, func(frame []byte, kind string) error {
		got = append(got, kind)
		if len(frame) != 3 {
			t.Fatalf("unexpected frame length %d", len(frame))
		}
		return nil
	})
	if err != nil || gated != 0 || len(got) != 1 || got[0] != FrameRaw {
		t.Fatalf("gated=%d err=%v kinds=%v", gated, err, got)
	}
}

func TestGate_PrerollFlushedOnSpeechThenHangover(t *testing.T) {
	g := NewGate(GateConfig{Enabled: true, Detector: scriptedDetector{}, PrerollMS: 60, HangoverMS: 60})
	var out []forwarded

	pcm := make([]byte, 0, FrameBytes*8)
	pcm = append(pcm, marked(false, 1)...)
	pcm = append(pcm, marked(false, 2)...)
	pcm = append(pcm, marked(false, 3)...)
	pcm = append(pcm, marked(true, 4)...)
	pcm = append(pcm, marked(false, 5)...)
	pcm = append(pcm, marked(false, 6)...)
	pcm = append(pcm, marked(false, 7)...)

	gated, err := g.Push(pcm, collect(&out))
	if err != nil {
		t.Fatal(err)
	}
	want := []forwarded{
		{3, FramePreroll},
		{4, FrameSpeech},
		{5, FrameSpeech},
		{6, FrameSpeech},
	}
	if len(out) != len(want) {
		t.Fatalf("forwarded %v, want %v", out, want)
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("forwarded[%d] = %v, want %v", i, out[i], want[i])
		}
	}
	if gated != 4 {
		t.Fatalf("gated = %d, want 4", gated)
	}
	if g.Active() {
		t.Fatal("gate should have closed after the hangover")
	}
}

func TestGate_ReframesAcrossPushes(t *testing.T) {
	g := NewGate(GateConfig{Enabled: true, Detector: scriptedDetector{}, PrerollMS: 30, HangoverMS: 300})
	var out []forwarded
	frame := marked(true, 9)

	if _, err := g.Push(frame[:100], collect(&out)); err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Fatalf("partial frame forwarded: %v", out)
	}
	if _, err := g.Push(frame[100:], collect(&out)); err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0] != (forwarded{9, FrameSpeech}) {
		t.Fatalf("unexpected output: %v", out)
	}
}

func TestGate_KeepaliveWhileGated(t *testing.T) {
	g := NewGate(GateConfig{Enabled: true, Detector: scriptedDetector{}, PrerollMS: 30, HangoverMS: 30, KeepaliveMS: 90})
	var kinds []string
	var pcm []byte
	for i := 0; i < 7; i++ {
		pcm = append(pcm, marked(false, byte(i))...)
	}
	gated, err := g.Push(pcm, func(frame []byte, kind string) error {
		kinds = append(kinds, kind)
		for _, b := range frame {
			if b != 0 {
				t.Fatal("keepalive frame must be silent")
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if gated != 7 || len(kinds) != 2 || kinds[0] != FrameKeepalive {
		t.Fatalf("gated=%d kinds=%v", gated, kinds)
	}
}
