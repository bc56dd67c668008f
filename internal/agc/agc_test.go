package agc

import (
	"encoding/binary"
	"testing"

	"github.com/zitemo/livecards/pkg/types"
)

func makeFrame(seq int64, amplitude int16) types.AudioFrame {
	pcm := make([]byte, 32)
	for i := 0; i < len(pcm)/2; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:i*2+2], uint16(amplitude))
	}
	return types.AudioFrame{Seq: seq, PCM: pcm, SampleRate: 16000, RMS: float64(amplitude) / 32768.0}
}

func TestProcess_DisabledBypassesGain(t *testing.T) {
	p := New(Config{Enabled: false}, 0.6)
	in := makeFrame(0, 1000)
	out := p.Process(in)
	if p.Gain() != 1.0 {
		t.Errorf("Gain() = %v, want 1.0 when disabled", p.Gain())
	}
	if string(out.PCM) != string(in.PCM) {
		t.Error("expected PCM unchanged when disabled")
	}
}

func TestProcess_QuietAudioIncreasesGain(t *testing.T) {
	p := New(Config{Enabled: true}, 0.6)
	var gain float64
	for i := 0; i < 10; i++ {
		p.Process(makeFrame(int64(i), 100)) // very quiet
		gain = p.Gain()
	}
	if gain <= 1.0 {
		t.Errorf("Gain() = %v, want > 1.0 for quiet input approaching target_rms", gain)
	}
	if gain > 4.0 {
		t.Errorf("Gain() = %v exceeds max_gain 4.0", gain)
	}
}

func TestApplyGain_SaturatesRatherThanWraps(t *testing.T) {
	pcm := make([]byte, 2)
	binary.LittleEndian.PutUint16(pcm, uint16(int16(30000)))
	out := applyGain(pcm, 4.0)
	sample := int16(binary.LittleEndian.Uint16(out))
	if sample != 32767 {
		t.Errorf("applyGain saturated sample = %d, want 32767", sample)
	}
}
