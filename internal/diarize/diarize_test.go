package diarize

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/zitemo/livecards/pkg/types"
)

func toneSegment(freq float64, durationSec float64, sampleRate int) types.SpeechSegment {
	n := int(float64(sampleRate) * durationSec)
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
		sample := int16(v * 20000)
		binary.LittleEndian.PutUint16(pcm[i*2:i*2+2], uint16(sample))
	}
	return types.SpeechSegment{PCM: pcm, StartTS: 0, EndTS: durationSec, VoicedRatio: 1.0}
}

func TestAssign_BeforeWarmup_EmitsUnknown(t *testing.T) {
	d := New(Config{EnrollSec: 4, WarmupSec: 3})
	seg := toneSegment(150, 1.0, 16000)
	speaker, _ := d.Assign(seg, 16000)
	if speaker != types.SpeakerUnknown {
		t.Errorf("Assign() = %v, want unknown before warmup", speaker)
	}
}

func TestAssign_AfterEnrollSec_SingleSpeakerBecomesHost(t *testing.T) {
	d := New(Config{EnrollSec: 4, WarmupSec: 3, MaxSpeakers: 2})

	var speaker types.Speaker
	for i := 0; i < 5; i++ {
		speaker, _ = d.Assign(toneSegment(150, 1.0, 16000), 16000)
	}
	if speaker != types.SpeakerHost {
		t.Errorf("Assign() after enroll_sec = %v, want host", speaker)
	}
}

func TestAssign_TwoDistinctSpeakers_SecondBecomesGuest2(t *testing.T) {
	d := New(Config{EnrollSec: 4, WarmupSec: 3, MaxSpeakers: 2, Threshold: 0.2})

	// Host speaks for 5s (tone A) to pass enrollment.
	var speaker types.Speaker
	for i := 0; i < 5; i++ {
		speaker, _ = d.Assign(toneSegment(150, 1.0, 16000), 16000)
	}
	if speaker != types.SpeakerHost {
		t.Fatalf("expected host after enrollment, got %v", speaker)
	}

	// A clearly distinct tone (guest) should not match the host centroid.
	speaker, debug := d.Assign(toneSegment(2000, 1.0, 16000), 16000)
	if speaker != types.GuestSpeaker(2) {
		t.Errorf("Assign() for distinct speaker = %v, want guest_2", speaker)
	}
	if len(debug) == 0 {
		t.Error("expected non-empty speaker_debug map")
	}

	// Subsequent segments of the same guest tone should keep the guest_2 label.
	speaker, _ = d.Assign(toneSegment(2000, 1.0, 16000), 16000)
	if speaker != types.GuestSpeaker(2) {
		t.Errorf("Assign() for repeated guest tone = %v, want guest_2 (stable label)", speaker)
	}
}
