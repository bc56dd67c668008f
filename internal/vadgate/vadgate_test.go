package vadgate

import (
	"testing"
	"time"

	"github.com/zitemo/livecards/pkg/types"
)

func frameAt(seq int64, t float64, rms float64, dur time.Duration) types.AudioFrame {
	pcm := make([]byte, 32)
	return types.AudioFrame{Seq: seq, PCM: pcm, SampleRate: 16000, CapturedAt: t, RMS: rms}
}

func baseConfig() Config {
	return Config{
		MinRMS:        0.05,
		MinSpeechSec:  0.2,
		MinSilenceSec: 0.4,
		ForceFlushSec: 2.0,
		FrameDuration: 200 * time.Millisecond,
	}
}

func TestPush_SilenceToSpeechToNaturalFlush(t *testing.T) {
	g := New(baseConfig())

	// The first voiced frame commits SILENCE -> SPEECH (min_speech_sec 0.2s / 0.2s frames); the second extends the segment.
	var seq int64
	var ts float64
	for i := 0; i < 2; i++ {
		if _, ok := g.Push(frameAt(seq, ts, 0.1, 200*time.Millisecond)); ok {
			t.Fatalf("unexpected early flush at frame %d", i)
		}
		seq++
		ts += 0.2
	}
	if g.State() != StateSpeech {
		t.Fatalf("state = %v, want SPEECH", g.State())
	}

	// Two silent frames (0.4s) trigger natural flush.
	var seg types.SpeechSegment
	var ok bool
	for i := 0; i < 2; i++ {
		seg, ok = g.Push(frameAt(seq, ts, 0.0, 200*time.Millisecond))
		seq++
		ts += 0.2
	}
	if !ok {
		t.Fatal("expected natural flush after min_silence_sec elapsed")
	}
	if seg.FlushReason != types.FlushNatural {
		t.Errorf("FlushReason = %v, want natural", seg.FlushReason)
	}
	if g.State() != StateSilence {
		t.Errorf("state after flush = %v, want SILENCE", g.State())
	}
}

func TestPush_ForceFlush_NeverExceedsForceFlushSecPlusOneFrame(t *testing.T) {
	cfg := baseConfig()
	cfg.ForceFlushSec = 1.0
	cfg.ForceFlushOverlapSec = 0
	g := New(cfg)

	var seq int64
	var ts float64
	frameDur := 0.2

	// Commit to SPEECH.
	g.Push(frameAt(seq, ts, 0.1, 200*time.Millisecond))
	seq++
	ts += frameDur
	g.Push(frameAt(seq, ts, 0.1, 200*time.Millisecond))
	seq++
	ts += frameDur

	forceFlushed := false
	for i := 0; i < 50 && !forceFlushed; i++ {
		seg, ok := g.Push(frameAt(seq, ts, 0.1, 200*time.Millisecond)) // continuous speech
		seq++
		ts += frameDur
		if ok {
			if seg.FlushReason != types.FlushForce {
				t.Fatalf("FlushReason = %v, want force_flush", seg.FlushReason)
			}
			if d := seg.Duration(); d > cfg.ForceFlushSec+frameDur {
				t.Errorf("segment duration %v exceeds force_flush_sec(%v) + one frame(%v)", d, cfg.ForceFlushSec, frameDur)
			}
			forceFlushed = true
		}
	}
	if !forceFlushed {
		t.Fatal("expected a forced flush within the test window")
	}
}

func TestFlush_SessionEnd_EmitsInProgressSegment(t *testing.T) {
	g := New(baseConfig())
	g.Push(frameAt(0, 0, 0.1, 200*time.Millisecond))
	g.Push(frameAt(1, 0.2, 0.1, 200*time.Millisecond))

	seg, ok := g.Flush(frameAt(2, 0.4, 0.1, 200*time.Millisecond))
	if !ok {
		t.Fatal("expected Flush to emit the in-progress segment")
	}
	if seg.FlushReason != types.FlushSessionEnd {
		t.Errorf("FlushReason = %v, want session_end", seg.FlushReason)
	}
}

func TestFlush_NoInProgressSegment_ReturnsFalse(t *testing.T) {
	g := New(baseConfig())
	if _, ok := g.Flush(frameAt(0, 0, 0.0, 200*time.Millisecond)); ok {
		t.Error("expected no segment when gate never left SILENCE")
	}
}

func TestPush_MultiFrameThresholdCrossing_KeepsAllVoicedAudio(t *testing.T) {
	cfg := baseConfig()
	cfg.MinSpeechSec = 0.3
	cfg.FrameDuration = 100 * time.Millisecond
	g := New(cfg)

	var seq int64
	var ts float64
	for i := 0; i < 3; i++ {
		if _, ok := g.Push(frameAt(seq, ts, 0.1, 100*time.Millisecond)); ok {
			t.Fatalf("unexpected early flush at frame %d", i)
		}
		seq++
		ts += 0.1
	}
	if g.State() != StateSpeech {
		t.Fatalf("state = %v, want SPEECH", g.State())
	}
	if g.segStart != 0 {
		t.Errorf("segStart = %v, want 0 (the first voiced frame), not the last pre-threshold frame", g.segStart)
	}
	if len(g.frames) != 3 {
		t.Fatalf("len(frames) = %d, want 3 — earlier voiced frames must not be discarded", len(g.frames))
	}
}

func TestPush_HangoverResumesSpeechOnVoicedFrame(t *testing.T) {
	g := New(baseConfig())
	g.Push(frameAt(0, 0, 0.1, 200*time.Millisecond))
	g.Push(frameAt(1, 0.2, 0.1, 200*time.Millisecond))
	if g.State() != StateSpeech {
		t.Fatalf("state = %v, want SPEECH", g.State())
	}

	g.Push(frameAt(2, 0.4, 0.0, 200*time.Millisecond))
	if g.State() != StateHangover {
		t.Fatalf("state = %v, want HANGOVER", g.State())
	}

	g.Push(frameAt(3, 0.6, 0.1, 200*time.Millisecond))
	if g.State() != StateSpeech {
		t.Errorf("state = %v, want SPEECH after resumed voice in hangover", g.State())
	}
}
