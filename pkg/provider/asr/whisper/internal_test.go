package whisper

import "testing"

func TestSynthesizeWordTimings_MonotonicAndSpansDuration(t *testing.T) {
	words := synthesizeWordTimings("今天天气真好", 3.0)
	if len(words) != 6 {
		t.Fatalf("got %d words, want 6", len(words))
	}
	for i, w := range words {
		if w.Start < 0 || w.End > 3.0 {
			t.Errorf("word %d out of bounds: %+v", i, w)
		}
		if w.End < w.Start {
			t.Errorf("word %d has End < Start: %+v", i, w)
		}
		if i > 0 && w.Start < words[i-1].Start {
			t.Errorf("word %d not monotonically non-decreasing", i)
		}
	}
	if words[0].Start != 0 {
		t.Errorf("first word Start = %v, want 0", words[0].Start)
	}
	if words[len(words)-1].End != 3.0 {
		t.Errorf("last word End = %v, want 3.0", words[len(words)-1].End)
	}
}

func TestSynthesizeWordTimings_EmptyText(t *testing.T) {
	if words := synthesizeWordTimings("", 1.0); words != nil {
		t.Errorf("expected nil for empty text, got %+v", words)
	}
}

func TestPcmToFloat32Mono_NormalizesRange(t *testing.T) {
	pcm := []byte{0xFF, 0x7F, 0x00, 0x80}
	samples := pcmToFloat32Mono(pcm)
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}
	if samples[0] < 0.99 || samples[0] > 1.0 {
		t.Errorf("samples[0] = %v, want ~1.0", samples[0])
	}
	if samples[1] > -0.99 || samples[1] < -1.0 {
		t.Errorf("samples[1] = %v, want ~-1.0", samples[1])
	}
}
