package whisper_test

import (
	"context"
	"os"
	"testing"

	"github.com/zitemo/livecards/pkg/provider/asr/whisper"
)

// testModelPath returns the path to a whisper model for integration tests.
// It reads from the WHISPER_MODEL_PATH environment variable. If unset the
// test is skipped, since no model binary is vendored alongside the module.
func testModelPath(t *testing.T) string {
	t.Helper()
	p := os.Getenv("WHISPER_MODEL_PATH")
	if p == "" {
		t.Skip("WHISPER_MODEL_PATH not set; skipping whisper recognizer test")
	}
	return p
}

func TestNew_EmptyPath_ReturnsError(t *testing.T) {
	_, err := whisper.New("")
	if err == nil {
		t.Fatal("expected error for empty model path, got nil")
	}
}

func TestNew_InvalidPath_ReturnsError(t *testing.T) {
	_, err := whisper.New("/nonexistent/path/to/model.bin")
	if err == nil {
		t.Fatal("expected error for invalid model path, got nil")
	}
}

func TestNew_WithOptions_DoesNotError(t *testing.T) {
	modelPath := testModelPath(t)
	r, err := whisper.New(modelPath, whisper.WithLanguage("zh"), whisper.WithSampleRate(16000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer r.Close()

	if r.ExpectedSampleRate() != 16000 {
		t.Errorf("ExpectedSampleRate() = %d, want 16000", r.ExpectedSampleRate())
	}
	if r.SupportsWordTimings() {
		t.Error("SupportsWordTimings() should be false: whisper.cpp bindings expose no token timestamps")
	}
}

func TestRecognize_SpeechProducesText(t *testing.T) {
	modelPath := testModelPath(t)
	r, err := whisper.New(modelPath, whisper.WithLanguage("zh"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	pcm := makeSpeechPCM(16000 * 2)
	result, err := r.Recognize(context.Background(), pcm, 16000)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	t.Logf("recognized text: %q", result.Text)

	for i := 1; i < len(result.Words); i++ {
		if result.Words[i].Start < result.Words[i-1].Start {
			t.Errorf("word timings not monotonically non-decreasing at index %d", i)
		}
	}
}

func TestRecognize_CancelledContext_ReturnsError(t *testing.T) {
	modelPath := testModelPath(t)
	r, err := whisper.New(modelPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = r.Recognize(ctx, makeSpeechPCM(1600), 16000)
	if err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
}

// makeSpeechPCM generates n samples of a simple sine-ish tone, used only to
// exercise the inference path; the transcribed text is not asserted.
func makeSpeechPCM(n int) []byte {
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16(10000)
		if i%2 == 0 {
			v = -v
		}
		pcm[i*2] = byte(v)
		pcm[i*2+1] = byte(v >> 8)
	}
	return pcm
}
