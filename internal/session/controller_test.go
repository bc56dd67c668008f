package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zitemo/livecards/internal/config"
	relaymock "github.com/zitemo/livecards/internal/relay/mock"
	asrmock "github.com/zitemo/livecards/pkg/provider/asr/mock"
	llmmock "github.com/zitemo/livecards/pkg/provider/llm/mock"
	"github.com/zitemo/livecards/pkg/types"
)

// fakeFFmpeg writes a tiny shell script that blocks until killed, standing
// in for the real ffmpeg binary so ingest.Chunker.Start's exec.LookPath
// check succeeds without depending on ffmpeg being installed.
func fakeFFmpeg(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-ffmpeg.sh")
	script := "#!/bin/sh\nsleep 300\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake ffmpeg: %v", err)
	}
	return path
}

func testConfig(t *testing.T, ffmpegPath string) config.Config {
	t.Helper()
	return config.Config{
		Room: config.RoomConfig{RoomID: "123456789"},
		Audio: config.AudioConfig{
			FFmpegPath:      ffmpegPath,
			StreamURL:       "http://example.invalid/stream.flv",
			SampleRate:      16000,
			FrameDurationMs: 600,
			AGCTargetRMS:    0.08,
			AGCMaxGain:      4.0,
		},
		VAD: config.VADConfig{
			RMSThreshold: 0.02,
			HangoverMs:   500,
			MaxSegmentMs: 8000,
			MinSegmentMs: 200,
		},
		Diarize: config.DiarizeConfig{
			SimilarityThreshold: 0.7,
			MaxGuestSpeakers:    3,
			CentroidEMAAlpha:    0.2,
		},
		Window: config.WindowConfig{
			Duration:     30 * time.Second,
			TickInterval: time.Hour, // kept well outside the test's lifetime
		},
		Analysis: config.AnalysisConfig{
			Timeout: 5 * time.Second,
		},
		Persist: config.PersistConfig{
			OutputDir:     t.TempDir(),
			FsyncInterval: time.Second,
		},
		Session: config.SessionConfig{
			StopDrainSec: 1,
		},
		Text: config.TextConfig{MinChars: 3, RepeatLimit: 3},
	}
}

func TestControllerStartStop(t *testing.T) {
	deps := Deps{
		Recognizer:  &asrmock.Recognizer{},
		AnalysisLLM: &llmmock.Provider{},
		AnswerLLM:   &llmmock.Provider{},
		Credential:  &relaymock.CredentialProvider{},
		Decoder:     relaymock.NewFrameDecoder(),
	}
	c := New(deps)
	cfg := testConfig(t, fakeFFmpeg(t))

	ctx := context.Background()
	if err := c.Start(ctx, "https://live.douyin.com/123456789", cfg); err != nil {
		t.Fatalf("Start: %v", err)
	}

	st := c.Status()
	if st.State != types.StateRunning {
		t.Fatalf("State = %v, want StateRunning", st.State)
	}
	if st.RoomID != "123456789" {
		t.Fatalf("RoomID = %q, want 123456789", st.RoomID)
	}
	if st.SessionID == "" {
		t.Fatal("SessionID is empty")
	}

	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := c.Status().State; got != types.StateIdle {
		t.Fatalf("State after Stop = %v, want StateIdle", got)
	}

	// A second Start after Stop must succeed again from idle.
	cfg2 := testConfig(t, cfg.Audio.FFmpegPath)
	if err := c.Start(ctx, "https://live.douyin.com/123456789", cfg2); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if err := c.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestControllerStartMuxerUnavailable(t *testing.T) {
	deps := Deps{
		Recognizer:  &asrmock.Recognizer{},
		AnalysisLLM: &llmmock.Provider{},
		AnswerLLM:   &llmmock.Provider{},
		Credential:  &relaymock.CredentialProvider{},
		Decoder:     relaymock.NewFrameDecoder(),
	}
	c := New(deps)
	cfg := testConfig(t, "this-binary-does-not-exist-anywhere")

	err := c.Start(context.Background(), "https://live.douyin.com/123456789", cfg)
	if err == nil {
		t.Fatal("Start: want error for missing ffmpeg binary, got nil")
	}
	if got := c.Status().State; got != types.StateFailed {
		t.Fatalf("State = %v, want StateFailed", got)
	}
}

func TestControllerStartCredentialFailure(t *testing.T) {
	deps := Deps{
		Recognizer:  &asrmock.Recognizer{},
		AnalysisLLM: &llmmock.Provider{},
		AnswerLLM:   &llmmock.Provider{},
		Credential:  &relaymock.CredentialProvider{Err: context.DeadlineExceeded},
		Decoder:     relaymock.NewFrameDecoder(),
	}
	c := New(deps)
	cfg := testConfig(t, fakeFFmpeg(t))

	err := c.Start(context.Background(), "https://live.douyin.com/123456789", cfg)
	if err == nil {
		t.Fatal("Start: want error when credential signing fails, got nil")
	}
	if got := c.Status().State; got != types.StateFailed {
		t.Fatalf("State = %v, want StateFailed", got)
	}

	// The session must be fully idle-able: a later Start call is not stuck
	// behind a leaked persister or goroutine.
	c.mu.Lock()
	c.state = types.StateIdle
	c.mu.Unlock()
	if err := c.Start(context.Background(), "https://live.douyin.com/123456789", testConfig(t, cfg.Audio.FFmpegPath)); err != nil {
		t.Fatalf("retry Start: %v", err)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestControllerStopWhenIdle(t *testing.T) {
	c := New(Deps{})
	if err := c.Stop(context.Background()); err == nil {
		t.Fatal("Stop: want error when no session is running, got nil")
	}
}

func TestControllerUpdateAdvancedValidation(t *testing.T) {
	c := New(Deps{})

	badRMS := 5.0
	err := c.UpdateAdvanced(AdvancedParams{VADMinRMS: &badRMS})
	if err == nil {
		t.Fatal("UpdateAdvanced: want ErrInvalidConfig for out-of-range vad_min_rms, got nil")
	}

	goodRMS := 0.05
	if err := c.UpdateAdvanced(AdvancedParams{VADMinRMS: &goodRMS}); err != nil {
		t.Fatalf("UpdateAdvanced with in-range value: %v", err)
	}
	if got := c.Status().Advanced.VADMinRMS; got == nil || *got != goodRMS {
		t.Fatalf("Advanced.VADMinRMS = %v, want %v", got, goodRMS)
	}

	badMinSpeech := 10.0
	if err := c.UpdateAdvanced(AdvancedParams{VADMinSpeechSec: &badMinSpeech}); err == nil {
		t.Fatal("UpdateAdvanced: want ErrInvalidConfig for out-of-range vad_min_speech_sec, got nil")
	}

	goodMinSpeech, goodMinSilence := 0.4, 0.6
	if err := c.UpdateAdvanced(AdvancedParams{VADMinSpeechSec: &goodMinSpeech, VADMinSilenceSec: &goodMinSilence}); err != nil {
		t.Fatalf("UpdateAdvanced with in-range vad_min_speech_sec/vad_min_silence_sec: %v", err)
	}
	if got := c.Status().Advanced.VADMinSilenceSec; got == nil || *got != goodMinSilence {
		t.Fatalf("Advanced.VADMinSilenceSec = %v, want %v", got, goodMinSilence)
	}
}

func TestControllerGenerateAnswersNoSession(t *testing.T) {
	c := New(Deps{})
	res := c.GenerateAnswers(context.Background(), []string{"what's for dinner?"}, "", "", types.Vibe{})
	if res.Error == "" {
		t.Fatal("GenerateAnswers: want non-fatal error message when no session is active")
	}
	if len(res.Scripts) != 0 {
		t.Fatalf("Scripts = %v, want empty", res.Scripts)
	}
}
