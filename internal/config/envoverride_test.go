package config

import (
	"strings"
	"testing"
)

const minimalYAML = `
room:
  room_id: "123456"
providers:
  asr:
    name: mock
  analysis_llm:
    name: mock
  answer_llm:
    name: mock
`

func TestLoadFromReader_EnvOverrides(t *testing.T) {
	t.Setenv("LIVE_VAD_CHUNK_SEC", "0.4")
	t.Setenv("LIVE_VAD_MIN_RMS", "0.03")
	t.Setenv("LIVE_VAD_MIN_SPEECH_SEC", "0.6")
	t.Setenv("LIVE_VAD_MIN_SILENCE_SEC", "0.8")
	t.Setenv("LIVE_VAD_HANGOVER_SEC", "0.25")
	t.Setenv("LIVE_VAD_FORCE_FLUSH_SEC", "5")
	t.Setenv("LIVE_VAD_FORCE_FLUSH_OVERLAP", "0.5")
	t.Setenv("LIVE_VAD_MIN_SENTENCE_CHARS", "7")
	t.Setenv("LIVE_DIARIZER_MAX_SPEAKERS", "3")
	t.Setenv("LIVE_DIARIZER_ENROLL_SEC", "6")
	t.Setenv("LIVE_DIARIZER_WARMUP_SEC", "2")
	t.Setenv("LIVE_DIARIZER_SMOOTH", "0.3")
	t.Setenv("LIVE_TEXT_NOISE_FILTER", "0")
	t.Setenv("LIVE_TEXT_NOISE_MIN_CHARS", "5")
	t.Setenv("LIVE_TEXT_NOISE_REPEAT", "4")
	t.Setenv("LIVE_FORCE_DEVICE", "cuda:0")
	t.Setenv("MODEL_CACHE_DIR", "/tmp/model-cache")
	t.Setenv("HF_HOME", "/tmp/hf-home")

	cfg, err := LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Audio.FrameDurationMs != 400 {
		t.Errorf("Audio.FrameDurationMs = %d, want 400", cfg.Audio.FrameDurationMs)
	}
	if cfg.VAD.RMSThreshold != 0.03 {
		t.Errorf("VAD.RMSThreshold = %v, want 0.03", cfg.VAD.RMSThreshold)
	}
	if cfg.VAD.MinSpeechSec != 0.6 {
		t.Errorf("VAD.MinSpeechSec = %v, want 0.6", cfg.VAD.MinSpeechSec)
	}
	if cfg.VAD.MinSilenceSec != 0.8 {
		t.Errorf("VAD.MinSilenceSec = %v, want 0.8", cfg.VAD.MinSilenceSec)
	}
	if cfg.VAD.HangoverMs != 250 {
		t.Errorf("VAD.HangoverMs = %d, want 250", cfg.VAD.HangoverMs)
	}
	if cfg.VAD.MaxSegmentMs != 5000 {
		t.Errorf("VAD.MaxSegmentMs = %d, want 5000", cfg.VAD.MaxSegmentMs)
	}
	if cfg.VAD.ForceFlushOverlapSec != 0.5 {
		t.Errorf("VAD.ForceFlushOverlapSec = %v, want 0.5", cfg.VAD.ForceFlushOverlapSec)
	}
	if cfg.Diarize.MaxGuestSpeakers != 2 {
		t.Errorf("Diarize.MaxGuestSpeakers = %d, want 2 (3 total - host)", cfg.Diarize.MaxGuestSpeakers)
	}
	if cfg.Diarize.EnrollSec != 6 {
		t.Errorf("Diarize.EnrollSec = %v, want 6", cfg.Diarize.EnrollSec)
	}
	if cfg.Diarize.WarmupSec != 2 {
		t.Errorf("Diarize.WarmupSec = %v, want 2", cfg.Diarize.WarmupSec)
	}
	if cfg.Diarize.CentroidEMAAlpha != 0.3 {
		t.Errorf("Diarize.CentroidEMAAlpha = %v, want 0.3", cfg.Diarize.CentroidEMAAlpha)
	}
	if !cfg.Text.NoiseFilterDisabled {
		t.Error("Text.NoiseFilterDisabled = false, want true (LIVE_TEXT_NOISE_FILTER=0)")
	}
	if cfg.Text.MinChars != 5 {
		t.Errorf("Text.MinChars = %d, want 5 (LIVE_TEXT_NOISE_MIN_CHARS wins over LIVE_VAD_MIN_SENTENCE_CHARS)", cfg.Text.MinChars)
	}
	if cfg.Text.RepeatLimit != 4 {
		t.Errorf("Text.RepeatLimit = %d, want 4", cfg.Text.RepeatLimit)
	}
	if got := cfg.Providers.ASR.Options["device"]; got != "cuda:0" {
		t.Errorf("Providers.ASR.Options[device] = %v, want cuda:0", got)
	}
	if got := cfg.Providers.ASR.Options["model_cache_dir"]; got != "/tmp/model-cache" {
		t.Errorf("Providers.ASR.Options[model_cache_dir] = %v, want /tmp/model-cache", got)
	}
	if got := cfg.Providers.ASR.Options["hf_home"]; got != "/tmp/hf-home" {
		t.Errorf("Providers.ASR.Options[hf_home] = %v, want /tmp/hf-home", got)
	}
}

func TestLoadFromReader_MalformedEnvOverrideIgnored(t *testing.T) {
	t.Setenv("LIVE_VAD_MIN_RMS", "not-a-number")

	cfg, err := LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.VAD.RMSThreshold != 0.02 {
		t.Errorf("VAD.RMSThreshold = %v, want default 0.02 when env override is malformed", cfg.VAD.RMSThreshold)
	}
}

func TestLoadFromReader_NoEnvOverridesKeepsDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.VAD.MinSpeechSec != 0.3 {
		t.Errorf("VAD.MinSpeechSec = %v, want default 0.3", cfg.VAD.MinSpeechSec)
	}
	if cfg.Diarize.EnrollSec != 4 {
		t.Errorf("Diarize.EnrollSec = %v, want default 4", cfg.Diarize.EnrollSec)
	}
	if cfg.Text.NoiseFilterDisabled {
		t.Error("Text.NoiseFilterDisabled = true, want false (noise filter enabled by default)")
	}
}
