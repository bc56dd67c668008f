package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"asr":          {"whisper-native", "mock"},
	"analysis_llm": {"openai", "anthropic", "mock"},
	"answer_llm":   {"openai", "anthropic", "mock"},
	"credential":   {"mock"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields with the spec's documented defaults.
func applyDefaults(cfg *Config) {
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.FrameDurationMs == 0 {
		cfg.Audio.FrameDurationMs = 600
	}
	if cfg.Audio.AGCTargetRMS == 0 {
		cfg.Audio.AGCTargetRMS = 0.08
	}
	if cfg.Audio.AGCMaxGain == 0 {
		cfg.Audio.AGCMaxGain = 4.0
	}
	if cfg.VAD.RMSThreshold == 0 {
		cfg.VAD.RMSThreshold = 0.02
	}
	if cfg.VAD.HangoverMs == 0 {
		cfg.VAD.HangoverMs = 500
	}
	if cfg.VAD.MaxSegmentMs == 0 {
		cfg.VAD.MaxSegmentMs = 8000
	}
	if cfg.VAD.MinSegmentMs == 0 {
		cfg.VAD.MinSegmentMs = 200
	}
	if cfg.VAD.MinSpeechSec == 0 {
		cfg.VAD.MinSpeechSec = 0.3
	}
	if cfg.VAD.MinSilenceSec == 0 {
		cfg.VAD.MinSilenceSec = 0.5
	}
	if cfg.Diarize.SimilarityThreshold == 0 {
		cfg.Diarize.SimilarityThreshold = 0.7
	}
	if cfg.Diarize.MaxGuestSpeakers == 0 {
		cfg.Diarize.MaxGuestSpeakers = 3
	}
	if cfg.Diarize.CentroidEMAAlpha == 0 {
		cfg.Diarize.CentroidEMAAlpha = 0.2
	}
	if cfg.Diarize.EnrollSec == 0 {
		cfg.Diarize.EnrollSec = 4
	}
	if cfg.Diarize.WarmupSec == 0 {
		cfg.Diarize.WarmupSec = 0.75 * cfg.Diarize.EnrollSec
	}
	if cfg.Window.Duration == 0 {
		cfg.Window.Duration = 30 * time.Second
	}
	if cfg.Window.TickInterval == 0 {
		cfg.Window.TickInterval = cfg.Window.Duration
	}
	if cfg.Analysis.MaxRetries == 0 {
		cfg.Analysis.MaxRetries = 1
	}
	if cfg.Analysis.Timeout == 0 {
		cfg.Analysis.Timeout = 45 * time.Second
	}
	if cfg.Persist.FsyncInterval == 0 {
		cfg.Persist.FsyncInterval = 5 * time.Second
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogLevelInfo
	}
	if cfg.Session.StopDrainSec == 0 {
		cfg.Session.StopDrainSec = 10
	}
	if cfg.Text.MinChars == 0 {
		cfg.Text.MinChars = 3
	}
	if cfg.Text.RepeatLimit == 0 {
		cfg.Text.RepeatLimit = 3
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Room.RoomID == "" && cfg.Room.LiveURL == "" {
		errs = append(errs, errors.New("one of room.room_id or room.live_url is required"))
	}

	validateProviderName("asr", cfg.Providers.ASR.Name)
	validateProviderName("analysis_llm", cfg.Providers.AnalysisLLM.Name)
	validateProviderName("answer_llm", cfg.Providers.AnswerLLM.Name)
	validateProviderName("credential", cfg.Room.Credential.Name)

	if cfg.Providers.AnalysisLLM.Name == "" {
		slog.Warn("no analysis LLM provider configured; AnalysisWorkflow will not be able to generate cards")
	}
	if cfg.Providers.ASR.Name == "" {
		slog.Warn("no ASR provider configured; ASRWrapper will not be able to transcribe audio")
	}

	if cfg.Window.Duration < 30*time.Second || cfg.Window.Duration > 600*time.Second {
		errs = append(errs, fmt.Errorf("window.duration %s is out of range [30s, 600s]", cfg.Window.Duration))
	}

	if cfg.VAD.RMSThreshold < 0.001 || cfg.VAD.RMSThreshold > 0.2 {
		errs = append(errs, fmt.Errorf("vad.rms_threshold %.4f is out of range [0.001, 0.2]", cfg.VAD.RMSThreshold))
	}

	if cfg.VAD.MinSpeechSec < 0.2 || cfg.VAD.MinSpeechSec > 2.5 {
		errs = append(errs, fmt.Errorf("vad.min_speech_sec %.2f is out of range [0.2, 2.5]", cfg.VAD.MinSpeechSec))
	}

	if cfg.VAD.MinSilenceSec < 0.2 || cfg.VAD.MinSilenceSec > 2.5 {
		errs = append(errs, fmt.Errorf("vad.min_silence_sec %.2f is out of range [0.2, 2.5]", cfg.VAD.MinSilenceSec))
	}

	if cfg.VAD.ForceFlushOverlapSec < 0 || cfg.VAD.ForceFlushOverlapSec > 1.5 {
		errs = append(errs, fmt.Errorf("vad.force_flush_overlap_sec %.2f is out of range [0, 1.5]", cfg.VAD.ForceFlushOverlapSec))
	}

	if cfg.Diarize.MaxGuestSpeakers < 0 || cfg.Diarize.MaxGuestSpeakers > 3 {
		errs = append(errs, fmt.Errorf("diarize.max_guest_speakers %d is out of range [0, 3] (max_speakers ≤ 4 total)", cfg.Diarize.MaxGuestSpeakers))
	}

	if cfg.Diarize.EnrollSec < 1 || cfg.Diarize.EnrollSec > 20 {
		errs = append(errs, fmt.Errorf("diarize.enroll_sec %.2f is out of range [1, 20]", cfg.Diarize.EnrollSec))
	}

	if cfg.Diarize.WarmupSec < 0 || cfg.Diarize.WarmupSec > 20 {
		errs = append(errs, fmt.Errorf("diarize.warmup_sec %.2f is out of range [0, 20]", cfg.Diarize.WarmupSec))
	}

	if cfg.Persist.OutputDir == "" {
		slog.Warn("persist.output_dir is empty; artifacts will not be persisted")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	for _, k := range known {
		if k == name {
			return
		}
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
