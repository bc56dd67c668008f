// Package config provides the configuration schema, loader, and provider
// registry for the livecards analytics engine.
package config

import "time"

// Config is the root configuration structure for livecards.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Room      RoomConfig      `yaml:"room"`
	Providers ProvidersConfig `yaml:"providers"`
	Audio     AudioConfig     `yaml:"audio"`
	VAD       VADConfig       `yaml:"vad"`
	Diarize   DiarizeConfig   `yaml:"diarize"`
	Window    WindowConfig    `yaml:"window"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Persist   PersistConfig   `yaml:"persist"`
	Session   SessionConfig   `yaml:"session"`
	Text      TextConfig      `yaml:"text"`
}

// ServerConfig holds network and logging settings for the livecards daemon.
type ServerConfig struct {
	// ListenAddr is the TCP address the health/status HTTP server listens on.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`
}

// LogLevel is a validated slog verbosity level.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	}
	return false
}

// RoomConfig identifies the Douyin live room to monitor and how to
// authenticate the relay connection.
type RoomConfig struct {
	// RoomID is the Douyin live room identifier. If empty, it is parsed out
	// of LiveURL at session start.
	RoomID string `yaml:"room_id"`

	// LiveURL is the public live-room page URL (e.g.
	// "https://live.douyin.com/123456789"), recorded as-is in session
	// status and used to derive RoomID when RoomID is unset.
	LiveURL string `yaml:"live_url"`

	// Credential selects the registered CredentialProvider implementation
	// used to sign websocket requests (ttwid / a_bogus / signature).
	Credential ProviderEntry `yaml:"credential"`
}

// ProvidersConfig declares which provider implementation to use for each
// pluggable pipeline capability. Each field selects a named provider
// registered in the [Registry].
type ProvidersConfig struct {
	ASR         ProviderEntry `yaml:"asr"`
	AnalysisLLM ProviderEntry `yaml:"analysis_llm"`
	AnswerLLM   ProviderEntry `yaml:"answer_llm"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai",
	// "anthropic", "whisper-native").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API. Ignored by
	// providers that authenticate some other way (e.g. a local model file).
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o",
	// the whisper.cpp model file path).
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// AudioConfig configures audio ingest (C1 AudioChunker) and automatic gain
// control (C2 AGC).
type AudioConfig struct {
	// FFmpegPath is the ffmpeg binary path. Defaults to "ffmpeg" (resolved
	// via PATH) when empty.
	FFmpegPath string `yaml:"ffmpeg_path"`

	// StreamURL is the Douyin FLV/HLS pull stream URL ffmpeg reads from.
	StreamURL string `yaml:"stream_url"`

	// SampleRate is the PCM sample rate produced by the ffmpeg mux, in Hz.
	SampleRate int `yaml:"sample_rate"`

	// FrameDurationMs is the duration of each emitted AudioFrame, in
	// milliseconds.
	FrameDurationMs int `yaml:"frame_duration_ms"`

	// AGCTargetRMS is the target root-mean-square level the AGC stage
	// smooths buffered audio toward.
	AGCTargetRMS float64 `yaml:"agc_target_rms"`

	// AGCMaxGain caps the per-pass multiplicative gain applied by the AGC.
	AGCMaxGain float64 `yaml:"agc_max_gain"`
}

// VADConfig configures the voice-activity-detection gate (C3).
type VADConfig struct {
	// RMSThreshold is the energy level below which a frame is silence.
	RMSThreshold float64 `yaml:"rms_threshold"`

	// HangoverMs is passed to the VAD gate as HangoverSec, but no gate
	// transition reads it; the trailing silence that ends a segment is set
	// by MinSilenceSec.
	HangoverMs int `yaml:"hangover_ms"`

	// MaxSegmentMs forces a flush once a segment reaches this duration,
	// regardless of continued speech.
	MaxSegmentMs int `yaml:"max_segment_ms"`

	// MinSegmentMs discards segments shorter than this as noise.
	MinSegmentMs int `yaml:"min_segment_ms"`

	// MinSpeechSec is the cumulative voiced duration required to commit
	// SILENCE to SPEECH (0.2–2.5).
	MinSpeechSec float64 `yaml:"min_speech_sec"`

	// MinSilenceSec is the cumulative silent duration required, once in
	// HANGOVER, to naturally flush the in-progress segment (0.2–2.5).
	MinSilenceSec float64 `yaml:"min_silence_sec"`

	// ForceFlushOverlapSec is the trailing audio carried into the next
	// segment when a force flush splits ongoing speech (0.0–1.5).
	ForceFlushOverlapSec float64 `yaml:"force_flush_overlap_sec"`
}

// DiarizeConfig configures the online speaker clustering stage (C5).
type DiarizeConfig struct {
	// SimilarityThreshold is the minimum cosine similarity to an existing
	// speaker centroid required to assign a segment to that speaker rather
	// than spawning a new one.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// MaxGuestSpeakers caps the number of distinct guest speaker identities
	// tracked concurrently. Once the cap is reached, a segment that matches
	// no speaker within the threshold is assigned to the nearest existing
	// speaker; no speaker is evicted.
	MaxGuestSpeakers int `yaml:"max_guest_speakers"`

	// CentroidEMAAlpha is the exponential-moving-average weight applied
	// when updating a speaker's centroid with a newly assigned segment.
	CentroidEMAAlpha float64 `yaml:"centroid_ema_alpha"`

	// EnrollSec is the cumulative voiced duration required before the
	// warm-up candidates are promoted to enrolled speaker identities
	// (1–20). Only meaningful at session start — changing it mid-session
	// has no effect once enrollment has already completed.
	EnrollSec float64 `yaml:"enroll_sec"`

	// WarmupSec is the cumulative voiced duration below which Assign
	// always returns speaker_unknown rather than a provisional label.
	// Defaults to 0.75 * EnrollSec when left zero.
	WarmupSec float64 `yaml:"warmup_sec"`
}

// WindowConfig configures the rolling-window fusion stage (C8).
type WindowConfig struct {
	// Duration is the length of the rolling analysis window.
	Duration time.Duration `yaml:"duration"`

	// TickInterval is how often a WindowSnapshot is produced.
	TickInterval time.Duration `yaml:"tick_interval"`
}

// AnalysisConfig configures the analysis workflow (C9) and answer-script
// generator (C10).
type AnalysisConfig struct {
	// PersonaPath is the directory holding one "<room_id>.yaml" persona
	// file per room, loaded by MemoryLoader. Empty disables persona loading.
	PersonaPath string `yaml:"persona_path"`

	// MaxRetries is defaulted to 1 but is not read by the analysis
	// workflow: AnalysisGenerator always retries a failed LLM call once and
	// then emits a fixed degraded card with confidence 0.
	MaxRetries int `yaml:"max_retries"`

	// Timeout bounds one analysis tick end-to-end.
	Timeout time.Duration `yaml:"timeout"`
}

// PersistConfig configures artifact persistence (C11).
type PersistConfig struct {
	// OutputDir is the root directory JSONL transcript/event logs and WAV
	// segment files are written under.
	OutputDir string `yaml:"output_dir"`

	// FsyncInterval is how often buffered writers are flushed to disk.
	FsyncInterval time.Duration `yaml:"fsync_interval"`

	// PostgresDSN optionally enables a Postgres session-index sink
	// alongside the JSONL files. Empty disables it.
	PostgresDSN string `yaml:"postgres_dsn"`

	// SaveAudio enables writing SpeechSegment PCM to segments/*.wav.
	// Default false.
	SaveAudio bool `yaml:"save_audio"`
}

// TextConfig configures the text post-processing noise filter (C6).
type TextConfig struct {
	// NoiseFilterDisabled turns off the short-text noise filter (step 4 of
	// TextPostprocess) entirely; domain-vocabulary correction and
	// filler-character collapse still run regardless. The filter is
	// enabled by default (zero value = enabled).
	NoiseFilterDisabled bool `yaml:"noise_filter_disabled"`

	// MinChars is the length in runes below which a post-processed
	// transcript made up only of filler characters is discarded as noise;
	// shorter text containing any other character is kept.
	MinChars int `yaml:"min_chars"`

	// RepeatLimit is the run length at which consecutive repeats of any
	// single character are collapsed to one instance (or discarded when the
	// run is the whole text).
	RepeatLimit int `yaml:"repeat_limit"`
}

// SessionConfig configures SessionController (C12) lifecycle behavior.
type SessionConfig struct {
	// StopDrainSec bounds how long stop() waits for the ASR queue to drain
	// before force-closing resources.
	StopDrainSec float64 `yaml:"stop_drain_sec"`
}
