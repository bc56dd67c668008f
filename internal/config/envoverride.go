package config

import (
	"log/slog"
	"os"
	"strconv"
)

// applyEnvOverrides layers spec §6's recognized environment variables on top
// of the YAML-decoded and defaulted config. Every variable is optional; a
// malformed value is logged and left at whatever applyDefaults/YAML already
// set, rather than failing Load outright.
func applyEnvOverrides(cfg *Config) {
	envFloatSec := func(name string, dst *float64) {
		if v, ok := lookupFloat(name); ok {
			*dst = v
		}
	}

	if v, ok := lookupFloat("LIVE_VAD_CHUNK_SEC"); ok {
		cfg.Audio.FrameDurationMs = int(v * 1000)
	}
	envFloatSec("LIVE_VAD_MIN_RMS", &cfg.VAD.RMSThreshold)
	envFloatSec("LIVE_VAD_MIN_SPEECH_SEC", &cfg.VAD.MinSpeechSec)
	envFloatSec("LIVE_VAD_MIN_SILENCE_SEC", &cfg.VAD.MinSilenceSec)
	if v, ok := lookupFloat("LIVE_VAD_HANGOVER_SEC"); ok {
		cfg.VAD.HangoverMs = int(v * 1000)
	}
	if v, ok := lookupFloat("LIVE_VAD_FORCE_FLUSH_SEC"); ok {
		cfg.VAD.MaxSegmentMs = int(v * 1000)
	}
	envFloatSec("LIVE_VAD_FORCE_FLUSH_OVERLAP", &cfg.VAD.ForceFlushOverlapSec)
	if v, ok := lookupInt("LIVE_VAD_MIN_SENTENCE_CHARS"); ok {
		cfg.Text.MinChars = v
	}

	if v, ok := lookupInt("LIVE_DIARIZER_MAX_SPEAKERS"); ok {
		cfg.Diarize.MaxGuestSpeakers = v - 1
	}
	envFloatSec("LIVE_DIARIZER_ENROLL_SEC", &cfg.Diarize.EnrollSec)
	envFloatSec("LIVE_DIARIZER_WARMUP_SEC", &cfg.Diarize.WarmupSec)
	envFloatSec("LIVE_DIARIZER_SMOOTH", &cfg.Diarize.CentroidEMAAlpha)

	if v, ok := lookupBool("LIVE_TEXT_NOISE_FILTER"); ok {
		cfg.Text.NoiseFilterDisabled = !v
	}
	if v, ok := lookupInt("LIVE_TEXT_NOISE_MIN_CHARS"); ok {
		cfg.Text.MinChars = v
	}
	if v, ok := lookupInt("LIVE_TEXT_NOISE_REPEAT"); ok {
		cfg.Text.RepeatLimit = v
	}

	if v, ok := os.LookupEnv("LIVE_FORCE_DEVICE"); ok {
		setASROption(cfg, "device", v)
	}
	if v, ok := os.LookupEnv("MODEL_CACHE_DIR"); ok {
		setASROption(cfg, "model_cache_dir", v)
	}
	if v, ok := os.LookupEnv("HF_HOME"); ok {
		setASROption(cfg, "hf_home", v)
	}
}

// setASROption records a runtime override in the ASR provider entry's
// free-form Options map; whisper-native (CPU-only, CGO) ignores device/cache
// hints it has no use for, but a future HuggingFace/torch-backed recognizer
// registered under the same "asr" slot can read them the same way it would
// read its own provider-specific YAML options.
func setASROption(cfg *Config, key, value string) {
	if cfg.Providers.ASR.Options == nil {
		cfg.Providers.ASR.Options = make(map[string]any, 1)
	}
	cfg.Providers.ASR.Options[key] = value
}

func lookupFloat(name string) (float64, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("config: ignoring malformed env override", "var", name, "value", raw, "err", err)
		return 0, false
	}
	return v, true
}

func lookupInt(name string) (int, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("config: ignoring malformed env override", "var", name, "value", raw, "err", err)
		return 0, false
	}
	return v, true
}

func lookupBool(name string) (bool, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return false, false
	}
	switch raw {
	case "1", "true", "TRUE", "True":
		return true, true
	case "0", "false", "FALSE", "False":
		return false, true
	default:
		slog.Warn("config: ignoring malformed env override", "var", name, "value", raw)
		return false, false
	}
}
