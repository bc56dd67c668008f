// Package whisper provides an asr.Recognizer backed by the whisper.cpp CGO
// bindings. The model is loaded once at startup and shared across all
// recognize calls; each call creates its own whisper.cpp context, since a
// context is not safe for concurrent use but the model is.
//
// whisper.cpp is a batch (non-streaming) engine: Recognize expects a complete
// pre-segmented utterance (produced upstream by the VAD gate) rather than a
// raw audio stream with its own silence detector.
package whisper

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/zitemo/livecards/pkg/provider/asr"
)

const defaultSampleRate = 16000

// Recognizer implements asr.Recognizer using a shared whisper.cpp model.
type Recognizer struct {
	model      whisperlib.Model
	language   string
	sampleRate int
}

// Option is a functional option for configuring a Recognizer.
type Option func(*Recognizer)

// WithLanguage sets the BCP-47 language code passed to whisper.cpp (e.g.
// "zh", "en"). Defaults to "zh" since the pipeline targets Chinese-language
// livestream audio.
func WithLanguage(lang string) Option {
	return func(r *Recognizer) { r.language = lang }
}

// WithSampleRate overrides the sample rate the recognizer expects incoming
// PCM to already be resampled to. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(r *Recognizer) { r.sampleRate = rate }
}

// New loads the whisper.cpp model from modelPath. The model is loaded once
// and shared across all Recognize calls. Close must be called when the
// recognizer is no longer needed.
func New(modelPath string, opts ...Option) (*Recognizer, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	r := &Recognizer{
		model:      model,
		language:   "zh",
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Close releases the whisper model.
func (r *Recognizer) Close() error {
	if r.model != nil {
		return r.model.Close()
	}
	return nil
}

var _ asr.Recognizer = (*Recognizer)(nil)

// ExpectedSampleRate implements asr.Recognizer.
func (r *Recognizer) ExpectedSampleRate() int { return r.sampleRate }

// SupportsWordTimings implements asr.Recognizer. whisper.cpp's Go bindings
// only surface segment-level text through NextSegment, not per-token
// timestamps, so word timings here are synthesized rather than measured.
func (r *Recognizer) SupportsWordTimings() bool { return false }

// Recognize runs one batch whisper.cpp inference over pcm and returns the
// concatenated segment text. Word timings are approximated by distributing
// each word evenly across the segment duration, proportional to its position
// in the word sequence — a documented approximation, not a native capability
// of the binding.
func (r *Recognizer) Recognize(ctx context.Context, pcm []byte, sampleRate int) (asr.Result, error) {
	if err := ctx.Err(); err != nil {
		return asr.Result{}, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	samples := pcmToFloat32Mono(pcm)

	wctx, err := r.model.NewContext()
	if err != nil {
		return asr.Result{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(r.language); err != nil {
		return asr.Result{}, fmt.Errorf("whisper: set language %q: %w", r.language, err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return asr.Result{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return asr.Result{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	text := strings.Join(parts, "")
	rate := sampleRate
	if rate <= 0 {
		rate = r.sampleRate
	}
	durationSec := float64(len(samples)) / float64(rate)

	return asr.Result{
		Text:           text,
		Words:          synthesizeWordTimings(text, durationSec),
		MeanConfidence: 1.0,
	}, nil
}

// synthesizeWordTimings splits text into runes (Chinese text has no
// whitespace word boundaries) and evenly distributes timing across
// [0, durationSec], producing a monotonically non-decreasing sequence as
// required downstream.
func synthesizeWordTimings(text string, durationSec float64) []asr.Word {
	runes := []rune(text)
	if len(runes) == 0 || durationSec <= 0 {
		return nil
	}
	perRune := durationSec / float64(len(runes))
	words := make([]asr.Word, len(runes))
	for i, rn := range runes {
		words[i] = asr.Word{
			Word:  string(rn),
			Start: float64(i) * perRune,
			End:   float64(i+1) * perRune,
		}
	}
	return words
}

// pcmToFloat32Mono converts 16-bit signed little-endian mono PCM audio to
// float32 samples normalised to the range [-1.0, 1.0].
func pcmToFloat32Mono(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}
