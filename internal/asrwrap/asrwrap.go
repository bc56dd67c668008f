// Package asrwrap implements ASRWrapper (C4): invokes an asr.Recognizer on
// each SpeechSegment under a per-call timeout, tracks a running mean
// confidence, and reports through [Wrapper.IsWarmingUp] whether the session
// is still inside its warm-up window. The warm-up window does not change how
// Transcribe runs: the same timeout applies inside and outside it.
package asrwrap

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zitemo/livecards/pkg/provider/asr"
	"github.com/zitemo/livecards/pkg/types"
)

// ErrTimeout is returned when a recognizer call exceeds asr_timeout_sec.
var ErrTimeout = errors.New("asrwrap: recognition timed out")

// Config tunes ASRWrapper.
type Config struct {
	// WarmupSec is the window after session start during which IsWarmingUp
	// reports true. Transcribe applies TimeoutSec within this window as
	// well, and session status has no model-loading field fed from it.
	WarmupSec float64

	// TimeoutSec bounds a single Recognize call.
	TimeoutSec float64
}

func (c *Config) applyDefaults() {
	if c.WarmupSec == 0 {
		c.WarmupSec = 30
	}
	if c.TimeoutSec == 0 {
		c.TimeoutSec = 30
	}
}

// Wrapper drives asr.Recognizer over a stream of SpeechSegments.
type Wrapper struct {
	cfg       Config
	recognize asr.Recognizer
	startedAt time.Time

	mu                  sync.Mutex
	totalConfidenceSum  float64
	successfulCount     int64
	failedCount         int64
}

// New constructs a Wrapper. startedAt is the session start time, used to
// compute whether the wrapper is still within the warm-up window.
func New(recognizer asr.Recognizer, cfg Config, startedAt time.Time) *Wrapper {
	cfg.applyDefaults()
	return &Wrapper{cfg: cfg, recognize: recognizer, startedAt: startedAt}
}

// IsWarmingUp reports whether the wrapper is still within its warm-up grace
// period, per spec: "first invocation after session start is allowed a
// grace period".
func (w *Wrapper) IsWarmingUp(now time.Time) bool {
	return now.Sub(w.startedAt).Seconds() < w.cfg.WarmupSec
}

// MeanConfidence returns the running mean confidence across all successful
// transcriptions so far.
func (w *Wrapper) MeanConfidence() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.successfulCount == 0 {
		return 0
	}
	return w.totalConfidenceSum / float64(w.successfulCount)
}

// Counts returns the successful and failed transcription counters.
func (w *Wrapper) Counts() (successful, failed int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.successfulCount, w.failedCount
}

// Transcribe recognizes seg's audio and returns the resulting Transcript.
// ok is false for an empty-text result (a successful non-event, per spec —
// no Transcript is emitted) or a recognizer error/timeout (failure counted,
// no Transcript emitted either).
func (w *Wrapper) Transcribe(ctx context.Context, seg types.SpeechSegment, sampleRate int) (types.Transcript, bool, error) {
	timeout := time.Duration(w.cfg.TimeoutSec * float64(time.Second))
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		res asr.Result
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := w.recognize.Recognize(callCtx, seg.PCM, sampleRate)
		done <- result{res, err}
	}()

	select {
	case <-callCtx.Done():
		w.recordFailure()
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return types.Transcript{}, false, ErrTimeout
		}
		return types.Transcript{}, false, callCtx.Err()

	case r := <-done:
		if r.err != nil {
			w.recordFailure()
			return types.Transcript{}, false, r.err
		}
		if r.res.Text == "" {
			// Empty text is a successful non-event; no failure, no Transcript.
			return types.Transcript{}, false, nil
		}

		w.recordSuccess(r.res.MeanConfidence)

		words := make([]types.WordTiming, len(r.res.Words))
		for i, wd := range r.res.Words {
			words[i] = types.WordTiming{Word: wd.Word, Start: wd.Start, End: wd.End}
		}

		return types.Transcript{
			SegmentID:  seg.SegmentID,
			Text:       r.res.Text,
			Confidence: r.res.MeanConfidence,
			Words:      words,
			IsFinal:    true,
			Timestamp:  time.Now(),
		}, true, nil
	}
}

func (w *Wrapper) recordSuccess(confidence float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.successfulCount++
	w.totalConfidenceSum += confidence
}

func (w *Wrapper) recordFailure() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failedCount++
}
