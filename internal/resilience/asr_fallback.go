package resilience

import (
	"context"

	"github.com/zitemo/livecards/pkg/provider/asr"
)

// ASRFallback implements [asr.Recognizer] with automatic failover across
// multiple recognizer backends, e.g. a local whisper.cpp model falling back
// to a remote recognition service if the local model fails to load segments
// fast enough.
type ASRFallback struct {
	group *FallbackGroup[asr.Recognizer]
}

var _ asr.Recognizer = (*ASRFallback)(nil)

// NewASRFallback creates an [ASRFallback] with primary as the preferred
// recognizer.
func NewASRFallback(primary asr.Recognizer, primaryName string, cfg FallbackConfig) *ASRFallback {
	return &ASRFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional recognizer as a fallback.
func (f *ASRFallback) AddFallback(name string, recognizer asr.Recognizer) {
	f.group.AddFallback(name, recognizer)
}

// Recognize sends pcm to the first healthy recognizer and returns its result.
func (f *ASRFallback) Recognize(ctx context.Context, pcm []byte, sampleRate int) (asr.Result, error) {
	return ExecuteWithResult(f.group, func(r asr.Recognizer) (asr.Result, error) {
		return r.Recognize(ctx, pcm, sampleRate)
	})
}

// SupportsWordTimings reflects the primary recognizer's capability, since
// failover across recognizers with differing timing support would make the
// guarantee meaningless to callers.
func (f *ASRFallback) SupportsWordTimings() bool {
	if len(f.group.entries) > 0 {
		return f.group.entries[0].value.SupportsWordTimings()
	}
	return false
}

// ExpectedSampleRate reflects the primary recognizer's expected sample rate.
func (f *ASRFallback) ExpectedSampleRate() int {
	if len(f.group.entries) > 0 {
		return f.group.entries[0].value.ExpectedSampleRate()
	}
	return 16000
}
