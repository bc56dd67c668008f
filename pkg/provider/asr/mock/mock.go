// Package mock provides a test double for asr.Recognizer.
package mock

import (
	"context"
	"sync"

	"github.com/zitemo/livecards/pkg/provider/asr"
)

// Recognizer is a mock implementation of asr.Recognizer.
type Recognizer struct {
	mu sync.Mutex

	// Results is consumed in order, one per Recognize call. When exhausted,
	// the last entry (or Result if Results is empty) is reused.
	Results []asr.Result

	// Result is returned by every Recognize call when Results is empty.
	Result asr.Result

	// Err, if non-nil, is returned by every Recognize call.
	Err error

	// WordTimings controls SupportsWordTimings.
	WordTimings bool

	// SampleRate controls ExpectedSampleRate. Defaults to 16000 if zero.
	SampleRate int

	// Calls records the sample rate passed to every Recognize call.
	Calls []int

	callIdx int
}

var _ asr.Recognizer = (*Recognizer)(nil)

// Recognize records the call and returns the configured result or error.
func (r *Recognizer) Recognize(_ context.Context, _ []byte, sampleRate int) (asr.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, sampleRate)
	if r.Err != nil {
		return asr.Result{}, r.Err
	}
	if len(r.Results) == 0 {
		return r.Result, nil
	}
	idx := r.callIdx
	if idx >= len(r.Results) {
		idx = len(r.Results) - 1
	}
	r.callIdx++
	return r.Results[idx], nil
}

// SupportsWordTimings implements asr.Recognizer.
func (r *Recognizer) SupportsWordTimings() bool { return r.WordTimings }

// ExpectedSampleRate implements asr.Recognizer.
func (r *Recognizer) ExpectedSampleRate() int {
	if r.SampleRate == 0 {
		return 16000
	}
	return r.SampleRate
}
