// Package window implements WindowAccumulator (C8): two retention-bounded
// ring buffers (transcripts, events) from which SessionController requests
// a sliding-window WindowSnapshot on every tick.
package window

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zitemo/livecards/pkg/types"
)

// questionMarkers are substrings whose presence flags a chat message as a
// question, for the question_count statistic.
var questionMarkers = []string{"?", "？", "吗", "呢", "怎么", "为什么", "多少钱", "能不能"}

// Accumulator holds the two retention-bounded buffers. Safe for concurrent
// use: Add* methods are called from the relay/ASR producer side, Snapshot
// from SessionController's tick goroutine.
type Accumulator struct {
	mu              sync.Mutex
	windowSec       float64
	retentionSec    float64
	transcripts     []types.Transcript
	events          []types.ChatEvent
	transcriptTimes []time.Time
}

// New constructs an Accumulator retaining at least
// max(windowSec, 600) + 60 seconds of history.
func New(windowSec float64) *Accumulator {
	retention := windowSec
	if retention < 600 {
		retention = 600
	}
	retention += 60
	return &Accumulator{windowSec: windowSec, retentionSec: retention}
}

// AddTranscript records a new transcript, stamping Timestamp with the
// current wall-clock time if it is unset.
func (a *Accumulator) AddTranscript(t types.Transcript) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	a.transcripts = append(a.transcripts, t)
	a.pruneLocked(time.Now())
}

// AddEvent records a new chat event, stamping IngestTS if unset.
func (a *Accumulator) AddEvent(e types.ChatEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e.IngestTS.IsZero() {
		e.IngestTS = time.Now()
	}
	a.events = append(a.events, e)
	a.pruneLocked(time.Now())
}

// pruneLocked drops entries older than retentionSec. Caller must hold a.mu.
func (a *Accumulator) pruneLocked(now time.Time) {
	cutoff := now.Add(-time.Duration(a.retentionSec * float64(time.Second)))

	keptT := a.transcripts[:0]
	for _, t := range a.transcripts {
		if t.Timestamp.After(cutoff) {
			keptT = append(keptT, t)
		}
	}
	a.transcripts = keptT

	keptE := a.events[:0]
	for _, e := range a.events {
		if e.IngestTS.After(cutoff) {
			keptE = append(keptE, e)
		}
	}
	a.events = keptE
}

// Snapshot returns a WindowSnapshot of the last windowSec seconds, entries
// sorted ascending by timestamp, with stats computed inline.
func (a *Accumulator) Snapshot(windowSec float64) types.WindowSnapshot {
	now := time.Now()
	cutoff := now.Add(-time.Duration(windowSec * float64(time.Second)))

	a.mu.Lock()
	defer a.mu.Unlock()

	var transcripts []types.Transcript
	for _, t := range a.transcripts {
		if !t.Timestamp.Before(cutoff) {
			transcripts = append(transcripts, t)
		}
	}
	sort.Slice(transcripts, func(i, j int) bool {
		return transcripts[i].Timestamp.Before(transcripts[j].Timestamp)
	})

	var events []types.ChatEvent
	for _, e := range a.events {
		if !e.IngestTS.Before(cutoff) {
			events = append(events, e)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].IngestTS.Before(events[j].IngestTS)
	})

	return types.WindowSnapshot{
		WindowID:    uuid.NewString(),
		StartTS:     cutoff,
		EndTS:       now,
		Transcripts: transcripts,
		Events:      events,
		Stats:       computeStats(events, windowSec),
	}
}

func computeStats(events []types.ChatEvent, windowSec float64) types.WindowStats {
	stats := types.WindowStats{}
	if windowSec <= 0 {
		return stats
	}

	chatCount := 0
	users := make(map[string]bool)

	for _, e := range events {
		switch e.Kind {
		case types.EventChat:
			chatCount++
			if hasQuestionMarker(e.Content) {
				stats.QuestionCount++
			}
		case types.EventGift:
			stats.GiftCount++
			stats.GiftTotalPrice += giftPrice(e.Payload)
		}
		if e.UserID != "" {
			users[e.UserID] = true
		}
	}

	stats.DMPerMin = float64(chatCount) / windowSec * 60
	stats.UniqueUsers = len(users)
	return stats
}

func hasQuestionMarker(content string) bool {
	for _, m := range questionMarkers {
		if strings.Contains(content, m) {
			return true
		}
	}
	return false
}

func giftPrice(payload map[string]any) int64 {
	if payload == nil {
		return 0
	}
	switch v := payload["price"].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
