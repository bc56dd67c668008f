// Package analysis implements AnalysisWorkflow (C9): a fixed-order sequence
// of plain Go functions — MemoryLoader, SignalCollector, TopicDetector,
// MoodEstimator, Planner, AnalysisGenerator, Summary — run once per
// WindowAccumulator tick. There is no general-purpose DAG engine here: the
// node order is fixed and non-branching, so the workflow is just a
// sequential call chain over a shared state struct.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/zitemo/livecards/pkg/provider/llm"
	"github.com/zitemo/livecards/pkg/types"
)

// ErrSkipped is returned when Run is called while a previous tick is still
// in flight; overlapping ticks are disallowed by spec §4.9.
var ErrSkipped = errors.New("analysis: previous tick still running, this tick skipped")

// Config tunes the workflow.
type Config struct {
	// TimeoutSec bounds one full workflow run. Default 45s.
	TimeoutSec float64

	// PersonaRootDir is passed to PersonaLoader; empty disables persona
	// loading (every room gets an empty Persona).
	PersonaRootDir string
}

func (c *Config) applyDefaults() {
	if c.TimeoutSec == 0 {
		c.TimeoutSec = 45
	}
}

// SkippedCounter is called once whenever a tick is skipped due to
// overlap, so the caller can increment an observability counter without
// this package importing internal/observe directly.
type SkippedCounter func()

// Workflow runs the fixed-order analysis DAG over one WindowSnapshot at a
// time. Safe for concurrent Run calls: only one executes at a time, others
// are skipped.
type Workflow struct {
	cfg      Config
	provider llm.Provider
	loader   PersonaLoader
	onSkip   SkippedCounter

	running int32
}

// New constructs a Workflow.
func New(provider llm.Provider, cfg Config, onSkip SkippedCounter) *Workflow {
	cfg.applyDefaults()
	return &Workflow{
		cfg:      cfg,
		provider: provider,
		loader:   PersonaLoader{RootDir: cfg.PersonaRootDir},
		onSkip:   onSkip,
	}
}

// Output is the Summary node's result, ready for external delivery.
type Output struct {
	Card         types.AnalysisCard
	StyleProfile string
}

// Run executes one full tick over snapshot for roomID. Returns ErrSkipped
// if a previous tick is still in flight. Any node failure other than
// AnalysisGenerator (which self-degrades rather than failing) aborts the
// tick and returns an error — per spec, the orchestrator must skip that
// tick, log, and preserve state for the next one; it is the caller's
// responsibility to not treat this as fatal to the session.
func (w *Workflow) Run(ctx context.Context, roomID string, snapshot types.WindowSnapshot) (Output, error) {
	if !atomic.CompareAndSwapInt32(&w.running, 0, 1) {
		if w.onSkip != nil {
			w.onSkip()
		}
		return Output{}, ErrSkipped
	}
	defer atomic.StoreInt32(&w.running, 0)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(w.cfg.TimeoutSec*float64(time.Second)))
	defer cancel()

	persona, err := w.loader.Load(roomID)
	if err != nil {
		return Output{}, fmt.Errorf("analysis: MemoryLoader: %w", err)
	}

	categorized, stats := collectSignals(snapshot)

	topics := detectTopics(stats.RecentTranscripts, categorized)

	vibe := estimateMood(stats, categorized, snapshot.Stats.DMPerMin)

	windowSec := snapshot.EndTS.Sub(snapshot.StartTS).Seconds()
	focus := plan(topics, vibe, snapshot.Stats.QuestionCount, windowSec)

	card := generateCard(ctx, w.provider, persona, stats, categorized, topics, vibe, focus)

	card.TopicCandidates = topics
	card.Vibe = vibe
	card.AnalysisFocus = focus
	card.Timestamp = time.Now()

	styleProfile := styleProfileFrom(persona)
	card.StyleProfile = styleProfile

	return Output{Card: card, StyleProfile: styleProfile}, nil
}

// styleProfileFrom derives a short style-profile string from persona for
// the Summary node and downstream answer-script generation.
func styleProfileFrom(p Persona) string {
	if p.IsEmpty() {
		return ""
	}
	profile := p.Tone
	if len(p.Catchphrases) > 0 {
		profile += fmt.Sprintf("，常用语：%v", p.Catchphrases)
	}
	return profile
}
