// Package session implements SessionController (C12): the lifecycle state
// machine that wires AudioChunker, AGC, VAD Gate, ASRWrapper, Diarizer,
// TextPostprocess, EventRelay, WindowAccumulator, AnalysisWorkflow,
// AnswerScriptGenerator, and ArtifactPersister into one running pipeline per
// live room, and exposes status(), generate_answers, and update_advanced to
// external callers. Only one session runs per Controller at a time.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zitemo/livecards/internal/agc"
	"github.com/zitemo/livecards/internal/analysis"
	"github.com/zitemo/livecards/internal/answer"
	"github.com/zitemo/livecards/internal/asrwrap"
	"github.com/zitemo/livecards/internal/config"
	"github.com/zitemo/livecards/internal/diarize"
	"github.com/zitemo/livecards/internal/ingest"
	"github.com/zitemo/livecards/internal/observe"
	"github.com/zitemo/livecards/internal/persist"
	"github.com/zitemo/livecards/internal/persist/postgres"
	"github.com/zitemo/livecards/internal/relay"
	"github.com/zitemo/livecards/internal/textpost"
	"github.com/zitemo/livecards/internal/vadgate"
	"github.com/zitemo/livecards/internal/window"
	"github.com/zitemo/livecards/pkg/provider/asr"
	"github.com/zitemo/livecards/pkg/provider/llm"
	"github.com/zitemo/livecards/pkg/types"
)

// Deps bundles the pluggable capability implementations a Controller is
// constructed with. These are resolved from config.Registry by the caller
// (internal/app), not by this package, so Controller never depends on the
// registry directly — mirroring the teacher's SessionManagerConfig pattern
// of injecting already-built *Providers.
type Deps struct {
	Recognizer  asr.Recognizer
	AnalysisLLM llm.Provider
	AnswerLLM   llm.Provider
	Credential  relay.CredentialProvider
	Decoder     relay.FrameDecoder

	// SessionIndex optionally records session start/end and analysis
	// summaries in Postgres alongside the JSONL files. Nil disables it.
	SessionIndex *postgres.SessionIndex

	// Metrics records OpenTelemetry counters/histograms for each stage.
	// Nil disables metrics recording entirely.
	Metrics *observe.Metrics
}

// Status is the full snapshot returned by [Controller.Status].
type Status struct {
	State      types.RunState
	SessionID  string
	RoomID     string
	LiveURL    string
	Mode       types.SessionMode
	StartedAt  time.Time
	Counters   types.SessionCounters
	RelayState relay.Status
	Advanced   AdvancedParams
	LastCard   types.AnalysisCard
	LastError  string
}

// Controller implements SessionController (C12). Only one session may be
// active at a time (enforced by mu), matching the teacher's SessionManager.
type Controller struct {
	deps Deps

	mu        sync.Mutex
	state     types.RunState
	sessionID string
	roomID    string
	liveURL   string
	mode      types.SessionMode
	startedAt time.Time
	lastError error
	counters  types.SessionCounters
	lastCard  types.AnalysisCard
	advanced  AdvancedParams

	windowSec     float64
	stopDrainSec  float64
	minSegmentSec float64
	sampleRateHz  int

	chunker   *ingest.Chunker
	agcProc   *agc.Processor
	vad       *vadgate.Gate
	asrW      *asrwrap.Wrapper
	diar      *diarize.Diarizer
	textp     *textpost.Pipeline
	rel       *relay.Relay
	win       *window.Accumulator
	workflow  *analysis.Workflow
	answerGen *answer.Generator

	persister atomic.Pointer[persist.Persister]

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an idle Controller. Call [Controller.Start] to begin a
// session.
func New(deps Deps) *Controller {
	return &Controller{deps: deps, state: types.StateIdle}
}

// roomIDPattern extracts a numeric Douyin room id from a live_url, e.g.
// "https://live.douyin.com/123456789".
var roomIDPattern = regexp.MustCompile(`(\d{6,})`)

func resolveRoomID(liveURL string) string {
	if m := roomIDPattern.FindString(liveURL); m != "" {
		return m
	}
	return liveURL
}

// douyinWSURLTemplate is a representative Douyin webcast push-stream
// websocket endpoint. The real wire format and signing scheme are
// explicitly out of scope (spec §9); this exists only so EventRelay has a
// concrete URL to dial.
const douyinWSURLTemplate = "wss://webcast3-ws-web-lf.douyin.com/webcast/im/push/v2/?room_id=%s&ttwid=%s&a_bogus=%s&signature=%s"

func buildRelayWSURL(roomID string, cred relay.Credential) string {
	return fmt.Sprintf(douyinWSURLTemplate, roomID, cred.TTWID, cred.ABogus, cred.Signature)
}

// Start begins a new session against liveURL, per spec §4.12's start
// sequence: (1) probe muxer availability, (2) resolve room id, (3)
// initialize C2-C6/C11, start C1, start C7, schedule the C8/C9 tick.
func (c *Controller) Start(ctx context.Context, liveURL string, cfg config.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != types.StateIdle {
		return fmt.Errorf("session: cannot start from state %q", c.state)
	}
	c.state = types.StateStarting

	roomID := cfg.Room.RoomID
	if roomID == "" {
		roomID = resolveRoomID(liveURL)
	}

	frameDurationSec := float64(cfg.Audio.FrameDurationMs) / 1000

	chunker := ingest.New(ingest.Config{
		FFmpegPath:    cfg.Audio.FFmpegPath,
		StreamURL:     cfg.Audio.StreamURL,
		SampleRate:    cfg.Audio.SampleRate,
		FrameDuration: time.Duration(cfg.Audio.FrameDurationMs) * time.Millisecond,
	})

	// The session-scoped context outlives this Start call; chunker and
	// relay background goroutines, and the tick loop, all run under it
	// until Stop cancels it.
	runCtx, cancel := context.WithCancel(context.Background())

	// Step 1: probe muxer availability. A failure here is fatal to start,
	// per ingest.Chunker.Start's synchronous exec.LookPath check.
	if err := chunker.Start(runCtx); err != nil {
		cancel()
		c.state = types.StateFailed
		c.lastError = err
		return fmt.Errorf("session: probe muxer: %w", err)
	}

	startedAt := time.Now()
	sessionID := fmt.Sprintf("session-%s-%s", roomID, startedAt.UTC().Format("20060102T150405Z"))

	agcProc := agc.New(agc.Config{
		Enabled:   true,
		TargetRMS: cfg.Audio.AGCTargetRMS,
		MaxGain:   cfg.Audio.AGCMaxGain,
	}, frameDurationSec)

	vad := vadgate.New(vadgate.Config{
		MinRMS:               cfg.VAD.RMSThreshold,
		MinSpeechSec:         cfg.VAD.MinSpeechSec,
		MinSilenceSec:        cfg.VAD.MinSilenceSec,
		HangoverSec:          float64(cfg.VAD.HangoverMs) / 1000,
		ForceFlushSec:        float64(cfg.VAD.MaxSegmentMs) / 1000,
		ForceFlushOverlapSec: cfg.VAD.ForceFlushOverlapSec,
		FrameDuration:        time.Duration(cfg.Audio.FrameDurationMs) * time.Millisecond,
	})

	asrW := asrwrap.New(c.deps.Recognizer, asrwrap.Config{}, startedAt)

	// Euclidean distance threshold equivalent to the configured cosine
	// similarity threshold, derived from ||a-b||^2 = 2(1-cos(a,b)) for the
	// unit-normalized embeddings diarize.extractEmbedding produces.
	diarThreshold := math.Sqrt(2 * (1 - cfg.Diarize.SimilarityThreshold))
	diar := diarize.New(diarize.Config{
		MaxSpeakers: cfg.Diarize.MaxGuestSpeakers + 1,
		EnrollSec:   cfg.Diarize.EnrollSec,
		WarmupSec:   cfg.Diarize.WarmupSec,
		Smooth:      cfg.Diarize.CentroidEMAAlpha,
		Threshold:   diarThreshold,
	})

	textp := textpost.New(
		textpost.WithMinChars(cfg.Text.MinChars),
		textpost.WithRepeatLimit(cfg.Text.RepeatLimit),
		textpost.WithNoiseFilterEnabled(!cfg.Text.NoiseFilterDisabled),
	)

	persistCfg := persist.Config{
		RootDir:       cfg.Persist.OutputDir,
		SaveAudio:     cfg.Persist.SaveAudio,
		FsyncInterval: cfg.Persist.FsyncInterval,
	}
	pstr, err := persist.New(persistCfg, roomID, startedAt, c.persistFailureCounter())
	if err != nil {
		chunker.Stop()
		cancel()
		c.state = types.StateFailed
		c.lastError = err
		return fmt.Errorf("session: init persister: %w", err)
	}
	c.persister.Store(pstr)

	win := window.New(cfg.Window.Duration.Seconds())

	workflow := analysis.New(c.deps.AnalysisLLM, analysis.Config{
		TimeoutSec:     cfg.Analysis.Timeout.Seconds(),
		PersonaRootDir: cfg.Analysis.PersonaPath,
	}, c.analysisSkippedCounter())

	answerGen := answer.New(c.deps.AnswerLLM)

	cred, err := c.deps.Credential.Sign(ctx, roomID)
	if err != nil {
		chunker.Stop()
		pstr.Close(ctx)
		c.persister.Store(nil)
		cancel()
		c.state = types.StateFailed
		c.lastError = err
		return fmt.Errorf("session: acquire room credentials: %w", err)
	}

	rel := relay.New(c.deps.Credential, c.deps.Decoder, relay.Config{
		WSURL:  buildRelayWSURL(roomID, cred),
		RoomID: roomID,
	})

	c.chunker = chunker
	c.agcProc = agcProc
	c.vad = vad
	c.asrW = asrW
	c.diar = diar
	c.textp = textp
	c.rel = rel
	c.win = win
	c.workflow = workflow
	c.answerGen = answerGen

	c.sessionID = sessionID
	c.roomID = roomID
	c.liveURL = liveURL
	c.mode = types.ModeStable
	c.startedAt = startedAt
	c.lastError = nil
	c.counters = types.SessionCounters{}
	c.windowSec = cfg.Window.Duration.Seconds()
	c.stopDrainSec = cfg.Session.StopDrainSec
	c.minSegmentSec = float64(cfg.VAD.MinSegmentMs) / 1000
	c.sampleRateHz = cfg.Audio.SampleRate
	c.advanced = AdvancedParams{}
	c.cancel = cancel

	rel.Start(runCtx)

	c.wg.Add(3)
	go c.audioPump(runCtx)
	go c.relayPump(runCtx)
	go c.tickLoop(runCtx, cfg.Window.TickInterval)

	if c.deps.SessionIndex != nil {
		if err := c.deps.SessionIndex.RecordSessionStart(ctx, sessionID, roomID, pstr.Dir(), startedAt); err != nil {
			slog.Warn("session: postgres session-start record failed", "error", err)
		}
	}

	c.state = types.StateRunning
	slog.Info("session started", "session_id", sessionID, "room_id", roomID, "live_url", liveURL)
	return nil
}

// Stop ends the active session, per spec §4.12's stop sequence: flush VAD
// with session_end, drain the ASR/diarize worker pool bounded by
// stop_drain_sec, close the persister, stop C1/C7.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != types.StateRunning {
		c.mu.Unlock()
		return fmt.Errorf("session: cannot stop from state %q", c.state)
	}
	c.state = types.StateStopping
	cancel := c.cancel
	sessionID := c.sessionID
	c.mu.Unlock()

	cancel()

	drained := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(time.Duration(c.stopDrainSec * float64(time.Second))):
		slog.Warn("session: stop_drain_sec exceeded, force-closing resources", "session_id", sessionID)
	}

	c.mu.Lock()
	chunker, rel, pstr := c.chunker, c.rel, c.persister.Load()
	c.mu.Unlock()

	if chunker != nil {
		chunker.Stop()
	}
	if rel != nil {
		rel.Stop()
	}

	var closeErr error
	if pstr != nil {
		closeErr = pstr.Close(ctx)
	}

	if c.deps.SessionIndex != nil {
		if err := c.deps.SessionIndex.RecordSessionEnd(ctx, sessionID, time.Now()); err != nil {
			slog.Warn("session: postgres session-end record failed", "error", err)
		}
	}

	c.mu.Lock()
	c.state = types.StateIdle
	c.chunker = nil
	c.rel = nil
	c.vad = nil
	c.agcProc = nil
	c.asrW = nil
	c.diar = nil
	c.textp = nil
	c.win = nil
	c.workflow = nil
	c.answerGen = nil
	c.cancel = nil
	c.mu.Unlock()
	c.persister.Store(nil)

	slog.Info("session stopped", "session_id", sessionID)
	return closeErr
}

// Status reports the Controller's current lifecycle state and counters,
// per spec §6's status() contract.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		State:     c.state,
		SessionID: c.sessionID,
		RoomID:    c.roomID,
		LiveURL:   c.liveURL,
		Mode:      c.mode,
		StartedAt: c.startedAt,
		Counters:  c.counters,
		Advanced:  c.advanced,
		LastCard:  c.lastCard,
	}
	if c.rel != nil {
		st.RelayState = c.rel.Status()
	}
	if c.lastError != nil {
		st.LastError = c.lastError.Error()
	}
	return st
}

// GenerateAnswers is the generate_answers on-demand RPC (spec §6), invoking
// AnswerScriptGenerator (C10) against the current window's transcript
// snippet and the latest analysis card's vibe/style_profile when the
// caller doesn't supply overrides.
func (c *Controller) GenerateAnswers(ctx context.Context, questions []string, transcriptSnippet, styleProfile string, vibe types.Vibe) answer.Result {
	c.mu.Lock()
	gen := c.answerGen
	if styleProfile == "" {
		styleProfile = c.lastCard.StyleProfile
	}
	if vibe.Level == "" {
		vibe = c.lastCard.Vibe
	}
	c.mu.Unlock()

	if gen == nil {
		return answer.Result{Scripts: []types.AnswerScript{}, Error: "session: no active session"}
	}
	return gen.Generate(ctx, questions, transcriptSnippet, styleProfile, vibe)
}

// UpdateAdvanced applies a partial update to the session's mutable advanced
// parameters, validated against the same ranges internal/config.Validate
// enforces. Values outside range are rejected wholesale (no partial
// application) with [ErrInvalidConfig], per spec §6.
func (c *Controller) UpdateAdvanced(delta AdvancedParams) error {
	if err := delta.validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.advanced = c.advanced.merge(delta)

	if c.agcProc != nil && (delta.AGCEnabled != nil || delta.AGCTargetRMS != nil || delta.AGCMaxGain != nil) {
		enabled := c.agcProc.Enabled()
		if c.advanced.AGCEnabled != nil {
			enabled = *c.advanced.AGCEnabled
		}
		target, maxGain := 0.0, 0.0
		if c.advanced.AGCTargetRMS != nil {
			target = *c.advanced.AGCTargetRMS
		}
		if c.advanced.AGCMaxGain != nil {
			maxGain = *c.advanced.AGCMaxGain
		}
		c.agcProc.SetParams(enabled, target, maxGain)
	}

	if c.vad != nil && (delta.VADMinRMS != nil || delta.VADMinSpeechSec != nil || delta.VADMinSilenceSec != nil || delta.VADHangoverSec != nil || delta.VADForceFlushSec != nil || delta.VADForceFlushOverlapSec != nil) {
		var minRMS, minSpeech, minSilence, hangover, forceFlush, overlap float64
		if delta.VADMinRMS != nil {
			minRMS = *delta.VADMinRMS
		}
		if delta.VADMinSpeechSec != nil {
			minSpeech = *delta.VADMinSpeechSec
		}
		if delta.VADMinSilenceSec != nil {
			minSilence = *delta.VADMinSilenceSec
		}
		if delta.VADHangoverSec != nil {
			hangover = *delta.VADHangoverSec
		}
		if delta.VADForceFlushSec != nil {
			forceFlush = *delta.VADForceFlushSec
		}
		if delta.VADForceFlushOverlapSec != nil {
			overlap = *delta.VADForceFlushOverlapSec
		}
		c.vad.SetParams(minRMS, minSpeech, minSilence, hangover, forceFlush, overlap)
	}

	if c.diar != nil && delta.MaxGuestSpeakers != nil {
		c.diar.SetMaxSpeakers(*delta.MaxGuestSpeakers + 1)
	}

	return nil
}

func (c *Controller) persistFailureCounter() persist.FailureCounter {
	return func() {
		c.mu.Lock()
		c.counters.FailedTranscriptions++
		c.mu.Unlock()
		if c.deps.Metrics != nil {
			c.deps.Metrics.PersistFailures.Add(context.Background(), 1)
		}
	}
}

func (c *Controller) analysisSkippedCounter() analysis.SkippedCounter {
	return func() {
		if c.deps.Metrics != nil {
			c.deps.Metrics.AnalysisSkipped.Add(context.Background(), 1)
		}
	}
}

// workerPoolSize bounds CPU-bound ASR/diarizer dispatch, per spec §5.
func workerPoolSize() int {
	n := runtime.NumCPU()
	if n > 2 {
		return 2
	}
	if n < 1 {
		return 1
	}
	return n
}

// audioPump drives C1's frame channel through AGC -> VAD -> (ASR ->
// TextPostprocess -> Diarizer -> persist/window), dispatching the
// CPU-bound per-segment work onto a worker pool of at most workerPoolSize()
// goroutines. While every worker is busy, dispatching the next completed
// segment waits for a free worker, and frame ingestion waits with it. AGC
// and VAD calls run under c.mu, which UpdateAdvanced holds while changing
// their parameters.
func (c *Controller) audioPump(ctx context.Context) {
	defer c.wg.Done()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerPoolSize())

	var lastFrame types.AudioFrame
	for frame := range c.chunker.Frames() {
		lastFrame = frame
		c.mu.Lock()
		processed := c.agcProc.Process(frame)
		gain := c.agcProc.Gain()
		seg, ok := c.vad.Push(processed)
		c.mu.Unlock()
		if c.deps.Metrics != nil {
			c.deps.Metrics.AGCGain.Record(ctx, gain)
		}

		if ok {
			g.Go(func() error {
				c.handleSegment(gctx, seg)
				return nil
			})
		}
	}

	c.mu.Lock()
	seg, ok := c.vad.Flush(lastFrame)
	c.mu.Unlock()
	if ok {
		g.Go(func() error {
			c.handleSegment(ctx, seg)
			return nil
		})
	}
	_ = g.Wait()
}

// handleSegment runs ASRWrapper, TextPostprocess, and Diarizer over one
// completed SpeechSegment, in that order, then fans the resulting
// Transcript out to WindowAccumulator and ArtifactPersister.
func (c *Controller) handleSegment(ctx context.Context, seg types.SpeechSegment) {
	if c.minSegmentSec > 0 && seg.Duration() < c.minSegmentSec {
		return
	}

	if pstr := c.persister.Load(); pstr != nil {
		pstr.WriteSegment(seg, c.sampleRate())
	}

	t, ok, err := c.asrW.Transcribe(ctx, seg, c.sampleRate())
	c.mu.Lock()
	c.counters.TotalAudioChunks++
	c.mu.Unlock()
	if err != nil {
		if c.deps.Metrics != nil {
			c.deps.Metrics.RecordASRFailure(ctx, err.Error())
		}
		return
	}
	if !ok {
		return
	}

	cleaned, keep := c.textp.Apply(t.Text)
	if !keep {
		return
	}
	t.Text = cleaned

	sr := c.sampleRate()
	c.mu.Lock()
	speaker, debug := c.diar.Assign(seg, sr)
	c.mu.Unlock()
	t.Speaker = speaker
	t.SpeakerDebug = debug
	t.RoomID = c.roomIDSnapshot()
	t.SessionID = c.sessionIDSnapshot()

	successful, _ := c.asrW.Counts()
	c.mu.Lock()
	c.counters.SuccessfulTranscriptions = successful
	c.counters.AverageConfidence = c.asrW.MeanConfidence()
	c.mu.Unlock()

	c.win.AddTranscript(t)
	if pstr := c.persister.Load(); pstr != nil {
		pstr.WriteTranscript(t)
	}
}

// relayPump forwards EventRelay's decoded ChatEvents into
// WindowAccumulator and ArtifactPersister.
func (c *Controller) relayPump(ctx context.Context) {
	defer c.wg.Done()
	for ev := range c.rel.Events() {
		ev.RoomID = c.roomIDSnapshot()
		c.win.AddEvent(ev)
		if pstr := c.persister.Load(); pstr != nil {
			pstr.WriteEvent(ev)
		}
		if c.deps.Metrics != nil {
			c.deps.Metrics.RecordRelayEvent(ctx, string(ev.Kind))
		}
	}
}

// tickLoop runs AnalysisWorkflow once per window.tick_interval over the
// current WindowSnapshot, per spec §4.12 step 3's "schedule C8 tick".
func (c *Controller) tickLoop(ctx context.Context, interval time.Duration) {
	defer c.wg.Done()
	if interval <= 0 {
		interval = time.Duration(c.windowSec * float64(time.Second))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := c.win.Snapshot(c.windowSec)
			out, err := c.workflow.Run(ctx, c.roomIDSnapshot(), snapshot)
			if err != nil {
				slog.Debug("session: analysis tick skipped", "error", err)
				continue
			}
			c.mu.Lock()
			c.lastCard = out.Card
			c.mu.Unlock()
			if c.deps.SessionIndex != nil {
				_ = c.deps.SessionIndex.RecordSummary(ctx, c.sessionIDSnapshot(),
					out.Card.AnalysisOverview, string(out.Card.AudienceSentiment.Label), out.Card.Confidence)
			}
		}
	}
}

func (c *Controller) sampleRate() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sampleRateHz == 0 {
		return 16000
	}
	return c.sampleRateHz
}

func (c *Controller) roomIDSnapshot() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

func (c *Controller) sessionIDSnapshot() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}
