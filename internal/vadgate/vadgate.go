// Package vadgate implements VAD Gate (C3): a SILENCE/SPEECH/HANGOVER state
// machine that turns a stream of AGC-normalized AudioFrames into
// SpeechSegments, flushed on natural silence, a forced-flush duration cap,
// or session end.
package vadgate

import (
	"time"

	"github.com/google/uuid"

	"github.com/zitemo/livecards/pkg/types"
)

// State is a VAD gate state.
type State int

const (
	StateSilence State = iota
	StateSpeech
	StateHangover
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateSilence:
		return "SILENCE"
	case StateSpeech:
		return "SPEECH"
	case StateHangover:
		return "HANGOVER"
	default:
		return "UNKNOWN"
	}
}

// Config tunes the gate, per spec §4.3 parameter ranges.
type Config struct {
	MinRMS                float64       // 0.001–0.2
	MinSpeechSec          float64       // 0.2–2.5
	MinSilenceSec         float64       // 0.2–2.5
	HangoverSec           float64       // 0.1–1.5
	ForceFlushSec         float64       // 2.0–15.0
	ForceFlushOverlapSec  float64       // 0.0–1.5
	FrameDuration         time.Duration
}

func (c *Config) applyDefaults() {
	if c.MinRMS == 0 {
		c.MinRMS = 0.02
	}
	if c.MinSpeechSec == 0 {
		c.MinSpeechSec = 0.3
	}
	if c.MinSilenceSec == 0 {
		c.MinSilenceSec = 0.5
	}
	if c.HangoverSec == 0 {
		c.HangoverSec = 0.5
	}
	if c.ForceFlushSec == 0 {
		c.ForceFlushSec = 8.0
	}
	if c.FrameDuration == 0 {
		c.FrameDuration = 600 * time.Millisecond
	}
}

// Gate drives the state machine over a sequence of frames, producing
// SpeechSegments via Push. Not safe for concurrent use — one per session.
type Gate struct {
	cfg   Config
	state State

	cumulativeSpeechSec float64
	silenceSec          float64

	segStart      float64
	frames        []types.AudioFrame
	voicedFrames  int
	totalFrames   int
}

// New constructs a Gate.
func New(cfg Config) *Gate {
	cfg.applyDefaults()
	return &Gate{cfg: cfg, state: StateSilence}
}

// State returns the current gate state.
func (g *Gate) State() State { return g.state }

// SetParams applies a live update_advanced change to the gate's threshold
// parameters. Zero values leave the corresponding field unchanged. New
// thresholds apply from the next pushed frame; frames already accumulated in
// the in-progress segment are not re-evaluated. Not safe to call
// concurrently with Push/Flush — SessionController serializes both under its
// mutex.
func (g *Gate) SetParams(minRMS, minSpeechSec, minSilenceSec, hangoverSec, forceFlushSec, forceFlushOverlapSec float64) {
	if minRMS > 0 {
		g.cfg.MinRMS = minRMS
	}
	if minSpeechSec > 0 {
		g.cfg.MinSpeechSec = minSpeechSec
	}
	if minSilenceSec > 0 {
		g.cfg.MinSilenceSec = minSilenceSec
	}
	if hangoverSec > 0 {
		g.cfg.HangoverSec = hangoverSec
	}
	if forceFlushSec > 0 {
		g.cfg.ForceFlushSec = forceFlushSec
	}
	if forceFlushOverlapSec > 0 {
		g.cfg.ForceFlushOverlapSec = forceFlushOverlapSec
	}
}

// Push feeds one AGC-normalized frame into the gate. It returns a completed
// SpeechSegment whenever a flush occurs (natural, forced, or session-end via
// [Gate.Flush]), or ok=false if no segment was completed by this frame.
func (g *Gate) Push(frame types.AudioFrame) (seg types.SpeechSegment, ok bool) {
	voiced := frame.RMS >= g.cfg.MinRMS

	switch g.state {
	case StateSilence:
		if voiced {
			if len(g.frames) == 0 {
				g.startSegment(frame)
			}
			g.cumulativeSpeechSec += g.cfg.FrameDuration.Seconds()
			g.appendFrame(frame, true)
			if g.cumulativeSpeechSec >= g.cfg.MinSpeechSec {
				g.state = StateSpeech
			}
			// Below min_speech_sec cumulative threshold the segment stays
			// open but the state remains SILENCE until enough voiced frames
			// accumulate — a brief blip does not yet commit to SPEECH.
		}

	case StateSpeech:
		g.appendFrame(frame, voiced)
		if voiced {
			g.silenceSec = 0
		} else {
			g.state = StateHangover
			g.silenceSec = g.cfg.FrameDuration.Seconds()
		}
		if seg, ok = g.checkForceFlush(frame); ok {
			return seg, true
		}

	case StateHangover:
		g.appendFrame(frame, voiced)
		if voiced {
			g.state = StateSpeech
			g.silenceSec = 0
		} else {
			g.silenceSec += g.cfg.FrameDuration.Seconds()
			if g.silenceSec >= g.cfg.MinSilenceSec {
				return g.flush(frame, types.FlushNatural)
			}
		}
		if seg, ok = g.checkForceFlush(frame); ok {
			return seg, true
		}
	}

	return types.SpeechSegment{}, false
}

// checkForceFlush flushes the current segment if it has reached
// ForceFlushSec, per spec §4.3's "SPEECH|HANGOVER → forced flush" rule.
func (g *Gate) checkForceFlush(frame types.AudioFrame) (types.SpeechSegment, bool) {
	if g.state == StateSilence {
		return types.SpeechSegment{}, false
	}
	duration := frame.CapturedAt + g.cfg.FrameDuration.Seconds() - g.segStart
	if duration >= g.cfg.ForceFlushSec {
		return g.flush(frame, types.FlushForce)
	}
	return types.SpeechSegment{}, false
}

// Flush forces emission of the current in-progress segment, for session end.
// Returns ok=false if no segment is in progress.
func (g *Gate) Flush(lastFrame types.AudioFrame) (types.SpeechSegment, bool) {
	if len(g.frames) == 0 {
		return types.SpeechSegment{}, false
	}
	return g.flush(lastFrame, types.FlushSessionEnd)
}

func (g *Gate) startSegment(frame types.AudioFrame) {
	g.segStart = frame.CapturedAt
	g.frames = nil
	g.voicedFrames = 0
	g.totalFrames = 0
}

func (g *Gate) appendFrame(frame types.AudioFrame, voiced bool) {
	g.frames = append(g.frames, frame)
	g.totalFrames++
	if voiced {
		g.voicedFrames++
	}
}

// flush emits the accumulated frames as a SpeechSegment and resets gate
// state, carrying forward ForceFlushOverlapSec worth of trailing frames when
// reason is force-flush so boundary words are not lost.
func (g *Gate) flush(frame types.AudioFrame, reason types.FlushReason) (types.SpeechSegment, bool) {
	if len(g.frames) == 0 {
		g.resetToSilence()
		return types.SpeechSegment{}, false
	}

	endTS := frame.CapturedAt + g.cfg.FrameDuration.Seconds()
	pcm := concatPCM(g.frames)
	voicedRatio := 0.0
	if g.totalFrames > 0 {
		voicedRatio = float64(g.voicedFrames) / float64(g.totalFrames)
	}

	seg := types.SpeechSegment{
		SegmentID:   uuid.NewString(),
		StartTS:     g.segStart,
		EndTS:       endTS,
		PCM:         pcm,
		VoicedRatio: voicedRatio,
		FlushReason: reason,
	}

	if reason == types.FlushForce && g.cfg.ForceFlushOverlapSec > 0 {
		g.carryOverlap(frame)
	} else {
		g.resetToSilence()
	}

	return seg, true
}

// carryOverlap keeps the trailing ForceFlushOverlapSec of frames as the
// start of the next segment and stays in SPEECH.
func (g *Gate) carryOverlap(frame types.AudioFrame) {
	overlapFrames := int(g.cfg.ForceFlushOverlapSec / g.cfg.FrameDuration.Seconds())
	if overlapFrames > len(g.frames) {
		overlapFrames = len(g.frames)
	}
	tail := g.frames[len(g.frames)-overlapFrames:]

	g.frames = append([]types.AudioFrame{}, tail...)
	g.voicedFrames = 0
	g.totalFrames = 0
	for _, f := range g.frames {
		g.totalFrames++
		if f.RMS >= g.cfg.MinRMS {
			g.voicedFrames++
		}
	}
	if len(tail) > 0 {
		g.segStart = tail[0].CapturedAt
	} else {
		g.segStart = frame.CapturedAt
	}
	g.state = StateSpeech
	g.silenceSec = 0
}

func (g *Gate) resetToSilence() {
	g.state = StateSilence
	g.cumulativeSpeechSec = 0
	g.silenceSec = 0
	g.frames = nil
	g.voicedFrames = 0
	g.totalFrames = 0
}

func concatPCM(frames []types.AudioFrame) []byte {
	total := 0
	for _, f := range frames {
		total += len(f.PCM)
	}
	out := make([]byte, 0, total)
	for _, f := range frames {
		out = append(out, f.PCM...)
	}
	return out
}
