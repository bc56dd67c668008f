// Package types defines the shared data model used across all livecards
// packages: audio frames, speech segments, transcripts, chat events, window
// snapshots, and LLM-produced analysis artifacts.
//
// These types form the lingua franca between the ingest, ASR, diarization,
// relay, window, and analysis packages. Cross-cutting structures live here to
// avoid circular imports; each package is still free to define narrower
// request/response types of its own.
package types

import (
	"strconv"
	"time"
)

// AudioFrame is one fixed-duration chunk of 16kHz mono PCM16 audio pulled
// from the live stream muxer.
type AudioFrame struct {
	// Seq is a monotonically increasing frame counter starting at 0.
	Seq int64

	// PCM is little-endian PCM16 mono audio, length 2*SampleRate*Duration.
	PCM []byte

	// SampleRate is the frame's sample rate in Hz (16000 for the ingest pipeline).
	SampleRate int

	// CapturedAt is seconds since session start, equal to Seq*Duration for a
	// steady stream.
	CapturedAt float64

	// RMS is the root-mean-square amplitude of PCM, in the range [0, 1].
	RMS float64
}

// FlushReason classifies why a SpeechSegment was closed out.
type FlushReason string

const (
	FlushNatural     FlushReason = "natural"
	FlushHangover    FlushReason = "hangover"
	FlushForce       FlushReason = "force_flush"
	FlushSessionEnd  FlushReason = "session_end"
)

// SpeechSegment is a contiguous span of speech between VAD-detected
// boundaries, ready for ASR.
type SpeechSegment struct {
	SegmentID    string
	StartTS      float64
	EndTS        float64
	PCM          []byte
	VoicedRatio  float64
	FlushReason  FlushReason
}

// Duration returns EndTS - StartTS.
func (s SpeechSegment) Duration() float64 {
	return s.EndTS - s.StartTS
}

// Speaker identifies the diarized speaker label for a transcript.
type Speaker string

const (
	SpeakerHost    Speaker = "host"
	SpeakerUnknown Speaker = "unknown"
)

// GuestSpeaker formats the label for the k-th guest speaker (k >= 2).
func GuestSpeaker(k int) Speaker {
	if k <= 1 {
		return "guest"
	}
	return Speaker("guest_" + strconv.Itoa(k))
}

// WordTiming is a single word with timing relative to the segment start.
type WordTiming struct {
	Word  string
	Start float64
	End   float64
}

// Transcript is the ASR+post-processing output bound to one SpeechSegment.
type Transcript struct {
	SegmentID    string
	Text         string
	Confidence   float64
	Words        []WordTiming
	IsFinal      bool
	Speaker      Speaker
	SpeakerDebug map[string]float64
	RoomID       string
	SessionID    string
	Timestamp    time.Time
}

// ChatEventKind enumerates the Douyin live-room event types.
type ChatEventKind string

const (
	EventChat            ChatEventKind = "chat"
	EventGift            ChatEventKind = "gift"
	EventLike            ChatEventKind = "like"
	EventMemberEnter     ChatEventKind = "member_enter"
	EventFollow          ChatEventKind = "follow"
	EventRoomStats       ChatEventKind = "room_stats"
	EventHostLiveStatus  ChatEventKind = "host_live_status"
)

// ChatEvent is one decoded Douyin live message, normalized across kinds.
type ChatEvent struct {
	EventID   string
	Kind      ChatEventKind
	UserID    string
	UserName  string
	Content   string
	Payload   map[string]any
	ServerTS  time.Time
	IngestTS  time.Time
	RoomID    string
}

// WindowStats are the derived aggregate statistics for a WindowSnapshot.
type WindowStats struct {
	DMPerMin       float64
	GiftCount      int
	GiftTotalPrice int64
	UniqueUsers    int
	QuestionCount  int
}

// WindowSnapshot is a point-in-time view of the last W seconds of transcripts
// and events, handed to the analysis workflow on each tick.
type WindowSnapshot struct {
	WindowID    string
	StartTS     time.Time
	EndTS       time.Time
	Transcripts []Transcript
	Events      []ChatEvent
	Stats       WindowStats
}

// SentimentLabel is the coarse audience-mood classification used by
// AnalysisCard.AudienceSentiment.
type SentimentLabel string

const (
	SentimentCold    SentimentLabel = "冷"
	SentimentSteady  SentimentLabel = "平稳"
	SentimentHot     SentimentLabel = "热"
)

// AudienceSentiment reports the overall mood signal for a window.
type AudienceSentiment struct {
	Label   SentimentLabel `json:"label"`
	Signals []string       `json:"signals"`
}

// AnalysisCard is the LLM-produced structured summary of one window.
type AnalysisCard struct {
	AnalysisOverview     string            `json:"analysis_overview"`
	AudienceSentiment    AudienceSentiment `json:"audience_sentiment"`
	EngagementHighlights []string          `json:"engagement_highlights"`
	Risks                []string          `json:"risks"`
	NextActions          []string          `json:"next_actions"`
	Confidence           float64           `json:"confidence"`

	// Orchestrator-filled fields, not requested from the LLM directly.
	TopicCandidates []TopicCandidate `json:"topic_candidates,omitempty"`
	Vibe            Vibe             `json:"vibe,omitempty"`
	StyleProfile    string           `json:"style_profile,omitempty"`
	AnalysisFocus   string           `json:"analysis_focus,omitempty"`
	Timestamp       time.Time        `json:"timestamp,omitempty"`
}

// TopicCandidate is one term-frequency-ranked topic extracted from a window.
type TopicCandidate struct {
	Topic      string  `json:"topic"`
	Confidence float64 `json:"confidence"`
}

// VibeLevel is the MoodEstimator's coarse atmosphere classification.
type VibeLevel string

const (
	VibeQuiet   VibeLevel = "冷清"
	VibeSteady  VibeLevel = "平稳"
	VibeWarm    VibeLevel = "热烈"
	VibeOnFire  VibeLevel = "火爆"
)

// Vibe is the MoodEstimator output for one tick.
type Vibe struct {
	Level  VibeLevel `json:"level"`
	Score  float64   `json:"score"`
	Trends []string  `json:"trends"`
}

// AnswerScript is one LLM-generated host-voice reply script for a question.
type AnswerScript struct {
	Question string `json:"question"`
	Style    string `json:"style"`
	Line     string `json:"line"`
	Notes    string `json:"notes"`
}

// SessionMode controls latency/quality tradeoffs for ASR and analysis.
type SessionMode string

const (
	ModeFast   SessionMode = "fast"
	ModeStable SessionMode = "stable"
)

// RunState enumerates the SessionController lifecycle states.
type RunState string

const (
	StateIdle     RunState = "idle"
	StateStarting RunState = "starting"
	StateRunning  RunState = "running"
	StateStopping RunState = "stopping"
	StateFailed   RunState = "failed"
)

// SessionCounters tracks running totals surfaced via status().
type SessionCounters struct {
	TotalAudioChunks        int64
	SuccessfulTranscriptions int64
	FailedTranscriptions    int64
	AverageConfidence       float64
}
