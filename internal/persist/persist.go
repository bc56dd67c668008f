// Package persist implements ArtifactPersister (C11): three append-only
// sinks per session — transcripts.jsonl, events.jsonl, and an optional
// segments/ directory of WAV files — rooted at
// <root>/<room_id>/<YYYY-MM-DD>/. Writes are line-buffered and fsync'd on a
// fixed interval rather than per line. A write failure never aborts the
// session: it is logged and counted via a caller-supplied FailureCounter,
// following the same inversion-of-control used for
// internal/analysis.SkippedCounter so this package never imports
// internal/observe directly.
package persist

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/zitemo/livecards/pkg/types"
)

// FailureCounter is invoked once per failed write, so the caller can
// increment an observability counter (internal/observe's
// livecards.persist.failures) without this package importing that package.
type FailureCounter func()

// Config tunes the Persister.
type Config struct {
	// RootDir is the directory under which <room_id>/<date>/ trees are
	// created.
	RootDir string

	// SaveAudio enables writing SpeechSegment PCM to segments/<segment_id>.wav.
	// Default false.
	SaveAudio bool

	// FsyncInterval is how often buffered writes are flushed and fsync'd.
	// Default 5s.
	FsyncInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.FsyncInterval <= 0 {
		c.FsyncInterval = 5 * time.Second
	}
}

// Persister is the ArtifactPersister for one session. It owns its file
// handles; all other components pass copies of entries by value.
type Persister struct {
	cfg       Config
	dir       string
	onFailure FailureCounter

	transcripts *jsonlWriter
	events      *jsonlWriter
}

// New opens (or creates) the session directory
// <root>/<room_id>/<startedAt formatted as YYYY-MM-DD>/ and its two JSONL
// sinks.
func New(cfg Config, roomID string, startedAt time.Time, onFailure FailureCounter) (*Persister, error) {
	cfg.applyDefaults()
	if cfg.RootDir == "" {
		return nil, fmt.Errorf("persist: RootDir must be set")
	}

	dir := filepath.Join(cfg.RootDir, roomID, startedAt.Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persist: create session dir: %w", err)
	}
	if cfg.SaveAudio {
		if err := os.MkdirAll(filepath.Join(dir, "segments"), 0o755); err != nil {
			return nil, fmt.Errorf("persist: create segments dir: %w", err)
		}
	}

	transcripts, err := newJSONLWriter(filepath.Join(dir, "transcripts.jsonl"), cfg.FsyncInterval)
	if err != nil {
		return nil, err
	}
	events, err := newJSONLWriter(filepath.Join(dir, "events.jsonl"), cfg.FsyncInterval)
	if err != nil {
		transcripts.Close()
		return nil, err
	}

	return &Persister{
		cfg:         cfg,
		dir:         dir,
		onFailure:   onFailure,
		transcripts: transcripts,
		events:      events,
	}, nil
}

// WriteTranscript appends t to transcripts.jsonl. A write failure is
// logged and counted, never returned — the session continues per spec.
func (p *Persister) WriteTranscript(t types.Transcript) {
	if err := p.transcripts.Write(t); err != nil {
		p.fail("write transcript", err)
	}
}

// WriteEvent appends e to events.jsonl. A write failure is logged and
// counted, never returned.
func (p *Persister) WriteEvent(e types.ChatEvent) {
	if err := p.events.Write(e); err != nil {
		p.fail("write event", err)
	}
}

// WriteSegment writes seg's PCM as a WAV file under segments/, if
// SaveAudio is enabled. A no-op otherwise.
func (p *Persister) WriteSegment(seg types.SpeechSegment, sampleRate int) {
	if !p.cfg.SaveAudio {
		return
	}
	path := filepath.Join(p.dir, "segments", seg.SegmentID+".wav")
	if err := writeWAV(path, seg.PCM, sampleRate); err != nil {
		p.fail("write segment", err)
	}
}

// Dir returns the session's artifact directory,
// <root>/<room_id>/<YYYY-MM-DD>/, for callers that need to record it
// alongside session metadata (e.g. the optional Postgres session index).
func (p *Persister) Dir() string {
	return p.dir
}

// TranscriptCount returns the number of transcript lines successfully
// buffered so far, used to validate the
// count(lines)==successful_transcriptions invariant in tests.
func (p *Persister) TranscriptCount() int64 {
	return p.transcripts.Lines()
}

func (p *Persister) fail(op string, err error) {
	slog.Warn("persist: write failed", "op", op, "error", err)
	if p.onFailure != nil {
		p.onFailure()
	}
}

// Close flushes and closes both JSONL sinks. Called during SessionController
// stop, after the ASR queue has drained.
func (p *Persister) Close(_ context.Context) error {
	errT := p.transcripts.Close()
	errE := p.events.Close()
	if errT != nil {
		return errT
	}
	return errE
}
