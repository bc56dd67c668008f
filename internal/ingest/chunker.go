// Package ingest implements AudioChunker (C1): a lazy, infinite sequence of
// fixed-duration PCM16 mono AudioFrames read from an external ffmpeg muxer
// subprocess pulling the live-room's audio track.
package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"sync"
	"time"

	"github.com/zitemo/livecards/pkg/types"
)

// ErrMuxerUnavailable is returned when the ffmpeg binary is missing or exits
// immediately with a non-zero status. It is fatal to session start.
var ErrMuxerUnavailable = errors.New("ingest: muxer unavailable")

// Default backoff parameters for subprocess restart, per spec §4.1.
const (
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 15 * time.Second
	defaultMaxFailures    = 5
)

// Config configures a [Chunker].
type Config struct {
	// FFmpegPath is the ffmpeg binary path. Defaults to "ffmpeg" (resolved
	// via PATH).
	FFmpegPath string

	// StreamURL is the live-room pull-stream URL.
	StreamURL string

	// SampleRate is the PCM sample rate requested from ffmpeg, in Hz.
	SampleRate int

	// FrameDuration is the duration of each emitted AudioFrame.
	FrameDuration time.Duration
}

// Chunker implements C1 AudioChunker.
type Chunker struct {
	cfg Config

	mu      sync.Mutex
	cmd     *exec.Cmd
	stopped bool

	frames chan types.AudioFrame
	failed chan error
}

// New constructs a Chunker. The subprocess is not started until [Chunker.Start].
func New(cfg Config) *Chunker {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.FrameDuration <= 0 {
		cfg.FrameDuration = 600 * time.Millisecond
	}
	return &Chunker{
		cfg:    cfg,
		frames: make(chan types.AudioFrame, 32),
		failed: make(chan error, 1),
	}
}

// Frames returns the channel AudioFrames are emitted on.
func (c *Chunker) Frames() <-chan types.AudioFrame { return c.frames }

// Failed is signalled once with the terminal failure reason, after the
// retry budget is exhausted.
func (c *Chunker) Failed() <-chan error { return c.failed }

// frameBytes is the exact byte length of one PCM16 mono frame at the
// configured sample rate and frame duration.
func (c *Chunker) frameBytes() int {
	samples := int(float64(c.cfg.SampleRate) * c.cfg.FrameDuration.Seconds())
	return samples * 2
}

// Start launches the ffmpeg subprocess and begins emitting frames in a
// background goroutine. It probes muxer availability synchronously before
// returning, per SessionController's start sequence step 1.
func (c *Chunker) Start(ctx context.Context) error {
	if _, err := exec.LookPath(c.cfg.FFmpegPath); err != nil {
		return fmt.Errorf("%w: %s not found in PATH", ErrMuxerUnavailable, c.cfg.FFmpegPath)
	}

	go c.run(ctx)
	return nil
}

// Stop terminates the subprocess and stops frame emission. Safe to call
// multiple times.
func (c *Chunker) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
}

func (c *Chunker) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// run drives the restart-with-backoff loop around readStream.
func (c *Chunker) run(ctx context.Context) {
	backoff := defaultInitialBackoff
	consecutiveFailures := 0
	var seq int64

	for {
		if c.isStopped() || ctx.Err() != nil {
			close(c.frames)
			return
		}

		n, err := c.readStream(ctx, &seq)
		if c.isStopped() || ctx.Err() != nil {
			close(c.frames)
			return
		}
		if err == nil {
			// Clean EOF with frames read resets the failure streak; an
			// ffmpeg process that produced output before exiting is not
			// the same failure mode as one that never started.
			if n > 0 {
				consecutiveFailures = 0
				backoff = defaultInitialBackoff
			} else {
				consecutiveFailures++
			}
		} else {
			consecutiveFailures++
			slog.Warn("ingest: muxer subprocess error", "error", err, "consecutive_failures", consecutiveFailures)
		}

		if consecutiveFailures >= defaultMaxFailures {
			c.failed <- fmt.Errorf("ingest: muxer failed %d consecutive times: %w", consecutiveFailures, err)
			close(c.frames)
			return
		}

		select {
		case <-ctx.Done():
			close(c.frames)
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > defaultMaxBackoff {
			backoff = defaultMaxBackoff
		}
	}
}

// readStream starts ffmpeg, reads frames until EOF or error, and returns the
// number of frames successfully read during this invocation.
func (c *Chunker) readStream(ctx context.Context, seq *int64) (int, error) {
	args := []string{
		"-loglevel", "error",
		"-i", c.cfg.StreamURL,
		"-f", "s16le",
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", c.cfg.SampleRate),
		"-",
	}
	cmd := exec.CommandContext(ctx, c.cfg.FFmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("ingest: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMuxerUnavailable, err)
	}

	c.mu.Lock()
	c.cmd = cmd
	c.mu.Unlock()

	frameLen := c.frameBytes()
	r := bufio.NewReaderSize(stdout, frameLen*2)

	sessionStart := time.Now()
	framesRead := 0

	for {
		buf := make([]byte, frameLen)
		_, err := io.ReadFull(r, buf)
		if err != nil {
			_ = cmd.Wait()
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				// Partial frames at stream end are discarded per spec.
				return framesRead, nil
			}
			return framesRead, fmt.Errorf("ingest: read frame: %w", err)
		}

		frame := types.AudioFrame{
			Seq:        *seq,
			PCM:        buf,
			SampleRate: c.cfg.SampleRate,
			CapturedAt: time.Since(sessionStart).Seconds(),
			RMS:        computeRMS(buf),
		}
		*seq++
		framesRead++

		select {
		case c.frames <- frame:
		case <-ctx.Done():
			_ = cmd.Process.Kill()
			return framesRead, nil
		}
	}
}

// computeRMS returns the root-mean-square energy of 16-bit little-endian PCM
// samples, normalised to [0, 1].
func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sumSquares float64
	for i := 0; i < n; i++ {
		sample := int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
		v := float64(sample) / 32768.0
		sumSquares += v * v
	}
	return math.Sqrt(sumSquares / float64(n))
}
