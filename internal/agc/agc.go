// Package agc implements AGC (C2): automatic gain control over a stream of
// AudioFrames using a rolling RMS estimate and a one-pole-smoothed
// multiplicative gain.
package agc

import (
	"encoding/binary"
	"math"

	"github.com/zitemo/livecards/pkg/types"
)

// Config tunes the gain-control algorithm. Zero values are replaced with the
// spec's documented defaults by [New].
type Config struct {
	// Enabled bypasses gain control entirely (gain pinned to 1.0) when false.
	Enabled bool

	// WindowSec is the rolling RMS window, in seconds of buffered frames.
	WindowSec float64

	// FrameDurationSec is the duration of one AudioFrame.
	FrameDurationSec float64

	TargetRMS float64
	MinGain   float64
	MaxGain   float64
	Floor     float64
	Alpha     float64 // one-pole smoothing factor
}

func (c *Config) applyDefaults() {
	if c.WindowSec == 0 {
		c.WindowSec = 3
	}
	if c.TargetRMS == 0 {
		c.TargetRMS = 0.08
	}
	if c.MinGain == 0 {
		c.MinGain = 0.5
	}
	if c.MaxGain == 0 {
		c.MaxGain = 4.0
	}
	if c.Floor == 0 {
		c.Floor = 0.005
	}
	if c.Alpha == 0 {
		c.Alpha = 0.1
	}
}

// Processor applies AGC to a sequence of AudioFrames. Not safe for
// concurrent use — create one per session.
type Processor struct {
	cfg Config

	rmsHistory []float64
	windowSize int
	gain       float64
}

// New constructs a Processor. frameDurationSec must match the duration of
// frames passed to [Processor.Process].
func New(cfg Config, frameDurationSec float64) *Processor {
	cfg.FrameDurationSec = frameDurationSec
	cfg.applyDefaults()

	windowSize := 1
	if frameDurationSec > 0 {
		windowSize = int(cfg.WindowSec / frameDurationSec)
		if windowSize < 1 {
			windowSize = 1
		}
	}

	return &Processor{
		cfg:        cfg,
		windowSize: windowSize,
		gain:       1.0,
	}
}

// Gain returns the current smoothed gain value.
func (p *Processor) Gain() float64 { return p.gain }

// Enabled reports whether gain control is currently active.
func (p *Processor) Enabled() bool { return p.cfg.Enabled }

// SetParams applies a live update_advanced change to the target RMS and max
// gain. Zero values leave the corresponding field unchanged. Not safe to
// call concurrently with Process — SessionController serializes both under
// its mutex.
func (p *Processor) SetParams(enabled bool, targetRMS, maxGain float64) {
	p.cfg.Enabled = enabled
	if targetRMS > 0 {
		p.cfg.TargetRMS = targetRMS
	}
	if maxGain > 0 {
		p.cfg.MaxGain = maxGain
	}
}

// Process adds frame.RMS to the rolling RMS history, recomputes the smoothed
// gain from it, applies that gain to a copy of frame.PCM, and returns the new
// frame with its RMS recomputed from the scaled samples.
func (p *Processor) Process(frame types.AudioFrame) types.AudioFrame {
	if !p.cfg.Enabled {
		p.gain = 1.0
		return frame
	}

	rms := frame.RMS
	p.rmsHistory = append(p.rmsHistory, rms)
	if len(p.rmsHistory) > p.windowSize {
		p.rmsHistory = p.rmsHistory[len(p.rmsHistory)-p.windowSize:]
	}

	avgRMS := average(p.rmsHistory)
	target := p.cfg.TargetRMS / math.Max(avgRMS, p.cfg.Floor)
	target = clamp(target, p.cfg.MinGain, p.cfg.MaxGain)

	// One-pole smoothing toward the new target gain.
	p.gain = p.gain + p.cfg.Alpha*(target-p.gain)

	out := types.AudioFrame{
		Seq:        frame.Seq,
		PCM:        applyGain(frame.PCM, p.gain),
		SampleRate: frame.SampleRate,
		CapturedAt: frame.CapturedAt,
	}
	out.RMS = computeRMS(out.PCM)
	return out
}

// applyGain multiplies each 16-bit little-endian sample by gain, saturating
// to the int16 range rather than wrapping on overflow.
func applyGain(pcm []byte, gain float64) []byte {
	out := make([]byte, len(pcm))
	n := len(pcm) / 2
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		scaled := float64(sample) * gain
		scaled = clamp(scaled, -32768, 32767)
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(int16(scaled)))
	}
	return out
}

func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sumSquares float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		v := float64(sample) / 32768.0
		sumSquares += v * v
	}
	return math.Sqrt(sumSquares / float64(n))
}

func average(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
