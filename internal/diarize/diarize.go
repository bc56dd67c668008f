// Package diarize implements Diarizer (C5): online, incremental speaker
// clustering over PCM16 SpeechSegments. It extracts a small spectral-energy
// embedding per segment and assigns speakers via nearest-centroid matching,
// enrolling the host once enough voiced audio has accumulated.
package diarize

import (
	"math"

	"github.com/zitemo/livecards/pkg/types"
)

// Config tunes the diarizer, per spec §4.5 parameter ranges.
type Config struct {
	MaxSpeakers int     // 1–4, default 2
	EnrollSec   float64 // 1–20, default 4
	WarmupSec   float64 // derived: 0.75 * EnrollSec unless set explicitly
	Smooth      float64 // 0.05–0.6, default 0.2
	Threshold   float64 // max distance to assign to an existing centroid
}

func (c *Config) applyDefaults() {
	if c.MaxSpeakers == 0 {
		c.MaxSpeakers = 2
	}
	if c.EnrollSec == 0 {
		c.EnrollSec = 4
	}
	if c.WarmupSec == 0 {
		c.WarmupSec = 0.75 * c.EnrollSec
	}
	if c.Smooth == 0 {
		c.Smooth = 0.2
	}
	if c.Threshold == 0 {
		c.Threshold = 0.35
	}
}

// embeddingDim is the fixed length of the spectral-energy embedding vector.
const embeddingDim = 8

// candidate is a not-yet-enrolled centroid accumulated during warm-up.
type candidate struct {
	centroid     []float64
	voicedDurSec float64
	creationSeq  int
}

// Diarizer performs online speaker clustering. Not safe for concurrent use —
// create one per session.
type Diarizer struct {
	cfg Config

	totalVoicedSec float64
	enrolled       bool
	hostLabel      types.Speaker

	candidates []*candidate
	nextSeq    int

	// centroids holds the enrolled speaker set once warm-up has completed:
	// index 0 is always host; subsequent indices are guest_2, guest_3, ...
	centroids []*candidate
	labels    []types.Speaker
}

// New constructs a Diarizer.
func New(cfg Config) *Diarizer {
	cfg.applyDefaults()
	return &Diarizer{cfg: cfg, hostLabel: types.SpeakerHost}
}

// MaxSpeakers returns the configured cap on concurrently tracked speakers.
func (d *Diarizer) MaxSpeakers() int { return d.cfg.MaxSpeakers }

// SetMaxSpeakers applies a live update_advanced change to the speaker cap.
// Already-enrolled centroids are unaffected; the new cap governs future
// enrollment only. Not safe to call concurrently with Assign —
// SessionController serializes both under its mutex.
func (d *Diarizer) SetMaxSpeakers(n int) {
	if n > 0 {
		d.cfg.MaxSpeakers = n
	}
}

// Assign computes an embedding for seg and returns its diarized speaker
// label, plus a debug map from assigned-centroid-label to similarity score.
func (d *Diarizer) Assign(seg types.SpeechSegment, sampleRate int) (types.Speaker, map[string]float64) {
	embedding := extractEmbedding(seg.PCM, sampleRate)
	voicedDur := seg.Duration() * seg.VoicedRatio
	d.totalVoicedSec += voicedDur

	if !d.enrolled {
		d.accumulateCandidate(embedding, voicedDur)
		if d.totalVoicedSec >= d.cfg.EnrollSec {
			d.enroll()
		} else if d.totalVoicedSec < d.cfg.WarmupSec {
			return types.SpeakerUnknown, nil
		}
		// Between warmup_sec and enroll_sec: still unknown, per spec — only
		// at T >= enroll_sec does enrollment occur and labels become stable.
		if !d.enrolled {
			return types.SpeakerUnknown, nil
		}
	}

	return d.assignEnrolled(embedding)
}

// accumulateCandidate finds the nearest existing warm-up candidate within
// threshold and updates it by EMA, or creates a new one (capped at
// max_speakers).
func (d *Diarizer) accumulateCandidate(embedding []float64, voicedDur float64) {
	best := -1
	bestDist := math.Inf(1)
	for i, c := range d.candidates {
		dist := euclidean(embedding, c.centroid)
		if dist < bestDist {
			bestDist = dist
			best = i
		}
	}

	if best >= 0 && bestDist <= d.cfg.Threshold {
		d.candidates[best].centroid = ema(d.candidates[best].centroid, embedding, d.cfg.Smooth)
		d.candidates[best].voicedDurSec += voicedDur
		return
	}

	if len(d.candidates) < d.cfg.MaxSpeakers {
		d.candidates = append(d.candidates, &candidate{
			centroid:     append([]float64{}, embedding...),
			voicedDurSec: voicedDur,
			creationSeq:  d.nextSeq,
		})
		d.nextSeq++
		return
	}

	// At cap: fold into the nearest candidate anyway rather than discarding
	// the observation.
	if best >= 0 {
		d.candidates[best].centroid = ema(d.candidates[best].centroid, embedding, d.cfg.Smooth)
		d.candidates[best].voicedDurSec += voicedDur
	}
}

// enroll promotes the candidate with the most accumulated voiced duration
// to host; remaining candidates become guest_2, guest_3, ... in creation
// order, per spec §4.5.
func (d *Diarizer) enroll() {
	if len(d.candidates) == 0 {
		return
	}

	hostIdx := 0
	for i, c := range d.candidates {
		if c.voicedDurSec > d.candidates[hostIdx].voicedDurSec {
			hostIdx = i
		}
	}

	ordered := make([]*candidate, 0, len(d.candidates))
	ordered = append(ordered, d.candidates[hostIdx])
	for i, c := range d.candidates {
		if i != hostIdx {
			ordered = append(ordered, c)
		}
	}

	d.centroids = ordered
	d.labels = make([]types.Speaker, len(ordered))
	d.labels[0] = types.SpeakerHost
	guestNum := 2
	for i := 1; i < len(ordered); i++ {
		d.labels[i] = types.GuestSpeaker(guestNum)
		guestNum++
	}

	d.enrolled = true
}

// assignEnrolled matches embedding against enrolled centroids, creating a
// new guest centroid on demand up to max_speakers if no centroid is within
// threshold.
func (d *Diarizer) assignEnrolled(embedding []float64) (types.Speaker, map[string]float64) {
	debug := make(map[string]float64, len(d.centroids))
	best := -1
	bestDist := math.Inf(1)

	for i, c := range d.centroids {
		dist := euclidean(embedding, c.centroid)
		debug[string(d.labels[i])] = cosineSimilarity(embedding, c.centroid)
		if dist < bestDist {
			bestDist = dist
			best = i
		}
	}

	if best >= 0 && bestDist <= d.cfg.Threshold {
		d.centroids[best].centroid = ema(d.centroids[best].centroid, embedding, d.cfg.Smooth)
		return d.labels[best], debug
	}

	if len(d.centroids) < d.cfg.MaxSpeakers {
		label := types.GuestSpeaker(len(d.centroids) + 1)
		d.centroids = append(d.centroids, &candidate{centroid: append([]float64{}, embedding...)})
		d.labels = append(d.labels, label)
		debug[string(label)] = 1.0
		return label, debug
	}

	// At cap with no close match: assign to the nearest anyway.
	if best >= 0 {
		d.centroids[best].centroid = ema(d.centroids[best].centroid, embedding, d.cfg.Smooth)
		return d.labels[best], debug
	}
	return types.SpeakerUnknown, debug
}

func ema(prev, next []float64, smooth float64) []float64 {
	out := make([]float64, len(prev))
	for i := range prev {
		out[i] = prev[i] + smooth*(next[i]-prev[i])
	}
	return out
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func cosineSimilarity(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// extractEmbedding computes a fixed-length spectral-energy vector from PCM16
// mono audio: energy in embeddingDim log-spaced frequency bands via a
// Goertzel filter per band, plus zero-crossing rate as a timbre proxy. This
// approximates the MFCC-style embedding spec §4.5 calls for, without
// requiring a full FFT/DSP dependency.
func extractEmbedding(pcm []byte, sampleRate int) []float64 {
	samples := pcmToFloat64(pcm)
	if len(samples) == 0 || sampleRate == 0 {
		return make([]float64, embeddingDim)
	}

	bands := logSpacedBands(embeddingDim-1, 80, float64(sampleRate)/2)
	embedding := make([]float64, embeddingDim)
	for i, freq := range bands {
		embedding[i] = goertzelEnergy(samples, float64(sampleRate), freq)
	}
	embedding[embeddingDim-1] = zeroCrossingRate(samples)

	normalize(embedding)
	return embedding
}

func logSpacedBands(n int, lowHz, highHz float64) []float64 {
	bands := make([]float64, n)
	logLow, logHigh := math.Log(lowHz), math.Log(highHz)
	for i := 0; i < n; i++ {
		frac := float64(i) / float64(max(n-1, 1))
		bands[i] = math.Exp(logLow + frac*(logHigh-logLow))
	}
	return bands
}

// goertzelBlockSec is the block length goertzelEnergy analyses at a time;
// 25 ms blocks give bins about 40 Hz wide.
const goertzelBlockSec = 0.025

// goertzelEnergy computes the energy of samples around targetHz using the
// Goertzel algorithm, an O(n) alternative to a full FFT for computing a
// handful of frequency bins. It runs over consecutive goertzelBlockSec
// blocks and averages them (a trailing partial block is ignored), so the
// bin covers a band around targetHz rather than a single 1/duration-wide bin.
func goertzelEnergy(samples []float64, sampleRate, targetHz float64) float64 {
	n := int(sampleRate * goertzelBlockSec)
	if n < 2 || n > len(samples) {
		n = len(samples)
	}
	k := int(0.5 + float64(n)*targetHz/sampleRate)
	omega := 2 * math.Pi * float64(k) / float64(n)
	coeff := 2 * math.Cos(omega)

	var sum float64
	blocks := 0
	for start := 0; start+n <= len(samples); start += n {
		var s0, s1, s2 float64
		for _, x := range samples[start : start+n] {
			s0 = x + coeff*s1 - s2
			s2 = s1
			s1 = s0
		}
		power := s1*s1 + s2*s2 - coeff*s1*s2
		if power < 0 {
			power = 0
		}
		sum += math.Sqrt(power) / float64(n)
		blocks++
	}
	return sum / float64(blocks)
}

func zeroCrossingRate(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}

func normalize(v []float64) {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] /= norm
	}
}

func pcmToFloat64(pcm []byte) []float64 {
	n := len(pcm) / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		sample := int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
		out[i] = float64(sample) / 32768.0
	}
	return out
}
