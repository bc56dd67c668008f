// Package textpost implements TextPostprocess (C6): a deterministic,
// idempotent four-stage pipeline applied to raw ASR output before a
// Transcript is accepted. Stages run in order: whitespace/punctuation
// normalization, vocabulary substitution, filler-character collapse, and a
// short-text noise filter that drops the segment entirely.
package textpost

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	defaultRepeatLimit = 3
	defaultMinChars    = 3
)

// chinesePunctuationReplacer maps full-width/Chinese punctuation to
// canonical ASCII-adjacent forms. Whitespace runs are collapsed separately,
// in normalize.
var chinesePunctuationReplacer = strings.NewReplacer(
	"，", ",",
	"。", ".",
	"！", "!",
	"？", "?",
	"、", ",",
	"；", ";",
	"：", ":",
	"“", "\"",
	"”", "\"",
	"‘", "'",
	"’", "'",
	"（", "(",
	"）", ")",
	"…", "...",
)

// Pipeline applies the ordered post-processing stages to raw ASR text.
// Implementations must be safe for concurrent use; [Pipeline] itself has no
// mutable state once constructed, so a single instance may be shared.
type Pipeline struct {
	vocabulary         map[string]string // lowercase(misheard) -> canonical, longest-match first
	sortedKeys         []string
	repeatLimit        int
	minChars           int
	fillerSet          map[rune]bool
	noiseFilterEnabled bool
}

// Option is a functional option for configuring a [Pipeline].
type Option func(*Pipeline)

// WithVocabulary attaches a misheard-to-canonical substitution table. Keys
// are matched case-insensitively and longest-match-first.
func WithVocabulary(table map[string]string) Option {
	return func(p *Pipeline) {
		p.vocabulary = make(map[string]string, len(table))
		for k, v := range table {
			p.vocabulary[strings.ToLower(k)] = v
		}
		p.sortedKeys = sortedByLengthDesc(p.vocabulary)
	}
}

// WithRepeatLimit sets the minimum run length (2–10) at which a repeated
// character is collapsed or discarded. Default: 3.
func WithRepeatLimit(limit int) Option {
	return func(p *Pipeline) {
		p.repeatLimit = limit
	}
}

// WithMinChars sets the minimum text length (1–12) below which an
// all-filler-character segment is dropped. Default: 3.
func WithMinChars(n int) Option {
	return func(p *Pipeline) {
		p.minChars = n
	}
}

// WithNoiseFilterEnabled toggles stage 4 (short-text noise filter) on or
// off. Disabling it leaves vocabulary substitution and filler-run collapse
// unaffected; only the drop-as-noise decision is skipped. Default: enabled.
func WithNoiseFilterEnabled(enabled bool) Option {
	return func(p *Pipeline) {
		p.noiseFilterEnabled = enabled
	}
}

// WithFillerSet overrides the default filler-character set used by the
// short-text noise-filter stage. The run-collapse stage does not consult it:
// it collapses runs of any character.
func WithFillerSet(fillers []rune) Option {
	return func(p *Pipeline) {
		set := make(map[rune]bool, len(fillers))
		for _, r := range fillers {
			set[r] = true
		}
		p.fillerSet = set
	}
}

// New constructs a Pipeline with spec defaults, overridden by opts.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		repeatLimit:        defaultRepeatLimit,
		minChars:           defaultMinChars,
		fillerSet:          defaultFillerRunes(),
		noiseFilterEnabled: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Apply runs the four ordered stages over text. ok is false when the final
// stage's noise filter drops the segment — callers must not emit a
// Transcript in that case. Apply is idempotent: Apply(Apply(x).text) ==
// Apply(x) whenever the first call returns ok.
func (p *Pipeline) Apply(text string) (result string, ok bool) {
	text = normalize(text)
	text = p.substituteVocabulary(text)
	text = p.collapseFillerRuns(text)
	if p.isNoise(text) {
		return "", false
	}
	return text, true
}

// normalize trims whitespace and normalizes Chinese punctuation to
// canonical forms, collapsing internal whitespace runs to single spaces.
func normalize(text string) string {
	text = chinesePunctuationReplacer.Replace(text)
	fields := strings.Fields(text)
	return strings.TrimSpace(strings.Join(fields, " "))
}

// substituteVocabulary performs longest-match, case-insensitive substitution
// of configured misheard phrases with their canonical form.
func (p *Pipeline) substituteVocabulary(text string) string {
	if len(p.vocabulary) == 0 {
		return text
	}

	lower := strings.ToLower(text)
	var b strings.Builder
	i := 0
	for i < len(text) {
		matched := false
		for _, key := range p.sortedKeys {
			if strings.HasPrefix(lower[i:], key) {
				b.WriteString(p.vocabulary[key])
				i += len(key)
				matched = true
				break
			}
		}
		if !matched {
			_, size := utf8.DecodeRuneInString(text[i:])
			b.WriteString(text[i : i+size])
			i += size
		}
	}
	return b.String()
}

// collapseFillerRuns discards or collapses runs of a single repeated
// character at length >= repeatLimit, per spec §4.6 stage 3: a run that
// consumes the entire remaining text is discarded; otherwise it collapses
// to one instance of the repeated character.
func (p *Pipeline) collapseFillerRuns(text string) string {
	runes := []rune(text)
	var out []rune

	i := 0
	for i < len(runes) {
		j := i + 1
		for j < len(runes) && runes[j] == runes[i] {
			j++
		}
		runLen := j - i
		if runLen >= p.repeatLimit {
			remainderEmpty := len(out) == 0 && j == len(runes)
			if !remainderEmpty {
				out = append(out, runes[i])
			}
		} else {
			out = append(out, runes[i:j]...)
		}
		i = j
	}
	return string(out)
}

// isNoise reports whether text is shorter than minChars and composed
// entirely of filler characters (stage 4: short-text noise filter).
func (p *Pipeline) isNoise(text string) bool {
	runes := []rune(text)
	if len(runes) == 0 {
		return true
	}
	if !p.noiseFilterEnabled {
		return false
	}
	if len(runes) >= p.minChars {
		return false
	}
	for _, r := range runes {
		if !p.fillerSet[r] && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func sortedByLengthDesc(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && len(keys[j-1]) < len(keys[j]); j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

func defaultFillerRunes() map[rune]bool {
	return map[rune]bool{'嗯': true, '啊': true, '呃': true, '额': true, '哦': true, '诶': true}
}
