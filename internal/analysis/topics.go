package analysis

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/zitemo/livecards/pkg/types"
)

const maxTopicCandidates = 5

// stopWords are common Chinese function words excluded from term-frequency
// topic detection.
var stopWords = map[string]bool{
	"的": true, "了": true, "是": true, "我": true, "你": true, "他": true,
	"这": true, "那": true, "在": true, "就": true, "都": true, "也": true,
	"还": true, "和": true, "吗": true, "呢": true, "啊": true, "吧": true,
	"一个": true, "什么": true, "怎么": true, "然后": true, "因为": true,
}

// detectTopics extracts up to maxTopicCandidates topic candidates from the
// combined recent-transcript and chat text by term frequency over a
// stop-list, emitted in descending-confidence order. Candidates are
// bigram-or-longer Chinese terms (single stop-words and single punctuation
// characters are never useful topics on their own).
func detectTopics(recentTranscripts []string, categorized []CategorizedEvent) []types.TopicCandidate {
	counts := make(map[string]int)
	total := 0

	addTerms := func(text string) {
		for _, term := range extractTerms(text) {
			if stopWords[term] {
				continue
			}
			counts[term]++
			total++
		}
	}

	for _, t := range recentTranscripts {
		addTerms(t)
	}
	for _, c := range categorized {
		addTerms(c.Event.Content)
	}

	if total == 0 {
		return nil
	}

	type scored struct {
		term  string
		count int
	}
	ranked := make([]scored, 0, len(counts))
	for term, count := range counts {
		ranked = append(ranked, scored{term, count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].term < ranked[j].term
	})

	n := len(ranked)
	if n > maxTopicCandidates {
		n = maxTopicCandidates
	}

	out := make([]types.TopicCandidate, n)
	for i := 0; i < n; i++ {
		out[i] = types.TopicCandidate{
			Topic:      ranked[i].term,
			Confidence: float64(ranked[i].count) / float64(total),
		}
	}
	return out
}

// extractTerms splits text into bigram-and-longer runs of CJK/letter/digit
// runes, discarding punctuation and whitespace as separators.
func extractTerms(text string) []string {
	var terms []string
	var current strings.Builder

	flush := func() {
		s := current.String()
		if utf8.RuneCountInString(s) >= 2 {
			terms = append(terms, s)
		}
		current.Reset()
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()

	return terms
}
