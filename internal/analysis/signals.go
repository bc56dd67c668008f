package analysis

import (
	"strings"

	"github.com/zitemo/livecards/pkg/types"
)

// ChatCategory classifies one chat event for the SignalCollector node.
type ChatCategory string

const (
	CategoryQuestion ChatCategory = "question"
	CategoryProduct  ChatCategory = "product"
	CategorySupport  ChatCategory = "support"
	CategoryEmotion  ChatCategory = "emotion"
	CategoryOther    ChatCategory = "other"
)

// CategorizedEvent pairs a ChatEvent with its SignalCollector-assigned
// category.
type CategorizedEvent struct {
	Event    types.ChatEvent
	Category ChatCategory
}

// ChatStats summarizes the categorized chat events for one window, feeding
// MoodEstimator and the AnalysisGenerator prompt.
type ChatStats struct {
	Total             int
	CategoryCounts    map[ChatCategory]int
	RecentTranscripts []string // last six sentences, oldest first
}

var (
	questionKeywords = []string{"?", "？", "吗", "呢", "怎么", "为什么", "多少钱", "能不能", "可以吗"}
	productKeywords  = []string{"链接", "价格", "购买", "下单", "优惠", "券", "包邮", "尺码", "库存"}
	supportKeywords  = []string{"谢谢", "辛苦", "加油", "支持", "666", "主播好", "关注了"}
	emotionKeywords  = []string{"哈哈", "笑死", "心疼", "感动", "爱了", "绝了", "太难了"}
)

// collectSignals tags every chat event by category and builds ChatStats,
// including up to the last six transcript sentences.
func collectSignals(snapshot types.WindowSnapshot) ([]CategorizedEvent, ChatStats) {
	categorized := make([]CategorizedEvent, 0, len(snapshot.Events))
	counts := make(map[ChatCategory]int, 5)

	for _, e := range snapshot.Events {
		if e.Kind != types.EventChat {
			continue
		}
		cat := categorize(e.Content)
		categorized = append(categorized, CategorizedEvent{Event: e, Category: cat})
		counts[cat]++
	}

	recent := lastSentences(snapshot.Transcripts, 6)

	return categorized, ChatStats{
		Total:             len(categorized),
		CategoryCounts:    counts,
		RecentTranscripts: recent,
	}
}

func categorize(content string) ChatCategory {
	switch {
	case containsAny(content, questionKeywords):
		return CategoryQuestion
	case containsAny(content, productKeywords):
		return CategoryProduct
	case containsAny(content, supportKeywords):
		return CategorySupport
	case containsAny(content, emotionKeywords):
		return CategoryEmotion
	default:
		return CategoryOther
	}
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

func lastSentences(transcripts []types.Transcript, n int) []string {
	start := 0
	if len(transcripts) > n {
		start = len(transcripts) - n
	}
	out := make([]string, 0, len(transcripts)-start)
	for _, t := range transcripts[start:] {
		if t.Text != "" {
			out = append(out, t.Text)
		}
	}
	return out
}
