package analysis

import (
	"strings"

	"github.com/zitemo/livecards/pkg/types"
)

const (
	weightDensity     = 0.40
	weightInteraction = 0.35
	weightSentiment   = 0.25
)

var (
	positiveWords = []string{"哈哈", "喜欢", "爱了", "牛", "666", "支持", "漂亮", "好看", "谢谢", "加油"}
	negativeWords = []string{"无聊", "难看", "垃圾", "退款", "差评", "骗", "假的", "太贵", "失望"}
)

// estimateMood computes a Vibe from chat_stats and a sentiment lexicon over
// the categorized chat text, per spec §4.9's weighted blend: density 40%,
// interaction-quality 35%, sentiment 25%.
func estimateMood(stats ChatStats, categorized []CategorizedEvent, dmPerMin float64) types.Vibe {
	density := densityScore(dmPerMin)
	interaction := interactionScore(stats)
	sentiment := sentimentScore(categorized)

	score := weightDensity*density + weightInteraction*interaction + weightSentiment*sentiment

	var trends []string
	if density > 60 {
		trends = append(trends, "弹幕密度上升")
	}
	if interaction > 60 {
		trends = append(trends, "互动氛围活跃")
	}
	if sentiment < 40 {
		trends = append(trends, "负面情绪抬头")
	}

	return types.Vibe{Level: vibeLevel(score), Score: score, Trends: trends}
}

// densityScore maps dm_per_min onto [0, 100] using a soft cap at 60/min.
func densityScore(dmPerMin float64) float64 {
	const cap = 60.0
	score := dmPerMin / cap * 100
	return clamp(score, 0, 100)
}

// interactionScore rewards a healthy mix of question/product/support
// engagement relative to total chat volume.
func interactionScore(stats ChatStats) float64 {
	if stats.Total == 0 {
		return 0
	}
	engaged := stats.CategoryCounts[CategoryQuestion] + stats.CategoryCounts[CategoryProduct] + stats.CategoryCounts[CategorySupport]
	ratio := float64(engaged) / float64(stats.Total)
	return clamp(ratio*100, 0, 100)
}

func sentimentScore(categorized []CategorizedEvent) float64 {
	if len(categorized) == 0 {
		return 50 // neutral baseline when no chat text is available
	}

	pos, neg := 0, 0
	for _, c := range categorized {
		content := c.Event.Content
		for _, w := range positiveWords {
			if strings.Contains(content, w) {
				pos++
				break
			}
		}
		for _, w := range negativeWords {
			if strings.Contains(content, w) {
				neg++
				break
			}
		}
	}

	total := pos + neg
	if total == 0 {
		return 50
	}
	return clamp(float64(pos)/float64(total)*100, 0, 100)
}

func vibeLevel(score float64) types.VibeLevel {
	switch {
	case score >= 75:
		return types.VibeOnFire
	case score >= 50:
		return types.VibeWarm
	case score >= 25:
		return types.VibeSteady
	default:
		return types.VibeQuiet
	}
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
