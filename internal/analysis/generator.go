package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/zitemo/livecards/pkg/provider/llm"
	"github.com/zitemo/livecards/pkg/types"
)

const degradedOverview = "解析失败，已降级"

// rawCard mirrors the JSON schema requested from the LLM — only the fields
// the model itself produces; orchestrator-filled fields are added afterward
// by the Summary node.
type rawCard struct {
	AnalysisOverview     string   `json:"analysis_overview"`
	AudienceSentiment    struct {
		Label   string   `json:"label"`
		Signals []string `json:"signals"`
	} `json:"audience_sentiment"`
	EngagementHighlights []string `json:"engagement_highlights"`
	Risks                []string `json:"risks"`
	NextActions          []string `json:"next_actions"`
	Confidence           float64  `json:"confidence"`
}

// generateCard calls the LLM capability to produce an AnalysisCard, per
// spec §4.9's AnalysisGenerator node: on JSON parse failure, retry once;
// on a second failure, degrade to a fixed low-confidence card rather than
// failing the whole tick (AnalysisGenerator is explicitly exempted from
// propagating node failure to the orchestrator).
func generateCard(ctx context.Context, provider llm.Provider, persona Persona, stats ChatStats, categorized []CategorizedEvent, topics []types.TopicCandidate, vibe types.Vibe, focus string) types.AnalysisCard {
	prompt := buildPrompt(persona, stats, categorized, topics, vibe, focus)

	for attempt := 0; attempt < 2; attempt++ {
		resp, err := provider.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: "你是一个直播间数据分析助手，只输出符合要求的 JSON，不要输出多余文字。",
			Messages:     []llm.Message{{Role: "user", Content: prompt}},
			Temperature:  0.3,
			JSONMode:     true,
		})
		if err != nil {
			continue
		}

		var rc rawCard
		if jsonErr := sonic.UnmarshalString(extractJSON(resp.Content), &rc); jsonErr == nil {
			return types.AnalysisCard{
				AnalysisOverview: rc.AnalysisOverview,
				AudienceSentiment: types.AudienceSentiment{
					Label:   types.SentimentLabel(rc.AudienceSentiment.Label),
					Signals: rc.AudienceSentiment.Signals,
				},
				EngagementHighlights: rc.EngagementHighlights,
				Risks:                rc.Risks,
				NextActions:          rc.NextActions,
				Confidence:           rc.Confidence,
			}
		}
	}

	return types.AnalysisCard{AnalysisOverview: degradedOverview, Confidence: 0}
}

func buildPrompt(persona Persona, stats ChatStats, categorized []CategorizedEvent, topics []types.TopicCandidate, vibe types.Vibe, focus string) string {
	var b strings.Builder
	b.WriteString("请基于以下直播间信号生成分析卡片 JSON，字段为 analysis_overview, audience_sentiment{label,signals}, engagement_highlights, risks, next_actions, confidence。\n\n")

	if !persona.IsEmpty() {
		fmt.Fprintf(&b, "主播人设：语气=%s，禁忌=%v，口头禅=%v\n", persona.Tone, persona.Taboos, persona.Catchphrases)
	}

	fmt.Fprintf(&b, "弹幕总量：%d，分类分布：%v\n", stats.Total, stats.CategoryCounts)
	fmt.Fprintf(&b, "当前氛围：%s（分值 %.0f），趋势：%v\n", vibe.Level, vibe.Score, vibe.Trends)

	if len(topics) > 0 {
		b.WriteString("话题候选：")
		for _, t := range topics {
			fmt.Fprintf(&b, "%s(%.2f) ", t.Topic, t.Confidence)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "分析重点建议：%s\n", focus)

	if len(stats.RecentTranscripts) > 0 {
		b.WriteString("最近发言：\n")
		for _, s := range stats.RecentTranscripts {
			b.WriteString("- " + s + "\n")
		}
	}

	if len(categorized) > 0 {
		b.WriteString("部分弹幕样本：\n")
		limit := len(categorized)
		if limit > 10 {
			limit = 10
		}
		for _, c := range categorized[:limit] {
			fmt.Fprintf(&b, "- [%s] %s\n", c.Category, c.Event.Content)
		}
	}

	return b.String()
}

// extractJSON trims any leading/trailing prose a model might emit around
// the JSON object despite JSONMode being requested.
func extractJSON(content string) string {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start == -1 || end == -1 || end < start {
		return content
	}
	return content[start : end+1]
}
