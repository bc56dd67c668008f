// Package answer implements AnswerScriptGenerator (C10): an on-demand LLM
// call that turns up to five audience questions into ready-to-read answer
// scripts across several delivery styles. Unlike AnalysisWorkflow, this is
// never invoked from the windowed tick loop — only an external caller
// (e.g. an operator dashboard) triggers it.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/zitemo/livecards/pkg/provider/llm"
	"github.com/zitemo/livecards/pkg/types"
)

const (
	maxQuestions   = 5
	minScriptsPerQ = 2
	maxScriptsPerQ = 4
)

// Result is the AnswerScriptGenerator's output. Scripts is always non-nil;
// Error carries a non-fatal, human-readable diagnostic when the LLM
// response was malformed, matching spec §4.10's "returns {scripts: []}
// with non-fatal error string" contract.
type Result struct {
	Scripts []types.AnswerScript `json:"scripts"`
	Error   string               `json:"error,omitempty"`
}

type rawResponse struct {
	Scripts []types.AnswerScript `json:"scripts"`
}

// Generator produces AnswerScripts on demand via an llm.Provider.
type Generator struct {
	provider llm.Provider
}

// New constructs a Generator.
func New(provider llm.Provider) *Generator {
	return &Generator{provider: provider}
}

// Generate invokes the LLM with up to five questions, a transcript
// snippet, the current style_profile, and vibe, requesting 2-4
// AnswerScript entries per question across 2-3 styles. A malformed LLM
// response yields an empty, non-fatal Result rather than an error return —
// callers should treat Result.Error as advisory only.
func (g *Generator) Generate(ctx context.Context, questions []string, transcriptSnippet string, styleProfile string, vibe types.Vibe) Result {
	if len(questions) > maxQuestions {
		questions = questions[:maxQuestions]
	}
	if len(questions) == 0 {
		return Result{Scripts: []types.AnswerScript{}}
	}

	prompt := buildPrompt(questions, transcriptSnippet, styleProfile, vibe)

	resp, err := g.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: "你是直播间话术助手，只输出符合要求的 JSON，不要输出多余文字。",
		Messages:     []llm.Message{{Role: "user", Content: prompt}},
		Temperature:  0.6,
		JSONMode:     true,
	})
	if err != nil {
		return Result{Scripts: []types.AnswerScript{}, Error: fmt.Sprintf("llm call failed: %v", err)}
	}

	var raw rawResponse
	if jsonErr := sonic.UnmarshalString(extractJSON(resp.Content), &raw); jsonErr != nil {
		return Result{Scripts: []types.AnswerScript{}, Error: fmt.Sprintf("malformed response: %v", jsonErr)}
	}

	return Result{Scripts: capPerQuestion(raw.Scripts)}
}

// capPerQuestion enforces the maxScriptsPerQ ceiling per question, in case
// the model over-produces. A question with fewer than minScriptsPerQ
// scripts is passed through as-is rather than discarded — a thin result is
// still useful to the caller, it just didn't hit the target.
func capPerQuestion(scripts []types.AnswerScript) []types.AnswerScript {
	counts := make(map[string]int, len(scripts))
	out := make([]types.AnswerScript, 0, len(scripts))
	for _, s := range scripts {
		if counts[s.Question] >= maxScriptsPerQ {
			continue
		}
		counts[s.Question]++
		out = append(out, s)
	}
	return out
}

func buildPrompt(questions []string, transcriptSnippet, styleProfile string, vibe types.Vibe) string {
	var b strings.Builder
	fmt.Fprintf(&b, "请针对以下 %d 个观众问题，每个问题生成 2-4 条不同风格（如：亲切、专业、幽默）的回答话术，"+
		"输出 JSON，字段为 scripts: [{question, style, line, notes}]，line 为主播可直接念出的完整句子，"+
		"notes 为可选的简短提示。\n\n", len(questions))

	b.WriteString("问题列表：\n")
	for i, q := range questions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}

	if styleProfile != "" {
		fmt.Fprintf(&b, "\n主播风格：%s\n", styleProfile)
	}
	fmt.Fprintf(&b, "当前氛围：%s\n", vibe.Level)

	if transcriptSnippet != "" {
		fmt.Fprintf(&b, "\n最近直播内容片段：\n%s\n", transcriptSnippet)
	}

	return b.String()
}

func extractJSON(content string) string {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start == -1 || end == -1 || end < start {
		return content
	}
	return content[start : end+1]
}
