package answer

import (
	"context"
	"testing"

	"github.com/zitemo/livecards/pkg/provider/llm"
	mockllm "github.com/zitemo/livecards/pkg/provider/llm/mock"
	"github.com/zitemo/livecards/pkg/types"
)

func TestGenerate_ValidResponse_ReturnsScripts(t *testing.T) {
	provider := &mockllm.Provider{Response: llm.CompletionResponse{
		Content: `{"scripts":[{"question":"多少钱","style":"亲切","line":"现在下单只要99元哦"},` +
			`{"question":"多少钱","style":"专业","line":"该款产品零售价为99元。"}]}`,
	}}
	g := New(provider)

	result := g.Generate(context.Background(), []string{"多少钱"}, "snippet", "亲切自然", types.Vibe{Level: types.VibeWarm})
	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if len(result.Scripts) != 2 {
		t.Fatalf("len(Scripts) = %d, want 2", len(result.Scripts))
	}
}

func TestGenerate_MalformedResponse_ReturnsEmptyNonFatal(t *testing.T) {
	provider := &mockllm.Provider{Response: llm.CompletionResponse{Content: "not json"}}
	g := New(provider)

	result := g.Generate(context.Background(), []string{"多少钱"}, "", "", types.Vibe{})
	if result.Error == "" {
		t.Fatal("expected a non-fatal error string for malformed response")
	}
	if result.Scripts == nil || len(result.Scripts) != 0 {
		t.Errorf("Scripts = %v, want empty non-nil slice", result.Scripts)
	}
}

func TestGenerate_NoQuestions_ReturnsEmptyWithoutCallingLLM(t *testing.T) {
	provider := &mockllm.Provider{}
	g := New(provider)

	result := g.Generate(context.Background(), nil, "", "", types.Vibe{})
	if len(result.Scripts) != 0 {
		t.Errorf("Scripts = %v, want empty", result.Scripts)
	}
	if len(provider.Calls) != 0 {
		t.Error("expected no LLM call for zero questions")
	}
}

func TestGenerate_MoreThanFiveQuestions_Truncated(t *testing.T) {
	provider := &mockllm.Provider{Response: llm.CompletionResponse{Content: `{"scripts":[]}`}}
	g := New(provider)

	questions := []string{"q1", "q2", "q3", "q4", "q5", "q6", "q7"}
	g.Generate(context.Background(), questions, "", "", types.Vibe{})

	if len(provider.Calls) != 1 {
		t.Fatalf("expected exactly one LLM call, got %d", len(provider.Calls))
	}
}
