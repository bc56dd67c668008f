// Package llm defines the Provider interface for the chat-completion-shaped
// LLM backends that drive the analysis workflow and answer-script generator.
//
// A provider wraps a remote model API (OpenAI, Anthropic, or a self-hosted
// OpenAI-compatible endpoint) and exposes a uniform interface so the
// orchestrator (internal/analysis, internal/answer) never depends on any
// specific vendor SDK directly.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// Message is a single turn in an LLM conversation.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// CompletionRequest carries everything needed to produce one response.
type CompletionRequest struct {
	// Messages is the ordered conversation history.
	Messages []Message

	// SystemPrompt is prepended with provider-native handling when supported.
	SystemPrompt string

	// Temperature controls output randomness, range [0.0, 2.0].
	Temperature float64

	// MaxTokens caps completion length. Zero means provider default.
	MaxTokens int

	// JSONMode requests that the provider constrain output to valid JSON,
	// when it supports doing so natively. Callers should still validate the
	// response — this is a hint, not a guarantee.
	JSONMode bool
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the model's reply.
	Content string

	// PromptTokens, CompletionTokens report token accounting when the
	// provider exposes it; zero values mean "not reported".
	PromptTokens     int
	CompletionTokens int
}

// Provider is the abstraction over any chat-completion LLM backend.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
