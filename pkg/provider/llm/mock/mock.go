// Package mock provides a test double for llm.Provider.
package mock

import (
	"context"
	"sync"

	"github.com/zitemo/livecards/pkg/provider/llm"
)

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Responses is consumed in order, one per Complete call. When exhausted,
	// the last entry (or Response if Responses is empty) is reused.
	Responses []llm.CompletionResponse

	// Response is returned by every Complete call when Responses is empty.
	Response llm.CompletionResponse

	// Err, if non-nil, is returned by every Complete call.
	Err error

	// Calls records every CompletionRequest passed to Complete, in order.
	Calls []llm.CompletionRequest

	callIdx int
}

// Compile-time assertion that Provider satisfies llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// Complete records req and returns the configured response or error.
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, req)
	if p.Err != nil {
		return nil, p.Err
	}
	if len(p.Responses) == 0 {
		resp := p.Response
		return &resp, nil
	}
	idx := p.callIdx
	if idx >= len(p.Responses) {
		idx = len(p.Responses) - 1
	}
	p.callIdx++
	resp := p.Responses[idx]
	return &resp, nil
}
