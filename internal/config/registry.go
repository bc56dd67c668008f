package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zitemo/livecards/internal/relay"
	"github.com/zitemo/livecards/pkg/provider/asr"
	"github.com/zitemo/livecards/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// pluggable capability. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	llm        map[string]func(ProviderEntry) (llm.Provider, error)
	asr        map[string]func(ProviderEntry) (asr.Recognizer, error)
	credential map[string]func(ProviderEntry) (relay.CredentialProvider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:        make(map[string]func(ProviderEntry) (llm.Provider, error)),
		asr:        make(map[string]func(ProviderEntry) (asr.Recognizer, error)),
		credential: make(map[string]func(ProviderEntry) (relay.CredentialProvider, error)),
	}
}

// RegisterLLM registers an LLM provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterASR registers an ASR recognizer factory under name.
func (r *Registry) RegisterASR(name string, factory func(ProviderEntry) (asr.Recognizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asr[name] = factory
}

// RegisterCredential registers a relay credential provider factory under name.
func (r *Registry) RegisterCredential(name string, factory func(ProviderEntry) (relay.CredentialProvider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.credential[name] = factory
}

// CreateLLM instantiates an LLM provider using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateASR instantiates an ASR recognizer using the factory registered
// under entry.Name.
func (r *Registry) CreateASR(entry ProviderEntry) (asr.Recognizer, error) {
	r.mu.RLock()
	factory, ok := r.asr[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: asr/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateCredential instantiates a relay credential provider using the
// factory registered under entry.Name.
func (r *Registry) CreateCredential(entry ProviderEntry) (relay.CredentialProvider, error) {
	r.mu.RLock()
	factory, ok := r.credential[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: credential/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
