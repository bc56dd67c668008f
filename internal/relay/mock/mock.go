// Package mock provides a test double for relay.CredentialProvider.
package mock

import (
	"context"

	"github.com/zitemo/livecards/internal/relay"
)

// CredentialProvider is a mock implementation of relay.CredentialProvider.
type CredentialProvider struct {
	Credential relay.Credential
	Err        error
	Calls      []string
}

var _ relay.CredentialProvider = (*CredentialProvider)(nil)

// Sign records roomID and returns the configured credential or error.
func (m *CredentialProvider) Sign(_ context.Context, roomID string) (relay.Credential, error) {
	m.Calls = append(m.Calls, roomID)
	if m.Err != nil {
		return relay.Credential{}, m.Err
	}
	return m.Credential, nil
}
