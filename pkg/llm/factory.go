package llm

import (
	"fmt"

	"go.uber.org/zap"
)

// ClientFactory builds the per-role client set from role configurations,
// optionally wrapping every client to record conversations.
type ClientFactory struct {
	recorder ConversationRecorder
	logger   *zap.Logger
}

// NewClientFactory creates a new factory.
func NewClientFactory(logger *zap.Logger) *ClientFactory {
	return &ClientFactory{logger: logger}
}

// SetRecorder enables conversation recording for all clients created by this
// factory. Pass nil to disable recording.
func (f *ClientFactory) SetRecorder(recorder ConversationRecorder) {
	f.recorder = recorder
}

// BuildRoleSet constructs one client per configured role, wiring fallback to
// the DEFAULT role, wrapping each client in a circuit breaker, and in a
// RecordingClient when a recorder is set.
func (f *ClientFactory) BuildRoleSet(configs map[Role]RoleConfig) (*RoleSet, error) {
	rs, err := NewRoleSet(configs, f.logger)
	if err != nil {
		return nil, err
	}

	wrapped := make(map[Role]LLMClient, len(rs.clients))
	breakers := make(map[LLMClient]LLMClient, len(rs.clients))
	for role, client := range rs.clients {
		// Roles falling back to the shared DEFAULT client share one
		// breaker, so a dead default endpoint trips once, not per role.
		bc, ok := breakers[client]
		if !ok {
			bc = NewBreakerClient(client, DefaultCircuitBreakerConfig())
			breakers[client] = bc
		}
		if f.recorder != nil {
			wrapped[role] = NewRecordingClient(bc, f.recorder, role)
		} else {
			wrapped[role] = bc
		}
	}
	return NewRoleSetFromClients(wrapped), nil
}

// BuildEmbeddingClient constructs a bare (never recorded) client for
// embedding work against an OpenAI-compatible endpoint.
func (f *ClientFactory) BuildEmbeddingClient(endpoint, model, apiKey string) (LLMClient, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is required")
	}
	return NewClient(&Config{
		Endpoint: endpoint,
		Model:    model,
		APIKey:   apiKey,
	}, f.logger)
}
