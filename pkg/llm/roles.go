package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Role identifies one of the six LLM endpoints the orchestrator can be
// configured with independently.
type Role string

const (
	RoleDefault  Role = "DEFAULT"
	RoleSQL      Role = "SQL"
	RoleResponse Role = "RESPONSE"
	RolePrompt   Role = "PROMPT"
	RoleMCP      Role = "MCP"
	RoleSecurity Role = "SECURITY"
)

// AllRoles enumerates every configurable role, in the order config.Load
// reads them.
var AllRoles = []Role{RoleDefault, RoleSQL, RoleResponse, RolePrompt, RoleMCP, RoleSecurity}

// RoleConfig is one role's endpoint configuration, as parsed out of the
// <ROLE>_LLM_{PROVIDER,MODEL,HOSTNAME,PORT,API_PATH} environment variables.
type RoleConfig struct {
	Provider string
	Model    string
	Hostname string
	Port     int
	APIPath  string
	APIKey   string
}

// Endpoint builds the full base URL this role's client should target.
func (c RoleConfig) Endpoint() string {
	path := c.APIPath
	if path == "" {
		path = "/v1"
	}
	return fmt.Sprintf("http://%s:%d%s", c.Hostname, c.Port, path)
}

// RoleSet holds one constructed LLMClient per configured role. A role with
// no explicit configuration falls back to RoleDefault's client, the way the
// original treats an unset per-role override as "use the default model".
type RoleSet struct {
	clients map[Role]LLMClient
}

// NewRoleSet constructs one client per entry in configs, building the
// provider implementation the role asks for (OpenAI-compatible via
// NewClient for every provider in the supported set except Anthropic, which
// uses the Anthropic SDK client).
func NewRoleSet(configs map[Role]RoleConfig, logger *zap.Logger) (*RoleSet, error) {
	rs := &RoleSet{clients: make(map[Role]LLMClient, len(configs))}

	defaultCfg, hasDefault := configs[RoleDefault]
	if !hasDefault {
		return nil, fmt.Errorf("llm: DEFAULT role configuration is required")
	}
	defaultClient, err := buildRoleClient(defaultCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("llm: build DEFAULT client: %w", err)
	}
	rs.clients[RoleDefault] = defaultClient

	for _, role := range AllRoles {
		if role == RoleDefault {
			continue
		}
		cfg, ok := configs[role]
		if !ok || cfg.Hostname == "" {
			rs.clients[role] = defaultClient
			continue
		}
		client, err := buildRoleClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("llm: build %s client: %w", role, err)
		}
		rs.clients[role] = client
	}

	return rs, nil
}

func buildRoleClient(cfg RoleConfig, logger *zap.Logger) (LLMClient, error) {
	if cfg.Provider == "Anthropic" {
		return NewAnthropicClient(cfg, logger)
	}
	return NewClient(&Config{
		Endpoint: cfg.Endpoint(),
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
	}, logger)
}

// Get returns the client configured for role.
func (rs *RoleSet) Get(role Role) LLMClient {
	return rs.clients[role]
}

// NewRoleSetFromClients builds a RoleSet directly from already-constructed
// clients, bypassing provider dispatch. Used by tests to inject fakes.
func NewRoleSetFromClients(clients map[Role]LLMClient) *RoleSet {
	return &RoleSet{clients: clients}
}

// SupportedProviders is the enumerated provider allow-list from the external
// interfaces contract.
var SupportedProviders = map[string]bool{
	"OpenAI": true, "DeepSeek": true, "Qwen": true, "LM Studio": true,
	"Ollama": true, "GigaChat": true, "Anthropic": true,
}

// ctxKey avoids an import cycle with the orchestration package for the one
// place it needs to know "no LLM call happened" (disable_databases fast
// paths) without threading a bool through every signature.
type ctxKey struct{}

var noopKey = ctxKey{}

// WithNoopGuard marks a context such that any RoleSet client invoked under
// it should be treated as a programming error; used in tests that assert a
// disabled path makes zero LLM calls.
func WithNoopGuard(ctx context.Context) context.Context {
	return context.WithValue(ctx, noopKey, true)
}

// NoopGuarded reports whether ctx was marked by WithNoopGuard.
func NoopGuarded(ctx context.Context) bool {
	v, _ := ctx.Value(noopKey).(bool)
	return v
}
