package orchestration

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orchestra-run/queryweave/pkg/apperrors"
	"github.com/orchestra-run/queryweave/pkg/graphrt"
	"github.com/orchestra-run/queryweave/pkg/llm"
	"github.com/orchestra-run/queryweave/pkg/state"
)

// MaxCustomSystemPromptLen bounds the request envelope's optional system
// prompt; longer prompts are rejected before graph entry.
const MaxCustomSystemPromptLen = 5000

// Request is the request envelope into the engine.
type Request struct {
	UserRequest        string `json:"user_request"`
	CustomSystemPrompt string `json:"custom_system_prompt,omitempty"`
	DisableSQLBlocking bool   `json:"disable_sql_blocking,omitempty"`
	DatabaseName       string `json:"database,omitempty"`
}

// Validate enforces the envelope's structural limits. It does not reject an
// empty user_request: that is answered with a terminal apology by the graph
// itself, without any LLM call.
func (r Request) Validate() error {
	if len(r.CustomSystemPrompt) > MaxCustomSystemPromptLen {
		return fmt.Errorf("%w: custom_system_prompt exceeds %d characters", apperrors.ErrPromptTooLong, MaxCustomSystemPromptLen)
	}
	return nil
}

// Engine owns one compiled graph plus the per-process settings every run
// starts from. It is safe for concurrent use; per-request state lives only
// in the AgentState value threaded through the walk.
type Engine struct {
	deps  *Deps
	graph *graphrt.Graph

	disableDatabases   bool
	disableSQLBlocking bool
	registryURL        string

	// Discover lists the currently-registered external services for the
	// planning node. Nil means no registry is configured.
	Discover func(ctx context.Context) ([]state.ServiceRef, error)

	// AttemptSink receives the run's SQL attempt log after completion for
	// persistence; failures there never affect the response. Optional.
	AttemptSink func(ctx context.Context, requestID string, attempts []state.SQLAttempt)
}

// EngineConfig carries the per-process defaults baked into every run.
type EngineConfig struct {
	RecursionCap int
	// DisableDatabases makes every SQL-touching node a no-op.
	DisableDatabases bool
	// DisableSQLBlocking defaults the envelope's disable_sql_blocking when
	// the request doesn't set it (inverse of
	// TERMINATE_ON_POTENTIALLY_HARMFUL_SQL).
	DisableSQLBlocking bool
	RegistryURL        string
}

// NewEngine compiles the orchestration graph over deps.
func NewEngine(deps *Deps, cfg EngineConfig) (*Engine, error) {
	graph, err := BuildGraph(deps, cfg.RecursionCap)
	if err != nil {
		return nil, err
	}
	return &Engine{
		deps:               deps,
		graph:              graph,
		disableDatabases:   cfg.DisableDatabases,
		disableSQLBlocking: cfg.DisableSQLBlocking,
		registryURL:        cfg.RegistryURL,
	}, nil
}

// Run executes one request through the graph and returns the final state.
// The returned state always has a non-empty FinalResponse.
func (e *Engine) Run(ctx context.Context, req Request) (state.AgentState, error) {
	if err := req.Validate(); err != nil {
		return state.AgentState{}, err
	}

	// Every conversation recorded under this run carries the same request id.
	requestID := uuid.NewString()
	ctx = llm.WithRequestContext(ctx, requestID)

	initial := state.AgentState{
		UserRequest:        strings.TrimSpace(req.UserRequest),
		CustomSystemPrompt: req.CustomSystemPrompt,
		DisableSQLBlocking: req.DisableSQLBlocking || e.disableSQLBlocking,
		DisableDatabases:   e.disableDatabases,
		DatabaseName:       req.DatabaseName,
		RegistryURL:        e.registryURL,
		QueryType:          state.QueryInitial,
	}

	if e.Discover != nil {
		refs, err := e.Discover(ctx)
		if err != nil {
			e.deps.log().Warn("service discovery failed, planning without external services", zap.Error(err))
		} else {
			initial.DiscoveredServices = refs
		}
	}

	result := e.graph.Invoke(ctx, initial)
	final := result.State

	if e.AttemptSink != nil && len(final.SQLAttemptLog) > 0 {
		e.AttemptSink(ctx, requestID, final.SQLAttemptLog)
	}

	// The engine never returns an empty answer: a run that ended without a
	// terminal response gets a refusal naming the most recent error.
	if final.FinalResponse == "" {
		if _, reason := final.ActiveError(); reason != "" {
			final.FinalResponse = fmt.Sprintf("I couldn't complete the request: %s.", reason)
		} else {
			final.FinalResponse = "I couldn't produce an answer for this request."
		}
	}

	return final, nil
}
