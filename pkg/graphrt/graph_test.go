package graphrt

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchestra-run/queryweave/pkg/state"
)

func TestInvoke_UnconditionalChainToTerminal(t *testing.T) {
	g, err := NewBuilder(DefaultRecursionCap, nil).
		AddNode("a", func(_ context.Context, s state.AgentState) (state.AgentState, error) {
			s.FinalResponse = "from a"
			return s, nil
		}).
		AddNode("b", func(_ context.Context, s state.AgentState) (state.AgentState, error) {
			s.FinalResponse += " then b"
			return s, nil
		}).
		SetEntry("a").
		AddEdge("a", "b").
		AddEdge("b", Terminal).
		Build()
	require.NoError(t, err)

	result := g.Invoke(context.Background(), state.AgentState{})
	assert.Equal(t, "from a then b", result.State.FinalResponse)
	assert.False(t, result.CapReached)
	assert.Len(t, result.Hops, 2)
}

func TestInvoke_ConditionalRouting(t *testing.T) {
	g, err := NewBuilder(DefaultRecursionCap, nil).
		AddNode("start", func(_ context.Context, s state.AgentState) (state.AgentState, error) {
			s.RetryCount = 1
			return s, nil
		}).
		AddNode("retry_path", func(_ context.Context, s state.AgentState) (state.AgentState, error) {
			s.FinalResponse = "retried"
			return s, nil
		}).
		AddNode("done_path", func(_ context.Context, s state.AgentState) (state.AgentState, error) {
			s.FinalResponse = "done"
			return s, nil
		}).
		SetEntry("start").
		AddConditionalEdge("start", func(s state.AgentState) string {
			if s.RetryCount > 0 {
				return "retry"
			}
			return "done"
		}, map[string]string{"retry": "retry_path", "done": "done_path"}).
		AddEdge("retry_path", Terminal).
		AddEdge("done_path", Terminal).
		Build()
	require.NoError(t, err)

	result := g.Invoke(context.Background(), state.AgentState{})
	assert.Equal(t, "retried", result.State.FinalResponse)
	assert.Equal(t, "retry", result.Hops[0].Label)
}

func TestInvoke_NodeErrorRecordedNotPropagated(t *testing.T) {
	g, err := NewBuilder(DefaultRecursionCap, nil).
		AddNode("failing", func(_ context.Context, s state.AgentState) (state.AgentState, error) {
			return s, errors.New("downstream exploded")
		}).
		SetEntry("failing").
		AddEdge("failing", Terminal).
		Build()
	require.NoError(t, err)

	result := g.Invoke(context.Background(), state.AgentState{})
	assert.Equal(t, "downstream exploded", result.State.ExecutionError)
}

func TestInvoke_NodePanicRecordedNotPropagated(t *testing.T) {
	g, err := NewBuilder(DefaultRecursionCap, nil).
		AddNode("panics", func(_ context.Context, s state.AgentState) (state.AgentState, error) {
			panic("boom")
		}).
		SetEntry("panics").
		AddEdge("panics", Terminal).
		Build()
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		result := g.Invoke(context.Background(), state.AgentState{})
		assert.Contains(t, result.State.ExecutionError, "panicked")
	})
}

func TestInvoke_RecursionCapProducesTerminalStateNotPanic(t *testing.T) {
	g, err := NewBuilder(3, nil).
		AddNode("loop", func(_ context.Context, s state.AgentState) (state.AgentState, error) {
			s.RetryCount++
			return s, nil
		}).
		SetEntry("loop").
		AddEdge("loop", "loop").
		Build()
	require.NoError(t, err)

	result := g.Invoke(context.Background(), state.AgentState{})
	assert.True(t, result.CapReached)
	assert.NotEmpty(t, result.State.FinalResponse)
}

func TestBuild_RejectsMissingEntry(t *testing.T) {
	_, err := NewBuilder(DefaultRecursionCap, nil).
		AddNode("a", func(_ context.Context, s state.AgentState) (state.AgentState, error) { return s, nil }).
		Build()
	assert.Error(t, err)
}

func TestInvoke_ContextCancellationStopsWalk(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g, err := NewBuilder(DefaultRecursionCap, nil).
		AddNode("a", func(_ context.Context, s state.AgentState) (state.AgentState, error) { return s, nil }).
		SetEntry("a").
		AddEdge("a", Terminal).
		Build()
	require.NoError(t, err)

	result := g.Invoke(ctx, state.AgentState{})
	assert.Equal(t, "request deadline exceeded", result.State.ExecutionError)
}

func TestInvoke_NodeErrorRoutesToTaggedSlot(t *testing.T) {
	b := NewBuilder(10, nil)
	b.AddNode("gen", func(ctx context.Context, s state.AgentState) (state.AgentState, error) {
		return s, NewNodeError(TagGeneration, fmt.Errorf("model produced nothing"))
	})
	b.SetEntry("gen")
	b.AddEdge("gen", Terminal)
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	result := g.Invoke(context.Background(), state.AgentState{})
	if result.State.SQLGenerationError == "" {
		t.Error("expected generation-tagged error in sql_generation_error slot")
	}
	if result.State.ExecutionError != "" {
		t.Errorf("execution_error must stay empty, got %q", result.State.ExecutionError)
	}
}

func TestInvoke_PlainErrorDefaultsToExecutionSlot(t *testing.T) {
	b := NewBuilder(10, nil)
	b.AddNode("boom", func(ctx context.Context, s state.AgentState) (state.AgentState, error) {
		return s, fmt.Errorf("downstream unavailable")
	})
	b.SetEntry("boom")
	b.AddEdge("boom", Terminal)
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	result := g.Invoke(context.Background(), state.AgentState{})
	if result.State.ExecutionError == "" {
		t.Error("expected plain error in execution_error slot")
	}
}
