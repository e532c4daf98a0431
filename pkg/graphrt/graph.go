// Package graphrt executes a directed graph of nodes over a typed mutable
// state (state.AgentState): each step runs one node, then either follows an
// unconditional edge or evaluates a router to pick the next node, until the
// terminal marker or the recursion cap is reached.
package graphrt

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/orchestra-run/queryweave/pkg/state"
)

// Terminal is the distinguished terminal marker: reaching it stops the walk.
const Terminal = "__terminal__"

// DefaultRecursionCap bounds the total number of hops a single run may take,
// independent of any per-loop retry cap.
const DefaultRecursionCap = 50

// ErrorTag classifies a node failure into the taxonomy carried by the state
// error slots and MCP result envelopes.
type ErrorTag string

const (
	TagGeneration ErrorTag = "generation"
	TagValidation ErrorTag = "validation"
	TagExecution  ErrorTag = "execution"
	TagSchema     ErrorTag = "schema"
	TagBudget     ErrorTag = "budget"
	TagTimeout    ErrorTag = "timeout"
)

// NodeError wraps a node failure with its tag so Invoke can route it into
// the matching state error slot. Nodes that return a plain error get the
// execution tag.
type NodeError struct {
	Tag ErrorTag
	Err error
}

// NewNodeError builds a tagged node error.
func NewNodeError(tag ErrorTag, err error) *NodeError {
	return &NodeError{Tag: tag, Err: err}
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Tag, e.Err)
}

// Unwrap exposes the cause for errors.Is/errors.As.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// NodeFunc is a pure function from state to a state delta: node
// implementations read what they need from state and return a new state
// value. Errors returned here are caught by Invoke and converted into the
// state's tagged error slots; they never propagate to the caller.
type NodeFunc func(ctx context.Context, s state.AgentState) (state.AgentState, error)

// Router is a pure function on state returning a label used to select a
// conditional edge's target.
type Router func(s state.AgentState) string

// Graph is a compiled directed graph: nodes, unconditional edges, and
// conditional edges (each keyed by source node name).
type Graph struct {
	entry             string
	nodes             map[string]NodeFunc
	unconditionalEdge map[string]string
	conditionalEdge   map[string]conditionalEdge
	recursionCap      int
	logger            *zap.Logger
}

type conditionalEdge struct {
	router Router
	routes map[string]string
}

// Builder assembles a Graph before it is compiled with Build().
type Builder struct {
	g *Graph
}

// NewBuilder starts a new graph definition with the given recursion cap (use
// DefaultRecursionCap unless a test needs a tighter bound).
func NewBuilder(recursionCap int, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recursionCap <= 0 {
		recursionCap = DefaultRecursionCap
	}
	return &Builder{g: &Graph{
		nodes:             make(map[string]NodeFunc),
		unconditionalEdge: make(map[string]string),
		conditionalEdge:   make(map[string]conditionalEdge),
		recursionCap:      recursionCap,
		logger:            logger.Named("graphrt"),
	}}
}

// AddNode registers a named node implementation.
func (b *Builder) AddNode(name string, fn NodeFunc) *Builder {
	b.g.nodes[name] = fn
	return b
}

// SetEntry designates the single entry node.
func (b *Builder) SetEntry(name string) *Builder {
	b.g.entry = name
	return b
}

// AddEdge adds an unconditional edge source -> target. target may be
// Terminal.
func (b *Builder) AddEdge(source, target string) *Builder {
	b.g.unconditionalEdge[source] = target
	return b
}

// AddConditionalEdge adds a router-driven edge: after executing source, the
// router is evaluated against the post-node state and its returned label is
// looked up in routes to find the next node (or Terminal).
func (b *Builder) AddConditionalEdge(source string, router Router, routes map[string]string) *Builder {
	b.g.conditionalEdge[source] = conditionalEdge{router: router, routes: routes}
	return b
}

// Build validates the graph's structural invariants and returns it ready for
// Invoke. No cycles are forbidden; only the recursion cap bounds runaway
// loops.
func (b *Builder) Build() (*Graph, error) {
	g := b.g
	if g.entry == "" {
		return nil, fmt.Errorf("graphrt: no entry node set")
	}
	if _, ok := g.nodes[g.entry]; !ok {
		return nil, fmt.Errorf("graphrt: entry node %q not registered", g.entry)
	}
	for name := range g.nodes {
		_, hasUnconditional := g.unconditionalEdge[name]
		_, hasConditional := g.conditionalEdge[name]
		if hasUnconditional && hasConditional {
			return nil, fmt.Errorf("graphrt: node %q has both an unconditional and a conditional edge", name)
		}
	}
	return g, nil
}

// HopRecord captures one step of the walk for diagnostics/tests.
type HopRecord struct {
	Node  string
	Label string // the router's chosen label, if this hop used a conditional edge
}

// InvokeResult carries the final state plus the walk's hop trace.
type InvokeResult struct {
	State state.AgentState
	Hops  []HopRecord
	// CapReached is true when the walk stopped because the recursion cap,
	// not the terminal marker, was hit.
	CapReached bool
}

// Invoke walks the graph starting at the entry node until the terminal
// marker is reached or the recursion cap is exhausted. A node failing with
// an error (or recovering from a panic) has that failure recorded into the
// state error slot its NodeError tag selects (execution_error for untagged
// errors and panics) and the walk proceeds to the routing step as normal;
// node failures never propagate out of Invoke.
func (g *Graph) Invoke(ctx context.Context, initial state.AgentState) InvokeResult {
	current := g.entry
	s := initial
	var hops []HopRecord

	for hop := 0; hop < g.recursionCap; hop++ {
		fn, ok := g.nodes[current]
		if !ok {
			s.ExecutionError = fmt.Sprintf("graphrt: unknown node %q", current)
			return InvokeResult{State: s, Hops: hops}
		}

		s = g.runNode(ctx, current, fn, s)
		hops = append(hops, HopRecord{Node: current})

		if err := ctx.Err(); err != nil {
			s.ExecutionError = "request deadline exceeded"
			return InvokeResult{State: s, Hops: hops}
		}

		next, label, done := g.route(current, s)
		if done {
			return InvokeResult{State: s, Hops: hops}
		}
		if label != "" {
			hops[len(hops)-1].Label = label
		}
		current = next
	}

	s.FinalResponse = "I wasn't able to reach a confident answer within the allotted processing steps. Here is the best evidence gathered so far."
	g.logger.Warn("recursion cap reached", zap.Int("cap", g.recursionCap))
	return InvokeResult{State: s, Hops: hops, CapReached: true}
}

func (g *Graph) runNode(ctx context.Context, name string, fn NodeFunc, s state.AgentState) (result state.AgentState) {
	result = s
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("node panicked", zap.String("node", name), zap.Any("recover", r))
			result.ExecutionError = fmt.Sprintf("node %q panicked: %v", name, r)
		}
	}()

	next, err := fn(ctx, s)
	if err != nil {
		g.logger.Warn("node returned error", zap.String("node", name), zap.Error(err))
		var nodeErr *NodeError
		if errors.As(err, &nodeErr) {
			switch nodeErr.Tag {
			case TagGeneration:
				next.SQLGenerationError = nodeErr.Err.Error()
			case TagValidation, TagSchema:
				next.ValidationError = nodeErr.Err.Error()
			default:
				next.ExecutionError = nodeErr.Err.Error()
			}
		} else {
			next.ExecutionError = err.Error()
		}
	}
	return next
}

// route determines the next node after executing `current`, or reports that
// the walk is done (terminal marker reached).
func (g *Graph) route(current string, s state.AgentState) (next string, label string, done bool) {
	if target, ok := g.unconditionalEdge[current]; ok {
		if target == Terminal {
			return "", "", true
		}
		return target, "", false
	}
	if cond, ok := g.conditionalEdge[current]; ok {
		label = cond.router(s)
		target, ok := cond.routes[label]
		if !ok {
			g.logger.Error("router returned unmapped label", zap.String("node", current), zap.String("label", label))
			return "", label, true
		}
		if target == Terminal {
			return "", label, true
		}
		return target, label, false
	}
	// No outgoing edge at all: treat as implicitly terminal.
	return "", "", true
}
