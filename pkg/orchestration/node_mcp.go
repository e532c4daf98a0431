package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/orchestra-run/queryweave/pkg/jsonutil"
	"github.com/orchestra-run/queryweave/pkg/llm"
	"github.com/orchestra-run/queryweave/pkg/state"
)

// analyzeRequestPlan is the parsed shape of the planning LLM's JSON reply.
type analyzeRequestPlan struct {
	Response          string      `json:"response"`
	IsFinalAnswer     bool        `json:"is_final_answer"`
	HasSufficientInfo bool        `json:"has_sufficient_info"`
	ConfidenceLevel   float64     `json:"confidence_level"`
	ToolCalls         []toolCall  `json:"tool_calls"`
}

// toolCall keeps service_id and method as raw JSON: weaker planning models
// occasionally emit numbers or booleans where strings belong, and a plan
// with a numeric service id should still dispatch rather than fail parsing.
type toolCall struct {
	ServiceID json.RawMessage `json:"service_id"`
	Method    json.RawMessage `json:"method"`
	Params    map[string]any  `json:"params"`
}


// AnalyzeRequest asks the planning LLM which external services to call.
// An empty user_request short-circuits to a terminal apology without ever
// calling the planning LLM.
func (d *Deps) AnalyzeRequest(ctx context.Context, s state.AgentState) (state.AgentState, error) {
	if s.UserRequest == "" {
		s.FinalResponse = "I didn't receive a request to answer."
		return s, nil
	}

	client := d.LLMs.Get(llm.RoleMCP)
	result, err := client.GenerateResponse(ctx, buildAnalyzeRequestPrompt(s), "You are a planning assistant that decides which tools to call.", 0.0, false)
	if err != nil {
		d.log().Warn("analyze_request LLM call failed", zap.Error(err))
		s.ExecutionError = err.Error()
		return s, nil
	}

	plan, perr := parseAnalyzeRequestPlan(result.Content)
	if perr != nil {
		d.log().Warn("analyze_request plan unparseable", zap.Error(perr))
		s.UseMCPResults = false
		return s, nil
	}

	s.MCPToolCalls = make([]state.MCPToolCall, 0, len(plan.ToolCalls))
	for _, tc := range plan.ToolCalls {
		s.MCPToolCalls = append(s.MCPToolCalls, state.MCPToolCall{
			ServiceID:  jsonutil.FlexibleStringValue(tc.ServiceID),
			Action:     jsonutil.FlexibleStringValue(tc.Method),
			Parameters: tc.Params,
		})
	}
	s.UseMCPResults = len(s.MCPToolCalls) > 0
	return s, nil
}

func parseAnalyzeRequestPlan(raw string) (analyzeRequestPlan, error) {
	plan, err := llm.ParseJSONResponse[analyzeRequestPlan](raw)
	if err != nil {
		return plan, fmt.Errorf("decode planning response: %w", err)
	}
	return plan, nil
}

// ExecuteMCPQueries dispatches every planned tool call concurrently;
// a single call's failure is recorded as an error result and never aborts
// its siblings. Results are restored to the request order of mcp_tool_calls
// even though execution is parallel.
func (d *Deps) ExecuteMCPQueries(ctx context.Context, s state.AgentState) (state.AgentState, error) {
	if len(s.MCPToolCalls) == 0 {
		return s, nil
	}

	results := make([]state.MCPServiceResult, len(s.MCPToolCalls))
	var wg sync.WaitGroup
	for i, call := range s.MCPToolCalls {
		wg.Add(1)
		go func(i int, call state.MCPToolCall) {
			defer wg.Done()
			res := d.Adapter.Call(ctx, call.ServiceID, call.Action, call.Parameters)
			results[i] = state.MCPServiceResult{
				ServiceID:  call.ServiceID,
				Action:     call.Action,
				Parameters: call.Parameters,
				Status:     res.Status,
				Result:     res.Result,
				Error:      res.Error,
				Timestamp:  res.Timestamp,
			}
		}(i, call)
	}
	wg.Wait()

	s.MCPServiceResults = results
	return s, nil
}
