package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/orchestra-run/queryweave/pkg/orchestration"
	"github.com/orchestra-run/queryweave/pkg/state"
	"github.com/orchestra-run/queryweave/pkg/svcadapter"
)

// QueryEngine runs one request through the orchestration graph.
type QueryEngine interface {
	Run(ctx context.Context, req orchestration.Request) (state.AgentState, error)
}

// runQueryResult is the JSON payload the run_query tool replies with.
type runQueryResult struct {
	FinalResponse      string   `json:"final_response"`
	SQLQuery           string   `json:"sql_query,omitempty"`
	PreviousSQLQueries []string `json:"previous_sql_queries,omitempty"`
	RowCount           int      `json:"row_count"`
}

// RegisterRunQueryTool exposes the orchestrator itself as an MCP-callable
// tool, so other agents can submit natural-language requests over the same
// action surface the engine's own workers speak.
func RegisterRunQueryTool(s *Server, engine QueryEngine, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	tool := mcplib.NewTool("run_query",
		mcplib.WithDescription("Answer a natural-language question by orchestrating SQL generation, external services, and document retrieval."),
		mcplib.WithString("user_request",
			mcplib.Required(),
			mcplib.Description("The natural-language question to answer."),
		),
		mcplib.WithString("database",
			mcplib.Description("Optional logical database name to prefer."),
		),
		mcplib.WithBoolean("disable_sql_blocking",
			mcplib.Description("Bypass the keyword/pattern SQL safety screen for this request."),
		),
	)

	s.RegisterTool(tool, func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		userRequest, err := req.RequireString("user_request")
		if err != nil {
			return mcplib.NewToolResultError("user_request is required"), nil
		}

		engineReq := orchestration.Request{
			UserRequest:        userRequest,
			DatabaseName:       getOptionalString(req, "database"),
			DisableSQLBlocking: getOptionalBool(req, "disable_sql_blocking"),
		}

		final, err := engine.Run(ctx, engineReq)
		if err != nil {
			logger.Warn("run_query failed", zap.Error(err))
			return mcplib.NewToolResultError(fmt.Sprintf("run_query: %v", err)), nil
		}

		payload, err := svcadapter.MarshalUTF8(runQueryResult{
			FinalResponse:      final.FinalResponse,
			SQLQuery:           final.SQLQuery,
			PreviousSQLQueries: final.PreviousSQLQueries,
			RowCount:           len(final.DBResults),
		})
		if err != nil {
			return mcplib.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
		}

		return mcplib.NewToolResultText(string(payload)), nil
	})
}

func getOptionalString(req mcplib.CallToolRequest, key string) string {
	if args, ok := req.Params.Arguments.(map[string]any); ok {
		if v, ok := args[key].(string); ok {
			return v
		}
	}
	return ""
}

func getOptionalBool(req mcplib.CallToolRequest, key string) bool {
	if args, ok := req.Params.Arguments.(map[string]any); ok {
		if v, ok := args[key].(bool); ok {
			return v
		}
	}
	return false
}
