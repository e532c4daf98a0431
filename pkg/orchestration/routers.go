package orchestration

import "github.com/orchestra-run/queryweave/pkg/state"

// Router labels, shared between routers.go and graph.go's edge wiring.
const (
	labelEmptyRequest = "empty_request"
	labelContinue     = "continue"

	labelSkipSQL = "skip_sql"
	labelSQLPath = "sql_path"

	labelRefine          = "refine"
	labelExecuteWider    = "execute_wider_search"
	labelExecute         = "execute_sql"

	labelWiden    = "widen"
	labelFinalize = "finalize"

	labelRetryRefine  = "retry"
	labelExhausted    = "exhausted"
)

// AfterAnalyzeRequest routes around the rest of the graph entirely when
// analyze_request already produced a terminal response (the empty-request
// boundary case).
func AfterAnalyzeRequest(s state.AgentState) string {
	if s.FinalResponse != "" {
		return labelEmptyRequest
	}
	return labelContinue
}

// AfterMCPExecution skips the SQL path entirely when databases are
// disabled: generate_sql/validate_sql/refine_sql never run, sql_query stays
// empty, and no database driver is invoked.
func AfterMCPExecution(s state.AgentState) string {
	if s.DisableDatabases {
		return labelSkipSQL
	}
	return labelSQLPath
}

// AfterValidateSQL: a validation error sends
// the candidate back for refinement; otherwise a widened query proceeds to
// execution under its own label, and an initial query proceeds to ordinary
// execution.
func AfterValidateSQL(s state.AgentState) string {
	if s.ValidationError != "" {
		return labelRefine
	}
	if s.QueryType == state.QueryWiderSearch {
		return labelExecuteWider
	}
	return labelExecute
}

// AfterExecuteSQL: zero rows on an initial
// query, with widening budget remaining, triggers the widening loop;
// otherwise the walk proceeds to answer synthesis.
func AfterExecuteSQL(s state.AgentState) string {
	if len(s.DBResults) == 0 && s.QueryType == state.QueryInitial && s.WidenRetryCount < WidenRetryCap && s.ExecutionError == "" {
		return labelWiden
	}
	return labelFinalize
}

// AfterRefineSQL: exhausting the refinement
// budget routes directly to response generation with the best available
// evidence, per the retry-cap policy.
func AfterRefineSQL(s state.AgentState) string {
	if s.RetryCount >= RefineRetryCap {
		return labelExhausted
	}
	return labelRetryRefine
}
