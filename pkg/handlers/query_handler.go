package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/orchestra-run/queryweave/pkg/orchestration"
	"github.com/orchestra-run/queryweave/pkg/state"
)

// QueryEngine runs one request through the orchestration graph.
// *orchestration.Engine satisfies this; tests use fakes.
type QueryEngine interface {
	Run(ctx context.Context, req orchestration.Request) (state.AgentState, error)
}

// QueryResponse is the JSON body POST /query replies with.
type QueryResponse struct {
	FinalResponse      string   `json:"final_response"`
	SQLQuery           string   `json:"sql_query,omitempty"`
	PreviousSQLQueries []string `json:"previous_sql_queries,omitempty"`
	RowCount           int      `json:"row_count"`
	Sources            []string `json:"sources,omitempty"`
	DurationMs         int64    `json:"duration_ms"`
}

// QueryHandler serves the engine's request envelope over HTTP.
type QueryHandler struct {
	engine  QueryEngine
	timeout time.Duration
	logger  *zap.Logger
}

// NewQueryHandler creates a QueryHandler. timeout bounds one full graph walk.
func NewQueryHandler(engine QueryEngine, timeout time.Duration, logger *zap.Logger) *QueryHandler {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryHandler{engine: engine, timeout: timeout, logger: logger.Named("query")}
}

// RegisterRoutes registers the query handler's routes on the given mux.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux, wrap func(http.HandlerFunc) http.HandlerFunc) {
	handler := h.Query
	if wrap != nil {
		handler = wrap(handler)
	}
	mux.HandleFunc("POST /query", handler)
}

// Query handles POST /query: decode the envelope, validate it, run the
// graph, and reply with the final state. Envelope violations are rejected
// before graph entry; everything past that point always produces a
// final_response, per the engine's no-empty-answer guarantee.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req orchestration.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "request body must be valid JSON")
		return
	}

	if err := req.Validate(); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	start := time.Now()
	final, err := h.engine.Run(ctx, req)
	if err != nil {
		h.logger.Error("engine run failed", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "engine_error", err.Error())
		return
	}

	sources := make([]string, 0, len(final.RAGDocuments))
	for _, doc := range final.RAGDocuments {
		sources = append(sources, doc.Source)
	}

	_ = WriteJSON(w, http.StatusOK, QueryResponse{
		FinalResponse:      final.FinalResponse,
		SQLQuery:           final.SQLQuery,
		PreviousSQLQueries: final.PreviousSQLQueries,
		RowCount:           len(final.DBResults),
		Sources:            sources,
		DurationMs:         time.Since(start).Milliseconds(),
	})
}
