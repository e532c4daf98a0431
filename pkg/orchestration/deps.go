// Package orchestration implements the concrete graph nodes: schema fetch,
// request analysis, SQL generate/validate/execute/refine/widen, prompt
// build, response synthesis, MCP planning/execution, and search/RAG
// enrichment. Every node is a pure function of
// (deps, context, state) -> (state, error), composed by pkg/graphrt; no
// node holds package-level mutable state, and shared clients live in an
// explicit dependency container.
package orchestration

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/orchestra-run/queryweave/pkg/audit"
	"github.com/orchestra-run/queryweave/pkg/llm"
	"github.com/orchestra-run/queryweave/pkg/state"
	"github.com/orchestra-run/queryweave/pkg/svcadapter"
)

// RefineRetryCap and WidenRetryCap bound the two independent retry loops.
const (
	RefineRetryCap = 5
	WidenRetryCap  = 5
)

// DatabaseManager is the collaborator that owns per-database connections,
// schema caching, and query execution; the core does not implement database
// drivers, only this interface.
type DatabaseManager interface {
	// Databases lists the logical database names currently configured.
	Databases() []string
	// GetSchema returns the table->schema map for one database, read
	// through a TTL cache with single-flight refresh on the collaborator's
	// side.
	GetSchema(ctx context.Context, database string) (map[string]state.TableSchema, error)
	// Execute runs query against database and returns each row as a plain
	// map, or an error tagged with whichever failure class the driver hit.
	Execute(ctx context.Context, database, query string) ([]map[string]any, error)
}

// DownloadCollaborator fetches a URL's page body for search-result
// enrichment; the engine consumes it behind this interface.
type DownloadCollaborator interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Reranker orders a set of UnifiedDocuments by relevance to a query.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []state.UnifiedDocument) ([]state.UnifiedDocument, error)
}

// RAGCollaborator queries the vector store for locally-indexed documents.
type RAGCollaborator interface {
	Query(ctx context.Context, query string) ([]state.UnifiedDocument, error)
}

// Deps is the explicit dependency container every node closure is built
// against; it replaces the source's module-level globals.
type Deps struct {
	LLMs       *llm.RoleSet
	DB         DatabaseManager
	Adapter    *svcadapter.Adapter
	Download   DownloadCollaborator
	Reranker   Reranker
	RAG        RAGCollaborator
	UseSecurityLLM bool
	Logger     *zap.Logger

	// Auditor receives security-relevant events (blocked SQL, injection
	// fingerprints, executed queries) for SIEM consumption. Optional.
	Auditor *audit.SecurityAuditor

	// CallTimeout bounds any single collaborator call issued by a node; a
	// request-level deadline is layered on top via the context passed to
	// Invoke.
	CallTimeout time.Duration
}

func (d *Deps) log() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}
