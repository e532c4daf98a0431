package datasource

import "context"

// MaxQueryLimit caps how many rows a single read query may return,
// regardless of the caller-supplied limit.
const MaxQueryLimit = 10000

// ConnectionTester tests database connectivity.
// Each implementation owns its connection and must be closed when done.
type ConnectionTester interface {
	// TestConnection verifies the database is reachable with valid credentials.
	// Returns nil if connection is healthy, error otherwise.
	TestConnection(ctx context.Context) error

	// Close releases the database connection.
	Close() error
}

// SchemaDiscoverer walks a live database's catalog. Used to populate the
// schema dump the SQL generation and validation nodes reason over.
type SchemaDiscoverer interface {
	// DiscoverTables returns all user tables in the database.
	DiscoverTables(ctx context.Context) ([]TableMetadata, error)

	// DiscoverColumns returns columns for a specific table.
	DiscoverColumns(ctx context.Context, schemaName, tableName string) ([]ColumnMetadata, error)

	// DiscoverForeignKeys returns all foreign key relationships.
	DiscoverForeignKeys(ctx context.Context) ([]ForeignKeyMetadata, error)

	// SupportsForeignKeys reports whether the backend exposes FK metadata.
	SupportsForeignKeys() bool

	// Close releases the discoverer (but not a managed pool).
	Close() error
}

// QueryExecutor executes SQL against the database. Used for running
// generated SQL after it has passed safety screening.
type QueryExecutor interface {
	// ExecuteQuery runs a read query, optionally capped at limit rows.
	ExecuteQuery(ctx context.Context, sqlQuery string, limit int) (*QueryExecutionResult, error)

	// ExecuteQueryWithParams runs a parameterized read query.
	ExecuteQueryWithParams(ctx context.Context, sqlQuery string, params []any, limit int) (*QueryExecutionResult, error)

	// Execute runs any SQL statement and returns results plus rows affected.
	Execute(ctx context.Context, sqlStatement string) (*ExecuteResult, error)

	// ValidateQuery checks syntactic validity without executing.
	ValidateQuery(ctx context.Context, sqlQuery string) error

	// ExplainQuery returns the backend's execution plan with timing data.
	ExplainQuery(ctx context.Context, sqlQuery string) (*ExplainResult, error)

	// QuoteIdentifier safely quotes a SQL identifier.
	QuoteIdentifier(name string) string

	// Close releases the executor (but not a managed pool).
	Close() error
}

// ColumnInfo pairs a result column's name with its backend type name.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// QueryExecutionResult contains the results of a read query.
type QueryExecutionResult struct {
	Columns  []ColumnInfo     `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// ExecuteResult contains the results of an arbitrary SQL statement.
type ExecuteResult struct {
	Columns      []string         `json:"columns,omitempty"`
	Rows         []map[string]any `json:"rows,omitempty"`
	RowCount     int              `json:"row_count"`
	RowsAffected int64            `json:"rows_affected"`
}

// ExplainResult contains a query's execution plan and derived hints.
type ExplainResult struct {
	Plan             string   `json:"plan"`
	ExecutionTimeMs  float64  `json:"execution_time_ms"`
	PlanningTimeMs   float64  `json:"planning_time_ms"`
	PerformanceHints []string `json:"performance_hints,omitempty"`
}
