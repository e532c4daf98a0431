// Package state defines the mutable value threaded through the graph runtime.
package state

import "time"

// SourceType classifies where a UnifiedDocument originated.
type SourceType string

const (
	SourceLocalDocument  SourceType = "local_document"
	SourceWebSearch      SourceType = "web_search"
	SourceProcessedSearch SourceType = "processed_search"
)

// QueryType distinguishes an initial SQL attempt from a widened retry.
type QueryType string

const (
	QueryInitial     QueryType = "initial"
	QueryWiderSearch QueryType = "wider_search"
)

// genericSourcePlaceholders are values that must never be accepted as a
// UnifiedDocument's resolved source; they carry no information about where
// the content actually came from.
var genericSourcePlaceholders = map[string]bool{
	"RAG Document":     true,
	"Search Result":    true,
	"Search":           true,
	"Web Search":       true,
	"Document":         true,
	"Result":           true,
	"Generic Document": true,
}

// IsGenericSource reports whether s is one of the forbidden placeholder values.
func IsGenericSource(s string) bool {
	return genericSourcePlaceholders[s]
}

// UnifiedDocument is the single shape every retrieved fragment (RAG, search,
// processed-search) is normalized into before augmentation.
type UnifiedDocument struct {
	Content        string
	Source         string
	SourceType     SourceType
	URL            string
	Title          string
	Summary        string
	RelevanceScore float64
	Metadata       map[string]any
}

// MCPToolCall is a planned invocation of an external MCP worker capability.
type MCPToolCall struct {
	ServiceID  string
	Action     string
	Parameters map[string]any
}

// MCPServiceResult is the recorded outcome of dispatching an MCPToolCall.
type MCPServiceResult struct {
	ServiceID  string
	Action     string
	Parameters map[string]any
	Status     string // "success" | "error"
	Result     any
	Error      string
	Timestamp  time.Time
}

// DBRow is a single result row tagged with the database it was read from.
type DBRow struct {
	Values         map[string]any
	SourceDatabase string
}

// ColumnInfo describes one column of a table in schema_dump.
type ColumnInfo struct {
	Name    string
	Type    string
	Nullable bool
	Comment string
}

// TableSchema is one table's entry in schema_dump.
type TableSchema struct {
	Columns []ColumnInfo
	Comment string
}

// AgentState is the single mutable value threaded through the graph; every
// orchestration node reads a subset of it and returns the whole updated value,
// which the graph runtime carries into the next step as-is.
type AgentState struct {
	UserRequest string

	SchemaDump        map[string]TableSchema
	TableToDBMapping  map[string]string

	SQLQuery            string
	PreviousSQLQueries  []string
	SQLAttemptLog       []SQLAttempt

	DBResults    []DBRow
	AllDBResults map[string][]DBRow

	MCPToolCalls     []MCPToolCall
	MCPServiceResults []MCPServiceResult

	RAGDocuments []UnifiedDocument

	ResponsePrompt string
	FinalResponse  string

	ValidationError    string
	ExecutionError     string
	SQLGenerationError string

	RetryCount            int
	WidenRetryCount       int
	QueryType             QueryType
	DisableSQLBlocking    bool
	DisableDatabases      bool
	UseMCPResults         bool
	ReturnMCPResultsToLLM bool
	DatabaseName          string
	RegistryURL           string
	DiscoveredServices    []ServiceRef

	CustomSystemPrompt string
}

// SQLAttempt is an observability-only record of one SQL candidate generated
// during a run; it never feeds final_response directly.
type SQLAttempt struct {
	Query      string
	ErrorTag   string
	RetryKind  string // "refine" | "widen" | ""
}

// ServiceRef is the subset of a registry ServiceInfo a planning node needs.
type ServiceRef struct {
	ID           string
	Type         string
	Capabilities []string
}

// ClearErrors resets all three mutually-orthogonal error slots. The refine_sql
// node calls this after consuming the slot that drove the refinement.
func (s *AgentState) ClearErrors() {
	s.ValidationError = ""
	s.ExecutionError = ""
	s.SQLGenerationError = ""
}

// ActiveError returns whichever of the three error slots is non-empty, and
// its tag. Per invariant, at most one should be set when entering a router.
func (s *AgentState) ActiveError() (tag string, message string) {
	switch {
	case s.SQLGenerationError != "":
		return "generation", s.SQLGenerationError
	case s.ValidationError != "":
		return "validation", s.ValidationError
	case s.ExecutionError != "":
		return "execution", s.ExecutionError
	default:
		return "", ""
	}
}

// AppendSQLCandidate records a newly generated SQL candidate in
// previous_sql_queries, maintaining the invariant that every non-empty
// sql_query appears there.
func (s *AgentState) AppendSQLCandidate(query string) {
	s.SQLQuery = query
	if query != "" {
		s.PreviousSQLQueries = append(s.PreviousSQLQueries, query)
	}
}

// RecordSQLAttempt appends to the observability-only attempt log.
func (s *AgentState) RecordSQLAttempt(query, errorTag, retryKind string) {
	s.SQLAttemptLog = append(s.SQLAttemptLog, SQLAttempt{Query: query, ErrorTag: errorTag, RetryKind: retryKind})
}

// AddDBRows appends rows from a single database execution, maintaining the
// invariant that db_results and all_db_results stay consistent.
func (s *AgentState) AddDBRows(database string, rows []map[string]any) {
	if s.AllDBResults == nil {
		s.AllDBResults = make(map[string][]DBRow)
	}
	for _, r := range rows {
		row := DBRow{Values: r, SourceDatabase: database}
		s.DBResults = append(s.DBResults, row)
		s.AllDBResults[database] = append(s.AllDBResults[database], row)
	}
}

// Clone returns a deep-enough copy of the state suitable for passing into a
// node as input, so that the copy's slices do not alias the original's.
func (s AgentState) Clone() AgentState {
	clone := s
	clone.PreviousSQLQueries = append([]string(nil), s.PreviousSQLQueries...)
	clone.SQLAttemptLog = append([]SQLAttempt(nil), s.SQLAttemptLog...)
	clone.DBResults = append([]DBRow(nil), s.DBResults...)
	clone.MCPToolCalls = append([]MCPToolCall(nil), s.MCPToolCalls...)
	clone.MCPServiceResults = append([]MCPServiceResult(nil), s.MCPServiceResults...)
	clone.RAGDocuments = append([]UnifiedDocument(nil), s.RAGDocuments...)
	clone.DiscoveredServices = append([]ServiceRef(nil), s.DiscoveredServices...)

	if s.SchemaDump != nil {
		clone.SchemaDump = make(map[string]TableSchema, len(s.SchemaDump))
		for k, v := range s.SchemaDump {
			clone.SchemaDump[k] = v
		}
	}
	if s.TableToDBMapping != nil {
		clone.TableToDBMapping = make(map[string]string, len(s.TableToDBMapping))
		for k, v := range s.TableToDBMapping {
			clone.TableToDBMapping[k] = v
		}
	}
	if s.AllDBResults != nil {
		clone.AllDBResults = make(map[string][]DBRow, len(s.AllDBResults))
		for k, v := range s.AllDBResults {
			clone.AllDBResults[k] = append([]DBRow(nil), v...)
		}
	}
	return clone
}
