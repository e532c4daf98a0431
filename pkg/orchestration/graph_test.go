package orchestration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchestra-run/queryweave/pkg/llm"
	"github.com/orchestra-run/queryweave/pkg/registry"
	"github.com/orchestra-run/queryweave/pkg/state"
	"github.com/orchestra-run/queryweave/pkg/svcadapter"
)

func hostOf(srv *httptest.Server) string {
	u, _ := url.Parse(srv.URL)
	return u.Hostname()
}

func portOf(srv *httptest.Server) int {
	u, _ := url.Parse(srv.URL)
	p, _ := strconv.Atoi(u.Port())
	return p
}

// A DNS-only question with databases disabled must answer from the MCP
// call alone, with no SQL activity at all.
func TestGraph_DNSOnlyAnswerWithDatabasesDisabled(t *testing.T) {
	dnsServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","result":{"ip_addresses":["151.101.1.67","151.101.65.67"]}}`))
	}))
	defer dnsServer.Close()

	planner := &scriptedLLM{responses: []string{
		`{"response":"calling dns","is_final_answer":false,"has_sufficient_info":false,"confidence_level":0.9,"tool_calls":[{"service_id":"dns-1","method":"resolve","params":{"domain":"www.cnn.com"}}]}`,
	}}
	responder := &scriptedLLM{responses: []string{"The IP addresses for www.cnn.com are 151.101.1.67 and 151.101.65.67."}}

	roles := roleSetPerRole(map[llm.Role]llm.LLMClient{
		llm.RoleMCP:      planner,
		llm.RoleResponse: responder,
	}, responder)

	resolver := &fakeResolver{services: []registry.ServiceInfo{{ID: "dns-1", Type: "dns", Host: hostOf(dnsServer), Port: portOf(dnsServer)}}}
	adapter := svcadapter.New(resolver, 5*time.Second, nil)

	deps := &Deps{LLMs: roles, Adapter: adapter}
	graph, err := BuildGraph(deps, 20)
	require.NoError(t, err)

	initial := state.AgentState{
		UserRequest:      "what is ip address for www.cnn.com?",
		DisableDatabases: true,
		DiscoveredServices: []state.ServiceRef{{ID: "dns-1", Type: "dns"}},
	}
	result := graph.Invoke(context.Background(), initial)

	assert.False(t, result.CapReached)
	assert.Empty(t, result.State.SQLQuery)
	assert.Len(t, result.State.MCPToolCalls, 1)
	assert.Equal(t, "dns-1", result.State.MCPToolCalls[0].ServiceID)
	assert.Contains(t, result.State.FinalResponse, "151.101.1.67")
}

// A first candidate with a misspelled column is refined once, and the
// second candidate executes successfully.
func TestGraph_RefinementSucceedsOnSecondAttempt(t *testing.T) {
	planner := &scriptedLLM{responses: []string{
		`{"response":"no tools needed","is_final_answer":false,"has_sufficient_info":false,"confidence_level":0.5,"tool_calls":[]}`,
	}}
	sqlGen := &scriptedLLM{responses: []string{
		"```sql\nSELECT name, phon FROM contacts\n```",
		"```sql\nSELECT name, phone FROM contacts\n```",
	}}
	responder := &scriptedLLM{responses: []string{"Found 3 contacts."}}

	roles := roleSetPerRole(map[llm.Role]llm.LLMClient{
		llm.RoleMCP:      planner,
		llm.RoleSQL:      sqlGen,
		llm.RoleResponse: responder,
	}, responder)

	db := &fakeDB{
		schemas: map[string]map[string]state.TableSchema{
			"primary": {"contacts": {Columns: []state.ColumnInfo{{Name: "name"}, {Name: "phone"}}}},
		},
		rows: map[string][]map[string]any{
			"primary": {
				{"name": "Ada", "phone": "1"},
				{"name": "Bob", "phone": "2"},
				{"name": "Cid", "phone": "3"},
			},
		},
	}

	deps := &Deps{LLMs: roles, DB: db, Adapter: svcadapter.New(&fakeResolver{}, time.Second, nil)}
	graph, err := BuildGraph(deps, 20)
	require.NoError(t, err)

	result := graph.Invoke(context.Background(), state.AgentState{UserRequest: "list the contacts"})

	assert.False(t, result.CapReached)
	require.Len(t, result.State.PreviousSQLQueries, 2)
	assert.Equal(t, 1, result.State.RetryCount)
	assert.Len(t, result.State.DBResults, 3)
	assert.Contains(t, result.State.FinalResponse, "Found 3 contacts")
}

// An initial query returning zero rows triggers the widening loop, which
// produces a broader candidate that finds rows.
func TestGraph_WideningAfterEmptyInitialResult(t *testing.T) {
	planner := &scriptedLLM{responses: []string{
		`{"response":"no tools needed","is_final_answer":false,"has_sufficient_info":false,"confidence_level":0.5,"tool_calls":[]}`,
	}}
	sqlGen := &scriptedLLM{responses: []string{
		"```sql\nSELECT * FROM contacts WHERE country='Atlantis'\n```",
		"```sql\nSELECT * FROM contacts WHERE country IN ('Atlantis','Lemuria','Mu')\n```",
	}}
	promptLLM := &scriptedLLM{responses: []string{"Try widening the country filter to nearby mythical regions."}}
	responder := &scriptedLLM{responses: []string{"Widened the search and found matches."}}

	roles := roleSetPerRole(map[llm.Role]llm.LLMClient{
		llm.RoleMCP:      planner,
		llm.RoleSQL:      sqlGen,
		llm.RolePrompt:   promptLLM,
		llm.RoleResponse: responder,
	}, responder)

	// A query-aware fake is needed here (rather than fakeDB) because the
	// router decision hinges on the literal-filter query returning zero rows
	// while the widened query returns one.
	queryAwareDB := &queryAwareFakeDB{
		schema: map[string]state.TableSchema{"contacts": {Columns: []state.ColumnInfo{{Name: "name"}, {Name: "country"}}}},
		rowsByQuery: map[string][]map[string]any{
			"SELECT * FROM contacts WHERE country IN ('Atlantis','Lemuria','Mu')": {{"name": "Ada", "country": "Lemuria"}},
		},
	}

	deps := &Deps{LLMs: roles, DB: queryAwareDB, Adapter: svcadapter.New(&fakeResolver{}, time.Second, nil)}
	graph, err := BuildGraph(deps, 20)
	require.NoError(t, err)

	result := graph.Invoke(context.Background(), state.AgentState{UserRequest: "find contacts in Atlantis"})

	assert.False(t, result.CapReached)
	assert.Equal(t, state.QueryWiderSearch, result.State.QueryType)
	assert.GreaterOrEqual(t, len(result.State.PreviousSQLQueries), 2)
	assert.Contains(t, result.State.FinalResponse, "Widened")
}

// queryAwareFakeDB returns rows keyed by the exact query text, to exercise
// the zero-rows-then-widen router transition.
type queryAwareFakeDB struct {
	schema      map[string]state.TableSchema
	rowsByQuery map[string][]map[string]any
}

func (q *queryAwareFakeDB) Databases() []string { return []string{"primary"} }
func (q *queryAwareFakeDB) GetSchema(context.Context, string) (map[string]state.TableSchema, error) {
	return q.schema, nil
}
func (q *queryAwareFakeDB) Execute(_ context.Context, _ string, query string) ([]map[string]any, error) {
	return q.rowsByQuery[query], nil
}

// A query spanning two databases tolerates one of them failing: the
// healthy database's rows still ground the answer.
func TestGraph_CrossDatabaseJoinTolerated(t *testing.T) {
	planner := &scriptedLLM{responses: []string{
		`{"response":"no tools needed","is_final_answer":false,"has_sufficient_info":false,"confidence_level":0.5,"tool_calls":[]}`,
	}}
	sqlGen := &scriptedLLM{responses: []string{
		"```sql\nSELECT * FROM users JOIN orders ON users.id = orders.customer_id\n```",
	}}
	responder := &scriptedLLM{responses: []string{"Here is what I found."}}

	roles := roleSetPerRole(map[llm.Role]llm.LLMClient{
		llm.RoleMCP:      planner,
		llm.RoleSQL:      sqlGen,
		llm.RoleResponse: responder,
	}, responder)

	db := &fakeDB{
		schemas: map[string]map[string]state.TableSchema{
			"A": {"users": {Columns: []state.ColumnInfo{{Name: "id"}}}},
			"B": {"orders": {Columns: []state.ColumnInfo{{Name: "customer_id"}}}},
		},
		rows: map[string][]map[string]any{
			"A": {{"id": 1}},
		},
		failOn: map[string]string{"B": "connection refused"},
	}

	deps := &Deps{LLMs: roles, DB: db, Adapter: svcadapter.New(&fakeResolver{}, time.Second, nil)}
	graph, err := BuildGraph(deps, 20)
	require.NoError(t, err)

	result := graph.Invoke(context.Background(), state.AgentState{UserRequest: "join users and orders"})

	assert.False(t, result.CapReached)
	require.Len(t, result.State.DBResults, 1)
	assert.Equal(t, "A", result.State.DBResults[0].SourceDatabase)
	assert.Empty(t, result.State.ExecutionError)
}

// Empty user_request boundary: terminal apology, no LLM calls.
func TestGraph_EmptyUserRequestShortCircuitsWithNoLLMCalls(t *testing.T) {
	planner := &scriptedLLM{responses: []string{"should never be called"}}
	responder := &scriptedLLM{responses: []string{"should never be called"}}
	roles := roleSetPerRole(map[llm.Role]llm.LLMClient{llm.RoleMCP: planner, llm.RoleResponse: responder}, responder)

	deps := &Deps{LLMs: roles, Adapter: svcadapter.New(&fakeResolver{}, time.Second, nil)}
	graph, err := BuildGraph(deps, 20)
	require.NoError(t, err)

	result := graph.Invoke(context.Background(), state.AgentState{UserRequest: ""})

	assert.NotEmpty(t, result.State.FinalResponse)
	assert.Equal(t, 0, planner.callCount())
	assert.Equal(t, 0, responder.callCount())
}

// scenario validating disable_databases invariant 3.
func TestGraph_DisableDatabasesInvariant(t *testing.T) {
	planner := &scriptedLLM{responses: []string{
		`{"response":"no tools needed","is_final_answer":true,"has_sufficient_info":true,"confidence_level":0.9,"tool_calls":[]}`,
	}}
	responder := &scriptedLLM{responses: []string{"No database access was used."}}
	roles := roleSetPerRole(map[llm.Role]llm.LLMClient{llm.RoleMCP: planner, llm.RoleResponse: responder}, responder)

	db := &fakeDB{schemas: map[string]map[string]state.TableSchema{"primary": {}}}
	deps := &Deps{LLMs: roles, DB: db, Adapter: svcadapter.New(&fakeResolver{}, time.Second, nil)}
	graph, err := BuildGraph(deps, 20)
	require.NoError(t, err)

	result := graph.Invoke(context.Background(), state.AgentState{UserRequest: "anything", DisableDatabases: true})

	assert.Empty(t, result.State.SQLQuery)
	assert.Empty(t, result.State.DBResults)
	assert.Empty(t, db.executions)
}

// invariant 2: a refinement loop that never stops failing still exits via
// the exhausted-retries router, within the retry cap, rather than spinning.
func TestGraph_ExhaustedRefinementRoutesToResponseWithinCap(t *testing.T) {
	planner := &scriptedLLM{responses: []string{
		`{"response":"no tools needed","is_final_answer":false,"has_sufficient_info":false,"confidence_level":0.5,"tool_calls":[]}`,
	}}
	sqlGen := &scriptedLLM{responses: []string{"```sql\nSELECT phon FROM contacts\n```"}}
	responder := &scriptedLLM{responses: []string{"fallback"}}
	roles := roleSetPerRole(map[llm.Role]llm.LLMClient{
		llm.RoleMCP: planner, llm.RoleSQL: sqlGen, llm.RoleResponse: responder,
	}, responder)

	db := &fakeDB{
		schemas: map[string]map[string]state.TableSchema{
			"primary": {"contacts": {Columns: []state.ColumnInfo{{Name: "name"}}}},
		},
	}
	deps := &Deps{LLMs: roles, DB: db, Adapter: svcadapter.New(&fakeResolver{}, time.Second, nil)}
	graph, err := BuildGraph(deps, 20)
	require.NoError(t, err)

	result := graph.Invoke(context.Background(), state.AgentState{UserRequest: "always invalid column"})

	assert.False(t, result.CapReached)
	assert.NotEmpty(t, result.State.FinalResponse)
	assert.LessOrEqual(t, len(result.Hops), 20)
}
