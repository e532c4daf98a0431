package orchestration

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/orchestra-run/queryweave/pkg/llm"
	"github.com/orchestra-run/queryweave/pkg/registry"
	"github.com/orchestra-run/queryweave/pkg/state"
)

// scriptedLLM returns each entry of responses in turn, one per call; the
// last entry repeats once exhausted. Useful for nodes that call the same
// role twice in a refine/widen loop.
type scriptedLLM struct {
	responses []string
	calls     int32
}

func (f *scriptedLLM) GenerateResponse(_ context.Context, _ string, _ string, _ float64, _ bool) (*llm.GenerateResponseResult, error) {
	i := int(atomic.AddInt32(&f.calls, 1)) - 1
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return &llm.GenerateResponseResult{Content: f.responses[i]}, nil
}
func (f *scriptedLLM) CreateEmbedding(context.Context, string, string) ([]float32, error) { return nil, nil }
func (f *scriptedLLM) CreateEmbeddings(context.Context, []string, string) ([][]float32, error) {
	return nil, nil
}
func (f *scriptedLLM) GetModel() string    { return "fake" }
func (f *scriptedLLM) GetEndpoint() string { return "fake://" }

func (f *scriptedLLM) callCount() int { return int(atomic.LoadInt32(&f.calls)) }

// erroringLLM always fails, to exercise fallback paths.
type erroringLLM struct{}

func (erroringLLM) GenerateResponse(context.Context, string, string, float64, bool) (*llm.GenerateResponseResult, error) {
	return nil, fmt.Errorf("llm unavailable")
}
func (erroringLLM) CreateEmbedding(context.Context, string, string) ([]float32, error) { return nil, nil }
func (erroringLLM) CreateEmbeddings(context.Context, []string, string) ([][]float32, error) {
	return nil, nil
}
func (erroringLLM) GetModel() string    { return "erroring" }
func (erroringLLM) GetEndpoint() string { return "erroring://" }

func roleSetAllSame(client llm.LLMClient) *llm.RoleSet {
	clients := make(map[llm.Role]llm.LLMClient, len(llm.AllRoles))
	for _, r := range llm.AllRoles {
		clients[r] = client
	}
	return llm.NewRoleSetFromClients(clients)
}

func roleSetPerRole(perRole map[llm.Role]llm.LLMClient, fallback llm.LLMClient) *llm.RoleSet {
	clients := make(map[llm.Role]llm.LLMClient, len(llm.AllRoles))
	for _, r := range llm.AllRoles {
		if c, ok := perRole[r]; ok {
			clients[r] = c
			continue
		}
		clients[r] = fallback
	}
	return llm.NewRoleSetFromClients(clients)
}

// fakeDB is an in-memory DatabaseManager: schema and rows are pre-seeded per
// database name, and Execute can be scripted to fail for specific databases.
type fakeDB struct {
	schemas    map[string]map[string]state.TableSchema
	rows       map[string][]map[string]any
	failOn     map[string]string
	executions []string // records every database Execute was called against
}

func (f *fakeDB) Databases() []string {
	names := make([]string, 0, len(f.schemas))
	for name := range f.schemas {
		names = append(names, name)
	}
	return names
}

func (f *fakeDB) GetSchema(_ context.Context, database string) (map[string]state.TableSchema, error) {
	return f.schemas[database], nil
}

func (f *fakeDB) Execute(_ context.Context, database, query string) ([]map[string]any, error) {
	f.executions = append(f.executions, database)
	if reason, fail := f.failOn[database]; fail {
		return nil, fmt.Errorf("%s", reason)
	}
	return f.rows[database], nil
}

// fakeResolver satisfies svcadapter.Resolver with a fixed service list.
type fakeResolver struct {
	services []registry.ServiceInfo
}

func (f *fakeResolver) Discover(_ context.Context, _ string) ([]registry.ServiceInfo, error) {
	return f.services, nil
}
