package orchestration

import (
	"github.com/orchestra-run/queryweave/pkg/graphrt"
)

// Node name constants.
const (
	NodeGetSchema                      = "get_schema"
	NodeAnalyzeRequest                 = "analyze_request"
	NodeExecuteMCPQueries               = "execute_mcp_queries"
	NodeGenerateSQL                     = "generate_sql"
	NodeValidateSQL                     = "validate_sql"
	NodeExecuteSQL                      = "execute_sql"
	NodeRefineSQL                       = "refine_sql"
	NodeGenerateWiderSearchQuery        = "generate_wider_search_query"
	NodeProcessSearchResultsWithDownload = "process_search_results_with_download"
	NodeRetrieveDocuments               = "retrieve_documents"
	NodeAugmentContext                  = "augment_context"
	NodeGeneratePrompt                  = "generate_prompt"
	NodeGenerateResponse                = "generate_response"
)

// BuildGraph assembles the full orchestration graph over deps: every
// processing node plus the conditional routing between them.
func BuildGraph(deps *Deps, recursionCap int) (*graphrt.Graph, error) {
	b := graphrt.NewBuilder(recursionCap, deps.log())

	b.AddNode(NodeGetSchema, deps.GetSchema)
	b.AddNode(NodeAnalyzeRequest, deps.AnalyzeRequest)
	b.AddNode(NodeExecuteMCPQueries, deps.ExecuteMCPQueries)
	b.AddNode(NodeGenerateSQL, deps.GenerateSQL)
	b.AddNode(NodeValidateSQL, deps.ValidateSQL)
	b.AddNode(NodeExecuteSQL, deps.ExecuteSQL)
	b.AddNode(NodeRefineSQL, deps.RefineSQL)
	b.AddNode(NodeGenerateWiderSearchQuery, deps.GenerateWiderSearchQuery)
	b.AddNode(NodeProcessSearchResultsWithDownload, deps.ProcessSearchResultsWithDownload)
	b.AddNode(NodeRetrieveDocuments, deps.RetrieveDocuments)
	b.AddNode(NodeAugmentContext, deps.AugmentContext)
	b.AddNode(NodeGeneratePrompt, deps.GeneratePrompt)
	b.AddNode(NodeGenerateResponse, deps.GenerateResponse)

	b.SetEntry(NodeGetSchema)
	b.AddEdge(NodeGetSchema, NodeAnalyzeRequest)

	b.AddConditionalEdge(NodeAnalyzeRequest, AfterAnalyzeRequest, map[string]string{
		labelEmptyRequest: graphrt.Terminal,
		labelContinue:     NodeExecuteMCPQueries,
	})

	b.AddConditionalEdge(NodeExecuteMCPQueries, AfterMCPExecution, map[string]string{
		labelSkipSQL: NodeProcessSearchResultsWithDownload,
		labelSQLPath: NodeGenerateSQL,
	})

	b.AddEdge(NodeGenerateSQL, NodeValidateSQL)

	b.AddConditionalEdge(NodeValidateSQL, AfterValidateSQL, map[string]string{
		labelRefine:       NodeRefineSQL,
		labelExecuteWider: NodeExecuteSQL,
		labelExecute:      NodeExecuteSQL,
	})

	b.AddConditionalEdge(NodeExecuteSQL, AfterExecuteSQL, map[string]string{
		labelWiden:    NodeGenerateWiderSearchQuery,
		labelFinalize: NodeProcessSearchResultsWithDownload,
	})

	b.AddConditionalEdge(NodeRefineSQL, AfterRefineSQL, map[string]string{
		labelRetryRefine: NodeValidateSQL,
		labelExhausted:   NodeProcessSearchResultsWithDownload,
	})

	b.AddEdge(NodeGenerateWiderSearchQuery, NodeValidateSQL)

	b.AddEdge(NodeProcessSearchResultsWithDownload, NodeRetrieveDocuments)
	b.AddEdge(NodeRetrieveDocuments, NodeAugmentContext)
	b.AddEdge(NodeAugmentContext, NodeGeneratePrompt)
	b.AddEdge(NodeGeneratePrompt, NodeGenerateResponse)
	b.AddEdge(NodeGenerateResponse, graphrt.Terminal)

	return b.Build()
}
