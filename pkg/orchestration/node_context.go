package orchestration

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/orchestra-run/queryweave/pkg/llm"
	"github.com/orchestra-run/queryweave/pkg/state"
)

const searchServiceType = "search"

// ProcessSearchResultsWithDownload enriches search output: for every MCP result
// that came from a search-type service, fetch the page body, summarize it in
// the context of user_request, then rerank the summarized set.
func (d *Deps) ProcessSearchResultsWithDownload(ctx context.Context, s state.AgentState) (state.AgentState, error) {
	searchResults := searchTypeResults(s)
	if len(searchResults) == 0 {
		return s, nil
	}
	if d.Download == nil {
		return s, nil
	}

	docs := make([]state.UnifiedDocument, len(searchResults))
	var wg sync.WaitGroup
	for i, item := range searchResults {
		wg.Add(1)
		go func(i int, item map[string]any) {
			defer wg.Done()
			docs[i] = d.processOneSearchResult(ctx, s.UserRequest, item)
		}(i, item)
	}
	wg.Wait()

	nonEmpty := docs[:0]
	for _, doc := range docs {
		if doc.Content != "" {
			nonEmpty = append(nonEmpty, doc)
		}
	}
	docs = nonEmpty

	if d.Reranker != nil && len(docs) > 1 {
		ranked, err := d.Reranker.Rerank(ctx, s.UserRequest, docs)
		if err != nil {
			d.log().Warn("rerank failed, using unranked order", zap.Error(err))
		} else {
			docs = ranked
		}
	}

	s.RAGDocuments = append(s.RAGDocuments, docs...)
	return s, nil
}

func (d *Deps) processOneSearchResult(ctx context.Context, userRequest string, item map[string]any) state.UnifiedDocument {
	docURL, _ := item["url"].(string)
	title, _ := item["title"].(string)

	var body string
	if docURL != "" {
		fetched, err := d.Download.Fetch(ctx, docURL)
		if err != nil {
			d.log().Warn("download failed", zap.String("url", docURL), zap.Error(err))
			return state.UnifiedDocument{}
		}
		body = fetched
	}
	if body == "" {
		return state.UnifiedDocument{}
	}

	summary := body
	if client := d.LLMs.Get(llm.RoleResponse); client != nil {
		result, err := client.GenerateResponse(ctx, buildSummarizePrompt(userRequest, body), "You summarize web content concisely.", 0.2, false)
		if err == nil {
			summary = result.Content
		}
	}

	source := hostnameOf(docURL)
	if source == "" {
		source = title
	}

	return state.UnifiedDocument{
		Content:    summary,
		Source:     source,
		SourceType: state.SourceProcessedSearch,
		URL:        docURL,
		Title:      title,
	}
}

// searchTypeResults collects the individual result items out of every
// mcp_service_results entry whose service_id resolves to a search-type
// service's result list.
func searchTypeResults(s state.AgentState) []map[string]any {
	searchServiceIDs := make(map[string]bool)
	for _, svc := range s.DiscoveredServices {
		if svc.Type == searchServiceType {
			searchServiceIDs[svc.ID] = true
		}
	}

	var items []map[string]any
	for _, res := range s.MCPServiceResults {
		if !searchServiceIDs[res.ServiceID] || res.Status != "success" {
			continue
		}
		list, ok := res.Result.([]any)
		if !ok {
			continue
		}
		for _, entry := range list {
			if m, ok := entry.(map[string]any); ok {
				items = append(items, m)
			}
		}
	}
	return items
}

func hostnameOf(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// RetrieveDocuments queries the vector store; it only runs when the plan included a
// tool call against a rag-type service.
func (d *Deps) RetrieveDocuments(ctx context.Context, s state.AgentState) (state.AgentState, error) {
	if d.RAG == nil || !planIncludedRAGCall(s) {
		return s, nil
	}
	docs, err := d.RAG.Query(ctx, s.UserRequest)
	if err != nil {
		d.log().Warn("RAG query failed", zap.Error(err))
		return s, nil
	}
	s.RAGDocuments = append(s.RAGDocuments, docs...)
	return s, nil
}

func planIncludedRAGCall(s state.AgentState) bool {
	ragServiceIDs := make(map[string]bool)
	for _, svc := range s.DiscoveredServices {
		if svc.Type == "rag" {
			ragServiceIDs[svc.ID] = true
		}
	}
	for _, call := range s.MCPToolCalls {
		if ragServiceIDs[call.ServiceID] {
			return true
		}
	}
	return false
}

// AugmentContext builds a compact evidence string from documents, database
// rows, and service results, applying the source-resolution priority rule.
func (d *Deps) AugmentContext(_ context.Context, s state.AgentState) (state.AgentState, error) {
	var b strings.Builder

	for _, doc := range s.RAGDocuments {
		source := resolveSource(doc)
		fmt.Fprintf(&b, "[%s] %s\n", source, doc.Content)
	}

	for _, row := range s.DBResults {
		fmt.Fprintf(&b, "[db:%s] %v\n", row.SourceDatabase, row.Values)
	}

	for _, res := range s.MCPServiceResults {
		if res.Status == "success" {
			fmt.Fprintf(&b, "[mcp:%s/%s] %v\n", res.ServiceID, res.Action, res.Result)
		}
	}

	s.ResponsePrompt = b.String()
	return s, nil
}

// resolveSource picks the most specific identifier: metadata keys first, then
// top-level source, then URL hostname, then top-level title. Generic
// placeholder values are treated as absent at every step.
func resolveSource(doc state.UnifiedDocument) string {
	metadataKeys := []string{"source", "file_name", "filename", "title", "url", "path", "file_path", "stored_file_path"}
	for _, key := range metadataKeys {
		if v, ok := doc.Metadata[key]; ok {
			if s, ok := v.(string); ok && s != "" && !state.IsGenericSource(s) {
				return s
			}
		}
	}
	if doc.Source != "" && !state.IsGenericSource(doc.Source) {
		return doc.Source
	}
	if host := hostnameOf(doc.URL); host != "" {
		return host
	}
	if doc.Title != "" && !state.IsGenericSource(doc.Title) {
		return doc.Title
	}
	return "unknown source"
}

// GeneratePrompt combines the user request with the augmented evidence
// into the synthesizer prompt.
func (d *Deps) GeneratePrompt(_ context.Context, s state.AgentState) (state.AgentState, error) {
	s.ResponsePrompt = buildResponsePrompt(s, s.ResponsePrompt)
	return s, nil
}

// GenerateResponse invokes the response LLM and writes final_response;
// it is the graph's terminal node.
func (d *Deps) GenerateResponse(ctx context.Context, s state.AgentState) (state.AgentState, error) {
	if s.FinalResponse != "" {
		return s, nil
	}

	client := d.LLMs.Get(llm.RoleResponse)
	result, err := client.GenerateResponse(ctx, s.ResponsePrompt, "Answer clearly and ground every claim in the evidence given.", 0.3, false)
	if err != nil {
		_, errText := s.ActiveError()
		if errText == "" {
			errText = err.Error()
		}
		s.FinalResponse = fmt.Sprintf("I wasn't able to produce a grounded answer: %s", errText)
		return s, nil
	}

	s.FinalResponse = result.Content
	return s, nil
}
