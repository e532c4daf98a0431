package ragadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/orchestra-run/queryweave/pkg/config"
	"github.com/orchestra-run/queryweave/pkg/state"
)

// ChromaStore implements orchestration.RAGCollaborator against a Chroma
// server's REST API. Only "chroma" is wired end to end; any other
// RAG_VECTOR_STORE_TYPE is rejected at construction rather than silently
// degrading to a no-op store.
type ChromaStore struct {
	baseURL    string
	collection string
	topK       int
	threshold  float64
	embed      EmbeddingClient
	http       *http.Client
	logger     *zap.Logger
}

// NewChromaStore builds a ChromaStore from cfg, talking to a Chroma server
// at baseURL (e.g. "http://localhost:8000").
func NewChromaStore(baseURL string, cfg config.RAGConfig, embed EmbeddingClient, logger *zap.Logger) (*ChromaStore, error) {
	if cfg.VectorStoreType != "chroma" && cfg.VectorStoreType != "" {
		return nil, fmt.Errorf("unsupported RAG_VECTOR_STORE_TYPE %q", cfg.VectorStoreType)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	topK := cfg.TopKResults
	if topK <= 0 {
		topK = 5
	}
	return &ChromaStore{
		baseURL:    baseURL,
		collection: cfg.CollectionName,
		topK:       topK,
		threshold:  cfg.SimilarityThreshold,
		embed:      embed,
		http:       &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}, nil
}

type chromaQueryRequest struct {
	QueryEmbeddings [][]float32 `json:"query_embeddings"`
	NResults        int         `json:"n_results"`
}

type chromaQueryResponse struct {
	IDs       [][]string               `json:"ids"`
	Documents [][]string               `json:"documents"`
	Distances [][]float64              `json:"distances"`
	Metadatas [][]map[string]any       `json:"metadatas"`
}

// Query embeds query and runs a nearest-neighbor search against the
// configured collection, dropping results below SimilarityThreshold.
func (s *ChromaStore) Query(ctx context.Context, query string) ([]state.UnifiedDocument, error) {
	vector, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	body, err := json.Marshal(chromaQueryRequest{QueryEmbeddings: [][]float32{vector}, NResults: s.topK})
	if err != nil {
		return nil, fmt.Errorf("encode chroma query: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/collections/%s/query", s.baseURL, s.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chroma request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call chroma: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chroma returned status %d", resp.StatusCode)
	}

	var parsed chromaQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode chroma response: %w", err)
	}
	if len(parsed.Documents) == 0 {
		return nil, nil
	}

	var docs []state.UnifiedDocument
	for i, content := range parsed.Documents[0] {
		similarity := 1.0
		if i < len(parsed.Distances[0]) {
			similarity = 1.0 - parsed.Distances[0][i]
		}
		if similarity < s.threshold {
			continue
		}
		var metadata map[string]any
		if i < len(parsed.Metadatas[0]) {
			metadata = parsed.Metadatas[0][i]
		}
		source := sourceFromMetadata(metadata)
		if source == "" && i < len(parsed.IDs[0]) {
			source = parsed.IDs[0][i]
		}
		docs = append(docs, state.UnifiedDocument{
			Content:        content,
			Source:         source,
			SourceType:     state.SourceLocalDocument,
			RelevanceScore: similarity,
			Metadata:       metadata,
		})
	}
	return docs, nil
}

// sourceFromMetadata picks the most specific identifier the store recorded
// for a chunk; generic placeholders are never used.
func sourceFromMetadata(metadata map[string]any) string {
	for _, key := range []string{"source", "file_name", "filename", "title", "path", "file_path", "stored_file_path"} {
		if v, ok := metadata[key].(string); ok && v != "" && !state.IsGenericSource(v) {
			return v
		}
	}
	return ""
}
