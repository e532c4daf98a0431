package ragadapter

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/orchestra-run/queryweave/pkg/llm"
	"github.com/orchestra-run/queryweave/pkg/state"
)

// EmbeddingReranker orders UnifiedDocuments by cosine similarity between
// the query's embedding and each document's embedding, reusing whichever
// EmbeddingClient the RAG collaborator was built with rather than a
// dedicated reranking model. Document embeddings run through a bounded
// worker pool so a large search batch doesn't flood the embedding endpoint.
type EmbeddingReranker struct {
	embed EmbeddingClient
	pool  *llm.WorkerPool
}

// NewEmbeddingReranker builds a Reranker backed by embed.
func NewEmbeddingReranker(embed EmbeddingClient, logger *zap.Logger) *EmbeddingReranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmbeddingReranker{
		embed: embed,
		pool:  llm.NewWorkerPool(llm.DefaultWorkerPoolConfig(), logger),
	}
}

// Rerank returns docs sorted by descending similarity to query. Documents
// whose embedding fails keep a zero score and sink to the end.
func (r *EmbeddingReranker) Rerank(ctx context.Context, query string, docs []state.UnifiedDocument) ([]state.UnifiedDocument, error) {
	if len(docs) == 0 {
		return docs, nil
	}
	queryVec, err := r.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query for rerank: %w", err)
	}

	scored := make([]state.UnifiedDocument, len(docs))
	copy(scored, docs)

	items := make([]llm.WorkItem, len(scored))
	for i := range scored {
		content := scored[i].Content
		items[i] = llm.WorkItem{
			ID: strconv.Itoa(i),
			Execute: func(ctx context.Context) (any, error) {
				return r.embed.Embed(ctx, content)
			},
		}
	}

	for _, result := range r.pool.Process(ctx, items, nil) {
		if result.Err != nil {
			continue
		}
		idx, err := strconv.Atoi(result.ID)
		if err != nil {
			continue
		}
		if docVec, ok := result.Result.([]float32); ok {
			scored[idx].RelevanceScore = cosineSimilarity(queryVec, docVec)
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].RelevanceScore > scored[j].RelevanceScore
	})
	return scored, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
