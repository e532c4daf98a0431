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
)

// huggingFaceClient talks to a local HuggingFace-style embedding server
// (e.g. text-embeddings-inference) over plain HTTP/JSON; no SDK dependency
// is needed since the wire format is a single POST with a JSON body.
type huggingFaceClient struct {
	endpoint string
	model    string
	http     *http.Client
	logger   *zap.Logger
}

func newHuggingFaceClient(cfg config.RAGConfig, logger *zap.Logger) *huggingFaceClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	endpoint := cfg.EmbeddingEndpoint
	if endpoint == "" {
		endpoint = "http://localhost:8080/embed"
	}
	return &huggingFaceClient{
		endpoint: endpoint,
		model:    cfg.EmbeddingModel,
		http:     &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

type hfEmbedRequest struct {
	Inputs string `json:"inputs"`
	Model  string `json:"model,omitempty"`
}

func (c *huggingFaceClient) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(hfEmbedRequest{Inputs: text, Model: c.model})
	if err != nil {
		return nil, fmt.Errorf("encode embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call embedding server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding server returned status %d", resp.StatusCode)
	}

	// text-embeddings-inference returns a bare [[f32...]] for a single input.
	var parsed [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(parsed) == 0 {
		return nil, fmt.Errorf("embedding server returned no vectors")
	}
	return parsed[0], nil
}
