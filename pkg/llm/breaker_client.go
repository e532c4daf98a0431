package llm

import (
	"context"
	"fmt"
)

// BreakerClient wraps an LLMClient with a circuit breaker so a flapping
// endpoint fails fast instead of stalling every graph node that uses it.
type BreakerClient struct {
	inner   LLMClient
	breaker *CircuitBreaker
}

// NewBreakerClient wraps inner with a circuit breaker using config.
func NewBreakerClient(inner LLMClient, config CircuitBreakerConfig) *BreakerClient {
	return &BreakerClient{
		inner:   inner,
		breaker: NewCircuitBreaker(config),
	}
}

// GenerateResponse calls the inner client if the circuit allows it.
func (c *BreakerClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64, thinking bool) (*GenerateResponseResult, error) {
	if ok, err := c.breaker.Allow(); !ok {
		return nil, fmt.Errorf("llm endpoint %s: %w", c.inner.GetEndpoint(), err)
	}
	result, err := c.inner.GenerateResponse(ctx, prompt, systemMessage, temperature, thinking)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, err
	}
	c.breaker.RecordSuccess()
	return result, nil
}

// CreateEmbedding delegates to the inner client under the same breaker.
func (c *BreakerClient) CreateEmbedding(ctx context.Context, input string, model string) ([]float32, error) {
	if ok, err := c.breaker.Allow(); !ok {
		return nil, fmt.Errorf("llm endpoint %s: %w", c.inner.GetEndpoint(), err)
	}
	out, err := c.inner.CreateEmbedding(ctx, input, model)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, err
	}
	c.breaker.RecordSuccess()
	return out, nil
}

// CreateEmbeddings delegates to the inner client under the same breaker.
func (c *BreakerClient) CreateEmbeddings(ctx context.Context, inputs []string, model string) ([][]float32, error) {
	if ok, err := c.breaker.Allow(); !ok {
		return nil, fmt.Errorf("llm endpoint %s: %w", c.inner.GetEndpoint(), err)
	}
	out, err := c.inner.CreateEmbeddings(ctx, inputs, model)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, err
	}
	c.breaker.RecordSuccess()
	return out, nil
}

// GetModel returns the inner client's model.
func (c *BreakerClient) GetModel() string { return c.inner.GetModel() }

// GetEndpoint returns the inner client's endpoint.
func (c *BreakerClient) GetEndpoint() string { return c.inner.GetEndpoint() }

var _ LLMClient = (*BreakerClient)(nil)
