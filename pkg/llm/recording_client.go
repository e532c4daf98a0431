package llm

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RecordingClient wraps an LLMClient to record all conversations.
type RecordingClient struct {
	inner    LLMClient
	recorder ConversationRecorder
	role     Role
}

// NewRecordingClient creates a new recording wrapper around an LLMClient.
func NewRecordingClient(inner LLMClient, recorder ConversationRecorder, role Role) *RecordingClient {
	return &RecordingClient{
		inner:    inner,
		recorder: recorder,
		role:     role,
	}
}

// GenerateResponse calls the inner client and records the conversation.
// It first inserts a "pending" record, then updates it with the response.
func (c *RecordingClient) GenerateResponse(
	ctx context.Context,
	prompt string,
	systemMessage string,
	temperature float64,
	thinking bool,
) (*GenerateResponseResult, error) {
	// Request messages recorded verbatim
	requestMessages := []any{
		map[string]string{"role": "system", "content": systemMessage},
		map[string]string{"role": "user", "content": prompt},
	}

	recordingContext := GetContext(ctx)
	requestID, _ := recordingContext["request_id"].(string)

	conv := &Conversation{
		ID:              uuid.New(),
		RequestID:       requestID,
		Role:            string(c.role),
		Context:         recordingContext,
		Endpoint:        c.inner.GetEndpoint(),
		Model:           c.inner.GetModel(),
		RequestMessages: requestMessages,
		Temperature:     &temperature,
		Status:          ConversationStatusPending,
	}

	// Insert pending record synchronously (enables in-flight tracking).
	// If this fails, we still proceed with the LLM call - recording is
	// best-effort.
	pendingSaved := c.recorder.SavePending(ctx, conv) == nil

	start := time.Now()

	result, err := c.inner.GenerateResponse(ctx, prompt, systemMessage, temperature, thinking)

	duration := time.Since(start)

	conv.DurationMs = int(duration.Milliseconds())

	if err != nil {
		conv.Status = ConversationStatusError
		conv.ErrorMessage = err.Error()
	} else {
		conv.Status = ConversationStatusSuccess
		if result != nil {
			conv.ResponseContent = result.Content
			conv.PromptTokens = &result.PromptTokens
			conv.CompletionTokens = &result.CompletionTokens
			conv.TotalTokens = &result.TotalTokens
		}
	}

	if pendingSaved {
		c.recorder.RecordCompletion(conv)
	} else {
		c.recorder.Record(conv)
	}

	return result, err
}

// CreateEmbedding delegates to the inner client (not recorded).
func (c *RecordingClient) CreateEmbedding(ctx context.Context, input string, model string) ([]float32, error) {
	return c.inner.CreateEmbedding(ctx, input, model)
}

// CreateEmbeddings delegates to the inner client (not recorded).
func (c *RecordingClient) CreateEmbeddings(ctx context.Context, inputs []string, model string) ([][]float32, error) {
	return c.inner.CreateEmbeddings(ctx, inputs, model)
}

// GetModel returns the inner client's model.
func (c *RecordingClient) GetModel() string {
	return c.inner.GetModel()
}

// GetEndpoint returns the inner client's endpoint.
func (c *RecordingClient) GetEndpoint() string {
	return c.inner.GetEndpoint()
}

var _ LLMClient = (*RecordingClient)(nil)
