package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/orchestra-run/queryweave/pkg/database"
	"github.com/orchestra-run/queryweave/pkg/llm"
)

// Store persists audit records to the metadata database: recorded LLM
// conversations, the per-run SQL attempt log, and MCP tool-call events.
// All writes are best-effort from the caller's perspective; a nil Store is
// never constructed (callers that run without a metadata database simply
// don't wire one).
type Store struct {
	db *database.DB
}

// NewStore creates a Store over the metadata database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Save inserts a conversation record. Implements llm.ConversationStore.
func (s *Store) Save(ctx context.Context, conv *llm.Conversation) error {
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}

	requestJSON, err := json.Marshal(conv.RequestMessages)
	if err != nil {
		return fmt.Errorf("marshal request messages: %w", err)
	}
	contextJSON, err := json.Marshal(conv.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}

	const q = `
		INSERT INTO llm_conversations (
			id, request_id, role, context, endpoint, model,
			request_messages, response_content, temperature,
			prompt_tokens, completion_tokens, total_tokens,
			duration_ms, status, error_message, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`

	_, err = s.db.Exec(ctx, q,
		conv.ID, conv.RequestID, conv.Role, contextJSON, conv.Endpoint, conv.Model,
		requestJSON, conv.ResponseContent, conv.Temperature,
		conv.PromptTokens, conv.CompletionTokens, conv.TotalTokens,
		conv.DurationMs, conv.Status, conv.ErrorMessage, conv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert llm conversation: %w", err)
	}
	return nil
}

// Update finalizes a pending conversation record. Implements
// llm.ConversationStore.
func (s *Store) Update(ctx context.Context, conv *llm.Conversation) error {
	const q = `
		UPDATE llm_conversations SET
			response_content = $2,
			prompt_tokens = $3,
			completion_tokens = $4,
			total_tokens = $5,
			duration_ms = $6,
			status = $7,
			error_message = $8
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, q,
		conv.ID, conv.ResponseContent,
		conv.PromptTokens, conv.CompletionTokens, conv.TotalTokens,
		conv.DurationMs, conv.Status, conv.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("update llm conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update llm conversation: no row with id %s", conv.ID)
	}
	return nil
}

var _ llm.ConversationStore = (*Store)(nil)

// SQLAttemptRecord is one row of the persistent SQL attempt log, mirroring
// the in-state attempt log for observability across runs.
type SQLAttemptRecord struct {
	ID        uuid.UUID
	RequestID string
	Query     string
	ErrorTag  string // generation | validation | execution | schema | "" for success
	RetryKind string // initial | refine | widen
	CreatedAt time.Time
}

// RecordSQLAttempt appends one attempt to the persistent log.
func (s *Store) RecordSQLAttempt(ctx context.Context, rec SQLAttemptRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	const q = `
		INSERT INTO sql_attempts (id, request_id, query, error_tag, retry_kind, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`

	if _, err := s.db.Exec(ctx, q, rec.ID, rec.RequestID, rec.Query, rec.ErrorTag, rec.RetryKind, rec.CreatedAt); err != nil {
		return fmt.Errorf("insert sql attempt: %w", err)
	}
	return nil
}

// MCPEventRecord is one recorded MCP tool call against the engine's own MCP
// surface.
type MCPEventRecord struct {
	ID            uuid.UUID
	Tool          string
	Arguments     map[string]any
	WasSuccessful bool
	DurationMs    *int
	ResultSummary string
	ErrorMessage  string
	CreatedAt     time.Time
}

// RecordMCPEvent appends one MCP tool-call event.
func (s *Store) RecordMCPEvent(ctx context.Context, rec MCPEventRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	argsJSON, err := json.Marshal(rec.Arguments)
	if err != nil {
		return fmt.Errorf("marshal arguments: %w", err)
	}

	const q = `
		INSERT INTO mcp_events (id, tool, arguments, was_successful, duration_ms, result_summary, error_message, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	if _, err := s.db.Exec(ctx, q, rec.ID, rec.Tool, argsJSON, rec.WasSuccessful, rec.DurationMs, rec.ResultSummary, rec.ErrorMessage, rec.CreatedAt); err != nil {
		return fmt.Errorf("insert mcp event: %w", err)
	}
	return nil
}
