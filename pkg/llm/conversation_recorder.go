package llm

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Conversation statuses.
const (
	ConversationStatusPending = "pending"
	ConversationStatusSuccess = "success"
	ConversationStatusError   = "error"
)

// Conversation is one recorded LLM exchange: the request as sent, the
// response (or error) as received, and usage metadata. Records are written
// best-effort; a failed write never fails the LLM call it describes.
type Conversation struct {
	ID               uuid.UUID
	RequestID        string
	Role             string
	Context          map[string]any
	Endpoint         string
	Model            string
	RequestMessages  []any
	ResponseContent  string
	Temperature      *float64
	PromptTokens     *int
	CompletionTokens *int
	TotalTokens      *int
	DurationMs       int
	Status           string
	ErrorMessage     string
	CreatedAt        time.Time
}

// ConversationStore persists conversation records. Implemented by the audit
// package against the metadata database; tests use in-memory fakes.
type ConversationStore interface {
	Save(ctx context.Context, conv *Conversation) error
	Update(ctx context.Context, conv *Conversation) error
}

// ConversationRecorder records LLM conversations.
type ConversationRecorder interface {
	// Record queues a completed conversation for async persistence.
	Record(conv *Conversation)

	// SavePending synchronously inserts a pending record before the LLM
	// call starts, so in-flight requests are visible.
	SavePending(ctx context.Context, conv *Conversation) error

	// RecordCompletion queues an update for a pending record after the LLM
	// call completes.
	RecordCompletion(conv *Conversation)
}

type recordOp struct {
	conv     *Conversation
	isUpdate bool
}

// AsyncConversationRecorder records conversations asynchronously to avoid
// blocking LLM calls.
type AsyncConversationRecorder struct {
	store  ConversationStore
	logger *zap.Logger
	queue  chan recordOp
	done   chan struct{}
}

// NewAsyncConversationRecorder creates a new async recorder. queueSize
// controls the buffer size - if full, records are dropped with a warning.
func NewAsyncConversationRecorder(store ConversationStore, logger *zap.Logger, queueSize int) *AsyncConversationRecorder {
	if queueSize <= 0 {
		queueSize = 100
	}

	r := &AsyncConversationRecorder{
		store:  store,
		logger: logger.Named("conversation-recorder"),
		queue:  make(chan recordOp, queueSize),
		done:   make(chan struct{}),
	}

	go r.processQueue()

	return r
}

// Record queues a conversation for async persistence. Non-blocking - if the
// queue is full, the record is dropped with a warning.
func (r *AsyncConversationRecorder) Record(conv *Conversation) {
	select {
	case r.queue <- recordOp{conv: conv, isUpdate: false}:
	default:
		r.logger.Warn("Conversation record queue full, dropping entry",
			zap.String("role", conv.Role),
			zap.String("model", conv.Model))
	}
}

// SavePending synchronously inserts a pending record before the LLM call
// starts.
func (r *AsyncConversationRecorder) SavePending(ctx context.Context, conv *Conversation) error {
	conv.Status = ConversationStatusPending

	if err := r.store.Save(ctx, conv); err != nil {
		r.logger.Error("Failed to save pending LLM conversation",
			zap.String("role", conv.Role),
			zap.String("model", conv.Model),
			zap.Error(err))
		return err
	}

	r.logger.Debug("Saved pending LLM conversation",
		zap.String("id", conv.ID.String()),
		zap.String("role", conv.Role),
		zap.String("model", conv.Model))

	return nil
}

// RecordCompletion queues an update for a pending record. Non-blocking - if
// the queue is full, the update is dropped with a warning.
func (r *AsyncConversationRecorder) RecordCompletion(conv *Conversation) {
	select {
	case r.queue <- recordOp{conv: conv, isUpdate: true}:
	default:
		r.logger.Warn("Conversation completion queue full, dropping update",
			zap.String("id", conv.ID.String()),
			zap.String("role", conv.Role))
	}
}

// Close stops the recorder and waits for pending records to be saved.
func (r *AsyncConversationRecorder) Close() {
	close(r.queue)
	<-r.done
}

func (r *AsyncConversationRecorder) processQueue() {
	defer close(r.done)

	for op := range r.queue {
		if op.isUpdate {
			r.updateConversation(op.conv)
		} else {
			r.saveConversation(op.conv)
		}
	}
}

func (r *AsyncConversationRecorder) saveConversation(conv *Conversation) {
	if err := r.store.Save(context.Background(), conv); err != nil {
		r.logger.Error("Failed to save LLM conversation",
			zap.String("role", conv.Role),
			zap.String("model", conv.Model),
			zap.Error(err))
		return
	}

	r.logger.Debug("Saved LLM conversation",
		zap.String("role", conv.Role),
		zap.String("model", conv.Model),
		zap.Int("duration_ms", conv.DurationMs))
}

func (r *AsyncConversationRecorder) updateConversation(conv *Conversation) {
	if err := r.store.Update(context.Background(), conv); err != nil {
		r.logger.Error("Failed to update LLM conversation",
			zap.String("id", conv.ID.String()),
			zap.String("status", conv.Status),
			zap.Error(err))
		return
	}

	r.logger.Debug("Updated LLM conversation",
		zap.String("id", conv.ID.String()),
		zap.String("status", conv.Status),
		zap.Int("duration_ms", conv.DurationMs))
}

var _ ConversationRecorder = (*AsyncConversationRecorder)(nil)
