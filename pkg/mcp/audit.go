package mcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/orchestra-run/queryweave/pkg/audit"
)

// EventRecorder persists MCP tool-call events. *audit.Store satisfies this.
type EventRecorder interface {
	RecordMCPEvent(ctx context.Context, rec audit.MCPEventRecord) error
}

// AuditLogger writes MCP audit events asynchronously via mcp-go hooks.
type AuditLogger struct {
	recorder EventRecorder
	logger   *zap.Logger

	// startTimes tracks when tool calls begin, keyed by request ID.
	startTimes sync.Map
}

// NewAuditLogger creates an AuditLogger that records MCP events.
// recorder may be nil; events are then logged but not persisted.
func NewAuditLogger(recorder EventRecorder, logger *zap.Logger) *AuditLogger {
	return &AuditLogger{
		recorder: recorder,
		logger:   logger.Named("mcp-audit"),
	}
}

// Hooks returns mcp-go Hooks configured to capture tool call events.
func (a *AuditLogger) Hooks() *server.Hooks {
	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(a.beforeCallTool)
	hooks.AddAfterCallTool(a.afterCallTool)
	hooks.AddOnError(a.onError)
	return hooks
}

func (a *AuditLogger) beforeCallTool(_ context.Context, id any, _ *mcplib.CallToolRequest) {
	a.startTimes.Store(id, time.Now())
}

func (a *AuditLogger) afterCallTool(ctx context.Context, id any, req *mcplib.CallToolRequest, result *mcplib.CallToolResult) {
	startTime, _ := a.loadAndDeleteStart(id)
	durationMs := int(time.Since(startTime).Milliseconds())

	rec := audit.MCPEventRecord{
		Tool:          req.Params.Name,
		Arguments:     sanitizeParams(req.Params.Arguments),
		WasSuccessful: result == nil || !result.IsError,
		DurationMs:    &durationMs,
		ResultSummary: summarizeResult(result),
	}

	go a.record(rec)
}

func (a *AuditLogger) onError(_ context.Context, id any, method mcplib.MCPMethod, message any, err error) {
	if method != mcplib.MethodToolsCall {
		return
	}

	req, ok := message.(*mcplib.CallToolRequest)
	if !ok {
		return
	}

	startTime, _ := a.loadAndDeleteStart(id)
	durationMs := int(time.Since(startTime).Milliseconds())

	rec := audit.MCPEventRecord{
		Tool:          req.Params.Name,
		Arguments:     sanitizeParams(req.Params.Arguments),
		WasSuccessful: false,
		DurationMs:    &durationMs,
		ErrorMessage:  err.Error(),
	}

	go a.record(rec)
}

func (a *AuditLogger) loadAndDeleteStart(id any) (time.Time, bool) {
	if v, ok := a.startTimes.LoadAndDelete(id); ok {
		return v.(time.Time), true
	}
	return time.Now(), false
}

// record writes the audit event asynchronously; failures are logged, never
// surfaced to the tool caller.
func (a *AuditLogger) record(rec audit.MCPEventRecord) {
	a.logger.Debug("MCP tool call",
		zap.String("tool", rec.Tool),
		zap.Bool("was_successful", rec.WasSuccessful),
	)

	if a.recorder == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.recorder.RecordMCPEvent(ctx, rec); err != nil {
		a.logger.Error("Failed to record MCP audit event",
			zap.Error(err),
			zap.String("tool", rec.Tool))
	}
}

// maxAuditSQLSize is the maximum size of SQL strings stored in audit logs.
const maxAuditSQLSize = 10240 // 10KB

// sensitiveKeyFragments flags parameter names whose values are hashed rather
// than stored.
var sensitiveKeyFragments = []string{"password", "secret", "token", "key", "credential"}

// sanitizeParams sanitizes request parameters before storing in the audit
// log: SQL truncation and sensitive value hashing.
func sanitizeParams(args any) map[string]any {
	params, ok := args.(map[string]any)
	if !ok || len(params) == 0 {
		return nil
	}

	sanitized := make(map[string]any, len(params))
	for k, v := range params {
		sanitized[k] = sanitizeValue(k, v)
	}
	return sanitized
}

func sanitizeValue(key string, value any) any {
	lowerKey := strings.ToLower(key)
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(lowerKey, fragment) {
			return hashSensitiveValue(value)
		}
	}

	if str, ok := value.(string); ok && len(str) > maxAuditSQLSize {
		return str[:maxAuditSQLSize] + "...[truncated]"
	}
	if nested, ok := value.(map[string]any); ok {
		return sanitizeParams(nested)
	}
	return value
}

// hashSensitiveValue replaces a sensitive value with a short SHA-256 digest
// so audit entries remain correlatable without storing the secret.
func hashSensitiveValue(value any) string {
	raw := fmt.Sprintf("%v", value)
	sum := sha256.Sum256([]byte(raw))
	return "sha256:" + hex.EncodeToString(sum[:8])
}

// summarizeResult reduces a tool result to a compact audit summary string.
func summarizeResult(result *mcplib.CallToolResult) string {
	if result == nil {
		return ""
	}

	summary := map[string]any{
		"is_error": result.IsError,
	}

	if len(result.Content) > 0 {
		summary["content_count"] = len(result.Content)
		// Include a truncated preview of the first text content
		for _, c := range result.Content {
			if tc, ok := c.(mcplib.TextContent); ok {
				text := tc.Text
				extractRowCount(text, summary)
				if len(text) > 200 {
					text = text[:200] + "...[truncated]"
				}
				summary["preview"] = text
				break
			}
		}
	}

	out, err := json.Marshal(summary)
	if err != nil {
		return ""
	}
	return string(out)
}

// extractRowCount attempts to extract the row_count field from a JSON text
// response so large result sets are visible in the audit trail without
// parsing the full response.
func extractRowCount(text string, summary map[string]any) {
	var partial struct {
		RowCount *int `json:"row_count"`
	}
	if err := json.Unmarshal([]byte(text), &partial); err == nil && partial.RowCount != nil {
		summary["row_count"] = *partial.RowCount
	}
}
