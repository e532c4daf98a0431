// Package audit provides security audit logging for SIEM consumption plus
// the metadata-database stores backing LLM conversation recording and the
// SQL attempt log. Log events are structured JSON for easy parsing and
// integration with security information and event management systems.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/orchestra-run/queryweave/pkg/auth"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventSQLInjectionAttempt is logged when libinjection detects SQL injection patterns.
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventHarmfulSQLBlocked is logged when the keyword/pattern screen rejects a candidate.
	EventHarmfulSQLBlocked SecurityEventType = "harmful_sql_blocked"
	// EventSchemaValidationFailure is logged when a candidate references unknown tables or columns.
	EventSchemaValidationFailure SecurityEventType = "schema_validation_failure"
	// EventQueryExecution is logged for successful query execution (optional, can be high volume).
	EventQueryExecution SecurityEventType = "query_execution"
)

// SecurityEvent represents an auditable security event with all relevant context
// for SIEM ingestion and analysis.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	RequestID string            `json:"request_id,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// SQLInjectionDetails contains specifics of a detected SQL injection attempt.
type SQLInjectionDetails struct {
	Query       string `json:"query"`
	Fingerprint string `json:"fingerprint"` // libinjection fingerprint for pattern analysis
}

// BlockedSQLDetails contains specifics of a keyword/pattern screen rejection.
type BlockedSQLDetails struct {
	Query  string `json:"query"`
	Reason string `json:"reason"`
}

// SecurityAuditor logs security events for SIEM consumption.
// Events are logged in structured JSON format with appropriate severity levels.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a new security auditor with a dedicated logger
// namespace ("security_audit") for easy filtering in SIEM systems.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	securityLogger := logger.Named("security_audit")
	return &SecurityAuditor{logger: securityLogger}
}

// LogInjectionAttempt records a detected SQL injection attempt with full context.
// This is logged at ERROR level with "critical" severity for immediate alerting.
func (a *SecurityAuditor) LogInjectionAttempt(ctx context.Context, requestID string, details SQLInjectionDetails) {
	userID := auth.GetUserIDFromContext(ctx)

	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventSQLInjectionAttempt,
		RequestID: requestID,
		UserID:    userID,
		Details:   details,
		Severity:  "critical",
	}

	// Ignoring marshal error as known types never fail to encode
	eventJSON, _ := json.Marshal(event)

	a.logger.Error("SQL injection attempt detected",
		zap.String("event_json", string(eventJSON)),
		zap.String("request_id", requestID),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("user_id", userID),
		zap.String("severity", "critical"),
	)
}

// LogHarmfulSQLBlocked records a keyword/pattern screen rejection.
// Logged at WARN level: these are usually LLM mistakes, occasionally attacks.
func (a *SecurityAuditor) LogHarmfulSQLBlocked(ctx context.Context, requestID string, details BlockedSQLDetails) {
	userID := auth.GetUserIDFromContext(ctx)

	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventHarmfulSQLBlocked,
		RequestID: requestID,
		UserID:    userID,
		Details:   details,
		Severity:  "warning",
	}

	eventJSON, _ := json.Marshal(event)

	a.logger.Warn("Harmful SQL blocked",
		zap.String("event_json", string(eventJSON)),
		zap.String("request_id", requestID),
		zap.String("reason", details.Reason),
		zap.String("user_id", userID),
		zap.String("severity", "warning"),
	)
}

// LogSchemaValidationFailure records a candidate that referenced tables or
// columns missing from the schema dump.
func (a *SecurityAuditor) LogSchemaValidationFailure(ctx context.Context, requestID, errorMessage string) {
	userID := auth.GetUserIDFromContext(ctx)

	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventSchemaValidationFailure,
		RequestID: requestID,
		UserID:    userID,
		Details:   map[string]string{"error": errorMessage},
		Severity:  "warning",
	}

	eventJSON, _ := json.Marshal(event)

	a.logger.Warn("Schema validation failed",
		zap.String("event_json", string(eventJSON)),
		zap.String("request_id", requestID),
		zap.String("error", errorMessage),
		zap.String("user_id", userID),
		zap.String("severity", "warning"),
	)
}

// LogQueryExecution records a successful query execution for audit trail.
// This is logged at INFO level. Note: this can generate high log volume.
func (a *SecurityAuditor) LogQueryExecution(ctx context.Context, requestID, database, query string) {
	userID := auth.GetUserIDFromContext(ctx)

	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventQueryExecution,
		RequestID: requestID,
		UserID:    userID,
		Details: map[string]string{
			"database": database,
			"query":    query,
		},
		Severity: "info",
	}

	eventJSON, _ := json.Marshal(event)

	a.logger.Info("Query executed",
		zap.String("event_json", string(eventJSON)),
		zap.String("request_id", requestID),
		zap.String("database", database),
		zap.String("user_id", userID),
		zap.String("severity", "info"),
	)
}
