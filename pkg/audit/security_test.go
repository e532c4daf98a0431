package audit

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedAuditor() (*SecurityAuditor, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewSecurityAuditor(zap.New(core)), logs
}

func TestLogInjectionAttempt(t *testing.T) {
	auditor, logs := newObservedAuditor()

	auditor.LogInjectionAttempt(context.Background(), "req-1", SQLInjectionDetails{
		Query:       "SELECT * FROM t WHERE 1=1 UNION SELECT password FROM users",
		Fingerprint: "s&1U",
	})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "critical", entry.ContextMap()["severity"])
	assert.Equal(t, "s&1U", entry.ContextMap()["fingerprint"])

	// event_json must parse and carry the typed event
	var event SecurityEvent
	require.NoError(t, json.Unmarshal([]byte(entry.ContextMap()["event_json"].(string)), &event))
	assert.Equal(t, EventSQLInjectionAttempt, event.EventType)
	assert.Equal(t, "req-1", event.RequestID)
}

func TestLogHarmfulSQLBlocked(t *testing.T) {
	auditor, logs := newObservedAuditor()

	auditor.LogHarmfulSQLBlocked(context.Background(), "req-2", BlockedSQLDetails{
		Query:  "DROP TABLE users",
		Reason: "harmful verb DROP",
	})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "harmful verb DROP", entry.ContextMap()["reason"])
}

func TestLogQueryExecution(t *testing.T) {
	auditor, logs := newObservedAuditor()

	auditor.LogQueryExecution(context.Background(), "req-3", "primary", "SELECT 1")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	assert.Equal(t, "primary", entry.ContextMap()["database"])
}
