// Package svcadapter implements the uniform call surface to external MCP
// workers: service resolution via the registry, UTF-8-preserving JSON
// marshaling, normalization of heterogeneous reply shapes into one envelope,
// and per-call timeout enforcement.
package svcadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/orchestra-run/queryweave/pkg/registry"
)

// Status values for CallResult.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// CallResult is the uniform envelope every call() normalizes into.
type CallResult struct {
	Status    string
	Result    any
	Error     string
	ErrorKind string // "timeout" | "transport" | "worker" | ""
	Timestamp time.Time
}

// Resolver looks up a reachable endpoint for a service_id or a service type.
// registry.Client satisfies this via Discover.
type Resolver interface {
	Discover(ctx context.Context, serviceType string) ([]registry.ServiceInfo, error)
}

// Adapter is the Service Adapter: call(service, method, params) -> {status, result}.
type Adapter struct {
	resolver   Resolver
	httpClient *http.Client
	logger     *zap.Logger
	timeout    time.Duration
}

// New builds an Adapter. timeout bounds every individual outbound call.
func New(resolver Resolver, timeout time.Duration, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Adapter{
		resolver:   resolver,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("svcadapter"),
		timeout:    timeout,
	}
}

// Call resolves serviceOrType to a reachable endpoint (first by exact
// service_id match, then by type), marshals params with UTF-8 preservation,
// dispatches the action, and normalizes the reply.
func (a *Adapter) Call(ctx context.Context, serviceOrType, action string, params map[string]any) CallResult {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	endpoint, err := a.resolveEndpoint(ctx, serviceOrType)
	if err != nil {
		return CallResult{Status: StatusError, Error: err.Error(), ErrorKind: "transport", Timestamp: time.Now()}
	}

	body := map[string]any{"action": action, "parameters": params}
	payload, err := MarshalUTF8(body)
	if err != nil {
		return CallResult{Status: StatusError, Error: fmt.Sprintf("marshal params: %v", err), ErrorKind: "transport", Timestamp: time.Now()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return CallResult{Status: StatusError, Error: err.Error(), ErrorKind: "transport", Timestamp: time.Now()}
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		kind := "transport"
		if ctx.Err() != nil {
			kind = "timeout"
		}
		return CallResult{Status: StatusError, Error: err.Error(), ErrorKind: kind, Timestamp: time.Now()}
	}
	defer resp.Body.Close()

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return CallResult{Status: StatusError, Error: fmt.Sprintf("decode response: %v", err), ErrorKind: "worker", Timestamp: time.Now()}
	}

	return normalize(raw)
}

func (a *Adapter) resolveEndpoint(ctx context.Context, serviceOrType string) (string, error) {
	services, err := a.resolver.Discover(ctx, "")
	if err != nil {
		return "", fmt.Errorf("resolve %q: discover failed: %w", serviceOrType, err)
	}
	for _, svc := range services {
		if svc.ID == serviceOrType {
			return fmt.Sprintf("http://%s:%d", svc.Host, svc.Port), nil
		}
	}
	for _, svc := range services {
		if svc.Type == serviceOrType {
			return fmt.Sprintf("http://%s:%d", svc.Host, svc.Port), nil
		}
	}
	return "", fmt.Errorf("no reachable service for %q", serviceOrType)
}

// MarshalUTF8 marshals v preserving non-ASCII content (Cyrillic, CJK, etc.)
// instead of escaping it to \uXXXX, so payloads round-trip byte-for-byte
// through the adapter.
func MarshalUTF8(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// json.Encoder.Encode appends a trailing newline; strip it so callers
	// get exactly what json.Marshal would have produced.
	out := buf.Bytes()
	if len(out) > 0 && out[len(out)-1] == '\n' {
		out = out[:len(out)-1]
	}
	return out, nil
}

// normalize collapses the known heterogeneous worker reply shapes into one
// CallResult. Search replies in particular nest their list under several
// different keys depending on which worker produced them; the adapter's job
// is to make callers indifferent to that.
func normalize(raw map[string]any) CallResult {
	now := time.Now()

	status, _ := raw["status"].(string)
	if status == "" {
		status = StatusSuccess
	}
	if status == StatusError {
		errMsg, _ := raw["error"].(string)
		return CallResult{Status: StatusError, Error: errMsg, ErrorKind: "worker", Timestamp: now}
	}

	result := raw["result"]
	if list := extractResultsList(raw); list != nil {
		result = list
	}

	return CallResult{Status: StatusSuccess, Result: result, Timestamp: now}
}

// extractResultsList finds a list view inside any of the recognized reply
// shapes: {result:{result:{results:[...]}}}, {result:{results:[...]}},
// {results:[...]}, {data:[...]}.
func extractResultsList(raw map[string]any) []any {
	if list, ok := asList(raw["results"]); ok {
		return list
	}
	if list, ok := asList(raw["data"]); ok {
		return list
	}
	if inner, ok := raw["result"].(map[string]any); ok {
		if list, ok := asList(inner["results"]); ok {
			return list
		}
		if innerInner, ok := inner["result"].(map[string]any); ok {
			if list, ok := asList(innerInner["results"]); ok {
				return list
			}
		}
	}
	return nil
}

func asList(v any) ([]any, bool) {
	list, ok := v.([]any)
	return list, ok
}
