package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultHeartbeatInterval is the default H in "heartbeat every H seconds".
	DefaultHeartbeatInterval = 20 * time.Second
	// DefaultTTL is the default registry record TTL.
	DefaultTTL = 45 * time.Second
)

var heartbeatBackoff = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}

// Client is the registry client: it registers a service, maintains a
// cancellable background heartbeat with exponential backoff, discovers other
// services, and deregisters on shutdown. It speaks plain JSON-over-HTTP to
// either an external registry or the in-process Store's HTTP surface.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	mu            sync.Mutex
	heartbeatStop chan struct{}
	heartbeatDone chan struct{}
}

// NewClient builds a registry client pointed at baseURL (e.g. MCP_REGISTRY_URL).
func NewClient(baseURL string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.Named("registry_client"),
	}
}

type registerRequest struct {
	Action  string      `json:"action"`
	Service ServiceInfo `json:"service_info"`
	TTL     int         `json:"ttl"`
}

type actionResponse struct {
	Status string            `json:"status"`
	Error  string            `json:"error,omitempty"`
	Result []ServiceInfo     `json:"result,omitempty"`
}

// Register posts the service's info with the given TTL in seconds.
func (c *Client) Register(ctx context.Context, info ServiceInfo, ttlSeconds int) error {
	info.TTLSeconds = ttlSeconds
	body := registerRequest{Action: "register", Service: info, TTL: ttlSeconds}
	var resp actionResponse
	if err := c.post(ctx, body, &resp); err != nil {
		return err
	}
	if resp.Status != "success" {
		return fmt.Errorf("registry: register failed: %s", resp.Error)
	}
	return nil
}

// Heartbeat sends a single heartbeat refresh for serviceID.
func (c *Client) Heartbeat(ctx context.Context, serviceID string) error {
	body := map[string]any{"action": "heartbeat", "service_id": serviceID}
	var resp actionResponse
	if err := c.post(ctx, body, &resp); err != nil {
		return err
	}
	if resp.Status != "success" {
		return fmt.Errorf("registry: heartbeat failed: %s", resp.Error)
	}
	return nil
}

// Discover fetches services, optionally filtered by type ("" = all).
func (c *Client) Discover(ctx context.Context, serviceType string) ([]ServiceInfo, error) {
	body := map[string]any{"action": "discover", "type": serviceType}
	var resp actionResponse
	if err := c.post(ctx, body, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("registry: discover failed: %s", resp.Error)
	}
	return resp.Result, nil
}

// Deregister removes serviceID from the registry.
func (c *Client) Deregister(ctx context.Context, serviceID string) error {
	body := map[string]any{"action": "deregister", "service_id": serviceID}
	var resp actionResponse
	if err := c.post(ctx, body, &resp); err != nil {
		return err
	}
	if resp.Status != "success" {
		return fmt.Errorf("registry: deregister failed: %s", resp.Error)
	}
	return nil
}

func (c *Client) post(ctx context.Context, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("registry: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("registry: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("registry: request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("registry: decode response: %w", err)
	}
	return nil
}

// StartHeartbeat launches a cancellable background goroutine that sends a
// heartbeat every interval. On failure it retries with exponential backoff
// (1, 2, 4, 8 seconds; cap 8s) before returning to the normal interval;
// heartbeat failures never terminate the hosting service and are isolated
// from request execution.
func (c *Client) StartHeartbeat(ctx context.Context, serviceID string, interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.heartbeatStop != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	c.heartbeatStop = stop
	c.heartbeatDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.heartbeatWithRetry(ctx, serviceID, stop)
			}
		}
	}()
}

func (c *Client) heartbeatWithRetry(ctx context.Context, serviceID string, stop <-chan struct{}) {
	if err := c.Heartbeat(ctx, serviceID); err == nil {
		return
	}

	for _, delay := range heartbeatBackoff {
		c.logger.Warn("heartbeat failed, retrying with backoff",
			zap.String("service_id", serviceID), zap.Duration("delay", delay))
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if err := c.Heartbeat(ctx, serviceID); err == nil {
			return
		}
	}
	c.logger.Error("heartbeat exhausted backoff, will retry on next tick", zap.String("service_id", serviceID))
}

// StopHeartbeat cancels the background heartbeat goroutine and waits for it
// to exit cleanly.
func (c *Client) StopHeartbeat() {
	c.mu.Lock()
	stop := c.heartbeatStop
	done := c.heartbeatDone
	c.heartbeatStop = nil
	c.heartbeatDone = nil
	c.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}
