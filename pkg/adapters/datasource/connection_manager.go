package datasource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/orchestra-run/queryweave/pkg/logging"
	"github.com/orchestra-run/queryweave/pkg/retry"
)

const (
	DefaultConnectionTTLMinutes = 5
	DefaultCleanupInterval      = 1 * time.Minute
	DefaultPoolMaxConns         = 10
	DefaultPoolMinConns         = 1
)

// ConnectionManagerConfig holds configuration for the connection manager
type ConnectionManagerConfig struct {
	TTLMinutes   int
	PoolMaxConns int32
	PoolMinConns int32
}

// ConnectionManager manages one connection pool per configured source with
// TTL-based expiry and automatic cleanup. Pools are shared across requests;
// per-request state never lives here.
type ConnectionManager struct {
	mu           sync.RWMutex
	connections  map[string]*ManagedConnection // key: logical source name
	ttl          time.Duration
	poolMaxConns int32
	poolMinConns int32
	stopped      bool
	stopChan     chan struct{}
	logger       *zap.Logger
}

// ManagedConnection represents a pooled connection with usage tracking
type ManagedConnection struct {
	connector PoolConnector
	lastUsed  time.Time
	mu        sync.Mutex // Per-connection mutex to prevent concurrent access issues
}

// NewConnectionManager creates a connection manager with the given configuration.
// Starts a background cleanup goroutine that runs until Close() is called.
func NewConnectionManager(cfg ConnectionManagerConfig, logger *zap.Logger) *ConnectionManager {
	if cfg.TTLMinutes <= 0 {
		cfg.TTLMinutes = DefaultConnectionTTLMinutes
	}
	if cfg.PoolMaxConns <= 0 {
		cfg.PoolMaxConns = DefaultPoolMaxConns
	}
	if cfg.PoolMinConns <= 0 {
		cfg.PoolMinConns = DefaultPoolMinConns
	}

	manager := &ConnectionManager{
		connections:  make(map[string]*ManagedConnection),
		ttl:          time.Duration(cfg.TTLMinutes) * time.Minute,
		poolMaxConns: cfg.PoolMaxConns,
		poolMinConns: cfg.PoolMinConns,
		stopChan:     make(chan struct{}),
		logger:       logger,
	}

	go manager.cleanupExpiredConnections()
	return manager
}

// poolConfig returns the ConnectionManagerConfig this manager was built with,
// for handing to the per-type pool factories.
func (m *ConnectionManager) poolConfig() ConnectionManagerConfig {
	return ConnectionManagerConfig{
		TTLMinutes:   int(m.ttl.Minutes()),
		PoolMaxConns: m.poolMaxConns,
		PoolMinConns: m.poolMinConns,
	}
}

// GetOrCreatePool gets or creates a PostgreSQL connection pool for the given
// source. An existing pool is health-checked before reuse and recreated if
// dead.
func (m *ConnectionManager) GetOrCreatePool(
	ctx context.Context,
	source string,
	connString string,
) (*pgxpool.Pool, error) {
	connector, err := m.getOrCreateConnector(ctx, source, func(ctx context.Context) (PoolConnector, error) {
		return CreatePostgresPool(ctx, connString, m.poolConfig())
	})
	if err != nil {
		return nil, err
	}
	return GetPostgresPool(connector)
}

// RegisterConnection stores an externally-created connector (MSSQL adapters
// build their own *sql.DB due to auth variety) under source, returning the
// managed connector. If a healthy connector is already registered for the
// source, the existing one wins and the caller should close its own.
func (m *ConnectionManager) RegisterConnection(ctx context.Context, source string, connector PoolConnector) (PoolConnector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if managed, exists := m.connections[source]; exists && managed != nil {
		managed.mu.Lock()
		healthy := managed.connector.Ping(ctx) == nil
		if healthy {
			managed.lastUsed = time.Now()
			managed.mu.Unlock()
			return managed.connector, nil
		}
		managed.connector.Close()
		managed.mu.Unlock()
		delete(m.connections, source)
	}

	m.connections[source] = &ManagedConnection{
		connector: connector,
		lastUsed:  time.Now(),
	}
	m.logger.Info("registered connection",
		zap.String("source", source),
		zap.String("type", connector.GetType()),
	)
	return connector, nil
}

// getOrCreateConnector is the shared lookup/health-check/create path.
func (m *ConnectionManager) getOrCreateConnector(
	ctx context.Context,
	source string,
	create func(ctx context.Context) (PoolConnector, error),
) (PoolConnector, error) {
	// Try existing connection with read lock (fast path)
	m.mu.RLock()
	managed, exists := m.connections[source]
	m.mu.RUnlock()

	if exists {
		managed.mu.Lock()

		// Health check with retry and timeout
		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		err := retry.Do(healthCtx, retry.DefaultConfig(), func() error {
			return managed.connector.Ping(healthCtx)
		})

		if err != nil {
			// Unhealthy - log sanitized error, remove, and recreate
			m.logger.Warn("connection unhealthy, recreating",
				zap.String("source", source),
				zap.String("error", logging.SanitizeError(err)),
			)
			managed.mu.Unlock() // Unlock before calling removeConnection
			m.removeConnection(source)
			return m.createNewConnector(ctx, source, create)
		}

		// Update last used time and return connector
		managed.lastUsed = time.Now()
		managed.mu.Unlock()
		return managed.connector, nil
	}

	return m.createNewConnector(ctx, source, create)
}

// createNewConnector creates a new connector with retry logic.
// Caller must NOT hold any locks (this method acquires write lock).
func (m *ConnectionManager) createNewConnector(
	ctx context.Context,
	source string,
	create func(ctx context.Context) (PoolConnector, error),
) (PoolConnector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock (another goroutine may have created it)
	if managed, exists := m.connections[source]; exists && managed != nil {
		managed.mu.Lock()
		defer managed.mu.Unlock()
		managed.lastUsed = time.Now()
		return managed.connector, nil
	}

	// Create connector with retry logic for transient failures
	connector, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (PoolConnector, error) {
		return create(ctx)
	})
	if err != nil {
		m.logger.Error("failed to create pool after retries",
			zap.String("source", source),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, fmt.Errorf("failed to create pool for %s after retries: %w", source, err)
	}

	m.connections[source] = &ManagedConnection{
		connector: connector,
		lastUsed:  time.Now(),
	}

	m.logger.Info("created new connection pool",
		zap.String("source", source),
		zap.String("type", connector.GetType()),
		zap.Int("totalPools", len(m.connections)),
	)

	return connector, nil
}

// removeConnection removes a connection from the pool and closes it.
// Caller must NOT hold m.mu lock (this method acquires write lock).
func (m *ConnectionManager) removeConnection(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if managed, exists := m.connections[source]; exists && managed != nil {
		if managed.connector != nil {
			managed.connector.Close()
		}
		delete(m.connections, source)
		m.logger.Debug("removed connection",
			zap.String("source", source),
		)
	}
}

// cleanupExpiredConnections runs periodically to remove expired connections.
// Runs in a background goroutine until stopChan is closed.
func (m *ConnectionManager) cleanupExpiredConnections() {
	ticker := time.NewTicker(DefaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.performCleanup()
		case <-m.stopChan:
			return
		}
	}
}

// performCleanup removes connections that haven't been used within TTL.
// Uses lock ordering: manager lock then connection lock to prevent deadlocks.
func (m *ConnectionManager) performCleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}

	now := time.Now()
	expiredKeys := []string{}

	for source, managed := range m.connections {
		if managed != nil {
			managed.mu.Lock()
			expired := now.Sub(managed.lastUsed) > m.ttl
			idleTime := now.Sub(managed.lastUsed)
			managed.mu.Unlock()

			if expired {
				expiredKeys = append(expiredKeys, source)
				m.logger.Debug("marking connection for cleanup",
					zap.String("source", source),
					zap.Duration("idleTime", idleTime),
					zap.Duration("ttl", m.ttl),
				)
			}
		}
	}

	// Close and remove expired connections
	for _, source := range expiredKeys {
		if managed, exists := m.connections[source]; exists && managed != nil {
			if managed.connector != nil {
				managed.connector.Close()
			}
			delete(m.connections, source)
		}
	}

	if len(expiredKeys) > 0 {
		m.logger.Info("cleaned up expired connections",
			zap.Int("count", len(expiredKeys)),
			zap.Int("remaining", len(m.connections)),
		)
	}
}

// Close closes all connections in the manager and stops the cleanup goroutine.
// This method is idempotent and safe to call multiple times.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil
	}

	m.stopped = true
	close(m.stopChan)

	// Close all managed connections
	for _, managed := range m.connections {
		if managed != nil && managed.connector != nil {
			managed.connector.Close()
		}
	}

	m.connections = make(map[string]*ManagedConnection)
	m.logger.Info("connection manager closed")
	return nil
}

// GetStats returns statistics about the connection manager.
// Safe to call concurrently.
func (m *ConnectionManager) GetStats() ConnectionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	stats := ConnectionStats{
		TotalConnections:  len(m.connections),
		TTLMinutes:        int(m.ttl.Minutes()),
		ConnectionsByType: make(map[string]int),
		OldestIdleSeconds: 0,
	}

	for _, managed := range m.connections {
		if managed == nil {
			continue
		}
		stats.ConnectionsByType[managed.connector.GetType()]++

		// Track oldest idle connection
		managed.mu.Lock()
		idleSeconds := int(now.Sub(managed.lastUsed).Seconds())
		managed.mu.Unlock()
		if idleSeconds > stats.OldestIdleSeconds {
			stats.OldestIdleSeconds = idleSeconds
		}
	}

	return stats
}

// ConnectionStats contains statistics about the connection manager state.
type ConnectionStats struct {
	TotalConnections  int            `json:"total_connections"`
	TTLMinutes        int            `json:"ttl_minutes"`
	ConnectionsByType map[string]int `json:"connections_by_type"`
	OldestIdleSeconds int            `json:"oldest_idle_seconds"`
}
