package registry

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store is an in-memory, TTL-aware directory of ServiceInfo records keyed by
// service_id. It is the server-side half of the registry: it is what a
// RegistryClient's Register/Heartbeat/Discover/Deregister calls ultimately
// act on, whether embedded in-process (for an engine that also hosts the
// registry) or mounted behind the HTTP surface in main.go.
type Store struct {
	mu       sync.RWMutex
	services map[string]ServiceInfo
	logger   *zap.Logger

	janitorStop chan struct{}
	janitorDone chan struct{}
}

// NewStore creates an empty Store and starts its background expiry janitor.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		services:    make(map[string]ServiceInfo),
		logger:      logger.Named("registry_store"),
		janitorStop: make(chan struct{}),
		janitorDone: make(chan struct{}),
	}
	go s.runJanitor()
	return s
}

// Register inserts or replaces a ServiceInfo record, stamping LastHeartbeat
// to now.
func (s *Store) Register(info ServiceInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info.LastHeartbeat = time.Now()
	s.services[info.ID] = info
	s.logger.Info("service registered", zap.String("service_id", info.ID), zap.String("type", info.Type))
}

// Heartbeat refreshes LastHeartbeat for an existing record. Returns false if
// the service is not currently registered (it may have already expired).
func (s *Store) Heartbeat(serviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.services[serviceID]
	if !ok {
		return false
	}
	info.LastHeartbeat = time.Now()
	s.services[serviceID] = info
	return true
}

// Deregister removes a record immediately, regardless of TTL.
func (s *Store) Deregister(serviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.services, serviceID)
	s.logger.Info("service deregistered", zap.String("service_id", serviceID))
}

// Discover returns all non-expired services, optionally filtered by type.
// An empty typeFilter returns the full list.
func (s *Store) Discover(typeFilter string) []ServiceInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	result := make([]ServiceInfo, 0, len(s.services))
	for _, info := range s.services {
		if info.Expired(now) {
			continue
		}
		if typeFilter != "" && info.Type != typeFilter {
			continue
		}
		result = append(result, info)
	}
	return result
}

// Get returns a single record by id, honoring TTL expiry.
func (s *Store) Get(serviceID string) (ServiceInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.services[serviceID]
	if !ok || info.Expired(time.Now()) {
		return ServiceInfo{}, false
	}
	return info, true
}

// runJanitor periodically sweeps expired records out of the map so Discover
// does not need to do the pruning work on every call under heavy churn.
func (s *Store) runJanitor() {
	defer close(s.janitorDone)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.janitorStop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, info := range s.services {
		if info.Expired(now) {
			delete(s.services, id)
			s.logger.Info("service expired", zap.String("service_id", id), zap.String("type", info.Type))
		}
	}
}

// Shutdown stops the background janitor and waits for it to exit.
func (s *Store) Shutdown() {
	close(s.janitorStop)
	<-s.janitorDone
}
