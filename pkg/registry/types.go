// Package registry implements the service-registry client and an in-memory
// server-side store: registration, heartbeat with exponential backoff,
// discovery, deregistration, and TTL-based expiry.
package registry

import "time"

// ServiceInfo is one registry record for a live MCP worker.
type ServiceInfo struct {
	ID            string    `json:"id"`
	Host          string    `json:"host"`
	Port          int       `json:"port"`
	Type          string    `json:"type"`
	Metadata      Metadata  `json:"metadata"`
	TTLSeconds    int       `json:"ttl_seconds"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Metadata is the free-form ServiceInfo.metadata payload; Capabilities and
// StartedAt are the fields every worker is expected to populate.
type Metadata struct {
	Capabilities []string       `json:"capabilities"`
	StartedAt    time.Time      `json:"started_at"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// Expired reports whether the record has outlived its TTL as of now.
func (s ServiceInfo) Expired(now time.Time) bool {
	return now.Sub(s.LastHeartbeat) > time.Duration(s.TTLSeconds)*time.Second
}
