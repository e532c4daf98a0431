package registry

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// actionRequest is the wire shape every registry action shares:
// POST / with {action, ...}.
type actionRequest struct {
	Action    string      `json:"action"`
	Service   ServiceInfo `json:"service_info"`
	TTL       int         `json:"ttl"`
	ServiceID string      `json:"service_id"`
	Type      string      `json:"type"`
}

type actionReply struct {
	Status string        `json:"status"`
	Error  string        `json:"error,omitempty"`
	Result []ServiceInfo `json:"result,omitempty"`
}

// Handler exposes the Store over the single-action HTTP surface the Client
// speaks, so the engine can host a registry for development or tests.
func (s *Store) Handler(logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("registry_http")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeReply(w, http.StatusMethodNotAllowed, actionReply{Status: "error", Error: "POST required"})
			return
		}

		var req actionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeReply(w, http.StatusBadRequest, actionReply{Status: "error", Error: "invalid JSON body"})
			return
		}

		switch req.Action {
		case "register":
			info := req.Service
			if info.ID == "" {
				writeReply(w, http.StatusBadRequest, actionReply{Status: "error", Error: "service_info.id is required"})
				return
			}
			if req.TTL > 0 {
				info.TTLSeconds = req.TTL
			}
			s.Register(info)
			writeReply(w, http.StatusOK, actionReply{Status: "success"})

		case "heartbeat":
			if !s.Heartbeat(req.ServiceID) {
				writeReply(w, http.StatusOK, actionReply{Status: "error", Error: "unknown or expired service_id"})
				return
			}
			writeReply(w, http.StatusOK, actionReply{Status: "success"})

		case "discover":
			writeReply(w, http.StatusOK, actionReply{Status: "success", Result: s.Discover(req.Type)})

		case "deregister":
			s.Deregister(req.ServiceID)
			writeReply(w, http.StatusOK, actionReply{Status: "success"})

		default:
			logger.Debug("unknown registry action", zap.String("action", req.Action))
			writeReply(w, http.StatusBadRequest, actionReply{Status: "error", Error: "unknown action"})
		}
	})
}

func writeReply(w http.ResponseWriter, status int, reply actionReply) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(reply)
}
