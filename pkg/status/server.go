// Package status exposes a read-only operator view of the master
// daemon's directory and counters over HTTP and a websocket stream. It
// never participates in the wire protocol and cannot mutate any master
// state — it only ever receives snapshot copies.
package status

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/doomward/masterd/pkg/metrics"
)

// Snapshot is the point-in-time view published once per engine tick.
type Snapshot struct {
	Verified      int             `json:"verified"`
	Total         int             `json:"total"`
	Metrics       metrics.Snapshot `json:"metrics"`
	UptimeSeconds int64           `json:"uptime_seconds"`
}

// Server serves the read-only status surface.
type Server struct {
	startedAt time.Time

	mu   sync.RWMutex
	last Snapshot

	hub *hub
}

// New constructs a status Server. It does not listen by itself; the
// caller serves Router() with an http.Server.
func New() *Server {
	return &Server{
		startedAt: time.Now(),
		hub:       newHub(),
	}
}

// Publish records the latest snapshot and fans it out to any connected
// websocket subscribers. It never blocks: a slow subscriber simply misses
// an update rather than stalling the caller (the engine goroutine).
func (s *Server) Publish(verified, total int, m metrics.Snapshot) {
	snap := Snapshot{
		Verified:      verified,
		Total:         total,
		Metrics:       m,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}
	s.mu.Lock()
	s.last = snap
	s.mu.Unlock()

	s.hub.broadcast(snap)
}

// Router returns the HTTP handler for the status surface.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/status/stream", s.handleStream)
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	snap := s.last
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	s.hub.serve(w, r)
}
