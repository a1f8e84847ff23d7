// Package api provides the HTTP status surface for a swimd node:
// health, membership snapshot, and Prometheus metrics. It is an
// operator-facing debugging surface, not part of the shell's public
// Go API, grounded in the teacher's chi router composition style.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tutu-network/swimshell/internal/swimshell"
)

// Control is the subset of *swimshell.Shell the API needs: the
// membership snapshot plus the two bootstrap control entrypoints
// `swimd join`/`swimd confirm-dead` reach through this surface.
type Control interface {
	Members() []swimshell.Member
	ReceiveStartMonitoring(peer swimshell.Node)
	ReceiveConfirmDead(peer swimshell.Node)
}

// Server is swimd's HTTP status server.
type Server struct {
	shell          Control
	metricsEnabled bool
}

// NewServer creates a new API server over shell.
func NewServer(shell Control) *Server {
	return &Server{shell: shell}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/members", s.handleMembers)
	r.Post("/monitor", s.handleMonitor)
	r.Post("/confirm-dead", s.handleConfirmDead)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

type memberView struct {
	Address     string `json:"address"`
	Port        uint16 `json:"port"`
	UID         string `json:"uid"`
	Status      string `json:"status"`
	Incarnation uint64 `json:"incarnation,omitempty"`
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	members := s.shell.Members()
	views := make([]memberView, 0, len(members))
	for _, m := range members {
		views = append(views, memberView{
			Address:     m.Node.Address,
			Port:        m.Node.Port,
			UID:         m.Node.UID,
			Status:      m.Status.Kind.String(),
			Incarnation: m.Status.Incarnation,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

type peerRequest struct {
	Address string `json:"address"`
	Port    uint16 `json:"port"`
	UID     string `json:"uid"`
}

func (s *Server) handleMonitor(w http.ResponseWriter, r *http.Request) {
	var req peerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.shell.ReceiveStartMonitoring(swimshell.Node{Address: req.Address, Port: req.Port, UID: req.UID})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "monitoring"})
}

func (s *Server) handleConfirmDead(w http.ResponseWriter, r *http.Request) {
	var req peerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.shell.ReceiveConfirmDead(swimshell.Node{Address: req.Address, Port: req.Port, UID: req.UID})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "confirmed_dead"})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
