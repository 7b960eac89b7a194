// Package transport exposes the optional HTTP/gRPC operational surface:
// a status endpoint, an authenticated admin-run trigger, a live-progress
// websocket, and a gRPC health check, built on a gorilla/mux router with
// commonMiddleware and rateLimitMiddleware, plus a dual JWT/API-key
// AuthMiddleware.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"tsgraph/internal/engine"
	"tsgraph/internal/graph"
	"tsgraph/internal/notify"
	"tsgraph/internal/runner"
)

// RunRequest names the targets a POST /admin/run call should execute.
type RunRequest struct {
	Targets  []string `json:"targets"`
	Parallel bool     `json:"parallel"`
	Workers  int      `json:"workers"`
}

// Server is the HTTP operational surface. DefaultEngine is held for
// reference only: the gRPC health check is a separate GRPCServer given its
// own engine by NewGRPCServer. TaskByName resolves a RunRequest's
// target names to constructed Tasks the Runner knows about.
type Server struct {
	Runner       *runner.Runner
	Bus          *notify.Bus
	Auth         *AuthMiddleware
	DefaultEngine engine.Engine
	TaskByName   map[string]*graph.Task

	httpServer   *http.Server
	notifyCounts func() (delivered, failed int64)
	wsHubOnce    sync.Once
	wsHub        *hub

	reportHistory struct {
		mu      sync.Mutex
		reports []*runner.Report
		max     int
	}
}

// NewServer builds a Server bound to addr. If auth is nil, /admin/run is
// unreachable (returns 503) rather than silently unauthenticated.
func NewServer(addr string, rnr *runner.Runner, bus *notify.Bus, auth *AuthMiddleware, defaultEngine engine.Engine, taskByName map[string]*graph.Task) *Server {
	s := &Server{
		Runner:        rnr,
		Bus:           bus,
		Auth:          auth,
		DefaultEngine: defaultEngine,
		TaskByName:    taskByName,
	}
	s.reportHistory.max = 20

	r := mux.NewRouter()
	r.Use(commonMiddleware)
	r.Use(rateLimitMiddleware)

	r.HandleFunc("/status", s.handleStatus).Methods("GET", "OPTIONS")
	r.HandleFunc("/admin/run", s.handleAdminRun).Methods("POST", "OPTIONS")
	r.HandleFunc("/ws", s.handleWebSocket).Methods("GET", "OPTIONS")

	s.httpServer = &http.Server{Addr: addr, Handler: r}
	return s
}

// Start runs the HTTP server until it errors or is shut down.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func commonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recordReport(report *runner.Report) {
	s.reportHistory.mu.Lock()
	defer s.reportHistory.mu.Unlock()
	s.reportHistory.reports = append(s.reportHistory.reports, report)
	if n := len(s.reportHistory.reports); n > s.reportHistory.max {
		s.reportHistory.reports = s.reportHistory.reports[n-s.reportHistory.max:]
	}
}

// handleStatus returns the last N Runner reports. Unauthenticated,
// rate-limited per source IP.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.reportHistory.mu.Lock()
	reports := make([]*runner.Report, len(s.reportHistory.reports))
	copy(reports, s.reportHistory.reports)
	s.reportHistory.mu.Unlock()

	type nodeView struct {
		Hash    string `json:"hash"`
		Name    string `json:"name"`
		Outcome string `json:"outcome"`
		Err     string `json:"error,omitempty"`
	}
	out := make([][]nodeView, len(reports))
	for i, rep := range reports {
		nodes := make([]nodeView, 0, len(rep.Nodes))
		for h, nr := range rep.Nodes {
			v := nodeView{Hash: h.String(), Name: nr.Name, Outcome: nr.Outcome.String()}
			if nr.Err != nil {
				v.Err = nr.Err.Error()
			}
			nodes = append(nodes, v)
		}
		out[i] = nodes
	}

	var delivered, failed int64
	if s.notifyCounts != nil {
		delivered, failed = s.notifyCounts()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reports":            out,
		"notify_delivered":   delivered,
		"notify_failed":      failed,
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
	})
}

// notifyCounts, if set, supplies delivered/failed counters from a
// notify.Orchestrator for the /status payload.
func (s *Server) SetNotifyCounts(f func() (delivered, failed int64)) {
	s.notifyCounts = f
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
