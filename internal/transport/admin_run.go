package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tsgraph/internal/graph"
)

// handleAdminRun triggers a Runner.Run (or RunParallel) over the named
// targets and returns the resulting report. Requires JWT or X-API-Key auth.
func (s *Server) handleAdminRun(w http.ResponseWriter, r *http.Request) {
	if s.Auth == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "admin endpoint disabled: no auth configured"})
		return
	}
	caller, err := s.Auth.ExtractCaller(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}

	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("decode request: %v", err)})
		return
	}
	if len(req.Targets) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "targets must be non-empty"})
		return
	}

	targets := make([]*graph.Task, 0, len(req.Targets))
	for _, name := range req.Targets {
		task, ok := s.TaskByName[name]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("unknown target %q", name)})
			return
		}
		targets = append(targets, task)
	}

	ctx := r.Context()
	started := time.Now()

	var runErr error
	var nodeCount int
	if req.Parallel {
		workers := req.Workers
		if workers <= 0 {
			workers = 4
		}
		rep, err := s.Runner.RunParallel(ctx, targets, workers)
		runErr = err
		if rep != nil {
			nodeCount = len(rep.Nodes)
			if s.Bus != nil {
				s.Bus.PublishReport(rep)
			}
			s.recordReport(rep)
		}
	} else {
		rep, err := s.Runner.Run(ctx, targets)
		runErr = err
		if rep != nil {
			nodeCount = len(rep.Nodes)
			if s.Bus != nil {
				s.Bus.PublishReport(rep)
			}
			s.recordReport(rep)
		}
	}

	if runErr != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": runErr.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"caller":        caller,
		"targets":       req.Targets,
		"nodes_visited": nodeCount,
		"duration_ms":   time.Since(started).Milliseconds(),
	})
}
