package api

import (
	"net/http"
	"time"

	"fleetopt/internal/buildinfo"
)

// DebugJSON reports build and wiring info for operators; no secrets.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"port":           s.Cfg.Server.Port,
			"authMode":       s.Cfg.Auth.Mode,
			"iterations":     s.Cfg.Solver.Iterations,
			"solvePerMinute": s.Cfg.Limits.SolvePerMinute,
			"hasDatabaseUrl": s.Cfg.Backend.DatabaseURL != "",
			"hasRedisUrl":    s.Cfg.Backend.RedisURL != "",
		},
	})
}
