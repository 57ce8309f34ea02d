package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"fleetopt/internal/model"
	"fleetopt/internal/solver"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SolveWSHandler handles /v1/solve/ws: the client submits a solve request and
// receives progress frames followed by the final solution on one connection.
//
// Client frames: {"type":"solve","id":"...","payload":<solve request>},
// {"type":"ping"}. Server frames: solve.progress, solve.result, error, pong.
func (s *Server) SolveWSHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.CanSolve() {
		writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(8 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// gorilla allows one concurrent writer only
	var wmu sync.Mutex
	write := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		return conn.WriteJSON(v)
	}

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch msg.Type {
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "solve":
			var req model.SolveRequest
			if err := json.Unmarshal(msg.Payload, &req); err != nil {
				_ = write(map[string]any{"type": "error", "id": msg.ID, "error": "invalid payload: " + err.Error()})
				continue
			}
			if err := validateSolveRequest(&req); err != nil {
				_ = write(map[string]any{"type": "error", "id": msg.ID, "error": err.Error()})
				continue
			}
			if req.TenantID == "" {
				req.TenantID = p.Tenant
			}
			if !s.limits.allow(req.TenantID) {
				_ = write(map[string]any{"type": "error", "id": msg.ID, "error": "rate limited"})
				continue
			}

			id := "slv_" + uuid.New().String()
			sv := s.newSolver(r.Context(), req.TenantID, &req)
			sv.Progress = func(iteration int, bestCost float64) {
				_ = write(map[string]any{
					"type": "solve.progress", "id": msg.ID,
					"solveId": id, "iteration": iteration, "bestCost": bestCost,
				})
			}
			sol, stats, err := sv.Solve(r.Context(), req.Orders, req.Vehicles, req.Drivers, req.Constraints)
			if err != nil {
				var verr *solver.ValidationError
				if errors.As(err, &verr) {
					_ = write(map[string]any{"type": "error", "id": msg.ID, "error": verr.Error()})
					continue
				}
				_ = write(map[string]any{"type": "error", "id": msg.ID, "error": err.Error()})
				continue
			}
			rec := model.SolveRecord{
				ID: id, TenantID: req.TenantID, CreatedAt: time.Now().UTC(),
				Orders: len(req.Orders), Vehicles: len(req.Vehicles),
				Solution: sol, Stats: stats,
			}
			_ = s.Store.SaveSolve(r.Context(), rec)
			_ = write(map[string]any{
				"type": "solve.result", "id": msg.ID,
				"solveId": id, "solution": sol, "stats": stats,
			})
		default:
			// ignore unknown frames
		}
	}
}
