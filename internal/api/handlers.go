package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"fleetopt/internal/eta"
	"fleetopt/internal/metrics"
	"fleetopt/internal/model"
	"fleetopt/internal/solver"
	"fleetopt/internal/store"
	"fleetopt/internal/webhooks"
)

// newSolver builds a solver from server defaults, the tenant's saved config
// and per-request overrides, in that order.
func (s *Server) newSolver(ctx context.Context, tenant string, req *model.SolveRequest) *solver.Solver {
	sv := solver.New()
	sv.Iterations = s.Cfg.Solver.Iterations
	if s.Cfg.Solver.DestroyFraction > 0 {
		sv.DestroyFraction = s.Cfg.Solver.DestroyFraction
	}
	if s.Cfg.Solver.TimeBudgetMs > 0 {
		sv.TimeBudget = time.Duration(s.Cfg.Solver.TimeBudgetMs) * time.Millisecond
	}
	sv.Estimator = s.ETA

	if cfg, err := s.Store.GetSolverConfig(ctx, tenant); err == nil && cfg != nil {
		if v, ok := cfg["iterations"].(float64); ok && v > 0 {
			sv.Iterations = int(v)
		}
		if v, ok := cfg["destroyFraction"].(float64); ok && v > 0 && v < 1 {
			sv.DestroyFraction = v
		}
		if v, ok := cfg["timeBudgetMs"].(float64); ok && v > 0 {
			sv.TimeBudget = time.Duration(v) * time.Millisecond
		}
		if m, ok := cfg["weights"].(map[string]any); ok {
			for k, raw := range m {
				if v, ok := raw.(float64); ok {
					applyWeight(&sv.Weights, k, v)
				}
			}
		}
	}

	if req.MaxIterations > 0 {
		sv.Iterations = req.MaxIterations
	}
	if req.TimeBudgetMs > 0 {
		sv.TimeBudget = time.Duration(req.TimeBudgetMs) * time.Millisecond
	}
	sv.Seed = req.Seed
	for k, v := range req.Weights {
		applyWeight(&sv.Weights, k, v)
	}
	return sv
}

func applyWeight(w *solver.Weights, key string, v float64) {
	switch key {
	case "pickupDistance":
		w.PickupDistance = v
	case "timeWindowPenalty":
		w.TimeWindowPenalty = v
	case "utilization":
		w.Utilization = v
	case "routeDistance":
		w.RouteDistance = v
	case "routeDuration":
		w.RouteDuration = v
	case "violationPenalty":
		w.ViolationPenalty = v
	}
}

// SolveHandler handles POST /v1/solve.
func (s *Server) SolveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.CanSolve() {
		writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path)
		return
	}
	if !s.limits.allow(p.Tenant) {
		metrics.RateLimited.Inc()
		writeProblem(w, http.StatusTooManyRequests, "Rate limited", "solve rate exceeded for tenant", r.URL.Path)
		return
	}
	var req model.SolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateSolveRequest(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid solve request", err.Error(), r.URL.Path)
		return
	}
	if req.TenantID == "" {
		req.TenantID = p.Tenant
	}

	id := "slv_" + uuid.New().String()
	sv := s.newSolver(r.Context(), req.TenantID, &req)
	sv.Progress = func(iteration int, bestCost float64) {
		if iteration%10 != 0 {
			return
		}
		s.Broker.Publish(id, SSEEvent{Type: "solve.progress", Data: map[string]any{
			"solveId":   id,
			"iteration": iteration,
			"bestCost":  bestCost,
		}})
	}

	start := time.Now()
	sol, stats, err := sv.Solve(r.Context(), req.Orders, req.Vehicles, req.Drivers, req.Constraints)
	if err != nil {
		var verr *solver.ValidationError
		if errors.As(err, &verr) {
			writeProblem(w, http.StatusBadRequest, "Invalid solve input", verr.Error(), r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Solve failed", err.Error(), r.URL.Path)
		return
	}
	metrics.SolveDuration.Observe(time.Since(start).Seconds())
	metrics.SolveIterations.Observe(float64(stats.Iterations))
	assigned := len(sol.Assignments)
	metrics.SolveOrders.WithLabelValues("assigned").Add(float64(assigned))
	metrics.SolveOrders.WithLabelValues("unassignable").Add(float64(len(req.Orders) - assigned))

	rec := model.SolveRecord{
		ID:        id,
		TenantID:  req.TenantID,
		CreatedAt: time.Now().UTC(),
		Orders:    len(req.Orders),
		Vehicles:  len(req.Vehicles),
		Solution:  sol,
		Stats:     stats,
	}
	if err := s.Store.SaveSolve(r.Context(), rec); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Save solve failed", err.Error(), r.URL.Path)
		return
	}

	summary := map[string]any{
		"solveId":    id,
		"assigned":   assigned,
		"orders":     len(req.Orders),
		"totalCost":  sol.TotalCost,
		"violations": len(sol.Violations),
	}
	s.Broker.Publish(id, SSEEvent{Type: webhooks.EventSolveCompleted, Data: summary})
	s.Pub.Emit(r.Context(), req.TenantID, webhooks.EventSolveCompleted, summary)

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "solution": sol, "stats": stats})
}

// SolvesHandler handles GET /v1/solves.
func (s *Server) SolvesHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/solves" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListSolves(r.Context(), p.Tenant, cursor, limit)
	if err != nil {
		writeProblem(w, 500, "List solves failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

// SolveByIDHandler handles GET /v1/solves/{id} and the SSE stream at
// /v1/solves/{id}/events/stream.
func (s *Server) SolveByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/solves/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]

	if len(parts) > 2 && parts[1] == "events" && parts[2] == "stream" {
		s.streamSolveEvents(w, r, id)
		return
	}

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	rec, err := s.Store.GetSolve(r.Context(), p.Tenant, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Solve not found", "", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Get solve failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) streamSolveEvents(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)

	heartbeat := func() {
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"solveId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
		flusher.Flush()
	}
	heartbeat()
	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt := <-ch:
			b, _ := json.Marshal(evt.Data)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", string(b))
			flusher.Flush()
		case <-time.After(15 * time.Second):
			heartbeat()
		}
	}
}

// ETAPredictHandler handles POST /v1/eta/predict.
func (s *Server) ETAPredictHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.ETARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	at := req.TimeOfDay
	if at.IsZero() {
		at = time.Now()
	}
	minutes, err := s.ETA.Predict(r.Context(), req.From, req.To, req.VehicleType, at)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Predict failed", err.Error(), r.URL.Path)
		return
	}
	mult := eta.TrafficMultiplier(at.Hour())
	band := "free_flow"
	if mult > 1.0 {
		band = "rush_hour"
	}
	metrics.ETAPredictions.WithLabelValues(band).Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"minutes":           minutes,
		"trafficMultiplier": mult,
		"at":                at.Format(time.RFC3339),
	})
}

// ETAActualsHandler handles POST /v1/eta/actuals.
func (s *Server) ETAActualsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.ETAActual
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := s.ETA.RecordActual(r.Context(), req.From, req.To, req.ActualMinutes); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid actual", err.Error(), r.URL.Path)
		return
	}
	metrics.ETAActuals.Inc()
	p := s.getPrincipal(r)
	s.Pub.Emit(r.Context(), p.Tenant, webhooks.EventETARecorded, map[string]any{
		"from":          req.From,
		"to":            req.To,
		"actualMinutes": req.ActualMinutes,
	})
	writeJSON(w, http.StatusAccepted, map[string]bool{"ok": true})
}

// SubscriptionsHandler handles POST/GET /v1/subscriptions.
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.URL == "" || len(req.Events) == 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events are required", r.URL.Path)
			return
		}
		if req.TenantID == "" {
			req.TenantID = s.tenant(r)
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		p := s.getPrincipal(r)
		if !p.IsAdmin() {
			writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
			return
		}
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListSubscriptions(r.Context(), p.Tenant, cursor, limit)
		if err != nil {
			writeProblem(w, 500, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/subscriptions/{id}.
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/v1/subscriptions/") {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(405)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
	if err := s.Store.DeleteSubscription(r.Context(), p.Tenant, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, 404, "Subscription not found", "", r.URL.Path)
			return
		}
		writeProblem(w, 500, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(204)
}

// SolverConfigHandler returns effective solver defaults for the tenant.
func (s *Server) SolverConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/solver/config" || r.Method != http.MethodGet {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	dw := solver.DefaultWeights()
	defaults := map[string]any{
		"iterations":      s.Cfg.Solver.Iterations,
		"destroyFraction": s.Cfg.Solver.DestroyFraction,
		"timeBudgetMs":    s.Cfg.Solver.TimeBudgetMs,
		"weights": map[string]float64{
			"pickupDistance":    dw.PickupDistance,
			"timeWindowPenalty": dw.TimeWindowPenalty,
			"utilization":       dw.Utilization,
			"routeDistance":     dw.RouteDistance,
			"routeDuration":     dw.RouteDuration,
			"violationPenalty":  dw.ViolationPenalty,
		},
	}
	p := s.getPrincipal(r)
	if cfg, _ := s.Store.GetSolverConfig(r.Context(), p.Tenant); cfg != nil {
		for k, v := range cfg {
			defaults[k] = v
		}
	}
	writeJSON(w, 200, map[string]any{"defaults": defaults})
}

// AdminSolverConfigHandler gets/sets the tenant's solver config overlay.
func (s *Server) AdminSolverConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/solver/config" {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodGet:
		cfg, _ := s.Store.GetSolverConfig(r.Context(), p.Tenant)
		if cfg == nil {
			cfg = map[string]any{}
		}
		writeJSON(w, 200, map[string]any{"config": cfg})
	case http.MethodPut:
		var body struct {
			Config map[string]any `json:"config"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if body.Config == nil {
			writeProblem(w, 400, "Missing config", "", r.URL.Path)
			return
		}
		if err := s.Store.SaveSolverConfig(r.Context(), p.Tenant, body.Config); err != nil {
			writeProblem(w, 500, "Save failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, 200, map[string]bool{"ok": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// AdminSolveStatsHandler handles GET /v1/admin/solves/stats.
func (s *Server) AdminSolveStatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/solves/stats" || r.Method != http.MethodGet {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	stats, err := s.Store.SolveStats(r.Context(), p.Tenant)
	if err != nil {
		writeProblem(w, 500, "Stats failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, stats)
}

// WebhookDeliveriesHandler lists deliveries for the tenant (admin).
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/webhook-deliveries" {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(405)
		return
	}
	status := r.URL.Query().Get("status")
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListWebhookDeliveries(r.Context(), p.Tenant, status, cursor, limit)
	if err != nil {
		writeProblem(w, 500, "List deliveries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

// WebhookDeliveryRetryHandler handles POST /v1/admin/webhook-deliveries/{id}/retry.
func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/") || !strings.HasSuffix(r.URL.Path, "/retry") {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(405)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path)
		return
	}
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/"), "/retry")
	if err := s.Store.RetryWebhookDelivery(r.Context(), p.Tenant, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, 404, "Delivery not found", "", r.URL.Path)
			return
		}
		writeProblem(w, 500, "Retry delivery failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 202, map[string]int{"accepted": 1})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Check DB connectivity when using the Postgres store
	type pinger interface{ Ping(ctx context.Context) error }
	if pg, ok := s.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := pg.Ping(ctx); err != nil {
			writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, 200, map[string]string{"status": "ready"})
}
