package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fleetopt/internal/config"
	"fleetopt/internal/model"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(config.Default())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func solveBody(t *testing.T, req model.SolveRequest) []byte {
	t.Helper()
	b, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func sampleRequest() model.SolveRequest {
	start := time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)
	window := model.TimeWindow{Start: start, End: start.Add(48 * time.Hour)}
	return model.SolveRequest{
		Seed: 42,
		Orders: []model.Order{{
			ID:             "o1",
			Consignor:      model.Address{Location: model.GeoPoint{Lat: 52.50, Lng: 13.40}},
			Consignee:      model.Address{Location: model.GeoPoint{Lat: 52.55, Lng: 13.45}},
			PickupWindow:   window,
			DeliveryWindow: window,
			WeightKg:       500,
			Priority:       model.PriorityNormal,
		}},
		Vehicles: []model.Vehicle{{
			ID:          "v1",
			MaxWeightKg: 1000,
			Location:    model.GeoPoint{Lat: 52.49, Lng: 13.39},
			Status:      model.VehicleAvailable,
		}},
	}
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestSolveEndToEnd(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader(solveBody(t, sampleRequest())))
	req.Header.Set("Content-Type", "application/json")
	s.SolveHandler(rr, req)
	if rr.Code != 200 {
		t.Fatalf("solve: %d %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		ID       string         `json:"id"`
		Solution model.Solution `json:"solution"`
		Stats    struct {
			Iterations int `json:"iterations"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Solution.Assignments["o1"] != "v1" {
		t.Fatalf("assignment: %+v", resp.Solution.Assignments)
	}
	if resp.Stats.Iterations == 0 {
		t.Fatalf("stats missing")
	}

	// archived and listable
	rr = httptest.NewRecorder()
	s.SolvesHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/solves", nil))
	if rr.Code != 200 {
		t.Fatalf("solves list: %d", rr.Code)
	}
	var list struct {
		Items []model.SolveSummary `json:"items"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &list)
	if len(list.Items) != 1 || list.Items[0].ID != resp.ID {
		t.Fatalf("list: %+v", list.Items)
	}

	rr = httptest.NewRecorder()
	s.SolveByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/solves/"+resp.ID, nil))
	if rr.Code != 200 {
		t.Fatalf("solve by id: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.SolveByIDHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/solves/slv_missing", nil))
	if rr.Code != 404 {
		t.Fatalf("missing solve: %d", rr.Code)
	}
}

func TestSolveRejectsBadInput(t *testing.T) {
	s := newTestServer(t)
	req := sampleRequest()
	req.Orders[0].WeightKg = -5
	rr := httptest.NewRecorder()
	hr := httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader(solveBody(t, req)))
	s.SolveHandler(rr, hr)
	if rr.Code != 400 {
		t.Fatalf("negative weight: %d", rr.Code)
	}

	req = sampleRequest()
	req.Weights = map[string]float64{"nope": 1}
	rr = httptest.NewRecorder()
	hr = httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader(solveBody(t, req)))
	s.SolveHandler(rr, hr)
	if rr.Code != 400 {
		t.Fatalf("unknown weight key: %d", rr.Code)
	}
}

func TestSolveRequiresDispatcher(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	hr := httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader(solveBody(t, sampleRequest())))
	hr.Header.Set("X-Role", "viewer")
	s.SolveHandler(rr, hr)
	if rr.Code != 403 {
		t.Fatalf("viewer solve: %d", rr.Code)
	}
}

func TestSolveRateLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Limits.SolveBurst = 1
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	body := solveBody(t, sampleRequest())
	rr := httptest.NewRecorder()
	s.SolveHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader(body)))
	if rr.Code != 200 {
		t.Fatalf("first solve: %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.SolveHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader(body)))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second solve should be limited: %d", rr.Code)
	}
}

func TestETAPredictAndActuals(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"from":{"lat":52.5,"lng":13.4},"to":{"lat":52.6,"lng":13.5},"timeOfDay":"2025-01-15T14:00:00Z"}`)
	rr := httptest.NewRecorder()
	s.ETAPredictHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/eta/predict", bytes.NewReader(body)))
	if rr.Code != 200 {
		t.Fatalf("predict: %d %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Minutes           float64 `json:"minutes"`
		TrafficMultiplier float64 `json:"trafficMultiplier"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Minutes <= 0 || resp.TrafficMultiplier != 1.0 {
		t.Fatalf("prediction: %+v", resp)
	}

	rr = httptest.NewRecorder()
	actual := []byte(`{"from":{"lat":52.5,"lng":13.4},"to":{"lat":52.6,"lng":13.5},"actualMinutes":22}`)
	s.ETAActualsHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/eta/actuals", bytes.NewReader(actual)))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("actuals: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	bad := []byte(`{"from":{"lat":1,"lng":1},"to":{"lat":2,"lng":2},"actualMinutes":-3}`)
	s.ETAActualsHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/eta/actuals", bytes.NewReader(bad)))
	if rr.Code != 400 {
		t.Fatalf("negative actual: %d", rr.Code)
	}
}

func TestSubscriptionsAndWebhookQueue(t *testing.T) {
	s := newTestServer(t)
	// register a subscription for solve.completed
	sub := []byte(`{"url":"https://hooks.example/x","events":["solve.completed"],"secret":"s1"}`)
	rr := httptest.NewRecorder()
	s.SubscriptionsHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/subscriptions", bytes.NewReader(sub)))
	if rr.Code != 201 {
		t.Fatalf("create subscription: %d", rr.Code)
	}

	// a solve enqueues one delivery
	rr = httptest.NewRecorder()
	s.SolveHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader(solveBody(t, sampleRequest()))))
	if rr.Code != 200 {
		t.Fatalf("solve: %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.WebhookDeliveriesHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/admin/webhook-deliveries", nil))
	if rr.Code != 200 {
		t.Fatalf("deliveries: %d", rr.Code)
	}
	var dl struct {
		Items []map[string]any `json:"items"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &dl)
	if len(dl.Items) != 1 || dl.Items[0]["eventType"] != "solve.completed" {
		t.Fatalf("queued deliveries: %+v", dl.Items)
	}

	rr = httptest.NewRecorder()
	s.WebhookDeliveryRetryHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/admin/webhook-deliveries/nope/retry", nil))
	if rr.Code != 404 {
		t.Fatalf("retry unknown: %d", rr.Code)
	}
}

func TestSolverConfigOverlay(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"config":{"iterations":250,"weights":{"routeDistance":0.9}}}`)
	rr := httptest.NewRecorder()
	s.AdminSolverConfigHandler(rr, httptest.NewRequest(http.MethodPut, "/v1/admin/solver/config", bytes.NewReader(body)))
	if rr.Code != 200 {
		t.Fatalf("put config: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.SolverConfigHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/solver/config", nil))
	if rr.Code != 200 {
		t.Fatalf("get config: %d", rr.Code)
	}
	var resp struct {
		Defaults map[string]any `json:"defaults"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Defaults["iterations"] != float64(250) {
		t.Fatalf("overlay missing: %+v", resp.Defaults)
	}

	// non-admin cannot write
	rr = httptest.NewRecorder()
	hr := httptest.NewRequest(http.MethodPut, "/v1/admin/solver/config", bytes.NewReader(body))
	hr.Header.Set("X-Role", "dispatcher")
	s.AdminSolverConfigHandler(rr, hr)
	if rr.Code != 403 {
		t.Fatalf("dispatcher write: %d", rr.Code)
	}
}

func TestAdminSolveStats(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.SolveHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader(solveBody(t, sampleRequest()))))
	if rr.Code != 200 {
		t.Fatalf("solve: %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.AdminSolveStatsHandler(rr, httptest.NewRequest(http.MethodGet, "/v1/admin/solves/stats", nil))
	if rr.Code != 200 {
		t.Fatalf("stats: %d", rr.Code)
	}
	var stats map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &stats)
	if stats["solves"] != float64(1) || stats["orders"] != float64(1) {
		t.Fatalf("stats: %+v", stats)
	}
}

func TestSolveRequestOverridesIterations(t *testing.T) {
	s := newTestServer(t)
	req := sampleRequest()
	req.MaxIterations = 7
	rr := httptest.NewRecorder()
	s.SolveHandler(rr, httptest.NewRequest(http.MethodPost, "/v1/solve", bytes.NewReader(solveBody(t, req))))
	if rr.Code != 200 {
		t.Fatalf("solve: %d", rr.Code)
	}
	var resp struct {
		Stats struct {
			Iterations int `json:"iterations"`
		} `json:"stats"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Stats.Iterations != 7 {
		t.Fatalf("iterations override: %d", resp.Stats.Iterations)
	}
}
