package solver

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"fleetopt/internal/model"
)

var depart = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

func wideWindow() model.TimeWindow {
	return model.TimeWindow{Start: depart, End: depart.Add(48 * time.Hour)}
}

func testOrder(id string, weight float64, lat, lng float64) model.Order {
	return model.Order{
		ID:             id,
		Consignor:      model.Address{Location: model.GeoPoint{Lat: lat, Lng: lng}},
		Consignee:      model.Address{Location: model.GeoPoint{Lat: lat + 0.05, Lng: lng + 0.05}},
		PickupWindow:   wideWindow(),
		DeliveryWindow: wideWindow(),
		WeightKg:       weight,
		Priority:       model.PriorityNormal,
	}
}

func testVehicle(id string, maxWeight float64, lat, lng float64) model.Vehicle {
	return model.Vehicle{
		ID:          id,
		MaxWeightKg: maxWeight,
		Location:    model.GeoPoint{Lat: lat, Lng: lng},
		Status:      model.VehicleAvailable,
	}
}

func testSolver(seed int64) *Solver {
	s := New()
	s.Seed = seed
	s.DepartAt = depart
	return s
}

func TestSolveSingleOrderAssigned(t *testing.T) {
	orders := []model.Order{testOrder("o1", 500, 52.50, 13.40)}
	vehicles := []model.Vehicle{testVehicle("v1", 1000, 52.51, 13.41)}
	sol, _, err := testSolver(1).Solve(context.Background(), orders, vehicles, nil, model.RouteConstraints{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if sol.Assignments["o1"] != "v1" {
		t.Fatalf("order not assigned to v1: %v", sol.Assignments)
	}
	rt := sol.Routes["v1"]
	if rt == nil || len(rt.Waypoints) != 2 {
		t.Fatalf("expected 2 waypoints, got %+v", rt)
	}
	if rt.Waypoints[0].Type != model.WaypointPickup || rt.Waypoints[1].Type != model.WaypointDelivery {
		t.Fatalf("waypoint order wrong: %v %v", rt.Waypoints[0].Type, rt.Waypoints[1].Type)
	}
	if rt.Waypoints[0].Seq != 1 || rt.Waypoints[1].Seq != 2 {
		t.Fatalf("sequence numbers wrong: %d %d", rt.Waypoints[0].Seq, rt.Waypoints[1].Seq)
	}
	if rt.Waypoints[0].ServiceMinutes != 30 {
		t.Fatalf("service duration: %v", rt.Waypoints[0].ServiceMinutes)
	}
	if rt.DriverID != "" {
		t.Fatalf("driver assignment is not solved, got %q", rt.DriverID)
	}
	if len(sol.Violations) != 0 {
		t.Fatalf("expected no violations, got %+v", sol.Violations)
	}
}

func TestSolveOverweightUnassignable(t *testing.T) {
	orders := []model.Order{testOrder("o1", 5000, 52.50, 13.40)}
	vehicles := []model.Vehicle{testVehicle("v1", 1000, 52.51, 13.41)}
	sol, _, err := testSolver(1).Solve(context.Background(), orders, vehicles, nil, model.RouteConstraints{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(sol.Assignments) != 0 {
		t.Fatalf("expected no assignments, got %v", sol.Assignments)
	}
	if len(sol.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %+v", sol.Violations)
	}
	v := sol.Violations[0]
	if v.Kind != model.ViolationUnassignable || v.Severity != model.SeverityError || v.OrderID != "o1" {
		t.Fatalf("unexpected violation: %+v", v)
	}
}

func TestSolveCapacityExhausted(t *testing.T) {
	orders := []model.Order{
		testOrder("o1", 600, 52.50, 13.40),
		testOrder("o2", 600, 52.52, 13.42),
	}
	vehicles := []model.Vehicle{testVehicle("v1", 1000, 52.51, 13.41)}
	sol, _, err := testSolver(1).Solve(context.Background(), orders, vehicles, nil, model.RouteConstraints{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(sol.Assignments) != 1 {
		t.Fatalf("expected exactly one assignment, got %v", sol.Assignments)
	}
	unassigned := 0
	for _, v := range sol.Violations {
		if v.Kind == model.ViolationUnassignable {
			unassigned++
		}
	}
	if unassigned != 1 {
		t.Fatalf("expected one unassignable violation, got %+v", sol.Violations)
	}
}

func TestSolveEmptyInputs(t *testing.T) {
	sol, stats, err := testSolver(1).Solve(context.Background(), nil, nil, nil, model.RouteConstraints{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(sol.Assignments) != 0 || len(sol.Routes) != 0 || len(sol.Violations) != 0 {
		t.Fatalf("expected empty solution, got %+v", sol)
	}
	if sol.TotalCost != 0 {
		t.Fatalf("empty solution cost: %v", sol.TotalCost)
	}
	if stats.Iterations == 0 {
		t.Fatalf("improvement loop did not run")
	}
}

func TestSolveIgnoresUnavailableVehicles(t *testing.T) {
	orders := []model.Order{testOrder("o1", 100, 52.50, 13.40)}
	vehicles := []model.Vehicle{
		{ID: "v1", MaxWeightKg: 1000, Location: model.GeoPoint{Lat: 52.50, Lng: 13.40}, Status: model.VehicleMaintenance},
		testVehicle("v2", 1000, 52.70, 13.60),
	}
	sol, _, err := testSolver(1).Solve(context.Background(), orders, vehicles, nil, model.RouteConstraints{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if sol.Assignments["o1"] != "v2" {
		t.Fatalf("expected assignment to the available vehicle, got %v", sol.Assignments)
	}
}

func TestNoSilentDrops(t *testing.T) {
	orders := []model.Order{
		testOrder("o1", 400, 52.50, 13.40),
		testOrder("o2", 900, 52.51, 13.41),
		testOrder("o3", 2500, 52.52, 13.42), // too heavy for anyone
		testOrder("o4", 300, 52.53, 13.43),
		testOrder("o5", 700, 52.54, 13.44),
	}
	vehicles := []model.Vehicle{
		testVehicle("v1", 1000, 52.50, 13.40),
		testVehicle("v2", 1200, 52.55, 13.45),
	}
	sol, _, err := testSolver(7).Solve(context.Background(), orders, vehicles, nil, model.RouteConstraints{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	unassignable := 0
	for _, v := range sol.Violations {
		if v.Kind == model.ViolationUnassignable {
			unassignable++
		}
	}
	if got := len(sol.Assignments) + unassignable; got != len(orders) {
		t.Fatalf("assigned (%d) + unassignable (%d) != orders (%d)", len(sol.Assignments), unassignable, len(orders))
	}
	// every assignment must pass the feasibility filter
	vByID := map[string]model.Vehicle{}
	for _, v := range vehicles {
		vByID[v.ID] = v
	}
	oByID := map[string]model.Order{}
	for _, o := range orders {
		oByID[o.ID] = o
	}
	for oid, vid := range sol.Assignments {
		if !Feasible(oByID[oid], vByID[vid]) {
			t.Fatalf("assignment %s -> %s fails feasibility", oid, vid)
		}
	}
}

func TestSolveNeverWorseThanGreedy(t *testing.T) {
	orders := []model.Order{
		testOrder("o1", 400, 52.50, 13.40),
		testOrder("o2", 300, 52.60, 13.30),
		testOrder("o3", 200, 52.40, 13.50),
		testOrder("o4", 500, 52.55, 13.35),
	}
	vehicles := []model.Vehicle{
		testVehicle("v1", 1000, 52.50, 13.40),
		testVehicle("v2", 1000, 52.60, 13.30),
	}
	sol, stats, err := testSolver(42).Solve(context.Background(), orders, vehicles, nil, model.RouteConstraints{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if stats.BestCost > stats.GreedyCost {
		t.Fatalf("best cost %v exceeds greedy cost %v", stats.BestCost, stats.GreedyCost)
	}
	if sol.TotalCost != stats.BestCost {
		t.Fatalf("solution cost %v != reported best %v", sol.TotalCost, stats.BestCost)
	}
}

func TestSolveDeterministicWithSeed(t *testing.T) {
	orders := []model.Order{
		testOrder("o1", 400, 52.50, 13.40),
		testOrder("o2", 300, 52.60, 13.30),
		testOrder("o3", 200, 52.40, 13.50),
	}
	vehicles := []model.Vehicle{
		testVehicle("v1", 1000, 52.50, 13.40),
		testVehicle("v2", 1000, 52.60, 13.30),
	}
	a, _, err := testSolver(99).Solve(context.Background(), orders, vehicles, nil, model.RouteConstraints{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	b, _, err := testSolver(99).Solve(context.Background(), orders, vehicles, nil, model.RouteConstraints{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !reflect.DeepEqual(a.Assignments, b.Assignments) {
		t.Fatalf("assignments differ for identical seed: %v vs %v", a.Assignments, b.Assignments)
	}
	if a.TotalCost != b.TotalCost {
		t.Fatalf("cost differs for identical seed: %v vs %v", a.TotalCost, b.TotalCost)
	}
}

func TestSolveDoesNotMutateInputs(t *testing.T) {
	orders := []model.Order{testOrder("o1", 500, 52.50, 13.40)}
	vehicles := []model.Vehicle{testVehicle("v1", 1000, 52.51, 13.41)}
	ordersCopy := append([]model.Order(nil), orders...)
	vehiclesCopy := append([]model.Vehicle(nil), vehicles...)
	if _, _, err := testSolver(1).Solve(context.Background(), orders, vehicles, nil, model.RouteConstraints{}); err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if !reflect.DeepEqual(orders, ordersCopy) {
		t.Fatalf("orders mutated")
	}
	if !reflect.DeepEqual(vehicles, vehiclesCopy) {
		t.Fatalf("vehicles mutated")
	}
}

func TestSolveValidation(t *testing.T) {
	ctx := context.Background()
	s := testSolver(1)
	var verr *ValidationError

	bad := testOrder("o1", -5, 52.5, 13.4)
	_, _, err := s.Solve(ctx, []model.Order{bad}, []model.Vehicle{testVehicle("v1", 1000, 52.5, 13.4)}, nil, model.RouteConstraints{})
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error for negative weight, got %v", err)
	}

	inverted := testOrder("o2", 10, 52.5, 13.4)
	inverted.PickupWindow = model.TimeWindow{Start: depart.Add(time.Hour), End: depart}
	_, _, err = s.Solve(ctx, []model.Order{inverted}, []model.Vehicle{testVehicle("v1", 1000, 52.5, 13.4)}, nil, model.RouteConstraints{})
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error for inverted window, got %v", err)
	}

	_, _, err = s.Solve(ctx, []model.Order{testOrder("o3", 10, 52.5, 13.4)}, []model.Vehicle{{ID: "v1", Status: model.VehicleAvailable}}, nil, model.RouteConstraints{})
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error for zero-capacity vehicle, got %v", err)
	}
}

func TestSolveCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	orders := []model.Order{testOrder("o1", 500, 52.50, 13.40)}
	vehicles := []model.Vehicle{testVehicle("v1", 1000, 52.51, 13.41)}
	sol, _, err := testSolver(1).Solve(ctx, orders, vehicles, nil, model.RouteConstraints{})
	if err != nil {
		t.Fatalf("Solve should return the greedy solution on cancel, got %v", err)
	}
	if sol.Assignments["o1"] != "v1" {
		t.Fatalf("greedy result missing after cancel: %v", sol.Assignments)
	}
}

func TestHighPriorityAssignedFirst(t *testing.T) {
	// one vehicle with room for one order; the urgent one must win even
	// though it appears last in the input
	low := testOrder("low", 800, 52.50, 13.40)
	low.Priority = model.PriorityLow
	urgent := testOrder("urgent", 800, 52.50, 13.40)
	urgent.Priority = model.PriorityUrgent
	vehicles := []model.Vehicle{testVehicle("v1", 1000, 52.50, 13.40)}
	// keep ALNS out of the way so the greedy order decides
	s := testSolver(1)
	s.Iterations = 1
	sol, _, err := s.Solve(context.Background(), []model.Order{low, urgent}, vehicles, nil, model.RouteConstraints{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if _, ok := sol.Assignments["urgent"]; !ok {
		t.Fatalf("urgent order lost to a low-priority one: %v", sol.Assignments)
	}
}
