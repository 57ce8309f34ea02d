package solver

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"fleetopt/internal/model"
)

// Large enough that the destroy step actually removes orders each iteration.
func bigInstance() ([]model.Order, []model.Vehicle) {
	orders := make([]model.Order, 0, 12)
	for i := 0; i < 12; i++ {
		o := testOrder(fmt.Sprintf("o%02d", i), 100+float64(i)*10, 52.40+float64(i)*0.02, 13.30+float64(i)*0.02)
		orders = append(orders, o)
	}
	vehicles := []model.Vehicle{
		testVehicle("v1", 1500, 52.45, 13.35),
		testVehicle("v2", 1500, 52.55, 13.45),
		testVehicle("v3", 1500, 52.50, 13.40),
	}
	return orders, vehicles
}

func TestDestroyRepairLeavesNoOrphans(t *testing.T) {
	orders, vehicles := bigInstance()
	sol, stats, err := testSolver(123).Solve(context.Background(), orders, vehicles, nil, model.RouteConstraints{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if stats.Iterations != DefaultIterations {
		t.Fatalf("expected %d iterations, ran %d", DefaultIterations, stats.Iterations)
	}
	// every waypoint belongs to an assigned order, on the assigned vehicle
	seen := map[string]int{}
	for vid, rt := range sol.Routes {
		for _, wp := range rt.Waypoints {
			if sol.Assignments[wp.OrderID] != vid {
				t.Fatalf("orphan waypoint: order %s on route %s but assigned to %q", wp.OrderID, vid, sol.Assignments[wp.OrderID])
			}
			seen[wp.OrderID]++
		}
	}
	// every assigned order contributes exactly one pickup and one delivery
	for oid := range sol.Assignments {
		if seen[oid] != 2 {
			t.Fatalf("order %s has %d waypoints, want 2", oid, seen[oid])
		}
	}
	if stats.BestCost > stats.GreedyCost {
		t.Fatalf("best %v worse than greedy %v", stats.BestCost, stats.GreedyCost)
	}
}

func TestPickRandomOrdersWithoutReplacement(t *testing.T) {
	sol := newSolution()
	for i := 0; i < 20; i++ {
		sol.assign[fmt.Sprintf("o%02d", i)] = "v1"
	}
	rng := rand.New(rand.NewSource(5))
	got := pickRandomOrders(sol, 6, rng)
	if len(got) != 6 {
		t.Fatalf("want 6 removals, got %d", len(got))
	}
	uniq := map[string]bool{}
	for _, id := range got {
		if uniq[id] {
			t.Fatalf("order %s removed twice", id)
		}
		uniq[id] = true
	}
}

func TestTimeBudgetStopsLoop(t *testing.T) {
	orders, vehicles := bigInstance()
	s := testSolver(1)
	s.TimeBudget = time.Nanosecond
	_, stats, err := s.Solve(context.Background(), orders, vehicles, nil, model.RouteConstraints{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if stats.Iterations >= DefaultIterations {
		t.Fatalf("time budget ignored: ran %d iterations", stats.Iterations)
	}
}

type fixedEstimator struct{ minutes float64 }

func (f fixedEstimator) Predict(ctx context.Context, from, to model.GeoPoint, vehicleType string, at time.Time) (float64, error) {
	return f.minutes, nil
}

func TestSolverConsultsEstimator(t *testing.T) {
	orders := []model.Order{testOrder("o1", 500, 52.50, 13.40)}
	vehicles := []model.Vehicle{testVehicle("v1", 1000, 52.51, 13.41)}
	s := testSolver(1)
	s.Estimator = fixedEstimator{minutes: 10}
	sol, _, err := s.Solve(context.Background(), orders, vehicles, nil, model.RouteConstraints{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	rt := sol.Routes["v1"]
	if rt == nil {
		t.Fatalf("route missing")
	}
	// two hops of 10 min plus two 30-min services
	if want := 2*10.0 + 2*ServiceMinutes; rt.TotalDurationMin != want {
		t.Fatalf("duration with estimator: got %v want %v", rt.TotalDurationMin, want)
	}
}

func TestProgressCallback(t *testing.T) {
	orders, vehicles := bigInstance()
	s := testSolver(1)
	calls := 0
	s.Progress = func(iteration int, bestCost float64) { calls++ }
	if _, _, err := s.Solve(context.Background(), orders, vehicles, nil, model.RouteConstraints{}); err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if calls != DefaultIterations {
		t.Fatalf("progress called %d times, want %d", calls, DefaultIterations)
	}
}
