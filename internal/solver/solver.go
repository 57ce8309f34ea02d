// Package solver implements the VRPTW core: a greedy constructor, a
// destroy/repair improvement loop and 2-opt local search over pickup/delivery
// routes, plus the cost model that ranks them.
package solver

import (
	"context"
	"fmt"
	"time"

	"fleetopt/internal/geo"
	"fleetopt/internal/model"
)

const (
	// DefaultIterations bounds the destroy/repair loop.
	DefaultIterations = 100
	// DefaultDestroyFraction is the share of assigned orders removed per iteration.
	DefaultDestroyFraction = 0.1
	// DefaultSpeedKph is the fallback travel speed when no estimator is wired.
	DefaultSpeedKph = 50.0
	// ServiceMinutes is the fixed service duration per waypoint.
	ServiceMinutes = 30.0
)

// TravelEstimator predicts travel duration in minutes between two points at a
// given departure time. The solver consults it opportunistically and falls
// back to constant-speed estimates on error.
type TravelEstimator interface {
	Predict(ctx context.Context, from, to model.GeoPoint, vehicleType string, at time.Time) (float64, error)
}

// ProgressFunc receives iteration progress from the improvement loop.
type ProgressFunc func(iteration int, bestCost float64)

// Solver holds tunables for one or more solve calls. The zero value is not
// usable; construct with New.
type Solver struct {
	Weights         Weights
	Iterations      int
	DestroyFraction float64
	TimeBudget      time.Duration // optional wall-clock bound on the improvement loop
	Seed            int64         // 0 means time-based; set for reproducible runs
	Estimator       TravelEstimator
	DepartAt        time.Time // schedule origin; zero means time.Now at Solve
	Progress        ProgressFunc
}

// New returns a Solver with default weights and budgets.
func New() *Solver {
	return &Solver{
		Weights:         DefaultWeights(),
		Iterations:      DefaultIterations,
		DestroyFraction: DefaultDestroyFraction,
	}
}

// ValidationError reports malformed input rejected before any cost math runs.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

// problem is the immutable snapshot a single solve call works against.
type problem struct {
	ctx         context.Context
	orders      []model.Order
	vehicles    []model.Vehicle
	vehicleByID map[string]model.Vehicle
	orderByID   map[string]model.Order
	cons        model.RouteConstraints
	departAt    time.Time
	weights     Weights
}

// Solve assigns orders to vehicles and returns the best solution found within
// the iteration and time budget. Inputs are never mutated; empty inputs yield
// a valid empty solution. The returned total cost never exceeds the cost of
// the initial greedy construction.
func (s *Solver) Solve(ctx context.Context, orders []model.Order, vehicles []model.Vehicle, drivers []model.Driver, cons model.RouteConstraints) (model.Solution, model.SolveStats, error) {
	start := time.Now()
	if err := validateInput(orders, vehicles); err != nil {
		return model.Solution{}, model.SolveStats{}, err
	}
	_ = drivers // carried for route plans; driver assignment is not solved here

	departAt := s.DepartAt
	if departAt.IsZero() {
		departAt = start
	}
	weights := s.Weights
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	p := &problem{
		ctx:         ctx,
		orders:      orders,
		vehicles:    vehicles,
		vehicleByID: make(map[string]model.Vehicle, len(vehicles)),
		orderByID:   make(map[string]model.Order, len(orders)),
		cons:        cons,
		departAt:    departAt,
		weights:     weights,
	}
	for _, v := range vehicles {
		p.vehicleByID[v.ID] = v
	}
	for _, o := range orders {
		p.orderByID[o.ID] = o
	}

	cur := s.construct(p)
	greedyCost := s.solutionCost(p, cur)

	best, stats := s.improve(ctx, p, cur)

	// Final local search pass. 2-opt strictly reduces route cost, but a
	// reordering can surface a new lateness warning, so keep the polished
	// solution only if the overall cost did not get worse.
	polished := best.clone()
	for _, pl := range polished.routes {
		s.twoOpt(p, pl)
	}
	s.audit(p, polished)
	if s.solutionCost(p, polished) <= s.solutionCost(p, best) {
		best = polished
	}

	stats.GreedyCost = greedyCost
	stats.BestCost = s.solutionCost(p, best)
	stats.ElapsedMs = time.Since(start).Milliseconds()
	return s.toModel(p, best), stats, nil
}

func validateInput(orders []model.Order, vehicles []model.Vehicle) error {
	for _, o := range orders {
		if o.WeightKg <= 0 {
			return &ValidationError{Field: "order " + o.ID + " weightKg", Reason: "must be > 0"}
		}
		if invertedWindow(o.PickupWindow) {
			return &ValidationError{Field: "order " + o.ID + " pickupWindow", Reason: "start after end"}
		}
		if invertedWindow(o.DeliveryWindow) {
			return &ValidationError{Field: "order " + o.ID + " deliveryWindow", Reason: "start after end"}
		}
	}
	for _, v := range vehicles {
		if v.MaxWeightKg <= 0 {
			return &ValidationError{Field: "vehicle " + v.ID + " maxWeightKg", Reason: "must be > 0"}
		}
	}
	return nil
}

func invertedWindow(w model.TimeWindow) bool {
	return !w.Start.IsZero() && !w.End.IsZero() && w.Start.After(w.End)
}

// travelMinutes estimates travel duration between two points, preferring the
// wired estimator and falling back to constant speed.
func (s *Solver) travelMinutes(p *problem, from, to model.GeoPoint, at time.Time) float64 {
	if s.Estimator != nil {
		if m, err := s.Estimator.Predict(p.ctx, from, to, "", at); err == nil && m >= 0 {
			return m
		}
	}
	return geo.DistanceKm(from.Lat, from.Lng, to.Lat, to.Lng) / DefaultSpeedKph * 60
}
