package solver

import (
	"time"

	"fleetopt/internal/geo"
	"fleetopt/internal/model"
)

// Weights are the scalarization constants that rank candidate assignments,
// routes and whole solutions. The defaults are deliberate: changing them
// changes which solutions the solver prefers.
type Weights struct {
	PickupDistance    float64 `json:"pickupDistance"`    // per km from vehicle to pickup
	TimeWindowPenalty float64 `json:"timeWindowPenalty"` // per minute outside the pickup window
	Utilization       float64 `json:"utilization"`       // per unit of unused weight capacity fraction
	RouteDistance     float64 `json:"routeDistance"`     // per route km
	RouteDuration     float64 `json:"routeDuration"`     // per route minute
	ViolationPenalty  float64 `json:"violationPenalty"`  // per unresolved constraint violation
}

// DefaultWeights returns the standard cost constants.
func DefaultWeights() Weights {
	return Weights{
		PickupDistance:    0.1,
		TimeWindowPenalty: 100,
		Utilization:       50,
		RouteDistance:     0.5,
		RouteDuration:     0.1,
		ViolationPenalty:  1000,
	}
}

// timeWindowPenalty returns the minutes by which at misses the window: early
// minutes before Start, late minutes after End, zero inside. Unset windows
// never penalize.
func timeWindowPenalty(at time.Time, w model.TimeWindow) float64 {
	if w.Start.IsZero() && w.End.IsZero() {
		return 0
	}
	if !w.Start.IsZero() && at.Before(w.Start) {
		return w.Start.Sub(at).Minutes()
	}
	if !w.End.IsZero() && at.After(w.End) {
		return at.Sub(w.End).Minutes()
	}
	return 0
}

// assignmentCost scores a candidate (vehicle, order) pair: distance to the
// pickup, expected pickup-window deviation, and how much of the vehicle's
// weight capacity the order would use.
func (s *Solver) assignmentCost(p *problem, o model.Order, v model.Vehicle) float64 {
	pickup := o.Consignor.Location
	dist := geo.DistanceKm(v.Location.Lat, v.Location.Lng, pickup.Lat, pickup.Lng)
	travel := s.travelMinutes(p, v.Location, pickup, p.departAt)
	arrival := p.departAt.Add(time.Duration(travel * float64(time.Minute)))
	penalty := timeWindowPenalty(arrival, o.PickupWindow)
	util := o.WeightKg / v.MaxWeightKg
	w := p.weights
	return w.PickupDistance*dist + w.TimeWindowPenalty*penalty + w.Utilization*(1-util)
}

// routeCost scores one vehicle's scheduled route.
func (s *Solver) routeCost(p *problem, pl *model.RoutePlan) float64 {
	return p.weights.RouteDistance*pl.TotalDistanceKm + p.weights.RouteDuration*pl.TotalDurationMin
}

// solutionCost sums route costs and charges a flat penalty per violation, so
// infeasible solutions always rank far below merely long ones.
func (s *Solver) solutionCost(p *problem, sol *solution) float64 {
	total := 0.0
	for _, pl := range sol.routes {
		total += s.routeCost(p, pl)
	}
	return total + p.weights.ViolationPenalty*float64(sol.violationCount())
}
