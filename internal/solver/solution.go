package solver

import (
	"fmt"
	"time"

	"fleetopt/internal/geo"
	"fleetopt/internal/model"
)

// solution is the solver's working state. Unassignable errors live in errs
// and are rebuilt by repair; schedule warnings live in warns and are rebuilt
// by audit whenever routes change, so neither list goes stale.
type solution struct {
	assign map[string]string // order id -> vehicle id
	routes map[string]*model.RoutePlan
	errs   []model.ConstraintViolation
	warns  []model.ConstraintViolation
}

func newSolution() *solution {
	return &solution{
		assign: map[string]string{},
		routes: map[string]*model.RoutePlan{},
	}
}

func (sol *solution) violationCount() int { return len(sol.errs) + len(sol.warns) }

func (sol *solution) clone() *solution {
	out := &solution{
		assign: make(map[string]string, len(sol.assign)),
		routes: make(map[string]*model.RoutePlan, len(sol.routes)),
	}
	for k, v := range sol.assign {
		out.assign[k] = v
	}
	for k, pl := range sol.routes {
		cp := *pl
		cp.Waypoints = append([]model.Waypoint(nil), pl.Waypoints...)
		out.routes[k] = &cp
	}
	out.errs = append([]model.ConstraintViolation(nil), sol.errs...)
	out.warns = append([]model.ConstraintViolation(nil), sol.warns...)
	return out
}

// appendOrder adds the order's pickup and delivery waypoints to the vehicle's
// route, creating the route on first use, and reschedules it.
func (s *Solver) appendOrder(p *problem, sol *solution, o model.Order, vehicleID string) {
	pl := sol.routes[vehicleID]
	if pl == nil {
		pl = &model.RoutePlan{VehicleID: vehicleID}
		sol.routes[vehicleID] = pl
	}
	pl.Waypoints = append(pl.Waypoints,
		model.Waypoint{
			OrderID:        o.ID,
			Type:           model.WaypointPickup,
			Location:       o.Consignor.Location,
			Address:        o.Consignor,
			Window:         o.PickupWindow,
			ServiceMinutes: ServiceMinutes,
		},
		model.Waypoint{
			OrderID:        o.ID,
			Type:           model.WaypointDelivery,
			Location:       o.Consignee.Location,
			Address:        o.Consignee,
			Window:         o.DeliveryWindow,
			ServiceMinutes: ServiceMinutes,
		},
	)
	s.schedule(p, pl)
}

// schedule walks the route from the vehicle's current location, renumbers
// waypoints from 1 and fills ETAs, ETDs and totals.
func (s *Solver) schedule(p *problem, pl *model.RoutePlan) {
	v := p.vehicleByID[pl.VehicleID]
	cur := v.Location
	t := p.departAt
	distKm := 0.0
	durMin := 0.0
	for i := range pl.Waypoints {
		wp := &pl.Waypoints[i]
		wp.Seq = i + 1
		distKm += geo.DistanceKm(cur.Lat, cur.Lng, wp.Location.Lat, wp.Location.Lng)
		travel := s.travelMinutes(p, cur, wp.Location, t)
		durMin += travel + wp.ServiceMinutes
		t = t.Add(time.Duration(travel * float64(time.Minute)))
		wp.ETA = t
		t = t.Add(time.Duration(wp.ServiceMinutes * float64(time.Minute)))
		wp.ETD = t
		cur = wp.Location
	}
	pl.TotalDistanceKm = distKm
	pl.TotalDurationMin = durMin
}

// removeOrders strips the given orders from the assignment map and their
// waypoints from the affected routes, so no stale waypoints survive a
// destroy step. Emptied routes are dropped.
func (s *Solver) removeOrders(p *problem, sol *solution, orderIDs []string) {
	touched := map[string]bool{}
	rm := make(map[string]bool, len(orderIDs))
	for _, id := range orderIDs {
		rm[id] = true
		if vid, ok := sol.assign[id]; ok {
			touched[vid] = true
			delete(sol.assign, id)
		}
	}
	for vid := range touched {
		pl := sol.routes[vid]
		if pl == nil {
			continue
		}
		kept := pl.Waypoints[:0]
		for _, wp := range pl.Waypoints {
			if !rm[wp.OrderID] {
				kept = append(kept, wp)
			}
		}
		pl.Waypoints = kept
		if len(pl.Waypoints) == 0 {
			delete(sol.routes, vid)
			continue
		}
		s.schedule(p, pl)
	}
}

// vehicleLoad sums the weight of orders currently assigned to the vehicle.
func (s *Solver) vehicleLoad(p *problem, sol *solution, vehicleID string) float64 {
	w := 0.0
	for oid, vid := range sol.assign {
		if vid == vehicleID {
			w += p.orderByID[oid].WeightKg
		}
	}
	return w
}

// bestVehicle returns the feasible vehicle with the lowest assignment cost,
// skipping vehicles whose remaining weight capacity the order would exceed.
// Ties break by input order: the first vehicle seen at the minimum wins.
func (s *Solver) bestVehicle(p *problem, sol *solution, o model.Order) (model.Vehicle, bool) {
	var best model.Vehicle
	bestCost := 0.0
	found := false
	for _, v := range p.vehicles {
		if !Feasible(o, v) {
			continue
		}
		if s.vehicleLoad(p, sol, v.ID)+o.WeightKg > v.MaxWeightKg {
			continue
		}
		c := s.assignmentCost(p, o, v)
		if !found || c < bestCost {
			best = v
			bestCost = c
			found = true
		}
	}
	return best, found
}

func unassignable(orderID string) model.ConstraintViolation {
	return model.ConstraintViolation{
		Kind:     model.ViolationUnassignable,
		Severity: model.SeverityError,
		Message:  fmt.Sprintf("no feasible vehicle for order %s", orderID),
		OrderID:  orderID,
	}
}

// repair reinserts every order missing from the assignment map using the same
// best-feasible-vehicle rule as construction, then rebuilds both violation
// lists from scratch.
func (s *Solver) repair(p *problem, sol *solution) {
	sol.errs = sol.errs[:0]
	for _, o := range p.orders {
		if _, ok := sol.assign[o.ID]; ok {
			continue
		}
		v, ok := s.bestVehicle(p, sol, o)
		if !ok {
			sol.errs = append(sol.errs, unassignable(o.ID))
			continue
		}
		sol.assign[o.ID] = v.ID
		s.appendOrder(p, sol, o, v.ID)
	}
	s.audit(p, sol)
}

// audit rebuilds the warning list: late arrivals and routes whose drive time
// exceeds the configured maximum.
func (s *Solver) audit(p *problem, sol *solution) {
	sol.warns = sol.warns[:0]
	for vid, pl := range sol.routes {
		service := 0.0
		for _, wp := range pl.Waypoints {
			service += wp.ServiceMinutes
			if !wp.Window.End.IsZero() && wp.ETA.After(wp.Window.End) {
				sol.warns = append(sol.warns, model.ConstraintViolation{
					Kind:      model.ViolationTimeWindow,
					Severity:  model.SeverityWarning,
					Message:   fmt.Sprintf("%s for order %s arrives %.0f min late", wp.Type, wp.OrderID, wp.ETA.Sub(wp.Window.End).Minutes()),
					OrderID:   wp.OrderID,
					VehicleID: vid,
				})
			}
		}
		if p.cons.MaxDrivingHours > 0 {
			driveMin := pl.TotalDurationMin - service
			if driveMin > p.cons.MaxDrivingHours*60 {
				sol.warns = append(sol.warns, model.ConstraintViolation{
					Kind:      model.ViolationDrivingHours,
					Severity:  model.SeverityWarning,
					Message:   fmt.Sprintf("route drive time %.0f min exceeds %.0fh limit", driveMin, p.cons.MaxDrivingHours),
					VehicleID: vid,
				})
			}
		}
	}
}

// toModel freezes the working solution into the public result shape.
func (s *Solver) toModel(p *problem, sol *solution) model.Solution {
	out := model.Solution{
		Assignments: make(map[string]string, len(sol.assign)),
		Routes:      make(map[string]*model.RoutePlan, len(sol.routes)),
		Violations:  make([]model.ConstraintViolation, 0, sol.violationCount()),
	}
	for k, v := range sol.assign {
		out.Assignments[k] = v
	}
	for k, pl := range sol.routes {
		cp := *pl
		cp.Waypoints = append([]model.Waypoint(nil), pl.Waypoints...)
		out.Routes[k] = &cp
		out.TotalDistanceKm += pl.TotalDistanceKm
		out.TotalDurationMin += pl.TotalDurationMin
	}
	out.Violations = append(out.Violations, sol.errs...)
	out.Violations = append(out.Violations, sol.warns...)
	out.TotalCost = s.solutionCost(p, sol)
	return out
}
