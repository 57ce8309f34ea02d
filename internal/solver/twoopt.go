package solver

import "fleetopt/internal/model"

// improvement epsilon: a reversal must beat the current cost by more than
// this to be kept, so floating-point noise cannot loop forever.
const twoOptEps = 1e-6

// twoOpt improves a single route by reversing waypoint segments, keeping a
// reversal only when it strictly reduces route cost, until a full pass finds
// no improvement. The result is a local optimum, not a global one.
func (s *Solver) twoOpt(p *problem, pl *model.RoutePlan) {
	n := len(pl.Waypoints)
	if n < 3 {
		return
	}
	bestCost := s.routeCost(p, pl)
	improved := true
	for improved {
		improved = false
		for i := 0; i < n-1; i++ {
			for j := i + 1; j < n; j++ {
				cand := &model.RoutePlan{
					VehicleID: pl.VehicleID,
					Waypoints: reverseSegment(pl.Waypoints, i, j),
				}
				s.schedule(p, cand)
				if c := s.routeCost(p, cand); c+twoOptEps < bestCost {
					pl.Waypoints = cand.Waypoints
					pl.TotalDistanceKm = cand.TotalDistanceKm
					pl.TotalDurationMin = cand.TotalDurationMin
					bestCost = c
					improved = true
				}
			}
		}
	}
}

// reverseSegment returns a copy of wps with positions i..j reversed.
func reverseSegment(wps []model.Waypoint, i, j int) []model.Waypoint {
	out := append([]model.Waypoint(nil), wps...)
	for a, b := i, j; a < b; a, b = a+1, b-1 {
		out[a], out[b] = out[b], out[a]
	}
	return out
}
