package solver

import (
	"sort"

	"fleetopt/internal/model"
)

// construct builds the initial solution: orders sorted by priority then
// pickup-window start, each assigned to the cheapest feasible vehicle, with a
// 2-opt pass over every non-empty route at the end.
func (s *Solver) construct(p *problem) *solution {
	sol := newSolution()

	ordered := append([]model.Order(nil), p.orders...)
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := model.PriorityRank(ordered[i].Priority), model.PriorityRank(ordered[j].Priority)
		if ri != rj {
			return ri > rj
		}
		return ordered[i].PickupWindow.Start.Before(ordered[j].PickupWindow.Start)
	})

	for _, o := range ordered {
		v, ok := s.bestVehicle(p, sol, o)
		if !ok {
			sol.errs = append(sol.errs, unassignable(o.ID))
			continue
		}
		sol.assign[o.ID] = v.ID
		s.appendOrder(p, sol, o, v.ID)
	}

	for _, pl := range sol.routes {
		s.twoOpt(p, pl)
	}
	s.audit(p, sol)
	return sol
}
