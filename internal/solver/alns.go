package solver

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"fleetopt/internal/model"
)

// improve runs the destroy/repair loop: each iteration removes a random slice
// of assigned orders, reinserts every unassigned order with the construction
// rule, and unconditionally adopts the result as the next current solution (a
// random walk). The best solution ever seen by total cost is what gets
// returned, so the answer never ranks worse than the greedy seed.
func (s *Solver) improve(ctx context.Context, p *problem, cur *solution) (*solution, model.SolveStats) {
	seed := s.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	iters := s.Iterations
	if iters <= 0 {
		iters = DefaultIterations
	}
	frac := s.DestroyFraction
	if frac <= 0 || frac >= 1 {
		frac = DefaultDestroyFraction
	}
	k := int(float64(len(p.orders)) * frac)

	best := cur.clone()
	bestCost := s.solutionCost(p, best)
	stats := model.SolveStats{Seed: seed}

	var deadline time.Time
	if s.TimeBudget > 0 {
		deadline = time.Now().Add(s.TimeBudget)
	}

	for it := 1; it <= iters; it++ {
		if ctx.Err() != nil {
			break
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			break
		}
		stats.Iterations = it

		removed := pickRandomOrders(cur, k, rng)
		s.removeOrders(p, cur, removed)
		s.repair(p, cur)

		if c := s.solutionCost(p, cur); c < bestCost {
			best = cur.clone()
			bestCost = c
			stats.Improvements++
		}
		if s.Progress != nil {
			s.Progress(it, bestCost)
		}
	}
	return best, stats
}

// pickRandomOrders draws k distinct assigned order ids. Candidates are sorted
// before drawing so a fixed seed yields a fixed removal sequence regardless
// of map iteration order.
func pickRandomOrders(sol *solution, k int, rng *rand.Rand) []string {
	if k <= 0 || len(sol.assign) == 0 {
		return nil
	}
	ids := make([]string, 0, len(sol.assign))
	for id := range sol.assign {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	removed := make([]string, 0, k)
	for i := 0; i < k && len(ids) > 0; i++ {
		j := rng.Intn(len(ids))
		removed = append(removed, ids[j])
		ids = append(ids[:j], ids[j+1:]...)
	}
	return removed
}
