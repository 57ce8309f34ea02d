package api

import (
	"fmt"

	"fleetopt/internal/model"
)

var allowedWeightKeys = map[string]struct{}{
	"pickupDistance":    {},
	"timeWindowPenalty": {},
	"utilization":       {},
	"routeDistance":     {},
	"routeDuration":     {},
	"violationPenalty":  {},
}

// validateSolveRequest checks request shape; per-order and per-vehicle
// validation lives in the solver and reports typed errors.
func validateSolveRequest(req *model.SolveRequest) error {
	if req.MaxIterations < 0 {
		return fmt.Errorf("maxIterations must be >= 0")
	}
	if req.TimeBudgetMs < 0 {
		return fmt.Errorf("timeBudgetMs must be >= 0")
	}
	seen := map[string]struct{}{}
	for _, o := range req.Orders {
		if o.ID == "" {
			return fmt.Errorf("order with empty id")
		}
		if _, dup := seen[o.ID]; dup {
			return fmt.Errorf("duplicate order id %s", o.ID)
		}
		seen[o.ID] = struct{}{}
	}
	seen = map[string]struct{}{}
	for _, v := range req.Vehicles {
		if v.ID == "" {
			return fmt.Errorf("vehicle with empty id")
		}
		if _, dup := seen[v.ID]; dup {
			return fmt.Errorf("duplicate vehicle id %s", v.ID)
		}
		seen[v.ID] = struct{}{}
	}
	for k, v := range req.Weights {
		if _, ok := allowedWeightKeys[k]; !ok {
			return fmt.Errorf("unknown weight key %s", k)
		}
		if v < 0 {
			return fmt.Errorf("weight %s must be >= 0", k)
		}
	}
	return nil
}
