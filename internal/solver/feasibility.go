package solver

import "fleetopt/internal/model"

// Feasible reports whether the vehicle can legally and physically carry the
// order: weight within capacity, height within clearance when the order
// specifies one, every required hazmat class certified, and the vehicle
// available. Length and width are modeled on Vehicle but deliberately not
// checked here.
func Feasible(o model.Order, v model.Vehicle) bool {
	if v.Status != model.VehicleAvailable {
		return false
	}
	if o.WeightKg > v.MaxWeightKg {
		return false
	}
	if o.HeightM > 0 && v.MaxHeightM > 0 && o.HeightM > v.MaxHeightM {
		return false
	}
	if len(o.HazmatClasses) > 0 {
		supported := make(map[string]bool, len(v.HazmatClasses))
		for _, c := range v.HazmatClasses {
			supported[c] = true
		}
		for _, c := range o.HazmatClasses {
			if !supported[c] {
				return false
			}
		}
	}
	return true
}
