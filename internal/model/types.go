package model

import "time"

// Core domain types exchanged with the solver and over the HTTP surface.

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TimeWindow is a closed interval in which a stop should be served.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type Address struct {
	Street     string   `json:"street,omitempty"`
	City       string   `json:"city,omitempty"`
	PostalCode string   `json:"postalCode,omitempty"`
	Location   GeoPoint `json:"location"`
}

// Order priorities, highest first.
const (
	PriorityUrgent = "urgent"
	PriorityHigh   = "high"
	PriorityNormal = "normal"
	PriorityLow    = "low"
)

// PriorityRank maps a priority to a sortable rank; higher is more urgent.
// Unknown values rank below low so malformed input never jumps the queue.
func PriorityRank(p string) int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// Order is an immutable transport order snapshot. Addresses are expected to be
// geocoded upstream; the solver only reads resolved coordinates.
type Order struct {
	ID             string     `json:"id"`
	Consignor      Address    `json:"consignor"`
	Consignee      Address    `json:"consignee"`
	PickupWindow   TimeWindow `json:"pickupWindow"`
	DeliveryWindow TimeWindow `json:"deliveryWindow"`
	WeightKg       float64    `json:"weightKg"`
	VolumeM3       float64    `json:"volumeM3,omitempty"`
	HeightM        float64    `json:"heightM,omitempty"`
	LengthM        float64    `json:"lengthM,omitempty"`
	WidthM         float64    `json:"widthM,omitempty"`
	HazmatClasses  []string   `json:"hazmatClasses,omitempty"`
	Priority       string     `json:"priority,omitempty"`
}

// Vehicle statuses. Only available vehicles receive new assignments.
const (
	VehicleAvailable    = "available"
	VehicleInUse        = "in_use"
	VehicleMaintenance  = "maintenance"
	VehicleOutOfService = "out_of_service"
)

type Vehicle struct {
	ID            string   `json:"id"`
	Registration  string   `json:"registration,omitempty"`
	MaxWeightKg   float64  `json:"maxWeightKg"`
	MaxHeightM    float64  `json:"maxHeightM,omitempty"`
	MaxLengthM    float64  `json:"maxLengthM,omitempty"`
	MaxWidthM     float64  `json:"maxWidthM,omitempty"`
	HazmatClasses []string `json:"hazmatClasses,omitempty"`
	FuelType      string   `json:"fuelType,omitempty"`
	Location      GeoPoint `json:"location"`
	Status        string   `json:"status"`
}

// Driver is carried through to route plans but not assigned by the solver;
// vehicle-to-driver matching is a dispatch concern outside this core.
type Driver struct {
	ID                  string    `json:"id"`
	LicenceExpiry       time.Time `json:"licenceExpiry,omitempty"`
	MedicalExpiry       time.Time `json:"medicalExpiry,omitempty"`
	Location            GeoPoint  `json:"location"`
	DutyStatus          string    `json:"dutyStatus,omitempty"`
	MaxDrivingHours     float64   `json:"maxDrivingHours,omitempty"`
	CurrentDrivingHours float64   `json:"currentDrivingHours,omitempty"`
}

type BreakRule struct {
	AfterHours  float64 `json:"afterHours"`
	DurationMin float64 `json:"durationMin"`
}

// RouteConstraints is the per-solve configuration object.
type RouteConstraints struct {
	MaxDrivingHours     float64             `json:"maxDrivingHours,omitempty"`
	BreakRules          []BreakRule         `json:"breakRules,omitempty"`
	VehicleRestrictions map[string][]string `json:"vehicleRestrictions,omitempty"`
	EnforceHazmat       bool                `json:"enforceHazmat,omitempty"`
	EnforceLEZ          bool                `json:"enforceLez,omitempty"`
}

// Waypoint types.
const (
	WaypointPickup   = "pickup"
	WaypointDelivery = "delivery"
)

// Waypoint is a single stop on a route. Every order contributes exactly one
// pickup and one delivery waypoint.
type Waypoint struct {
	Seq            int        `json:"seq"`
	OrderID        string     `json:"orderId"`
	Type           string     `json:"type"`
	Location       GeoPoint   `json:"location"`
	Address        Address    `json:"address,omitempty"`
	Window         TimeWindow `json:"window"`
	ETA            time.Time  `json:"eta,omitempty"`
	ETD            time.Time  `json:"etd,omitempty"`
	ServiceMinutes float64    `json:"serviceMinutes"`
}

type PlannedBreak struct {
	AfterWaypoint int     `json:"afterWaypoint"`
	DurationMin   float64 `json:"durationMin"`
}

type FuelStop struct {
	Location GeoPoint  `json:"location"`
	ETA      time.Time `json:"eta,omitempty"`
}

// RoutePlan is one vehicle's ordered stop list. DriverID stays empty: the
// solver assigns orders to vehicles, not drivers.
type RoutePlan struct {
	VehicleID        string         `json:"vehicleId"`
	DriverID         string         `json:"driverId,omitempty"`
	Waypoints        []Waypoint     `json:"waypoints"`
	TotalDistanceKm  float64        `json:"totalDistanceKm"`
	TotalDurationMin float64        `json:"totalDurationMin"`
	Breaks           []PlannedBreak `json:"breaks,omitempty"`
	FuelStops        []FuelStop     `json:"fuelStops,omitempty"`
}

// Violation kinds and severities.
const (
	ViolationUnassignable     = "unassignable"
	ViolationTimeWindow       = "time_window"
	ViolationCapacity         = "capacity"
	ViolationHeight           = "height"
	ViolationDrivingHours     = "driving_hours"
	ViolationBreakRequirement = "break_requirement"

	SeverityWarning = "warning"
	SeverityError   = "error"
)

type ConstraintViolation struct {
	Kind      string `json:"kind"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	OrderID   string `json:"orderId,omitempty"`
	VehicleID string `json:"vehicleId,omitempty"`
}

// Solution is the solver's answer: order-to-vehicle assignments, per-vehicle
// route plans, aggregate totals and the violations collected along the way.
type Solution struct {
	Assignments      map[string]string     `json:"assignments"`
	Routes           map[string]*RoutePlan `json:"routes"`
	TotalDistanceKm  float64               `json:"totalDistanceKm"`
	TotalDurationMin float64               `json:"totalDurationMin"`
	TotalCost        float64               `json:"totalCost"`
	Violations       []ConstraintViolation `json:"violations"`
}

// SolveRequest is the body of POST /v1/solve.
type SolveRequest struct {
	TenantID      string             `json:"tenantId,omitempty"`
	Orders        []Order            `json:"orders"`
	Vehicles      []Vehicle          `json:"vehicles"`
	Drivers       []Driver           `json:"drivers,omitempty"`
	Constraints   RouteConstraints   `json:"constraints,omitempty"`
	Seed          int64              `json:"seed,omitempty"`
	MaxIterations int                `json:"maxIterations,omitempty"`
	TimeBudgetMs  int                `json:"timeBudgetMs,omitempty"`
	Weights       map[string]float64 `json:"weights,omitempty"`
}

// SolveStats reports how the improvement loop behaved, for admin views.
type SolveStats struct {
	Iterations   int     `json:"iterations"`
	Improvements int     `json:"improvements"`
	GreedyCost   float64 `json:"greedyCost"`
	BestCost     float64 `json:"bestCost"`
	Seed         int64   `json:"seed"`
	ElapsedMs    int64   `json:"elapsedMs"`
}

// SolveRecord is the archived result of one solve call.
type SolveRecord struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenantId"`
	CreatedAt time.Time  `json:"createdAt"`
	Orders    int        `json:"orders"`
	Vehicles  int        `json:"vehicles"`
	Solution  Solution   `json:"solution"`
	Stats     SolveStats `json:"stats"`
}

// SolveSummary is the list-view projection of a SolveRecord.
type SolveSummary struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	Orders     int       `json:"orders"`
	Assigned   int       `json:"assigned"`
	Violations int       `json:"violations"`
	TotalCost  float64   `json:"totalCost"`
}

// ETARequest is the body of POST /v1/eta/predict.
type ETARequest struct {
	From        GeoPoint  `json:"from"`
	To          GeoPoint  `json:"to"`
	VehicleType string    `json:"vehicleType,omitempty"`
	TimeOfDay   time.Time `json:"timeOfDay,omitempty"`
}

// ETAActual is the body of POST /v1/eta/actuals.
type ETAActual struct {
	From          GeoPoint `json:"from"`
	To            GeoPoint `json:"to"`
	ActualMinutes float64  `json:"actualMinutes"`
}

type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}
