// Package eta estimates travel durations by blending a speed/traffic model
// with rolling per-route historical averages.
package eta

import (
	"context"
	"fmt"
	"time"

	"fleetopt/internal/geo"
	"fleetopt/internal/model"
)

const (
	// BaseSpeedKph is the cruising speed assumed by the base estimate.
	BaseSpeedKph = 50.0
	// MaxSamples caps the per-route history ring; oldest samples are evicted.
	MaxSamples = 100
)

// History stores observed travel times per route key. Implementations must be
// safe for concurrent use.
type History interface {
	Append(ctx context.Context, key string, minutes float64) error
	Samples(ctx context.Context, key string) ([]float64, error)
}

// Predictor blends the traffic-adjusted base estimate with the mean of
// recorded actuals for the same route. State lives in the History; the
// default in-memory history is process-wide and not persisted.
type Predictor struct {
	hist History
}

// New returns a Predictor backed by an in-memory history.
func New() *Predictor { return &Predictor{hist: NewMemoryHistory()} }

// NewWithHistory returns a Predictor backed by the given history store.
func NewWithHistory(h History) *Predictor { return &Predictor{hist: h} }

// TrafficMultiplier returns the congestion factor for the hour of day:
// morning rush 07-09, evening rush 17-19, free flow otherwise.
func TrafficMultiplier(hour int) float64 {
	switch {
	case hour >= 7 && hour <= 9:
		return 1.5
	case hour >= 17 && hour <= 19:
		return 1.4
	default:
		return 1.0
	}
}

// Predict estimates travel duration in minutes from from to to, departing at
// the given time of day. vehicleType is accepted for future per-class speed
// profiles and does not affect the estimate yet.
func (p *Predictor) Predict(ctx context.Context, from, to model.GeoPoint, vehicleType string, at time.Time) (float64, error) {
	_ = vehicleType
	dist := geo.DistanceKm(from.Lat, from.Lng, to.Lat, to.Lng)
	base := dist / BaseSpeedKph * 60
	adjusted := base * TrafficMultiplier(at.Hour())

	samples, err := p.hist.Samples(ctx, routeKey(from, to))
	if err != nil {
		return 0, err
	}
	if len(samples) == 0 {
		return adjusted, nil
	}
	sum := 0.0
	for _, s := range samples {
		sum += s
	}
	return (adjusted + sum/float64(len(samples))) / 2, nil
}

// RecordActual appends an observed travel time for the route, evicting the
// oldest sample beyond MaxSamples. Estimates for that route shift gradually
// as actuals accumulate across solver invocations.
func (p *Predictor) RecordActual(ctx context.Context, from, to model.GeoPoint, minutes float64) error {
	if minutes < 0 {
		return fmt.Errorf("eta: actual minutes must be >= 0, got %v", minutes)
	}
	return p.hist.Append(ctx, routeKey(from, to), minutes)
}

// routeKey identifies a route by its rounded endpoints, so nearby origins and
// destinations share one sample buffer.
func routeKey(from, to model.GeoPoint) string {
	return fmt.Sprintf("%.2f,%.2f->%.2f,%.2f", from.Lat, from.Lng, to.Lat, to.Lng)
}
