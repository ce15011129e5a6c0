// Package fare prices a ride from two coordinates and a service tier.
//
// Distance is a flat Euclidean proxy over degrees scaled to miles; it is
// deliberately not geodesic and does no bounds checking.
package fare

import (
	"math"

	"github.com/example/ride-booking/internal/models"
)

const (
	BaseFare       = 5.0
	RatePerMile    = 2.0
	RatePerMinute  = 0.5
	MilesPerDegree = 69.0

	// used when the tier id is unknown
	DefaultMultiplier = 1.0
	DefaultTime       = 5
)

var options = []models.RideOption{
	{ID: "standard", Name: "Standard", Description: "Affordable everyday rides", Multiplier: 1.0, EstimatedTime: 5, Icon: "🚗"},
	{ID: "comfort", Name: "Comfort", Description: "Extra legroom and top drivers", Multiplier: 1.5, EstimatedTime: 8, Icon: "🚙"},
	{ID: "premium", Name: "Premium", Description: "High-end cars with top drivers", Multiplier: 2.0, EstimatedTime: 10, Icon: "🏎️"},
}

// Options returns a copy of the tier catalog.
func Options() []models.RideOption {
	out := make([]models.RideOption, len(options))
	copy(out, options)
	return out
}

func Option(id string) (models.RideOption, bool) {
	for _, o := range options {
		if o.ID == id {
			return o, true
		}
	}
	return models.RideOption{}, false
}

func Distance(a, b models.Location) float64 {
	dLat := b.Latitude - a.Latitude
	dLon := b.Longitude - a.Longitude
	return math.Sqrt(dLat*dLat+dLon*dLon) * MilesPerDegree
}

// Estimate prices a single tier.
func Estimate(pickup, dropoff models.Location, tierID string) models.Quote {
	m, t := DefaultMultiplier, DefaultTime
	if o, ok := Option(tierID); ok {
		m, t = o.Multiplier, o.EstimatedTime
	}
	d := Distance(pickup, dropoff)
	f := (BaseFare + d*RatePerMile + float64(t)*RatePerMinute) * m
	return models.Quote{
		RideType: tierID,
		Distance: d,
		Fare:     round2(f),
		ETA:      t + int(math.Round(d*2)),
	}
}

// EstimateAll prices every tier in catalog order.
func EstimateAll(pickup, dropoff models.Location) []models.Quote {
	out := make([]models.Quote, 0, len(options))
	for _, o := range options {
		out = append(out, Estimate(pickup, dropoff, o.ID))
	}
	return out
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// Estimator is Estimate behind an optional cache.
type Estimator struct {
	Cache *Cache
}

func (e *Estimator) Estimate(pickup, dropoff models.Location, tierID string) models.Quote {
	if e.Cache != nil {
		if q, ok := e.Cache.Get(pickup, dropoff, tierID); ok {
			return q
		}
	}
	q := Estimate(pickup, dropoff, tierID)
	if e.Cache != nil {
		e.Cache.Set(pickup, dropoff, tierID, q)
	}
	return q
}

func (e *Estimator) EstimateAll(pickup, dropoff models.Location) []models.Quote {
	out := make([]models.Quote, 0, len(options))
	for _, o := range options {
		out = append(out, e.Estimate(pickup, dropoff, o.ID))
	}
	return out
}
