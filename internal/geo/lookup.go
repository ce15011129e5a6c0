package geo

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/example/ride-booking/internal/latency"
	"github.com/example/ride-booking/internal/models"
)

// Geocoder resolves a free-text address into coordinates.
type Geocoder interface {
	Lookup(ctx context.Context, address string) (models.Location, error)
}

// StubGeocoder stands in for a geocoding API. Every address resolves to
// Origin plus a uniform offset in [0, Spread) on each axis.
type StubGeocoder struct {
	Origin models.Location
	Spread float64
	Delay  time.Duration
	// Fixed short-circuits the random offset for known addresses.
	Fixed map[string]models.Location

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewStubGeocoder(origin models.Location, spread float64, delay time.Duration, rnd *rand.Rand) *StubGeocoder {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &StubGeocoder{Origin: origin, Spread: spread, Delay: delay, rnd: rnd}
}

// Lookup never rejects an address; it only fails if ctx ends during the delay.
func (s *StubGeocoder) Lookup(ctx context.Context, address string) (models.Location, error) {
	if err := latency.Simulate(ctx, s.Delay); err != nil {
		return models.Location{}, err
	}
	if loc, ok := s.Fixed[address]; ok {
		loc.Address = address
		return loc, nil
	}
	s.mu.Lock()
	dLat := s.rnd.Float64() * s.Spread
	dLon := s.rnd.Float64() * s.Spread
	s.mu.Unlock()
	return models.Location{
		Address:   address,
		Latitude:  s.Origin.Latitude + dLat,
		Longitude: s.Origin.Longitude + dLon,
	}, nil
}
