// Package directory lists drivers available for booking. A remote driver
// API is consulted when configured; any failure falls back to a fixed mock
// fleet, so Drivers never fails.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/example/ride-booking/internal/latency"
	"github.com/example/ride-booking/internal/models"
	"github.com/example/ride-booking/internal/observability"
)

var ErrNoDrivers = errors.New("no drivers available")

// MockDrivers returns the fallback fleet. Callers get their own copy.
func MockDrivers() []models.Driver {
	return []models.Driver{
		{
			ID:           "1",
			Name:         "John Smith",
			Rating:       4.8,
			CarModel:     "Toyota Camry",
			LicensePlate: "ABC 123",
			Photo:        "https://images.unsplash.com/photo-1506794778202-cad84cf45f1d?w=200",
			Location:     models.Location{Latitude: 40.7128, Longitude: -74.006, Address: "Near Downtown"},
			IsAvailable:  true,
		},
		{
			ID:           "2",
			Name:         "Maria Rodriguez",
			Rating:       4.9,
			CarModel:     "Honda Civic",
			LicensePlate: "XYZ 789",
			Photo:        "https://images.unsplash.com/photo-1580489944761-15a19d654956?w=200",
			Location:     models.Location{Latitude: 40.714, Longitude: -74.0089, Address: "Central Park Area"},
			IsAvailable:  true,
		},
		{
			ID:           "3",
			Name:         "Robert Johnson",
			Rating:       4.7,
			CarModel:     "Ford Escape",
			LicensePlate: "DEF 456",
			Photo:        "https://images.unsplash.com/photo-1500648767791-00dcc994a43e?w=200",
			Location:     models.Location{Latitude: 40.7159, Longitude: -74.0031, Address: "Brooklyn Heights"},
			IsAvailable:  true,
		},
	}
}

type Directory struct {
	// URL is the base of a driver API serving GET /drivers. Empty means mock only.
	URL    string
	Client *http.Client
	Delay  time.Duration
	Logger *slog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

func New(url string, delay time.Duration, rnd *rand.Rand, logger *slog.Logger) *Directory {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		URL:    strings.TrimRight(url, "/"),
		Client: &http.Client{Timeout: 2 * time.Second},
		Delay:  delay,
		Logger: logger,
		rnd:    rnd,
	}
}

// Drivers returns the remote list, or the mock fleet on any failure.
func (d *Directory) Drivers(ctx context.Context) []models.Driver {
	if err := latency.Simulate(ctx, d.Delay); err != nil {
		return MockDrivers()
	}
	if d.URL == "" {
		return MockDrivers()
	}
	drivers, err := d.fetch(ctx)
	if err != nil {
		observability.DirectoryFallbacks.Inc()
		d.Logger.Warn("driver directory unavailable, using mock drivers", "url", d.URL, "error", err)
		return MockDrivers()
	}
	return drivers
}

func (d *Directory) fetch(ctx context.Context) ([]models.Driver, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL+"/drivers", nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("drivers api status %d", resp.StatusCode)
	}
	var out []models.Driver
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode drivers: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNoDrivers
	}
	return out, nil
}

// Pick selects one driver uniformly at random.
func (d *Directory) Pick(drivers []models.Driver) (models.Driver, error) {
	if len(drivers) == 0 {
		return models.Driver{}, ErrNoDrivers
	}
	d.mu.Lock()
	i := d.rnd.Intn(len(drivers))
	d.mu.Unlock()
	return drivers[i], nil
}
