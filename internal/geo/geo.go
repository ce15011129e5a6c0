package geo

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/example/ride-booking/internal/models"
)

// Geo tracks driver positions for the map view.
type Geo interface {
	Nearby(ctx context.Context, lat, lon float64, limit int) ([]models.Driver, error)
	Upsert(ctx context.Context, d models.Driver) error
}

type Index struct {
	mu      sync.RWMutex
	drivers map[string]models.Driver
}

func NewIndex() *Index {
	return &Index{drivers: make(map[string]models.Driver)}
}

func (g *Index) Upsert(_ context.Context, d models.Driver) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.drivers[d.ID] = d
	return nil
}

// Nearby returns up to limit available drivers ordered by distance, ties by id.
// naive scan; the fleet here is a handful of drivers
func (g *Index) Nearby(_ context.Context, lat, lon float64, limit int) ([]models.Driver, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	type pair struct {
		d    models.Driver
		dist float64
	}
	arr := make([]pair, 0, len(g.drivers))
	for _, d := range g.drivers {
		if !d.IsAvailable {
			continue
		}
		arr = append(arr, pair{d, Haversine(lat, lon, d.Location.Latitude, d.Location.Longitude)})
	}
	sort.Slice(arr, func(i, j int) bool {
		if arr[i].dist == arr[j].dist {
			return arr[i].d.ID < arr[j].d.ID
		}
		return arr[i].dist < arr[j].dist
	})
	if limit > 0 && limit < len(arr) {
		arr = arr[:limit]
	}
	out := make([]models.Driver, 0, len(arr))
	for _, p := range arr {
		out = append(out, p.d)
	}
	return out, nil
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
