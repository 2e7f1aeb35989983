package geo

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/example/ride-notify/internal/models"
)

// EarthRadiusKm is the mean Earth radius used for all distance math.
const EarthRadiusKm = 6371.0

// TripIndex narrows open trips down to those whose destination lies within
// a radius of a point. Results may be stale; callers re-check every trip.
type TripIndex interface {
	Upsert(ctx context.Context, t models.Trip) error
	Within(ctx context.Context, c models.Coord, radiusKm float64) ([]string, error)
}

// Indexed reports whether a trip belongs in a destination index.
func Indexed(t models.Trip) bool {
	return t.Status.Open() && t.Destination != nil && t.Destination.Valid()
}

// Index is an in-memory TripIndex for single-process deployments and tests.
type Index struct {
	mu    sync.RWMutex
	trips map[string]models.Coord
}

func NewIndex() *Index {
	return &Index{trips: make(map[string]models.Coord)}
}

func (g *Index) Upsert(_ context.Context, t models.Trip) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !Indexed(t) {
		delete(g.trips, t.ID)
		return nil
	}
	g.trips[t.ID] = *t.Destination
	return nil
}

// naive scan, nearest first
func (g *Index) Within(_ context.Context, c models.Coord, radiusKm float64) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	type pair struct {
		id   string
		dist float64
	}
	arr := make([]pair, 0, len(g.trips))
	for id, dest := range g.trips {
		if d := HaversineKm(c, dest); d <= radiusKm {
			arr = append(arr, pair{id, d})
		}
	}
	sort.Slice(arr, func(i, j int) bool { return arr[i].dist < arr[j].dist })
	out := make([]string, 0, len(arr))
	for _, p := range arr {
		out = append(out, p.id)
	}
	return out, nil
}

func (g *Index) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.trips)
}

// HaversineKm returns the great-circle distance between a and b in kilometres.
func HaversineKm(a, b models.Coord) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	sLat := math.Sin(dLat / 2)
	sLon := math.Sin(dLon / 2)
	h := sLat*sLat + math.Cos(lat1)*math.Cos(lat2)*sLon*sLon
	// rounding can push h a hair above 1 for antipodal points
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(math.Min(1, h)))
}
