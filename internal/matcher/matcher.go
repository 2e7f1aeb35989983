package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/ride-notify/internal/geo"
	"github.com/example/ride-notify/internal/models"
	"github.com/example/ride-notify/internal/observability"
)

// DefaultThresholdKm is the maximum distance between a request's
// destination and a trip's destination for the trip's driver to be offered
// the request.
const DefaultThresholdKm = 5.0

type TripSource interface {
	GetTrip(ctx context.Context, id string) (models.Trip, error)
	OpenTrips(ctx context.Context) ([]models.Trip, error)
}

// NearbySource is a store that can answer the radius query itself.
// Results may include extra trips; every trip is re-checked.
type NearbySource interface {
	OpenTripsNear(ctx context.Context, c models.Coord, radiusKm float64) ([]models.Trip, error)
}

// Service finds candidate drivers. Near and Index are optional prefilters
// and must cover every open trip in Trips; Index is only safe when it is fed
// from the same events as Trips.
type Service struct {
	Trips       TripSource
	Near        NearbySource  // optional, preferred over Index
	Index       geo.TripIndex // optional
	ThresholdKm float64
	Distance    func(a, b models.Coord) float64
	Logger      *slog.Logger
}

// FindCandidateDrivers returns the drivers of open trips heading to within
// ThresholdKm of dest that still have a free seat. The requestor is never
// returned, and each driver appears once. An empty result is not an error.
func (s *Service) FindCandidateDrivers(ctx context.Context, requestorID string, dest models.Coord) ([]string, error) {
	start := time.Now()
	defer func() { observability.MatchLatency.Observe(time.Since(start).Seconds()) }()

	if !dest.Valid() {
		return nil, nil
	}
	trips, err := s.candidateTrips(ctx, dest)
	if err != nil {
		return nil, err
	}

	dist := s.Distance
	if dist == nil {
		dist = geo.HaversineKm
	}
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, t := range trips {
		if !t.Status.Open() || t.Destination == nil || !t.Destination.Valid() {
			continue
		}
		// inclusive at the threshold
		if dist(dest, *t.Destination) > s.threshold() {
			continue
		}
		if t.SeatsTaken() >= t.Capacity() {
			continue
		}
		if t.DriverID == "" || t.DriverID == requestorID {
			continue
		}
		if _, dup := seen[t.DriverID]; dup {
			continue
		}
		seen[t.DriverID] = struct{}{}
		out = append(out, t.DriverID)
	}
	observability.MatchCandidates.Observe(float64(len(out)))
	return out, nil
}

func (s *Service) threshold() float64 {
	if s.ThresholdKm <= 0 {
		return DefaultThresholdKm
	}
	return s.ThresholdKm
}

// candidateTrips loads the trips to test. With a prefilter only the trips it
// returns are loaded; a prefilter failure falls back to the full scan.
func (s *Service) candidateTrips(ctx context.Context, dest models.Coord) ([]models.Trip, error) {
	if s.Near != nil {
		trips, err := s.Near.OpenTripsNear(ctx, dest, s.threshold())
		if err == nil {
			return trips, nil
		}
		s.logger().Warn("nearby trip query failed, scanning open trips", "error", err)
		return s.scan(ctx)
	}
	if s.Index != nil {
		ids, err := s.Index.Within(ctx, dest, s.threshold())
		if err == nil {
			trips := make([]models.Trip, 0, len(ids))
			for _, id := range ids {
				t, err := s.Trips.GetTrip(ctx, id)
				if err != nil {
					s.logger().Debug("indexed trip not loaded", "trip_id", id, "error", err)
					continue
				}
				trips = append(trips, t)
			}
			return trips, nil
		}
		s.logger().Warn("trip index unavailable, scanning open trips", "error", err)
	}
	return s.scan(ctx)
}

func (s *Service) scan(ctx context.Context) ([]models.Trip, error) {
	trips, err := s.Trips.OpenTrips(ctx)
	if err != nil {
		return nil, fmt.Errorf("matcher: load open trips: %w", err)
	}
	return trips, nil
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
