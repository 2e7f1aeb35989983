package geo

import (
	"context"
	"errors"
	"math"
	"sort"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-notify/internal/models"
)

func TestHaversineZero(t *testing.T) {
	p := models.Coord{Lat: 4.6097, Lon: -74.0817}
	assert.Equal(t, 0.0, HaversineKm(p, p))
	assert.Equal(t, 0.0, HaversineKm(models.Coord{}, models.Coord{}))
}

func TestHaversineSymmetric(t *testing.T) {
	pts := []models.Coord{
		{Lat: 0, Lon: 0},
		{Lat: 0.01, Lon: 0.01},
		{Lat: -33.45, Lon: -70.66},
		{Lat: 51.5, Lon: -0.12},
		{Lat: 89.9, Lon: 179.9},
		{Lat: -89.9, Lon: -179.9},
	}
	for _, a := range pts {
		for _, b := range pts {
			ab, ba := HaversineKm(a, b), HaversineKm(b, a)
			assert.Equal(t, ab, ba, "%v %v", a, b)
			assert.GreaterOrEqual(t, ab, 0.0)
		}
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	d := HaversineKm(models.Coord{Lat: 0, Lon: 0}, models.Coord{Lat: 0.01, Lon: 0.01})
	assert.InDelta(t, 1.5725, d, 0.001)

	// one degree of latitude
	d = HaversineKm(models.Coord{Lat: 0, Lon: 0}, models.Coord{Lat: 1, Lon: 0})
	assert.InDelta(t, EarthRadiusKm*math.Pi/180, d, 1e-9)
}

func TestHaversineAntipodal(t *testing.T) {
	d := HaversineKm(models.Coord{Lat: 0, Lon: 0}, models.Coord{Lat: 0, Lon: 180})
	assert.InDelta(t, math.Pi*EarthRadiusKm, d, 1e-6)
}

func dest(lat, lon float64) *models.Coord { return &models.Coord{Lat: lat, Lon: lon} }

func TestIndexUpsertAndWithin(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex()
	require.NoError(t, idx.Upsert(ctx, models.Trip{ID: "near", Status: models.TripActive, Destination: dest(0.01, 0.01)}))
	require.NoError(t, idx.Upsert(ctx, models.Trip{ID: "nearer", Status: models.TripInProgress, Destination: dest(0.001, 0)}))
	require.NoError(t, idx.Upsert(ctx, models.Trip{ID: "far", Status: models.TripActive, Destination: dest(1, 1)}))
	require.NoError(t, idx.Upsert(ctx, models.Trip{ID: "nodest", Status: models.TripActive}))

	ids, err := idx.Within(ctx, models.Coord{}, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"nearer", "near"}, ids)
	assert.Equal(t, 3, idx.Len())

	// closing a trip removes it
	require.NoError(t, idx.Upsert(ctx, models.Trip{ID: "near", Status: models.TripCompleted, Destination: dest(0.01, 0.01)}))
	ids, err = idx.Within(ctx, models.Coord{}, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"nearer"}, ids)
}

type fakeGeoCommands struct {
	added     []*redis.GeoLocation
	removed   []interface{}
	query     *redis.GeoRadiusQuery
	result    []redis.GeoLocation
	unindexed map[string]bool
	err       error
}

func (f *fakeGeoCommands) SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	if f.unindexed == nil {
		f.unindexed = map[string]bool{}
	}
	for _, m := range members {
		f.unindexed[m.(string)] = true
	}
	return redis.NewIntResult(int64(len(members)), f.err)
}

func (f *fakeGeoCommands) SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	for _, m := range members {
		delete(f.unindexed, m.(string))
	}
	return redis.NewIntResult(int64(len(members)), f.err)
}

func (f *fakeGeoCommands) SMembers(ctx context.Context, key string) *redis.StringSliceCmd {
	out := make([]string, 0, len(f.unindexed))
	for m := range f.unindexed {
		out = append(out, m)
	}
	sort.Strings(out)
	return redis.NewStringSliceResult(out, f.err)
}

func (f *fakeGeoCommands) GeoAdd(ctx context.Context, key string, locs ...*redis.GeoLocation) *redis.IntCmd {
	f.added = append(f.added, locs...)
	return redis.NewIntResult(int64(len(locs)), f.err)
}

func (f *fakeGeoCommands) ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	f.removed = append(f.removed, members...)
	return redis.NewIntResult(int64(len(members)), f.err)
}

func (f *fakeGeoCommands) GeoRadius(ctx context.Context, key string, lon, lat float64, q *redis.GeoRadiusQuery) *redis.GeoLocationCmd {
	f.query = q
	return redis.NewGeoLocationCmdResult(f.result, f.err)
}

func TestRedisTripIndex(t *testing.T) {
	ctx := context.Background()
	f := &fakeGeoCommands{result: []redis.GeoLocation{{Name: "t1"}, {Name: "t2"}}}
	idx := NewRedisTripIndex(f, "trips_geo")

	require.NoError(t, idx.Upsert(ctx, models.Trip{ID: "t1", Status: models.TripActive, Destination: dest(1, 2)}))
	require.Len(t, f.added, 1)
	assert.Equal(t, "t1", f.added[0].Name)
	assert.Equal(t, 2.0, f.added[0].Longitude)

	require.NoError(t, idx.Upsert(ctx, models.Trip{ID: "t3", Status: models.TripCancelled, Destination: dest(1, 2)}))
	assert.Equal(t, []interface{}{"t3"}, f.removed)

	ids, err := idx.Within(ctx, models.Coord{}, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, ids)
	assert.Greater(t, f.query.Radius, 5.0)
	assert.Equal(t, "km", f.query.Unit)
}

func TestRedisTripIndexError(t *testing.T) {
	f := &fakeGeoCommands{err: errors.New("down")}
	idx := NewRedisTripIndex(f, "trips_geo")
	_, err := idx.Within(context.Background(), models.Coord{}, 5)
	assert.Error(t, err)
}

func TestRedisTripIndexKeepsPolarTrips(t *testing.T) {
	ctx := context.Background()
	f := &fakeGeoCommands{result: []redis.GeoLocation{{Name: "t1"}}}
	idx := NewRedisTripIndex(f, "trips_geo")

	polar := models.Trip{ID: "polar", Status: models.TripActive, Destination: dest(89.5, 10)}
	require.NoError(t, idx.Upsert(ctx, polar))
	assert.Empty(t, f.added)
	assert.True(t, f.unindexed["polar"])

	ids, err := idx.Within(ctx, models.Coord{Lat: 1, Lon: 1}, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "polar"}, ids)

	polar.Status = models.TripCompleted
	require.NoError(t, idx.Upsert(ctx, polar))
	assert.False(t, f.unindexed["polar"])

	_, err = idx.Within(ctx, models.Coord{Lat: 89.9}, 5)
	assert.Error(t, err)
}

func TestRedisTripIndexStaleAfterFailedWrite(t *testing.T) {
	ctx := context.Background()
	f := &fakeGeoCommands{err: errors.New("READONLY")}
	idx := NewRedisTripIndex(f, "trips_geo")

	assert.Error(t, idx.Upsert(ctx, models.Trip{ID: "t1", Status: models.TripActive, Destination: dest(1, 2)}))

	f.err = nil
	_, err := idx.Within(ctx, models.Coord{}, 5)
	assert.ErrorIs(t, err, ErrIndexStale)
}
