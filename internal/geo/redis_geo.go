package geo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-notify/internal/models"
)

// radiusSlack widens the Redis query. Redis measures on a slightly larger
// sphere than EarthRadiusKm, so a trip exactly on the threshold would
// otherwise be dropped before the exact check.
const radiusSlack = 1.01

// redisMaxLat is the latitude limit of Redis GEO encoding.
const redisMaxLat = 85.05112878

// ErrIndexStale is returned by Within after a write to the index failed.
// Callers must fall back to scanning the store.
var ErrIndexStale = errors.New("geo: trip index missed a write")

// GeoCommands is the subset of the redis client the index needs.
type GeoCommands interface {
	GeoAdd(ctx context.Context, key string, geoLocation ...*redis.GeoLocation) *redis.IntCmd
	ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	GeoRadius(ctx context.Context, key string, longitude, latitude float64, query *redis.GeoRadiusQuery) *redis.GeoLocationCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

// RedisTripIndex implements TripIndex with Redis GEO commands, keyed by trip
// id. Open trips whose destination Redis cannot encode (near the poles) are
// kept in a plain set and returned by every query.
type RedisTripIndex struct {
	client GeoCommands
	key    string
	stale  atomic.Bool
}

func NewRedisTripIndex(client GeoCommands, key string) *RedisTripIndex {
	return &RedisTripIndex{client: client, key: key}
}

func (r *RedisTripIndex) unindexedKey() string { return r.key + ":unindexed" }

func (r *RedisTripIndex) Upsert(ctx context.Context, t models.Trip) error {
	if err := r.upsert(ctx, t); err != nil {
		r.stale.Store(true)
		return err
	}
	return nil
}

func (r *RedisTripIndex) upsert(ctx context.Context, t models.Trip) error {
	switch {
	case !Indexed(t):
		if err := r.client.ZRem(ctx, r.key, t.ID).Err(); err != nil {
			return fmt.Errorf("geo: remove trip %s: %w", t.ID, err)
		}
		if err := r.client.SRem(ctx, r.unindexedKey(), t.ID).Err(); err != nil {
			return fmt.Errorf("geo: remove trip %s: %w", t.ID, err)
		}
	case math.Abs(t.Destination.Lat) > redisMaxLat:
		if err := r.client.ZRem(ctx, r.key, t.ID).Err(); err != nil {
			return fmt.Errorf("geo: remove trip %s: %w", t.ID, err)
		}
		if err := r.client.SAdd(ctx, r.unindexedKey(), t.ID).Err(); err != nil {
			return fmt.Errorf("geo: add unindexed trip %s: %w", t.ID, err)
		}
	default:
		loc := &redis.GeoLocation{Name: t.ID, Longitude: t.Destination.Lon, Latitude: t.Destination.Lat}
		if err := r.client.GeoAdd(ctx, r.key, loc).Err(); err != nil {
			return fmt.Errorf("geo: add trip %s: %w", t.ID, err)
		}
		if err := r.client.SRem(ctx, r.unindexedKey(), t.ID).Err(); err != nil {
			return fmt.Errorf("geo: add trip %s: %w", t.ID, err)
		}
	}
	return nil
}

func (r *RedisTripIndex) Within(ctx context.Context, c models.Coord, radiusKm float64) ([]string, error) {
	if r.stale.Load() {
		return nil, ErrIndexStale
	}
	if math.Abs(c.Lat) > redisMaxLat {
		return nil, fmt.Errorf("geo: latitude %v outside redis range", c.Lat)
	}
	res, err := r.client.GeoRadius(ctx, r.key, c.Lon, c.Lat, &redis.GeoRadiusQuery{
		Radius: radiusKm * radiusSlack,
		Unit:   "km",
		Sort:   "ASC",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geo: radius query: %w", err)
	}
	extra, err := r.client.SMembers(ctx, r.unindexedKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("geo: unindexed trips: %w", err)
	}
	out := make([]string, 0, len(res)+len(extra))
	for _, g := range res {
		out = append(out, g.Name)
	}
	return append(out, extra...), nil
}
