// Package app wires the engine from configuration for both binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-notify/internal/chat"
	"github.com/example/ride-notify/internal/config"
	"github.com/example/ride-notify/internal/dispatch"
	"github.com/example/ride-notify/internal/engine"
	"github.com/example/ride-notify/internal/geo"
	httpapi "github.com/example/ride-notify/internal/http"
	"github.com/example/ride-notify/internal/matcher"
	"github.com/example/ride-notify/internal/storage"
)

// Runtime is a wired engine plus the resources behind it.
type Runtime struct {
	Engine *engine.Engine
	Ready  map[string]httpapi.Pinger

	closers []func() error
}

// Close releases every backing connection.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

type redisPinger struct{ c *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.c.Ping(ctx).Err() }

// Build connects the configured backends. With PG_DSN the matcher queries
// PostGIS directly. Without it the engine runs on an in-memory store fed by
// the change feed itself, with a trip index (Redis GEO when REDIS_ADDR is
// set) fed by the same events. live may be nil.
func Build(ctx context.Context, cfg config.EngineConfig, live dispatch.LiveNotifier, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{Ready: map[string]httpapi.Pinger{}}

	var (
		store  storage.DocumentStore
		mirror engine.Mirror
		near   matcher.NearbySource
		index  geo.TripIndex
	)
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := ps.Ping(ctx); err != nil {
			_ = ps.Close()
			return nil, fmt.Errorf("postgres ping: %w", err)
		}
		rt.closers = append(rt.closers, ps.Close)
		rt.Ready["postgres"] = ps
		ps.Logger = logger
		// PostGIS answers the radius query against the full table, so no
		// event-fed index is needed.
		store, near = ps, ps
		logger.Info("document store: postgres")
	} else {
		ms := storage.NewMemoryStore()
		store, mirror = ms, ms
		// An in-memory index stays consistent with a store that is only
		// ever fed from the same change events.
		index = geo.NewIndex()
		logger.Warn("PG_DSN not set, using in-memory document store")
	}

	var dedupe engine.Deduper
	if cfg.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := rc.Ping(ctx).Err(); err != nil {
			_ = rc.Close()
			_ = rt.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		rt.closers = append(rt.closers, rc.Close)
		rt.Ready["redis"] = redisPinger{c: rc}
		if mirror != nil {
			index = geo.NewRedisTripIndex(rc, cfg.RedisGeoKey)
		}
		dedupe = engine.NewRedisDeduper(rc, cfg.DedupeTTL)
		logger.Info("redis enabled", "addr", cfg.RedisAddr, "geo_key", cfg.RedisGeoKey)
	}

	var push dispatch.Push
	if endpoint := pushEndpoint(cfg); endpoint != "" {
		push = dispatch.NewFCMClient(endpoint, cfg.FCMAccessToken)
		logger.Info("push transport: fcm", "endpoint", endpoint)
	} else {
		push = &dispatch.LogPush{Logger: logger}
		logger.Warn("no FCM endpoint configured, push notifications are only logged")
	}

	rt.Engine = &engine.Engine{
		Directory: store,
		Matcher: &matcher.Service{
			Trips:       store,
			Near:        near,
			Index:       index,
			ThresholdKm: cfg.MatchRadiusKm,
			Logger:      logger,
		},
		Chat:        chat.NewResolver(store, logger),
		Notifier:    dispatch.New(store, push, live, logger),
		Index:       index,
		Dedupe:      dedupe,
		Mirror:      mirror,
		FanOutLimit: cfg.FanOutLimit,
		Logger:      logger,
	}
	return rt, nil
}

// pushEndpoint resolves the FCM send URL; "" means push is not configured.
func pushEndpoint(cfg config.EngineConfig) string {
	if cfg.FCMEndpoint != "" {
		return cfg.FCMEndpoint
	}
	if cfg.FCMProjectID != "" {
		return dispatch.FCMEndpoint(cfg.FCMProjectID)
	}
	return ""
}
