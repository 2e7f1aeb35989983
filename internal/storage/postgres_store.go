package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/example/ride-notify/internal/models"
)

// PostgresStore reads users and trips from the platform database.
// Trip destinations are PostGIS points; passengers are a jsonb array.
type PostgresStore struct {
	Logger *slog.Logger

	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *PostgresStore) GetUser(ctx context.Context, id string) (models.User, error) {
	var (
		u     models.User
		token sql.NullString
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT id, display_name, fcm_token, is_profile_complete FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &token, &u.IsProfileComplete)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("storage: get user %s: %w", id, err)
	}
	if token.Valid {
		u.FCMToken = &token.String
	}
	return u, nil
}

const tripColumns = `id, driver_id, status, ST_AsBinary(destination::geometry), max_passengers, passengers, driver_arrived_notified`

func (p *PostgresStore) GetTrip(ctx context.Context, id string) (models.Trip, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1`, id)
	t, err := scanTrip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Trip{}, ErrNotFound
	}
	if err != nil {
		return models.Trip{}, fmt.Errorf("storage: get trip %s: %w", id, err)
	}
	return t, nil
}

func (p *PostgresStore) OpenTrips(ctx context.Context) ([]models.Trip, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+tripColumns+` FROM trips WHERE status IN ($1, $2) ORDER BY id`,
		string(models.TripActive), string(models.TripInProgress))
	if err != nil {
		return nil, fmt.Errorf("storage: open trips: %w", err)
	}
	return collectTrips(rows, p.logger())
}

// nearSlack widens the PostGIS radius: its sphere is slightly larger than
// the one the matcher measures on, and the matcher re-checks every trip.
const nearSlack = 1.01

// OpenTripsNear returns open trips whose destination lies within radiusKm
// of c, measured on a sphere.
func (p *PostgresStore) OpenTripsNear(ctx context.Context, c models.Coord, radiusKm float64) ([]models.Trip, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+tripColumns+` FROM trips
		 WHERE status IN ($1, $2)
		   AND destination IS NOT NULL
		   AND ST_DWithin(destination, ST_SetSRID(ST_MakePoint($3, $4), 4326)::geography, $5, false)
		 ORDER BY id`,
		string(models.TripActive), string(models.TripInProgress), c.Lon, c.Lat, radiusKm*1000*nearSlack)
	if err != nil {
		return nil, fmt.Errorf("storage: open trips near: %w", err)
	}
	return collectTrips(rows, p.logger())
}

type tripRows interface {
	scanner
	Next() bool
	Err() error
	Close() error
}

// collectTrips drains rows. A row that cannot be read is logged and skipped.
func collectTrips(rows tripRows, log *slog.Logger) ([]models.Trip, error) {
	defer rows.Close()
	var out []models.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			log.Warn("skipping unreadable trip row", "trip_id", t.ID, "error", err)
			continue
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: read trips: %w", err)
	}
	return out, nil
}

func (p *PostgresStore) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *PostgresStore) ClearDeliveryToken(ctx context.Context, userID, token string) error {
	_, err := p.db.ExecContext(ctx, `UPDATE users SET fcm_token = NULL WHERE id = $1 AND fcm_token = $2`, userID, token)
	if err != nil {
		return fmt.Errorf("storage: clear token for %s: %w", userID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrip(s scanner) (models.Trip, error) {
	var (
		t          models.Trip
		status     string
		dest       []byte
		maxPax     sql.NullInt64
		passengers []byte
	)
	if err := s.Scan(&t.ID, &t.DriverID, &status, &dest, &maxPax, &passengers, &t.DriverArrivedNotified); err != nil {
		return models.Trip{}, err
	}
	t.Status = models.TripStatus(status)
	t.MaxPassengers = int(maxPax.Int64)
	// a destination that fails to decode is left nil so matching skips the trip
	t.Destination, _ = decodePoint(dest)
	if len(passengers) > 0 {
		if err := json.Unmarshal(passengers, &t.Passengers); err != nil {
			return models.Trip{ID: t.ID}, fmt.Errorf("passengers of trip %s: %w", t.ID, err)
		}
	}
	return t, nil
}

// decodePoint turns PostGIS WKB into a coordinate. NULL yields nil.
func decodePoint(b []byte) (*models.Coord, error) {
	if len(b) == 0 {
		return nil, nil
	}
	g, err := wkb.Unmarshal(b)
	if err != nil {
		return nil, err
	}
	pt, ok := g.(*geom.Point)
	if !ok || pt.Empty() {
		return nil, fmt.Errorf("destination is %T, want point", g)
	}
	return &models.Coord{Lat: pt.Y(), Lon: pt.X()}, nil
}
