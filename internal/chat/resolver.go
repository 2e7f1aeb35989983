// Package chat resolves who receives a trip chat message.
package chat

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/ride-notify/internal/models"
	"github.com/example/ride-notify/internal/storage"
)

const (
	previewLimit = 100
	ellipsis     = "..."
)

type TripGetter interface {
	GetTrip(ctx context.Context, id string) (models.Trip, error)
}

type Resolver struct {
	Trips  TripGetter
	Logger *slog.Logger
}

func NewResolver(trips TripGetter, logger *slog.Logger) *Resolver {
	return &Resolver{Trips: trips, Logger: logger}
}

// ResolveRecipient returns the counterpart of senderID in the channel.
// A driver's message goes to the passenger named in the channel id; a
// passenger's message goes to the driver of the channel's trip.
// ok is false when the channel id is malformed, the trip is gone, or the
// role is unknown.
func (r *Resolver) ResolveRecipient(ctx context.Context, channelID string, role models.SenderRole, senderID string) (string, bool) {
	log := r.logger().With("channel_id", channelID, "sender_id", senderID, "sender_role", role)

	tripID, passengerID, ok := models.ParseChannelID(channelID)
	if !ok {
		log.Info("chat channel id malformed, no recipient")
		return "", false
	}

	switch role {
	case models.RoleDriver:
		return passengerID, true
	case models.RolePassenger:
		trip, err := r.Trips.GetTrip(ctx, tripID)
		if errors.Is(err, storage.ErrNotFound) {
			log.Info("chat trip not found, no recipient", "trip_id", tripID)
			return "", false
		}
		if err != nil {
			log.Warn("chat trip lookup failed", "trip_id", tripID, "error", err)
			return "", false
		}
		if trip.DriverID == "" {
			log.Info("chat trip has no driver", "trip_id", tripID)
			return "", false
		}
		return trip.DriverID, true
	default:
		log.Info("chat sender role unknown, no recipient")
		return "", false
	}
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// Preview shortens message text for a notification body: at most 100
// characters, the last three being "..." when the text was cut.
func Preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLimit {
		return text
	}
	return string(runes[:previewLimit-len(ellipsis)]) + ellipsis
}
