// Package engine reacts to document change events: it decides which
// transitions fired, works out who should hear about each one, and hands
// the notifications to the dispatcher.
package engine

import (
	"context"
	"log/slog"

	"github.com/example/ride-notify/internal/dispatch"
	"github.com/example/ride-notify/internal/events"
	"github.com/example/ride-notify/internal/geo"
	"github.com/example/ride-notify/internal/models"
	"github.com/example/ride-notify/internal/observability"
)

// DefaultFanOutLimit caps concurrent sends within one event.
const DefaultFanOutLimit = 16

type Directory interface {
	GetUser(ctx context.Context, id string) (models.User, error)
	GetTrip(ctx context.Context, id string) (models.Trip, error)
}

type Matcher interface {
	FindCandidateDrivers(ctx context.Context, requestorID string, dest models.Coord) ([]string, error)
}

type RecipientResolver interface {
	ResolveRecipient(ctx context.Context, channelID string, role models.SenderRole, senderID string) (string, bool)
}

type Notifier interface {
	Dispatch(ctx context.Context, recipientID string, n dispatch.Notification, data map[string]string)
}

// Deduper remembers event ids. FirstSeen reports true the first time an id
// is offered.
type Deduper interface {
	FirstSeen(ctx context.Context, eventID string) (bool, error)
}

// Mirror receives the latest state of trips and users seen on the feed.
// It lets a process without an external document store answer lookups.
type Mirror interface {
	PutUser(u models.User)
	PutTrip(t models.Trip)
}

type Engine struct {
	Directory   Directory
	Matcher     Matcher
	Chat        RecipientResolver
	Notifier    Notifier
	Index       geo.TripIndex // optional, kept in sync with trip events
	Dedupe      Deduper       // optional
	Mirror      Mirror        // optional
	FanOutLimit int
	Logger      *slog.Logger
}

// HandleEnvelope decodes a wire envelope and handles it. Only decode
// failures are returned.
func (e *Engine) HandleEnvelope(ctx context.Context, body []byte) error {
	ev, err := events.Decode(body)
	if err != nil {
		observability.EventsInvalid.Inc()
		e.logger().Warn("event rejected", "error", err)
		return err
	}
	e.Handle(ctx, ev)
	return nil
}

// Handle reacts to one change event. Every failure is logged and swallowed;
// the write that produced the event has already committed.
func (e *Engine) Handle(ctx context.Context, ev events.Event) {
	observability.EventsReceived.WithLabelValues(string(ev.Kind)).Inc()
	log := e.logger().With("event_id", ev.ID, "kind", ev.Kind, "entity_id", ev.Entity())
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("event handler panic recovered", "panic", rec)
		}
	}()

	if ev.Kind == events.KindTrip && ev.Trip != nil && e.Index != nil {
		if err := e.Index.Upsert(ctx, ev.Trip.Current()); err != nil {
			log.Warn("trip index update failed", "error", err)
		}
	}

	if e.Mirror != nil {
		switch {
		case ev.Kind == events.KindTrip && ev.Trip != nil:
			e.Mirror.PutTrip(ev.Trip.Current())
		case ev.Kind == events.KindUser && ev.User != nil:
			e.Mirror.PutUser(ev.User.Current())
		}
	}

	transitions := events.Classify(ev)
	if len(transitions) == 0 {
		if m, ok := ev.Message.(models.Created[models.ChatMessage]); ok && ev.Kind == events.KindChatMessage {
			if _, _, valid := models.ParseChannelID(m.After.ChannelID); !valid {
				log.Info("chat message dropped, malformed channel id", "channel_id", m.After.ChannelID)
			}
		}
		return
	}
	if e.Dedupe != nil && ev.ID != "" {
		first, err := e.Dedupe.FirstSeen(ctx, ev.ID)
		switch {
		case err != nil:
			log.Warn("dedupe check failed, handling event anyway", "error", err)
		case !first:
			observability.EventsDuplicate.Inc()
			log.Info("duplicate event ignored")
			return
		}
	}

	for _, tr := range transitions {
		observability.TransitionsFired.WithLabelValues(string(tr)).Inc()
		tlog := log.With("transition", tr)
		switch tr {
		case events.RequestAccepted:
			e.requestAccepted(ctx, tlog, ev.Request.Current())
		case events.DriverArrived:
			e.driverArrived(ctx, tlog, ev.Trip.Current())
		case events.TripCancelled:
			e.tripCancelled(ctx, tlog, ev.Trip.Current())
		case events.NewRideRequest:
			e.newRideRequest(ctx, tlog, ev.Request.Current())
		case events.NewChatMessage:
			e.newChatMessage(ctx, tlog, ev.Message.Current())
		case events.UserCreated:
			tlog.Info("user created")
		case events.ProfileCompleted:
			tlog.Info("user profile completed")
		}
	}
}

func (e *Engine) fanOut(ctx context.Context, recipients []string, n dispatch.Notification, data map[string]string) {
	limit := e.FanOutLimit
	if limit <= 0 {
		limit = DefaultFanOutLimit
	}
	dispatch.FanOut(ctx, limit, recipients, func(ctx context.Context, id string) {
		e.Notifier.Dispatch(ctx, id, n, data)
	})
}

// userName returns the display name of id, or "" when it cannot be read.
func (e *Engine) userName(ctx context.Context, id string) string {
	if id == "" {
		return ""
	}
	u, err := e.Directory.GetUser(ctx, id)
	if err != nil {
		return ""
	}
	return u.Name
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}
