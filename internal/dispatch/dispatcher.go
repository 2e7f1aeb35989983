// Package dispatch delivers notifications to users' devices and keeps the
// token store clean when the push service reports a dead token.
package dispatch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/ride-notify/internal/models"
	"github.com/example/ride-notify/internal/observability"
	"github.com/example/ride-notify/internal/storage"
)

type Notification struct {
	Title string
	Body  string
}

// TokenStore is the slice of the document store the dispatcher touches.
type TokenStore interface {
	GetUser(ctx context.Context, id string) (models.User, error)
	ClearDeliveryToken(ctx context.Context, userID, token string) error
}

// LiveNotifier delivers to a user's open in-app session, if any.
type LiveNotifier interface {
	Deliver(userID string, msg Message) error
}

type Dispatcher struct {
	Users  TokenStore
	Push   Push
	Live   LiveNotifier // optional
	Logger *slog.Logger
}

func New(users TokenStore, push Push, live LiveNotifier, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{Users: users, Push: push, Live: live, Logger: logger}
}

// Dispatch sends n to recipientID. It never fails: a missing user or token
// is skipped, a permanently dead token is cleared, and any other transport
// error is logged. data must not be modified after the call.
func (d *Dispatcher) Dispatch(ctx context.Context, recipientID string, n Notification, data map[string]string) {
	log := d.logger().With("recipient_id", recipientID, "type", data["type"])
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("dispatch panic recovered", "panic", rec)
		}
	}()

	msg := Message{Title: n.Title, Body: n.Body, Data: data, Channel: ChannelFor(data["type"])}

	// The push goes out first so a slow live session can only delay itself.
	defer d.deliverLive(log, recipientID, msg)

	user, err := d.Users.GetUser(ctx, recipientID)
	if errors.Is(err, storage.ErrNotFound) {
		observability.NotificationsSkip.WithLabelValues("no_user").Inc()
		log.Debug("recipient not found, skipping")
		return
	}
	if err != nil {
		observability.NotificationsSkip.WithLabelValues("lookup_failed").Inc()
		log.Warn("recipient lookup failed", "error", err)
		return
	}
	msg.Token = user.Token()
	if msg.Token == "" {
		observability.NotificationsSkip.WithLabelValues("no_token").Inc()
		log.Debug("recipient has no delivery token, skipping")
		return
	}

	err = d.Push.Send(ctx, msg)
	switch {
	case err == nil:
		observability.NotificationsSent.WithLabelValues(data["type"]).Inc()
		log.Info("notification sent")
	case Permanent(err):
		observability.NotificationsFailed.WithLabelValues("permanent").Inc()
		if cerr := d.Users.ClearDeliveryToken(ctx, recipientID, msg.Token); cerr != nil {
			log.Error("clearing stale token failed", "error", cerr, "push_error", err)
			return
		}
		observability.TokensCleared.Inc()
		log.Info("stale delivery token cleared", "push_error", err)
	default:
		observability.NotificationsFailed.WithLabelValues("transient").Inc()
		log.Warn("push failed", "error", err)
	}
}

func (d *Dispatcher) deliverLive(log *slog.Logger, recipientID string, msg Message) {
	if d.Live == nil {
		return
	}
	msg.Token = ""
	if err := d.Live.Deliver(recipientID, msg); err == nil {
		log.Debug("delivered to live session")
	} else if !errors.Is(err, ErrNoSession) {
		log.Debug("live delivery failed", "error", err)
	}
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}
