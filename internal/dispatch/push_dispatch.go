package dispatch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/ride-notify/internal/events"
)

// Delivery channels let users mute chat separately from trip updates.
const (
	ChannelChat  = "chat_messages"
	ChannelTrips = "trip_updates"
)

var (
	// ErrTokenUnregistered means the device token is no longer registered
	// with the push service.
	ErrTokenUnregistered = errors.New("push token unregistered")
	// ErrTokenInvalid means the push service rejected the token's format.
	ErrTokenInvalid = errors.New("push token invalid")
)

// Permanent reports whether err means the token will never work again.
func Permanent(err error) bool {
	return errors.Is(err, ErrTokenUnregistered) || errors.Is(err, ErrTokenInvalid)
}

// Message is a single push to one device token.
type Message struct {
	Token   string            `json:"-"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Data    map[string]string `json:"data"`
	Channel string            `json:"channel"`
}

// Push delivers a message to a device token. Implementations wrap
// ErrTokenUnregistered or ErrTokenInvalid for permanent token failures.
type Push interface {
	Send(ctx context.Context, msg Message) error
}

// ChannelFor picks the delivery channel for a notification type.
func ChannelFor(notificationType string) string {
	if notificationType == string(events.NewChatMessage) {
		return ChannelChat
	}
	return ChannelTrips
}

// LogPush only logs; used when no push transport is configured.
type LogPush struct {
	Logger *slog.Logger
}

func (p *LogPush) Send(_ context.Context, msg Message) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("push (log only)", "title", msg.Title, "channel", msg.Channel, "type", msg.Data["type"])
	return nil
}
