package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/ride-notify/internal/models"
)

type Kind string

const (
	KindRideRequest Kind = "ride_request"
	KindTrip        Kind = "trip"
	KindChatMessage Kind = "chat_message"
	KindUser        Kind = "user"
)

type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
)

var (
	ErrUnknownKind   = errors.New("unknown event kind")
	ErrUnknownOp     = errors.New("unknown event op")
	ErrMissingState  = errors.New("event state missing")
	ErrMalformedBody = errors.New("malformed event body")
)

// Envelope is the wire form of a document change, as published by the
// document store's change feed. ParentID holds the id of the enclosing
// document (the chat channel for messages).
type Envelope struct {
	ID       string          `json:"id"`
	Kind     Kind            `json:"kind"`
	Op       Op              `json:"op"`
	DocID    string          `json:"docId"`
	ParentID string          `json:"parentId,omitempty"`
	Before   json.RawMessage `json:"before,omitempty"`
	After    json.RawMessage `json:"after"`
}

// Event is a decoded Envelope. Exactly one of the change fields is set,
// matching Kind.
type Event struct {
	ID      string
	Kind    Kind
	Request models.Change[models.RideRequest]
	Trip    models.Change[models.Trip]
	Message models.Change[models.ChatMessage]
	User    models.Change[models.User]
}

// Decode parses a JSON envelope into a typed Event.
func Decode(b []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	return env.Event()
}

func (env Envelope) Event() (Event, error) {
	ev := Event{ID: env.ID, Kind: env.Kind}
	var err error
	switch env.Kind {
	case KindRideRequest:
		ev.Request, err = decodeChange(env, func(r *models.RideRequest) {
			if r.ID == "" {
				r.ID = env.DocID
			}
		})
	case KindTrip:
		ev.Trip, err = decodeChange(env, func(t *models.Trip) {
			if t.ID == "" {
				t.ID = env.DocID
			}
		})
	case KindChatMessage:
		ev.Message, err = decodeChange(env, func(m *models.ChatMessage) {
			if m.ID == "" {
				m.ID = env.DocID
			}
			if m.ChannelID == "" {
				m.ChannelID = env.ParentID
			}
		})
	case KindUser:
		ev.User, err = decodeChange(env, func(u *models.User) {
			if u.ID == "" {
				u.ID = env.DocID
			}
		})
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
	if err != nil {
		return Event{}, fmt.Errorf("decode %s %s: %w", env.Kind, env.DocID, err)
	}
	return ev, nil
}

func decodeChange[T any](env Envelope, fill func(*T)) (models.Change[T], error) {
	after, err := decodeState[T](env.After, fill)
	if err != nil {
		return nil, err
	}
	switch env.Op {
	case OpCreate:
		return models.Created[T]{After: after}, nil
	case OpUpdate:
		before, err := decodeState[T](env.Before, fill)
		if err != nil {
			return nil, err
		}
		return models.Updated[T]{Before: before, After: after}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOp, env.Op)
	}
}

func decodeState[T any](raw json.RawMessage, fill func(*T)) (T, error) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return v, ErrMissingState
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	fill(&v)
	return v, nil
}

// Entity returns the id of the document the event is about.
func (ev Event) Entity() string {
	switch {
	case ev.Request != nil:
		return ev.Request.Current().ID
	case ev.Trip != nil:
		return ev.Trip.Current().ID
	case ev.Message != nil:
		return ev.Message.Current().ID
	case ev.User != nil:
		return ev.User.Current().ID
	}
	return ""
}
