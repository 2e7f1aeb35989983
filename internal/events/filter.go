package events

import "github.com/example/ride-notify/internal/models"

// Transition names a state change that triggers a reaction.
type Transition string

const (
	RequestAccepted  Transition = "request_accepted"
	DriverArrived    Transition = "driver_arrived"
	TripCancelled    Transition = "trip_cancelled"
	NewRideRequest   Transition = "new_ride_request"
	NewChatMessage   Transition = "new_chat_message"
	UserCreated      Transition = "user_created"
	ProfileCompleted Transition = "profile_completed"
)

// Classify returns the transitions an event fires. Each predicate compares
// both sides of the diff, so a redelivered update fires nothing once the
// write it reports has already been observed on the before side.
// An empty result means the event is ignored.
func Classify(ev Event) []Transition {
	switch ev.Kind {
	case KindRideRequest:
		return ClassifyRequest(ev.Request)
	case KindTrip:
		return ClassifyTrip(ev.Trip)
	case KindChatMessage:
		return ClassifyMessage(ev.Message)
	case KindUser:
		return ClassifyUser(ev.User)
	}
	return nil
}

func ClassifyRequest(c models.Change[models.RideRequest]) []Transition {
	switch c := c.(type) {
	case models.Created[models.RideRequest]:
		if c.After.Status == models.RequestSearching {
			return []Transition{NewRideRequest}
		}
	case models.Updated[models.RideRequest]:
		if c.Before.Status != models.RequestAccepted && c.After.Status == models.RequestAccepted {
			return []Transition{RequestAccepted}
		}
	}
	return nil
}

func ClassifyTrip(c models.Change[models.Trip]) []Transition {
	u, ok := c.(models.Updated[models.Trip])
	if !ok {
		return nil
	}
	var out []Transition
	if !u.Before.DriverArrivedNotified && u.After.DriverArrivedNotified {
		out = append(out, DriverArrived)
	}
	if u.Before.Status != models.TripCancelled && u.After.Status == models.TripCancelled {
		out = append(out, TripCancelled)
	}
	return out
}

// ClassifyMessage fires on creation only, and only when the channel id parses.
func ClassifyMessage(c models.Change[models.ChatMessage]) []Transition {
	m, ok := c.(models.Created[models.ChatMessage])
	if !ok {
		return nil
	}
	if _, _, ok := models.ParseChannelID(m.After.ChannelID); !ok {
		return nil
	}
	return []Transition{NewChatMessage}
}

func ClassifyUser(c models.Change[models.User]) []Transition {
	switch c := c.(type) {
	case models.Created[models.User]:
		return []Transition{UserCreated}
	case models.Updated[models.User]:
		if !c.Before.IsProfileComplete && c.After.IsProfileComplete {
			return []Transition{ProfileCompleted}
		}
	}
	return nil
}
