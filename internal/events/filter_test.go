package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-notify/internal/models"
)

func tripUpdate(before, after models.Trip) Event {
	return Event{Kind: KindTrip, Trip: models.Updated[models.Trip]{Before: before, After: after}}
}

func TestClassifyRequestAccepted(t *testing.T) {
	ev := Event{Kind: KindRideRequest, Request: models.Updated[models.RideRequest]{
		Before: models.RideRequest{Status: models.RequestSearching},
		After:  models.RideRequest{Status: models.RequestAccepted},
	}}
	assert.Equal(t, []Transition{RequestAccepted}, Classify(ev))
}

func TestClassifyRequestAcceptedReplay(t *testing.T) {
	ev := Event{Kind: KindRideRequest, Request: models.Updated[models.RideRequest]{
		Before: models.RideRequest{Status: models.RequestAccepted},
		After:  models.RideRequest{Status: models.RequestAccepted, TripID: "t1"},
	}}
	assert.Empty(t, Classify(ev))
}

func TestClassifyNewRequest(t *testing.T) {
	searching := Event{Kind: KindRideRequest, Request: models.Created[models.RideRequest]{
		After: models.RideRequest{Status: models.RequestSearching},
	}}
	assert.Equal(t, []Transition{NewRideRequest}, Classify(searching))

	expired := Event{Kind: KindRideRequest, Request: models.Created[models.RideRequest]{
		After: models.RideRequest{Status: models.RequestExpired},
	}}
	assert.Empty(t, Classify(expired))
}

func TestClassifyDriverArrived(t *testing.T) {
	ev := tripUpdate(
		models.Trip{Status: models.TripActive},
		models.Trip{Status: models.TripActive, DriverArrivedNotified: true},
	)
	assert.Equal(t, []Transition{DriverArrived}, Classify(ev))
}

func TestClassifyDriverArrivedReplayFiresNothing(t *testing.T) {
	ev := tripUpdate(
		models.Trip{Status: models.TripActive, DriverArrivedNotified: true},
		models.Trip{Status: models.TripActive, DriverArrivedNotified: true},
	)
	assert.Empty(t, Classify(ev))
}

func TestClassifyTripCancelled(t *testing.T) {
	ev := tripUpdate(
		models.Trip{Status: models.TripInProgress},
		models.Trip{Status: models.TripCancelled},
	)
	assert.Equal(t, []Transition{TripCancelled}, Classify(ev))

	replay := tripUpdate(
		models.Trip{Status: models.TripCancelled},
		models.Trip{Status: models.TripCancelled},
	)
	assert.Empty(t, Classify(replay))
}

func TestClassifyTripArrivedAndCancelledInOneWrite(t *testing.T) {
	ev := tripUpdate(
		models.Trip{Status: models.TripActive},
		models.Trip{Status: models.TripCancelled, DriverArrivedNotified: true},
	)
	assert.ElementsMatch(t, []Transition{DriverArrived, TripCancelled}, Classify(ev))
}

func TestClassifyUnrelatedTripWrite(t *testing.T) {
	ev := tripUpdate(
		models.Trip{Status: models.TripActive, MaxPassengers: 3},
		models.Trip{Status: models.TripActive, MaxPassengers: 4},
	)
	assert.Empty(t, Classify(ev))

	created := Event{Kind: KindTrip, Trip: models.Created[models.Trip]{After: models.Trip{DriverArrivedNotified: true}}}
	assert.Empty(t, Classify(created))
}

func TestClassifyChatMessage(t *testing.T) {
	ok := Event{Kind: KindChatMessage, Message: models.Created[models.ChatMessage]{
		After: models.ChatMessage{ChannelID: "trip123__pax456"},
	}}
	assert.Equal(t, []Transition{NewChatMessage}, Classify(ok))

	malformed := Event{Kind: KindChatMessage, Message: models.Created[models.ChatMessage]{
		After: models.ChatMessage{ChannelID: "trip123"},
	}}
	assert.Empty(t, Classify(malformed))

	edited := Event{Kind: KindChatMessage, Message: models.Updated[models.ChatMessage]{
		After: models.ChatMessage{ChannelID: "trip123__pax456"},
	}}
	assert.Empty(t, Classify(edited))
}

func TestClassifyUser(t *testing.T) {
	created := Event{Kind: KindUser, User: models.Created[models.User]{}}
	assert.Equal(t, []Transition{UserCreated}, Classify(created))

	completed := Event{Kind: KindUser, User: models.Updated[models.User]{
		After: models.User{IsProfileComplete: true},
	}}
	assert.Equal(t, []Transition{ProfileCompleted}, Classify(completed))

	again := Event{Kind: KindUser, User: models.Updated[models.User]{
		Before: models.User{IsProfileComplete: true},
		After:  models.User{IsProfileComplete: true},
	}}
	assert.Empty(t, Classify(again))
}

func TestClassifyMissingChange(t *testing.T) {
	assert.Empty(t, Classify(Event{Kind: KindTrip}))
	assert.Empty(t, Classify(Event{Kind: "vehicle"}))
}

func TestDecodeTripUpdate(t *testing.T) {
	body := []byte(`{"id":"evt-1","kind":"trip","op":"update","docId":"trip123",
		"before":{"driverId":"drv789","status":"active","driverArrivedNotified":false},
		"after":{"driverId":"drv789","status":"active","driverArrivedNotified":true,
			"destination":{"lat":1.5,"lon":2.5},
			"passengers":[{"userId":"p1","status":"accepted"}]}}`)

	ev, err := Decode(body)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", ev.ID)
	assert.Equal(t, "trip123", ev.Entity())

	u, ok := ev.Trip.(models.Updated[models.Trip])
	require.True(t, ok)
	assert.Equal(t, "trip123", u.Before.ID)
	assert.Equal(t, "drv789", u.After.DriverID)
	require.NotNil(t, u.After.Destination)
	assert.Equal(t, 1.5, u.After.Destination.Lat)
	assert.Equal(t, []Transition{DriverArrived}, Classify(ev))
}

func TestDecodeChatFillsChannelFromParent(t *testing.T) {
	body := []byte(`{"id":"evt-2","kind":"chat_message","op":"create","docId":"m1","parentId":"trip123__pax456",
		"after":{"senderId":"pax456","senderRole":"passenger","text":"hola"}}`)

	ev, err := Decode(body)
	require.NoError(t, err)
	msg := ev.Message.Current()
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "trip123__pax456", msg.ChannelID)
	assert.Equal(t, models.RolePassenger, msg.SenderRole)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrMalformedBody)

	_, err = Decode([]byte(`{"kind":"vehicle","op":"create","after":{}}`))
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = Decode([]byte(`{"kind":"trip","op":"delete","after":{}}`))
	assert.ErrorIs(t, err, ErrUnknownOp)

	_, err = Decode([]byte(`{"kind":"trip","op":"update","after":{}}`))
	assert.ErrorIs(t, err, ErrMissingState)

	_, err = Decode([]byte(`{"kind":"ride_request","op":"create"}`))
	assert.ErrorIs(t, err, ErrMissingState)
}
