package models

import (
	"math"
	"strings"
	"time"
)

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether c is a finite coordinate inside the WGS84 ranges.
func (c Coord) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

type User struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	FCMToken          *string `json:"fcmToken"`
	IsProfileComplete bool    `json:"isProfileComplete"`
}

// Token returns the delivery token, or "" when none is registered.
func (u User) Token() string {
	if u.FCMToken == nil {
		return ""
	}
	return strings.TrimSpace(*u.FCMToken)
}

type TripStatus string

const (
	TripActive     TripStatus = "active"
	TripInProgress TripStatus = "in_progress"
	TripCompleted  TripStatus = "completed"
	TripCancelled  TripStatus = "cancelled"
)

// Open reports whether the trip can still take passengers.
func (s TripStatus) Open() bool { return s == TripActive || s == TripInProgress }

type PassengerStatus string

const (
	PassengerRequested  PassengerStatus = "requested"
	PassengerAccepted   PassengerStatus = "accepted"
	PassengerPickedUp   PassengerStatus = "picked_up"
	PassengerDroppedOff PassengerStatus = "dropped_off"
	PassengerCancelled  PassengerStatus = "cancelled"
)

type Passenger struct {
	UserID string          `json:"userId"`
	Status PassengerStatus `json:"status"`
}

// DefaultTripCapacity applies when a trip does not set MaxPassengers.
const DefaultTripCapacity = 4

type Trip struct {
	ID            string      `json:"id"`
	DriverID      string      `json:"driverId"`
	Status        TripStatus  `json:"status"`
	Destination   *Coord      `json:"destination,omitempty"`
	MaxPassengers int         `json:"maxPassengers"`
	Passengers    []Passenger `json:"passengers"`
	// DriverArrivedNotified is set once when the driver reaches pickup.
	// It never goes back to false.
	DriverArrivedNotified bool `json:"driverArrivedNotified"`
}

func (t Trip) Capacity() int {
	if t.MaxPassengers <= 0 {
		return DefaultTripCapacity
	}
	return t.MaxPassengers
}

// PassengersWith returns the user ids of passengers whose status is one of statuses,
// in list order. A user listed twice is returned once.
func (t Trip) PassengersWith(statuses ...PassengerStatus) []string {
	out := make([]string, 0, len(t.Passengers))
	seen := make(map[string]struct{}, len(t.Passengers))
	for _, p := range t.Passengers {
		if p.UserID == "" {
			continue
		}
		if _, dup := seen[p.UserID]; dup {
			continue
		}
		for _, s := range statuses {
			if p.Status == s {
				seen[p.UserID] = struct{}{}
				out = append(out, p.UserID)
				break
			}
		}
	}
	return out
}

// SeatsTaken counts passengers holding a seat (accepted or picked up).
func (t Trip) SeatsTaken() int {
	n := 0
	for _, p := range t.Passengers {
		if p.Status == PassengerAccepted || p.Status == PassengerPickedUp {
			n++
		}
	}
	return n
}

type RequestStatus string

const (
	RequestSearching RequestStatus = "searching"
	RequestAccepted  RequestStatus = "accepted"
	RequestCancelled RequestStatus = "cancelled"
	RequestExpired   RequestStatus = "expired"
)

type RideRequest struct {
	ID          string        `json:"id"`
	PassengerID string        `json:"passengerId"`
	Status      RequestStatus `json:"status"`
	Destination *Coord        `json:"destination,omitempty"`
	TripID      string        `json:"tripId,omitempty"`
}

type SenderRole string

const (
	RoleDriver    SenderRole = "driver"
	RolePassenger SenderRole = "passenger"
)

type ChatMessage struct {
	ID         string     `json:"id"`
	ChannelID  string     `json:"channelId"`
	SenderID   string     `json:"senderId"`
	SenderRole SenderRole `json:"senderRole"`
	Text       string     `json:"text"`
	CreatedAt  time.Time  `json:"createdAt"`
}
