package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/ride-notify/internal/chat"
	"github.com/example/ride-notify/internal/dispatch"
	"github.com/example/ride-notify/internal/events"
	"github.com/example/ride-notify/internal/models"
)

func (e *Engine) requestAccepted(ctx context.Context, log *slog.Logger, req models.RideRequest) {
	if req.PassengerID == "" {
		log.Info("accepted request has no passenger")
		return
	}
	driver := ""
	if req.TripID != "" {
		if trip, err := e.Directory.GetTrip(ctx, req.TripID); err == nil {
			driver = e.userName(ctx, trip.DriverID)
		}
	}
	body := "A driver accepted your ride request."
	if driver != "" {
		body = fmt.Sprintf("%s accepted your ride request.", driver)
	}
	data := map[string]string{
		"type":      string(events.RequestAccepted),
		"requestId": req.ID,
	}
	if req.TripID != "" {
		data["tripId"] = req.TripID
	}
	e.Notifier.Dispatch(ctx, req.PassengerID, dispatch.Notification{Title: "Ride accepted", Body: body}, data)
}

func (e *Engine) driverArrived(ctx context.Context, log *slog.Logger, trip models.Trip) {
	recipients := trip.PassengersWith(models.PassengerAccepted)
	if len(recipients) == 0 {
		log.Debug("no accepted passengers to notify")
		return
	}
	body := "Your driver is waiting at the pickup point."
	if name := e.userName(ctx, trip.DriverID); name != "" {
		body = fmt.Sprintf("%s is waiting at the pickup point.", name)
	}
	data := map[string]string{"type": string(events.DriverArrived), "tripId": trip.ID}
	e.fanOut(ctx, recipients, dispatch.Notification{Title: "Your driver has arrived", Body: body}, data)
}

func (e *Engine) tripCancelled(ctx context.Context, log *slog.Logger, trip models.Trip) {
	recipients := trip.PassengersWith(models.PassengerAccepted, models.PassengerPickedUp)
	if len(recipients) == 0 {
		log.Debug("no passengers on cancelled trip")
		return
	}
	data := map[string]string{"type": string(events.TripCancelled), "tripId": trip.ID}
	e.fanOut(ctx, recipients, dispatch.Notification{
		Title: "Trip cancelled",
		Body:  "The driver cancelled your trip. You can request another ride.",
	}, data)
}

func (e *Engine) newRideRequest(ctx context.Context, log *slog.Logger, req models.RideRequest) {
	if req.Destination == nil {
		log.Info("new request has no destination")
		return
	}
	drivers, err := e.Matcher.FindCandidateDrivers(ctx, req.PassengerID, *req.Destination)
	if err != nil {
		log.Warn("matching failed", "error", err)
		return
	}
	if len(drivers) == 0 {
		log.Debug("no nearby trips for request")
		return
	}
	log.Info("request matched", "drivers", len(drivers))

	body := "A passenger is looking for a ride near your destination."
	if name := e.userName(ctx, req.PassengerID); name != "" {
		body = fmt.Sprintf("%s is looking for a ride near your destination.", name)
	}
	data := map[string]string{"type": string(events.NewRideRequest), "requestId": req.ID}
	e.fanOut(ctx, drivers, dispatch.Notification{Title: "New ride request nearby", Body: body}, data)
}

func (e *Engine) newChatMessage(ctx context.Context, log *slog.Logger, msg models.ChatMessage) {
	recipient, ok := e.Chat.ResolveRecipient(ctx, msg.ChannelID, msg.SenderRole, msg.SenderID)
	if !ok {
		return
	}
	if recipient == msg.SenderID {
		log.Debug("chat recipient is the sender")
		return
	}
	tripID, _, _ := models.ParseChannelID(msg.ChannelID)

	title := "New message"
	if name := e.userName(ctx, msg.SenderID); name != "" {
		title = name
	}
	data := map[string]string{
		"type":       string(events.NewChatMessage),
		"tripId":     tripID,
		"senderId":   msg.SenderID,
		"senderRole": string(msg.SenderRole),
	}
	e.Notifier.Dispatch(ctx, recipient, dispatch.Notification{Title: title, Body: chat.Preview(msg.Text)}, data)
}
