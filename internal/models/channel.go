package models

import "strings"

// ChannelSeparator joins the trip id and passenger id of a chat channel.
const ChannelSeparator = "__"

// ChannelID builds the chat channel identifier for a trip/passenger pair.
func ChannelID(tripID, passengerID string) string {
	return tripID + ChannelSeparator + passengerID
}

// ParseChannelID splits a channel identifier into its trip and passenger ids.
// ok is false unless the identifier has exactly two non-empty parts.
func ParseChannelID(id string) (tripID, passengerID string, ok bool) {
	parts := strings.Split(id, ChannelSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
