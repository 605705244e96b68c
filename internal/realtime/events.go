// Package realtime fans events out to connected websocket clients by channel.
package realtime

import (
	"encoding/json"
	"time"
)

// Event names pushed to clients.
const (
	EventQueueUpdate       = "queue:update"
	EventQueuePosition     = "queue:position"
	EventAppointmentStatus = "appointment:status"
	EventNotification      = "notification"
)

func RoleChannel(role string) string       { return "role:" + role }
func UserChannel(userID string) string     { return "user:" + userID }
func DoctorChannel(doctorID string) string { return "doctor:" + doctorID }

// Envelope is the frame written to sockets and relayed between instances.
type Envelope struct {
	Event     string          `json:"event"`
	Channel   string          `json:"channel"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEnvelope marshals payload into an envelope stamped with the current time.
func NewEnvelope(channel, event string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Channel: channel, Data: data, Timestamp: time.Now().UTC()}, nil
}
