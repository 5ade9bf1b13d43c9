package notification

import (
	"encoding/json"
	"fmt"
)

// Notification event names.
const (
	EventCreated        = "event:created"
	EventUpdated        = "event:updated"
	EventDeleted        = "event:deleted"
	SwapRequestReceived = "swap:request:received"
	SwapRequestAccepted = "swap:request:accepted"
	SwapRequestRejected = "swap:request:rejected"
)

// Fanout delivers notifications after a command has committed.
// Delivery is best effort: implementations never block the caller on slow
// consumers and never report failures back.
type Fanout interface {
	BroadcastAll(event string, payload any)
	NotifyUser(userID int64, event string, payload any)
}

// Message is a notification encoded for delivery.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func encode(event string, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return Message{Event: event, Data: data}, nil
}

// Multi fans a notification out to several sinks.
type Multi []Fanout

func (m Multi) BroadcastAll(event string, payload any) {
	for _, f := range m {
		f.BroadcastAll(event, payload)
	}
}

func (m Multi) NotifyUser(userID int64, event string, payload any) {
	for _, f := range m {
		f.NotifyUser(userID, event, payload)
	}
}

// Discard drops every notification.
type Discard struct{}

func (Discard) BroadcastAll(string, any)      {}
func (Discard) NotifyUser(int64, string, any) {}
