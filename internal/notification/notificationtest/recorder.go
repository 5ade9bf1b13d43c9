// Package notificationtest provides a Fanout that records deliveries.
package notificationtest

import "sync"

// Delivery is one recorded notification. UserID is zero for broadcasts.
type Delivery struct {
	Broadcast bool
	UserID    int64
	Event     string
	Payload   any
}

// Recorder records every notification it receives.
type Recorder struct {
	mu         sync.Mutex
	deliveries []Delivery
}

func (r *Recorder) BroadcastAll(event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, Delivery{Broadcast: true, Event: event, Payload: payload})
}

func (r *Recorder) NotifyUser(userID int64, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, Delivery{UserID: userID, Event: event, Payload: payload})
}

// All returns a copy of the recorded deliveries.
func (r *Recorder) All() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.deliveries...)
}

// Events returns the recorded event names in order.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.deliveries))
	for i, d := range r.deliveries {
		names[i] = d.Event
	}
	return names
}

// Last returns the most recent delivery.
func (r *Recorder) Last() (Delivery, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.deliveries) == 0 {
		return Delivery{}, false
	}
	return r.deliveries[len(r.deliveries)-1], true
}

// Reset forgets all deliveries.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = nil
}
