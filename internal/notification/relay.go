package notification

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const publishTimeout = 2 * time.Second

// envelope is the wire format shared by all instances on the relay channel.
type envelope struct {
	Event     string          `json:"event"`
	Broadcast bool            `json:"broadcast,omitempty"`
	UserID    int64           `json:"userId,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// Relay publishes notifications on a Redis channel so that every instance
// delivers them to its own hub. When publishing fails the notification is
// delivered to the local hub only.
type Relay struct {
	client  *redis.Client
	channel string
	hub     *Hub
}

// NewRelay creates a relay in front of hub.
func NewRelay(client *redis.Client, channel string, hub *Hub) *Relay {
	return &Relay{client: client, channel: channel, hub: hub}
}

func (r *Relay) BroadcastAll(event string, payload any) {
	msg, err := encode(event, payload)
	if err != nil {
		log.Printf("relay: %v", err)
		return
	}
	r.publish(envelope{Event: msg.Event, Broadcast: true, Data: msg.Data}, msg)
}

func (r *Relay) NotifyUser(userID int64, event string, payload any) {
	msg, err := encode(event, payload)
	if err != nil {
		log.Printf("relay: %v", err)
		return
	}
	r.publish(envelope{Event: msg.Event, UserID: userID, Data: msg.Data}, msg)
}

func (r *Relay) publish(env envelope, msg Message) {
	body, err := json.Marshal(env)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err = r.client.Publish(ctx, r.channel, body).Err()
		cancel()
		if err == nil {
			return
		}
	}
	log.Printf("relay: publish %s failed, delivering locally: %v", env.Event, err)
	r.deliver(env, msg)
}

// Run subscribes to the relay channel and delivers messages to the local hub
// until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	log.Printf("relay: subscribed to %s", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Println("relay: shutting down")
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			r.handle(m.Payload)
		}
	}
}

func (r *Relay) handle(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		log.Printf("relay: discarding malformed message: %v", err)
		return
	}
	r.deliver(env, Message{Event: env.Event, Data: env.Data})
}

func (r *Relay) deliver(env envelope, msg Message) {
	if env.Broadcast {
		r.hub.deliverAll(msg)
		return
	}
	r.hub.deliverUser(env.UserID, msg)
}
