package notification

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// Hub delivers notifications to live connections in this process,
// grouped into one channel per user.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[string]*Subscription
	buffer  int
}

// Subscription is one live connection joined to its user's channel.
type Subscription struct {
	ID     string
	UserID int64
	C      <-chan Message

	ch   chan Message
	hub  *Hub
	once sync.Once
}

// NewHub creates a hub whose subscriptions buffer up to buffer messages.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		clients: make(map[int64]map[string]*Subscription),
		buffer:  buffer,
	}
}

// Join registers a new connection for userID.
func (h *Hub) Join(userID int64) *Subscription {
	ch := make(chan Message, h.buffer)
	sub := &Subscription{
		ID:     uuid.NewString(),
		UserID: userID,
		C:      ch,
		ch:     ch,
		hub:    h,
	}

	h.mu.Lock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[string]*Subscription)
	}
	h.clients[userID][sub.ID] = sub
	h.mu.Unlock()
	return sub
}

// Leave unregisters the connection and closes its channel.
func (s *Subscription) Leave() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		defer h.mu.Unlock()
		if conns, ok := h.clients[s.UserID]; ok {
			delete(conns, s.ID)
			if len(conns) == 0 {
				delete(h.clients, s.UserID)
			}
		}
		close(s.ch)
	})
}

// Connections returns the number of live connections for userID.
func (h *Hub) Connections(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) BroadcastAll(event string, payload any) {
	msg, err := encode(event, payload)
	if err != nil {
		log.Printf("hub: %v", err)
		return
	}
	h.deliverAll(msg)
}

func (h *Hub) NotifyUser(userID int64, event string, payload any) {
	msg, err := encode(event, payload)
	if err != nil {
		log.Printf("hub: %v", err)
		return
	}
	h.deliverUser(userID, msg)
}

func (h *Hub) deliverAll(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conns := range h.clients {
		for _, sub := range conns {
			sub.offer(msg)
		}
	}
}

func (h *Hub) deliverUser(userID int64, msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.clients[userID] {
		sub.offer(msg)
	}
}

// offer never blocks; a slow connection loses the message.
// Callers hold the hub read lock, so the channel is open.
func (s *Subscription) offer(msg Message) {
	select {
	case s.ch <- msg:
	default:
		log.Printf("hub: dropping %s for user %d connection %s: buffer full", msg.Event, s.UserID, s.ID)
	}
}
