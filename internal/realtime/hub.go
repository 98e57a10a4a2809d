// Package realtime pushes appointment status and payment changes to
// websocket subscribers. Each appointment id is a topic.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docsathi/telehealth-api/pkg/logging"
)

const (
	TypeSnapshot = "snapshot"
	TypeUpdate   = "update"
)

// Update is the message written to websocket clients.
type Update struct {
	Type          string    `json:"type"`
	AppointmentID uuid.UUID `json:"appointmentId"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"paymentStatus"`
	At            time.Time `json:"at"`
}

// client is one websocket connection watching a single appointment.
type client struct {
	topic uuid.UUID
	send  chan []byte
}

// Hub tracks connected clients by appointment. Safe for concurrent use.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*client]struct{}
	logger  *logging.Logger
}

func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		clients: make(map[uuid.UUID]map[*client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.topic]
	if set == nil {
		set = make(map[*client]struct{})
		h.clients[c.topic] = set
	}
	set[c] = struct{}{}
}

// unregister removes c and closes its send channel. Calling it twice is a no-op.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.topic]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.topic)
	}
	close(c.send)
}

// Publish fans an update out to every client watching the appointment.
// Slow clients with a full buffer miss the message rather than block.
func (h *Hub) Publish(u Update) {
	if h == nil {
		return
	}
	if u.Type == "" {
		u.Type = TypeUpdate
	}
	if u.At.IsZero() {
		u.At = time.Now().UTC()
	}
	data, err := json.Marshal(u)
	if err != nil {
		h.logger.Error("realtime: marshal update failed", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[u.AppointmentID] {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("realtime: dropping update for slow client", "appointment_id", u.AppointmentID)
		}
	}
}

// Watchers returns the number of clients subscribed to an appointment.
func (h *Hub) Watchers(appointmentID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[appointmentID])
}
