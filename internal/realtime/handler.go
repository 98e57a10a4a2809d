package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/docsathi/telehealth-api/internal/http/respond"
	"github.com/docsathi/telehealth-api/internal/identity"
	"github.com/docsathi/telehealth-api/pkg/logging"
)

// ErrNoAccess is returned by an AccessChecker when the caller may not watch
// the appointment, including when it does not exist.
var ErrNoAccess = errors.New("realtime: no access")

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

// AccessChecker authorizes a watcher and returns the current state sent as
// the first message.
type AccessChecker interface {
	CanWatch(ctx context.Context, p identity.Principal, appointmentID uuid.UUID) (Update, error)
}

// Handler upgrades GET /ws/appointments/{appointmentID} to a websocket.
type Handler struct {
	hub      *Hub
	access   AccessChecker
	upgrader websocket.Upgrader
	logger   *logging.Logger
}

func NewHandler(hub *Hub, access AccessChecker, checkOrigin func(*http.Request) bool, logger *logging.Logger) *Handler {
	if hub == nil || access == nil {
		panic("realtime: hub and access checker required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		hub:    hub,
		access: access,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

// OriginChecker allows the listed origins; "*" allows any.
func OriginChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	wildcard := false
	for _, o := range allowed {
		if o == "*" {
			wildcard = true
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || wildcard {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (h *Handler) ServeAppointment(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid appointment id")
		return
	}
	snapshot, err := h.access.CanWatch(r.Context(), p, id)
	if err != nil {
		if errors.Is(err, ErrNoAccess) {
			respond.Error(w, http.StatusForbidden, "not allowed to watch this appointment")
			return
		}
		h.logger.Error("realtime: access check failed", "error", err, "appointment_id", id)
		respond.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Warn("realtime: upgrade failed", "error", err)
		return
	}

	c := &client{topic: id, send: make(chan []byte, sendBuffer)}
	snapshot.Type = TypeSnapshot
	snapshot.AppointmentID = id
	if snapshot.At.IsZero() {
		snapshot.At = time.Now().UTC()
	}
	if data, err := json.Marshal(snapshot); err == nil {
		c.send <- data
	}
	h.hub.register(c)
	h.logger.Debug("realtime: client connected", "appointment_id", id, "user_id", p.UserID)

	go h.writePump(c, conn)
	go h.readPump(c, conn)
}

// readPump only services control frames; client messages are discarded.
func (h *Handler) readPump(c *client, conn *websocket.Conn) {
	defer func() {
		h.hub.unregister(c)
		conn.Close()
	}()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) writePump(c *client, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
