package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsathi/telehealth-api/internal/identity"
	"github.com/docsathi/telehealth-api/pkg/logging"
)

func TestHubPublishOnlyReachesTopic(t *testing.T) {
	hub := NewHub(logging.Discard())
	apptA, apptB := uuid.New(), uuid.New()
	a := &client{topic: apptA, send: make(chan []byte, 1)}
	b := &client{topic: apptB, send: make(chan []byte, 1)}
	hub.register(a)
	hub.register(b)
	assert.Equal(t, 1, hub.Watchers(apptA))

	hub.Publish(Update{AppointmentID: apptA, Status: "In Progress", PaymentStatus: "Paid"})

	select {
	case msg := <-a.send:
		var u Update
		require.NoError(t, json.Unmarshal(msg, &u))
		assert.Equal(t, TypeUpdate, u.Type)
		assert.Equal(t, "In Progress", u.Status)
		assert.False(t, u.At.IsZero())
	default:
		t.Fatal("expected update on subscribed client")
	}
	assert.Empty(t, b.send)
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(logging.Discard())
	appt := uuid.New()
	c := &client{topic: appt, send: make(chan []byte, 1)}
	hub.register(c)

	hub.Publish(Update{AppointmentID: appt, Status: "Scheduled"})
	hub.Publish(Update{AppointmentID: appt, Status: "Cancelled"})
	assert.Len(t, c.send, 1)
}

func TestHubUnregisterIsIdempotent(t *testing.T) {
	hub := NewHub(logging.Discard())
	c := &client{topic: uuid.New(), send: make(chan []byte, 1)}
	hub.register(c)
	hub.unregister(c)
	hub.unregister(c)
	assert.Zero(t, hub.Watchers(c.topic))

	var nilHub *Hub
	nilHub.Publish(Update{AppointmentID: c.topic})
}

type stubAccess struct {
	allowed uuid.UUID
	status  string
}

func (s stubAccess) CanWatch(_ context.Context, p identity.Principal, id uuid.UUID) (Update, error) {
	if p.UserID != s.allowed {
		return Update{}, ErrNoAccess
	}
	return Update{Status: s.status, PaymentStatus: "Pending"}, nil
}

func newWSServer(t *testing.T, hub *Hub, access AccessChecker, user uuid.UUID) *httptest.Server {
	t.Helper()
	h := NewHandler(hub, access, OriginChecker([]string{"*"}), logging.Discard())
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := identity.WithPrincipal(r.Context(), identity.Principal{UserID: user, Role: identity.RolePatient})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	r.Get("/ws/appointments/{appointmentID}", h.ServeAppointment)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestHandlerSendsSnapshotThenUpdates(t *testing.T) {
	hub := NewHub(logging.Discard())
	user := uuid.New()
	appt := uuid.New()
	srv := newWSServer(t, hub, stubAccess{allowed: user, status: "Scheduled"}, user)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/appointments/" + appt.String()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first Update
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, TypeSnapshot, first.Type)
	assert.Equal(t, appt, first.AppointmentID)
	assert.Equal(t, "Scheduled", first.Status)

	require.Eventually(t, func() bool { return hub.Watchers(appt) == 1 }, time.Second, 10*time.Millisecond)
	hub.Publish(Update{AppointmentID: appt, Status: "In Progress", PaymentStatus: "Paid"})

	var next Update
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, TypeUpdate, next.Type)
	assert.Equal(t, "In Progress", next.Status)
	assert.Equal(t, "Paid", next.PaymentStatus)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Watchers(appt) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandlerRejectsStrangers(t *testing.T) {
	hub := NewHub(logging.Discard())
	srv := newWSServer(t, hub, stubAccess{allowed: uuid.New()}, uuid.New())

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/appointments/" + uuid.NewString()
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestOriginChecker(t *testing.T) {
	check := OriginChecker([]string{"https://app.example.com"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://app.example.com")
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))
}
