// Package calls issues ZEGOCLOUD room credentials for consultations.
package calls

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/docsathi/telehealth-api/internal/appointments"
	"github.com/docsathi/telehealth-api/internal/identity"
	"github.com/docsathi/telehealth-api/internal/observability/metrics"
	"github.com/docsathi/telehealth-api/pkg/logging"
)

var ErrNotConfigured = errors.New("calls: video provider not configured")

// DefaultTokenTTL covers the whole join window.
const DefaultTokenTTL = 2 * time.Hour

// Joiner starts the consultation for a participant.
type Joiner interface {
	Join(ctx context.Context, p identity.Principal, id uuid.UUID) (*appointments.Appointment, error)
}

// CallOptions are the UI kit settings the client should apply.
type CallOptions struct {
	Mode                string `json:"mode"`
	TurnOnCamera        bool   `json:"turnOnCameraWhenJoining"`
	TurnOnMicrophone    bool   `json:"turnOnMicrophoneWhenJoining"`
	ShowScreenSharing   bool   `json:"showScreenSharingButton"`
	MaxUsers            int    `json:"maxUsers"`
	ShowPreJoinView     bool   `json:"showPreJoinView"`
	ConsultationType    string `json:"consultationType"`
	ShowLeaveRoomDialog bool   `json:"showLeavingView"`
}

// RoomSession is everything a client needs to enter the call.
type RoomSession struct {
	AppID         uint32      `json:"appId"`
	Token         string      `json:"token"`
	RoomID        string      `json:"roomId"`
	UserID        string      `json:"userId"`
	UserName      string      `json:"userName"`
	ExpiresAt     time.Time   `json:"expiresAt"`
	AppointmentID uuid.UUID   `json:"appointmentId"`
	Status        string      `json:"status"`
	Options       CallOptions `json:"options"`
}

type Service struct {
	appts   Joiner
	tokens  *TokenBuilder
	ttl     time.Duration
	metrics *metrics.ClinicMetrics
	logger  *logging.Logger
}

func NewService(appts Joiner, tokens *TokenBuilder, ttl time.Duration, logger *logging.Logger) *Service {
	if appts == nil {
		panic("calls: appointments required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Service{appts: appts, tokens: tokens, ttl: ttl, logger: logger}
}

func (s *Service) WithMetrics(m *metrics.ClinicMetrics) *Service {
	s.metrics = m
	return s
}

// RoomToken joins the appointment and returns a token scoped to its room.
func (s *Service) RoomToken(ctx context.Context, p identity.Principal, appointmentID uuid.UUID) (*RoomSession, error) {
	if !s.tokens.Configured() {
		return nil, ErrNotConfigured
	}
	a, err := s.appts.Join(ctx, p, appointmentID)
	if err != nil {
		return nil, err
	}
	payload, err := RoomPayload(a.CallRoomID)
	if err != nil {
		return nil, err
	}
	userID := p.UserID.String()
	token, expiresAt, err := s.tokens.Generate(userID, payload, s.ttl)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveCallToken()
	s.logger.Info("call token issued", "appointment_id", a.ID, "user_id", userID, "role", p.Role)

	name := p.Name
	if name == "" {
		name = string(p.Role)
	}
	return &RoomSession{
		AppID:         s.tokens.appID,
		Token:         token,
		RoomID:        a.CallRoomID,
		UserID:        userID,
		UserName:      name,
		ExpiresAt:     expiresAt,
		AppointmentID: a.ID,
		Status:        string(a.Status),
		Options: CallOptions{
			Mode:                "OneONoneCall",
			TurnOnCamera:        a.ConsultationType == appointments.TypeVideo,
			TurnOnMicrophone:    true,
			ShowScreenSharing:   true,
			MaxUsers:            2,
			ShowPreJoinView:     false,
			ConsultationType:    string(a.ConsultationType),
			ShowLeaveRoomDialog: true,
		},
	}, nil
}
