package calls

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/docsathi/telehealth-api/internal/appointments"
	"github.com/docsathi/telehealth-api/internal/http/respond"
	"github.com/docsathi/telehealth-api/internal/identity"
	"github.com/docsathi/telehealth-api/pkg/logging"
)

type Handler struct {
	svc    *Service
	logger *logging.Logger
}

func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// RoomToken handles POST /api/calls/{appointmentID}/token.
func (h *Handler) RoomToken(w http.ResponseWriter, r *http.Request) {
	p, _ := identity.FromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid appointment id")
		return
	}
	session, err := h.svc.RoomToken(r.Context(), p, id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotConfigured):
			respond.Error(w, http.StatusServiceUnavailable, "video calls are not configured")
		case errors.Is(err, appointments.ErrNotFound):
			respond.Error(w, http.StatusNotFound, "appointment not found")
		case errors.Is(err, appointments.ErrForbidden):
			respond.Error(w, http.StatusForbidden, "not allowed")
		case errors.Is(err, appointments.ErrPaymentRequired):
			respond.Error(w, http.StatusPaymentRequired, "payment must be completed before joining")
		case errors.Is(err, appointments.ErrOutsideJoinWindow):
			respond.Error(w, http.StatusBadRequest, "the call opens 15 minutes before and closes 2 hours after the start time")
		case errors.Is(err, appointments.ErrInvalidTransition):
			respond.Error(w, http.StatusConflict, "this consultation can no longer be joined")
		default:
			h.logger.Error("call token failed", "error", err, "appointment_id", id)
			respond.Error(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	respond.OK(w, http.StatusOK, "", session)
}
