package auth

import (
	"errors"
	"net/http"

	"github.com/docsathi/telehealth-api/internal/http/respond"
	"github.com/docsathi/telehealth-api/internal/identity"
	"github.com/docsathi/telehealth-api/pkg/logging"
)

// Handler serves /api/auth.
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

// Register handles POST /api/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.DecodeError(w, err)
		return
	}
	session, err := h.svc.Register(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.OK(w, http.StatusCreated, "registration successful", session)
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.DecodeError(w, err)
		return
	}
	session, err := h.svc.Login(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.OK(w, http.StatusOK, "login successful", session)
}

// Me handles GET /api/auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	user, err := h.svc.Me(r.Context(), p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.OK(w, http.StatusOK, "", user)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEmailTaken):
		respond.Error(w, http.StatusConflict, "an account with this email already exists")
	case errors.Is(err, ErrInvalidCredentials):
		respond.Error(w, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, ErrRoleMismatch):
		respond.Error(w, http.StatusForbidden, "this account is not registered for the selected role")
	case errors.Is(err, ErrNotFound):
		respond.Error(w, http.StatusNotFound, "user not found")
	default:
		h.logger.Error("auth request failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "internal server error")
	}
}
