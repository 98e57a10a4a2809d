package payments

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

// Handler serves the /api/payment endpoints.
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

// CreateOrder handles POST /api/payment/create-order.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	p, _ := identity.FromContext(r.Context())
	var req CreateOrderRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.DecodeError(w, err)
		return
	}
	order, err := h.svc.CreateOrder(r.Context(), p, req.AppointmentID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.OK(w, http.StatusOK, "eSewa payment order created successfully", order)
}

// VerifyPayment handles POST /api/payment/verify-payment.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	p, _ := identity.FromContext(r.Context())
	var req VerifyRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.DecodeError(w, err)
		return
	}
	a, err := h.svc.VerifyPayment(r.Context(), p, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.OK(w, http.StatusOK, "Payment verified and appointment confirmed successfully", a)
}

// SuccessCallback handles eSewa's success redirect. v2 sends a base64
// "data" query parameter; form posts with discrete fields are accepted too.
func (h *Handler) SuccessCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid callback")
		return
	}
	var cb Callback
	if data := r.Form.Get("data"); data != "" {
		decoded, err := DecodeCallbackData(data)
		if err != nil {
			h.logger.Warn("esewa callback data undecodable", "error", err)
			respond.Error(w, http.StatusBadRequest, "invalid callback data")
			return
		}
		cb = decoded
	} else {
		cb = Callback{
			TransactionCode:  r.Form.Get("transaction_code"),
			Status:           r.Form.Get("status"),
			TotalAmount:      r.Form.Get("total_amount"),
			TransactionUUID:  r.Form.Get("transaction_uuid"),
			ProductCode:      r.Form.Get("product_code"),
			SignedFieldNames: r.Form.Get("signed_field_names"),
			Signature:        r.Form.Get("signature"),
		}
	}
	target, err := h.svc.HandleSuccess(r.Context(), cb)
	if err != nil {
		if errors.Is(err, ErrInvalidSignature) {
			respond.Error(w, http.StatusBadRequest, "Invalid signature")
			return
		}
		http.Redirect(w, r, h.svc.settings.failureRedirect(), http.StatusFound)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// FailureCallback handles eSewa's failure redirect.
func (h *Handler) FailureCallback(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	target := h.svc.HandleFailure(r.Context(), r.Form.Get("transaction_uuid"))
	http.Redirect(w, r, target, http.StatusFound)
}

// Status handles GET /api/payment/status/{appointmentID}.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	p, _ := identity.FromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid appointment id")
		return
	}
	view, err := h.svc.Status(r.Context(), p, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.OK(w, http.StatusOK, "", view)
}

// Config handles GET /api/payment/test-config.
func (h *Handler) Config(w http.ResponseWriter, r *http.Request) {
	respond.OK(w, http.StatusOK, "Payment configuration check", h.svc.Config())
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointments.ErrNotFound):
		respond.Error(w, http.StatusNotFound, "Appointment not found")
	case errors.Is(err, appointments.ErrForbidden), errors.Is(err, ErrWrongRole):
		respond.Error(w, http.StatusForbidden, "Access denied")
	case errors.Is(err, ErrAlreadyPaid):
		respond.Error(w, http.StatusBadRequest, "Payment already completed")
	case errors.Is(err, ErrCancelledBooking):
		respond.Error(w, http.StatusBadRequest, "Appointment was cancelled")
	case errors.Is(err, ErrNotComplete):
		respond.Error(w, http.StatusBadRequest, "Payment verification failed - status not complete")
	case errors.Is(err, ErrNoTransaction):
		respond.Error(w, http.StatusBadRequest, "No payment has been started for this appointment")
	case errors.Is(err, ErrVelocityExceeded):
		respond.Error(w, http.StatusTooManyRequests, "Too many payment attempts, please try again later")
	case errors.Is(err, ErrNotConfigured):
		respond.Error(w, http.StatusServiceUnavailable, "Payments are not configured")
	default:
		h.logger.Error("payment request failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "Failed to process payment")
	}
}
