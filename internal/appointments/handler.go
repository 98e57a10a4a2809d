package appointments

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/docsathi/telehealth-api/internal/http/respond"
	"github.com/docsathi/telehealth-api/internal/identity"
	"github.com/docsathi/telehealth-api/pkg/logging"
)

// Handler serves slot lookups and appointment endpoints.
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

func pathUUID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	return id, err == nil
}

// Slots handles GET /api/doctors/{doctorID}/slots?date=YYYY-MM-DD.
func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := pathUUID(r, "doctorID")
	if !ok {
		respond.Error(w, http.StatusBadRequest, "invalid doctor id")
		return
	}
	date := r.URL.Query().Get("date")
	if date == "" {
		respond.Error(w, http.StatusBadRequest, "date is required")
		return
	}
	day, err := h.svc.AvailableSlots(r.Context(), doctorID, date)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.OK(w, http.StatusOK, "", day)
}

// AvailableDates handles GET /api/doctors/{doctorID}/available-dates.
func (h *Handler) AvailableDates(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := pathUUID(r, "doctorID")
	if !ok {
		respond.Error(w, http.StatusBadRequest, "invalid doctor id")
		return
	}
	q := r.URL.Query()
	dates, err := h.svc.AvailableDates(r.Context(), doctorID, q.Get("from"), q.Get("to"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.OK(w, http.StatusOK, "", map[string]any{"doctorId": doctorID, "dates": dates})
}

// BookedSlots handles GET /api/doctors/{doctorID}/booked-slots?from=&to=
// with RFC 3339 bounds. The default window is the next 30 days.
func (h *Handler) BookedSlots(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := pathUUID(r, "doctorID")
	if !ok {
		respond.Error(w, http.StatusBadRequest, "invalid doctor id")
		return
	}
	from := time.Now().UTC()
	to := from.AddDate(0, 0, defaultDatesWindow)
	q := r.URL.Query()
	var err error
	if v := q.Get("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			respond.Error(w, http.StatusBadRequest, "from must be an RFC 3339 timestamp")
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			respond.Error(w, http.StatusBadRequest, "to must be an RFC 3339 timestamp")
			return
		}
	}
	starts, err := h.svc.BookedSlots(r.Context(), doctorID, from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if starts == nil {
		starts = []time.Time{}
	}
	respond.OK(w, http.StatusOK, "", map[string]any{"doctorId": doctorID, "bookedSlots": starts})
}

// Quote handles GET /api/doctors/{doctorID}/quote?type=.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := pathUUID(r, "doctorID")
	if !ok {
		respond.Error(w, http.StatusBadRequest, "invalid doctor id")
		return
	}
	kind := ConsultationType(r.URL.Query().Get("type"))
	if kind == "" {
		kind = TypeVideo
	}
	quote, err := h.svc.Quote(r.Context(), doctorID, kind)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.OK(w, http.StatusOK, "", quote)
}

// Book handles POST /api/appointments.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	p, _ := identity.FromContext(r.Context())
	var req BookRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.DecodeError(w, err)
		return
	}
	a, err := h.svc.Book(r.Context(), p, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.OK(w, http.StatusCreated, "appointment booked", a)
}

// List handles GET /api/appointments?tab=upcoming|past|all.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	p, _ := identity.FromContext(r.Context())
	list, err := h.svc.List(r.Context(), p, ParseTab(r.URL.Query().Get("tab")))
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.OK(w, http.StatusOK, "", list)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, _ := identity.FromContext(r.Context())
	id, ok := pathUUID(r, "appointmentID")
	if !ok {
		respond.Error(w, http.StatusBadRequest, "invalid appointment id")
		return
	}
	a, err := h.svc.Get(r.Context(), p, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.OK(w, http.StatusOK, "", a)
}

// UpdateStatus handles PATCH /api/appointments/{appointmentID}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	p, _ := identity.FromContext(r.Context())
	id, ok := pathUUID(r, "appointmentID")
	if !ok {
		respond.Error(w, http.StatusBadRequest, "invalid appointment id")
		return
	}
	var req StatusRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.DecodeError(w, err)
		return
	}
	a, err := h.svc.UpdateStatus(r.Context(), p, id, req.Status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.OK(w, http.StatusOK, "status updated", a)
}

// Join handles POST /api/appointments/{appointmentID}/join.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	p, _ := identity.FromContext(r.Context())
	id, ok := pathUUID(r, "appointmentID")
	if !ok {
		respond.Error(w, http.StatusBadRequest, "invalid appointment id")
		return
	}
	a, err := h.svc.Join(r.Context(), p, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.OK(w, http.StatusOK, "consultation started", a)
}

// Complete handles POST /api/appointments/{appointmentID}/complete.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	p, _ := identity.FromContext(r.Context())
	id, ok := pathUUID(r, "appointmentID")
	if !ok {
		respond.Error(w, http.StatusBadRequest, "invalid appointment id")
		return
	}
	var req CompleteRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.DecodeError(w, err)
		return
	}
	a, err := h.svc.Complete(r.Context(), p, id, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.OK(w, http.StatusOK, "consultation completed", a)
}

// Prescription handles GET /api/appointments/{appointmentID}/prescription.pdf.
func (h *Handler) Prescription(w http.ResponseWriter, r *http.Request) {
	p, _ := identity.FromContext(r.Context())
	id, ok := pathUUID(r, "appointmentID")
	if !ok {
		respond.Error(w, http.StatusBadRequest, "invalid appointment id")
		return
	}
	pdf, name, err := h.svc.PrescriptionPDF(r.Context(), p, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(w, http.StatusNotFound, "appointment or doctor not found")
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrWrongRole):
		respond.Error(w, http.StatusForbidden, "not allowed")
	case errors.Is(err, ErrSlotTaken):
		respond.Error(w, http.StatusConflict, "this slot has just been booked, please pick another")
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrStaleStatus), errors.Is(err, ErrNotCompleted):
		respond.Error(w, http.StatusConflict, errorMessage(err))
	case errors.Is(err, ErrPaymentRequired):
		respond.Error(w, http.StatusPaymentRequired, errorMessage(err))
	case errors.Is(err, ErrSlotUnavailable), errors.Is(err, ErrDoctorUnavailable),
		errors.Is(err, ErrInvalidType), errors.Is(err, ErrInvalidDate),
		errors.Is(err, ErrCancelTooLate), errors.Is(err, ErrCancelTooEarly),
		errors.Is(err, ErrPrescriptionRequired), errors.Is(err, ErrOutsideJoinWindow):
		respond.Error(w, http.StatusBadRequest, errorMessage(err))
	default:
		h.logger.Error("appointments request failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "internal error")
	}
}

var friendly = map[error]string{
	ErrInvalidTransition:    "status change not allowed",
	ErrStaleStatus:          "appointment changed, refresh and try again",
	ErrNotCompleted:         "prescription is available after the consultation is completed",
	ErrPaymentRequired:      "payment must be completed before joining",
	ErrSlotUnavailable:      "slot is not available",
	ErrDoctorUnavailable:    "doctor is not accepting bookings",
	ErrInvalidType:          "unknown consultation type",
	ErrInvalidDate:          "date must be YYYY-MM-DD",
	ErrCancelTooLate:        "appointments can be cancelled up to 2 hours before start",
	ErrCancelTooEarly:       "a doctor can cancel only after the start time has passed",
	ErrPrescriptionRequired: "prescription is required to complete a consultation",
	ErrOutsideJoinWindow:    "the call opens 15 minutes before and closes 2 hours after the start time",
}

func errorMessage(err error) string {
	for target, msg := range friendly {
		if errors.Is(err, target) {
			return msg
		}
	}
	return err.Error()
}
