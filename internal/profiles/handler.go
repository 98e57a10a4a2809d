package profiles

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/docsathi/telehealth-api/internal/http/respond"
	"github.com/docsathi/telehealth-api/internal/identity"
	"github.com/docsathi/telehealth-api/pkg/logging"
)

// Handler serves profile and doctor directory endpoints.
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

// GetProfile handles GET /api/profile.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	profile, err := h.svc.GetProfile(r.Context(), p)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.OK(w, http.StatusOK, "", profile)
}

// UpdateDoctorProfile handles PUT /api/doctors/profile.
func (h *Handler) UpdateDoctorProfile(w http.ResponseWriter, r *http.Request) {
	p, _ := identity.FromContext(r.Context())
	var req UpdateDoctorRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.DecodeError(w, err)
		return
	}
	profile, err := h.svc.UpdateDoctorProfile(r.Context(), p, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.OK(w, http.StatusOK, "profile updated", profile)
}

// UpdatePatientProfile handles PUT /api/patients/profile.
func (h *Handler) UpdatePatientProfile(w http.ResponseWriter, r *http.Request) {
	p, _ := identity.FromContext(r.Context())
	var req UpdatePatientRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.DecodeError(w, err)
		return
	}
	profile, err := h.svc.UpdatePatientProfile(r.Context(), p, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.OK(w, http.StatusOK, "profile updated", profile)
}

// ListDoctors handles GET /api/doctors.
func (h *Handler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := DoctorFilter{
		Search:         q.Get("search"),
		Specialization: q.Get("specialization"),
		Category:       q.Get("category"),
		City:           q.Get("city"),
		SortBy:         q.Get("sortBy"),
		SortOrder:      q.Get("sortOrder"),
	}
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		filter.Page = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = v
	}
	page, err := h.svc.ListDoctors(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.OK(w, http.StatusOK, "", page)
}

// GetDoctor handles GET /api/doctors/{doctorID}.
func (h *Handler) GetDoctor(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "doctorID"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid doctor id")
		return
	}
	doctor, err := h.svc.GetDoctor(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.OK(w, http.StatusOK, "", doctor)
}

// UploadImage handles POST /api/profile/image with a multipart "image" field.
// The stored content type is sniffed from the bytes, not taken from the client.
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	p, _ := identity.FromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, MaxImageBytes+(1<<20))
	file, _, err := r.FormFile("image")
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	body, err := io.ReadAll(io.LimitReader(file, MaxImageBytes+1))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "could not read image")
		return
	}
	url, err := h.svc.UploadProfileImage(r.Context(), p, http.DetectContentType(body), body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.OK(w, http.StatusOK, "profile image updated", map[string]string{"profileImage": url})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(w, http.StatusNotFound, "profile not found")
	case errors.Is(err, ErrWrongRole):
		respond.Error(w, http.StatusForbidden, "operation not allowed for this role")
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrInvalidProfile):
		respond.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrImageType):
		respond.Error(w, http.StatusUnsupportedMediaType, "image must be jpeg, png or webp")
	case errors.Is(err, ErrImageTooLarge):
		respond.Error(w, http.StatusRequestEntityTooLarge, "image must be 5 MB or smaller")
	case errors.Is(err, ErrNoImageStore):
		respond.Error(w, http.StatusServiceUnavailable, "image uploads are not configured")
	default:
		h.logger.Error("profile request failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "internal server error")
	}
}
