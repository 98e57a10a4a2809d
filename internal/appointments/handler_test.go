package appointments

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsathi/telehealth-api/internal/identity"
	"github.com/docsathi/telehealth-api/pkg/logging"
)

func withPrincipal(r *http.Request, p identity.Principal) *http.Request {
	return r.WithContext(identity.WithPrincipal(r.Context(), p))
}

func withParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestHandlerBookConflict(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, logging.Discard())
	body := `{"doctorId":"` + f.doctor.UserID.String() + `","slotStartIso":"` +
		f.at(10, 0).Format("2006-01-02T15:04:05Z07:00") + `","consultationType":"Voice Call","symptoms":"cough"}`

	rec := httptest.NewRecorder()
	h.Book(rec, withPrincipal(httptest.NewRequest(http.MethodPost, "/api/appointments", strings.NewReader(body)), f.patient))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var env struct {
		Data Appointment `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, int64(990), env.Data.TotalAmount)

	rec = httptest.NewRecorder()
	h.Book(rec, withPrincipal(httptest.NewRequest(http.MethodPost, "/api/appointments", strings.NewReader(body)), f.patient))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	h.Book(rec, withPrincipal(httptest.NewRequest(http.MethodPost, "/api/appointments",
		strings.NewReader(`{"doctorId":"`+f.doctor.UserID.String()+`","consultationType":"Home Visit"}`)), f.patient))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerSlotsAndStatus(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, logging.Discard())
	a := f.book(t, f.at(10, 0), TypeVideo)

	req := withParam(httptest.NewRequest(http.MethodGet, "/api/doctors/x/slots?date=2025-03-10", nil), "doctorID", f.doctor.UserID.String())
	rec := httptest.NewRecorder()
	h.Slots(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"label":"10:00 AM"`)

	req = httptest.NewRequest(http.MethodPatch, "/api/appointments/x/status", strings.NewReader(`{"status":"In Progress"}`))
	req = withParam(withPrincipal(req, f.patient), "appointmentID", a.ID.String())
	rec = httptest.NewRecorder()
	h.UpdateStatus(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "outside join window")

	f.now = f.at(9, 50)
	req = withParam(withPrincipal(httptest.NewRequest(http.MethodPost, "/api/appointments/x/join", nil), f.patient), "appointmentID", a.ID.String())
	rec = httptest.NewRecorder()
	h.Join(rec, req)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Contains(t, rec.Body.String(), "payment must be completed")
}

func TestHandlerPrescriptionDownload(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, logging.Discard())
	ctx := context.Background()
	a := f.book(t, f.at(10, 0), TypeVideo)
	_, _, err := f.svc.RecordPayment(ctx, a.ID, PaymentRecord{Method: "eSewa", TransactionUUID: "t", PaidAt: f.now})
	require.NoError(t, err)
	f.now = f.at(10, 5)
	_, err = f.svc.Join(ctx, f.doctor, a.ID)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/appointments/x/complete", strings.NewReader(`{"prescription":""}`))
	rec := httptest.NewRecorder()
	h.Complete(rec, withParam(withPrincipal(req, f.doctor), "appointmentID", a.ID.String()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/appointments/x/complete", strings.NewReader(`{"prescription":"ORS"}`))
	rec = httptest.NewRecorder()
	h.Complete(rec, withParam(withPrincipal(req, f.doctor), "appointmentID", a.ID.String()))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/appointments/x/prescription.pdf", nil)
	rec = httptest.NewRecorder()
	h.Prescription(rec, withParam(withPrincipal(req, f.patient), "appointmentID", a.ID.String()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}
