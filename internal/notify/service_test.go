package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsathi/telehealth-api/internal/appointments"
	"github.com/docsathi/telehealth-api/internal/events"
	"github.com/docsathi/telehealth-api/internal/profiles"
	"github.com/docsathi/telehealth-api/pkg/logging"
)

func seedAppointment(t *testing.T, repo *appointments.MemoryRepository) *appointments.Appointment {
	t.Helper()
	a := &appointments.Appointment{
		ID:               uuid.New(),
		DoctorID:         uuid.New(),
		PatientID:        uuid.New(),
		Doctor:           &appointments.Party{Name: "Dr. Sharma", Email: "sharma@example.com"},
		Patient:          &appointments.Party{Name: "Sita", Email: "sita@example.com"},
		SlotStart:        time.Date(2025, 3, 10, 4, 15, 0, 0, time.UTC),
		ConsultationType: appointments.TypeVideo,
		Status:           appointments.StatusScheduled,
		PaymentStatus:    appointments.PaymentPending,
		TotalAmount:      1100,
		PaymentMethod:    "eSewa",
		EsewaPaymentID:   "000ABCD",
	}
	require.NoError(t, repo.Create(context.Background(), a))
	return a
}

func kathmandu(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kathmandu")
	require.NoError(t, err)
	return loc
}

type doctorZones map[uuid.UUID]string

func (z doctorZones) GetDoctor(_ context.Context, id uuid.UUID) (*profiles.DoctorProfile, error) {
	tz, ok := z[id]
	if !ok {
		return nil, profiles.ErrNotFound
	}
	return &profiles.DoctorProfile{UserID: id, Timezone: tz}, nil
}

func TestHandleFormatsTimesInDoctorZone(t *testing.T) {
	repo := appointments.NewMemoryRepository()
	a := seedAppointment(t, repo)

	cases := []struct {
		name  string
		zones doctorZones
		want  string
	}{
		{"doctor timezone", doctorZones{a.DoctorID: "Asia/Kolkata"}, "Monday, March 10 at 9:45 AM"},
		{"fallback location", doctorZones{}, "Monday, March 10 at 10:00 AM"},
		{"unknown zone falls back", doctorZones{a.DoctorID: "Mars/Olympus"}, "Monday, March 10 at 10:00 AM"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sender := &MemorySender{}
			svc := NewService(sender, repo, "", logging.Discard()).
				WithLocation(kathmandu(t)).
				WithDoctors(tc.zones)

			rec := &events.Recorder{}
			require.NoError(t, rec.Publish(context.Background(), events.AppointmentAggregate(a.ID.String()), events.AppointmentBookedV1{AppointmentID: a.ID.String()}))
			require.NoError(t, rec.Deliver(context.Background(), svc))
			require.NotEmpty(t, sender.Sent())
			assert.Contains(t, sender.Sent()[0].Body, tc.want)
		})
	}
}

func TestHandleEmailsBothParties(t *testing.T) {
	repo := appointments.NewMemoryRepository()
	a := seedAppointment(t, repo)
	sender := &MemorySender{}
	svc := NewService(sender, repo, "https://app.example.com", logging.Discard()).WithLocation(kathmandu(t))

	rec := &events.Recorder{}
	agg := events.AppointmentAggregate(a.ID.String())
	require.NoError(t, rec.Publish(context.Background(), agg, events.AppointmentBookedV1{AppointmentID: a.ID.String()}))
	require.NoError(t, rec.Publish(context.Background(), agg, events.PaymentSucceededV1{AppointmentID: a.ID.String()}))
	require.NoError(t, rec.Deliver(context.Background(), svc))

	sent := sender.Sent()
	require.Len(t, sent, 4)
	assert.Equal(t, "sita@example.com", sent[0].To)
	assert.Contains(t, sent[0].Body, "Rs. 1100")
	assert.Contains(t, sent[0].Body, "Monday, March 10 at 10:00 AM")
	assert.Contains(t, sent[0].Body, "https://app.example.com/appointments/"+a.ID.String())
	assert.Equal(t, "sharma@example.com", sent[1].To)
	assert.Equal(t, "New appointment: Sita", sent[1].Subject)
	assert.Equal(t, "Payment received", sent[2].Subject)
	assert.Contains(t, sent[2].Body, "000ABCD")
}

func TestHandleCompletionAndCancellation(t *testing.T) {
	repo := appointments.NewMemoryRepository()
	a := seedAppointment(t, repo)
	sender := &MemorySender{}
	svc := NewService(sender, repo, "", logging.Discard())

	rec := &events.Recorder{}
	agg := events.AppointmentAggregate(a.ID.String())
	require.NoError(t, rec.Publish(context.Background(), agg, events.AppointmentStatusChangedV1{AppointmentID: a.ID.String(), From: "Scheduled", To: "In Progress"}))
	require.NoError(t, rec.Publish(context.Background(), agg, events.ConsultationCompletedV1{AppointmentID: a.ID.String()}))
	require.NoError(t, rec.Publish(context.Background(), agg, events.AppointmentStatusChangedV1{AppointmentID: a.ID.String(), From: "Scheduled", To: "Cancelled"}))
	require.NoError(t, rec.Deliver(context.Background(), svc))

	sent := sender.Sent()
	require.Len(t, sent, 3)
	assert.Equal(t, "Your prescription is ready", sent[0].Subject)
	assert.Equal(t, "Appointment cancelled", sent[1].Subject)
	assert.Equal(t, "Appointment cancelled", sent[2].Subject)
	assert.NotContains(t, sent[0].Body, "\n\n", "no link without app url")
}

func TestHandleSkipsMissingAppointment(t *testing.T) {
	sender := &MemorySender{}
	svc := NewService(sender, appointments.NewMemoryRepository(), "", logging.Discard())

	rec := &events.Recorder{}
	id := uuid.NewString()
	require.NoError(t, rec.Publish(context.Background(), events.AppointmentAggregate(id), events.AppointmentBookedV1{AppointmentID: id}))
	require.NoError(t, rec.Deliver(context.Background(), svc))
	assert.Empty(t, sender.Sent())
}

func TestHandleReportsSendFailure(t *testing.T) {
	repo := appointments.NewMemoryRepository()
	a := seedAppointment(t, repo)
	svc := NewService(&MemorySender{Err: errors.New("smtp down")}, repo, "", logging.Discard())

	rec := &events.Recorder{}
	require.NoError(t, rec.Publish(context.Background(), events.AppointmentAggregate(a.ID.String()), events.ConsultationCompletedV1{AppointmentID: a.ID.String()}))
	err := rec.Deliver(context.Background(), svc)
	assert.ErrorContains(t, err, "smtp down")
}

type bouncingSender struct {
	MemorySender
	bounce string
}

func (b *bouncingSender) Send(ctx context.Context, msg EmailMessage) error {
	if msg.To == b.bounce {
		return errors.New("mailbox unavailable")
	}
	return b.MemorySender.Send(ctx, msg)
}

func TestHandlePartialFailureIsNotRetried(t *testing.T) {
	repo := appointments.NewMemoryRepository()
	a := seedAppointment(t, repo)
	sender := &bouncingSender{bounce: "sharma@example.com"}
	svc := NewService(sender, repo, "", logging.Discard())

	rec := &events.Recorder{}
	require.NoError(t, rec.Publish(context.Background(), events.AppointmentAggregate(a.ID.String()), events.AppointmentBookedV1{AppointmentID: a.ID.String()}))

	// A nil result lets the outbox mark the entry delivered, so the patient
	// is not emailed again on the next tick.
	require.NoError(t, rec.Deliver(context.Background(), svc))
	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "sita@example.com", sent[0].To)
}

func TestHandleEscapesHTML(t *testing.T) {
	repo := appointments.NewMemoryRepository()
	a := seedAppointment(t, repo)
	a.ID = uuid.New()
	a.DoctorID = uuid.New()
	a.Patient = &appointments.Party{Name: "<b>Ram</b>", Email: "ram@example.com"}
	require.NoError(t, repo.Create(context.Background(), a))

	sender := &MemorySender{}
	svc := NewService(sender, repo, "", logging.Discard())
	rec := &events.Recorder{}
	require.NoError(t, rec.Publish(context.Background(), events.AppointmentAggregate(a.ID.String()), events.ConsultationCompletedV1{AppointmentID: a.ID.String()}))
	require.NoError(t, rec.Deliver(context.Background(), svc))

	require.Len(t, sender.Sent(), 1)
	assert.Contains(t, sender.Sent()[0].HTML, "&lt;b&gt;Ram&lt;/b&gt;")
}
