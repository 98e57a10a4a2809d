package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/google/uuid"

	"github.com/docsathi/telehealth-api/internal/appointments"
	"github.com/docsathi/telehealth-api/internal/events"
	"github.com/docsathi/telehealth-api/internal/observability/metrics"
	"github.com/docsathi/telehealth-api/internal/profiles"
	"github.com/docsathi/telehealth-api/pkg/logging"
)

// AppointmentLookup loads an appointment with both parties filled in.
type AppointmentLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*appointments.Appointment, error)
}

// DoctorLookup resolves the doctor's profile for their configured timezone.
type DoctorLookup interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*profiles.DoctorProfile, error)
}

// Service turns outbox events into emails for the patient and doctor.
// It implements events.DeliveryHandler.
type Service struct {
	email    EmailSender
	lookup   AppointmentLookup
	appURL   string
	location *time.Location
	doctors  DoctorLookup
	metrics  *metrics.ClinicMetrics
	logger   *logging.Logger
}

func NewService(email EmailSender, lookup AppointmentLookup, appURL string, logger *logging.Logger) *Service {
	if lookup == nil {
		panic("notify: appointment lookup required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, lookup: lookup, appURL: appURL, location: time.UTC, logger: logger}
}

func (s *Service) WithMetrics(m *metrics.ClinicMetrics) *Service {
	s.metrics = m
	return s
}

// WithLocation sets the fallback zone used when printing appointment times.
func (s *Service) WithLocation(loc *time.Location) *Service {
	if loc != nil {
		s.location = loc
	}
	return s
}

// WithDoctors prints times in the doctor's own timezone when it is set.
func (s *Service) WithDoctors(d DoctorLookup) *Service {
	s.doctors = d
	return s
}

// Handle implements events.DeliveryHandler. Unknown event types are ignored.
func (s *Service) Handle(ctx context.Context, entry events.OutboxEntry) error {
	env, err := entry.Envelope()
	if err != nil {
		return err
	}

	var (
		appointmentID string
		build         func(a *appointments.Appointment, when string) []EmailMessage
	)
	switch env.EventType {
	case events.TypeAppointmentBooked:
		var evt events.AppointmentBookedV1
		if err := env.Decode(&evt); err != nil {
			return err
		}
		appointmentID, build = evt.AppointmentID, s.bookedMessages
	case events.TypePaymentSucceeded:
		var evt events.PaymentSucceededV1
		if err := env.Decode(&evt); err != nil {
			return err
		}
		appointmentID, build = evt.AppointmentID, s.paidMessages
	case events.TypeConsultationCompleted:
		var evt events.ConsultationCompletedV1
		if err := env.Decode(&evt); err != nil {
			return err
		}
		appointmentID, build = evt.AppointmentID, s.completedMessages
	case events.TypeAppointmentStatus:
		var evt events.AppointmentStatusChangedV1
		if err := env.Decode(&evt); err != nil {
			return err
		}
		if evt.To != string(appointments.StatusCancelled) {
			return nil
		}
		appointmentID, build = evt.AppointmentID, s.cancelledMessages
	default:
		return nil
	}

	if s.email == nil {
		s.logger.Debug("notify: email sender not configured, skipping", "type", env.EventType)
		return nil
	}

	id, err := uuid.Parse(appointmentID)
	if err != nil {
		return fmt.Errorf("notify: %s: bad appointment id %q", env.EventType, appointmentID)
	}
	a, err := s.lookup.Get(ctx, id)
	if err != nil {
		if errors.Is(err, appointments.ErrNotFound) {
			s.logger.Warn("notify: appointment gone, dropping event", "appointment_id", id, "type", env.EventType)
			return nil
		}
		return fmt.Errorf("notify: load appointment: %w", err)
	}

	// A partial failure is not retried: the outbox redelivers whole entries,
	// so a retry would resend to recipients that already got the email.
	var (
		errs []error
		sent int
	)
	when := a.SlotStart.In(s.zoneFor(ctx, a)).Format("Monday, January 2 at 3:04 PM")
	for _, msg := range build(a, when) {
		if msg.To == "" {
			continue
		}
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("notify: failed to send email", "error", err, "to", msg.To, "type", env.EventType, "appointment_id", id)
			s.metrics.ObserveNotification(env.EventType, "error")
			errs = append(errs, err)
			continue
		}
		sent++
		s.metrics.ObserveNotification(env.EventType, "sent")
	}
	if len(errs) > 0 && sent == 0 {
		return fmt.Errorf("notify: %d notification(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

func (s *Service) bookedMessages(a *appointments.Appointment, when string) []EmailMessage {
	return []EmailMessage{
		s.message(a.Patient, "Appointment booked with "+partyName(a.Doctor),
			fmt.Sprintf("Your %s with %s is booked for %s.\nAmount due: Rs. %d. Complete the payment to confirm your appointment.",
				a.ConsultationType, partyName(a.Doctor), when, a.TotalAmount),
			s.link("/appointments/"+a.ID.String())),
		s.message(a.Doctor, "New appointment: "+partyName(a.Patient),
			fmt.Sprintf("%s booked a %s for %s.\nSymptoms: %s", partyName(a.Patient), a.ConsultationType, when, orDash(a.Symptoms)),
			s.link("/doctor/appointments")),
	}
}

func (s *Service) paidMessages(a *appointments.Appointment, when string) []EmailMessage {
	return []EmailMessage{
		s.message(a.Patient, "Payment received",
			fmt.Sprintf("We received Rs. %d via %s (transaction %s). Your consultation on %s is confirmed.",
				a.TotalAmount, orDash(a.PaymentMethod), orDash(a.EsewaPaymentID), when),
			s.link("/appointments/"+a.ID.String())),
		s.message(a.Doctor, "Appointment confirmed: "+partyName(a.Patient),
			fmt.Sprintf("%s has paid for the %s on %s.", partyName(a.Patient), a.ConsultationType, when),
			s.link("/doctor/appointments")),
	}
}

func (s *Service) completedMessages(a *appointments.Appointment, _ string) []EmailMessage {
	return []EmailMessage{
		s.message(a.Patient, "Your prescription is ready",
			fmt.Sprintf("%s has completed your consultation. Download the prescription from your appointment page.", partyName(a.Doctor)),
			s.link("/appointments/"+a.ID.String())),
	}
}

func (s *Service) cancelledMessages(a *appointments.Appointment, when string) []EmailMessage {
	body := fmt.Sprintf("The %s on %s between %s and %s has been cancelled.",
		a.ConsultationType, when, partyName(a.Doctor), partyName(a.Patient))
	return []EmailMessage{
		s.message(a.Patient, "Appointment cancelled", body, s.link("/appointments")),
		s.message(a.Doctor, "Appointment cancelled", body, s.link("/doctor/appointments")),
	}
}

func (s *Service) message(to *appointments.Party, subject, body, link string) EmailMessage {
	if to == nil {
		return EmailMessage{}
	}
	text := body
	if link != "" {
		text += "\n\n" + link
	}
	htmlBody := fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px;">
<p>Hello %s,</p>
<p>%s</p>
<p><a href="%s">Open DocSathi</a></p>
</div>`, html.EscapeString(to.Name), html.EscapeString(body), html.EscapeString(link))
	return EmailMessage{To: to.Email, ToName: to.Name, Subject: subject, Body: text, HTML: htmlBody}
}

func (s *Service) zoneFor(ctx context.Context, a *appointments.Appointment) *time.Location {
	if s.doctors == nil {
		return s.location
	}
	d, err := s.doctors.GetDoctor(ctx, a.DoctorID)
	if err != nil || d.Timezone == "" {
		return s.location
	}
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		s.logger.Warn("notify: unknown doctor timezone", "doctor_id", a.DoctorID, "timezone", d.Timezone)
		return s.location
	}
	return loc
}

func (s *Service) link(path string) string {
	if s.appURL == "" {
		return ""
	}
	return s.appURL + path
}

func partyName(p *appointments.Party) string {
	if p == nil || p.Name == "" {
		return "your clinician"
	}
	return p.Name
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}

var _ events.DeliveryHandler = (*Service)(nil)
