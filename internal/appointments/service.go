package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/docsathi/telehealth-api/internal/availability"
	"github.com/docsathi/telehealth-api/internal/events"
	"github.com/docsathi/telehealth-api/internal/identity"
	"github.com/docsathi/telehealth-api/internal/observability/metrics"
	"github.com/docsathi/telehealth-api/internal/profiles"
	"github.com/docsathi/telehealth-api/internal/realtime"
	"github.com/docsathi/telehealth-api/pkg/logging"
)

var appointmentsTracer = otel.Tracer("telehealth.internal.appointments")

// defaultDatesWindow is how far ahead AvailableDates looks without a "to".
const defaultDatesWindow = 30

// Doctors loads a doctor's public profile and availability template.
type Doctors interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*profiles.DoctorProfile, error)
}

// Broadcaster pushes live status changes to watchers.
type Broadcaster interface {
	Publish(u realtime.Update)
}

// DaySlots is the slot grid for one calendar date.
type DaySlots struct {
	DoctorID uuid.UUID           `json:"doctorId"`
	Date     string              `json:"date"`
	Timezone string              `json:"timezone"`
	Slots    []availability.Slot `json:"slots"`
}

// Service implements booking and the appointment lifecycle.
type Service struct {
	repo       Repository
	doctors    Doctors
	lock       *SlotLock
	events     events.Publisher
	live       Broadcaster
	metrics    *metrics.ClinicMetrics
	feePercent int
	now        func() time.Time
	logger     *logging.Logger
}

func NewService(repo Repository, doctors Doctors, logger *logging.Logger) *Service {
	if repo == nil || doctors == nil {
		panic("appointments: repository and doctors required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:       repo,
		doctors:    doctors,
		feePercent: DefaultPlatformFeePercent,
		now:        time.Now,
		logger:     logger,
	}
}

func (s *Service) WithSlotLock(lock *SlotLock) *Service {
	s.lock = lock
	return s
}

// WithEvents enables domain events. With a transactional repository they
// are written through its own transaction instead of pub.
func (s *Service) WithEvents(pub events.Publisher) *Service {
	s.events = pub
	return s
}

func (s *Service) WithBroadcaster(b Broadcaster) *Service {
	s.live = b
	return s
}

func (s *Service) WithMetrics(m *metrics.ClinicMetrics) *Service {
	s.metrics = m
	return s
}

// WithPlatformFeePercent overrides the default 10% platform fee.
func (s *Service) WithPlatformFeePercent(pct int) *Service {
	if pct >= 0 {
		s.feePercent = pct
	}
	return s
}

func (s *Service) doctorConfig(ctx context.Context, doctorID uuid.UUID) (*profiles.DoctorProfile, availability.Config, error) {
	d, err := s.doctors.GetDoctor(ctx, doctorID)
	if err != nil {
		if errors.Is(err, profiles.ErrNotFound) {
			return nil, availability.Config{}, ErrNotFound
		}
		return nil, availability.Config{}, err
	}
	cfg, err := d.AvailabilityConfig()
	if err != nil {
		return nil, availability.Config{}, fmt.Errorf("%w: %v", ErrDoctorUnavailable, err)
	}
	return d, cfg, nil
}

// AvailableSlots returns the slot grid for a doctor on date (YYYY-MM-DD in
// the doctor's timezone).
func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date string) (*DaySlots, error) {
	d, cfg, err := s.doctorConfig(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	day, err := availability.ParseDate(date, cfg.Location)
	if err != nil {
		return nil, ErrInvalidDate
	}
	booked, err := s.repo.BookedStarts(ctx, doctorID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	started := time.Now()
	slots, err := availability.Calculate(cfg, day, booked, s.now())
	s.metrics.ObserveSlotCalculation(time.Since(started).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDoctorUnavailable, err)
	}
	return &DaySlots{DoctorID: doctorID, Date: day.Format(availability.DateLayout), Timezone: d.Timezone, Slots: slots}, nil
}

// AvailableDates lists bookable dates between from and to. Empty from means
// today; empty to means 30 days after from.
func (s *Service) AvailableDates(ctx context.Context, doctorID uuid.UUID, from, to string) ([]string, error) {
	_, cfg, err := s.doctorConfig(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	start := s.now().In(cfg.Location)
	if from != "" {
		if start, err = availability.ParseDate(from, cfg.Location); err != nil {
			return nil, ErrInvalidDate
		}
	}
	end := start.AddDate(0, 0, defaultDatesWindow)
	if to != "" {
		if end, err = availability.ParseDate(to, cfg.Location); err != nil {
			return nil, ErrInvalidDate
		}
	}
	return availability.AvailableDates(cfg, start, end)
}

// BookedSlots lists the starts of live appointments in [from, to).
func (s *Service) BookedSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	if !to.After(from) {
		return []time.Time{}, nil
	}
	return s.repo.BookedStarts(ctx, doctorID, from, to)
}

// Quote prices a consultation type for a doctor.
func (s *Service) Quote(ctx context.Context, doctorID uuid.UUID, kind ConsultationType) (Quote, error) {
	d, err := s.doctors.GetDoctor(ctx, doctorID)
	if err != nil {
		if errors.Is(err, profiles.ErrNotFound) {
			return Quote{}, ErrNotFound
		}
		return Quote{}, err
	}
	return Price(d.Fees, kind, s.feePercent)
}

// Book reserves a slot for the calling patient.
func (s *Service) Book(ctx context.Context, p identity.Principal, req BookRequest) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("telehealth.doctor_id", req.DoctorID.String()),
		attribute.String("telehealth.slot_start", req.SlotStart.UTC().Format(time.RFC3339)),
	)

	if !p.IsPatient() {
		return nil, ErrWrongRole
	}
	d, cfg, err := s.doctorConfig(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	quote, err := Price(d.Fees, req.ConsultationType, s.feePercent)
	if err != nil {
		return nil, err
	}

	release, err := s.lock.Acquire(ctx, req.DoctorID, req.SlotStart)
	if err != nil {
		if errors.Is(err, ErrSlotTaken) {
			s.metrics.ObserveBooking("conflict")
			return nil, err
		}
		// Redis trouble should not block bookings; the unique index still holds.
		s.logger.Warn("slot hold unavailable", "error", err, "doctor_id", req.DoctorID)
		release = func() {}
	}
	defer release()

	day := req.SlotStart.In(cfg.Location)
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, cfg.Location)
	booked, err := s.repo.BookedStarts(ctx, req.DoctorID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	for _, b := range booked {
		if b.Equal(req.SlotStart) {
			s.metrics.ObserveBooking("conflict")
			return nil, ErrSlotTaken
		}
	}
	now := s.now()
	ok, err := availability.Contains(cfg, req.SlotStart, booked, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDoctorUnavailable, err)
	}
	if !ok {
		s.metrics.ObserveBooking("unavailable")
		return nil, ErrSlotUnavailable
	}

	ts := now.UTC()
	a := &Appointment{
		ID:               uuid.New(),
		DoctorID:         req.DoctorID,
		PatientID:        p.UserID,
		SlotStart:        req.SlotStart.UTC(),
		SlotEnd:          req.SlotStart.Add(cfg.SlotDuration).UTC(),
		ConsultationType: req.ConsultationType,
		Symptoms:         req.Symptoms,
		Status:           StatusScheduled,
		ConsultationFees: quote.ConsultationFees,
		PlatformFees:     quote.PlatformFees,
		TotalAmount:      quote.TotalAmount,
		PaymentStatus:    PaymentPending,
		CallRoomID:       "room_" + uuid.NewString(),
		CreatedAt:        ts,
		UpdatedAt:        ts,
	}
	err = s.write(ctx, func(repo Repository, pub events.Publisher) error {
		if err := repo.Create(ctx, a); err != nil {
			return err
		}
		return emit(ctx, pub, a.ID, events.AppointmentBookedV1{
			AppointmentID:    a.ID.String(),
			DoctorID:         a.DoctorID.String(),
			PatientID:        a.PatientID.String(),
			SlotStart:        a.SlotStart,
			ConsultationType: string(a.ConsultationType),
			TotalAmount:      a.TotalAmount,
			BookedAt:         ts,
		})
	})
	if err != nil {
		if errors.Is(err, ErrSlotTaken) {
			s.metrics.ObserveBooking("conflict")
			return nil, err
		}
		span.RecordError(err)
		s.metrics.ObserveBooking("error")
		return nil, err
	}
	a.Doctor = &Party{ID: d.UserID, Name: d.Name, ProfileImage: d.ProfileImage, Specialization: d.Specialization}
	a.Patient = &Party{ID: p.UserID, Name: p.Name}
	s.metrics.ObserveBooking("booked")
	s.logger.Info("appointment booked", "appointment_id", a.ID, "doctor_id", a.DoctorID, "slot_start", a.SlotStart)
	return a, nil
}

// List returns the caller's appointments for a tab.
func (s *Service) List(ctx context.Context, p identity.Principal, tab Tab) ([]*Appointment, error) {
	q := ListQuery{Tab: tab, Now: s.now().UTC()}
	switch p.Role {
	case identity.RoleDoctor:
		q.DoctorID = p.UserID
	case identity.RolePatient:
		q.PatientID = p.UserID
	default:
		return nil, ErrWrongRole
	}
	list, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*Appointment{}
	}
	return list, nil
}

// Get returns an appointment visible to its doctor or patient only.
func (s *Service) Get(ctx context.Context, p identity.Principal, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.IsParticipant(p.UserID) {
		return nil, ErrForbidden
	}
	return a, nil
}

// UpdateStatus moves an appointment along the lifecycle table.
func (s *Service) UpdateStatus(ctx context.Context, p identity.Principal, id uuid.UUID, to Status) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.update_status")
	defer span.End()
	span.SetAttributes(attribute.String("telehealth.appointment_id", id.String()), attribute.String("telehealth.to", string(to)))

	a, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(p, a, to, s.now()); err != nil {
		return nil, err
	}
	return s.transition(ctx, p, a, to)
}

// Join starts the consultation. Calling it again while the call is running
// is a no-op.
func (s *Service) Join(ctx context.Context, p identity.Principal, id uuid.UUID) (*Appointment, error) {
	a, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	switch a.Status {
	case StatusInProgress:
		if !InJoinWindow(a.SlotStart, now) {
			return nil, ErrOutsideJoinWindow
		}
		return a, nil
	case StatusScheduled:
		if err := checkTransition(p, a, StatusInProgress, now); err != nil {
			return nil, err
		}
		return s.transition(ctx, p, a, StatusInProgress)
	default:
		return nil, ErrInvalidTransition
	}
}

func (s *Service) transition(ctx context.Context, p identity.Principal, a *Appointment, to Status) (*Appointment, error) {
	from := a.Status
	changedAt := s.now().UTC()
	err := s.write(ctx, func(repo Repository, pub events.Publisher) error {
		if err := repo.UpdateStatus(ctx, a.ID, from, to); err != nil {
			return err
		}
		return emit(ctx, pub, a.ID, events.AppointmentStatusChangedV1{
			AppointmentID: a.ID.String(),
			From:          string(from),
			To:            string(to),
			ChangedBy:     string(p.Role),
			ChangedAt:     changedAt,
		})
	})
	if err != nil {
		return nil, err
	}
	a.Status = to
	a.UpdatedAt = changedAt
	s.metrics.ObserveTransition(string(from), string(to))
	s.Broadcast(a)
	s.logger.Info("appointment status changed", "appointment_id", a.ID, "from", from, "to", to, "by", p.Role)
	return a, nil
}

// Complete closes an in-progress consultation with the doctor's prescription.
func (s *Service) Complete(ctx context.Context, p identity.Principal, id uuid.UUID, req CompleteRequest) (*Appointment, error) {
	if !p.IsDoctor() {
		return nil, ErrWrongRole
	}
	a, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if a.DoctorID != p.UserID {
		return nil, ErrForbidden
	}
	if req.Prescription == "" {
		return nil, ErrPrescriptionRequired
	}
	if a.Status != StatusInProgress {
		return nil, ErrInvalidTransition
	}
	now := s.now().UTC()
	err = s.write(ctx, func(repo Repository, pub events.Publisher) error {
		if err := repo.Complete(ctx, a.ID, req.Prescription, req.Notes); err != nil {
			return err
		}
		return emit(ctx, pub, a.ID, events.ConsultationCompletedV1{
			AppointmentID: a.ID.String(),
			DoctorID:      a.DoctorID.String(),
			PatientID:     a.PatientID.String(),
			CompletedAt:   now,
		})
	})
	if err != nil {
		return nil, err
	}
	a.Status = StatusCompleted
	a.Prescription = req.Prescription
	a.Notes = req.Notes
	a.UpdatedAt = now
	s.metrics.ObserveTransition(string(StatusInProgress), string(StatusCompleted))
	s.Broadcast(a)
	return a, nil
}

// PrescriptionPDF renders the prescription of a completed appointment.
func (s *Service) PrescriptionPDF(ctx context.Context, p identity.Principal, id uuid.UUID) ([]byte, string, error) {
	a, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, "", err
	}
	if a.Status != StatusCompleted || a.Prescription == "" {
		return nil, "", ErrNotCompleted
	}
	doc := PrescriptionDoc{
		AppointmentID:    a.ID.String(),
		DoctorName:       "Doctor",
		PatientName:      "Patient",
		ConsultationType: a.ConsultationType,
		SlotStart:        a.SlotStart,
		Symptoms:         a.Symptoms,
		Prescription:     a.Prescription,
		Notes:            a.Notes,
		IssuedAt:         s.now().UTC(),
	}
	if d, err := s.doctors.GetDoctor(ctx, a.DoctorID); err == nil {
		doc.DoctorName = d.Name
		doc.Specialization = d.Specialization
		doc.Hospital = d.HospitalInfo.Name
		if d.HospitalInfo.City != "" {
			doc.Hospital += ", " + d.HospitalInfo.City
		}
		if loc, err := time.LoadLocation(d.Timezone); err == nil {
			doc.SlotStart = a.SlotStart.In(loc)
		}
	}
	if a.Doctor != nil && a.Doctor.Name != "" {
		doc.DoctorName = a.Doctor.Name
	}
	if a.Patient != nil && a.Patient.Name != "" {
		doc.PatientName = a.Patient.Name
	}
	out, err := RenderPrescription(doc)
	if err != nil {
		return nil, "", err
	}
	return out, fmt.Sprintf("prescription-%s.pdf", a.ID), nil
}

// CanWatch lets participants subscribe to live updates.
func (s *Service) CanWatch(ctx context.Context, p identity.Principal, id uuid.UUID) (realtime.Update, error) {
	a, err := s.Get(ctx, p, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) {
			return realtime.Update{}, realtime.ErrNoAccess
		}
		return realtime.Update{}, err
	}
	return snapshot(a), nil
}

// Broadcast pushes the appointment's current state to live watchers.
func (s *Service) Broadcast(a *Appointment) {
	if s.live == nil || a == nil {
		return
	}
	u := snapshot(a)
	u.Type = realtime.TypeUpdate
	s.live.Publish(u)
}

func snapshot(a *Appointment) realtime.Update {
	return realtime.Update{
		AppointmentID: a.ID,
		Status:        string(a.Status),
		PaymentStatus: string(a.PaymentStatus),
		At:            a.UpdatedAt,
	}
}

// write runs fn against the repository. A transactional repository commits
// the row change and its outbox events together; otherwise events go to the
// configured publisher and a publish failure is only logged.
func (s *Service) write(ctx context.Context, fn func(repo Repository, pub events.Publisher) error) error {
	if uow, ok := s.repo.(UnitOfWork); ok && s.events != nil {
		return uow.InTx(ctx, fn)
	}
	return fn(s.repo, loggedPublisher{pub: s.events, logger: s.logger})
}

func emit(ctx context.Context, pub events.Publisher, id uuid.UUID, evt events.CanonicalEvent) error {
	return pub.Publish(ctx, events.AppointmentAggregate(id.String()), evt)
}

type loggedPublisher struct {
	pub    events.Publisher
	logger *logging.Logger
}

func (l loggedPublisher) Publish(ctx context.Context, aggregate string, evt events.CanonicalEvent) error {
	if l.pub == nil {
		return nil
	}
	if err := l.pub.Publish(ctx, aggregate, evt); err != nil {
		l.logger.Error("appointment event publish failed", "error", err, "aggregate", aggregate, "type", evt.EventType())
	}
	return nil
}
