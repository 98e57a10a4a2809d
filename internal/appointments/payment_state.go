package appointments

import (
	"context"

	"github.com/google/uuid"

	"github.com/docsathi/telehealth-api/internal/events"
)

// AttachTransaction records the gateway transaction id for a pending order.
func (s *Service) AttachTransaction(ctx context.Context, id uuid.UUID, transactionUUID string) error {
	return s.repo.SetTransaction(ctx, id, transactionUUID)
}

// FindByTransaction resolves a gateway transaction id to its appointment.
func (s *Service) FindByTransaction(ctx context.Context, transactionUUID string) (*Appointment, error) {
	return s.repo.GetByTransaction(ctx, transactionUUID)
}

// RecordPayment marks the appointment paid and emits PaymentSucceededV1 in
// the same write. changed is false when it was already paid, so replays
// produce no event.
func (s *Service) RecordPayment(ctx context.Context, id uuid.UUID, rec PaymentRecord) (a *Appointment, changed bool, err error) {
	err = s.write(ctx, func(repo Repository, pub events.Publisher) error {
		ok, err := repo.MarkPaid(ctx, id, rec)
		if err != nil {
			return err
		}
		changed = ok
		if a, err = repo.Get(ctx, id); err != nil {
			return err
		}
		if !changed {
			return nil
		}
		return emit(ctx, pub, id, events.PaymentSucceededV1{
			AppointmentID:   id.String(),
			PatientID:       a.PatientID.String(),
			DoctorID:        a.DoctorID.String(),
			Provider:        rec.Method,
			TransactionUUID: rec.TransactionUUID,
			TransactionCode: rec.TransactionCode,
			Amount:          a.TotalAmount,
			OccurredAt:      rec.PaidAt,
		})
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		s.Broadcast(a)
		s.logger.Info("appointment paid", "appointment_id", id, "transaction_uuid", rec.TransactionUUID)
	}
	return a, changed, nil
}

// RecordPaymentFailure flags a pending payment as failed. rec carries the
// provider and transaction that failed.
func (s *Service) RecordPaymentFailure(ctx context.Context, id uuid.UUID, rec PaymentRecord) (*Appointment, error) {
	var a *Appointment
	err := s.write(ctx, func(repo Repository, pub events.Publisher) error {
		if err := repo.MarkPaymentFailed(ctx, id); err != nil {
			return err
		}
		var err error
		if a, err = repo.Get(ctx, id); err != nil {
			return err
		}
		return emit(ctx, pub, id, events.PaymentFailedV1{
			AppointmentID:   id.String(),
			PatientID:       a.PatientID.String(),
			Provider:        rec.Method,
			TransactionUUID: rec.TransactionUUID,
			FailureStatus:   "FAILED",
			OccurredAt:      s.now().UTC(),
		})
	})
	if err != nil {
		return nil, err
	}
	s.Broadcast(a)
	return a, nil
}
