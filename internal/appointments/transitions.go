package appointments

import (
	"time"

	"github.com/docsathi/telehealth-api/internal/identity"
)

const (
	JoinEarly          = 15 * time.Minute
	JoinLate           = 120 * time.Minute
	PatientCancelLimit = 2 * time.Hour
)

var allowedTransitions = map[Status][]Status{
	StatusScheduled:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// CanTransition reports whether from -> to is in the lifecycle table.
func CanTransition(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// InJoinWindow reports whether now is between 15 minutes before and 120
// minutes after the slot start.
func InJoinWindow(slotStart, now time.Time) bool {
	return !now.Before(slotStart.Add(-JoinEarly)) && !now.After(slotStart.Add(JoinLate))
}

// checkTransition applies the table plus the role rules for cancellation.
// Completion always goes through Complete so a prescription is captured.
func checkTransition(p identity.Principal, a *Appointment, to Status, now time.Time) error {
	if !CanTransition(a.Status, to) {
		return ErrInvalidTransition
	}
	switch to {
	case StatusCompleted:
		return ErrPrescriptionRequired
	case StatusInProgress:
		if !InJoinWindow(a.SlotStart, now) {
			return ErrOutsideJoinWindow
		}
		if a.PaymentStatus != PaymentPaid {
			return ErrPaymentRequired
		}
	case StatusCancelled:
		if a.Status != StatusScheduled {
			if !p.IsDoctor() {
				return ErrWrongRole
			}
			return nil
		}
		if p.IsDoctor() && now.Before(a.SlotStart) {
			return ErrCancelTooEarly
		}
		if p.IsPatient() && now.After(a.SlotStart.Add(-PatientCancelLimit)) {
			return ErrCancelTooLate
		}
	}
	return nil
}
