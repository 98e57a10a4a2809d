// Package appointments books consultation slots and drives the appointment
// lifecycle from Scheduled through the call to a written prescription.
package appointments

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound             = errors.New("appointments: not found")
	ErrForbidden            = errors.New("appointments: not a participant")
	ErrWrongRole            = errors.New("appointments: operation not allowed for this role")
	ErrSlotTaken            = errors.New("appointments: slot already booked")
	ErrSlotUnavailable      = errors.New("appointments: slot not available")
	ErrDoctorUnavailable    = errors.New("appointments: doctor is not accepting bookings")
	ErrInvalidType          = errors.New("appointments: unknown consultation type")
	ErrInvalidTransition    = errors.New("appointments: status transition not allowed")
	ErrCancelTooLate        = errors.New("appointments: too late to cancel")
	ErrCancelTooEarly       = errors.New("appointments: cannot mark no-show before start")
	ErrPrescriptionRequired = errors.New("appointments: prescription required")
	ErrOutsideJoinWindow    = errors.New("appointments: outside the join window")
	ErrPaymentRequired      = errors.New("appointments: payment not completed")
	ErrNotCompleted         = errors.New("appointments: consultation not completed")
	ErrStaleStatus          = errors.New("appointments: status changed concurrently")
	ErrInvalidDate          = errors.New("appointments: date must be YYYY-MM-DD")
)

type Status string

const (
	StatusScheduled  Status = "Scheduled"
	StatusInProgress Status = "In Progress"
	StatusCompleted  Status = "Completed"
	StatusCancelled  Status = "Cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "Pending"
	PaymentPaid    PaymentStatus = "Paid"
	PaymentFailed  PaymentStatus = "Failed"
)

type ConsultationType string

const (
	TypeVideo ConsultationType = "Video Consultation"
	TypeVoice ConsultationType = "Voice Call"
)

// Tab selects which slice of a user's appointments List returns.
type Tab string

const (
	TabUpcoming Tab = "upcoming"
	TabPast     Tab = "past"
	TabAll      Tab = "all"
)

// ParseTab maps a query value to a Tab, defaulting to all.
func ParseTab(v string) Tab {
	switch Tab(v) {
	case TabUpcoming, TabPast:
		return Tab(v)
	}
	return TabAll
}

// Party is the short doctor or patient card embedded in responses.
type Party struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email,omitempty"`
	ProfileImage   string    `json:"profileImage,omitempty"`
	Specialization string    `json:"specialization,omitempty"`
}

type Appointment struct {
	ID                 uuid.UUID        `json:"id"`
	DoctorID           uuid.UUID        `json:"doctorId"`
	PatientID          uuid.UUID        `json:"patientId"`
	Doctor             *Party           `json:"doctor,omitempty"`
	Patient            *Party           `json:"patient,omitempty"`
	SlotStart          time.Time        `json:"slotStartIso"`
	SlotEnd            time.Time        `json:"slotEndIso"`
	ConsultationType   ConsultationType `json:"consultationType"`
	Symptoms           string           `json:"symptoms"`
	Status             Status           `json:"status"`
	ConsultationFees   int64            `json:"consultationFees"`
	PlatformFees       int64            `json:"platformFees"`
	TotalAmount        int64            `json:"totalAmount"`
	PaymentStatus      PaymentStatus    `json:"paymentStatus"`
	PaymentMethod      string           `json:"paymentMethod,omitempty"`
	EsewaTransactionID string           `json:"esewaTransactionId,omitempty"`
	EsewaPaymentID     string           `json:"esewaPaymentId,omitempty"`
	PaymentDate        *time.Time       `json:"paymentDate,omitempty"`
	Prescription       string           `json:"prescription,omitempty"`
	Notes              string           `json:"notes,omitempty"`
	CallRoomID         string           `json:"callRoomId"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}

// IsParticipant reports whether userID is the doctor or patient.
func (a *Appointment) IsParticipant(userID uuid.UUID) bool {
	return a.DoctorID == userID || a.PatientID == userID
}

// BookRequest is the patient's booking payload.
type BookRequest struct {
	DoctorID         uuid.UUID        `json:"doctorId" validate:"required"`
	SlotStart        time.Time        `json:"slotStartIso" validate:"required"`
	ConsultationType ConsultationType `json:"consultationType" validate:"required,oneof='Video Consultation' 'Voice Call'"`
	Symptoms         string           `json:"symptoms" validate:"max=2000"`
}

type StatusRequest struct {
	Status Status `json:"status" validate:"required,oneof=Scheduled 'In Progress' Completed Cancelled"`
}

type CompleteRequest struct {
	Prescription string `json:"prescription" validate:"required,max=10000"`
	Notes        string `json:"notes" validate:"max=10000"`
}

// ListQuery scopes a listing to one participant.
type ListQuery struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Tab       Tab
	Now       time.Time
}

// PaymentRecord carries the fields written when a payment settles.
type PaymentRecord struct {
	Method          string
	TransactionUUID string
	TransactionCode string
	PaidAt          time.Time
}
