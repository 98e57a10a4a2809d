package events

import "time"

const (
	TypeAppointmentBooked     = "appointment.booked.v1"
	TypeAppointmentStatus     = "appointment.status_changed.v1"
	TypePaymentSucceeded      = "payment.succeeded.v1"
	TypePaymentFailed         = "payment.failed.v1"
	TypeConsultationCompleted = "consultation.completed.v1"
)

// AppointmentBookedV1 is emitted once a patient reserves a slot.
type AppointmentBookedV1 struct {
	AppointmentID    string    `json:"appointment_id"`
	DoctorID         string    `json:"doctor_id"`
	PatientID        string    `json:"patient_id"`
	SlotStart        time.Time `json:"slot_start"`
	ConsultationType string    `json:"consultation_type"`
	TotalAmount      int64     `json:"total_amount"`
	BookedAt         time.Time `json:"booked_at"`
}

func (AppointmentBookedV1) EventType() string { return TypeAppointmentBooked }

type AppointmentStatusChangedV1 struct {
	AppointmentID string    `json:"appointment_id"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	ChangedBy     string    `json:"changed_by"`
	ChangedAt     time.Time `json:"changed_at"`
}

func (AppointmentStatusChangedV1) EventType() string { return TypeAppointmentStatus }

// PaymentSucceededV1 records a verified eSewa payment.
type PaymentSucceededV1 struct {
	AppointmentID   string    `json:"appointment_id"`
	PatientID       string    `json:"patient_id"`
	DoctorID        string    `json:"doctor_id"`
	Provider        string    `json:"provider"`
	TransactionUUID string    `json:"transaction_uuid"`
	TransactionCode string    `json:"transaction_code"`
	Amount          int64     `json:"amount"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func (PaymentSucceededV1) EventType() string { return TypePaymentSucceeded }

type PaymentFailedV1 struct {
	AppointmentID   string    `json:"appointment_id"`
	PatientID       string    `json:"patient_id"`
	Provider        string    `json:"provider"`
	TransactionUUID string    `json:"transaction_uuid"`
	FailureStatus   string    `json:"failure_status,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func (PaymentFailedV1) EventType() string { return TypePaymentFailed }

type ConsultationCompletedV1 struct {
	AppointmentID string    `json:"appointment_id"`
	DoctorID      string    `json:"doctor_id"`
	PatientID     string    `json:"patient_id"`
	CompletedAt   time.Time `json:"completed_at"`
}

func (ConsultationCompletedV1) EventType() string { return TypeConsultationCompleted }
