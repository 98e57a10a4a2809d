package appointments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docsathi/telehealth-api/internal/events"
)

// Repository persists appointments. Status and payment updates are
// conditional on the current row state so concurrent writers cannot skip a
// lifecycle step.
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetByTransaction(ctx context.Context, transactionUUID string) (*Appointment, error)
	List(ctx context.Context, q ListQuery) ([]*Appointment, error)
	BookedStarts(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) error
	Complete(ctx context.Context, id uuid.UUID, prescription, notes string) error
	SetTransaction(ctx context.Context, id uuid.UUID, transactionUUID string) error
	// MarkPaid returns false when the appointment was already paid.
	MarkPaid(ctx context.Context, id uuid.UUID, rec PaymentRecord) (bool, error)
	MarkPaymentFailed(ctx context.Context, id uuid.UUID) error
}

// UnitOfWork is implemented by repositories that can commit row changes
// together with the events published through pub.
type UnitOfWork interface {
	InTx(ctx context.Context, fn func(repo Repository, pub events.Publisher) error) error
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores appointments in the appointments table.
type PostgresRepository struct {
	db querier
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithQuerier(q querier) *PostgresRepository {
	return &PostgresRepository{db: q}
}

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// InTx runs fn inside one transaction. Events published through pub land in
// the outbox only if fn succeeds and the commit goes through.
func (r *PostgresRepository) InTx(ctx context.Context, fn func(repo Repository, pub events.Publisher) error) error {
	b, ok := r.db.(txBeginner)
	if !ok {
		return errors.New("appointments: querier cannot begin transactions")
	}
	tx, err := b.Begin(ctx)
	if err != nil {
		return fmt.Errorf("appointments: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := fn(&PostgresRepository{db: tx}, events.NewOutboxStoreTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("appointments: commit: %w", err)
	}
	return nil
}

const selectAppointment = `
	SELECT a.id, a.doctor_id, a.patient_id, a.slot_start, a.slot_end, a.consultation_type,
	       a.symptoms, a.status, a.consultation_fees, a.platform_fees, a.total_amount,
	       a.payment_status, a.payment_method, a.esewa_transaction_id, a.esewa_payment_id,
	       a.payment_date, a.prescription, a.notes, a.call_room_id, a.created_at, a.updated_at,
	       d.name, d.email, d.profile_image, COALESCE(dp.specialization, ''),
	       p.name, p.email, p.profile_image
	FROM appointments a
	JOIN users d ON d.id = a.doctor_id
	LEFT JOIN doctor_profiles dp ON dp.user_id = a.doctor_id
	JOIN users p ON p.id = a.patient_id`

func (r *PostgresRepository) Create(ctx context.Context, a *Appointment) error {
	query := `
		INSERT INTO appointments (
			id, doctor_id, patient_id, slot_start, slot_end, consultation_type, symptoms,
			status, consultation_fees, platform_fees, total_amount, payment_status,
			call_room_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := r.db.Exec(ctx, query, a.ID, a.DoctorID, a.PatientID, a.SlotStart, a.SlotEnd,
		string(a.ConsultationType), a.Symptoms, string(a.Status), a.ConsultationFees,
		a.PlatformFees, a.TotalAmount, string(a.PaymentStatus), a.CallRoomID, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrSlotTaken
		}
		return fmt.Errorf("appointments: insert: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.db.QueryRow(ctx, selectAppointment+` WHERE a.id = $1`, id))
}

func (r *PostgresRepository) GetByTransaction(ctx context.Context, transactionUUID string) (*Appointment, error) {
	if transactionUUID == "" {
		return nil, ErrNotFound
	}
	return scanAppointment(r.db.QueryRow(ctx, selectAppointment+` WHERE a.esewa_transaction_id = $1`, transactionUUID))
}

func (r *PostgresRepository) List(ctx context.Context, q ListQuery) ([]*Appointment, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if q.DoctorID != uuid.Nil {
		where = append(where, "a.doctor_id = "+arg(q.DoctorID))
	}
	if q.PatientID != uuid.Nil {
		where = append(where, "a.patient_id = "+arg(q.PatientID))
	}
	order := "DESC"
	switch q.Tab {
	case TabUpcoming:
		now := arg(q.Now)
		where = append(where,
			"(a.slot_start >= "+now+" OR a.status = 'In Progress')",
			"a.status IN ('Scheduled', 'In Progress')")
		order = "ASC"
	case TabPast:
		where = append(where, "(a.slot_start < "+arg(q.Now)+" OR a.status IN ('Completed', 'Cancelled'))")
	}
	query := selectAppointment
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY a.slot_start " + order + ", a.id"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: list: %w", err)
	}
	defer rows.Close()
	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: list rows: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) BookedStarts(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	query := `
		SELECT slot_start FROM appointments
		WHERE doctor_id = $1 AND status <> 'Cancelled' AND slot_start >= $2 AND slot_start < $3
		ORDER BY slot_start
	`
	rows, err := r.db.Query(ctx, query, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("appointments: booked starts: %w", err)
	}
	defer rows.Close()
	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("appointments: scan booked start: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) error {
	query := `UPDATE appointments SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`
	ct, err := r.db.Exec(ctx, query, id, string(from), string(to))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrSlotTaken
		}
		return fmt.Errorf("appointments: update status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrStaleStatus
	}
	return nil
}

func (r *PostgresRepository) Complete(ctx context.Context, id uuid.UUID, prescription, notes string) error {
	query := `
		UPDATE appointments
		SET status = 'Completed', prescription = $2, notes = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'In Progress'
	`
	ct, err := r.db.Exec(ctx, query, id, prescription, notes)
	if err != nil {
		return fmt.Errorf("appointments: complete: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrStaleStatus
	}
	return nil
}

func (r *PostgresRepository) SetTransaction(ctx context.Context, id uuid.UUID, transactionUUID string) error {
	query := `
		UPDATE appointments
		SET esewa_transaction_id = $2,
		    payment_status = CASE WHEN payment_status = 'Failed' THEN 'Pending' ELSE payment_status END,
		    updated_at = NOW()
		WHERE id = $1 AND payment_status <> 'Paid'
	`
	ct, err := r.db.Exec(ctx, query, id, transactionUUID)
	if err != nil {
		return fmt.Errorf("appointments: set transaction: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrStaleStatus
	}
	return nil
}

func (r *PostgresRepository) MarkPaid(ctx context.Context, id uuid.UUID, rec PaymentRecord) (bool, error) {
	query := `
		UPDATE appointments
		SET payment_status = 'Paid', payment_method = $2, esewa_transaction_id = $3,
		    esewa_payment_id = $4, payment_date = $5, updated_at = NOW()
		WHERE id = $1 AND payment_status <> 'Paid'
	`
	ct, err := r.db.Exec(ctx, query, id, rec.Method, rec.TransactionUUID, rec.TransactionCode, rec.PaidAt)
	if err != nil {
		return false, fmt.Errorf("appointments: mark paid: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (r *PostgresRepository) MarkPaymentFailed(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE appointments SET payment_status = 'Failed', updated_at = NOW() WHERE id = $1 AND payment_status = 'Pending'`
	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("appointments: mark payment failed: %w", err)
	}
	return nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a                      Appointment
		doctor, patient        Party
		kind, status, payState string
	)
	err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.SlotStart, &a.SlotEnd, &kind,
		&a.Symptoms, &status, &a.ConsultationFees, &a.PlatformFees, &a.TotalAmount,
		&payState, &a.PaymentMethod, &a.EsewaTransactionID, &a.EsewaPaymentID,
		&a.PaymentDate, &a.Prescription, &a.Notes, &a.CallRoomID, &a.CreatedAt, &a.UpdatedAt,
		&doctor.Name, &doctor.Email, &doctor.ProfileImage, &doctor.Specialization,
		&patient.Name, &patient.Email, &patient.ProfileImage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: scan: %w", err)
	}
	a.ConsultationType = ConsultationType(kind)
	a.Status = Status(status)
	a.PaymentStatus = PaymentStatus(payState)
	doctor.ID = a.DoctorID
	patient.ID = a.PatientID
	a.Doctor = &doctor
	a.Patient = &patient
	return &a, nil
}
