package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository stores role-specific profile documents.
type Repository interface {
	GetDoctor(ctx context.Context, userID uuid.UUID) (*DoctorProfile, error)
	UpsertDoctor(ctx context.Context, profile *DoctorProfile) error
	ListDoctors(ctx context.Context, filter DoctorFilter) ([]*DoctorProfile, int, error)
	GetPatient(ctx context.Context, userID uuid.UUID) (*PatientProfile, error)
	UpsertPatient(ctx context.Context, profile *PatientProfile) error
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository reads and writes doctor_profiles / patient_profiles
// joined with users.
type PostgresRepository struct {
	db querier
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("profiles: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithQuerier(q querier) *PostgresRepository {
	return &PostgresRepository{db: q}
}

const doctorSelect = `
	SELECT u.id, u.name, u.email, u.profile_image,
		dp.specialization, dp.categories, dp.qualification, dp.experience_years, dp.about, dp.fees,
		dp.hospital_info, dp.availability_range, dp.daily_time_ranges, dp.slot_duration_minutes,
		dp.timezone, dp.is_verified, dp.created_at, dp.updated_at
	FROM users u
	JOIN doctor_profiles dp ON dp.user_id = u.id
`

func (r *PostgresRepository) GetDoctor(ctx context.Context, userID uuid.UUID) (*DoctorProfile, error) {
	row := r.db.QueryRow(ctx, doctorSelect+` WHERE u.id = $1`, userID)
	d, err := scanDoctor(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("profiles: get doctor: %w", err)
	}
	return d, nil
}

func (r *PostgresRepository) UpsertDoctor(ctx context.Context, p *DoctorProfile) error {
	hospital, err := json.Marshal(p.HospitalInfo)
	if err != nil {
		return fmt.Errorf("profiles: marshal hospital info: %w", err)
	}
	rng, err := json.Marshal(p.AvailabilityRange)
	if err != nil {
		return fmt.Errorf("profiles: marshal availability range: %w", err)
	}
	ranges, err := json.Marshal(p.DailyTimeRanges)
	if err != nil {
		return fmt.Errorf("profiles: marshal daily ranges: %w", err)
	}
	query := `
		INSERT INTO doctor_profiles (
			user_id, specialization, categories, qualification, experience_years, about, fees,
			hospital_info, availability_range, daily_time_ranges, slot_duration_minutes, timezone,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		ON CONFLICT (user_id) DO UPDATE SET
			specialization = EXCLUDED.specialization,
			categories = EXCLUDED.categories,
			qualification = EXCLUDED.qualification,
			experience_years = EXCLUDED.experience_years,
			about = EXCLUDED.about,
			fees = EXCLUDED.fees,
			hospital_info = EXCLUDED.hospital_info,
			availability_range = EXCLUDED.availability_range,
			daily_time_ranges = EXCLUDED.daily_time_ranges,
			slot_duration_minutes = EXCLUDED.slot_duration_minutes,
			timezone = EXCLUDED.timezone,
			updated_at = EXCLUDED.updated_at
	`
	_, err = r.db.Exec(ctx, query, p.UserID, p.Specialization, p.Categories, p.Qualification,
		p.Experience, p.About, p.Fees, hospital, rng, ranges, p.SlotDurationMinutes, p.Timezone, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("profiles: upsert doctor: %w", err)
	}
	return nil
}

var sortSQL = map[string]string{
	"experience": "dp.experience_years",
	"fees":       "dp.fees",
	"name":       "LOWER(u.name)",
	"createdAt":  "dp.created_at",
}

func (r *PostgresRepository) ListDoctors(ctx context.Context, filter DoctorFilter) ([]*DoctorProfile, int, error) {
	f := filter.Normalize()
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		where = append(where, fmt.Sprintf("(u.name ILIKE %s OR dp.specialization ILIKE %s)", p, p))
	}
	if f.Specialization != "" {
		where = append(where, "LOWER(dp.specialization) = LOWER("+arg(f.Specialization)+")")
	}
	if f.Category != "" {
		where = append(where, "EXISTS (SELECT 1 FROM unnest(dp.categories) c WHERE LOWER(c) = LOWER("+arg(f.Category)+"))")
	}
	if f.City != "" {
		where = append(where, "LOWER(dp.hospital_info->>'city') = LOWER("+arg(f.City)+")")
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM users u JOIN doctor_profiles dp ON dp.user_id = u.id` + clause
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("profiles: count doctors: %w", err)
	}

	order := fmt.Sprintf(" ORDER BY %s %s, u.id", sortSQL[f.SortBy], strings.ToUpper(f.SortOrder))
	limit := " LIMIT " + arg(f.Limit) + " OFFSET " + arg(f.Offset())
	rows, err := r.db.Query(ctx, doctorSelect+clause+order+limit, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("profiles: list doctors: %w", err)
	}
	defer rows.Close()

	doctors := make([]*DoctorProfile, 0, f.Limit)
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("profiles: scan doctor: %w", err)
		}
		doctors = append(doctors, d)
	}
	return doctors, total, rows.Err()
}

func scanDoctor(row pgx.Row) (*DoctorProfile, error) {
	var d DoctorProfile
	var hospital, rng, ranges []byte
	if err := row.Scan(&d.UserID, &d.Name, &d.Email, &d.ProfileImage,
		&d.Specialization, &d.Categories, &d.Qualification, &d.Experience, &d.About, &d.Fees,
		&hospital, &rng, &ranges, &d.SlotDurationMinutes,
		&d.Timezone, &d.IsVerified, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(hospital, &d.HospitalInfo); err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(rng, &d.AvailabilityRange); err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(ranges, &d.DailyTimeRanges); err != nil {
		return nil, err
	}
	d.Onboarded = true
	return &d, nil
}

func unmarshalJSONB(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("profiles: decode jsonb: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetPatient(ctx context.Context, userID uuid.UUID) (*PatientProfile, error) {
	query := `
		SELECT u.id, u.name, u.email, u.profile_image,
			pp.phone, pp.date_of_birth, pp.gender, pp.blood_group,
			pp.emergency_contact, pp.medical_history, pp.created_at, pp.updated_at
		FROM users u
		JOIN patient_profiles pp ON pp.user_id = u.id
		WHERE u.id = $1
	`
	var p PatientProfile
	var dob *time.Time
	var contact, history []byte
	err := r.db.QueryRow(ctx, query, userID).Scan(&p.UserID, &p.Name, &p.Email, &p.ProfileImage,
		&p.Phone, &dob, &p.Gender, &p.BloodGroup, &contact, &history, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("profiles: get patient: %w", err)
	}
	if dob != nil {
		p.DateOfBirth = dob.Format("2006-01-02")
	}
	if err := unmarshalJSONB(contact, &p.EmergencyContact); err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(history, &p.MedicalHistory); err != nil {
		return nil, err
	}
	p.Onboarded = true
	return &p, nil
}

func (r *PostgresRepository) UpsertPatient(ctx context.Context, p *PatientProfile) error {
	contact, err := json.Marshal(p.EmergencyContact)
	if err != nil {
		return fmt.Errorf("profiles: marshal emergency contact: %w", err)
	}
	history, err := json.Marshal(p.MedicalHistory)
	if err != nil {
		return fmt.Errorf("profiles: marshal medical history: %w", err)
	}
	var dob *time.Time
	if p.DateOfBirth != "" {
		parsed, err := time.Parse("2006-01-02", p.DateOfBirth)
		if err != nil {
			return fmt.Errorf("profiles: parse dob: %w", err)
		}
		dob = &parsed
	}
	query := `
		INSERT INTO patient_profiles (
			user_id, phone, date_of_birth, gender, blood_group, emergency_contact, medical_history,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			phone = EXCLUDED.phone,
			date_of_birth = EXCLUDED.date_of_birth,
			gender = EXCLUDED.gender,
			blood_group = EXCLUDED.blood_group,
			emergency_contact = EXCLUDED.emergency_contact,
			medical_history = EXCLUDED.medical_history,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.Exec(ctx, query, p.UserID, p.Phone, dob, p.Gender, p.BloodGroup, contact, history, p.UpdatedAt); err != nil {
		return fmt.Errorf("profiles: upsert patient: %w", err)
	}
	return nil
}
