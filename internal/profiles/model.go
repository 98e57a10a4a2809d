package profiles

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docsathi/telehealth-api/internal/availability"
)

var (
	ErrNotFound       = errors.New("profiles: not found")
	ErrWrongRole      = errors.New("profiles: operation not allowed for this role")
	ErrInvalidConfig  = errors.New("profiles: invalid availability")
	ErrInvalidProfile = errors.New("profiles: invalid profile")
	ErrImageType      = errors.New("profiles: unsupported image type")
	ErrImageTooLarge  = errors.New("profiles: image too large")
	ErrNoImageStore   = errors.New("profiles: image storage not configured")
)

// DefaultSlotMinutes applies when a doctor has not picked a slot duration.
const DefaultSlotMinutes = 30

// DefaultDailyRanges are offered to doctors who have not configured hours yet.
var DefaultDailyRanges = []availability.TimeRange{
	{Start: "09:00", End: "12:00"},
	{Start: "14:00", End: "17:00"},
}

type HospitalInfo struct {
	Name    string `json:"name" validate:"required,max=200"`
	Address string `json:"address" validate:"max=300"`
	City    string `json:"city" validate:"required,max=100"`
}

// AvailabilityRange bounds the bookable calendar. Dates are YYYY-MM-DD in the
// doctor's timezone; ExcludedWeekdays uses 0 for Sunday.
type AvailabilityRange struct {
	StartDate        string `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate          string `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
	ExcludedWeekdays []int  `json:"excludedWeekdays" validate:"max=6,dive,weekday"`
}

// DoctorProfile is the public doctor card plus availability template.
type DoctorProfile struct {
	UserID              uuid.UUID                `json:"id"`
	Name                string                   `json:"name"`
	Email               string                   `json:"email"`
	ProfileImage        string                   `json:"profileImage,omitempty"`
	Specialization      string                   `json:"specialization"`
	Categories          []string                 `json:"categories"`
	Qualification       string                   `json:"qualification"`
	Experience          int                      `json:"experience"`
	About               string                   `json:"about"`
	Fees                int64                    `json:"fees"`
	HospitalInfo        HospitalInfo             `json:"hospitalInfo"`
	AvailabilityRange   AvailabilityRange        `json:"availabilityRange"`
	DailyTimeRanges     []availability.TimeRange `json:"dailyTimeRanges"`
	SlotDurationMinutes int                      `json:"slotDurationMinutes"`
	Timezone            string                   `json:"timezone"`
	IsVerified          bool                     `json:"isVerified"`
	Onboarded           bool                     `json:"onboarded"`
	CreatedAt           time.Time                `json:"createdAt"`
	UpdatedAt           time.Time                `json:"updatedAt"`
}

// AvailabilityConfig converts the stored template for the slot calculator.
func (d *DoctorProfile) AvailabilityConfig() (availability.Config, error) {
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return availability.Config{}, fmt.Errorf("%w: timezone %q", ErrInvalidConfig, d.Timezone)
	}
	cfg := availability.Config{
		ExcludedWeekdays: d.AvailabilityRange.ExcludedWeekdays,
		DailyTimeRanges:  d.DailyTimeRanges,
		SlotDuration:     time.Duration(d.SlotDurationMinutes) * time.Minute,
		Location:         loc,
	}
	if s := strings.TrimSpace(d.AvailabilityRange.StartDate); s != "" {
		if cfg.StartDate, err = availability.ParseDate(s, loc); err != nil {
			return availability.Config{}, fmt.Errorf("%w: start date %q", ErrInvalidConfig, s)
		}
	}
	if s := strings.TrimSpace(d.AvailabilityRange.EndDate); s != "" {
		if cfg.EndDate, err = availability.ParseDate(s, loc); err != nil {
			return availability.Config{}, fmt.Errorf("%w: end date %q", ErrInvalidConfig, s)
		}
	}
	if err := cfg.Validate(); err != nil {
		return availability.Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

type UpdateDoctorRequest struct {
	Specialization      string                   `json:"specialization" validate:"required,max=100"`
	Categories          []string                 `json:"categories" validate:"max=20,dive,required,max=60"`
	Qualification       string                   `json:"qualification" validate:"required,max=200"`
	Experience          int                      `json:"experience" validate:"min=0,max=80"`
	About               string                   `json:"about" validate:"max=2000"`
	Fees                int64                    `json:"fees" validate:"min=0"`
	HospitalInfo        HospitalInfo             `json:"hospitalInfo"`
	AvailabilityRange   AvailabilityRange        `json:"availabilityRange"`
	DailyTimeRanges     []availability.TimeRange `json:"dailyTimeRanges" validate:"required,min=1,max=12,dive"`
	SlotDurationMinutes int                      `json:"slotDurationMinutes" validate:"omitempty,oneof=15 20 30 45 60"`
	Timezone            string                   `json:"timezone" validate:"omitempty,timezone"`
}

type EmergencyContact struct {
	Name         string `json:"name" validate:"max=100"`
	Phone        string `json:"phone" validate:"max=20"`
	Relationship string `json:"relationship" validate:"max=50"`
}

type MedicalHistory struct {
	Allergies          string `json:"allergies" validate:"max=1000"`
	CurrentMedications string `json:"currentMedications" validate:"max=1000"`
	ChronicConditions  string `json:"chronicConditions" validate:"max=1000"`
}

type PatientProfile struct {
	UserID           uuid.UUID        `json:"id"`
	Name             string           `json:"name"`
	Email            string           `json:"email"`
	ProfileImage     string           `json:"profileImage,omitempty"`
	Phone            string           `json:"phone"`
	DateOfBirth      string           `json:"dob,omitempty"`
	Gender           string           `json:"gender"`
	BloodGroup       string           `json:"bloodGroup"`
	EmergencyContact EmergencyContact `json:"emergencyContact"`
	MedicalHistory   MedicalHistory   `json:"medicalHistory"`
	Onboarded        bool             `json:"onboarded"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

type UpdatePatientRequest struct {
	Phone            string           `json:"phone" validate:"required,max=20"`
	DateOfBirth      string           `json:"dob" validate:"omitempty,datetime=2006-01-02"`
	Gender           string           `json:"gender" validate:"omitempty,oneof=male female other"`
	BloodGroup       string           `json:"bloodGroup" validate:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	EmergencyContact EmergencyContact `json:"emergencyContact"`
	MedicalHistory   MedicalHistory   `json:"medicalHistory"`
}

// DoctorFilter drives the public doctor directory.
type DoctorFilter struct {
	Search         string
	Specialization string
	Category       string
	City           string
	SortBy         string
	SortOrder      string
	Page           int
	Limit          int
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

var sortColumns = map[string]struct{}{
	"experience": {},
	"fees":       {},
	"name":       {},
	"createdAt":  {},
}

// Normalize fills defaults and clamps paging.
func (f DoctorFilter) Normalize() DoctorFilter {
	f.Search = strings.TrimSpace(f.Search)
	f.Specialization = strings.TrimSpace(f.Specialization)
	f.Category = strings.TrimSpace(f.Category)
	f.City = strings.TrimSpace(f.City)
	if _, ok := sortColumns[f.SortBy]; !ok {
		f.SortBy = "experience"
	}
	if f.SortOrder != "asc" {
		f.SortOrder = "desc"
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = defaultPageLimit
	}
	if f.Limit > maxPageLimit {
		f.Limit = maxPageLimit
	}
	return f
}

func (f DoctorFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// DoctorPage is one page of the directory.
type DoctorPage struct {
	Doctors    []*DoctorProfile `json:"doctors"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	TotalPages int              `json:"totalPages"`
}
