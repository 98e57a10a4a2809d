package profiles

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docsathi/telehealth-api/internal/auth"
	"github.com/docsathi/telehealth-api/internal/availability"
	"github.com/docsathi/telehealth-api/internal/identity"
	"github.com/docsathi/telehealth-api/pkg/logging"
)

// Users is the slice of the account store profiles depend on.
type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*auth.User, error)
	SetProfileImage(ctx context.Context, id uuid.UUID, url string) error
}

// Service manages doctor and patient profiles.
type Service struct {
	repo      Repository
	users     Users
	cache     *DoctorCache
	images    ImageStore
	defaultTZ string
	logger    *logging.Logger
}

func NewService(repo Repository, users Users, logger *logging.Logger) *Service {
	if repo == nil || users == nil {
		panic("profiles: repository and users required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, users: users, defaultTZ: "Asia/Kathmandu", logger: logger}
}

func (s *Service) WithCache(cache *DoctorCache) *Service {
	s.cache = cache
	return s
}

func (s *Service) WithImageStore(store ImageStore) *Service {
	s.images = store
	return s
}

func (s *Service) WithDefaultTimezone(tz string) *Service {
	if strings.TrimSpace(tz) != "" {
		s.defaultTZ = tz
	}
	return s
}

// GetProfile returns the caller's own profile for either role.
func (s *Service) GetProfile(ctx context.Context, p identity.Principal) (any, error) {
	switch p.Role {
	case identity.RoleDoctor:
		return s.GetDoctorProfile(ctx, p)
	case identity.RolePatient:
		return s.GetPatientProfile(ctx, p)
	default:
		return nil, ErrWrongRole
	}
}

// GetDoctorProfile returns the doctor's profile, or a default template when
// onboarding has not been completed.
func (s *Service) GetDoctorProfile(ctx context.Context, p identity.Principal) (*DoctorProfile, error) {
	if !p.IsDoctor() {
		return nil, ErrWrongRole
	}
	d, err := s.repo.GetDoctor(ctx, p.UserID)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, mapUserErr(err)
	}
	return s.blankDoctor(user), nil
}

func (s *Service) UpdateDoctorProfile(ctx context.Context, p identity.Principal, req UpdateDoctorRequest) (*DoctorProfile, error) {
	if !p.IsDoctor() {
		return nil, ErrWrongRole
	}
	user, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, mapUserErr(err)
	}

	now := time.Now().UTC()
	profile := &DoctorProfile{
		UserID:              user.ID,
		Name:                user.Name,
		Email:               user.Email,
		ProfileImage:        user.ProfileImage,
		Specialization:      strings.TrimSpace(req.Specialization),
		Categories:          cleanList(req.Categories),
		Qualification:       strings.TrimSpace(req.Qualification),
		Experience:          req.Experience,
		About:               strings.TrimSpace(req.About),
		Fees:                req.Fees,
		HospitalInfo:        req.HospitalInfo,
		AvailabilityRange:   req.AvailabilityRange,
		DailyTimeRanges:     req.DailyTimeRanges,
		SlotDurationMinutes: req.SlotDurationMinutes,
		Timezone:            strings.TrimSpace(req.Timezone),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if profile.SlotDurationMinutes == 0 {
		profile.SlotDurationMinutes = DefaultSlotMinutes
	}
	if profile.Timezone == "" {
		profile.Timezone = s.defaultTZ
	}
	if profile.AvailabilityRange.ExcludedWeekdays == nil {
		profile.AvailabilityRange.ExcludedWeekdays = []int{}
	}
	if _, err := profile.AvailabilityConfig(); err != nil {
		return nil, err
	}

	if err := s.repo.UpsertDoctor(ctx, profile); err != nil {
		return nil, err
	}
	if err := s.cache.Invalidate(ctx, profile.UserID); err != nil {
		s.logger.Warn("doctor cache invalidate failed", "error", err, "doctor_id", profile.UserID)
	}
	s.logger.Info("doctor profile updated", "doctor_id", profile.UserID)
	return s.repo.GetDoctor(ctx, profile.UserID)
}

func (s *Service) GetPatientProfile(ctx context.Context, p identity.Principal) (*PatientProfile, error) {
	if !p.IsPatient() {
		return nil, ErrWrongRole
	}
	pp, err := s.repo.GetPatient(ctx, p.UserID)
	if err == nil {
		return pp, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, mapUserErr(err)
	}
	return &PatientProfile{
		UserID:       user.ID,
		Name:         user.Name,
		Email:        user.Email,
		ProfileImage: user.ProfileImage,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}, nil
}

func (s *Service) UpdatePatientProfile(ctx context.Context, p identity.Principal, req UpdatePatientRequest) (*PatientProfile, error) {
	if !p.IsPatient() {
		return nil, ErrWrongRole
	}
	user, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, mapUserErr(err)
	}
	now := time.Now().UTC()
	profile := &PatientProfile{
		UserID:           user.ID,
		Name:             user.Name,
		Email:            user.Email,
		ProfileImage:     user.ProfileImage,
		Phone:            strings.TrimSpace(req.Phone),
		DateOfBirth:      strings.TrimSpace(req.DateOfBirth),
		Gender:           req.Gender,
		BloodGroup:       req.BloodGroup,
		EmergencyContact: req.EmergencyContact,
		MedicalHistory:   req.MedicalHistory,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if profile.DateOfBirth != "" {
		dob, err := time.Parse(availability.DateLayout, profile.DateOfBirth)
		if err != nil || dob.After(now) {
			return nil, fmt.Errorf("%w: date of birth must be a past date", ErrInvalidProfile)
		}
	}
	if err := s.repo.UpsertPatient(ctx, profile); err != nil {
		return nil, err
	}
	s.logger.Info("patient profile updated", "patient_id", profile.UserID)
	return s.repo.GetPatient(ctx, profile.UserID)
}

// ListDoctors returns one page of onboarded doctors.
func (s *Service) ListDoctors(ctx context.Context, filter DoctorFilter) (*DoctorPage, error) {
	f := filter.Normalize()
	doctors, total, err := s.repo.ListDoctors(ctx, f)
	if err != nil {
		return nil, err
	}
	return &DoctorPage{
		Doctors:    doctors,
		Total:      total,
		Page:       f.Page,
		Limit:      f.Limit,
		TotalPages: int(math.Ceil(float64(total) / float64(f.Limit))),
	}, nil
}

// GetDoctor returns a public doctor card, served from Redis when cached.
func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*DoctorProfile, error) {
	cached, err := s.cache.Get(ctx, id)
	if err != nil {
		s.logger.Warn("doctor cache read failed", "error", err, "doctor_id", id)
	}
	if cached != nil {
		return cached, nil
	}
	d, err := s.repo.GetDoctor(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, d); err != nil {
		s.logger.Warn("doctor cache write failed", "error", err, "doctor_id", id)
	}
	return d, nil
}

// UploadProfileImage stores the image under profiles/<userID>/ and saves its URL.
func (s *Service) UploadProfileImage(ctx context.Context, p identity.Principal, contentType string, body []byte) (string, error) {
	if s.images == nil {
		return "", ErrNoImageStore
	}
	ext, ok := ImageExtension(contentType)
	if !ok {
		return "", ErrImageType
	}
	if len(body) == 0 {
		return "", ErrImageType
	}
	if len(body) > MaxImageBytes {
		return "", ErrImageTooLarge
	}
	key := fmt.Sprintf("profiles/%s/%s.%s", p.UserID, uuid.NewString(), ext)
	url, err := s.images.Put(ctx, key, contentType, body)
	if err != nil {
		return "", err
	}
	if err := s.users.SetProfileImage(ctx, p.UserID, url); err != nil {
		return "", mapUserErr(err)
	}
	if p.IsDoctor() {
		if err := s.cache.Invalidate(ctx, p.UserID); err != nil {
			s.logger.Warn("doctor cache invalidate failed", "error", err, "doctor_id", p.UserID)
		}
	}
	return url, nil
}

func (s *Service) blankDoctor(user *auth.User) *DoctorProfile {
	ranges := make([]availability.TimeRange, len(DefaultDailyRanges))
	copy(ranges, DefaultDailyRanges)
	return &DoctorProfile{
		UserID:              user.ID,
		Name:                user.Name,
		Email:               user.Email,
		ProfileImage:        user.ProfileImage,
		Categories:          []string{},
		AvailabilityRange:   AvailabilityRange{ExcludedWeekdays: []int{}},
		DailyTimeRanges:     ranges,
		SlotDurationMinutes: DefaultSlotMinutes,
		Timezone:            s.defaultTZ,
		CreatedAt:           user.CreatedAt,
		UpdatedAt:           user.UpdatedAt,
	}
}

func mapUserErr(err error) error {
	if errors.Is(err, auth.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
