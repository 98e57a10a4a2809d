package profiles

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepository keeps profiles in process memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	doctors  map[uuid.UUID]DoctorProfile
	patients map[uuid.UUID]PatientProfile
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		doctors:  make(map[uuid.UUID]DoctorProfile),
		patients: make(map[uuid.UUID]PatientProfile),
	}
}

func (m *MemoryRepository) GetDoctor(_ context.Context, userID uuid.UUID) (*DoctorProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.doctors[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *MemoryRepository) UpsertDoctor(_ context.Context, p *DoctorProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	if prev, ok := m.doctors[p.UserID]; ok {
		cp.CreatedAt = prev.CreatedAt
	}
	cp.Onboarded = true
	m.doctors[p.UserID] = cp
	return nil
}

func (m *MemoryRepository) ListDoctors(_ context.Context, filter DoctorFilter) ([]*DoctorProfile, int, error) {
	f := filter.Normalize()
	m.mu.RLock()
	matched := make([]DoctorProfile, 0, len(m.doctors))
	for _, d := range m.doctors {
		if matchesFilter(d, f) {
			matched = append(matched, d)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		less, equal := compareDoctors(matched[i], matched[j], f.SortBy)
		if equal {
			return matched[i].UserID.String() < matched[j].UserID.String()
		}
		if f.SortOrder == "asc" {
			return less
		}
		return !less
	})

	total := len(matched)
	start := f.Offset()
	if start > total {
		start = total
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	out := make([]*DoctorProfile, 0, end-start)
	for i := start; i < end; i++ {
		d := matched[i]
		out = append(out, &d)
	}
	return out, total, nil
}

func matchesFilter(d DoctorProfile, f DoctorFilter) bool {
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(d.Name), q) && !strings.Contains(strings.ToLower(d.Specialization), q) {
			return false
		}
	}
	if f.Specialization != "" && !strings.EqualFold(d.Specialization, f.Specialization) {
		return false
	}
	if f.City != "" && !strings.EqualFold(d.HospitalInfo.City, f.City) {
		return false
	}
	if f.Category != "" {
		found := false
		for _, c := range d.Categories {
			if strings.EqualFold(c, f.Category) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func compareDoctors(a, b DoctorProfile, by string) (less, equal bool) {
	switch by {
	case "fees":
		return a.Fees < b.Fees, a.Fees == b.Fees
	case "name":
		an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
		return an < bn, an == bn
	case "createdAt":
		return a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
	default:
		return a.Experience < b.Experience, a.Experience == b.Experience
	}
}

func (m *MemoryRepository) GetPatient(_ context.Context, userID uuid.UUID) (*PatientProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryRepository) UpsertPatient(_ context.Context, p *PatientProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	if prev, ok := m.patients[p.UserID]; ok {
		cp.CreatedAt = prev.CreatedAt
	}
	cp.Onboarded = true
	m.patients[p.UserID] = cp
	return nil
}
