package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository enforcing the same
// one-live-appointment-per-slot rule as the database index.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*Appointment
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[uuid.UUID]*Appointment)}
}

func (m *MemoryRepository) slotTaken(doctorID uuid.UUID, start time.Time, except uuid.UUID) bool {
	for _, a := range m.items {
		if a.ID != except && a.DoctorID == doctorID && a.Status != StatusCancelled && a.SlotStart.Equal(start) {
			return true
		}
	}
	return false
}

func (m *MemoryRepository) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slotTaken(a.DoctorID, a.SlotStart, uuid.Nil) {
		return ErrSlotTaken
	}
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryRepository) GetByTransaction(_ context.Context, transactionUUID string) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if transactionUUID == "" {
		return nil, ErrNotFound
	}
	for _, a := range m.items {
		if a.EsewaTransactionID == transactionUUID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryRepository) List(_ context.Context, q ListQuery) ([]*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Appointment
	for _, a := range m.items {
		if q.DoctorID != uuid.Nil && a.DoctorID != q.DoctorID {
			continue
		}
		if q.PatientID != uuid.Nil && a.PatientID != q.PatientID {
			continue
		}
		if !matchesTab(a, q.Tab, q.Now) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	asc := q.Tab == TabUpcoming
	sort.Slice(out, func(i, j int) bool {
		if out[i].SlotStart.Equal(out[j].SlotStart) {
			return out[i].ID.String() < out[j].ID.String()
		}
		if asc {
			return out[i].SlotStart.Before(out[j].SlotStart)
		}
		return out[i].SlotStart.After(out[j].SlotStart)
	})
	return out, nil
}

func matchesTab(a *Appointment, tab Tab, now time.Time) bool {
	switch tab {
	case TabUpcoming:
		live := a.Status == StatusScheduled || a.Status == StatusInProgress
		return live && (!a.SlotStart.Before(now) || a.Status == StatusInProgress)
	case TabPast:
		return a.SlotStart.Before(now) || a.Status == StatusCompleted || a.Status == StatusCancelled
	}
	return true
}

func (m *MemoryRepository) BookedStarts(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []time.Time
	for _, a := range m.items {
		if a.DoctorID != doctorID || a.Status == StatusCancelled {
			continue
		}
		if a.SlotStart.Before(from) || !a.SlotStart.Before(to) {
			continue
		}
		out = append(out, a.SlotStart)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (m *MemoryRepository) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok || a.Status != from {
		return ErrStaleStatus
	}
	a.Status = to
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryRepository) Complete(_ context.Context, id uuid.UUID, prescription, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok || a.Status != StatusInProgress {
		return ErrStaleStatus
	}
	a.Status = StatusCompleted
	a.Prescription = prescription
	a.Notes = notes
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryRepository) SetTransaction(_ context.Context, id uuid.UUID, transactionUUID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok || a.PaymentStatus == PaymentPaid {
		return ErrStaleStatus
	}
	a.EsewaTransactionID = transactionUUID
	if a.PaymentStatus == PaymentFailed {
		a.PaymentStatus = PaymentPending
	}
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryRepository) MarkPaid(_ context.Context, id uuid.UUID, rec PaymentRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok || a.PaymentStatus == PaymentPaid {
		return false, nil
	}
	paidAt := rec.PaidAt
	a.PaymentStatus = PaymentPaid
	a.PaymentMethod = rec.Method
	a.EsewaTransactionID = rec.TransactionUUID
	a.EsewaPaymentID = rec.TransactionCode
	a.PaymentDate = &paidAt
	a.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *MemoryRepository) MarkPaymentFailed(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.items[id]; ok && a.PaymentStatus == PaymentPending {
		a.PaymentStatus = PaymentFailed
		a.UpdatedAt = time.Now().UTC()
	}
	return nil
}
