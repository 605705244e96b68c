package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository persists appointments.
type Repository interface {
	// Create inserts a SCHEDULED appointment, failing with ErrSlotUnavailable when the
	// doctor already holds a non-terminal appointment at that time.
	Create(ctx context.Context, a *Appointment) error
	Get(ctx context.Context, id string) (*Appointment, error)
	// SlotTaken is the point-in-time conflict check.
	SlotTaken(ctx context.Context, doctorID string, at time.Time) (bool, error)
	// Update applies patch only while the row still has status expected.
	// A lost race returns ErrInvalidState.
	Update(ctx context.Context, id string, expected Status, patch Patch) (*Appointment, error)
	// SetQueuePositions caches positions on rows that are still CHECKED_IN;
	// other rows are left untouched.
	SetQueuePositions(ctx context.Context, positions map[string]int64) error
	ListByIDs(ctx context.Context, ids []string) ([]*Appointment, error)
	ListByPatient(ctx context.Context, patientID string) ([]*Appointment, error)
	ListByDoctor(ctx context.Context, doctorID string, from, to time.Time) ([]*Appointment, error)
	ListByStatus(ctx context.Context, status Status, from, to time.Time) ([]*Appointment, error)
	CountByStatus(ctx context.Context, from, to time.Time) (map[Status]int, error)
}

// MemoryRepository is an in-process Repository.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string]*Appointment
	now   func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		items: make(map[string]*Appointment),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func clone(a *Appointment) *Appointment {
	cp := *a
	if a.QueuePosition != nil {
		p := *a.QueuePosition
		cp.QueuePosition = &p
	}
	return &cp
}

func (r *MemoryRepository) slotTakenLocked(doctorID string, at time.Time) bool {
	for _, a := range r.items {
		if a.DoctorID == doctorID && a.ScheduledTime.Equal(at) && !a.Status.Terminal() {
			return true
		}
	}
	return false
}

// Create checks and inserts under one lock.
func (r *MemoryRepository) Create(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slotTakenLocked(a.DoctorID, a.ScheduledTime) {
		return ErrSlotUnavailable
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := r.now()
	a.CreatedAt, a.UpdatedAt = now, now
	r.items[a.ID] = clone(a)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.items[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return clone(a), nil
}

func (r *MemoryRepository) SlotTaken(_ context.Context, doctorID string, at time.Time) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slotTakenLocked(doctorID, at), nil
}

func (r *MemoryRepository) Update(_ context.Context, id string, expected Status, patch Patch) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != expected {
		return nil, ErrInvalidState
	}
	patch.apply(a)
	a.UpdatedAt = r.now()
	return clone(a), nil
}

func (r *MemoryRepository) SetQueuePositions(_ context.Context, positions map[string]int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, pos := range positions {
		if a, ok := r.items[id]; ok && a.Status == StatusCheckedIn {
			p := pos
			a.QueuePosition = &p
		}
	}
	return nil
}

func (r *MemoryRepository) filter(match func(*Appointment) bool) []*Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Appointment, 0)
	for _, a := range r.items {
		if match(a) {
			out = append(out, clone(a))
		}
	}
	return out
}

func (r *MemoryRepository) ListByIDs(_ context.Context, ids []string) ([]*Appointment, error) {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	return r.filter(func(a *Appointment) bool {
		_, ok := want[a.ID]
		return ok
	}), nil
}

func (r *MemoryRepository) ListByPatient(_ context.Context, patientID string) ([]*Appointment, error) {
	out := r.filter(func(a *Appointment) bool { return a.PatientID == patientID })
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledTime.After(out[j].ScheduledTime) })
	return out, nil
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func (r *MemoryRepository) ListByDoctor(_ context.Context, doctorID string, from, to time.Time) ([]*Appointment, error) {
	out := r.filter(func(a *Appointment) bool { return a.DoctorID == doctorID && inRange(a.ScheduledTime, from, to) })
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledTime.Before(out[j].ScheduledTime) })
	return out, nil
}

func (r *MemoryRepository) ListByStatus(_ context.Context, status Status, from, to time.Time) ([]*Appointment, error) {
	out := r.filter(func(a *Appointment) bool { return a.Status == status && inRange(a.ScheduledTime, from, to) })
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledTime.Before(out[j].ScheduledTime) })
	return out, nil
}

func (r *MemoryRepository) CountByStatus(_ context.Context, from, to time.Time) (map[Status]int, error) {
	counts := make(map[Status]int)
	for _, a := range r.filter(func(a *Appointment) bool { return inRange(a.ScheduledTime, from, to) }) {
		counts[a.Status]++
	}
	return counts, nil
}

var _ Repository = (*MemoryRepository)(nil)
