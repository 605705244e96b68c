package appointments

import (
	"time"

	"github.com/waylio/waylio-platform/internal/apperr"
	"github.com/waylio/waylio-platform/internal/identity"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusScheduled  Status = "SCHEDULED"
	StatusCheckedIn  Status = "CHECKED_IN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusNoShow     Status = "NO_SHOW"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{StatusScheduled, StatusCheckedIn, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow}

func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Terminal statuses release the doctor's slot.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// Appointment is the source of truth for one visit.
type Appointment struct {
	ID                    string     `json:"id"`
	PatientID             string     `json:"patientId"`
	DoctorID              string     `json:"doctorId"`
	ScheduledTime         time.Time  `json:"scheduledTime"`
	Status                Status     `json:"status"`
	Notes                 string     `json:"notes,omitempty"`
	CheckInTime           *time.Time `json:"checkInTime,omitempty"`
	ConsultationStartTime *time.Time `json:"consultationStartTime,omitempty"`
	ConsultationEndTime   *time.Time `json:"consultationEndTime,omitempty"`
	// QueuePosition is a cached copy of the queue rank, set only while CHECKED_IN.
	QueuePosition *int64    `json:"queuePosition,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Detail is an appointment with its participants resolved.
type Detail struct {
	*Appointment
	Patient *identity.Summary `json:"patient,omitempty"`
	Doctor  *identity.Summary `json:"doctor,omitempty"`
}

// QueueEntry is one row of a doctor's live queue.
type QueueEntry struct {
	Position      int64             `json:"position"`
	EstimatedWait int64             `json:"estimatedWait"`
	Appointment   *Appointment      `json:"appointment"`
	Patient       *identity.Summary `json:"patient,omitempty"`
}

// BookRequest creates a SCHEDULED appointment.
type BookRequest struct {
	PatientID     string    `json:"patientId"`
	DoctorID      string    `json:"doctorId"`
	ScheduledTime time.Time `json:"scheduledTime"`
	Notes         string    `json:"notes"`
}

func (r *BookRequest) Validate() error {
	fields := map[string]string{}
	if r.PatientID == "" {
		fields["patientId"] = "is required"
	}
	if r.DoctorID == "" {
		fields["doctorId"] = "is required"
	}
	if r.ScheduledTime.IsZero() {
		fields["scheduledTime"] = "is required"
	}
	if len(fields) > 0 {
		return apperr.Validation("Invalid appointment request", fields)
	}
	return nil
}

// UpdateRequest is a partial update. Nil fields are left untouched.
type UpdateRequest struct {
	Status                *Status    `json:"status,omitempty"`
	Notes                 *string    `json:"notes,omitempty"`
	CheckInTime           *time.Time `json:"checkInTime,omitempty"`
	ConsultationStartTime *time.Time `json:"consultationStartTime,omitempty"`
	ConsultationEndTime   *time.Time `json:"consultationEndTime,omitempty"`
}

func (r *UpdateRequest) Validate() error {
	fields := map[string]string{}
	if r.Status != nil && !r.Status.Valid() {
		fields["status"] = "unknown status"
	}
	if r.ConsultationStartTime != nil && r.ConsultationEndTime != nil && r.ConsultationEndTime.Before(*r.ConsultationStartTime) {
		fields["consultationEndTime"] = "must not be before consultationStartTime"
	}
	if r.Status == nil && r.Notes == nil && r.CheckInTime == nil && r.ConsultationStartTime == nil && r.ConsultationEndTime == nil {
		fields["body"] = "no fields to update"
	}
	if len(fields) > 0 {
		return apperr.Validation("Invalid appointment update", fields)
	}
	return nil
}

// Patch is what a repository applies in one conditional write.
type Patch struct {
	Status                *Status
	Notes                 *string
	CheckInTime           *time.Time
	ConsultationStartTime *time.Time
	ConsultationEndTime   *time.Time
	ClearQueuePosition    bool
}

func (p Patch) apply(a *Appointment) {
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.Notes != nil {
		a.Notes = *p.Notes
	}
	if p.CheckInTime != nil {
		t := *p.CheckInTime
		a.CheckInTime = &t
	}
	if p.ConsultationStartTime != nil {
		t := *p.ConsultationStartTime
		a.ConsultationStartTime = &t
	}
	if p.ConsultationEndTime != nil {
		t := *p.ConsultationEndTime
		a.ConsultationEndTime = &t
	}
	if p.ClearQueuePosition {
		a.QueuePosition = nil
	}
}

// Stats is the admin dashboard snapshot for one day.
type Stats struct {
	Date         string           `json:"date"`
	ByStatus     map[Status]int   `json:"byStatus"`
	Total        int              `json:"total"`
	QueueLengths map[string]int64 `json:"queueLengths"`
}
