// Package queue tracks the arrival order of checked-in appointments for each
// doctor and calendar day.
package queue

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used in scope keys and query params.
const DateLayout = "2006-01-02"

// Scope identifies one doctor's queue for one calendar day.
type Scope struct {
	DoctorID string
	Date     string
}

// NewScope derives the scope of an appointment scheduled at the given time.
// The calendar date is taken in loc (UTC when nil).
func NewScope(doctorID string, at time.Time, loc *time.Location) Scope {
	if loc == nil {
		loc = time.UTC
	}
	return Scope{DoctorID: doctorID, Date: at.In(loc).Format(DateLayout)}
}

// ParseScope builds a scope from a doctor ID and a YYYY-MM-DD date.
func ParseScope(doctorID, date string) (Scope, error) {
	doctorID = strings.TrimSpace(doctorID)
	if doctorID == "" {
		return Scope{}, fmt.Errorf("queue: doctor id required")
	}
	d, err := time.Parse(DateLayout, strings.TrimSpace(date))
	if err != nil {
		return Scope{}, fmt.Errorf("queue: invalid date %q: %w", date, err)
	}
	return Scope{DoctorID: doctorID, Date: d.Format(DateLayout)}, nil
}

// Key is the sorted-set key holding the scope's members.
func (s Scope) Key() string {
	return fmt.Sprintf("queue:doctor:%s:%s", s.DoctorID, s.Date)
}

func (s Scope) seqKey() string {
	return s.Key() + ":seq"
}

func (s Scope) String() string {
	return s.Key()
}
