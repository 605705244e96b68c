package appointmentworker

import (
	"context"
	"time"

	"github.com/waylio/waylio-platform/internal/appointments"
	"github.com/waylio/waylio-platform/internal/identity"
	"github.com/waylio/waylio-platform/internal/notify"
	"github.com/waylio/waylio-platform/pkg/logging"
)

type scheduledSource interface {
	ListScheduledBetween(ctx context.Context, from, to time.Time) ([]*appointments.Appointment, error)
	Location() *time.Location
}

type userDirectory interface {
	GetMany(ctx context.Context, ids []string) (map[string]*identity.User, error)
}

type notifier interface {
	Notify(ctx context.Context, req notify.Request)
}

// Reminder sends APPOINTMENT_REMINDER to every patient still SCHEDULED for the
// next calendar day.
type Reminder struct {
	source    scheduledSource
	directory userDirectory
	notifier  notifier
	logger    *logging.Logger
	now       func() time.Time
}

func NewReminder(source scheduledSource, directory userDirectory, n notifier, logger *logging.Logger) *Reminder {
	if logger == nil {
		logger = logging.Default()
	}
	return &Reminder{
		source:    source,
		directory: directory,
		notifier:  n,
		logger:    logger,
		now:       time.Now,
	}
}

func (r *Reminder) Name() string { return "appointment_reminder" }

// RunOnce returns how many reminders were handed to the notifier.
func (r *Reminder) RunOnce(ctx context.Context) int {
	if r.source == nil || r.directory == nil || r.notifier == nil {
		return 0
	}
	loc := r.source.Location()
	today := r.now().In(loc)
	from := time.Date(today.Year(), today.Month(), today.Day()+1, 0, 0, 0, 0, loc)
	to := from.AddDate(0, 0, 1)

	list, err := r.source.ListScheduledBetween(ctx, from, to)
	if err != nil {
		r.logger.Error("reminder fetch failed", "error", err)
		return 0
	}
	if len(list) == 0 {
		return 0
	}

	ids := make([]string, 0, len(list)*2)
	for _, a := range list {
		ids = append(ids, a.PatientID, a.DoctorID)
	}
	users, err := r.directory.GetMany(ctx, ids)
	if err != nil {
		r.logger.Error("reminder directory lookup failed", "error", err)
		return 0
	}

	sent := 0
	for _, a := range list {
		patient, ok := users[a.PatientID]
		if !ok || patient.Phone == "" {
			r.logger.Debug("reminder skipped", "appointment_id", a.ID, "reason", "no phone")
			continue
		}
		doctorName := ""
		if d, ok := users[a.DoctorID]; ok {
			doctorName = d.FullName()
		}
		r.notifier.Notify(ctx, notify.Request{
			Template:  notify.TemplateAppointmentReminder,
			Recipient: notify.Recipient{Name: patient.FullName(), Email: patient.Email, Phone: patient.Phone},
			Data: map[string]string{
				"patientName":   patient.FullName(),
				"doctorName":    doctorName,
				"scheduledTime": a.ScheduledTime.In(loc).Format("Mon Jan 2 15:04"),
			},
		})
		sent++
	}
	r.logger.Info("appointment reminders dispatched", "count", sent, "date", from.Format("2006-01-02"))
	return sent
}
