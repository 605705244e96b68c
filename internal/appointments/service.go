package appointments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/waylio/waylio-platform/internal/audit"
	"github.com/waylio/waylio-platform/internal/identity"
	"github.com/waylio/waylio-platform/internal/notify"
	"github.com/waylio/waylio-platform/internal/observability/metrics"
	"github.com/waylio/waylio-platform/internal/queue"
	"github.com/waylio/waylio-platform/internal/realtime"
	"github.com/waylio/waylio-platform/pkg/logging"
)

var appointmentsTracer = otel.Tracer("waylio.internal.appointments")

// DefaultMinutesPerPatient is the static wait estimate per queue position.
const DefaultMinutesPerPatient = 15

// Directory resolves users referenced by appointments.
type Directory interface {
	Get(ctx context.Context, id string) (*identity.User, error)
	GetMany(ctx context.Context, ids []string) (map[string]*identity.User, error)
}

// EventEmitter pushes events to realtime channels. Delivery is best-effort.
type EventEmitter interface {
	Emit(ctx context.Context, channel, event string, payload any) error
}

// Notifier dispatches templated notifications without reporting failures.
type Notifier interface {
	Notify(ctx context.Context, req notify.Request)
}

// Auditor records changes.
type Auditor interface {
	Record(ctx context.Context, event audit.Event) error
}

// Config tunes the service.
type Config struct {
	// Location decides which calendar day a scheduled time belongs to.
	Location          *time.Location
	MinutesPerPatient int
}

// Service orchestrates appointment lifecycle and queue membership.
type Service struct {
	repo              Repository
	queue             queue.Store
	directory         Directory
	emitter           EventEmitter
	notifier          Notifier
	auditor           Auditor
	metrics           *metrics.AppointmentMetrics
	loc               *time.Location
	minutesPerPatient int64
	now               func() time.Time
	logger            *logging.Logger
}

func NewService(repo Repository, store queue.Store, directory Directory, emitter EventEmitter, cfg Config, logger *logging.Logger) *Service {
	if repo == nil {
		panic("appointments: repository required")
	}
	if store == nil {
		panic("appointments: queue store required")
	}
	if directory == nil {
		panic("appointments: directory required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MinutesPerPatient <= 0 {
		cfg.MinutesPerPatient = DefaultMinutesPerPatient
	}
	return &Service{
		repo:              repo,
		queue:             store,
		directory:         directory,
		emitter:           emitter,
		loc:               cfg.Location,
		minutesPerPatient: int64(cfg.MinutesPerPatient),
		now:               func() time.Time { return time.Now().UTC() },
		logger:            logger,
	}
}

func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

func (s *Service) WithAuditor(a Auditor) *Service {
	s.auditor = a
	return s
}

func (s *Service) WithMetrics(m *metrics.AppointmentMetrics) *Service {
	s.metrics = m
	return s
}

// Location is the timezone used for queue scopes and day boundaries.
func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span, func(*error)) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments."+op)
	span.SetAttributes(attrs...)
	started := time.Now()
	return ctx, span, func(errp *error) {
		var err error
		if errp != nil {
			err = *errp
		}
		if err != nil {
			span.RecordError(err)
		}
		s.metrics.ObserveOperation(op, err, time.Since(started).Seconds())
		span.End()
	}
}

// Book creates a SCHEDULED appointment after checking doctor, patient and slot.
func (s *Service) Book(ctx context.Context, actor identity.Caller, req BookRequest) (_ *Detail, err error) {
	ctx, _, end := s.startSpan(ctx, "book",
		attribute.String("doctor_id", req.DoctorID),
		attribute.String("patient_id", req.PatientID))
	defer end(&err)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	doctor, err := s.directory.Get(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("appointments: load doctor: %w", err)
	}
	if doctor.Role != identity.RoleDoctor || !doctor.Active {
		return nil, ErrDoctorNotFound
	}
	patient, err := s.directory.Get(ctx, req.PatientID)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("appointments: load patient: %w", err)
	}
	if !patient.Active {
		return nil, ErrPatientNotFound
	}

	at := req.ScheduledTime.UTC()
	taken, err := s.repo.SlotTaken(ctx, req.DoctorID, at)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrSlotUnavailable
	}

	a := &Appointment{
		PatientID:     req.PatientID,
		DoctorID:      req.DoctorID,
		ScheduledTime: at,
		Status:        StatusScheduled,
		Notes:         req.Notes,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition("NEW", string(StatusScheduled))
	s.logger.Info("appointment booked", "appointment_id", a.ID, "doctor_id", a.DoctorID, "patient_id", a.PatientID)

	s.emit(ctx, realtime.UserChannel(a.PatientID), realtime.EventAppointmentStatus, map[string]any{
		"appointmentId": a.ID,
		"status":        a.Status,
		"scheduledTime": a.ScheduledTime,
	})
	s.notify(ctx, notify.Request{
		Template:  notify.TemplateAppointmentConfirmation,
		Recipient: notify.Recipient{Name: patient.FullName(), Email: patient.Email, Phone: patient.Phone},
		Data: map[string]string{
			"patientName":   patient.FullName(),
			"doctorName":    doctor.FullName(),
			"scheduledTime": s.formatTime(a.ScheduledTime),
		},
	})
	s.audit(ctx, actor, audit.ActionCreate, a.ID, nil, a)

	ps, ds := patient.Summary(), doctor.Summary()
	return &Detail{Appointment: a, Patient: &ps, Doctor: &ds}, nil
}

// CheckIn moves a SCHEDULED appointment to CHECKED_IN and appends it to the
// doctor's queue for the appointment's day.
func (s *Service) CheckIn(ctx context.Context, actor identity.Caller, id string) (_ *Appointment, err error) {
	ctx, span, end := s.startSpan(ctx, "check_in", attribute.String("appointment_id", id))
	defer end(&err)

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusScheduled {
		return nil, invalidTransition(current.Status, StatusCheckedIn)
	}

	now := s.now()
	checkedIn := StatusCheckedIn
	updated, err := s.repo.Update(ctx, id, StatusScheduled, Patch{Status: &checkedIn, CheckInTime: &now})
	if err != nil {
		if errors.Is(err, ErrInvalidState) {
			return nil, invalidTransition(current.Status, StatusCheckedIn)
		}
		return nil, err
	}
	s.metrics.ObserveTransition(string(StatusScheduled), string(StatusCheckedIn))

	scope := s.scopeOf(updated)
	span.SetAttributes(attribute.String("queue_scope", scope.Key()))

	rank, err := s.queue.NextRank(ctx, scope)
	if err == nil {
		err = s.queue.Enqueue(ctx, scope, id, rank)
	}
	s.metrics.ObserveQueueWrite("enqueue", err)
	if err != nil {
		s.logger.Error("queue enqueue failed after check-in", "error", err, "appointment_id", id, "scope", scope.Key())
		return nil, fmt.Errorf("appointments: enqueue %s: %w", scope, err)
	}

	// A status change that committed before the enqueue found nothing to
	// remove, so the entry is withdrawn here.
	latest, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if latest.Status != StatusCheckedIn {
		err := s.queue.Remove(ctx, scope, id)
		s.metrics.ObserveQueueWrite("remove", err)
		if err != nil {
			return nil, fmt.Errorf("appointments: dequeue %s: %w", scope, err)
		}
		s.logger.Warn("appointment left CHECKED_IN during check-in", "appointment_id", id, "status", string(latest.Status))
		s.publishQueue(ctx, scope)
		s.audit(ctx, actor, audit.ActionCheckIn, id,
			map[string]any{"status": current.Status},
			map[string]any{"status": StatusCheckedIn})
		return latest, nil
	}

	position, ok, err := s.queue.PositionOf(ctx, scope, id)
	if err != nil {
		return nil, fmt.Errorf("appointments: queue position: %w", err)
	}
	if ok {
		if err := s.repo.SetQueuePositions(ctx, map[string]int64{id: position}); err != nil {
			return nil, err
		}
		updated.QueuePosition = &position
	}
	s.logger.Info("patient checked in", "appointment_id", id, "doctor_id", updated.DoctorID, "position", position)

	s.publishQueue(ctx, scope)
	s.emit(ctx, realtime.UserChannel(updated.PatientID), realtime.EventQueuePosition, s.positionPayload(id, position))
	s.emit(ctx, realtime.UserChannel(updated.PatientID), realtime.EventAppointmentStatus, map[string]any{
		"appointmentId": id,
		"status":        updated.Status,
	})
	s.notifyQueuePosition(ctx, updated.PatientID, position)
	s.audit(ctx, actor, audit.ActionCheckIn, id,
		map[string]any{"status": current.Status},
		map[string]any{"status": updated.Status, "queuePosition": position})
	return updated, nil
}

// UpdateStatus applies a partial update. A status change must follow the
// lifecycle; CHECKED_IN goes through CheckIn so the queue stays in step.
func (s *Service) UpdateStatus(ctx context.Context, actor identity.Caller, id string, req UpdateRequest) (_ *Appointment, err error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Status != nil && *req.Status == StatusCheckedIn {
		return s.CheckIn(ctx, actor, id)
	}

	ctx, _, end := s.startSpan(ctx, "update_status", attribute.String("appointment_id", id))
	defer end(&err)

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	patch := Patch{
		Notes:                 req.Notes,
		CheckInTime:           req.CheckInTime,
		ConsultationStartTime: req.ConsultationStartTime,
		ConsultationEndTime:   req.ConsultationEndTime,
	}
	if req.Status != nil {
		next := *req.Status
		if !CanTransition(current.Status, next) {
			return nil, invalidTransition(current.Status, next)
		}
		patch.Status = &next
		now := s.now()
		switch next {
		case StatusInProgress:
			if patch.ConsultationStartTime == nil {
				patch.ConsultationStartTime = &now
			}
		case StatusCompleted:
			if patch.ConsultationEndTime == nil {
				patch.ConsultationEndTime = &now
			}
		}
		if leavesQueue(next) {
			patch.ClearQueuePosition = true
		}
	}

	updated, err := s.repo.Update(ctx, id, current.Status, patch)
	if err != nil {
		if errors.Is(err, ErrInvalidState) && req.Status != nil {
			return nil, invalidTransition(current.Status, *req.Status)
		}
		return nil, err
	}

	if req.Status == nil {
		s.audit(ctx, actor, audit.ActionUpdate, id, nil, req)
		return updated, nil
	}

	s.metrics.ObserveTransition(string(current.Status), string(updated.Status))
	s.logger.Info("appointment status changed", "appointment_id", id, "from", string(current.Status), "to", string(updated.Status))

	if current.Status == StatusCheckedIn && leavesQueue(updated.Status) {
		if err := s.leaveQueue(ctx, updated); err != nil {
			return nil, err
		}
	}

	s.emit(ctx, realtime.UserChannel(updated.PatientID), realtime.EventAppointmentStatus, map[string]any{
		"appointmentId": id,
		"status":        updated.Status,
	})
	s.audit(ctx, actor, audit.ActionStatusChange, id,
		map[string]any{"status": current.Status},
		map[string]any{"status": updated.Status})
	return updated, nil
}

// MarkNoShow records that a SCHEDULED patient never arrived.
func (s *Service) MarkNoShow(ctx context.Context, actor identity.Caller, id string) (*Appointment, error) {
	noShow := StatusNoShow
	return s.UpdateStatus(ctx, actor, id, UpdateRequest{Status: &noShow})
}

// leaveQueue removes the appointment from its scope and refreshes everyone still waiting.
func (s *Service) leaveQueue(ctx context.Context, a *Appointment) error {
	scope := s.scopeOf(a)
	err := s.queue.Remove(ctx, scope, a.ID)
	s.metrics.ObserveQueueWrite("remove", err)
	if err != nil {
		return fmt.Errorf("appointments: dequeue %s: %w", scope, err)
	}

	entries := s.publishQueue(ctx, scope)
	if len(entries) == 0 {
		return nil
	}
	positions := make(map[string]int64, len(entries))
	for _, e := range entries {
		positions[e.Appointment.ID] = e.Position
	}
	if err := s.repo.SetQueuePositions(ctx, positions); err != nil {
		s.logger.Warn("queue position resync failed", "error", err, "scope", scope.Key())
	}
	for _, e := range entries {
		s.emit(ctx, realtime.UserChannel(e.Appointment.PatientID), realtime.EventQueuePosition,
			s.positionPayload(e.Appointment.ID, e.Position))
	}
	return nil
}

// GetDoctorQueue returns the live queue for a doctor and YYYY-MM-DD date.
func (s *Service) GetDoctorQueue(ctx context.Context, doctorID, date string) (_ []QueueEntry, err error) {
	ctx, _, end := s.startSpan(ctx, "get_doctor_queue", attribute.String("doctor_id", doctorID))
	defer end(&err)

	if date == "" {
		date = s.now().In(s.loc).Format(queue.DateLayout)
	}
	scope, err := queue.ParseScope(doctorID, date)
	if err != nil {
		return nil, invalidQuery(err)
	}
	return s.queueEntries(ctx, scope)
}

func (s *Service) queueEntries(ctx context.Context, scope queue.Scope) ([]QueueEntry, error) {
	ids, err := s.queue.Members(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("appointments: queue members: %w", err)
	}
	if len(ids) == 0 {
		return []QueueEntry{}, nil
	}

	found, err := s.repo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*Appointment, len(found))
	patientIDs := make([]string, 0, len(found))
	for _, a := range found {
		byID[a.ID] = a
		patientIDs = append(patientIDs, a.PatientID)
	}
	patients, err := s.directory.GetMany(ctx, patientIDs)
	if err != nil {
		return nil, err
	}

	entries := make([]QueueEntry, 0, len(ids))
	for _, id := range ids {
		a, ok := byID[id]
		if !ok {
			s.logger.Debug("queue member missing from storage", "appointment_id", id, "scope", scope.Key())
			continue
		}
		position := int64(len(entries) + 1)
		entry := QueueEntry{
			Position:      position,
			EstimatedWait: position * s.minutesPerPatient,
			Appointment:   a,
		}
		if p, ok := patients[a.PatientID]; ok {
			summary := p.Summary()
			entry.Patient = &summary
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// publishQueue pushes the scope's queue to the doctor's channel and returns it.
func (s *Service) publishQueue(ctx context.Context, scope queue.Scope) []QueueEntry {
	entries, err := s.queueEntries(ctx, scope)
	if err != nil {
		s.logger.Warn("queue refresh failed", "error", err, "scope", scope.Key())
		return nil
	}
	s.emit(ctx, realtime.DoctorChannel(scope.DoctorID), realtime.EventQueueUpdate, map[string]any{
		"doctorId": scope.DoctorID,
		"date":     scope.Date,
		"queue":    entries,
	})
	return entries
}

// Get returns one appointment with participants resolved.
func (s *Service) Get(ctx context.Context, id string) (*Detail, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	details, err := s.details(ctx, []*Appointment{a})
	if err != nil {
		return nil, err
	}
	return &details[0], nil
}

// ListForPatient returns the patient's appointments, newest first.
func (s *Service) ListForPatient(ctx context.Context, patientID string) ([]Detail, error) {
	list, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return s.details(ctx, list)
}

// ListForDoctor returns the doctor's appointments on a YYYY-MM-DD date, by time.
func (s *Service) ListForDoctor(ctx context.Context, doctorID, date string) ([]Detail, error) {
	from, to, err := s.dayBounds(date)
	if err != nil {
		return nil, err
	}
	list, err := s.repo.ListByDoctor(ctx, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	return s.details(ctx, list)
}

// ListScheduledBetween returns SCHEDULED appointments in [from, to).
func (s *Service) ListScheduledBetween(ctx context.Context, from, to time.Time) ([]*Appointment, error) {
	return s.repo.ListByStatus(ctx, StatusScheduled, from, to)
}

// Stats counts the day's appointments by status and reports live queue lengths.
func (s *Service) Stats(ctx context.Context, date string) (*Stats, error) {
	from, to, err := s.dayBounds(date)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.CountByStatus(ctx, from, to)
	if err != nil {
		return nil, err
	}
	stats := &Stats{
		Date:         from.In(s.loc).Format(queue.DateLayout),
		ByStatus:     make(map[Status]int, len(AllStatuses)),
		QueueLengths: make(map[string]int64),
	}
	for _, st := range AllStatuses {
		stats.ByStatus[st] = counts[st]
		stats.Total += counts[st]
	}

	waiting, err := s.repo.ListByStatus(ctx, StatusCheckedIn, from, to)
	if err != nil {
		return nil, err
	}
	for _, a := range waiting {
		if _, seen := stats.QueueLengths[a.DoctorID]; seen {
			continue
		}
		n, err := s.queue.Len(ctx, s.scopeOf(a))
		if err != nil {
			return nil, fmt.Errorf("appointments: queue length: %w", err)
		}
		stats.QueueLengths[a.DoctorID] = n
	}
	return stats, nil
}

func (s *Service) details(ctx context.Context, list []*Appointment) ([]Detail, error) {
	ids := make([]string, 0, len(list)*2)
	for _, a := range list {
		ids = append(ids, a.PatientID, a.DoctorID)
	}
	users := map[string]*identity.User{}
	if len(ids) > 0 {
		var err error
		if users, err = s.directory.GetMany(ctx, ids); err != nil {
			return nil, err
		}
	}
	out := make([]Detail, 0, len(list))
	for _, a := range list {
		d := Detail{Appointment: a}
		if u, ok := users[a.PatientID]; ok {
			sum := u.Summary()
			d.Patient = &sum
		}
		if u, ok := users[a.DoctorID]; ok {
			sum := u.Summary()
			d.Doctor = &sum
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *Service) scopeOf(a *Appointment) queue.Scope {
	return queue.NewScope(a.DoctorID, a.ScheduledTime, s.loc)
}

func (s *Service) dayBounds(date string) (time.Time, time.Time, error) {
	var day time.Time
	if date == "" {
		n := s.now().In(s.loc)
		day = time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, s.loc)
	} else {
		d, err := time.ParseInLocation(queue.DateLayout, date, s.loc)
		if err != nil {
			return time.Time{}, time.Time{}, invalidQuery(err)
		}
		day = d
	}
	return day, day.AddDate(0, 0, 1), nil
}

func (s *Service) positionPayload(id string, position int64) map[string]any {
	return map[string]any{
		"appointmentId": id,
		"position":      position,
		"estimatedWait": position * s.minutesPerPatient,
	}
}

func (s *Service) formatTime(t time.Time) string {
	return t.In(s.loc).Format("Mon Jan 2 2006 15:04")
}

func (s *Service) notifyQueuePosition(ctx context.Context, patientID string, position int64) {
	if s.notifier == nil {
		return
	}
	patient, err := s.directory.Get(ctx, patientID)
	if err != nil {
		s.logger.Warn("queue notification skipped", "error", err, "patient_id", patientID)
		return
	}
	if patient.PushToken == "" {
		return
	}
	s.notifier.Notify(ctx, notify.Request{
		Template:  notify.TemplateQueueUpdate,
		Recipient: notify.Recipient{Name: patient.FullName(), PushToken: patient.PushToken},
		Data: map[string]string{
			"position":      strconv.FormatInt(position, 10),
			"estimatedWait": strconv.FormatInt(position*s.minutesPerPatient, 10),
		},
		Priority: notify.PriorityHigh,
	})
}

func (s *Service) emit(ctx context.Context, channel, event string, payload any) {
	if s.emitter == nil {
		return
	}
	if err := s.emitter.Emit(ctx, channel, event, payload); err != nil {
		s.logger.Warn("realtime emit failed", "error", err, "channel", channel, "event", event)
	}
}

func (s *Service) notify(ctx context.Context, req notify.Request) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, req)
}

func (s *Service) audit(ctx context.Context, actor identity.Caller, action audit.Action, id string, before, after any) {
	if s.auditor == nil {
		return
	}
	event := audit.Event{
		UserID:       actor.UserID,
		Action:       action,
		ResourceType: audit.ResourceAppointment,
		ResourceID:   id,
		Changes:      audit.Changes(before, after),
	}
	if err := s.auditor.Record(ctx, event); err != nil {
		s.logger.Warn("audit record failed", "error", err, "appointment_id", id, "action", string(action))
	}
}
