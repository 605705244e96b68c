package appointments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores appointments. The active-slot partial unique index
// (doctor_id, scheduled_time) closes the check-then-create race on booking.
type PostgresRepository struct {
	db pgxQuerier
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithQuerier(db pgxQuerier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const appointmentColumns = `id, patient_id, doctor_id, scheduled_time, status, COALESCE(notes, ''),
	check_in_time, consultation_start_time, consultation_end_time, queue_position, created_at, updated_at`

var terminalStatuses = []string{string(StatusCompleted), string(StatusCancelled), string(StatusNoShow)}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a      Appointment
		status string
	)
	if err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.ScheduledTime, &status, &a.Notes,
		&a.CheckInTime, &a.ConsultationStartTime, &a.ConsultationEndTime, &a.QueuePosition,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Status = Status(status)
	return &a, nil
}

func (r *PostgresRepository) Create(ctx context.Context, a *Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	query := `
		INSERT INTO appointments (id, patient_id, doctor_id, scheduled_time, status, notes)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, a.ID, a.PatientID, a.DoctorID, a.ScheduledTime, string(a.Status), a.Notes).
		Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrSlotUnavailable
		}
		return fmt.Errorf("appointments: insert: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrAppointmentNotFound
	}
	a, err := scanAppointment(r.db.QueryRow(ctx, "SELECT "+appointmentColumns+" FROM appointments WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("appointments: select: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) SlotTaken(ctx context.Context, doctorID string, at time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1 AND scheduled_time = $2 AND NOT (status = ANY($3))
		)
	`
	var taken bool
	if err := r.db.QueryRow(ctx, query, doctorID, at, terminalStatuses).Scan(&taken); err != nil {
		return false, fmt.Errorf("appointments: slot check: %w", err)
	}
	return taken, nil
}

func (r *PostgresRepository) Update(ctx context.Context, id string, expected Status, patch Patch) (*Appointment, error) {
	var status *string
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
	}
	query := `
		UPDATE appointments SET
			status = COALESCE($3::text, status),
			notes = COALESCE($4::text, notes),
			check_in_time = COALESCE($5::timestamptz, check_in_time),
			consultation_start_time = COALESCE($6::timestamptz, consultation_start_time),
			consultation_end_time = COALESCE($7::timestamptz, consultation_end_time),
			queue_position = CASE WHEN $8::boolean THEN NULL ELSE queue_position END,
			updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING ` + appointmentColumns
	a, err := scanAppointment(r.db.QueryRow(ctx, query, id, string(expected), status, patch.Notes,
		patch.CheckInTime, patch.ConsultationStartTime, patch.ConsultationEndTime, patch.ClearQueuePosition))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("appointments: update: %w", err)
	}
	if _, getErr := r.Get(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrInvalidState
}

func (r *PostgresRepository) SetQueuePositions(ctx context.Context, positions map[string]int64) error {
	if len(positions) == 0 {
		return nil
	}
	ids := make([]string, 0, len(positions))
	for id := range positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	pos := make([]int64, len(ids))
	for i, id := range ids {
		pos[i] = positions[id]
	}
	query := `
		UPDATE appointments AS a SET queue_position = v.pos, updated_at = now()
		FROM unnest($1::uuid[], $2::bigint[]) AS v(id, pos)
		WHERE a.id = v.id AND a.status = $3
	`
	if _, err := r.db.Exec(ctx, query, ids, pos, string(StatusCheckedIn)); err != nil {
		return fmt.Errorf("appointments: set queue positions: %w", err)
	}
	return nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*Appointment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: list: %w", err)
	}
	defer rows.Close()
	out := make([]*Appointment, 0)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: iterate: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) ListByIDs(ctx context.Context, ids []string) ([]*Appointment, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return []*Appointment{}, nil
	}
	return r.list(ctx, "SELECT "+appointmentColumns+" FROM appointments WHERE id = ANY($1::uuid[])", valid)
}

func (r *PostgresRepository) ListByPatient(ctx context.Context, patientID string) ([]*Appointment, error) {
	return r.list(ctx, "SELECT "+appointmentColumns+" FROM appointments WHERE patient_id = $1 ORDER BY scheduled_time DESC", patientID)
}

func (r *PostgresRepository) ListByDoctor(ctx context.Context, doctorID string, from, to time.Time) ([]*Appointment, error) {
	return r.list(ctx, "SELECT "+appointmentColumns+` FROM appointments
		WHERE doctor_id = $1 AND scheduled_time >= $2 AND scheduled_time < $3
		ORDER BY scheduled_time`, doctorID, from, to)
}

func (r *PostgresRepository) ListByStatus(ctx context.Context, status Status, from, to time.Time) ([]*Appointment, error) {
	return r.list(ctx, "SELECT "+appointmentColumns+` FROM appointments
		WHERE status = $1 AND scheduled_time >= $2 AND scheduled_time < $3
		ORDER BY scheduled_time`, string(status), from, to)
}

func (r *PostgresRepository) CountByStatus(ctx context.Context, from, to time.Time) (map[Status]int, error) {
	rows, err := r.db.Query(ctx, `
		SELECT status, COUNT(*) FROM appointments
		WHERE scheduled_time >= $1 AND scheduled_time < $2
		GROUP BY status`, from, to)
	if err != nil {
		return nil, fmt.Errorf("appointments: count by status: %w", err)
	}
	defer rows.Close()
	counts := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("appointments: scan count: %w", err)
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

var _ Repository = (*PostgresRepository)(nil)
