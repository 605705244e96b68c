package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LogStore persists delivery attempts.
type LogStore interface {
	Create(ctx context.Context, entry *Log) error
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, reason string) error
	List(ctx context.Context, filter LogFilter) (LogPage, error)
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresLogStore writes to notification_logs.
type PostgresLogStore struct {
	db pgxQuerier
}

func NewPostgresLogStore(pool *pgxpool.Pool) *PostgresLogStore {
	if pool == nil {
		panic("notify: pgx pool required")
	}
	return &PostgresLogStore{db: pool}
}

func newPostgresLogStoreWithQuerier(db pgxQuerier) *PostgresLogStore {
	return &PostgresLogStore{db: db}
}

func (s *PostgresLogStore) Create(ctx context.Context, entry *Log) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Status == "" {
		entry.Status = StatusPending
	}
	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("notify: marshal metadata: %w", err)
	}
	query := `
		INSERT INTO notification_logs (id, type, template, recipient_email, recipient_phone, status, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := s.db.Exec(ctx, query,
		entry.ID,
		string(entry.Type),
		string(entry.Template),
		entry.RecipientEmail,
		entry.RecipientPhone,
		string(entry.Status),
		meta,
		entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("notify: insert log: %w", err)
	}
	return nil
}

func (s *PostgresLogStore) MarkSent(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE notification_logs SET status = $2, sent_at = $3, error = NULL WHERE id = $1`
	if _, err := s.db.Exec(ctx, query, id, string(StatusSent), at); err != nil {
		return fmt.Errorf("notify: mark sent: %w", err)
	}
	return nil
}

func (s *PostgresLogStore) MarkFailed(ctx context.Context, id string, reason string) error {
	query := `UPDATE notification_logs SET status = $2, error = $3 WHERE id = $1`
	if _, err := s.db.Exec(ctx, query, id, string(StatusFailed), reason); err != nil {
		return fmt.Errorf("notify: mark failed: %w", err)
	}
	return nil
}

func (s *PostgresLogStore) List(ctx context.Context, filter LogFilter) (LogPage, error) {
	filter = filter.normalized()

	var conds []string
	var args []any
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM notification_logs"+where, args...).Scan(&total); err != nil {
		return LogPage{}, fmt.Errorf("notify: count logs: %w", err)
	}

	listArgs := append(append([]any{}, args...), filter.Limit, (filter.Page-1)*filter.Limit)
	query := fmt.Sprintf(`
		SELECT id, type, template, COALESCE(recipient_email, ''), COALESCE(recipient_phone, ''),
		       status, COALESCE(error, ''), metadata, sent_at, created_at
		FROM notification_logs%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	rows, err := s.db.Query(ctx, query, listArgs...)
	if err != nil {
		return LogPage{}, fmt.Errorf("notify: list logs: %w", err)
	}
	defer rows.Close()

	logs := make([]Log, 0, filter.Limit)
	for rows.Next() {
		var (
			entry             Log
			typ, tmpl, status string
			meta              []byte
		)
		if err := rows.Scan(&entry.ID, &typ, &tmpl, &entry.RecipientEmail, &entry.RecipientPhone,
			&status, &entry.Error, &meta, &entry.SentAt, &entry.CreatedAt); err != nil {
			return LogPage{}, fmt.Errorf("notify: scan log: %w", err)
		}
		entry.Type = Channel(typ)
		entry.Template = TemplateName(tmpl)
		entry.Status = Status(status)
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &entry.Metadata)
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return LogPage{}, fmt.Errorf("notify: iterate logs: %w", err)
	}
	return LogPage{
		Logs:       logs,
		Total:      total,
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalPages: totalPages(total, filter.Limit),
	}, nil
}

// MemoryLogStore keeps logs in process. Used when no database is configured.
type MemoryLogStore struct {
	mu   sync.Mutex
	logs []*Log
}

func NewMemoryLogStore() *MemoryLogStore {
	return &MemoryLogStore{}
}

func (s *MemoryLogStore) Create(_ context.Context, entry *Log) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Status == "" {
		entry.Status = StatusPending
	}
	cp := *entry
	s.mu.Lock()
	s.logs = append(s.logs, &cp)
	s.mu.Unlock()
	return nil
}

func (s *MemoryLogStore) update(id string, fn func(*Log)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.logs {
		if l.ID == id {
			fn(l)
			return nil
		}
	}
	return fmt.Errorf("notify: log %s not found", id)
}

func (s *MemoryLogStore) MarkSent(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(l *Log) {
		l.Status = StatusSent
		l.SentAt = &at
		l.Error = ""
	})
}

func (s *MemoryLogStore) MarkFailed(_ context.Context, id string, reason string) error {
	return s.update(id, func(l *Log) {
		l.Status = StatusFailed
		l.Error = reason
	})
}

func (s *MemoryLogStore) List(_ context.Context, filter LogFilter) (LogPage, error) {
	filter = filter.normalized()
	s.mu.Lock()
	matched := make([]Log, 0, len(s.logs))
	for _, l := range s.logs {
		if filter.Type != "" && l.Type != filter.Type {
			continue
		}
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		matched = append(matched, *l)
	}
	s.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	start := (filter.Page - 1) * filter.Limit
	if start > total {
		start = total
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return LogPage{
		Logs:       matched[start:end],
		Total:      total,
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalPages: totalPages(total, filter.Limit),
	}, nil
}

var (
	_ LogStore = (*PostgresLogStore)(nil)
	_ LogStore = (*MemoryLogStore)(nil)
)
