// Package audit keeps an append-only record of who changed what.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Action is the kind of change recorded.
type Action string

const (
	ActionCreate        Action = "CREATE"
	ActionUpdate        Action = "UPDATE"
	ActionCheckIn       Action = "CHECK_IN"
	ActionStatusChange  Action = "STATUS_CHANGE"
	ActionLogin         Action = "LOGIN"
	ActionDeactivate    Action = "DEACTIVATE"
	ActionActivate      Action = "ACTIVATE"
	ActionPasswordReset Action = "PASSWORD_RESET"
)

// ResourceType names the audited entity.
type ResourceType string

const (
	ResourceAppointment ResourceType = "APPOINTMENT"
	ResourceUser        ResourceType = "USER"
)

// Event is one immutable audit row.
type Event struct {
	ID           string          `json:"id"`
	UserID       string          `json:"userId,omitempty"`
	Action       Action          `json:"action"`
	ResourceType ResourceType    `json:"resourceType"`
	ResourceID   string          `json:"resourceId"`
	Changes      json.RawMessage `json:"changes,omitempty"`
	IPAddress    string          `json:"ipAddress,omitempty"`
	UserAgent    string          `json:"userAgent,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Filter narrows List. Zero values mean "any".
type Filter struct {
	UserID       string
	Action       Action
	ResourceType ResourceType
	ResourceID   string
	From         time.Time
	To           time.Time
	Page         int
	Limit        int
}

// Page is one slice of audit rows.
type Page struct {
	Events     []Event `json:"logs"`
	Total      int     `json:"total"`
	Page       int     `json:"page"`
	Limit      int     `json:"limit"`
	TotalPages int     `json:"totalPages"`
}

type requestInfoKey struct{}

type requestInfo struct {
	ip        string
	userAgent string
}

// WithRequestInfo attaches client details picked up by Record.
func WithRequestInfo(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, requestInfo{ip: ip, userAgent: userAgent})
}

// Service writes and reads audit rows.
type Service struct {
	db *sql.DB
}

// NewService creates an audit service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Record inserts an event, filling ID and timestamp when empty.
func (s *Service) Record(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if info, ok := ctx.Value(requestInfoKey{}).(requestInfo); ok {
		if event.IPAddress == "" {
			event.IPAddress = info.ip
		}
		if event.UserAgent == "" {
			event.UserAgent = info.userAgent
		}
	}
	var changes any
	if len(event.Changes) > 0 {
		changes = []byte(event.Changes)
	}

	query := `
		INSERT INTO audit_logs (
			id, user_id, action, resource_type, resource_id,
			changes, ip_address, user_agent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		nullString(event.UserID),
		string(event.Action),
		string(event.ResourceType),
		event.ResourceID,
		changes,
		nullString(event.IPAddress),
		nullString(event.UserAgent),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}

// List returns events newest first.
func (s *Service) List(ctx context.Context, f Filter) (*Page, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 200 {
		f.Limit = 50
	}

	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Action != "" {
		add("action = $%d", string(f.Action))
	}
	if f.ResourceType != "" {
		add("resource_type = $%d", string(f.ResourceType))
	}
	if f.ResourceID != "" {
		add("resource_id = $%d", f.ResourceID)
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at <= $%d", f.To)
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("audit: count events: %w", err)
	}

	listArgs := append(append([]any{}, args...), f.Limit, (f.Page-1)*f.Limit)
	query := fmt.Sprintf(`
		SELECT id, COALESCE(user_id, ''), action, resource_type, resource_id,
		       changes, COALESCE(ip_address, ''), COALESCE(user_agent, ''), created_at
		FROM audit_logs %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)

	rows, err := s.db.QueryContext(ctx, query, listArgs...)
	if err != nil {
		return nil, fmt.Errorf("audit: list events: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		var (
			e       Event
			action  string
			rtype   string
			changes []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &action, &rtype, &e.ResourceID, &changes, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		e.Action = Action(action)
		e.ResourceType = ResourceType(rtype)
		if len(changes) > 0 {
			e.Changes = append(json.RawMessage(nil), changes...)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate events: %w", err)
	}

	return &Page{
		Events:     events,
		Total:      total,
		Page:       f.Page,
		Limit:      f.Limit,
		TotalPages: (total + f.Limit - 1) / f.Limit,
	}, nil
}

// Changes marshals before/after snapshots for Event.Changes.
func Changes(before, after any) json.RawMessage {
	data, err := json.Marshal(map[string]any{"before": before, "after": after})
	if err != nil {
		return nil
	}
	return data
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
