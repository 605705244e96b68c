package notify

import "time"

// Channel is the delivery medium of a template.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
	ChannelPush  Channel = "PUSH"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush:
		return true
	}
	return false
}

// TemplateName identifies a stored template.
type TemplateName string

const (
	TemplateUserCredentials         TemplateName = "USER_CREDENTIALS"
	TemplateWelcomeEmail            TemplateName = "WELCOME_EMAIL"
	TemplatePasswordReset           TemplateName = "PASSWORD_RESET"
	TemplateAppointmentConfirmation TemplateName = "APPOINTMENT_CONFIRMATION"
	TemplateAppointmentReminder     TemplateName = "APPOINTMENT_REMINDER"
	TemplateQueueUpdate             TemplateName = "QUEUE_UPDATE"
)

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
)

// Recipient carries every address a template might need.
type Recipient struct {
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	PushToken string `json:"pushToken,omitempty"`
}

// Request asks the dispatcher to render and deliver one template.
type Request struct {
	Template  TemplateName      `json:"template"`
	Recipient Recipient         `json:"recipient"`
	Data      map[string]string `json:"data,omitempty"`
	Priority  Priority          `json:"priority,omitempty"`
}

// Status of a notification log row.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

// Log records one delivery attempt.
type Log struct {
	ID             string            `json:"id"`
	Type           Channel           `json:"type"`
	Template       TemplateName      `json:"template"`
	RecipientEmail string            `json:"recipientEmail,omitempty"`
	RecipientPhone string            `json:"recipientPhone,omitempty"`
	Status         Status            `json:"status"`
	Error          string            `json:"error,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	SentAt         *time.Time        `json:"sentAt,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// LogFilter narrows admin log listings. Page is 1-based.
type LogFilter struct {
	Type   Channel
	Status Status
	Page   int
	Limit  int
}

func (f LogFilter) normalized() LogFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	return f
}

// LogPage is one page of logs.
type LogPage struct {
	Logs       []Log `json:"logs"`
	Total      int   `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

func totalPages(total, limit int) int {
	if limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
