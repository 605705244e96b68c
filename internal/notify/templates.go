package notify

import (
	"context"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/waylio/waylio-platform/internal/apperr"
)

// Template is a named message body with {{key}} placeholders.
type Template struct {
	Name      TemplateName `json:"name"`
	Type      Channel      `json:"type"`
	Subject   string       `json:"subject,omitempty"`
	Body      string       `json:"body"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Render substitutes placeholders. Keys missing from data are left as-is.
func Render(text string, data map[string]string) string {
	if len(data) == 0 {
		return text
	}
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		if v, ok := data[key]; ok {
			return v
		}
		return match
	})
}

// Validate checks an admin-supplied template.
func (t Template) Validate() error {
	fields := map[string]string{}
	if t.Name == "" {
		fields["name"] = "name is required"
	}
	if !t.Type.Valid() {
		fields["type"] = "type must be EMAIL, SMS or PUSH"
	}
	if t.Body == "" {
		fields["body"] = "body is required"
	}
	if t.Type == ChannelEmail && t.Subject == "" {
		fields["subject"] = "subject is required for email templates"
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid template", fields)
	}
	return nil
}

// ErrTemplateNotFound is returned for unknown template names.
var ErrTemplateNotFound = apperr.NotFound("TEMPLATE_NOT_FOUND", "notification template not found")

// TemplateStore is an in-memory template registry.
type TemplateStore struct {
	mu        sync.RWMutex
	templates map[TemplateName]Template
}

// NewTemplateStore returns a store seeded with the default templates.
func NewTemplateStore() *TemplateStore {
	s := &TemplateStore{templates: make(map[TemplateName]Template)}
	now := time.Now().UTC()
	for _, t := range DefaultTemplates() {
		t.UpdatedAt = now
		s.templates[t.Name] = t
	}
	return s
}

func (s *TemplateStore) Get(_ context.Context, name TemplateName) (Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[name]
	if !ok {
		return Template{}, ErrTemplateNotFound
	}
	return t, nil
}

func (s *TemplateStore) List(_ context.Context) []Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Template, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Upsert validates and stores a template, replacing any existing one of the same name.
func (s *TemplateStore) Upsert(_ context.Context, t Template) (Template, error) {
	if err := t.Validate(); err != nil {
		return Template{}, err
	}
	t.UpdatedAt = time.Now().UTC()
	s.mu.Lock()
	s.templates[t.Name] = t
	s.mu.Unlock()
	return t, nil
}

// DefaultTemplates are the templates every deployment starts with.
func DefaultTemplates() []Template {
	return []Template{
		{
			Name:    TemplateUserCredentials,
			Type:    ChannelEmail,
			Subject: "Your Waylio account",
			Body: "Hello {{firstName}},\n\nAn account has been created for you.\n" +
				"ID: {{uniqueId}}\nTemporary password: {{password}}\n\n" +
				"Sign in at {{loginUrl}} and change your password.",
		},
		{
			Name:    TemplateWelcomeEmail,
			Type:    ChannelEmail,
			Subject: "Welcome to Waylio",
			Body:    "Hello {{firstName}},\n\nYour patient account is ready. Sign in at {{loginUrl}}.",
		},
		{
			Name:    TemplatePasswordReset,
			Type:    ChannelEmail,
			Subject: "Your password was reset",
			Body: "Hello {{firstName}},\n\nAn administrator reset your password.\n" +
				"Temporary password: {{password}}\n\n" +
				"Sign in at {{loginUrl}} and change your password.",
		},
		{
			Name:    TemplateAppointmentConfirmation,
			Type:    ChannelEmail,
			Subject: "Appointment confirmed",
			Body:    "Hello {{patientName}},\n\nYour appointment with Dr. {{doctorName}} is booked for {{scheduledTime}}.",
		},
		{
			Name: TemplateAppointmentReminder,
			Type: ChannelSMS,
			Body: "Reminder: appointment with Dr. {{doctorName}} on {{scheduledTime}}.",
		},
		{
			Name: TemplateQueueUpdate,
			Type: ChannelPush,
			Body: "You are number {{position}} in the queue. Estimated wait: {{estimatedWait}} minutes.",
		},
	}
}
