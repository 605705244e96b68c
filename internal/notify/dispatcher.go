package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/waylio/waylio-platform/internal/apperr"
	"github.com/waylio/waylio-platform/internal/observability/metrics"
	"github.com/waylio/waylio-platform/pkg/logging"
)

// TemplateSource resolves templates by name.
type TemplateSource interface {
	Get(ctx context.Context, name TemplateName) (Template, error)
}

// Dispatcher renders templates and routes them to the sender for their channel.
type Dispatcher struct {
	templates TemplateSource
	logs      LogStore
	email     EmailSender
	sms       SMSSender
	push      PushSender
	metrics   *metrics.NotificationMetrics
	logger    *logging.Logger
	now       func() time.Time

	timeout  time.Duration
	inFlight sync.WaitGroup
}

const defaultNotifyTimeout = 15 * time.Second

// NewDispatcher wires a dispatcher. Missing senders fall back to logging stubs.
func NewDispatcher(templates TemplateSource, logs LogStore, email EmailSender, sms SMSSender, push PushSender, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	if templates == nil {
		templates = NewTemplateStore()
	}
	if logs == nil {
		logs = NewMemoryLogStore()
	}
	if email == nil {
		email = NewStubEmailSender(logger)
	}
	if sms == nil {
		sms = NewLogSMSSender(logger)
	}
	if push == nil {
		push = NewLogPushSender(logger)
	}
	return &Dispatcher{
		templates: templates,
		logs:      logs,
		email:     email,
		sms:       sms,
		push:      push,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		timeout:   defaultNotifyTimeout,
	}
}

// WithTimeout bounds each background delivery started by Notify.
func (d *Dispatcher) WithTimeout(timeout time.Duration) *Dispatcher {
	if timeout > 0 {
		d.timeout = timeout
	}
	return d
}

// WithMetrics records dispatch outcomes.
func (d *Dispatcher) WithMetrics(m *metrics.NotificationMetrics) *Dispatcher {
	d.metrics = m
	return d
}

// Send renders req and delivers it, recording the attempt. Delivery errors are returned.
func (d *Dispatcher) Send(ctx context.Context, req Request) (*Log, error) {
	tmpl, err := d.templates.Get(ctx, req.Template)
	if err != nil {
		return nil, err
	}
	if err := validateRecipient(tmpl.Type, req.Recipient); err != nil {
		return nil, err
	}

	subject := Render(tmpl.Subject, req.Data)
	body := Render(tmpl.Body, req.Data)

	priority := req.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	meta := make(map[string]string, len(req.Data)+1)
	for k, v := range req.Data {
		if k == "password" {
			continue
		}
		meta[k] = v
	}
	meta["priority"] = string(priority)

	entry := &Log{
		Type:           tmpl.Type,
		Template:       tmpl.Name,
		RecipientEmail: req.Recipient.Email,
		RecipientPhone: req.Recipient.Phone,
		Status:         StatusPending,
		Metadata:       meta,
		CreatedAt:      d.now(),
	}
	if err := d.logs.Create(ctx, entry); err != nil {
		return nil, err
	}

	sendErr := d.deliver(ctx, tmpl.Type, req.Template, req.Recipient, subject, body)
	if sendErr != nil {
		entry.Status = StatusFailed
		entry.Error = sendErr.Error()
		d.metrics.ObserveDispatch(string(tmpl.Type), string(tmpl.Name), string(StatusFailed))
		// A timed-out delivery still records its failure.
		if err := d.logs.MarkFailed(context.WithoutCancel(ctx), entry.ID, sendErr.Error()); err != nil {
			d.logger.Warn("notify: mark failed", "error", err, "log_id", entry.ID)
		}
		return entry, fmt.Errorf("notify: send %s: %w", tmpl.Name, sendErr)
	}

	sentAt := d.now()
	entry.Status = StatusSent
	entry.SentAt = &sentAt
	d.metrics.ObserveDispatch(string(tmpl.Type), string(tmpl.Name), string(StatusSent))
	if err := d.logs.MarkSent(ctx, entry.ID, sentAt); err != nil {
		d.logger.Warn("notify: mark sent", "error", err, "log_id", entry.ID)
	}
	return entry, nil
}

// Notify delivers req in the background for callers that must not wait on or fail
// because of delivery. It outlives ctx cancellation, bounded by the dispatcher timeout.
func (d *Dispatcher) Notify(ctx context.Context, req Request) {
	d.inFlight.Add(1)
	go func() {
		defer d.inFlight.Done()
		// The caller's request may finish first; keep its values but not its deadline.
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		if _, err := d.Send(sendCtx, req); err != nil {
			d.logger.Warn("notification not delivered", "error", err, "template", string(req.Template))
		}
	}()
}

// Wait blocks until background deliveries finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ch Channel, name TemplateName, to Recipient, subject, body string) error {
	switch ch {
	case ChannelEmail:
		return d.email.Send(ctx, EmailMessage{To: to.Email, ToName: to.Name, Subject: subject, Body: body, Template: name})
	case ChannelSMS:
		return d.sms.SendSMS(ctx, to.Phone, body)
	case ChannelPush:
		return d.push.SendPush(ctx, to.PushToken, subject, body)
	default:
		return fmt.Errorf("unsupported channel %q", ch)
	}
}

func validateRecipient(ch Channel, to Recipient) error {
	switch ch {
	case ChannelEmail:
		if to.Email == "" {
			return apperr.Validation("recipient email required", map[string]string{"recipient.email": "required for email templates"})
		}
	case ChannelSMS:
		if to.Phone == "" {
			return apperr.Validation("recipient phone required", map[string]string{"recipient.phone": "required for sms templates"})
		}
	case ChannelPush:
		if to.PushToken == "" {
			return apperr.Validation("recipient push token required", map[string]string{"recipient.pushToken": "required for push templates"})
		}
	}
	return nil
}
