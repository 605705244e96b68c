package notify

import (
	"context"

	"github.com/waylio/waylio-platform/pkg/logging"
)

// SMSSender delivers text messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// PushSender delivers mobile push notifications.
type PushSender interface {
	SendPush(ctx context.Context, token, title, body string) error
}

// LogSMSSender records the message in the log. No gateway is wired yet.
type LogSMSSender struct {
	logger *logging.Logger
}

func NewLogSMSSender(logger *logging.Logger) *LogSMSSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSMSSender{logger: logger}
}

func (s *LogSMSSender) SendSMS(ctx context.Context, to, body string) error {
	s.logger.Info("sms sender: would send sms", "to", to, "length", len(body))
	return nil
}

// LogPushSender records the push in the log.
type LogPushSender struct {
	logger *logging.Logger
}

func NewLogPushSender(logger *logging.Logger) *LogPushSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogPushSender{logger: logger}
}

func (s *LogPushSender) SendPush(ctx context.Context, token, title, body string) error {
	s.logger.Info("push sender: would send push", "title", title, "length", len(body))
	return nil
}

var (
	_ SMSSender  = (*LogSMSSender)(nil)
	_ PushSender = (*LogPushSender)(nil)
)
