package email

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"github.com/fundacion-cms/content-scheduler/internal/scheduler"
	"github.com/resend/resend-go/v2"
)

type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogSender logs emails instead of sending them. Used in ENV=local.
type LogSender struct {
	logger *slog.Logger
}

func (s *LogSender) Send(_ context.Context, to, subject, body string) error {
	s.logger.Info("email (local dev)", "to", to, "subject", subject, "body", body)
	return nil
}

// ResendSender sends emails via the Resend API. Used in staging/production.
type ResendSender struct {
	client *resend.Client
	from   string
}

func (s *ResendSender) Send(ctx context.Context, to, subject, body string) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    body,
	}
	_, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// NewSender returns a LogSender for ENV=local, ResendSender otherwise.
func NewSender(env, apiKey, from string, logger *slog.Logger) Sender {
	if env == "local" {
		return &LogSender{logger: logger.With("component", "email")}
	}
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

// FailureAlerter emails an operator whenever the poller records a failed schedule.
type FailureAlerter struct {
	sender Sender
	to     string
}

func NewFailureAlerter(sender Sender, to string) *FailureAlerter {
	return &FailureAlerter{sender: sender, to: to}
}

func (a *FailureAlerter) ScheduleFailed(ctx context.Context, res scheduler.Result) error {
	subject := fmt.Sprintf("Programación fallida: %s %s", res.ContentType, res.ContentID)
	body := fmt.Sprintf(
		"<p>The scheduled <b>%s</b> of %s <b>%s</b> failed.</p><p>Reason: %s</p><p>Schedule: %s</p>",
		html.EscapeString(string(res.Action)),
		html.EscapeString(string(res.ContentType)),
		html.EscapeString(res.ContentID),
		html.EscapeString(res.Reason),
		html.EscapeString(res.ScheduleID),
	)
	if err := a.sender.Send(ctx, a.to, subject, body); err != nil {
		return fmt.Errorf("alert schedule %s: %w", res.ScheduleID, err)
	}
	return nil
}
