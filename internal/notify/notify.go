package notify

import (
	"context"
	"log/slog"
	"strings"
)

// Notification announces a published report.
type Notification struct {
	CaseID     string
	Title      string
	ReportURL  string
	AlertLevel string
}

// Notifier distributes a report. Failures are reported to the caller, which
// decides whether they matter.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier records the email and the incident ticket in the log instead of
// sending them.
type LogNotifier struct {
	Recipients []string
	Logger     *slog.Logger
}

func (l LogNotifier) Notify(ctx context.Context, n Notification) error {
	log := l.Logger
	if log == nil {
		log = slog.Default()
	}
	log.InfoContext(ctx, "notify.email",
		"to", strings.Join(l.Recipients, ","),
		"case_id", n.CaseID,
		"report_url", n.ReportURL,
	)
	log.InfoContext(ctx, "notify.ticket",
		"title", n.Title,
		"case_id", n.CaseID,
		"alert_level", n.AlertLevel,
	)
	return nil
}

// Nop drops every notification.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) error { return nil }
