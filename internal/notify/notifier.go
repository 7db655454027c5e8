// Package notify delivers escalation notices to operations staff.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

// Notifier delivers a human-readable alert. Implementations must treat
// delivery as best-effort; callers log failures and never roll back state.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// EscalationSubject builds the standard subject line for a course escalation.
func EscalationSubject(courseName string) string {
	return fmt.Sprintf("Course not started: %s", courseName)
}

// EscalationBody builds the standard body for a course escalation. joinBy is
// the wall-clock instant the host was expected to have joined by.
func EscalationBody(courseName, host, scheduledTime, joinBy string) string {
	return fmt.Sprintf("Course %q (host: %s) has not started. Scheduled time: %s, expected join by %s.",
		courseName, host, scheduledTime, joinBy)
}

// LogNotifier writes notices to the log. Default when no mailbox is
// configured.
type LogNotifier struct {
	log *zap.Logger
}

// NewLog creates a log-backed notifier.
func NewLog(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify logs the notice at warn level.
func (n *LogNotifier) Notify(_ context.Context, subject, body string) error {
	n.log.Warn("escalation notice", zap.String("subject", subject), zap.String("body", body))
	return nil
}

// SMTPNotifier mails notices to a fixed operations mailbox.
type SMTPNotifier struct {
	host string
	addr string
	auth smtp.Auth
	from string
	to   string
}

// NewSMTP creates a mail-backed notifier. Auth is skipped when user is empty.
func NewSMTP(host string, port int, user, password, from, to string) *SMTPNotifier {
	var auth smtp.Auth
	if user != "" {
		auth = smtp.PlainAuth("", user, password, host)
	}
	return &SMTPNotifier{
		host: host,
		addr: fmt.Sprintf("%s:%d", host, port),
		auth: auth,
		from: from,
		to:   to,
	}
}

// Notify sends one message to the operations mailbox. The dial and the whole
// SMTP conversation are bounded by ctx.
func (n *SMTPNotifier) Notify(ctx context.Context, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + n.from,
		"To: " + n.to,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", n.addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return err
		}
	}

	client, err := smtp.NewClient(conn, n.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: n.host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if n.auth != nil {
		if err := client.Auth(n.auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(n.from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(n.to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		w.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}
	return client.Quit()
}
