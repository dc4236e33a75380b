// Package notify sends the start/end notifications the audit runner and
// job supervisor emit around a run (spec.md §6).
package notify

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// Mode selects how the SMTP connection is secured.
type Mode string

const (
	ModeSSL      Mode = "ssl"
	ModeSTARTTLS Mode = "starttls"
	ModeDisable  Mode = "disable"
)

// Config carries the `email` configuration key.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	Mode     Mode
}

// Notifier emits the start/end audit messages. disabledNotifier satisfies
// it as a no-op for tests and for when `email` is unset.
type Notifier interface {
	Start(subject string, at time.Time) error
	End(subject string, startedAt, endedAt time.Time) error
}

// New builds a Notifier from cfg. An empty Host, or Mode == ModeDisable,
// yields a no-op notifier.
func New(cfg Config) Notifier {
	if cfg.Mode == ModeDisable || cfg.Host == "" {
		return disabledNotifier{}
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeSSL
	}
	return &smtpNotifier{cfg: cfg}
}

// SendMessage sends one arbitrary email through cfg, for plugins (such as
// the email alert sink) that need raw SMTP delivery rather than the
// start/end notification shape. An empty Host or Mode == ModeDisable is a
// no-op.
func SendMessage(cfg Config, subject, body string) error {
	if cfg.Mode == ModeDisable || cfg.Host == "" {
		return nil
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeSSL
	}
	return (&smtpNotifier{cfg: cfg}).send(subject, body)
}

type disabledNotifier struct{}

func (disabledNotifier) Start(string, time.Time) error          { return nil }
func (disabledNotifier) End(string, time.Time, time.Time) error { return nil }

type smtpNotifier struct {
	cfg Config
}

func (n *smtpNotifier) Start(subject string, at time.Time) error {
	body := fmt.Sprintf("%s started at %s", subject, at.Format(time.RFC1123))
	return n.send(fmt.Sprintf("[cloudwarden] %s: audit started", subject), body)
}

func (n *smtpNotifier) End(subject string, startedAt, endedAt time.Time) error {
	d := endedAt.Sub(startedAt)
	body := fmt.Sprintf("%s started at %s, ended at %s, duration %s",
		subject, startedAt.Format(time.RFC1123), endedAt.Format(time.RFC1123), formatDuration(d))
	return n.send(fmt.Sprintf("[cloudwarden] %s: audit finished", subject), body)
}

// formatDuration renders d as "HH h MM m SS s" per spec.md §6.
func formatDuration(d time.Duration) string {
	total := int(d.Round(time.Second).Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d h %02d m %02d s", h, m, s)
}

func (n *smtpNotifier) send(subject, body string) error {
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	msg := buildMessage(n.cfg.From, n.cfg.To, subject, body)

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	switch n.cfg.Mode {
	case ModeSTARTTLS:
		return n.sendSTARTTLS(addr, auth, msg)
	default:
		return n.sendSSL(addr, auth, msg)
	}
}

func (n *smtpNotifier) sendSSL(addr string, auth smtp.Auth, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: n.cfg.Host})
	if err != nil {
		return fmt.Errorf("notify: dial %s: %w", addr, err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		return fmt.Errorf("notify: smtp handshake: %w", err)
	}
	defer client.Close()

	return deliver(client, auth, n.cfg.From, n.cfg.To, msg)
}

func (n *smtpNotifier) sendSTARTTLS(addr string, auth smtp.Auth, msg []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("notify: dial %s: %w", addr, err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: n.cfg.Host}); err != nil {
			return fmt.Errorf("notify: starttls: %w", err)
		}
	}

	return deliver(client, auth, n.cfg.From, n.cfg.To, msg)
}

func deliver(client *smtp.Client, auth smtp.Auth, from string, to []string, msg []byte) error {
	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("notify: auth: %w", err)
		}
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("notify: mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("notify: rcpt to %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("notify: data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("notify: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("notify: close body: %w", err)
	}
	return client.Quit()
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}
