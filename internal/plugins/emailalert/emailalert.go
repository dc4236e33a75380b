// Package emailalert is an alert sink that buffers every record it
// receives and sends them as the body of one email on Done.
package emailalert

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwarden/cloudwarden/internal/notify"
	"github.com/cloudwarden/cloudwarden/internal/pluginloader"
	"github.com/cloudwarden/cloudwarden/internal/record"
	"github.com/rs/zerolog/log"
)

func init() {
	pluginloader.Register("plugins/emailalert.EmailAlert", New)
}

// EmailAlert accumulates a text rendering of every record it sees and
// emails the whole buffer once, when Done is called.
type EmailAlert struct {
	mu      sync.Mutex
	cfg     notify.Config
	subject string
	buffer  []string
}

// New constructs an EmailAlert from its descriptor params: host, port,
// username, password, from, to (list), mode, subject (default
// "cloudwarden alert").
func New(params map[string]interface{}) (interface{}, error) {
	cfg := notify.Config{Mode: notify.ModeSSL}
	if v, ok := params["host"].(string); ok {
		cfg.Host = v
	}
	if v, ok := params["port"].(int); ok {
		cfg.Port = v
	}
	if v, ok := params["username"].(string); ok {
		cfg.Username = v
	}
	if v, ok := params["password"].(string); ok {
		cfg.Password = v
	}
	if v, ok := params["from"].(string); ok {
		cfg.From = v
	}
	if v, ok := params["mode"].(string); ok {
		cfg.Mode = notify.Mode(v)
	}
	if v, ok := params["to"].([]interface{}); ok {
		for _, addr := range v {
			if s, ok := addr.(string); ok {
				cfg.To = append(cfg.To, s)
			}
		}
	}
	subject := "cloudwarden alert"
	if v, ok := params["subject"].(string); ok && v != "" {
		subject = v
	}
	return &EmailAlert{cfg: cfg, subject: subject}, nil
}

// Write implements plugin.AlertSink: it never fails, matching the
// reference plugin's unconditional buffering.
func (e *EmailAlert) Write(ctx context.Context, rec record.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buffer = append(e.buffer, fmt.Sprintf("%+v", rec))
	return nil
}

// Done implements plugin.AlertSink: sends the buffered records as one
// email.
func (e *EmailAlert) Done() {
	e.mu.Lock()
	body := strings.Join(e.buffer, "\n\n")
	e.mu.Unlock()

	if err := notify.SendMessage(e.cfg, e.subject, body); err != nil {
		// Done() has no error return (plugin.AlertSink contract), so a
		// delivery failure here can only be logged, not propagated.
		log.Error().Err(err).Msg("emailalert: send failed")
	}
}
