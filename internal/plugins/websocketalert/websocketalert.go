// Package websocketalert is an alert sink that buffers the event records
// it receives during a run and, on Done, streams them one message at a
// time over a websocket connection to a live dashboard or notification
// relay — the same buffer-then-send-on-Done shape as alerts/emailalert.py,
// delivered as a push stream via gorilla/websocket instead of SMTP.
package websocketalert

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/cloudwarden/cloudwarden/internal/pluginloader"
	"github.com/cloudwarden/cloudwarden/internal/record"
)

func init() {
	pluginloader.Register("plugins/websocketalert.WebSocketAlert", New)
}

// Dialer is the subset of websocket.Dialer that WebSocketAlert depends
// on; tests supply a fake to avoid a real network dial.
type Dialer interface {
	Dial(url string, header map[string][]string) (Conn, error)
}

// Conn is the subset of *websocket.Conn that WebSocketAlert depends on.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type gorillaDialer struct{}

func (gorillaDialer) Dial(url string, header map[string][]string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	return conn, err
}

// WebSocketAlert buffers every non-control record it receives and, on
// Done, dials url once and writes each buffered record as a JSON text
// message.
type WebSocketAlert struct {
	mu      sync.Mutex
	url     string
	dialer  Dialer
	buffer  []record.Record
	timeout time.Duration
}

// New constructs a WebSocketAlert from its descriptor params: url
// (string, required for delivery), timeout_seconds (int, default 10). The
// timeout is stored on the WebSocketAlert but is not applied to the dial
// or to message writes.
func New(params map[string]interface{}) (interface{}, error) {
	w := &WebSocketAlert{dialer: gorillaDialer{}, timeout: 10 * time.Second}
	if v, ok := params["url"].(string); ok {
		w.url = v
	}
	if v, ok := params["timeout_seconds"].(int); ok && v > 0 {
		w.timeout = time.Duration(v) * time.Second
	} else if v, ok := params["timeout_seconds"].(float64); ok && v > 0 {
		w.timeout = time.Duration(v) * time.Second
	}
	return w, nil
}

// Write implements plugin.Sink.
func (w *WebSocketAlert) Write(ctx context.Context, rec record.Record) error {
	if rec.IsControl() {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buffer = append(w.buffer, rec)
	return nil
}

// Done implements plugin.Sink. A delivery failure can only be logged,
// since Done has no error return.
func (w *WebSocketAlert) Done() {
	w.mu.Lock()
	buffered := w.buffer
	w.buffer = nil
	w.mu.Unlock()

	if w.url == "" || len(buffered) == 0 {
		return
	}

	if err := w.deliver(buffered); err != nil {
		log.Error().Err(err).Msg("websocketalert: delivery failed")
	}
}

func (w *WebSocketAlert) deliver(records []record.Record) error {
	conn, err := w.dialer.Dial(w.url, nil)
	if err != nil {
		return fmt.Errorf("websocketalert: dial: %w", err)
	}
	defer conn.Close()

	for _, rec := range records {
		body, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("websocketalert: marshal: %w", err)
		}
		if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
			return fmt.Errorf("websocketalert: write: %w", err)
		}
	}
	return nil
}
