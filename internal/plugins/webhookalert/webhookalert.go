// Package webhookalert is an alert sink that buffers the event records it
// receives during a run and, on Done, POSTs them as a single JSON batch
// to a webhook endpoint — the same buffer-then-send-on-Done shape as
// alerts/emailalert.py, delivered over HTTP with OAuth2 client-credentials
// authentication instead of SMTP.
package webhookalert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/rs/dnscache"
	"github.com/rs/zerolog/log"

	"github.com/cloudwarden/cloudwarden/internal/pluginloader"
	"github.com/cloudwarden/cloudwarden/internal/record"
)

func init() {
	pluginloader.Register("plugins/webhookalert.WebhookAlert", New)
}

// WebhookAlert buffers every non-control record it receives and, on
// Done, POSTs the buffer as a JSON array to url. An empty url makes Done
// a no-op.
type WebhookAlert struct {
	mu      sync.Mutex
	url     string
	client  *http.Client
	buffer  []record.Record
	timeout time.Duration
}

// New constructs a WebhookAlert from its descriptor params: url (string,
// required for delivery), client_id/client_secret/token_url (strings,
// optional — when all three are set, requests are authenticated via
// OAuth2 client-credentials), timeout_seconds (int, default 30).
func New(params map[string]interface{}) (interface{}, error) {
	w := &WebhookAlert{timeout: 30 * time.Second}
	if v, ok := params["url"].(string); ok {
		w.url = v
	}
	if v, ok := intParam(params, "timeout_seconds"); ok && v > 0 {
		w.timeout = time.Duration(v) * time.Second
	}

	transport := dnsCachedTransport()

	clientID, _ := params["client_id"].(string)
	clientSecret, _ := params["client_secret"].(string)
	tokenURL, _ := params["token_url"].(string)

	if clientID != "" && clientSecret != "" && tokenURL != "" {
		cfg := clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Transport: transport})
		w.client = cfg.Client(ctx)
	} else {
		w.client = &http.Client{Timeout: w.timeout, Transport: transport}
	}
	return w, nil
}

// dnsCachedTransport returns an http.Transport that resolves hosts through
// an in-process DNS cache, so a slow or flaky resolver does not add
// latency to every webhook delivery.
func dnsCachedTransport() *http.Transport {
	resolver := &dnscache.Resolver{}
	dialer := &net.Dialer{}
	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			var lastErr error
			for _, ip := range ips {
				conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
				if err == nil {
					return conn, nil
				}
				lastErr = err
			}
			return nil, fmt.Errorf("webhookalert: dial %s: %w", addr, lastErr)
		},
	}
}

func intParam(params map[string]interface{}, key string) (int, bool) {
	if v, ok := params[key].(int); ok {
		return v, true
	}
	if v, ok := params[key].(float64); ok {
		return int(v), true
	}
	return 0, false
}

// Write implements plugin.Sink.
func (w *WebhookAlert) Write(ctx context.Context, rec record.Record) error {
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
func (w *WebhookAlert) Done() {
	w.mu.Lock()
	buffered := w.buffer
	w.buffer = nil
	w.mu.Unlock()

	if w.url == "" || len(buffered) == 0 {
		return
	}

	if err := w.deliver(buffered); err != nil {
		log.Error().Err(err).Msg("webhookalert: delivery failed")
	}
}

func (w *WebhookAlert) deliver(records []record.Record) error {
	body, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("webhookalert: marshal: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhookalert: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhookalert: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhookalert: server returned status %d", resp.StatusCode)
	}
	return nil
}
