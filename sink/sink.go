// Package sink posts normalized event records to the ingest endpoint.
// Delivery is fire-and-forget from the relay's point of view: one attempt per
// event, bounded by the client timeout; a failure is the caller's to log and
// count, never retried or buffered here.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/ripple-relay/events"
	"github.com/onnwee/ripple-relay/telemetry"
)

// DefaultTimeout bounds a single forward attempt.
const DefaultTimeout = 5 * time.Second

// Client posts events to the ingest endpoint.
type Client struct {
	URL        string
	Token      string
	HTTPClient *http.Client
}

// New returns a Client with a per-attempt timeout.
func New(url, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{URL: url, Token: token, HTTPClient: &http.Client{Timeout: timeout}}
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// Send posts one event. Any 2xx status is success; anything else returns an
// error carrying the status and a bounded excerpt of the response body.
func (c *Client) Send(ctx context.Context, ev events.Event) error {
	ctx, span := telemetry.StartSpan(ctx, "sink", "forward "+string(ev.Type))
	defer span.End()

	start := time.Now()
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.http().Do(req)
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("post event: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	telemetry.ObserveForwardDuration(string(ev.Type), time.Since(start).Seconds())
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("sink status %d: %s", resp.StatusCode, bytes.TrimSpace(excerpt))
		telemetry.RecordError(span, err)
		return err
	}
	return nil
}
