package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Sink receives telemetry events.
type Sink interface {
	Event(ctx context.Context, name string, payload map[string]any) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, name string, payload map[string]any) error

// Event implements Sink.
func (f SinkFunc) Event(ctx context.Context, name string, payload map[string]any) error {
	return f(ctx, name, payload)
}

// LogSink writes events to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

// Event implements Sink.
func (s LogSink) Event(ctx context.Context, name string, payload map[string]any) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "telemetry event", "event", name, "payload", payload)
	return nil
}

// envelope is the body posted by HTTPSink.
type envelope struct {
	ID      string         `json:"id"`
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload"`
	TS      time.Time      `json:"ts"`
}

// HTTPSink posts each event as JSON to a collector URL.
type HTTPSink struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewHTTPSink creates a sink posting to url. A nil client gets a 5 second
// timeout.
func NewHTTPSink(url string, client *http.Client) *HTTPSink {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPSink{url: url, client: client, now: time.Now}
}

// Event implements Sink.
func (s *HTTPSink) Event(ctx context.Context, name string, payload map[string]any) error {
	body, err := json.Marshal(envelope{
		ID:      uuid.NewString(),
		Event:   name,
		Payload: payload,
		TS:      s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telemetry request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("telemetry request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("telemetry collector: status %d", resp.StatusCode)
	}
	return nil
}
