package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"filedrop/internal/config"
)

const userAgent = "FileDrop-Go/0.1.0"

// Event names a notification kind.
type Event string

const (
	EventUploadReceived  Event = "upload_received"
	EventBatchDownloaded Event = "batch_downloaded"
	EventEndpointFailing Event = "endpoint_failing"
	EventTest            Event = "test"
)

// Payload carries event fields. Values are formatted with fmt.Sprint.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service when a topic is configured and a
// no-op service otherwise.
func NewService(cfg config.Notifications) Service {
	topic := strings.TrimSpace(cfg.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := format(event, payload)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventUploadReceived:
		return message{
			title: "FileDrop - Upload Received",
			body: fmt.Sprintf("📥 %d file(s) queued (%s)",
				intValue(payload, "count"), humanize.IBytes(uint64(intValue(payload, "bytes")))),
			tags: []string{"filedrop", "upload"},
		}, true
	case EventBatchDownloaded:
		return message{
			title: "FileDrop - Files Downloaded",
			body: fmt.Sprintf("📦 %d file(s) from %s (%s)",
				intValue(payload, "files"), text(payload, "endpoint"), humanize.IBytes(uint64(intValue(payload, "bytes")))),
			tags: []string{"filedrop", "sync", "completed"},
		}, true
	case EventEndpointFailing:
		var b strings.Builder
		fmt.Fprintf(&b, "⚠️ %s failed %d polls in a row", text(payload, "endpoint"), intValue(payload, "consecutive_errors"))
		if detail := text(payload, "error"); detail != "" {
			fmt.Fprintf(&b, "\nError: %s", detail)
		}
		return message{
			title:    "FileDrop - Endpoint Failing",
			body:     b.String(),
			tags:     []string{"filedrop", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "FileDrop - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"filedrop", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func text(payload Payload, key string) string {
	if v, ok := payload[key]; ok && v != nil {
		return strings.TrimSpace(fmt.Sprint(v))
	}
	return ""
}

func intValue(payload Payload, key string) int64 {
	switch v := payload[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case uint64:
		return int64(v)
	default:
		return 0
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

// Noop returns a service that drops every event.
func Noop() Service { return noopService{} }
