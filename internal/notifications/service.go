package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"embysub/internal/config"
	"embysub/internal/metrics"
)

const userAgent = "embysub/1.0"

// Event identifies an operator-facing event.
type Event string

const (
	EventRequestCreated   Event = "request_created"
	EventRequestApproved  Event = "request_approved"
	EventRequestRejected  Event = "request_rejected"
	EventRequestCompleted Event = "request_completed"
	EventError            Event = "error"
	EventTest             Event = "test"
)

// Payload carries event fields. Keys used: title, mediaType, season, user, context, error.
type Payload map[string]any

// Service publishes operator notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventRequestCreated:   cfg.Notifications.RequestCreated,
			EventRequestApproved:  cfg.Notifications.RequestApproved,
			EventRequestRejected:  cfg.Notifications.RequestRejected,
			EventRequestCompleted: cfg.Notifications.RequestCompleted,
			EventError:            true,
			EventTest:             true,
		},
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
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	err := n.send(ctx, msg)
	metrics.RecordNotification(string(event), err)
	return err
}

func format(event Event, payload Payload) (message, bool) {
	title := describeTitle(payload)
	switch event {
	case EventRequestCreated:
		body := fmt.Sprintf("📝 New request: %s", title)
		if user := payloadString(payload, "user"); user != "" {
			body += fmt.Sprintf("\nRequested by: %s", user)
		}
		return message{
			title: "Emby Subscriptions - New Request",
			body:  body,
			tags:  []string{"embysub", "request", "created"},
		}, true
	case EventRequestApproved:
		return message{
			title: "Emby Subscriptions - Approved",
			body:  fmt.Sprintf("✅ Ready for download: %s", title),
			tags:  []string{"embysub", "request", "approved"},
		}, true
	case EventRequestRejected:
		return message{
			title: "Emby Subscriptions - Rejected",
			body:  fmt.Sprintf("Rejected: %s", title),
			tags:  []string{"embysub", "request", "rejected"},
		}, true
	case EventRequestCompleted:
		return message{
			title:    "Emby Subscriptions - Available",
			body:     fmt.Sprintf("🎬 Now in Emby: %s", title),
			tags:     []string{"embysub", "request", "completed"},
			priority: "high",
		}, true
	case EventError:
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if label := payloadString(payload, "context"); label != "" {
			builder.WriteString(" with ")
			builder.WriteString(label)
		}
		builder.WriteString(": ")
		if detail := payloadString(payload, "error"); detail != "" {
			builder.WriteString(detail)
		} else {
			builder.WriteString("unknown")
		}
		return message{
			title:    "Emby Subscriptions - Error",
			body:     builder.String(),
			tags:     []string{"embysub", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Emby Subscriptions - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"embysub", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func describeTitle(payload Payload) string {
	title := payloadString(payload, "title")
	if title == "" {
		title = "unknown title"
	}
	var qualifiers []string
	if mediaType := payloadString(payload, "mediaType"); mediaType != "" {
		qualifiers = append(qualifiers, mediaType)
	}
	if season := payloadString(payload, "season"); season != "" {
		qualifiers = append(qualifiers, "season "+season)
	}
	if len(qualifiers) == 0 {
		return title
	}
	return fmt.Sprintf("%s (%s)", title, strings.Join(qualifiers, ", "))
}

func payloadString(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case *int:
		if v == nil {
			return ""
		}
		return fmt.Sprint(*v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
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
