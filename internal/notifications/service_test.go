package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"embysub/internal/config"
	"embysub/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventRequestCompleted, notifications.Payload{"title": "Example"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	season := 2
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:          "request created",
			event:         notifications.EventRequestCreated,
			payload:       notifications.Payload{"title": "Severance", "mediaType": "tv", "season": &season, "user": "alice"},
			expectTitle:   "Emby Subscriptions - New Request",
			expectMessage: "📝 New request: Severance (tv, season 2)\nRequested by: alice",
			expectTags:    "embysub,request,created",
		},
		{
			name:          "request approved",
			event:         notifications.EventRequestApproved,
			payload:       notifications.Payload{"title": "Arrival", "mediaType": "movie"},
			expectTitle:   "Emby Subscriptions - Approved",
			expectMessage: "✅ Ready for download: Arrival (movie)",
			expectTags:    "embysub,request,approved",
		},
		{
			name:           "request completed",
			event:          notifications.EventRequestCompleted,
			payload:        notifications.Payload{"title": "Fight Club"},
			expectTitle:    "Emby Subscriptions - Available",
			expectMessage:  "🎬 Now in Emby: Fight Club",
			expectTags:     "embysub,request,completed",
			expectPriority: "high",
		},
		{
			name:           "error",
			event:          notifications.EventError,
			payload:        notifications.Payload{"context": "reconcile", "error": "database is locked"},
			expectTitle:    "Emby Subscriptions - Error",
			expectMessage:  "❌ Error with reconcile: database is locked",
			expectTags:     "embysub,error,alert",
			expectPriority: "high",
		},
		{
			name:           "test",
			event:          notifications.EventTest,
			expectTitle:    "Emby Subscriptions - Test",
			expectMessage:  "🧪 Notification system test",
			expectTags:     "embysub,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresDisabledEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.RequestCreated = false
	cfg.Notifications.RequestApproved = false

	svc := notifications.NewService(&cfg)
	suppressed := []notifications.Event{
		notifications.EventRequestCreated,
		notifications.EventRequestApproved,
		notifications.EventRequestRejected,
		notifications.Event("unknown"),
	}
	for _, event := range suppressed {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"title": "ignored"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceSendsRejectionsWhenEnabled(t *testing.T) {
	var got []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = append(got, r.Header.Get("Title")+"|"+string(body))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	if cfg.Notifications.RequestRejected {
		t.Fatal("rejection pushes should be off by default")
	}
	cfg.Notifications.RequestRejected = true

	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventRequestRejected, notifications.Payload{"title": "Cats"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(got) != 1 || got[0] != "Emby Subscriptions - Rejected|Rejected: Cats" {
		t.Fatalf("unexpected rejection push %q", got)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err == nil {
		t.Fatal("expected error for 429 response")
	}
}
