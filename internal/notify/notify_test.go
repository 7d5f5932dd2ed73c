package notify

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebhookNotifier_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(server.URL)
	err := notifier.Send(Notification{
		Title:   "Task complete",
		Message: "briefing generated",
		Type:    NotifySuccess,
		TaskID:  "task-1",
	})
	if err != nil {
		t.Errorf("Send failed: %v", err)
	}
}

func TestWebhookNotifier_Disabled(t *testing.T) {
	notifier := NewWebhookNotifier("")
	if err := notifier.Send(Notification{Title: "ignored"}); err != nil {
		t.Errorf("disabled notifier should not error, got %v", err)
	}
}

func TestWebhookNotifier_NonOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	notifier := NewWebhookNotifier(server.URL)
	if err := notifier.Send(Notification{Title: "x"}); err == nil {
		t.Error("expected error on non-200 response")
	}
}

func TestNotificationTypeColors(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifySuccess, "good"},
		{NotifyWarning, "warning"},
		{NotifyError, "danger"},
		{NotifyInfo, "#439FE0"},
	}

	for _, tt := range tests {
		if got := webhookColor(tt.typ); got != tt.want {
			t.Errorf("webhookColor(%d) = %q, want %q", tt.typ, got, tt.want)
		}
	}
}

func TestMultiNotifier_SendsAll(t *testing.T) {
	var count int
	fn := notifierFunc(func(n Notification) error {
		count++
		return nil
	})

	multi := NewMultiNotifier(fn, fn, NoopNotifier{})
	if err := multi.Send(Notification{Title: "x"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if count != 2 {
		t.Errorf("got %d sends, want 2", count)
	}
}

type notifierFunc func(Notification) error

func (f notifierFunc) Send(n Notification) error { return f(n) }
