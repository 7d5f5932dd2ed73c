package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookNotifier posts notifications to a Slack-compatible webhook URL.
type WebhookNotifier struct {
	webhookURL string
	client     *http.Client
}

// webhookMessage is the posted payload
type webhookMessage struct {
	Text        string              `json:"text"`
	Attachments []webhookAttachment `json:"attachments,omitempty"`
}

type webhookAttachment struct {
	Color  string `json:"color"`
	Title  string `json:"title,omitempty"`
	Text   string `json:"text"`
	Footer string `json:"footer,omitempty"`
}

// NewWebhookNotifier creates a webhook notifier. An empty URL disables it.
func NewWebhookNotifier(webhookURL string) *WebhookNotifier {
	return &WebhookNotifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func webhookColor(t NotificationType) string {
	switch t {
	case NotifySuccess:
		return "good"
	case NotifyWarning:
		return "warning"
	case NotifyError:
		return "danger"
	default:
		return "#439FE0"
	}
}

// Send posts a notification to the webhook
func (w *WebhookNotifier) Send(n Notification) error {
	if w.webhookURL == "" {
		return nil // Disabled
	}

	msg := webhookMessage{
		Text: n.Title,
		Attachments: []webhookAttachment{
			{
				Color:  webhookColor(n.Type),
				Text:   n.Message,
				Footer: "corkboard",
			},
		},
	}
	if n.TaskID != "" {
		msg.Attachments[0].Title = n.TaskID
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	resp, err := w.client.Post(w.webhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
