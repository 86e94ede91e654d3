package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
)

type webhookPayload struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// WebhookNotifier hands messages to an external delivery service as JSON.
type WebhookNotifier struct {
	url     string
	timeout time.Duration
}

func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{url: url, timeout: timeout}
}

func (n *WebhookNotifier) Send(ctx context.Context, recipient, subject, body string) error {
	timeout := n.timeout
	if deadline, ok := ctx.Deadline(); ok {
		left := time.Until(deadline)
		if left <= 0 {
			return context.DeadlineExceeded
		}
		if timeout <= 0 || left < timeout {
			timeout = left
		}
	}

	agent := fiber.Post(n.url).JSON(webhookPayload{
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
	})
	if timeout > 0 {
		agent.Timeout(timeout)
	}

	code, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("webhook send: %w", errors.Join(errs...))
	}
	if code < 200 || code >= 300 {
		return fmt.Errorf("webhook send: unexpected status %d", code)
	}
	return nil
}
