// Package notify delivers outbound account messages (verification and reset
// links, password change notices) to a recipient address.
package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mernacademy/student-auth/internal/config"
)

// Notifier sends a single message. A returned error means the message was
// not accepted for delivery.
type Notifier interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// New builds the notifier selected by cfg.Driver.
func New(cfg config.NotificationConfig, logger *zap.Logger) (Notifier, error) {
	switch cfg.Driver {
	case config.NotifyDriverSMTP:
		return NewSMTPNotifier(cfg), nil
	case config.NotifyDriverWebhook:
		return NewWebhookNotifier(cfg.WebhookURL, cfg.Timeout()), nil
	case config.NotifyDriverLog, "":
		return NewLogNotifier(logger), nil
	default:
		return nil, fmt.Errorf("unknown notifier driver %q", cfg.Driver)
	}
}

// headerSafe strips line breaks so user-supplied values cannot add headers.
func headerSafe(v string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(strings.TrimSpace(v))
}
