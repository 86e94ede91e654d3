package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mernacademy/student-auth/internal/events"
	"github.com/mernacademy/student-auth/internal/notify"
)

// NotificationService reacts to account lifecycle events.
type NotificationService struct {
	dispatcher events.Dispatcher
	notifier   notify.Notifier
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, notifier notify.Notifier, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		notifier:   notifier,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventAccountRegistered, n.logEvent)
	n.dispatcher.Subscribe(events.EventEmailVerified, n.logEvent)
	n.dispatcher.Subscribe(events.EventPasswordReset, n.handlePasswordChanged)
	n.dispatcher.Subscribe(events.EventPasswordChanged, n.handlePasswordChanged)
}

func (n *NotificationService) logEvent(_ context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("event_id", event.ID),
		zap.String("account_id", event.AccountID),
		zap.Any("payload", event.Payload))
	return nil
}

// handlePasswordChanged tells the owner that their password was replaced.
// Delivery is best effort: the change itself already happened.
func (n *NotificationService) handlePasswordChanged(ctx context.Context, event events.Event) error {
	_ = n.logEvent(ctx, event)
	if event.Email == "" || n.notifier == nil {
		return nil
	}
	body := fmt.Sprintf("<p>The password for your account was changed at %s UTC.</p><p>If this was not you, reset your password immediately.</p>",
		event.Timestamp.UTC().Format("2006-01-02 15:04"))
	if err := n.notifier.Send(ctx, event.Email, "Your password was changed", body); err != nil {
		return fmt.Errorf("password change notice: %w", err)
	}
	return nil
}
