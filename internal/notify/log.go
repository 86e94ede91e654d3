package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes messages to the application log instead of delivering
// them. Used in development.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, recipient, subject, body string) error {
	n.logger.Info("notification",
		zap.String("recipient", recipient),
		zap.String("subject", subject),
		zap.String("body", body))
	return nil
}
