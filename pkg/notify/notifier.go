// Package notify provides Notifier implementations. Template rendering and
// mail transport belong to the platform's notification service; the engine
// only hands over template, recipient and variables.
package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes notifications to the structured log. It stands in for
// the platform notification service in development and tests.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("module", "notifier")}
}

func (n *LogNotifier) Send(ctx context.Context, template, recipient string, variables map[string]any) error {
	n.logger.InfoContext(ctx, "Notification sent", "template", template, "recipient", recipient, "variables", variables)

	return nil
}
