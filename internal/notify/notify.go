package notify

import (
	"context"
	"log/slog"
)

// Notifier delivers operational alerts about charge processing.
// Delivery problems are logged by the implementation and never returned.
type Notifier interface {
	Notify(ctx context.Context, subject, body, recipient string)
}

// Message is the alert payload
type Message struct {
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Recipient string `json:"recipient"`
}

// LogNotifier writes alerts to the structured log
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, subject, body, recipient string) {
	n.logger.WarnContext(ctx, "charge notification", "subject", subject, "body", body, "recipient", recipient)
}
