package email

import (
	"context"
	"log/slog"
	"sync"

	"github.com/felixgeelhaar/therapia/internal/notifications/domain"
)

// LogNotifier writes messages to the log instead of sending them. It is
// used in local mode and when SendGrid is not configured. Recipient
// addresses are not logged.
type LogNotifier struct {
	logger *slog.Logger

	mu   sync.Mutex
	sent []domain.Message
}

// NewLogNotifier creates a log notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Send implements domain.Notifier.
func (n *LogNotifier) Send(_ context.Context, msg domain.Message) error {
	n.mu.Lock()
	n.sent = append(n.sent, msg)
	n.mu.Unlock()
	n.logger.Info("email not sent, logging only", "subject", msg.Subject)
	return nil
}

// Sent returns a copy of every message passed to Send.
func (n *LogNotifier) Sent() []domain.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.Message, len(n.sent))
	copy(out, n.sent)
	return out
}
