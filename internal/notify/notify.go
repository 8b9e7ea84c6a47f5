// Package notify is the boundary to the host's notification surface.
package notify

import (
	"go.uber.org/zap"

	"github.com/gettogether/peersync/internal/messages"
)

// Notifier shows an incoming-message notification to the user.
type Notifier interface {
	ShowMessage(accountID, conversationID string, msg messages.Message)
}

// LogNotifier is the default sink when no host integration is wired: it
// records the notification instead of displaying it. Dispatch failures are
// impossible here, which matches the best-effort contract of the real
// surfaces.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a logging notification sink.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) ShowMessage(accountID, conversationID string, msg messages.Message) {
	n.logger.Info("message notification",
		zap.String("account_id", accountID),
		zap.String("conversation_id", conversationID),
		zap.String("author", msg.AuthorURI),
		zap.String("type", string(msg.Type)))
}
