package session

import "go.uber.org/zap"

// Notifier surfaces user-visible operation outcomes. Each attempted
// operation produces at most one notification.
type Notifier interface {
	Success(message string)
	Failure(message string)
}

type nopNotifier struct{}

func (nopNotifier) Success(string) {}
func (nopNotifier) Failure(string) {}

// NopNotifier returns a Notifier that discards every notification.
func NopNotifier() Notifier {
	return nopNotifier{}
}

type logNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier returns a Notifier that records outcomes on the logger.
func NewLogNotifier(logger *zap.Logger) Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &logNotifier{logger: logger}
}

func (n *logNotifier) Success(message string) {
	n.logger.Info("operation succeeded", zap.String("notice", message))
}

func (n *logNotifier) Failure(message string) {
	n.logger.Warn("operation failed", zap.String("notice", message))
}
