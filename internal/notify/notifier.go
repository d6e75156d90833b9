// Package notify sends account emails and runs them off the request path.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// Notifier delivers account emails. Implementations must be safe for concurrent use.
type Notifier interface {
	// SendLockNotice tells the owner the account was locked and offers a reset link.
	SendLockNotice(ctx context.Context, to, name, recoveryURL string) error
	// SendRecoveryEmail delivers a requested password reset link.
	SendRecoveryEmail(ctx context.Context, to, name, recoveryURL string) error
	// SendVerificationEmail delivers an email confirmation link after registration.
	SendVerificationEmail(ctx context.Context, to, name, verifyURL string) error
}

// LogNotifier writes links to the log instead of mailing them. Used when no SMTP host is configured.
type LogNotifier struct{ log *zap.Logger }

var _ Notifier = (*LogNotifier)(nil)

// NewLogNotifier returns a notifier logging at info level.
func NewLogNotifier(log *zap.Logger) *LogNotifier { return &LogNotifier{log: log} }

func (n *LogNotifier) emit(kind, to, name, link string) {
	n.log.Info("email_not_sent",
		zap.String("kind", kind),
		zap.String("to", to),
		zap.String("name", name),
		zap.String("link", link),
	)
}

// SendLockNotice logs the lock notice.
func (n *LogNotifier) SendLockNotice(_ context.Context, to, name, recoveryURL string) error {
	n.emit("lock_notice", to, name, recoveryURL)
	return nil
}

// SendRecoveryEmail logs the recovery link.
func (n *LogNotifier) SendRecoveryEmail(_ context.Context, to, name, recoveryURL string) error {
	n.emit("password_recovery", to, name, recoveryURL)
	return nil
}

// SendVerificationEmail logs the verification link.
func (n *LogNotifier) SendVerificationEmail(_ context.Context, to, name, verifyURL string) error {
	n.emit("email_verification", to, name, verifyURL)
	return nil
}
