package devidp

import (
	"context"
	"log/slog"
)

// Mailer delivers password reset codes
type Mailer interface {
	SendResetCode(ctx context.Context, to, code string) error
}

// ConsoleMailer is a development Mailer that logs the message
type ConsoleMailer struct {
	Logger *slog.Logger
}

func (m *ConsoleMailer) SendResetCode(ctx context.Context, to, code string) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "EMAIL: Password Reset",
		slog.String("to", to),
		slog.String("subject", "Your password reset code"),
		slog.String("code", code))
	return nil
}
