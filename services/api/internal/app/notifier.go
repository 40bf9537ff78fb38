package app

import (
	"context"
	"time"

	"studycompanion/internal/util"
)

// ResetNotifier delivers password reset tokens to account owners.
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, email, token string, expiresAt time.Time) error
}

// LogResetNotifier writes the token to the request log. It is meant for
// development setups without a mail relay.
type LogResetNotifier struct{}

func (LogResetNotifier) SendPasswordReset(ctx context.Context, email, token string, expiresAt time.Time) error {
	util.LoggerFromContext(ctx).Info("password reset requested",
		"email", email,
		"reset_token", token,
		"expires_at", expiresAt.Format(time.RFC3339),
	)
	return nil
}
