package store

import (
	"context"

	"github.com/keithlinneman/storefront-api/internal/api"
	"github.com/keithlinneman/storefront-api/internal/log"
)

// LogNotifier stands in for an email sender. It records that a reset was
// requested; no link or token is written to the log.
type LogNotifier struct {
	Logger log.Logger
}

func (n LogNotifier) PasswordReset(ctx context.Context, u api.User) error {
	l := n.Logger
	if l == nil {
		l = log.FromContext(ctx)
	}
	l.Info(ctx, "password reset requested", "user.id", u.ID)
	return nil
}
