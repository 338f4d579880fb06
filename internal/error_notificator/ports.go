package error_notificator

import "context"

type Notificator interface {
	// Notify sends a failed-call alert to the operator chat.
	Notify(ctx context.Context, callID string, err error, details string) error
}
