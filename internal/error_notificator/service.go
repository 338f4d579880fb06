package error_notificator

import "context"

type Service struct {
	infra Notificator
}

func NewService(infra Notificator) *Service {
	if infra == nil {
		infra = Noop{}
	}
	return &Service{infra: infra}
}

func (s *Service) Notify(ctx context.Context, callID string, err error, details string) error {
	return s.infra.Notify(ctx, callID, err, details)
}

// Noop is used when no alert channel is configured.
type Noop struct{}

func (Noop) Notify(context.Context, string, error, string) error { return nil }
