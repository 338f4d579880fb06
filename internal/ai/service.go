package ai

import (
	"context"
	"errors"
	"strings"
)

type AiService struct {
	completer Completer
	persona   string
}

func NewAiService(completer Completer, persona string) *AiService {
	return &AiService{
		completer: completer,
		persona:   strings.TrimSpace(persona),
	}
}

// Reply sends the persona and the caller's words. An empty answer is returned
// as is; substituting a fallback line is the caller's decision.
func (s *AiService) Reply(ctx context.Context, userText string) (string, error) {
	reply, err := s.completer.Complete(ctx, s.persona, userText)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

// Diagnose gives operators a one-line hint for common upstream failures.
func Diagnose(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "upstream did not answer before the webhook deadline"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "status code: 401"), strings.Contains(msg, "status 401"):
		return "invalid API key"
	case strings.Contains(msg, "status code: 404"):
		return "model not found"
	case strings.Contains(msg, "status code: 429"), strings.Contains(msg, "status 429"):
		return "rate limit or quota exceeded"
	case strings.Contains(msg, "status code: 400") && strings.Contains(msg, "model"):
		return "wrong model name"
	case strings.Contains(msg, "status code: 400"):
		return "malformed request"
	case strings.Contains(msg, "status code: 5"), strings.Contains(msg, "status 5"):
		return "upstream internal error"
	}
	return "unknown upstream error"
}
