package ai

import "context"

// Dialogue produces the spoken reply for one caller utterance. No history is
// kept between calls.
type Dialogue interface {
	Reply(ctx context.Context, userText string) (string, error)
}

// Completer is one chat backend: a system instruction and a user turn in,
// the assistant text out.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}
