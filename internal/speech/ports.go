package speech

import (
	"context"
	"fmt"
)

// Transcriber turns recorded audio into text. An empty transcript is a valid answer.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Synthesizer turns text into playable audio (mp3).
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

type HTTPStatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.StatusCode, e.Body)
}
