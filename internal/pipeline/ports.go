package pipeline

import "context"

type RecordingFetcher interface {
	Fetch(ctx context.Context, recordingURL string) ([]byte, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

type Dialogue interface {
	Reply(ctx context.Context, userText string) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

type Notifier interface {
	Notify(ctx context.Context, callID string, err error, details string) error
}

// Handler is what the webhook front end drives.
type Handler interface {
	HandleRecording(ctx context.Context, callID, recordingURL string) Result
}

type Result struct {
	Directive Directive
	Session   CallSession
}
