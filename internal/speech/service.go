package speech

import (
	"context"
)

// Service bundles one STT and one TTS backend behind a single value.
type Service struct {
	stt Transcriber
	tts Synthesizer
}

func NewService(stt Transcriber, tts Synthesizer) *Service {
	return &Service{
		stt: stt,
		tts: tts,
	}
}

func (s *Service) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return s.stt.Transcribe(ctx, audio)
}

func (s *Service) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return s.tts.Synthesize(ctx, text)
}
