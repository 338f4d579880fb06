package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

type WhisperClient struct {
	client   *openai.Client
	model    string
	language string
}

// NewWhisperClient transcribes with whisper-1. language is a BCP-47 tag
// ("es-ES"); only the primary subtag is sent.
func NewWhisperClient(client *openai.Client, language string) *WhisperClient {
	lang, _, _ := strings.Cut(strings.TrimSpace(language), "-")
	return &WhisperClient{
		client:   client,
		model:    openai.Whisper1,
		language: strings.ToLower(lang),
	}
}

func (c *WhisperClient) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("whisper: empty audio")
	}

	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.model,
		FilePath: "recording.wav",
		Reader:   bytes.NewReader(audio),
		Language: c.language,
	})
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

type OpenAITTSClient struct {
	client *openai.Client
	voice  openai.SpeechVoice
}

func NewOpenAITTSClient(client *openai.Client, voice string) *OpenAITTSClient {
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	return &OpenAITTSClient{
		client: client,
		voice:  openai.SpeechVoice(voice),
	}
}

func (c *OpenAITTSClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          c.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("openai tts: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("openai tts: read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("openai tts: empty audio")
	}
	return audio, nil
}
