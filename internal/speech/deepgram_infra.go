package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const deepgramBaseURL = "https://api.deepgram.com"

type DeepgramClient struct {
	apiKey   string
	baseURL  string
	language string
	client   *http.Client
}

func NewDeepgramClient(apiKey, language, baseURL string) *DeepgramClient {
	if baseURL == "" {
		baseURL = deepgramBaseURL
	}
	lang, _, _ := strings.Cut(strings.TrimSpace(language), "-")
	return &DeepgramClient{
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: strings.ToLower(lang),
		client:   &http.Client{Timeout: 8 * time.Second},
	}
}

func (c *DeepgramClient) Transcribe(ctx context.Context, audio []byte) (string, error) {
	q := url.Values{}
	q.Set("model", "nova-2")
	q.Set("smart_format", "true")
	if c.language != "" {
		q.Set("language", c.language)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/v1/listen?"+q.Encode(),
		bytes.NewReader(audio),
	)
	if err != nil {
		return "", err
	}

	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepgram request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return "", &HTTPStatusError{Provider: "deepgram", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var parsed struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}

	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode deepgram: %w", err)
	}

	// silence comes back without alternatives; that is an empty transcript, not a failure
	if len(parsed.Results.Channels) == 0 ||
		len(parsed.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}

	return strings.TrimSpace(parsed.Results.Channels[0].Alternatives[0].Transcript), nil
}
