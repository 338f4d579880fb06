package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Twilio serves the same recording in several formats keyed by extension.
const wavSuffix = ".wav"

// 25 MB is the Whisper upload ceiling; a longer recording would fail later anyway.
const maxRecordingBytes = 25 << 20

// DefaultHost serves every recording of a Twilio account.
const DefaultHost = "api.twilio.com"

var (
	ErrEmptyRecording = errors.New("recording body is empty")
	ErrUntrustedHost  = errors.New("recording host is not allowed")
)

type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("recording: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

type TwilioFetcher struct {
	accountSID string
	authToken  string
	client     *http.Client
	hosts      map[string]struct{}
}

type Option func(*TwilioFetcher)

func WithHTTPClient(c *http.Client) Option {
	return func(f *TwilioFetcher) {
		f.client = c
	}
}

// WithAllowedHosts replaces the hosts the account credentials may be sent to.
func WithAllowedHosts(hosts ...string) Option {
	return func(f *TwilioFetcher) {
		f.hosts = make(map[string]struct{}, len(hosts))
		for _, h := range hosts {
			if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
				f.hosts[h] = struct{}{}
			}
		}
	}
}

func NewTwilioFetcher(accountSID, authToken string, opts ...Option) *TwilioFetcher {
	f := &TwilioFetcher{
		accountSID: accountSID,
		authToken:  authToken,
		client:     &http.Client{Timeout: 5 * time.Second},
		hosts:      map[string]struct{}{DefaultHost: {}},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *TwilioFetcher) Fetch(ctx context.Context, recordingURL string) ([]byte, error) {
	target := strings.TrimSpace(recordingURL)
	if target == "" {
		return nil, errors.New("recording: empty url")
	}
	if err := f.checkHost(target); err != nil {
		return nil, err
	}
	target += wavSuffix

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("recording: create request: %w", err)
	}
	req.SetBasicAuth(f.accountSID, f.authToken)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("recording: download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, URL: target, Body: string(b)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRecordingBytes+1))
	if err != nil {
		return nil, fmt.Errorf("recording: read body: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyRecording
	}
	if len(data) > maxRecordingBytes {
		return nil, fmt.Errorf("recording: larger than %d bytes", maxRecordingBytes)
	}
	return data, nil
}

// checkHost keeps the account credentials away from hosts that are not
// known to serve recordings. RecordingUrl arrives in a form post anyone can send.
func (f *TwilioFetcher) checkHost(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("recording: parse url: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("%w: scheme %q", ErrUntrustedHost, u.Scheme)
	}
	if _, ok := f.hosts[strings.ToLower(u.Hostname())]; !ok {
		return fmt.Errorf("%w: %s", ErrUntrustedHost, u.Hostname())
	}
	return nil
}
