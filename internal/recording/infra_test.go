package recording

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func local() *TwilioFetcher {
	return NewTwilioFetcher("AC123", "secret", WithAllowedHosts("127.0.0.1"))
}

func TestFetch_AuthenticatedWav(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/r1.wav", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "AC123", user)
		require.Equal(t, "secret", pass)
		_, _ = w.Write([]byte("RIFF"))
	}))
	defer srv.Close()

	f := NewTwilioFetcher("AC123", "secret", WithHTTPClient(srv.Client()), WithAllowedHosts("127.0.0.1"))
	data, err := f.Fetch(context.Background(), srv.URL+"/r1")
	require.NoError(t, err)
	require.Equal(t, []byte("RIFF"), data)
}

func TestFetch_NonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := local().Fetch(context.Background(), srv.URL+"/r1")
	require.Error(t, err)

	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestFetch_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := local().Fetch(context.Background(), srv.URL+"/r1")
	require.ErrorIs(t, err, ErrEmptyRecording)
}

func TestFetch_EmptyURL(t *testing.T) {
	_, err := NewTwilioFetcher("AC123", "secret").Fetch(context.Background(), "  ")
	require.Error(t, err)
}

func TestFetch_UnknownHostGetsNoCredentials(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte("RIFF"))
	}))
	defer srv.Close()

	_, err := NewTwilioFetcher("AC123", "secret").Fetch(context.Background(), srv.URL+"/steal")
	require.ErrorIs(t, err, ErrUntrustedHost)
	require.Zero(t, atomic.LoadInt32(&hits), "no request leaves for an unknown host")
}

func TestFetch_HostCheck(t *testing.T) {
	f := NewTwilioFetcher("AC123", "secret")

	require.NoError(t, f.checkHost("https://api.twilio.com/2010-04-01/Accounts/AC1/Recordings/RE1"))
	require.NoError(t, f.checkHost("https://API.twilio.com:443/r1"))
	require.ErrorIs(t, f.checkHost("https://api.twilio.com.evil.io/r1"), ErrUntrustedHost)
	require.ErrorIs(t, f.checkHost("ftp://api.twilio.com/r1"), ErrUntrustedHost)
	require.ErrorIs(t, f.checkHost("https://user@evil.io/r1"), ErrUntrustedHost)
}
