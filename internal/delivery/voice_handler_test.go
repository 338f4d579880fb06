package delivery

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Vovarama1992/voice_relay/internal/artifacts"
	"github.com/Vovarama1992/voice_relay/internal/pipeline"
	"github.com/Vovarama1992/voice_relay/internal/recording"
)

type stubSTT struct{ text string }

func (s stubSTT) Transcribe(context.Context, []byte) (string, error) { return s.text, nil }

type stubDialogue struct{ reply string }

func (s stubDialogue) Reply(context.Context, string) (string, error) { return s.reply, nil }

type stubTTS struct {
	audio []byte
	err   error
}

func (s stubTTS) Synthesize(context.Context, string) ([]byte, error) { return s.audio, s.err }

type panickingPipeline struct{}

func (panickingPipeline) HandleRecording(context.Context, string, string) pipeline.Result {
	panic("boom")
}

type countingPipeline struct {
	calls int32
	res   pipeline.Result
}

func (c *countingPipeline) HandleRecording(context.Context, string, string) pipeline.Result {
	atomic.AddInt32(&c.calls, 1)
	return c.res
}

func testConfig() VoiceConfig {
	return VoiceConfig{
		PublicBaseURL:    "https://relay.example.com",
		Language:         "es-ES",
		Greeting:         "Hola, deja tu mensaje.",
		RecordMaxSeconds: 20,
		Apology:          "Lo siento, ocurrió un error.",
	}
}

func newRouter(t *testing.T, p pipeline.Handler, store artifacts.Store, cfg VoiceConfig) (http.Handler, *VoiceHandler) {
	t.Helper()
	h := NewVoiceHandler(p, store, cfg, logger.NewZapLogger(zap.NewNop().Sugar()))
	h.newID = func() string { return "call-1" }
	r := chi.NewRouter()
	RegisterRoutes(r, h, 0)
	return r, h
}

func postForm(t *testing.T, router http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestVoiceStart_RecordsAndCallsBack(t *testing.T) {
	p := &countingPipeline{}
	router, _ := newRouter(t, p, artifacts.NewStore(nil), testConfig())

	for _, path := range []string{"/voice-start", "/voice"} {
		rec := postForm(t, router, path, url.Values{"CallSid": {"CA1"}})
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "text/xml", rec.Header().Get("Content-Type"))

		body := rec.Body.String()
		require.Contains(t, body, `language="es-ES"`)
		require.Contains(t, body, `>Hola, deja tu mensaje.</Say>`)
		require.Contains(t, body, "<Record")
		for _, attr := range []string{`action="/recording-ready"`, `method="POST"`, `maxLength="20"`, `finishOnKey="*"`, `playBeep="true"`} {
			require.Contains(t, body, attr)
		}
		require.Less(t, strings.Index(body, "<Say"), strings.Index(body, "<Record"))
	}
	require.Zero(t, p.calls, "call start does no pipeline work")
}

func TestRecordingReady_EndToEnd(t *testing.T) {
	twilio := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/r1.wav", r.URL.Path)
		_, _ = w.Write([]byte("B"))
	}))
	defer twilio.Close()

	store := artifacts.NewStore(nil)
	svc, err := pipeline.NewService(pipeline.Deps{
		Fetcher:     recording.NewTwilioFetcher("AC1", "tok", recording.WithAllowedHosts("127.0.0.1")),
		Transcriber: stubSTT{text: "hello"},
		Dialogue:    stubDialogue{reply: "hi there"},
		Synthesizer: stubTTS{audio: []byte("S")},
		Store:       store,
	})
	require.NoError(t, err)
	router, _ := newRouter(t, svc, store, testConfig())

	rec := postForm(t, router, "/recording-ready", url.Values{"RecordingUrl": {twilio.URL + "/r1"}, "CallSid": {"CA1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), ">https://relay.example.com/audio/call-1</Play>")

	first := get(router, "/audio/call-1")
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, "audio/mpeg", first.Header().Get("Content-Type"))
	require.Equal(t, "S", first.Body.String())

	second := get(router, "/audio/call-1")
	require.Equal(t, http.StatusNotFound, second.Code)
	require.Contains(t, second.Header().Get("Content-Type"), "text/plain")
	require.Zero(t, store.Len())
}

func TestRecordingReady_DownloadNotFound(t *testing.T) {
	twilio := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer twilio.Close()

	store := artifacts.NewStore(nil)
	svc, err := pipeline.NewService(pipeline.Deps{
		Fetcher:     recording.NewTwilioFetcher("AC1", "tok", recording.WithAllowedHosts("127.0.0.1")),
		Transcriber: stubSTT{text: "hello"},
		Dialogue:    stubDialogue{reply: "hi"},
		Synthesizer: stubTTS{audio: []byte("S")},
		Store:       store,
	})
	require.NoError(t, err)
	router, _ := newRouter(t, svc, store, testConfig())

	rec := postForm(t, router, "/recording", url.Values{"RecordingUrl": {twilio.URL + "/r1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `>Lo siento, no pude descargar la grabación.</Say>`)
	require.Zero(t, store.Len())
}

func TestRecordingReady_SynthesisErrorLeavesNoAudio(t *testing.T) {
	store := artifacts.NewStore(nil)
	svc, err := pipeline.NewService(pipeline.Deps{
		Fetcher:     fetcherFunc(func(context.Context, string) ([]byte, error) { return []byte("B"), nil }),
		Transcriber: stubSTT{text: "hello"},
		Dialogue:    stubDialogue{reply: "hi there"},
		Synthesizer: stubTTS{err: errors.New("connection reset")},
		Store:       store,
	})
	require.NoError(t, err)
	router, _ := newRouter(t, svc, store, testConfig())

	rec := postForm(t, router, "/recording-ready", url.Values{"RecordingUrl": {"https://host/r1"}})
	require.Contains(t, rec.Body.String(), "<Say")
	require.NotContains(t, rec.Body.String(), "<Play")
	require.Equal(t, http.StatusNotFound, get(router, "/audio/call-1").Code)
}

type fetcherFunc func(context.Context, string) ([]byte, error)

func (f fetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

func TestRecordingReady_MissingURLStillSpeaks(t *testing.T) {
	p := &countingPipeline{res: pipeline.Result{Directive: pipeline.Say("Lo siento, no pude recibir tu grabación.")}}
	router, _ := newRouter(t, p, artifacts.NewStore(nil), testConfig())

	rec := postForm(t, router, "/recording-ready", url.Values{})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "no pude recibir tu grabación")
}

func TestRecordingReady_PanicBecomesApology(t *testing.T) {
	router, _ := newRouter(t, panickingPipeline{}, artifacts.NewStore(nil), testConfig())

	rec := postForm(t, router, "/recording-ready", url.Values{"RecordingUrl": {"https://host/r1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), ">Lo siento, ocurrió un error.</Say>")
}

func TestAudio_AcceptsMp3Suffix(t *testing.T) {
	store := artifacts.NewStore(nil)
	_, err := store.Put(context.Background(), "abc", artifacts.MediaReply, []byte("mp3"))
	require.NoError(t, err)
	router, _ := newRouter(t, &countingPipeline{}, store, testConfig())

	rec := get(router, "/audio/abc.mp3")
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	require.Equal(t, "mp3", string(body))
	require.Equal(t, "3", rec.Header().Get("Content-Length"))
}

func TestAudio_UnknownCall(t *testing.T) {
	router, _ := newRouter(t, &countingPipeline{}, artifacts.NewStore(nil), testConfig())
	rec := get(router, "/audio/nope")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "audio not found\n", rec.Body.String())
}

func TestAbsoluteURL_FromRequest(t *testing.T) {
	cfg := testConfig()
	cfg.PublicBaseURL = ""
	_, h := newRouter(t, &countingPipeline{}, artifacts.NewStore(nil), cfg)

	req := httptest.NewRequest(http.MethodPost, "http://relay.local/recording-ready", nil)
	require.Equal(t, "http://relay.local/audio/x", h.absoluteURL(req, "/audio/x"))

	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Host", "evil.example.org")
	require.Equal(t, "http://relay.local/audio/x", h.absoluteURL(req, "/audio/x"), "forwarded headers ignored by default")
}

func TestAbsoluteURL_TrustedProxy(t *testing.T) {
	cfg := testConfig()
	cfg.PublicBaseURL = ""
	cfg.TrustProxyHeaders = true
	_, h := newRouter(t, &countingPipeline{}, artifacts.NewStore(nil), cfg)

	req := httptest.NewRequest(http.MethodPost, "http://relay.local/recording-ready", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Host", "relay.example.org")
	require.Equal(t, "https://relay.example.org/audio/x", h.absoluteURL(req, "/audio/x"))
}

func TestAbsoluteURL_PublicBaseWins(t *testing.T) {
	cfg := testConfig()
	cfg.TrustProxyHeaders = true
	_, h := newRouter(t, &countingPipeline{}, artifacts.NewStore(nil), cfg)

	req := httptest.NewRequest(http.MethodPost, "http://relay.local/recording-ready", nil)
	req.Header.Set("X-Forwarded-Host", "relay.example.org")
	require.Equal(t, "https://relay.example.com/audio/x", h.absoluteURL(req, "/audio/x"))
}

func TestHealth(t *testing.T) {
	router, _ := newRouter(t, &countingPipeline{}, artifacts.NewStore(nil), testConfig())
	require.Equal(t, "pong", get(router, "/ping").Body.String())
	require.Equal(t, http.StatusOK, get(router, "/").Code)
}

func TestRenderTwiML_EscapesText(t *testing.T) {
	body, err := renderTwiML(sayVerb("es-ES", "a <b> & c"))
	require.NoError(t, err)
	require.Contains(t, body, "<Response>")
	require.Contains(t, body, "a &lt;b&gt; &amp; c")
	require.NotContains(t, body, "<b>")
}
