package delivery

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	twilioclient "github.com/twilio/twilio-go/client"

	"github.com/Vovarama1992/voice_relay/internal/artifacts"
	"github.com/Vovarama1992/voice_relay/internal/pipeline"
)

const serviceName = "voice_relay"

type VoiceConfig struct {
	PublicBaseURL    string
	Language         string
	Greeting         string
	RecordMaxSeconds int
	Apology          string

	// TwilioAuthToken enables X-Twilio-Signature checks on the webhooks.
	TwilioAuthToken string
	// TrustProxyHeaders honours X-Forwarded-Proto/Host when PublicBaseURL is empty.
	TrustProxyHeaders bool
}

type VoiceHandler struct {
	pipeline pipeline.Handler
	store    artifacts.Store
	cfg      VoiceConfig
	log      *logger.ZapLogger
	newID    func() string

	validator *twilioclient.RequestValidator
}

func NewVoiceHandler(p pipeline.Handler, store artifacts.Store, cfg VoiceConfig, log *logger.ZapLogger) *VoiceHandler {
	if cfg.Apology == "" {
		cfg.Apology = pipeline.DefaultMessages().DialogueFailed
	}
	h := &VoiceHandler{
		pipeline: p,
		store:    store,
		cfg:      cfg,
		log:      log,
		newID:    uuid.NewString,
	}
	if cfg.TwilioAuthToken != "" {
		v := twilioclient.NewRequestValidator(cfg.TwilioAuthToken)
		h.validator = &v
	}
	return h
}

// POST /voice-start
func (h *VoiceHandler) VoiceStart(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.log.Log(logger.LogEntry{Level: "warn", Message: "[voice] invalid form", Error: err, Service: serviceName})
	}
	h.info(fmt.Sprintf("[voice] call received sid=%s from=%s", r.FormValue("CallSid"), r.FormValue("From")))

	writeTwiML(w,
		sayVerb(h.cfg.Language, h.cfg.Greeting),
		recordVerb("/recording-ready", h.cfg.RecordMaxSeconds),
	)
}

// POST /recording-ready
func (h *VoiceHandler) RecordingReady(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.log.Log(logger.LogEntry{Level: "warn", Message: "[voice] invalid form", Error: err, Service: serviceName})
	}

	callID := h.newID()
	recordingURL := strings.TrimSpace(r.FormValue("RecordingUrl"))
	h.info(fmt.Sprintf("[voice] recording ready call_id=%s sid=%s url=%s", callID, r.FormValue("CallSid"), recordingURL))

	res := h.pipeline.HandleRecording(r.Context(), callID, recordingURL)

	switch res.Directive.Kind {
	case pipeline.DirectivePlay:
		writeTwiML(w, playVerb(h.absoluteURL(r, res.Directive.AudioRef)))
	default:
		msg := res.Directive.Message
		if msg == "" {
			msg = h.cfg.Apology
		}
		writeTwiML(w, sayVerb(h.cfg.Language, msg))
	}
}

// GET /audio/{call_id}
func (h *VoiceHandler) Audio(w http.ResponseWriter, r *http.Request) {
	callID := strings.TrimSuffix(chi.URLParam(r, "call_id"), ".mp3")
	if callID == "" {
		http.Error(w, "audio not found", http.StatusNotFound)
		return
	}

	a, err := h.store.Take(r.Context(), artifacts.Ref{CallID: callID, MediaType: artifacts.MediaReply})
	if errors.Is(err, artifacts.ErrArtifactNotFound) {
		http.Error(w, "audio not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Log(logger.LogEntry{Level: "error", Message: "[voice] audio load failed call_id=" + callID, Error: err, Service: serviceName})
		http.Error(w, "audio unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(a.Content)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(a.Content)

	// Served is only ever observed here; the session that produced the audio is gone.
	h.info(fmt.Sprintf("[voice] audio served call_id=%s stage=%s", callID, pipeline.StageServed))
}

func (h *VoiceHandler) Home(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("voice relay is running"))
}

func (h *VoiceHandler) absoluteURL(r *http.Request, path string) string {
	if h.cfg.PublicBaseURL != "" {
		return h.cfg.PublicBaseURL + path
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	if h.cfg.TrustProxyHeaders {
		if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
			scheme = "https"
		}
		if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
			host = fwd
		}
	}
	return scheme + "://" + host + path
}

func (h *VoiceHandler) info(msg string) {
	h.log.Log(logger.LogEntry{Level: "info", Message: msg, Service: serviceName})
}
