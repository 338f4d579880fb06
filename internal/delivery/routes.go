package delivery

import (
	"net/http"
	"time"

	"github.com/Vovarama1992/go-utils/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

// RegisterRoutes mounts the health, webhook and audio routes. The rate limit
// applies to audio fetches only: webhooks come from a handful of provider
// egress IPs and must always be answered with TwiML.
func RegisterRoutes(
	r chi.Router,
	h *VoiceHandler,
	audioRequestsPerMinute int,
) {
	// --- health ---
	r.With(httputil.RecoverMiddleware).Get("/", h.Home)
	r.With(httputil.RecoverMiddleware).Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})

	// --- provider webhooks ---
	r.Group(func(wr chi.Router) {
		wr.Use(
			TwiMLRecoverMiddleware(h),
			TwilioSignatureMiddleware(h),
		)

		wr.Post("/voice-start", h.VoiceStart)
		wr.Post("/voice", h.VoiceStart)
		wr.Post("/recording-ready", h.RecordingReady)
		wr.Post("/recording", h.RecordingReady)
	})

	// --- audio fetch ---
	r.Group(func(ar chi.Router) {
		ar.Use(
			httputil.RecoverMiddleware,
			cors.Handler(cors.Options{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "OPTIONS"},
			}),
		)
		if audioRequestsPerMinute > 0 {
			ar.Use(httprate.LimitByIP(audioRequestsPerMinute, time.Minute))
		}

		ar.Get("/audio/{call_id}", h.Audio)
	})
}
