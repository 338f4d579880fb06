package delivery

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Vovarama1992/go-utils/logger"
)

const twilioSignatureHeader = "X-Twilio-Signature"

var errBadSignature = errors.New("twilio signature mismatch")

// TwiMLRecoverMiddleware answers a panicking webhook with a spoken apology
// instead of a 500, so the caller never gets dead air.
func TwiMLRecoverMiddleware(h *VoiceHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					h.log.Log(logger.LogEntry{
						Level:   "error",
						Message: fmt.Sprintf("[voice] panic in %s %s", r.Method, r.URL.Path),
						Error:   fmt.Errorf("%v", rec),
						Service: serviceName,
					})
					writeTwiML(w, sayVerb(h.cfg.Language, h.cfg.Apology))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// TwilioSignatureMiddleware rejects webhook posts not signed with the account
// auth token. It passes everything through when no token is configured.
func TwilioSignatureMiddleware(h *VoiceHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if h.validator == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				http.Error(w, "invalid form", http.StatusBadRequest)
				return
			}

			params := make(map[string]string, len(r.PostForm))
			for k := range r.PostForm {
				params[k] = r.PostForm.Get(k)
			}

			signedURL := h.absoluteURL(r, r.URL.RequestURI())
			if !h.validator.Validate(signedURL, params, r.Header.Get(twilioSignatureHeader)) {
				h.log.Log(logger.LogEntry{
					Level:   "warn",
					Message: fmt.Sprintf("[voice] rejected unsigned webhook %s from %s", r.URL.Path, r.RemoteAddr),
					Error:   errBadSignature,
					Service: serviceName,
				})
				http.Error(w, "invalid signature", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
