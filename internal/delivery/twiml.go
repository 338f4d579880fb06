package delivery

import (
	"net/http"
	"strconv"

	"github.com/twilio/twilio-go/twiml"
)

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

func sayVerb(language, text string) twiml.Element {
	return &twiml.VoiceSay{Message: text, Language: language}
}

func playVerb(url string) twiml.Element {
	return &twiml.VoicePlay{Url: url}
}

func recordVerb(action string, maxSeconds int) twiml.Element {
	return &twiml.VoiceRecord{
		Action:      action,
		Method:      http.MethodPost,
		MaxLength:   strconv.Itoa(maxSeconds),
		FinishOnKey: "*",
		PlayBeep:    "true",
	}
}

func renderTwiML(verbs ...twiml.Element) (string, error) {
	return twiml.Voice(verbs)
}

// writeTwiML always answers 200: the provider hangs up on anything else and
// the caller would hear silence.
func writeTwiML(w http.ResponseWriter, verbs ...twiml.Element) {
	body, err := renderTwiML(verbs...)
	if err != nil {
		body = emptyTwiML
	}
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
