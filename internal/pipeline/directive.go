package pipeline

type DirectiveKind int

const (
	DirectivePlay DirectiveKind = iota + 1
	DirectiveSay
)

// Directive is what the provider is told to do next with the caller.
// Exactly one of AudioRef / Message is set, matching Kind.
type Directive struct {
	Kind     DirectiveKind
	AudioRef string
	Message  string
}

func Play(audioRef string) Directive {
	return Directive{Kind: DirectivePlay, AudioRef: audioRef}
}

func Say(message string) Directive {
	return Directive{Kind: DirectiveSay, Message: message}
}

// AudioRef is the path the reply audio of callID is fetched from.
func AudioRef(callID string) string {
	return "/audio/" + callID
}

// Messages are spoken to the caller; each failing stage has its own line so
// call logs tell the stages apart.
type Messages struct {
	ConfigError      string
	NoRecording      string
	DownloadFailed   string
	TranscribeFailed string
	DialogueFailed   string
	SynthesisFailed  string
	FallbackReply    string
}

func DefaultMessages() Messages {
	return Messages{
		ConfigError:      "Lo siento, el servicio no está configurado correctamente.",
		NoRecording:      "Lo siento, no pude recibir tu grabación.",
		DownloadFailed:   "Lo siento, no pude descargar la grabación.",
		TranscribeFailed: "Lo siento, no pude entender tu mensaje.",
		DialogueFailed:   "Lo siento, no pude generar una respuesta.",
		SynthesisFailed:  "Lo siento, no pude preparar el audio de la respuesta.",
		FallbackReply:    "Lo siento, no pude generar una respuesta.",
	}
}
