package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var ErrConfigMissing = errors.New("configuration missing")

const (
	ProviderOpenAI     = "openai"
	ProviderDeepgram   = "deepgram"
	ProviderElevenLabs = "elevenlabs"
	ProviderPerplexity = "perplexity"

	BackendMemory = "memory"
	BackendFile   = "file"
	BackendS3     = "s3"
)

const (
	defaultPersona  = "Eres un asesor inmobiliario amable, servicial y empático. Responde de forma natural, como si estuvieras hablando con el usuario."
	defaultGreeting = "Hola, por favor deja tu mensaje después del tono. Cuando termines, cuelga o espera."
)

type Config struct {
	Port          string `env:"PORT" envDefault:"8080"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`

	TwilioAccountSID        string   `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken         string   `env:"TWILIO_AUTH_TOKEN"`
	TwilioValidateSignature bool     `env:"TWILIO_VALIDATE_SIGNATURE" envDefault:"true"`
	RecordingHosts          []string `env:"RECORDING_HOSTS" envSeparator:"," envDefault:"api.twilio.com"`
	TrustProxyHeaders       bool     `env:"TRUST_PROXY_HEADERS"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	ChatModel     string `env:"CHAT_MODEL" envDefault:"gpt-4o-mini"`

	STTProvider    string `env:"STT_PROVIDER" envDefault:"openai"`
	DeepgramAPIKey string `env:"DEEPGRAM_API_KEY"`

	TTSProvider       string `env:"TTS_PROVIDER" envDefault:"openai"`
	TTSVoice          string `env:"TTS_VOICE" envDefault:"alloy"`
	ElevenLabsAPIKey  string `env:"ELEVENLABS_API_KEY"`
	ElevenLabsVoiceID string `env:"ELEVENLABS_VOICE_ID" envDefault:"EXAVITQu4vr4xnSDxMaL"`

	DialogueProvider string `env:"DIALOGUE_PROVIDER" envDefault:"openai"`
	PerplexityAPIKey string `env:"PERPLEXITY_API_KEY"`

	CallLanguage     string        `env:"CALL_LANGUAGE" envDefault:"es-ES"`
	PersonaPrompt    string        `env:"PERSONA_PROMPT"`
	GreetingPrompt   string        `env:"GREETING_PROMPT"`
	RecordMaxSeconds int           `env:"RECORD_MAX_SECONDS" envDefault:"20"`
	PipelineTimeout  time.Duration `env:"PIPELINE_TIMEOUT" envDefault:"14s"`

	ArtifactBackend string        `env:"ARTIFACT_BACKEND" envDefault:"memory"`
	ArtifactDir     string        `env:"ARTIFACT_DIR"`
	ArtifactGrace   time.Duration `env:"ARTIFACT_GRACE" envDefault:"5m"`
	ReapInterval    time.Duration `env:"REAP_INTERVAL" envDefault:"1m"`

	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`
	S3Bucket    string `env:"S3_BUCKET"`
	S3Region    string `env:"S3_REGION"`
	S3Prefix    string `env:"S3_PREFIX" envDefault:"voice-relay/"`
	S3Insecure  bool   `env:"S3_INSECURE"`

	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`

	TelegramAlertToken  string `env:"TELEGRAM_ALERT_TOKEN"`
	TelegramAlertChatID int64  `env:"TELEGRAM_ALERT_CHAT_ID"`
}

// Load reads .env (if any) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse()
}

func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.STTProvider = strings.ToLower(strings.TrimSpace(c.STTProvider))
	c.TTSProvider = strings.ToLower(strings.TrimSpace(c.TTSProvider))
	c.DialogueProvider = strings.ToLower(strings.TrimSpace(c.DialogueProvider))
	c.ArtifactBackend = strings.ToLower(strings.TrimSpace(c.ArtifactBackend))
	c.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.PublicBaseURL), "/")

	hosts := c.RecordingHosts[:0]
	for _, h := range c.RecordingHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts = append(hosts, h)
		}
	}
	c.RecordingHosts = hosts

	if strings.TrimSpace(c.PersonaPrompt) == "" {
		c.PersonaPrompt = defaultPersona
	}
	if strings.TrimSpace(c.GreetingPrompt) == "" {
		c.GreetingPrompt = defaultGreeting
	}
}

// check rejects values that cannot work at all. Missing credentials are not
// an error here, see Missing.
func (c *Config) check() error {
	switch c.STTProvider {
	case ProviderOpenAI, ProviderDeepgram:
	default:
		return fmt.Errorf("unknown STT_PROVIDER %q", c.STTProvider)
	}
	switch c.TTSProvider {
	case ProviderOpenAI, ProviderElevenLabs:
	default:
		return fmt.Errorf("unknown TTS_PROVIDER %q", c.TTSProvider)
	}
	switch c.DialogueProvider {
	case ProviderOpenAI, ProviderPerplexity:
	default:
		return fmt.Errorf("unknown DIALOGUE_PROVIDER %q", c.DialogueProvider)
	}
	switch c.ArtifactBackend {
	case BackendMemory, BackendFile:
	case BackendS3:
		if c.S3Endpoint == "" || c.S3Bucket == "" {
			return errors.New("ARTIFACT_BACKEND=s3 needs S3_ENDPOINT and S3_BUCKET")
		}
	default:
		return fmt.Errorf("unknown ARTIFACT_BACKEND %q", c.ArtifactBackend)
	}
	if c.PipelineTimeout <= 0 {
		return errors.New("PIPELINE_TIMEOUT must be positive")
	}
	if c.ReapInterval <= 0 || c.ArtifactGrace <= 0 {
		return errors.New("REAP_INTERVAL and ARTIFACT_GRACE must be positive")
	}
	if len(c.RecordingHosts) == 0 {
		return errors.New("RECORDING_HOSTS must name at least one host")
	}
	if c.RecordMaxSeconds <= 0 {
		return errors.New("RECORD_MAX_SECONDS must be positive")
	}
	return nil
}

// Missing lists the credentials the selected backends need but do not have.
func (c *Config) Missing() []string {
	var missing []string
	need := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}

	need("TWILIO_ACCOUNT_SID", c.TwilioAccountSID)
	need("TWILIO_AUTH_TOKEN", c.TwilioAuthToken)

	usesOpenAI := c.STTProvider == ProviderOpenAI || c.TTSProvider == ProviderOpenAI || c.DialogueProvider == ProviderOpenAI
	if usesOpenAI {
		need("OPENAI_API_KEY", c.OpenAIAPIKey)
	}
	if c.STTProvider == ProviderDeepgram {
		need("DEEPGRAM_API_KEY", c.DeepgramAPIKey)
	}
	if c.TTSProvider == ProviderElevenLabs {
		need("ELEVENLABS_API_KEY", c.ElevenLabsAPIKey)
	}
	if c.DialogueProvider == ProviderPerplexity {
		need("PERPLEXITY_API_KEY", c.PerplexityAPIKey)
	}
	return missing
}

// SignatureToken is the token webhook signatures are checked with, empty when
// checking is off.
func (c *Config) SignatureToken() string {
	if !c.TwilioValidateSignature {
		return ""
	}
	return c.TwilioAuthToken
}

// Validate wraps ErrConfigMissing with the names from Missing.
func (c *Config) Validate() error {
	if m := c.Missing(); len(m) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigMissing, strings.Join(m, ", "))
	}
	return nil
}
