package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Vovarama1992/voice_relay/internal/ai"
	"github.com/Vovarama1992/voice_relay/internal/artifacts"
	"github.com/Vovarama1992/voice_relay/internal/config"
	"github.com/Vovarama1992/voice_relay/internal/delivery"
	"github.com/Vovarama1992/voice_relay/internal/error_notificator"
	"github.com/Vovarama1992/voice_relay/internal/pipeline"
	"github.com/Vovarama1992/voice_relay/internal/recording"
	"github.com/Vovarama1992/voice_relay/internal/speech"
)

func main() {

	// =========================================================================
	// ENV / LOGGER
	// =========================================================================

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	baseLogger, _ := zap.NewProduction()
	defer baseLogger.Sync()
	sugar := baseLogger.Sugar()
	zl := logger.NewZapLogger(sugar)

	if missing := cfg.Missing(); len(missing) > 0 {
		zl.Log(logger.LogEntry{
			Level:   "warn",
			Message: "[config] missing credentials, calls will get an apology: " + strings.Join(missing, ", "),
			Service: "voice_relay",
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// =========================================================================
	// ARTIFACT STORE
	// =========================================================================

	backend, err := newArtifactBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init artifact backend: %v", err)
	}
	store := artifacts.NewStore(backend, artifacts.WithLogger(sugar))

	// =========================================================================
	// ERROR NOTIFICATION
	// =========================================================================

	var notifier error_notificator.Notificator = error_notificator.Noop{}
	if cfg.TelegramAlertToken != "" {
		infra, err := error_notificator.NewTelegramInfra(cfg.TelegramAlertToken, cfg.TelegramAlertChatID)
		if err != nil {
			sugar.Warnw("[notify] telegram alerts disabled", "error", err)
		} else {
			notifier = infra
		}
	}
	errService := error_notificator.NewService(notifier)

	// =========================================================================
	// CLIENTS (STT / DIALOGUE / TTS)
	// =========================================================================

	openAIAPI := ai.NewOpenAIAPI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)

	var stt speech.Transcriber
	switch cfg.STTProvider {
	case config.ProviderDeepgram:
		stt = speech.NewDeepgramClient(cfg.DeepgramAPIKey, cfg.CallLanguage, "")
	default:
		stt = speech.NewWhisperClient(openAIAPI, cfg.CallLanguage)
	}

	var tts speech.Synthesizer
	switch cfg.TTSProvider {
	case config.ProviderElevenLabs:
		tts = speech.NewElevenLabsClient(cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoiceID, "")
	default:
		tts = speech.NewOpenAITTSClient(openAIAPI, cfg.TTSVoice)
	}

	var completer ai.Completer
	switch cfg.DialogueProvider {
	case config.ProviderPerplexity:
		completer = ai.NewPerplexityClient(cfg.PerplexityAPIKey, "")
	default:
		completer = ai.NewOpenAIClient(openAIAPI, cfg.ChatModel)
	}

	speechService := speech.NewService(stt, tts)
	aiService := ai.NewAiService(completer, cfg.PersonaPrompt)

	// =========================================================================
	// PIPELINE
	// =========================================================================

	fetcher := recording.NewTwilioFetcher(
		cfg.TwilioAccountSID,
		cfg.TwilioAuthToken,
		recording.WithAllowedHosts(cfg.RecordingHosts...),
	)

	msgs := pipeline.DefaultMessages()
	relay, err := pipeline.NewService(
		pipeline.Deps{
			Fetcher:     fetcher,
			Transcriber: speechService,
			Dialogue:    aiService,
			Synthesizer: speechService,
			Store:       store,
			Notifier:    errService,
			Log:         sugar,
		},
		pipeline.WithPreconditions(cfg.Validate),
		pipeline.WithTimeout(cfg.PipelineTimeout),
		pipeline.WithMessages(msgs),
	)
	if err != nil {
		log.Fatalf("failed to init pipeline: %v", err)
	}

	// =========================================================================
	// HTTP ROUTER
	// =========================================================================

	r := chi.NewRouter()

	voiceHandler := delivery.NewVoiceHandler(relay, store, delivery.VoiceConfig{
		PublicBaseURL:    cfg.PublicBaseURL,
		Language:         cfg.CallLanguage,
		Greeting:         cfg.GreetingPrompt,
		RecordMaxSeconds: cfg.RecordMaxSeconds,
		Apology:          msgs.DialogueFailed,

		TwilioAuthToken:   cfg.SignatureToken(),
		TrustProxyHeaders: cfg.TrustProxyHeaders,
	}, zl)

	delivery.RegisterRoutes(r, voiceHandler, cfg.RateLimitPerMinute)

	// =========================================================================
	// BACKGROUND JOBS
	// =========================================================================

	go artifacts.RunReaper(ctx, store, cfg.ReapInterval, cfg.ArtifactGrace, sugar)

	// =========================================================================
	// START SERVER
	// =========================================================================

	addr := ":" + cfg.Port
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("listen %s: %v", addr, err)
	}
	srv := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	zl.Log(logger.LogEntry{
		Level:   "info",
		Message: "listening at " + addr,
		Service: "voice_relay",
	})

	// in-flight recordings get the full pipeline budget to finish
	if err := serve(ctx, srv, ln, cfg.PipelineTimeout+time.Second, sugar); err != nil {
		log.Fatalf("server error: %v", err)
	}
	relay.Wait()
}

// serve runs srv until ctx is done and returns only after in-flight requests
// have drained or drain has elapsed.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, drain time.Duration, sugar *zap.SugaredLogger) error {
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), drain)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			sugar.Warnw("[server] shutdown error", "error", err)
		}
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-drained
	return nil
}

func newArtifactBackend(ctx context.Context, cfg *config.Config) (artifacts.Backend, error) {
	switch cfg.ArtifactBackend {
	case config.BackendFile:
		return artifacts.NewFileBackend(cfg.ArtifactDir)
	case config.BackendS3:
		initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return artifacts.NewS3Backend(initCtx, artifacts.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Prefix:    cfg.S3Prefix,
			Insecure:  cfg.S3Insecure,
		})
	default:
		return artifacts.NewMemoryBackend(), nil
	}
}
