package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/Vovarama1992/voice_relay/internal/ai"
	"github.com/Vovarama1992/voice_relay/internal/artifacts"
)

const notifyTimeout = 10 * time.Second

var (
	errNoRecordingURL = errors.New("no recording url")
	errEmptyAudio     = errors.New("synthesizer returned no audio")
)

type Deps struct {
	Fetcher     RecordingFetcher
	Transcriber Transcriber
	Dialogue    Dialogue
	Synthesizer Synthesizer
	Store       artifacts.Store
	Notifier    Notifier
	Log         *zap.SugaredLogger
}

type Service struct {
	fetcher  RecordingFetcher
	stt      Transcriber
	dialogue Dialogue
	tts      Synthesizer
	store    artifacts.Store
	notifier Notifier
	log      *zap.SugaredLogger

	preconditions func() error
	timeout       time.Duration
	msgs          Messages
	onStage       func(CallSession)
	now           func() time.Time
	notifyWG      sync.WaitGroup
}

type Option func(*Service)

// WithPreconditions is checked before any collaborator is contacted.
func WithPreconditions(check func() error) Option {
	return func(s *Service) {
		s.preconditions = check
	}
}

func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

func WithMessages(m Messages) Option {
	return func(s *Service) {
		s.msgs = m
	}
}

// WithStageHook observes every stage transition of every call.
func WithStageHook(fn func(CallSession)) Option {
	return func(s *Service) {
		s.onStage = fn
	}
}

func NewService(d Deps, opts ...Option) (*Service, error) {
	switch {
	case d.Fetcher == nil:
		return nil, errors.New("pipeline: recording fetcher is required")
	case d.Transcriber == nil:
		return nil, errors.New("pipeline: transcriber is required")
	case d.Dialogue == nil:
		return nil, errors.New("pipeline: dialogue engine is required")
	case d.Synthesizer == nil:
		return nil, errors.New("pipeline: synthesizer is required")
	case d.Store == nil:
		return nil, errors.New("pipeline: artifact store is required")
	}

	s := &Service{
		fetcher:       d.Fetcher,
		stt:           d.Transcriber,
		dialogue:      d.Dialogue,
		tts:           d.Synthesizer,
		store:         d.Store,
		notifier:      d.Notifier,
		log:           d.Log,
		preconditions: func() error { return nil },
		timeout:       14 * time.Second,
		msgs:          DefaultMessages(),
		now:           time.Now,
	}
	if s.log == nil {
		s.log = zap.NewNop().Sugar()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// run is the state of one HandleRecording call.
type run struct {
	svc     *Service
	session CallSession
	log     *zap.SugaredLogger
	start   time.Time
}

func (s *Service) newRun(callID string) *run {
	now := s.now()
	r := &run{
		svc: s,
		session: CallSession{
			CallID:    callID,
			Stage:     StageReceived,
			CreatedAt: now,
			UpdatedAt: now,
		},
		log:   s.log.With("call_id", callID),
		start: now,
	}
	r.report()
	return r
}

func (r *run) report() {
	if r.svc.onStage != nil {
		r.svc.onStage(r.session)
	}
}

func (r *run) advance(stage Stage) {
	r.session.Stage = stage
	r.session.UpdatedAt = r.svc.now()
	r.log.Debugw("[pipeline] stage", "stage", stage)
	r.report()
}

func (r *run) abort(reason FailureReason, err error, message string) Result {
	stageErr := &StageError{Stage: r.session.Stage, Reason: reason, Err: err}

	r.session.Stage = StageFailed
	r.session.FailureReason = reason
	r.session.UpdatedAt = r.svc.now()
	r.report()

	r.log.Warnw("[pipeline] call failed",
		"failed_at", stageErr.Stage,
		"reason", reason,
		"elapsed", time.Since(r.start).Round(time.Millisecond),
		"error", err,
	)
	r.svc.notify(r.session.CallID, stageErr)

	return Result{Directive: Say(message), Session: r.session}
}

// HandleRecording drives one recording through download, transcription,
// dialogue and synthesis. It always returns exactly one directive.
func (s *Service) HandleRecording(ctx context.Context, callID, recordingURL string) Result {
	r := s.newRun(callID)

	if err := s.preconditions(); err != nil {
		return r.abort(ReasonConfigMissing, err, s.msgs.ConfigError)
	}
	if strings.TrimSpace(recordingURL) == "" {
		return r.abort(ReasonRecordingUnavailable, errNoRecordingURL, s.msgs.NoRecording)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// 1) download
	r.advance(StageDownloading)
	audio, err := s.fetcher.Fetch(ctx, recordingURL)
	if err != nil {
		return r.abort(ReasonRecordingUnavailable, err, s.msgs.DownloadFailed)
	}
	r.log.Infow("[pipeline] recording downloaded", "size", humanize.Bytes(uint64(len(audio))))

	release, err := s.acquire(ctx, r, artifacts.MediaRecording, audio)
	if err != nil {
		return r.abort(storeReason(err, ReasonRecordingUnavailable), err, s.msgs.DownloadFailed)
	}
	defer release()

	// 2) speech -> text
	r.advance(StageTranscribing)
	transcript, err := s.stt.Transcribe(ctx, audio)
	release()
	if err != nil {
		return r.abort(ReasonTranscriptionFailed, err, s.msgs.TranscribeFailed)
	}
	r.log.Infow("[pipeline] transcribed", "transcript", transcript)

	// 3) reply
	r.advance(StageReplying)
	reply, err := s.dialogue.Reply(ctx, transcript)
	if err != nil {
		return r.abort(ReasonDialogueFailed, err, s.msgs.DialogueFailed)
	}
	if strings.TrimSpace(reply) == "" {
		reply = s.msgs.FallbackReply
	}
	r.log.Infow("[pipeline] reply generated", "reply", reply)

	// 4) text -> speech
	r.advance(StageSynthesizing)
	speech, err := s.tts.Synthesize(ctx, reply)
	if err == nil && len(speech) == 0 {
		err = errEmptyAudio
	}
	if err != nil {
		return r.abort(ReasonSynthesisFailed, err, s.msgs.SynthesisFailed)
	}

	// 5) publish
	ref, err := s.store.Put(ctx, callID, artifacts.MediaReply, speech)
	if err != nil {
		return r.abort(storeReason(err, ReasonSynthesisFailed), err, s.msgs.SynthesisFailed)
	}

	r.advance(StageReady)
	r.log.Infow("[pipeline] reply ready",
		"artifact", ref.String(),
		"size", humanize.Bytes(uint64(len(speech))),
		"elapsed", time.Since(r.start).Round(time.Millisecond),
	)
	return Result{Directive: Play(AudioRef(callID)), Session: r.session}
}

// acquire registers an artifact and returns its release func. Release is safe
// to call any number of times; only the first call deletes.
func (s *Service) acquire(ctx context.Context, r *run, media artifacts.MediaType, content []byte) (func(), error) {
	if _, err := s.store.Put(ctx, r.session.CallID, media, content); err != nil {
		return nil, err
	}

	release := sync.OnceFunc(func() {
		err := s.store.Delete(context.WithoutCancel(ctx), r.session.CallID, media)
		if err != nil {
			r.log.Warnw("[pipeline] artifact cleanup failed",
				"media", media,
				"reason", ReasonCleanupFailed,
				"error", err,
			)
		}
	})
	return release, nil
}

func storeReason(err error, fallback FailureReason) FailureReason {
	if errors.Is(err, artifacts.ErrDuplicateArtifact) {
		return ReasonDuplicateArtifact
	}
	return fallback
}

// notify alerts the operator without holding up the webhook response.
func (s *Service) notify(callID string, stageErr *StageError) {
	if s.notifier == nil {
		return
	}

	details := fmt.Sprintf("stage=%s reason=%s hint=%s", stageErr.Stage, stageErr.Reason, ai.Diagnose(stageErr.Err))

	s.notifyWG.Add(1)
	go func() {
		defer s.notifyWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, callID, stageErr, details); err != nil {
			s.log.Warnw("[pipeline] operator alert failed", "call_id", callID, "error", err)
		}
	}()
}

// Wait blocks until pending operator alerts are delivered or given up.
func (s *Service) Wait() {
	s.notifyWG.Wait()
}
