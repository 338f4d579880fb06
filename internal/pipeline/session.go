package pipeline

import (
	"fmt"
	"time"
)

type Stage int

const (
	StageReceived Stage = iota
	StageDownloading
	StageTranscribing
	StageReplying
	StageSynthesizing
	StageReady
	StageServed // audio fetch log only
	StageFailed
)

var stageNames = [...]string{
	StageReceived:     "Received",
	StageDownloading:  "Downloading",
	StageTranscribing: "Transcribing",
	StageReplying:     "Replying",
	StageSynthesizing: "Synthesizing",
	StageReady:        "Ready",
	StageServed:       "Served",
	StageFailed:       "Failed",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

type FailureReason string

const (
	ReasonNone                 FailureReason = ""
	ReasonConfigMissing        FailureReason = "ConfigMissing"
	ReasonRecordingUnavailable FailureReason = "RecordingUnavailable"
	ReasonTranscriptionFailed  FailureReason = "TranscriptionFailed"
	ReasonDialogueFailed       FailureReason = "DialogueFailed"
	ReasonSynthesisFailed      FailureReason = "SynthesisFailed"
	ReasonDuplicateArtifact    FailureReason = "DuplicateArtifact"
	ReasonArtifactNotFound     FailureReason = "ArtifactNotFound"
	ReasonCleanupFailed        FailureReason = "CleanupFailed"
)

// CallSession is one processing attempt of one recording. It belongs to the
// goroutine serving the webhook and is never shared. A session ends at Ready
// or Failed; StageServed is never set on it and only appears in the log line
// written when the reply audio is fetched.
type CallSession struct {
	CallID        string
	Stage         Stage
	FailureReason FailureReason
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StageError carries the failing stage and reason through logs and alerts.
type StageError struct {
	Stage  Stage
	Reason FailureReason
	Err    error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("pipeline: %s at %s", e.Reason, e.Stage)
	}
	return fmt.Sprintf("pipeline: %s at %s: %v", e.Reason, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
