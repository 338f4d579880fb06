package artifacts

import (
	"context"
	"errors"
	"time"
)

type MediaType string

const (
	MediaRecording MediaType = "recording"
	MediaReply     MediaType = "reply"
)

// ContentType returns the HTTP media type blobs of this kind are served with.
func (m MediaType) ContentType() string {
	switch m {
	case MediaRecording:
		return "audio/wav"
	case MediaReply:
		return "audio/mpeg"
	}
	return "application/octet-stream"
}

func (m MediaType) ext() string {
	switch m {
	case MediaRecording:
		return ".wav"
	case MediaReply:
		return ".mp3"
	}
	return ".bin"
}

var (
	ErrDuplicateArtifact = errors.New("duplicate artifact")
	ErrArtifactNotFound  = errors.New("artifact not found")
	ErrCleanupFailed     = errors.New("artifact cleanup failed")
)

// Ref points at one artifact of one call.
type Ref struct {
	CallID    string
	MediaType MediaType
}

func (r Ref) key() string {
	return r.CallID + "/" + string(r.MediaType)
}

func (r Ref) String() string {
	return r.key()
}

type Artifact struct {
	OwnerCallID string
	MediaType   MediaType
	ContentType string
	Content     []byte
	Served      bool
	CreatedAt   time.Time
}

type Store interface {
	// Put fails with ErrDuplicateArtifact while an unserved artifact of the
	// same call and media type is live.
	Put(ctx context.Context, callID string, mediaType MediaType, content []byte) (Ref, error)

	// Take hands the content out once and removes the artifact in the same step.
	Take(ctx context.Context, ref Ref) (Artifact, error)

	// Delete is idempotent; ErrCleanupFailed only when the backend refuses removal.
	Delete(ctx context.Context, callID string, mediaType MediaType) error

	// Reap removes every artifact created at or before olderThan.
	Reap(ctx context.Context, olderThan time.Time) (int, error)

	Exists(callID string, mediaType MediaType) bool
	Len() int
}

// Backend keeps blob bytes. The Store owns naming and lifecycle; a backend
// never decides on its own when a blob goes away.
type Backend interface {
	Save(ctx context.Context, name string, content []byte) error
	Load(ctx context.Context, name string) ([]byte, error)
	Remove(ctx context.Context, name string) error
}
