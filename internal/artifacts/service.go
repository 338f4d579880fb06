package artifacts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"
)

const shardCount = 32

type entryState int

const (
	stateWriting entryState = iota
	stateLive
)

type entry struct {
	ref       Ref
	blob      string
	size      int
	state     entryState
	createdAt time.Time
}

type shard struct {
	mu    sync.Mutex
	items map[string]*entry
}

type store struct {
	backend Backend
	shards  [shardCount]*shard
	now     func() time.Time
	log     *zap.SugaredLogger
}

type Option func(*store)

func WithClock(now func() time.Time) Option {
	return func(s *store) {
		s.now = now
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *store) {
		s.log = log
	}
}

func NewStore(backend Backend, opts ...Option) Store {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	s := &store{
		backend: backend,
		now:     time.Now,
		log:     zap.NewNop().Sugar(),
	}
	for i := range s.shards {
		s.shards[i] = &shard{items: make(map[string]*entry)}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *store) shardFor(key string) *shard {
	return s.shards[xxh3.HashString(key)%shardCount]
}

func (s *store) Put(ctx context.Context, callID string, mediaType MediaType, content []byte) (Ref, error) {
	if callID == "" {
		return Ref{}, errors.New("artifacts: empty call id")
	}

	ref := Ref{CallID: callID, MediaType: mediaType}
	key := ref.key()
	e := &entry{
		ref:       ref,
		blob:      callID + "-" + uuid.NewString()[:8] + mediaType.ext(),
		size:      len(content),
		state:     stateWriting,
		createdAt: s.now(),
	}

	sh := s.shardFor(key)
	sh.mu.Lock()
	if _, ok := sh.items[key]; ok {
		sh.mu.Unlock()
		return Ref{}, fmt.Errorf("%w: %s", ErrDuplicateArtifact, key)
	}
	sh.items[key] = e
	sh.mu.Unlock()

	if err := s.backend.Save(ctx, e.blob, content); err != nil {
		sh.mu.Lock()
		if sh.items[key] == e {
			delete(sh.items, key)
		}
		sh.mu.Unlock()
		// a failed save may still have left a partial blob behind
		s.removeBlob(ctx, e)
		return Ref{}, fmt.Errorf("artifacts: save %s: %w", key, err)
	}

	sh.mu.Lock()
	current := sh.items[key]
	if current == e {
		e.state = stateLive
	}
	sh.mu.Unlock()

	// reaped or deleted while the blob was being written
	if current != e {
		s.removeBlob(ctx, e)
		return Ref{}, fmt.Errorf("%w: %s reclaimed during write", ErrArtifactNotFound, key)
	}

	s.log.Debugw("[artifacts] put", "call_id", callID, "media", mediaType, "size", humanize.Bytes(uint64(len(content))))
	return ref, nil
}

func (s *store) Take(ctx context.Context, ref Ref) (Artifact, error) {
	key := ref.key()
	sh := s.shardFor(key)

	sh.mu.Lock()
	e, ok := sh.items[key]
	if !ok || e.state != stateLive {
		sh.mu.Unlock()
		return Artifact{}, fmt.Errorf("%w: %s", ErrArtifactNotFound, key)
	}
	delete(sh.items, key)
	sh.mu.Unlock()

	content, err := s.backend.Load(ctx, e.blob)
	s.removeBlob(ctx, e)
	if err != nil {
		return Artifact{}, fmt.Errorf("artifacts: load %s: %w", key, err)
	}

	return Artifact{
		OwnerCallID: ref.CallID,
		MediaType:   ref.MediaType,
		ContentType: ref.MediaType.ContentType(),
		Content:     content,
		Served:      true,
		CreatedAt:   e.createdAt,
	}, nil
}

func (s *store) Delete(ctx context.Context, callID string, mediaType MediaType) error {
	key := Ref{CallID: callID, MediaType: mediaType}.key()
	sh := s.shardFor(key)

	sh.mu.Lock()
	e, ok := sh.items[key]
	if ok {
		delete(sh.items, key)
	}
	sh.mu.Unlock()

	if !ok || e.state != stateLive {
		// a writer still holding the entry removes its own blob
		return nil
	}
	return s.removeBlob(ctx, e)
}

func (s *store) Reap(ctx context.Context, olderThan time.Time) (int, error) {
	var victims []*entry
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, e := range sh.items {
			if e.createdAt.After(olderThan) {
				continue
			}
			delete(sh.items, key)
			if e.state == stateLive {
				victims = append(victims, e)
			}
		}
		sh.mu.Unlock()
	}

	var errs []error
	for _, e := range victims {
		if err := s.removeBlob(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return len(victims), errors.Join(errs...)
}

func (s *store) Exists(callID string, mediaType MediaType) bool {
	key := Ref{CallID: callID, MediaType: mediaType}.key()
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	_, ok := sh.items[key]
	return ok
}

func (s *store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.items)
		sh.mu.Unlock()
	}
	return n
}

func (s *store) removeBlob(ctx context.Context, e *entry) error {
	if err := s.backend.Remove(context.WithoutCancel(ctx), e.blob); err != nil {
		s.log.Warnw("[artifacts] remove blob failed", "call_id", e.ref.CallID, "media", e.ref.MediaType, "error", err)
		return fmt.Errorf("%w: %s: %v", ErrCleanupFailed, e.ref.key(), err)
	}
	return nil
}
