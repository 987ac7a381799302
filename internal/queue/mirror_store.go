package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/duetrack/duetrack/internal/mirror"
)

// mirrorKey holds the whole pending list as one JSON document. Every
// mutation rewrites the full value, so a reader never observes a partially
// updated list.
const mirrorKey = "queue/pending"

// MirrorStore persists the queue in the durable mirror so pending
// submissions survive agent restarts and are visible to every tab.
type MirrorStore struct {
	mirror mirror.Mirror
	logger *slog.Logger

	mu sync.Mutex
}

var _ Store = (*MirrorStore)(nil)

func NewMirrorStore(m mirror.Mirror, logger *slog.Logger) *MirrorStore {
	return &MirrorStore{mirror: m, logger: logger}
}

func (s *MirrorStore) Enqueue(ctx context.Context, sub *PendingSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}

	subs, err := s.readLocked(ctx)
	if err != nil {
		return err
	}
	return s.writeLocked(ctx, append(subs, *sub))
}

func (s *MirrorStore) List(ctx context.Context) ([]PendingSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readLocked(ctx)
}

func (s *MirrorStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, err := s.readLocked(ctx)
	if err != nil {
		return err
	}
	for i, sub := range subs {
		if sub.ID == id {
			return s.writeLocked(ctx, append(subs[:i], subs[i+1:]...))
		}
	}
	return nil
}

func (s *MirrorStore) MarkFailed(ctx context.Context, id, reason string, nextAttempt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, err := s.readLocked(ctx)
	if err != nil {
		return err
	}
	for i := range subs {
		if subs[i].ID == id {
			subs[i].Retries++
			subs[i].LastError = reason
			subs[i].NextAttemptAt = nextAttempt
			return s.writeLocked(ctx, subs)
		}
	}
	return nil
}

func (s *MirrorStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mirror.Delete(ctx, mirrorKey)
}

// readLocked loads the pending list. A corrupt document reads as empty
// rather than wedging the queue; the damage is logged once per read.
func (s *MirrorStore) readLocked(ctx context.Context) ([]PendingSubmission, error) {
	data, err := s.mirror.Get(ctx, mirrorKey)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var subs []PendingSubmission
	if err := json.Unmarshal(data, &subs); err != nil {
		s.logger.Warn("pending queue corrupt, starting empty", "error", err)
		return nil, nil
	}
	return subs, nil
}

func (s *MirrorStore) writeLocked(ctx context.Context, subs []PendingSubmission) error {
	if len(subs) == 0 {
		return s.mirror.Delete(ctx, mirrorKey)
	}
	data, err := json.Marshal(subs)
	if err != nil {
		return err
	}
	return s.mirror.Set(ctx, mirrorKey, data)
}
