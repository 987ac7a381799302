package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and ephemeral agents.
type MemoryStore struct {
	mu   sync.Mutex
	subs []PendingSubmission
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Enqueue(ctx context.Context, sub *PendingSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	s.subs = append(s.subs, *sub)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]PendingSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]PendingSubmission, len(s.subs))
	copy(out, s.subs)
	return out, nil
}

func (s *MemoryStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subs {
		if sub.ID == id {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) MarkFailed(ctx context.Context, id, reason string, nextAttempt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.subs {
		if s.subs[i].ID == id {
			s.subs[i].Retries++
			s.subs[i].LastError = reason
			s.subs[i].NextAttemptAt = nextAttempt
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subs = nil
	return nil
}
