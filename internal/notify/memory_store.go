package notify

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu   sync.Mutex
	recs []Record
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Create(ctx context.Context, rec *Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.RelatedPaymentID != "" {
		for _, have := range s.recs {
			if have.RelatedPaymentID == rec.RelatedPaymentID && have.Kind == rec.Kind {
				return false, nil
			}
		}
	}
	s.recs = append(s.recs, *rec)
	return true, nil
}

func (s *MemoryStore) GetByDedupKey(ctx context.Context, paymentID, kind string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.recs {
		if rec.RelatedPaymentID == paymentID && rec.Kind == kind {
			out := rec
			return &out, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListByRecipient(ctx context.Context, recipientID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Record
	for _, rec := range s.recs {
		if rec.RecipientID == recipientID {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.recs {
		if s.recs[i].ID == id {
			s.recs[i].Read = true
			return nil
		}
	}
	return nil
}
