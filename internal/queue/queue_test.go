package queue

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/duetrack/duetrack/internal/mirror"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	backend := mirror.NewMemoryStore()
	return map[string]Store{
		"memory": NewMemoryStore(),
		"mirror": NewMirrorStore(backend.Open(), slog.Default()),
	}
}

func TestEnqueuePreservesOrderAndAssignsIDs(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first := &PendingSubmission{StudentID: "stu_1", Amount: "5000"}
			second := &PendingSubmission{ID: "given", StudentID: "stu_2", Amount: "2500"}
			if err := s.Enqueue(ctx, first); err != nil {
				t.Fatalf("enqueue: %v", err)
			}
			if err := s.Enqueue(ctx, second); err != nil {
				t.Fatalf("enqueue: %v", err)
			}

			if first.ID == "" {
				t.Fatal("expected generated id")
			}
			if second.ID != "given" {
				t.Fatalf("caller id overwritten: %s", second.ID)
			}

			subs, err := s.List(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(subs) != 2 || subs[0].ID != first.ID || subs[1].ID != "given" {
				t.Fatalf("order not preserved: %+v", subs)
			}
		})
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			sub := &PendingSubmission{StudentID: "stu_1"}
			if err := s.Enqueue(ctx, sub); err != nil {
				t.Fatalf("enqueue: %v", err)
			}

			if err := s.Remove(ctx, sub.ID); err != nil {
				t.Fatalf("remove: %v", err)
			}
			if err := s.Remove(ctx, sub.ID); err != nil {
				t.Fatalf("second remove should be a no-op: %v", err)
			}
			if err := s.Remove(ctx, "never-existed"); err != nil {
				t.Fatalf("removing absent id should be a no-op: %v", err)
			}

			subs, _ := s.List(ctx)
			if len(subs) != 0 {
				t.Fatalf("expected empty queue, got %+v", subs)
			}
		})
	}
}

func TestMarkFailedIncrementsOnce(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			sub := &PendingSubmission{StudentID: "stu_1"}
			if err := s.Enqueue(ctx, sub); err != nil {
				t.Fatalf("enqueue: %v", err)
			}

			next := time.Now().Add(2 * time.Second).Truncate(time.Millisecond)
			if err := s.MarkFailed(ctx, sub.ID, "backend unreachable", next); err != nil {
				t.Fatalf("mark failed: %v", err)
			}

			subs, _ := s.List(ctx)
			if len(subs) != 1 {
				t.Fatalf("expected 1 entry, got %d", len(subs))
			}
			got := subs[0]
			if got.Retries != 1 {
				t.Fatalf("retries = %d, want 1", got.Retries)
			}
			if got.LastError != "backend unreachable" {
				t.Fatalf("last error = %q", got.LastError)
			}
			if !got.NextAttemptAt.Equal(next) {
				t.Fatalf("next attempt = %v, want %v", got.NextAttemptAt, next)
			}
		})
	}
}

func TestMirrorStoreSurvivesReopen(t *testing.T) {
	backend := mirror.NewMemoryStore()
	ctx := context.Background()

	s1 := NewMirrorStore(backend.OpenAs("tab-a"), slog.Default())
	if err := s1.Enqueue(ctx, &PendingSubmission{ID: "p1", StudentID: "stu_1"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	s2 := NewMirrorStore(backend.OpenAs("tab-b"), slog.Default())
	subs, err := s2.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 || subs[0].ID != "p1" {
		t.Fatalf("queue not visible from fresh handle: %+v", subs)
	}
}

func TestMirrorStoreCorruptValueReadsEmpty(t *testing.T) {
	backend := mirror.NewMemoryStore()
	ctx := context.Background()

	seed := backend.Open()
	if err := seed.Set(ctx, mirrorKey, []byte("[{broken")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	s := NewMirrorStore(backend.Open(), slog.Default())
	subs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("corrupt document should read empty, got %+v", subs)
	}

	// The queue keeps working after the corruption.
	if err := s.Enqueue(ctx, &PendingSubmission{ID: "p1"}); err != nil {
		t.Fatalf("enqueue after corruption: %v", err)
	}
	subs, _ = s.List(ctx)
	if len(subs) != 1 {
		t.Fatalf("expected recovery, got %+v", subs)
	}
}
