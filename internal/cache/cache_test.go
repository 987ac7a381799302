package cache

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/duetrack/duetrack/internal/mirror"
)

type fixture struct {
	Names []string `json:"names"`
}

func TestReadMissAndRoundTrip(t *testing.T) {
	backend := mirror.NewMemoryStore()
	l := NewLayer(backend.Open(), slog.Default())
	ctx := context.Background()

	var out fixture
	if stale, ok := l.Read(ctx, "payment-types", &out); ok || stale {
		t.Fatalf("expected miss, got stale=%v ok=%v", stale, ok)
	}

	in := fixture{Names: []string{"dues", "handbook"}}
	if err := l.Write(ctx, "payment-types", in); err != nil {
		t.Fatalf("write: %v", err)
	}

	stale, ok := l.Read(ctx, "payment-types", &out)
	if !ok || stale {
		t.Fatalf("expected fresh hit, got stale=%v ok=%v", stale, ok)
	}
	if len(out.Names) != 2 || out.Names[0] != "dues" {
		t.Fatalf("payload mismatch: %+v", out)
	}
}

func TestStalenessBoundary(t *testing.T) {
	backend := mirror.NewMemoryStore()
	l := NewLayer(backend.Open(), slog.Default())
	ctx := context.Background()

	base := time.Now()
	l.nowFn = func() time.Time { return base }

	if err := l.Write(ctx, "k", fixture{Names: []string{"x"}}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var out fixture
	l.nowFn = func() time.Time { return base.Add(StaleAfter - time.Second) }
	if stale, ok := l.Read(ctx, "k", &out); !ok || stale {
		t.Fatalf("just under the bound should be fresh, stale=%v ok=%v", stale, ok)
	}

	l.nowFn = func() time.Time { return base.Add(StaleAfter + time.Second) }
	if stale, ok := l.Read(ctx, "k", &out); !ok || !stale {
		t.Fatalf("past the bound should be stale, stale=%v ok=%v", stale, ok)
	}
}

func TestCorruptEntryDropped(t *testing.T) {
	backend := mirror.NewMemoryStore()
	handle := backend.Open()
	l := NewLayer(handle, slog.Default())
	ctx := context.Background()

	if err := handle.Set(ctx, keyPrefix+"bad", []byte("{nope")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var out fixture
	if _, ok := l.Read(ctx, "bad", &out); ok {
		t.Fatal("corrupt entry read as hit")
	}
	if data, _ := handle.Get(ctx, keyPrefix+"bad"); data != nil {
		t.Fatal("corrupt entry not dropped")
	}
}
