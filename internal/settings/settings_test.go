package settings

import (
	"context"
	"log/slog"
	"testing"

	"github.com/duetrack/duetrack/internal/remote"
)

func TestGetUnsetKeyReadsDisabled(t *testing.T) {
	svc := NewService(remote.NewMemoryStore(), slog.Default())

	toggle, err := svc.Get(context.Background(), "submissions_open")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if toggle.Enabled {
		t.Fatal("unset key should read disabled")
	}
}

func TestSetUpserts(t *testing.T) {
	svc := NewService(remote.NewMemoryStore(), slog.Default())
	ctx := context.Background()

	if _, err := svc.Set(ctx, "submissions_open", true, "rep_1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	toggle, err := svc.Get(ctx, "submissions_open")
	if err != nil || !toggle.Enabled {
		t.Fatalf("toggle=%+v err=%v", toggle, err)
	}

	if _, err := svc.Set(ctx, "submissions_open", false, "rep_2"); err != nil {
		t.Fatalf("second set: %v", err)
	}
	toggle, _ = svc.Get(ctx, "submissions_open")
	if toggle.Enabled || toggle.UpdatedBy != "rep_2" {
		t.Fatalf("update did not land: %+v", toggle)
	}

	toggles, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(toggles) != 1 {
		t.Fatalf("set created a second row: %+v", toggles)
	}
}
