package notify

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/duetrack/duetrack/internal/remote"
)

type captureCuer struct {
	kinds []string
}

func (c *captureCuer) Cue(kind string) { c.kinds = append(c.kinds, kind) }

func TestDispatchDeduplicatesPerPaymentAndKind(t *testing.T) {
	store := NewMemoryStore()
	d := NewDispatcher(store, nil, slog.Default())
	ctx := context.Background()

	content := Content{PaymentID: "pay_1", Title: "Payment approved"}

	created, err := d.Dispatch(ctx, KindApproved, "stu_1", content)
	if err != nil || !created {
		t.Fatalf("first dispatch: created=%v err=%v", created, err)
	}

	created, err = d.Dispatch(ctx, KindApproved, "stu_1", content)
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if created {
		t.Fatal("duplicate dispatch created a second notification")
	}

	recs, _ := store.ListByRecipient(ctx, "stu_1")
	if len(recs) != 1 {
		t.Fatalf("expected exactly one stored notification, got %d", len(recs))
	}

	// A different kind for the same payment is a distinct notification.
	created, err = d.Dispatch(ctx, KindSubmitted, "stu_1", content)
	if err != nil || !created {
		t.Fatalf("different kind: created=%v err=%v", created, err)
	}
}

func TestDispatchWithoutPaymentNeverDedupes(t *testing.T) {
	store := NewMemoryStore()
	d := NewDispatcher(store, nil, slog.Default())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		created, err := d.Dispatch(ctx, KindSystem, "stu_1", Content{Title: "maintenance"})
		if err != nil || !created {
			t.Fatalf("dispatch %d: created=%v err=%v", i, created, err)
		}
	}

	recs, _ := store.ListByRecipient(ctx, "stu_1")
	if len(recs) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(recs))
	}
}

func TestCuesMutedUntilInteraction(t *testing.T) {
	cuer := &captureCuer{}
	d := NewDispatcher(NewMemoryStore(), cuer, slog.Default())
	ctx := context.Background()

	if _, err := d.Dispatch(ctx, KindWelcome, "stu_1", Content{Title: "hi"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(cuer.kinds) != 0 {
		t.Fatalf("cue played before interaction: %v", cuer.kinds)
	}

	d.MarkInteracted()
	if _, err := d.Dispatch(ctx, KindSystem, "stu_1", Content{Title: "later"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(cuer.kinds) != 1 || cuer.kinds[0] != KindSystem {
		t.Fatalf("expected one cue after interaction, got %v", cuer.kinds)
	}
}

func TestRecordStoreRoundTrip(t *testing.T) {
	backend := remote.NewMemoryStore()
	store := NewRecordStore(backend)
	ctx := context.Background()

	rec := &Record{
		ID:               "ntf_1",
		RecipientID:      "stu_1",
		Kind:             KindApproved,
		Title:            "Payment approved",
		Message:          "Your dues payment was approved.",
		RelatedPaymentID: "pay_1",
		CreatedAt:        time.Now().UTC(),
	}
	created, err := store.Create(ctx, rec)
	if err != nil || !created {
		t.Fatalf("create: created=%v err=%v", created, err)
	}

	dup := *rec
	dup.ID = "ntf_2"
	created, err = store.Create(ctx, &dup)
	if err != nil {
		t.Fatalf("duplicate create: %v", err)
	}
	if created {
		t.Fatal("duplicate (payment, kind) created a second record")
	}

	got, err := store.GetByDedupKey(ctx, "pay_1", KindApproved)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.ID != "ntf_1" {
		t.Fatalf("dedup lookup mismatch: %+v", got)
	}

	if err := store.MarkRead(ctx, "ntf_1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	recs, err := store.ListByRecipient(ctx, "stu_1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 1 || !recs[0].Read {
		t.Fatalf("expected one read notification, got %+v", recs)
	}
}
