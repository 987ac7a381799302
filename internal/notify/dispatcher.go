package notify

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/duetrack/duetrack/internal/idgen"
	"github.com/duetrack/duetrack/internal/metrics"
)

// Cuer plays an attention cue for a freshly created notification, such as
// a sound or a desktop badge. Implementations must be cheap and may drop
// cues freely.
type Cuer interface {
	Cue(kind string)
}

// Content is the user-facing part of a notification.
type Content struct {
	PaymentID string
	Title     string
	Message   string
}

// Dispatcher creates notifications durably and plays best-effort cues.
// Storage failures surface to the caller; cue failures never do.
type Dispatcher struct {
	store  Store
	cuer   Cuer
	logger *slog.Logger
	nowFn  func() time.Time

	// Cues stay muted until the user has interacted with the app at least
	// once, so a restored session does not blast stale sounds.
	interacted atomic.Bool
}

func NewDispatcher(store Store, cuer Cuer, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{store: store, cuer: cuer, logger: logger, nowFn: time.Now}
}

// MarkInteracted unmutes cues for the rest of the process lifetime.
func (d *Dispatcher) MarkInteracted() {
	d.interacted.Store(true)
}

// Dispatch stores a notification and cues the user. When the content names
// a payment, at most one notification per (payment, kind) is ever created;
// a deduplicated dispatch returns created=false with no error.
func (d *Dispatcher) Dispatch(ctx context.Context, kind, recipientID string, content Content) (bool, error) {
	rec := &Record{
		ID:               idgen.WithPrefix("ntf_"),
		RecipientID:      recipientID,
		Kind:             kind,
		Title:            content.Title,
		Message:          content.Message,
		RelatedPaymentID: content.PaymentID,
		CreatedAt:        d.nowFn(),
	}

	created, err := d.store.Create(ctx, rec)
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(kind, "error").Inc()
		return false, err
	}
	if !created {
		metrics.NotificationsTotal.WithLabelValues(kind, "deduped").Inc()
		d.logger.Debug("notification deduplicated", "kind", kind, "payment", content.PaymentID)
		return false, nil
	}

	metrics.NotificationsTotal.WithLabelValues(kind, "created").Inc()
	d.logger.Info("notification created",
		"id", rec.ID,
		"kind", kind,
		"recipient", recipientID,
	)

	if d.cuer != nil && d.interacted.Load() {
		d.cuer.Cue(kind)
	}
	return true, nil
}
