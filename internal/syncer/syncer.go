// Package syncer delivers queued payment submissions to the backend,
// draining whenever connectivity returns and backing off per entry on
// transient failures. Delivery is at least once: an entry leaves the queue
// only after the backend acknowledged it, so an ambiguous attempt is
// retried and the backend's client id constraint absorbs the duplicate.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/duetrack/duetrack/internal/blob"
	"github.com/duetrack/duetrack/internal/connectivity"
	"github.com/duetrack/duetrack/internal/metrics"
	"github.com/duetrack/duetrack/internal/notify"
	"github.com/duetrack/duetrack/internal/queue"
	"github.com/duetrack/duetrack/internal/remote"
	"github.com/duetrack/duetrack/internal/retry"
	"github.com/duetrack/duetrack/internal/traces"
)

// Outcome of a submission attempt.
type Outcome string

const (
	// OutcomeAccepted means the backend acknowledged the payment.
	OutcomeAccepted Outcome = "accepted"
	// OutcomeQueued means the submission is parked for a later drain.
	OutcomeQueued Outcome = "queued"
	// OutcomeRejected means the backend refused the payment outright.
	OutcomeRejected Outcome = "rejected"
)

// Events announced to connected UI clients.
const (
	EventFlushed   = "sync.flushed"
	EventAttention = "sync.attention"
)

// Announcer pushes an event to connected clients. Implemented by the
// realtime hub; a nil announcer is fine.
type Announcer interface {
	Announce(eventType string, data map[string]any)
}

// Config tunes the per-entry backoff and the background sweep.
type Config struct {
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	MaxRetries    int
	SweepInterval time.Duration
}

// Coordinator owns the pending queue and the drain loop. At most one
// drain runs at a time; triggers arriving mid-drain coalesce into a single
// follow-up pass.
type Coordinator struct {
	queue     queue.Store
	records   remote.RecordStore
	notifier  *notify.Dispatcher
	monitor   *connectivity.Monitor
	uploader  blob.Uploader
	announcer Announcer
	cfg       Config
	logger    *slog.Logger
	nowFn     func() time.Time

	mu       sync.Mutex
	draining bool
	rerun    bool
	manual   bool

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewCoordinator(
	q queue.Store,
	records remote.RecordStore,
	notifier *notify.Dispatcher,
	monitor *connectivity.Monitor,
	uploader blob.Uploader,
	announcer Announcer,
	cfg Config,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		queue:     q,
		records:   records,
		notifier:  notifier,
		monitor:   monitor,
		uploader:  uploader,
		announcer: announcer,
		cfg:       cfg,
		logger:    logger,
		nowFn:     time.Now,
	}
}

// Submit attempts immediate delivery when online and parks the submission
// otherwise. Queued submissions return OutcomeQueued with no error; only a
// definitive backend rejection surfaces as an error.
func (c *Coordinator) Submit(ctx context.Context, sub *queue.PendingSubmission) (Outcome, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = c.nowFn()
	}

	if c.monitor.State() != connectivity.Online {
		if err := c.queue.Enqueue(ctx, sub); err != nil {
			return "", err
		}
		c.updateDepth(ctx)
		c.logger.Info("submission queued while offline", "id", sub.ID)
		return OutcomeQueued, nil
	}

	outcome, reason, err := c.deliver(ctx, sub)
	if err != nil {
		return "", err
	}
	switch outcome {
	case OutcomeAccepted:
		return OutcomeAccepted, nil
	case OutcomeRejected:
		return OutcomeRejected, fmt.Errorf("payment rejected: %s", reason)
	default:
		// Transient failure: park it and let the drain loop take over.
		sub.LastError = reason
		sub.NextAttemptAt = c.nowFn().Add(retry.Backoff(1, c.cfg.BaseDelay, c.cfg.MaxDelay))
		sub.Retries = 1
		if err := c.queue.Enqueue(ctx, sub); err != nil {
			return "", err
		}
		c.updateDepth(ctx)
		c.logger.Warn("submission parked after transient failure", "id", sub.ID, "reason", reason)
		return OutcomeQueued, nil
	}
}

// Drain delivers queued submissions oldest first. Concurrent calls
// coalesce: the second caller returns immediately and the running drain
// performs one extra pass.
func (c *Coordinator) Drain(ctx context.Context) {
	c.drain(ctx, false)
}

// RetryNow drains ignoring per-entry backoff gates. Wired to the user's
// explicit "retry now" action.
func (c *Coordinator) RetryNow(ctx context.Context) {
	c.drain(ctx, true)
}

func (c *Coordinator) drain(ctx context.Context, manual bool) {
	c.mu.Lock()
	if c.draining {
		c.rerun = true
		c.manual = c.manual || manual
		c.mu.Unlock()
		return
	}
	c.draining = true
	c.mu.Unlock()

	for {
		c.drainPass(ctx, manual)

		c.mu.Lock()
		if !c.rerun {
			c.draining = false
			c.mu.Unlock()
			return
		}
		c.rerun = false
		manual = c.manual
		c.manual = false
		c.mu.Unlock()
	}
}

func (c *Coordinator) drainPass(ctx context.Context, manual bool) {
	ctx, span := traces.StartSpan(ctx, "syncer.drain")
	defer span.End()

	if !c.monitor.Recheck(ctx) {
		c.logger.Debug("drain skipped, backend unreachable")
		return
	}

	subs, err := c.queue.List(ctx)
	if err != nil {
		c.logger.Error("drain: list queue", "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	now := c.nowFn()
	delivered := 0
	for i := range subs {
		sub := subs[i]

		if sub.Retries >= c.cfg.MaxRetries {
			metrics.DrainOutcomesTotal.WithLabelValues("attention").Inc()
			continue
		}
		if !manual && sub.NextAttemptAt.After(now) {
			metrics.DrainOutcomesTotal.WithLabelValues("deferred").Inc()
			continue
		}

		outcome, _, err := c.deliverQueued(ctx, &sub)
		if err != nil {
			c.logger.Error("drain: deliver", "id", sub.ID, "error", err)
			continue
		}
		if outcome == OutcomeAccepted {
			delivered++
		}
	}

	c.updateDepth(ctx)
	if delivered > 0 {
		c.logger.Info("drain finished", "delivered", delivered, "queued", len(subs)-delivered)
		c.announce(EventFlushed, map[string]any{"delivered": delivered})
	}
}

// deliverQueued attempts one queued entry and records the result back into
// the queue. Errors returned are queue-store failures, not delivery ones.
func (c *Coordinator) deliverQueued(ctx context.Context, sub *queue.PendingSubmission) (Outcome, string, error) {
	outcome, reason, err := c.deliver(ctx, sub)
	if err != nil {
		return "", "", err
	}

	switch outcome {
	case OutcomeAccepted:
		if err := c.queue.Remove(ctx, sub.ID); err != nil {
			return "", "", err
		}
	case OutcomeRejected:
		if err := c.queue.Remove(ctx, sub.ID); err != nil {
			return "", "", err
		}
	default:
		next := c.nowFn().Add(retry.Backoff(sub.Retries+1, c.cfg.BaseDelay, c.cfg.MaxDelay))
		if err := c.queue.MarkFailed(ctx, sub.ID, reason, next); err != nil {
			return "", "", err
		}
		if sub.Retries+1 >= c.cfg.MaxRetries {
			c.logger.Warn("submission needs attention", "id", sub.ID, "retries", sub.Retries+1)
			c.announce(EventAttention, map[string]any{"id": sub.ID, "lastError": reason})
		}
	}
	return outcome, reason, nil
}

// deliver uploads the receipt if needed and inserts the payment. The
// submission id is the payment id and the idempotency key: a duplicate
// client id response means an earlier ambiguous attempt actually landed,
// so it counts as accepted.
func (c *Coordinator) deliver(ctx context.Context, sub *queue.PendingSubmission) (Outcome, string, error) {
	ctx, span := traces.StartSpan(ctx, "syncer.deliver",
		traces.SubmissionID(sub.ID), traces.StudentID(sub.StudentID))
	defer span.End()

	receiptURL, outcome, reason := c.uploadReceipt(ctx, sub)
	if outcome != "" {
		span.SetAttributes(traces.Outcome(string(outcome)))
		metrics.DrainOutcomesTotal.WithLabelValues("transient").Inc()
		return outcome, reason, nil
	}

	rec := remote.Record{
		"id":              sub.ID,
		"client_id":       sub.ID,
		"student_id":      sub.StudentID,
		"payment_type_id": sub.PaymentTypeID,
		"amount":          sub.Amount,
		"transaction_ref": sub.TransactionRef,
		"notes":           sub.Notes,
		"method":          sub.Method,
		"receipt_url":     receiptURL,
		"status":          "pending",
		"created_at":      sub.CreatedAt,
		"updated_at":      c.nowFn(),
	}

	_, err := c.records.Insert(ctx, remote.TablePayments, rec)
	switch {
	case err == nil, remote.ErrCode(err) == remote.CodeDuplicateClientID:
		// Either this attempt or an earlier ambiguous one landed.
		span.SetAttributes(traces.Outcome(string(OutcomeAccepted)))
		metrics.DrainOutcomesTotal.WithLabelValues("accepted").Inc()
		c.notifySubmitted(ctx, sub)
		return OutcomeAccepted, "", nil

	case remote.IsTransient(err):
		span.SetAttributes(traces.Outcome(string(OutcomeQueued)))
		metrics.DrainOutcomesTotal.WithLabelValues("transient").Inc()
		return OutcomeQueued, err.Error(), nil

	default:
		reason := remote.Reason(err)
		span.SetAttributes(traces.Outcome(string(OutcomeRejected)))
		metrics.DrainOutcomesTotal.WithLabelValues("rejected").Inc()
		c.notifyRejected(ctx, sub, reason)
		c.logger.Warn("submission rejected", "id", sub.ID, "reason", reason)
		return OutcomeRejected, reason, nil
	}
}

// uploadReceipt resolves the submission's receipt to a URL. A missing or
// unreadable file is treated as transient so the entry stays queued; the
// file may reappear after the next app start.
func (c *Coordinator) uploadReceipt(ctx context.Context, sub *queue.PendingSubmission) (url string, outcome Outcome, reason string) {
	if sub.ReceiptPath == "" {
		return "", "", ""
	}

	data, err := os.ReadFile(sub.ReceiptPath)
	if err != nil {
		return "", OutcomeQueued, fmt.Sprintf("read receipt: %v", err)
	}

	uploaded, err := c.uploader.Upload(ctx, sub.ID+".jpg", data, "image/jpeg")
	if err != nil {
		return "", OutcomeQueued, fmt.Sprintf("upload receipt: %v", err)
	}
	return uploaded, "", ""
}

func (c *Coordinator) notifySubmitted(ctx context.Context, sub *queue.PendingSubmission) {
	if c.notifier == nil {
		return
	}
	_, err := c.notifier.Dispatch(ctx, notify.KindSubmitted, sub.StudentID, notify.Content{
		PaymentID: sub.ID,
		Title:     "Payment submitted",
		Message:   fmt.Sprintf("Your payment of %s is awaiting review.", sub.Amount),
	})
	if err != nil {
		c.logger.Warn("submitted notification failed", "id", sub.ID, "error", err)
	}
}

func (c *Coordinator) notifyRejected(ctx context.Context, sub *queue.PendingSubmission, reason string) {
	if c.notifier == nil {
		return
	}
	_, err := c.notifier.Dispatch(ctx, notify.KindRejected, sub.StudentID, notify.Content{
		PaymentID: sub.ID,
		Title:     "Payment rejected",
		Message:   reason,
	})
	if err != nil {
		c.logger.Warn("rejected notification failed", "id", sub.ID, "error", err)
	}
}

func (c *Coordinator) announce(eventType string, data map[string]any) {
	if c.announcer != nil {
		c.announcer.Announce(eventType, data)
	}
}

func (c *Coordinator) updateDepth(ctx context.Context) {
	subs, err := c.queue.List(ctx)
	if err != nil {
		return
	}
	metrics.QueueDepth.Set(float64(len(subs)))
}

// Start wires the drain triggers: committed offline-to-online transitions
// and a periodic sweep that catches entries whose backoff just expired.
func (c *Coordinator) Start() {
	c.monitor.OnTransition(func(s connectivity.State) {
		if s == connectivity.Online {
			go c.Drain(context.Background())
		}
	})

	c.mu.Lock()
	if c.stopCh != nil {
		c.mu.Unlock()
		return
	}
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	stop, done := c.stopCh, c.doneCh
	c.mu.Unlock()

	interval := c.cfg.SweepInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.Drain(context.Background())
			}
		}
	}()
}

// Stop halts the sweep loop.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	stop, done := c.stopCh, c.doneCh
	c.stopCh = nil
	c.doneCh = nil
	c.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}
