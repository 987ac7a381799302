package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/duetrack/duetrack/internal/idgen"
	"github.com/duetrack/duetrack/internal/notify"
	"github.com/duetrack/duetrack/internal/remote"
)

// Service implements the payment lifecycle on top of the record store.
// Review transitions create exactly one notification per payment and
// outcome; notification failures are logged, never surfaced, because the
// review itself already committed.
type Service struct {
	records  remote.RecordStore
	notifier *notify.Dispatcher
	logger   *slog.Logger
	nowFn    func() time.Time
}

func NewService(records remote.RecordStore, notifier *notify.Dispatcher, logger *slog.Logger) *Service {
	return &Service{records: records, notifier: notifier, logger: logger, nowFn: time.Now}
}

// Submit inserts a new pending payment. The caller supplies ClientID when
// retrying an earlier attempt; otherwise one is generated.
func (s *Service) Submit(ctx context.Context, p *Payment) (*Payment, error) {
	now := s.nowFn()
	if p.ID == "" {
		p.ID = idgen.WithPrefix("pay_")
	}
	if p.ClientID == "" {
		p.ClientID = p.ID
	}
	p.Status = StatusPending
	p.CreatedAt = now
	p.UpdatedAt = now

	row, err := s.records.Insert(ctx, remote.TablePayments, paymentToRecord(p))
	if err != nil {
		return nil, err
	}
	created := paymentFromRecord(row)

	s.dispatch(ctx, notify.KindSubmitted, created.StudentID, notify.Content{
		PaymentID: created.ID,
		Title:     "Payment submitted",
		Message:   fmt.Sprintf("Your payment of %s is awaiting review.", created.Amount),
	})
	return &created, nil
}

// Approve marks a pending payment approved.
func (s *Service) Approve(ctx context.Context, id, reviewerID string) (*Payment, error) {
	return s.review(ctx, id, reviewerID, StatusApproved, "")
}

// Reject marks a pending payment rejected with a reason shown to the student.
func (s *Service) Reject(ctx context.Context, id, reviewerID, reason string) (*Payment, error) {
	return s.review(ctx, id, reviewerID, StatusRejected, reason)
}

// Waive marks a pending payment waived.
func (s *Service) Waive(ctx context.Context, id, reviewerID string) (*Payment, error) {
	return s.review(ctx, id, reviewerID, StatusWaived, "")
}

func (s *Service) review(ctx context.Context, id, reviewerID, status, reason string) (*Payment, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyFinal, id, p.Status)
	}

	patch := remote.Record{
		"status":      status,
		"reviewed_by": reviewerID,
		"updated_at":  s.nowFn(),
	}
	if reason != "" {
		patch["reject_reason"] = reason
	}
	if err := s.records.Update(ctx, remote.TablePayments, remote.Filter{"id": id}, patch); err != nil {
		return nil, err
	}
	p.Status = status
	p.ReviewedBy = reviewerID
	p.RejectReason = reason

	kind, title, message := reviewNotification(status, p.Amount, reason)
	s.dispatch(ctx, kind, p.StudentID, notify.Content{
		PaymentID: p.ID,
		Title:     title,
		Message:   message,
	})

	s.logger.Info("payment reviewed", "id", id, "status", status, "reviewer", reviewerID)
	return p, nil
}

func reviewNotification(status, amount, reason string) (kind, title, message string) {
	switch status {
	case StatusApproved:
		return notify.KindApproved, "Payment approved",
			fmt.Sprintf("Your payment of %s was approved.", amount)
	case StatusRejected:
		return notify.KindRejected, "Payment rejected",
			fmt.Sprintf("Your payment of %s was rejected: %s", amount, reason)
	default:
		return notify.KindWaived, "Payment waived",
			fmt.Sprintf("Your payment of %s was waived.", amount)
	}
}

func (s *Service) dispatch(ctx context.Context, kind, recipientID string, content notify.Content) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Dispatch(ctx, kind, recipientID, content); err != nil {
		s.logger.Warn("notification dispatch failed",
			"kind", kind,
			"payment", content.PaymentID,
			"error", err,
		)
	}
}

// Get fetches one payment by id.
func (s *Service) Get(ctx context.Context, id string) (*Payment, error) {
	rows, err := s.records.Select(ctx, remote.TablePayments, remote.Filter{"id": id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	p := paymentFromRecord(rows[0])
	return &p, nil
}

// ListByStudent returns a student's payments.
func (s *Service) ListByStudent(ctx context.Context, studentID string) ([]Payment, error) {
	return s.list(ctx, remote.Filter{"student_id": studentID})
}

// ListPending returns all payments awaiting review.
func (s *Service) ListPending(ctx context.Context) ([]Payment, error) {
	return s.list(ctx, remote.Filter{"status": StatusPending})
}

func (s *Service) list(ctx context.Context, filter remote.Filter) ([]Payment, error) {
	rows, err := s.records.Select(ctx, remote.TablePayments, filter)
	if err != nil {
		return nil, err
	}
	out := make([]Payment, 0, len(rows))
	for _, row := range rows {
		out = append(out, paymentFromRecord(row))
	}
	return out, nil
}

// PaymentTypes returns the active payment categories.
func (s *Service) PaymentTypes(ctx context.Context) ([]PaymentType, error) {
	rows, err := s.records.Select(ctx, remote.TablePaymentTypes, remote.Filter{"active": true})
	if err != nil {
		return nil, err
	}
	out := make([]PaymentType, 0, len(rows))
	for _, row := range rows {
		out = append(out, typeFromRecord(row))
	}
	return out, nil
}

// Summarize counts payments per status.
func (s *Service) Summarize(ctx context.Context) (*Summary, error) {
	rows, err := s.records.Select(ctx, remote.TablePayments, nil)
	if err != nil {
		return nil, err
	}
	sum := &Summary{}
	for _, row := range rows {
		switch str(row["status"]) {
		case StatusPending:
			sum.Pending++
		case StatusApproved:
			sum.Approved++
		case StatusRejected:
			sum.Rejected++
		case StatusWaived:
			sum.Waived++
		}
	}
	return sum, nil
}
