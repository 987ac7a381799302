// Package notify creates and delivers in-app notifications. Lifecycle
// notifications are deduplicated per payment and kind so retries and
// double-clicks never produce duplicates.
package notify

import (
	"context"
	"time"
)

// Notification kinds. Lifecycle kinds carry a related payment id and are
// deduplicated on (payment, kind); the rest are free-form.
const (
	KindSubmitted = "payment_pending"
	KindApproved  = "payment_approved"
	KindRejected  = "payment_rejected"
	KindWaived    = "payment_waived"
	KindWelcome   = "welcome"
	KindSystem    = "system"
)

// Record is one stored notification.
type Record struct {
	ID               string    `json:"id"`
	RecipientID      string    `json:"recipientId"`
	Kind             string    `json:"kind"`
	Title            string    `json:"title"`
	Message          string    `json:"message"`
	RelatedPaymentID string    `json:"relatedPaymentId,omitempty"`
	Read             bool      `json:"read"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Store persists notifications. Create must be safe against concurrent
// duplicate attempts for the same (payment, kind) pair.
type Store interface {
	// Create inserts the record. When another record already exists for
	// the same related payment and kind, nothing is inserted and created
	// is false.
	Create(ctx context.Context, rec *Record) (created bool, err error)
	// GetByDedupKey returns the record for a payment and kind, or nil.
	GetByDedupKey(ctx context.Context, paymentID, kind string) (*Record, error)
	// ListByRecipient returns a recipient's notifications, newest first.
	ListByRecipient(ctx context.Context, recipientID string) ([]Record, error)
	// MarkRead flags a notification as read.
	MarkRead(ctx context.Context, id string) error
}
