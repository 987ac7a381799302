// Package queue persists payment submissions that could not reach the
// backend so they survive restarts and drain once connectivity returns.
package queue

import (
	"context"
	"time"
)

// PendingSubmission is one payment waiting for delivery. ID doubles as the
// client-side idempotency key sent to the backend, so a retry of an
// ambiguous attempt can never create a second payment.
type PendingSubmission struct {
	ID             string    `json:"id"`
	PaymentTypeID  string    `json:"paymentTypeId"`
	StudentID      string    `json:"studentId"`
	Amount         string    `json:"amount"`
	TransactionRef string    `json:"transactionRef"`
	Notes          string    `json:"notes,omitempty"`
	Method         string    `json:"method"`
	ReceiptPath    string    `json:"receiptPath,omitempty"`
	Retries        int       `json:"retries"`
	LastError      string    `json:"lastError,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	NextAttemptAt  time.Time `json:"nextAttemptAt"`
}

// Store holds pending submissions in enqueue order.
type Store interface {
	// Enqueue appends a submission. An empty ID is assigned one.
	Enqueue(ctx context.Context, sub *PendingSubmission) error
	// List returns all pending submissions, oldest first.
	List(ctx context.Context) ([]PendingSubmission, error)
	// Remove deletes a submission. Removing an absent ID is a no-op.
	Remove(ctx context.Context, id string) error
	// MarkFailed records one failed delivery attempt: bumps the retry
	// counter, stores the reason, and schedules the next attempt.
	MarkFailed(ctx context.Context, id, reason string, nextAttempt time.Time) error
	// Clear drops every pending submission.
	Clear(ctx context.Context) error
}
