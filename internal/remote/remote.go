// Package remote defines the generic record store the tracker syncs against.
//
// The backend is treated as a set of tables supporting insert, update, and
// equality-filtered select. Every failure is classified as either transient
// (network, timeout, backend unavailable) or a rejection (the store looked
// at the record and said no). The sync coordinator's at-least-once policy
// depends on that distinction: transient failures keep a submission queued,
// rejections are terminal.
package remote

import (
	"context"
	"errors"
	"fmt"
)

// Well-known table names.
const (
	TableStudents      = "students"
	TablePaymentTypes  = "payment_types"
	TablePayments      = "payments"
	TableNotifications = "notifications"
	TableSettings      = "settings"
)

// Rejection codes shared between the postgres store and the HTTP client.
const (
	CodeDuplicateClientID = "duplicate_client_id"
	CodeDuplicateTxnRef   = "duplicate_transaction_ref"
	CodeDuplicateRecord   = "duplicate_record"
	CodeConstraint        = "constraint_violation"
	CodeUnknownTable      = "unknown_table"
	CodeUnauthorized      = "unauthorized"
)

// Record is one row, keyed by column name.
type Record map[string]any

// Filter matches rows by column equality.
type Filter map[string]any

// Error is a classified record-store failure.
type Error struct {
	Code      string
	Reason    string
	Transient bool
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote: %s (%s)", e.Reason, e.Code)
	}
	return "remote: " + e.Reason
}

// NewTransient builds a retryable failure.
func NewTransient(reason string) *Error {
	return &Error{Reason: reason, Transient: true}
}

// NewRejected builds a terminal rejection with a stable code.
func NewRejected(code, reason string) *Error {
	return &Error{Code: code, Reason: reason}
}

// IsTransient reports whether err should be retried. Errors that carry no
// classification (raw network errors, context deadlines) count as transient:
// the outcome is ambiguous and at-least-once means we keep the record.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var re *Error
	if errors.As(err, &re) {
		return re.Transient
	}
	return true
}

// ErrCode returns the rejection code carried by err, or "".
func ErrCode(err error) string {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// Reason returns the human-readable reason carried by err, verbatim.
func Reason(err error) string {
	var re *Error
	if errors.As(err, &re) {
		return re.Reason
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// RecordStore is the record store port.
type RecordStore interface {
	// Insert adds a record and returns it as stored.
	Insert(ctx context.Context, table string, rec Record) (Record, error)

	// Update applies patch to every row matching filter.
	Update(ctx context.Context, table string, filter Filter, patch Record) error

	// Select returns the rows matching filter, in insertion order.
	Select(ctx context.Context, table string, filter Filter) ([]Record, error)
}
