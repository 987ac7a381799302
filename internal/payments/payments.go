// Package payments manages dues payments and their review lifecycle.
package payments

import (
	"errors"
	"time"

	"github.com/duetrack/duetrack/internal/remote"
)

// Payment statuses.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusWaived   = "waived"
)

var (
	ErrNotFound      = errors.New("payments: not found")
	ErrAlreadyFinal  = errors.New("payments: already reviewed")
	ErrInvalidStatus = errors.New("payments: invalid status")
)

// Payment is one submitted dues payment. ClientID is the submitter's
// idempotency key; the backend rejects a second insert with the same value,
// which is what makes retried submissions safe.
type Payment struct {
	ID             string    `json:"id"`
	ClientID       string    `json:"clientId"`
	StudentID      string    `json:"studentId"`
	PaymentTypeID  string    `json:"paymentTypeId"`
	Amount         string    `json:"amount"`
	TransactionRef string    `json:"transactionRef"`
	Notes          string    `json:"notes,omitempty"`
	Method         string    `json:"method"`
	ReceiptURL     string    `json:"receiptUrl,omitempty"`
	Status         string    `json:"status"`
	RejectReason   string    `json:"rejectReason,omitempty"`
	ReviewedBy     string    `json:"reviewedBy,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// PaymentType is a category of dues students can pay against.
type PaymentType struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Amount      string    `json:"amount"`
	Description string    `json:"description,omitempty"`
	DueDate     time.Time `json:"dueDate,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Summary aggregates payment counts per status for the dashboard.
type Summary struct {
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Waived   int `json:"waived"`
}

func paymentToRecord(p *Payment) remote.Record {
	return remote.Record{
		"id":              p.ID,
		"client_id":       p.ClientID,
		"student_id":      p.StudentID,
		"payment_type_id": p.PaymentTypeID,
		"amount":          p.Amount,
		"transaction_ref": p.TransactionRef,
		"notes":           p.Notes,
		"method":          p.Method,
		"receipt_url":     p.ReceiptURL,
		"status":          p.Status,
		"reject_reason":   p.RejectReason,
		"reviewed_by":     p.ReviewedBy,
		"created_at":      p.CreatedAt,
		"updated_at":      p.UpdatedAt,
	}
}

func paymentFromRecord(row remote.Record) Payment {
	return Payment{
		ID:             str(row["id"]),
		ClientID:       str(row["client_id"]),
		StudentID:      str(row["student_id"]),
		PaymentTypeID:  str(row["payment_type_id"]),
		Amount:         str(row["amount"]),
		TransactionRef: str(row["transaction_ref"]),
		Notes:          str(row["notes"]),
		Method:         str(row["method"]),
		ReceiptURL:     str(row["receipt_url"]),
		Status:         str(row["status"]),
		RejectReason:   str(row["reject_reason"]),
		ReviewedBy:     str(row["reviewed_by"]),
		CreatedAt:      ts(row["created_at"]),
		UpdatedAt:      ts(row["updated_at"]),
	}
}

func typeFromRecord(row remote.Record) PaymentType {
	pt := PaymentType{
		ID:          str(row["id"]),
		Name:        str(row["name"]),
		Amount:      str(row["amount"]),
		Description: str(row["description"]),
		DueDate:     ts(row["due_date"]),
		CreatedAt:   ts(row["created_at"]),
	}
	if active, ok := row["active"].(bool); ok {
		pt.Active = active
	}
	return pt
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func ts(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
