package notify

import (
	"context"
	"time"

	"github.com/duetrack/duetrack/internal/remote"
)

// RecordStore persists notifications through the generic record store, so
// the same code runs against the in-memory backend in tests and Postgres
// in production. The notifications table carries a partial unique index on
// (related_payment_id, kind), which makes Create race-safe: the loser of a
// concurrent duplicate insert observes a rejection, not a second row.
type RecordStore struct {
	records remote.RecordStore
}

var _ Store = (*RecordStore)(nil)

func NewRecordStore(records remote.RecordStore) *RecordStore {
	return &RecordStore{records: records}
}

func (s *RecordStore) Create(ctx context.Context, rec *Record) (bool, error) {
	if rec.RelatedPaymentID != "" {
		existing, err := s.GetByDedupKey(ctx, rec.RelatedPaymentID, rec.Kind)
		if err != nil {
			return false, err
		}
		if existing != nil {
			return false, nil
		}
	}

	_, err := s.records.Insert(ctx, remote.TableNotifications, toRecord(rec))
	if err != nil {
		if remote.ErrCode(err) == remote.CodeDuplicateRecord {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *RecordStore) GetByDedupKey(ctx context.Context, paymentID, kind string) (*Record, error) {
	rows, err := s.records.Select(ctx, remote.TableNotifications, remote.Filter{
		"related_payment_id": paymentID,
		"kind":               kind,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	rec := fromRecord(rows[0])
	return &rec, nil
}

func (s *RecordStore) ListByRecipient(ctx context.Context, recipientID string) ([]Record, error) {
	rows, err := s.records.Select(ctx, remote.TableNotifications, remote.Filter{
		"recipient_id": recipientID,
	})
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	// Select returns oldest first, callers want newest first.
	for i := len(rows) - 1; i >= 0; i-- {
		out = append(out, fromRecord(rows[i]))
	}
	return out, nil
}

func (s *RecordStore) MarkRead(ctx context.Context, id string) error {
	return s.records.Update(ctx, remote.TableNotifications,
		remote.Filter{"id": id},
		remote.Record{"is_read": true},
	)
}

func toRecord(rec *Record) remote.Record {
	return remote.Record{
		"id":                 rec.ID,
		"recipient_id":       rec.RecipientID,
		"kind":               rec.Kind,
		"title":              rec.Title,
		"message":            rec.Message,
		"related_payment_id": rec.RelatedPaymentID,
		"is_read":            rec.Read,
		"created_at":         rec.CreatedAt,
	}
}

func fromRecord(row remote.Record) Record {
	rec := Record{
		ID:               str(row["id"]),
		RecipientID:      str(row["recipient_id"]),
		Kind:             str(row["kind"]),
		Title:            str(row["title"]),
		Message:          str(row["message"]),
		RelatedPaymentID: str(row["related_payment_id"]),
	}
	if read, ok := row["is_read"].(bool); ok {
		rec.Read = read
	}
	switch v := row["created_at"].(type) {
	case time.Time:
		rec.CreatedAt = v
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			rec.CreatedAt = ts
		}
	}
	return rec
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
