package remote

import (
	"context"
	"testing"
	"time"

	"github.com/duetrack/duetrack/internal/testutil"
)

func TestPostgresStore_InsertSelectUpdate(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	s := NewPostgresStore(db)

	_, err := s.Insert(ctx, TableStudents, Record{
		"id":         "stu_1",
		"full_name":  "Ada Obi",
		"email":      "ada@example.com",
		"level":      "300",
		"active":     true,
		"created_at": time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("insert student: %v", err)
	}

	rec, err := s.Insert(ctx, TablePayments, Record{
		"id":              "pay_1",
		"client_id":       "c1",
		"student_id":      "stu_1",
		"payment_type_id": "",
		"amount":          "5000",
		"transaction_ref": "TRX-1",
		"method":          "transfer",
		"status":          "pending",
		"created_at":      time.Now().UTC(),
		"updated_at":      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("insert payment: %v", err)
	}
	if rec["id"] != "pay_1" || rec["status"] != "pending" {
		t.Fatalf("returned record mismatch: %v", rec)
	}

	if err := s.Update(ctx, TablePayments, Filter{"id": "pay_1"}, Record{"status": "approved"}); err != nil {
		t.Fatalf("update: %v", err)
	}

	rows, err := s.Select(ctx, TablePayments, Filter{"student_id": "stu_1"})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(rows) != 1 || rows[0]["status"] != "approved" {
		t.Fatalf("unexpected rows: %v", rows)
	}
}

func TestPostgresStore_DuplicateClientIDCode(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	s := NewPostgresStore(db)

	base := Record{
		"student_id":      "stu_1",
		"payment_type_id": "",
		"amount":          "5000",
		"method":          "transfer",
		"status":          "pending",
		"created_at":      time.Now().UTC(),
		"updated_at":      time.Now().UTC(),
	}

	first := cloneRecord(base)
	first["id"] = "pay_1"
	first["client_id"] = "c1"
	first["transaction_ref"] = "TRX-1"
	if _, err := s.Insert(ctx, TablePayments, first); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	second := cloneRecord(base)
	second["id"] = "pay_2"
	second["client_id"] = "c1"
	second["transaction_ref"] = "TRX-2"
	_, err := s.Insert(ctx, TablePayments, second)
	if ErrCode(err) != CodeDuplicateClientID {
		t.Fatalf("expected duplicate_client_id, got %v", err)
	}

	third := cloneRecord(base)
	third["id"] = "pay_3"
	third["client_id"] = "c3"
	third["transaction_ref"] = "TRX-1"
	_, err = s.Insert(ctx, TablePayments, third)
	if ErrCode(err) != CodeDuplicateTxnRef {
		t.Fatalf("expected duplicate_transaction_ref, got %v", err)
	}
}

func TestPostgresStore_UnknownTableRejected(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	s := NewPostgresStore(db)
	_, err := s.Select(context.Background(), "secrets", nil)
	if ErrCode(err) != CodeUnknownTable {
		t.Fatalf("expected unknown_table, got %v", err)
	}
}
