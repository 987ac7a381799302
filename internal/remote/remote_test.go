package remote

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStore_InsertAndSelect(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Insert(ctx, TableStudents, Record{"id": "stu_1", "full_name": "Ada"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	_, err = s.Insert(ctx, TableStudents, Record{"id": "stu_2", "full_name": "Bayo"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	rows, err := s.Select(ctx, TableStudents, nil)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	// Insertion order preserved.
	if rows[0]["id"] != "stu_1" || rows[1]["id"] != "stu_2" {
		t.Fatalf("rows out of order: %v", rows)
	}

	filtered, err := s.Select(ctx, TableStudents, Filter{"id": "stu_2"})
	if err != nil {
		t.Fatalf("select filtered: %v", err)
	}
	if len(filtered) != 1 || filtered[0]["full_name"] != "Bayo" {
		t.Fatalf("unexpected filter result: %v", filtered)
	}
}

func TestMemoryStore_Update(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, _ = s.Insert(ctx, TablePayments, Record{"id": "pay_1", "status": "pending"})

	if err := s.Update(ctx, TablePayments, Filter{"id": "pay_1"}, Record{"status": "approved"}); err != nil {
		t.Fatalf("update: %v", err)
	}

	rows, _ := s.Select(ctx, TablePayments, Filter{"id": "pay_1"})
	if rows[0]["status"] != "approved" {
		t.Fatalf("expected approved, got %v", rows[0]["status"])
	}
}

func TestMemoryStore_DuplicateClientID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.Insert(ctx, TablePayments, Record{"id": "pay_1", "client_id": "c1", "transaction_ref": "t1"})
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}

	_, err = s.Insert(ctx, TablePayments, Record{"id": "pay_2", "client_id": "c1", "transaction_ref": "t2"})
	if ErrCode(err) != CodeDuplicateClientID {
		t.Fatalf("expected duplicate_client_id, got %v", err)
	}
	if IsTransient(err) {
		t.Fatal("duplicate client id must not be transient")
	}
}

func TestMemoryStore_DuplicateTransactionRef(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, _ = s.Insert(ctx, TablePayments, Record{"id": "pay_1", "client_id": "c1", "transaction_ref": "TRX-9"})

	_, err := s.Insert(ctx, TablePayments, Record{"id": "pay_2", "client_id": "c2", "transaction_ref": "TRX-9"})
	if ErrCode(err) != CodeDuplicateTxnRef {
		t.Fatalf("expected duplicate_transaction_ref, got %v", err)
	}
}

func TestMemoryStore_HookInjectsFailures(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Hook = func(op, table string, _ Record) error {
		if op == "insert" && table == TablePayments {
			return NewTransient("network down")
		}
		return nil
	}

	_, err := s.Insert(ctx, TablePayments, Record{"id": "pay_1"})
	if !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestIsTransient_Classification(t *testing.T) {
	if IsTransient(nil) {
		t.Fatal("nil is not transient")
	}
	if !IsTransient(NewTransient("timeout")) {
		t.Fatal("transient error misclassified")
	}
	if IsTransient(NewRejected(CodeConstraint, "bad amount")) {
		t.Fatal("rejection misclassified as transient")
	}
	// Unclassified errors are ambiguous and treated as retryable.
	if !IsTransient(errors.New("connection reset")) {
		t.Fatal("unclassified error should be transient")
	}
}

func TestReason_PreservedVerbatim(t *testing.T) {
	err := NewRejected(CodeDuplicateTxnRef, "duplicate transaction reference")
	if Reason(err) != "duplicate transaction reference" {
		t.Fatalf("reason not preserved: %q", Reason(err))
	}
}
