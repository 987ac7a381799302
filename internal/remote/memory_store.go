package remote

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory record store for demo/development mode and
// tests. The Hook field, when set, runs before every operation and may
// return an error to inject failures.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string][]Record

	// Hook is called as Hook(op, table, rec) where op is "insert",
	// "update", or "select". rec is nil except for inserts.
	Hook func(op, table string, rec Record) error
}

// NewMemoryStore creates a new in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string][]Record)}
}

func (m *MemoryStore) Insert(_ context.Context, table string, rec Record) (Record, error) {
	if m.Hook != nil {
		if err := m.Hook("insert", table, rec); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Enforce the uniqueness the backend schema guarantees.
	if table == TablePayments {
		for _, existing := range m.tables[table] {
			if cid, ok := rec["client_id"]; ok && cid != "" && existing["client_id"] == cid {
				return nil, NewRejected(CodeDuplicateClientID, "payment with this client id already exists")
			}
			if ref, ok := rec["transaction_ref"]; ok && ref != "" && existing["transaction_ref"] == ref {
				return nil, NewRejected(CodeDuplicateTxnRef, "duplicate transaction reference")
			}
		}
	}

	cp := cloneRecord(rec)
	m.tables[table] = append(m.tables[table], cp)
	return cloneRecord(cp), nil
}

func (m *MemoryStore) Update(_ context.Context, table string, filter Filter, patch Record) error {
	if m.Hook != nil {
		if err := m.Hook("update", table, nil); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.tables[table] {
		if matches(rec, filter) {
			for k, v := range patch {
				rec[k] = v
			}
		}
	}
	return nil
}

func (m *MemoryStore) Select(_ context.Context, table string, filter Filter) ([]Record, error) {
	if m.Hook != nil {
		if err := m.Hook("select", table, nil); err != nil {
			return nil, err
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for _, rec := range m.tables[table] {
		if matches(rec, filter) {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

// Count returns the number of rows matching filter. Test helper.
func (m *MemoryStore) Count(table string, filter Filter) int {
	rows, _ := m.Select(context.Background(), table, filter)
	return len(rows)
}

func matches(rec Record, filter Filter) bool {
	for k, want := range filter {
		if fmt.Sprint(rec[k]) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func cloneRecord(rec Record) Record {
	cp := make(Record, len(rec))
	for k, v := range rec {
		cp[k] = v
	}
	return cp
}

var _ RecordStore = (*MemoryStore)(nil)
