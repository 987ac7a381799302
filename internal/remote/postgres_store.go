package remote

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
)

// tableColumns whitelists the columns of every table the record API serves.
// Identifiers are never taken from the request.
var tableColumns = map[string]map[string]bool{
	TableStudents: cols("id", "full_name", "email", "level", "active", "created_at"),
	TablePaymentTypes: cols(
		"id", "name", "amount", "due_date", "active", "created_at"),
	TablePayments: cols(
		"id", "client_id", "student_id", "payment_type_id", "amount",
		"transaction_ref", "notes", "method", "receipt_url", "status",
		"reject_reason", "reviewed_by", "created_at", "updated_at"),
	TableNotifications: cols(
		"id", "recipient_id", "kind", "title", "message",
		"related_payment_id", "is_read", "created_at"),
	TableSettings: cols("key", "value", "updated_by", "updated_at"),
}

func cols(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// duplicateCodes maps unique-constraint names to stable rejection codes so
// the sync coordinator can tell "this client id was already accepted" apart
// from a genuine duplicate transaction reference.
var duplicateCodes = map[string]string{
	"payments_client_id_key":       CodeDuplicateClientID,
	"payments_transaction_ref_key": CodeDuplicateTxnRef,
}

// PostgresStore serves the record API from PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed record store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Insert(ctx context.Context, table string, rec Record) (Record, error) {
	allowed, err := checkTable(table)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(rec))
	for k := range rec {
		if !allowed[k] {
			return nil, NewRejected(CodeConstraint, fmt.Sprintf("unknown column %q in table %q", k, table))
		}
		names = append(names, k)
	}
	sort.Strings(names)

	placeholders := make([]string, len(names))
	args := make([]any, len(names))
	for i, n := range names {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = rec[n]
	}

	// Identifiers come from the whitelist above, not from user input.
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		table, strings.Join(names, ", "), strings.Join(placeholders, ", "))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyPQ(err)
	}
	defer func() { _ = rows.Close() }()

	out, err := scanRecords(rows)
	if err != nil {
		return nil, classifyPQ(err)
	}
	if len(out) == 0 {
		return nil, NewTransient("insert returned no row")
	}
	return out[0], nil
}

func (p *PostgresStore) Update(ctx context.Context, table string, filter Filter, patch Record) error {
	allowed, err := checkTable(table)
	if err != nil {
		return err
	}

	setNames := make([]string, 0, len(patch))
	for k := range patch {
		if !allowed[k] {
			return NewRejected(CodeConstraint, fmt.Sprintf("unknown column %q in table %q", k, table))
		}
		setNames = append(setNames, k)
	}
	sort.Strings(setNames)

	var (
		clauses []string
		args    []any
	)
	for _, n := range setNames {
		args = append(args, patch[n])
		clauses = append(clauses, fmt.Sprintf("%s = $%d", n, len(args)))
	}

	where, whereArgs, err := buildWhere(allowed, table, filter, len(args))
	if err != nil {
		return err
	}
	args = append(args, whereArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s%s", table, strings.Join(clauses, ", "), where)
	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return classifyPQ(err)
	}
	return nil
}

func (p *PostgresStore) Select(ctx context.Context, table string, filter Filter) ([]Record, error) {
	allowed, err := checkTable(table)
	if err != nil {
		return nil, err
	}

	where, args, err := buildWhere(allowed, table, filter, 0)
	if err != nil {
		return nil, err
	}

	order := "created_at"
	if table == TableSettings {
		order = "key"
	}
	query := fmt.Sprintf("SELECT * FROM %s%s ORDER BY %s", table, where, order)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyPQ(err)
	}
	defer func() { _ = rows.Close() }()

	out, err := scanRecords(rows)
	if err != nil {
		return nil, classifyPQ(err)
	}
	return out, nil
}

func checkTable(table string) (map[string]bool, error) {
	allowed, ok := tableColumns[table]
	if !ok {
		return nil, NewRejected(CodeUnknownTable, fmt.Sprintf("unknown table %q", table))
	}
	return allowed, nil
}

func buildWhere(allowed map[string]bool, table string, filter Filter, argOffset int) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}

	names := make([]string, 0, len(filter))
	for k := range filter {
		if !allowed[k] {
			return "", nil, NewRejected(CodeConstraint, fmt.Sprintf("unknown column %q in table %q", k, table))
		}
		names = append(names, k)
	}
	sort.Strings(names)

	var (
		clauses []string
		args    []any
	)
	for i, n := range names {
		clauses = append(clauses, fmt.Sprintf("%s = $%d", n, argOffset+i+1))
		args = append(args, filter[n])
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

// scanRecords reads all rows into generic records, normalizing driver types.
func scanRecords(rows *sql.Rows) ([]Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Record
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		rec := make(Record, len(columns))
		for i, col := range columns {
			rec[col] = normalize(values[i])
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

// classifyPQ maps database errors to the transient/rejected taxonomy.
// Constraint and data errors are rejections; everything else (connection
// loss, timeouts) is transient.
func classifyPQ(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		class := pqErr.Code.Class()
		switch {
		case pqErr.Code == "23505":
			code := duplicateCodes[pqErr.Constraint]
			if code == "" {
				code = CodeDuplicateRecord
			}
			return NewRejected(code, pqErr.Message)
		case class == "22" || class == "23":
			return NewRejected(CodeConstraint, pqErr.Message)
		}
	}
	return NewTransient(err.Error())
}

var _ RecordStore = (*PostgresStore)(nil)
