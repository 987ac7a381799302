package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPClient_InsertRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/records/payments" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("missing bearer token, got %q", got)
		}
		var rec Record
		_ = json.NewDecoder(r.Body).Decode(&rec)
		rec["id"] = "pay_1"
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(rec)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "tok")
	out, err := c.Insert(context.Background(), TablePayments, Record{"client_id": "c1"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if out["id"] != "pay_1" || out["client_id"] != "c1" {
		t.Fatalf("unexpected response record: %v", out)
	}
}

func TestHTTPClient_RejectionCarriesCodeAndReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(errorBody{
			Error: "duplicate transaction reference",
			Code:  CodeDuplicateTxnRef,
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	_, err := c.Insert(context.Background(), TablePayments, Record{})
	if IsTransient(err) {
		t.Fatalf("4xx must not be transient: %v", err)
	}
	if ErrCode(err) != CodeDuplicateTxnRef {
		t.Fatalf("expected code %q, got %q", CodeDuplicateTxnRef, ErrCode(err))
	}
	if Reason(err) != "duplicate transaction reference" {
		t.Fatalf("reason not verbatim: %q", Reason(err))
	}
}

func TestHTTPClient_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	_, err := c.Insert(context.Background(), TablePayments, Record{})
	if !IsTransient(err) {
		t.Fatalf("5xx must be transient: %v", err)
	}
}

func TestHTTPClient_ConnectionFailureIsTransient(t *testing.T) {
	// Closed server: the dial fails.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	c := NewHTTPClient(srv.URL, "")
	_, err := c.Insert(context.Background(), TablePayments, Record{})
	if !IsTransient(err) {
		t.Fatalf("dial failure must be transient: %v", err)
	}
}

func TestHTTPClient_SelectBuildsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("student_id"); got != "stu_1" {
			t.Errorf("expected student_id filter, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(selectBody{Rows: []Record{{"id": "pay_1"}}})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	rows, err := c.Select(context.Background(), TablePayments, Filter{"student_id": "stu_1"})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(rows) != 1 || rows[0]["id"] != "pay_1" {
		t.Fatalf("unexpected rows: %v", rows)
	}
}

func TestHTTPClient_Probe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			t.Errorf("expected /healthz, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	if !c.Probe(context.Background()) {
		t.Fatal("expected probe success")
	}

	srv.Close()
	if c.Probe(context.Background()) {
		t.Fatal("expected probe failure after close")
	}
}
