package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return NewClient(srv.URL, "ohlc", 5*time.Second), srv
}

func TestExec_Success(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/exec" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"query":"SELECT 1","columns":[{"name":"1","type":"INT"}],"dataset":[[1]],"count":1}`))
	})
	defer srv.Close()

	result, err := client.Exec(context.Background(), "SELECT 1")
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if result.Count != 1 {
		t.Errorf("expected count 1, got %d", result.Count)
	}
}

func TestExec_ErrorField(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"query":"oops","error":"table does not exist","position":10}`))
	})
	defer srv.Close()

	_, err := client.Exec(context.Background(), "oops")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "table does not exist") {
		t.Errorf("expected engine error text, got %v", err)
	}
}

func TestExec_NonJSONFailure(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("bad gateway"))
	})
	defer srv.Close()

	if _, err := client.Exec(context.Background(), "SELECT 1"); err == nil {
		t.Fatal("expected error for non-2xx non-JSON response")
	}
}

func TestExec_Unreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "ohlc", time.Second)

	if _, err := client.Exec(context.Background(), "SELECT 1"); err == nil {
		t.Fatal("expected error for unreachable engine")
	}
}

func TestPartitions(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("query")
		if !strings.Contains(query, "table_partitions('ohlc')") {
			t.Errorf("unexpected query %q", query)
		}
		w.Write([]byte(`{
			"query": "q",
			"columns": [
				{"name":"name","type":"STRING"},
				{"name":"numRows","type":"LONG"},
				{"name":"diskSize","type":"LONG"},
				{"name":"minTimestamp","type":"TIMESTAMP"},
				{"name":"maxTimestamp","type":"TIMESTAMP"},
				{"name":"active","type":"BOOLEAN"}
			],
			"dataset": [
				["2026-02", 120000, 52428800, "2026-02-01T00:00:00.000000Z", "2026-02-15T09:30:00.000000Z", true],
				["2025-06", 98000, 41943040, "2025-06-01T00:00:00.000000Z", "2025-06-30T23:59:59.000000Z", false]
			],
			"count": 2
		}`))
	})
	defer srv.Close()

	partitions, err := client.Partitions(context.Background())
	if err != nil {
		t.Fatalf("partitions: %v", err)
	}
	if len(partitions) != 2 {
		t.Fatalf("expected 2 partitions, got %d", len(partitions))
	}

	active := partitions[0]
	if active.Name != "2026-02" || !active.Active {
		t.Errorf("unexpected first partition: %+v", active)
	}
	if active.NumRows != 120000 {
		t.Errorf("expected 120000 rows, got %d", active.NumRows)
	}

	old := partitions[1]
	if old.Active {
		t.Error("2025-06 should not be active")
	}
	if old.MinTimestamp.IsZero() {
		t.Error("expected parsed min timestamp")
	}
}

func TestDetachAttach(t *testing.T) {
	var queries []string
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		q, _ := url.QueryUnescape(r.URL.RawQuery)
		queries = append(queries, q)
		w.Write([]byte(`{"ddl":"OK"}`))
	})
	defer srv.Close()

	if err := client.Detach(context.Background(), "2025-06"); err != nil {
		t.Fatalf("detach: %v", err)
	}
	if err := client.Attach(context.Background(), "2025-06"); err != nil {
		t.Fatalf("attach: %v", err)
	}

	if len(queries) != 2 {
		t.Fatalf("expected 2 queries, got %d", len(queries))
	}
	if !strings.Contains(queries[0], "DETACH PARTITION LIST '2025-06'") {
		t.Errorf("unexpected detach query %q", queries[0])
	}
	if !strings.Contains(queries[1], "ATTACH PARTITION LIST '2025-06'") {
		t.Errorf("unexpected attach query %q", queries[1])
	}
}

func TestPartitionRowCount(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"columns": [{"name":"name"},{"name":"numRows"},{"name":"diskSize"},{"name":"minTimestamp"},{"name":"maxTimestamp"},{"name":"active"}],
			"dataset": [["2025-06", 98000, 1024, null, null, false]],
			"count": 1
		}`))
	})
	defer srv.Close()

	rows, found, err := client.PartitionRowCount(context.Background(), "2025-06")
	if err != nil {
		t.Fatalf("row count: %v", err)
	}
	if !found || rows != 98000 {
		t.Errorf("expected found with 98000 rows, got found=%v rows=%d", found, rows)
	}

	_, found, err = client.PartitionRowCount(context.Background(), "2024-01")
	if err != nil {
		t.Fatalf("row count: %v", err)
	}
	if found {
		t.Error("expected 2024-01 to be absent")
	}
}
