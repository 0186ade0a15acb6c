package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/vietddude/syncer/internal/core/domain"
)

// =============================================================================
// Test Server
// =============================================================================

// newPagedServer serves n records in pages, echoing page/page_size
// query parameters.
func newPagedServer(t *testing.T, n int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
		if page < 1 || size < 1 {
			http.Error(w, "bad paging", http.StatusBadRequest)
			return
		}

		start := (page - 1) * size
		end := start + size
		if end > n {
			end = n
		}

		var data []map[string]any
		for i := start; i < end; i++ {
			data = append(data, map[string]any{
				"id":    fmt.Sprintf("rec-%d", i),
				"title": fmt.Sprintf("record %d", i),
			})
		}

		total := n
		resp := map[string]any{
			"data":        data,
			"total_count": total,
			"has_more":    end < n,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func newRESTAdapter(t *testing.T, baseURL string, pageSize int) *RESTAdapter {
	t.Helper()
	a := NewRESTAdapter()
	err := a.Init(context.Background(), map[string]any{
		"base_url":     baseURL,
		"records_path": "/records",
		"page_size":    pageSize,
	})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return a
}

// =============================================================================
// Adapter Tests
// =============================================================================

func TestRESTStreamDrainsAllPages(t *testing.T) {
	srv := newPagedServer(t, 25)
	defer srv.Close()

	a := newRESTAdapter(t, srv.URL, 10)

	it, err := a.Stream(context.Background())
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	defer it.Close()

	var got []*domain.SourceRecord
	for {
		rec, err := it.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		got = append(got, rec)
	}

	if len(got) != 25 {
		t.Fatalf("expected 25 records, got %d", len(got))
	}
	if got[0].ExternalID != "rec-0" || got[24].ExternalID != "rec-24" {
		t.Errorf("unexpected record boundaries: %s .. %s", got[0].ExternalID, got[24].ExternalID)
	}
}

func TestRESTTotalCount(t *testing.T) {
	srv := newPagedServer(t, 42)
	defer srv.Close()

	a := newRESTAdapter(t, srv.URL, 10)

	total, ok, err := a.TotalCount(context.Background())
	if err != nil {
		t.Fatalf("TotalCount failed: %v", err)
	}
	if !ok || total != 42 {
		t.Errorf("expected (42, true), got (%d, %v)", total, ok)
	}
}

func TestRESTTotalCountUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data":     []map[string]any{},
			"has_more": false,
		})
	}))
	defer srv.Close()

	a := newRESTAdapter(t, srv.URL, 10)

	_, ok, err := a.TotalCount(context.Background())
	if err != nil {
		t.Fatalf("TotalCount failed: %v", err)
	}
	if ok {
		t.Error("expected ok=false when source omits total_count")
	}
}

func TestRESTServerErrorWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := newRESTAdapter(t, srv.URL, 10)

	err := a.ValidateConnection(context.Background())
	var netErr *domain.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
}

func TestRESTRateLimitWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := newRESTAdapter(t, srv.URL, 10)

	err := a.ValidateConnection(context.Background())
	var rlErr *domain.RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rlErr.RetryAfter.Seconds() != 7 {
		t.Errorf("expected retry-after 7s, got %v", rlErr.RetryAfter)
	}
}

func TestRESTInitRequiresBaseURL(t *testing.T) {
	a := NewRESTAdapter()
	if err := a.Init(context.Background(), map[string]any{}); err == nil {
		t.Fatal("expected error without base_url")
	}
}

// =============================================================================
// Registry Tests
// =============================================================================

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry()
	reg.Register(NewStaticAdapter("fixture", nil))

	if _, err := reg.Get("fixture"); err != nil {
		t.Fatalf("expected registered adapter, got %v", err)
	}
	if _, err := reg.Get("missing"); !errors.Is(err, ErrAdapterNotFound) {
		t.Fatalf("expected ErrAdapterNotFound, got %v", err)
	}
}
