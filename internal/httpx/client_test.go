package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/failover/internal/balance"
)

func newBackend(status int, body string) (*httptest.Server, *atomic.Int64) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	return srv, &hits
}

func TestDo_FailsOverToHealthyBackend(t *testing.T) {
	bad, badHits := newBackend(http.StatusInternalServerError, "down")
	defer bad.Close()
	good, goodHits := newBackend(http.StatusOK, "hello")
	defer good.Close()

	client, err := New("test", []string{bad.URL, good.URL}, 5*time.Second)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	resp, err := client.Get(context.Background(), "/")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(resp.Body) != "hello" {
		t.Errorf("body = %q, want hello", resp.Body)
	}
	if resp.Endpoint != good.URL {
		t.Errorf("endpoint = %s, want %s", resp.Endpoint, good.URL)
	}
	if goodHits.Load() != 1 {
		t.Errorf("good backend hits = %d, want 1", goodHits.Load())
	}
	// The shuffled order decides whether the bad backend was tried first.
	if badHits.Load() > 1 {
		t.Errorf("bad backend hits = %d, want at most 1", badHits.Load())
	}
}

func TestDo_ClientErrorIsFatal(t *testing.T) {
	first, firstHits := newBackend(http.StatusNotFound, "missing")
	defer first.Close()
	second, secondHits := newBackend(http.StatusNotFound, "missing")
	defer second.Close()

	client, err := New("test", []string{first.URL, second.URL}, 5*time.Second)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = client.Get(context.Background(), "/thing")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", statusErr.Code)
	}
	if firstHits.Load()+secondHits.Load() != 1 {
		t.Errorf("total attempts = %d, want exactly 1 for a fatal error",
			firstHits.Load()+secondHits.Load())
	}
}

func TestDo_ExhaustionReturnsNoResult(t *testing.T) {
	a, _ := newBackend(http.StatusServiceUnavailable, "down")
	defer a.Close()
	b, _ := newBackend(http.StatusServiceUnavailable, "down")
	defer b.Close()

	client, err := New("test", []string{a.URL, b.URL}, 5*time.Second)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, err = client.Get(context.Background(), "/")
	var noResult *balance.NoResultError
	if !errors.As(err, &noResult) {
		t.Fatalf("expected NoResultError, got %v", err)
	}
}

func TestDo_AttemptsShareRequestID(t *testing.T) {
	var ids []string
	record := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ids = append(ids, r.Header.Get("X-Request-ID"))
		w.WriteHeader(http.StatusBadGateway)
	})
	a := httptest.NewServer(record)
	defer a.Close()
	b := httptest.NewServer(record)
	defer b.Close()

	client, err := New("test", []string{a.URL, b.URL}, 5*time.Second)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	_, _ = client.Get(context.Background(), "/")

	if len(ids) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(ids))
	}
	if ids[0] == "" || ids[0] != ids[1] {
		t.Errorf("attempts did not share a request ID: %v", ids)
	}
}

func TestStats_RoundRobinDefaults(t *testing.T) {
	client, err := New("test", []string{"http://a.local", "http://b.local"}, time.Second)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	stats := client.Stats()
	if len(stats) != 2 {
		t.Fatalf("stats size = %d, want 2", len(stats))
	}
	for endpoint, status := range stats {
		if status != "n/a" {
			t.Errorf("stats[%s] = %q, want n/a", endpoint, status)
		}
	}
}
