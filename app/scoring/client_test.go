package scoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(serverURL string, maxAttempts int) *Client {
	return NewClient(serverURL, "feedranker-test/1.0", 5*time.Second, maxAttempts)
}

func TestScore_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rank" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("url"); got != "https://example.com/article" {
			t.Errorf("Unexpected url parameter %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != "feedranker-test/1.0" {
			t.Errorf("Unexpected user agent %q", got)
		}
		w.Write([]byte(`{"rank": 9.2}`))
	}))
	defer server.Close()

	score, err := newTestClient(server.URL, 3).Score(context.Background(), "https://example.com/article")
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if score != 9.2 {
		t.Errorf("Expected score 9.2, got %f", score)
	}
}

func TestScore_PermanentRejectionNotRetried(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, 3).Score(context.Background(), "https://example.com/article")
	if !errors.Is(err, ErrPermanent) {
		t.Fatalf("Expected ErrPermanent, got %v", err)
	}
	if n := requests.Load(); n != 1 {
		t.Errorf("Permanent rejection should not be retried, saw %d requests", n)
	}
}

func TestScore_ZeroIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rank": 0}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, 3).Score(context.Background(), "https://example.com/article")
	if !errors.Is(err, ErrPermanent) {
		t.Fatalf("Expected ErrPermanent for zero score, got %v", err)
	}
}

func TestScore_TransientRetried(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"rank": 4.5}`))
	}))
	defer server.Close()

	score, err := newTestClient(server.URL, 2).Score(context.Background(), "https://example.com/article")
	if err != nil {
		t.Fatalf("Score failed after retry: %v", err)
	}
	if score != 4.5 {
		t.Errorf("Expected score 4.5, got %f", score)
	}
	if n := requests.Load(); n != 2 {
		t.Errorf("Expected 2 requests, got %d", n)
	}
}

func TestScore_TransientExhaustsAttempts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, 1).Score(context.Background(), "https://example.com/article")
	if err == nil {
		t.Fatal("Expected error after exhausting attempts")
	}
	if errors.Is(err, ErrPermanent) {
		t.Error("Server errors should stay transient")
	}
}

func TestScore_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(server.URL, 3).Score(ctx, "https://example.com/article")
	if err == nil {
		t.Fatal("Expected error for cancelled context")
	}
}

func TestCorrections(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/corrections" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("since"); got != "42" {
			t.Errorf("Unexpected since parameter %q", got)
		}
		w.Write([]byte(`{"items": [
			{"url": "https://example.com/a", "score": 7.0, "version": 43},
			{"url": "https://example.com/b", "score": 2.5, "version": 44}
		]}`))
	}))
	defer server.Close()

	items, err := newTestClient(server.URL, 3).Corrections(context.Background(), 42)
	if err != nil {
		t.Fatalf("Corrections failed: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("Expected 2 corrections, got %d", len(items))
	}
	if items[0].URL != "https://example.com/a" || items[0].Score != 7.0 || items[0].Version != 43 {
		t.Errorf("Unexpected first correction: %+v", items[0])
	}
}

func TestCorrections_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	if _, err := newTestClient(server.URL, 3).Corrections(context.Background(), 0); err == nil {
		t.Error("Expected error for failed corrections fetch")
	}
}
