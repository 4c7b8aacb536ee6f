package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestComplete_Success(t *testing.T) {
	var gotReq request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("anthropic-version header missing")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[{"type":"text","text":"hello there"}],"stop_reason":"end_turn"}`))
	}))
	defer server.Close()

	c := NewClient("test-key", "test-model")
	c.SetBaseURL(server.URL)

	got, err := c.Complete(context.Background(), "be brief", []Message{{Role: "user", Content: "hi"}}, 100, 0.7)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "hello there" {
		t.Errorf("got %q", got)
	}
	if gotReq.Model != "test-model" || gotReq.MaxTokens != 100 || gotReq.System != "be brief" {
		t.Errorf("request fields: %+v", gotReq)
	}
	if gotReq.Temperature != 0.7 {
		t.Errorf("temperature = %v", gotReq.Temperature)
	}
}

func TestComplete_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer server.Close()

	c := NewClient("test-key", "test-model")
	c.SetBaseURL(server.URL)

	_, err := c.Complete(context.Background(), "", []Message{{Role: "user", Content: "hi"}}, 100, 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "rate_limit_error") {
		t.Errorf("error = %v", err)
	}
}

func TestComplete_NoRetryOnAPIError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"type":"api_error","message":"boom"}}`))
	}))
	defer server.Close()

	c := NewClient("test-key", "test-model")
	c.SetBaseURL(server.URL)

	if _, err := c.Complete(context.Background(), "", []Message{{Role: "user", Content: "hi"}}, 100, 0); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestComplete_TransportErrorRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	c := NewClient("test-key", "test-model")
	c.SetBaseURL(server.URL)

	_, err := c.Complete(context.Background(), "", []Message{{Role: "user", Content: "hi"}}, 100, 0)
	if err == nil {
		t.Fatal("expected error for unreachable endpoint")
	}
	if !strings.Contains(err.Error(), "api call") {
		t.Errorf("error = %v", err)
	}
}

func TestComplete_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[]}`))
	}))
	defer server.Close()

	c := NewClient("test-key", "test-model")
	c.SetBaseURL(server.URL)

	if _, err := c.Complete(context.Background(), "", []Message{{Role: "user", Content: "hi"}}, 100, 0); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestComplete_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient("test-key", "test-model")
	if _, err := c.Complete(ctx, "", []Message{{Role: "user", Content: "hi"}}, 100, 0); err == nil {
		t.Fatal("expected context error")
	}
}
