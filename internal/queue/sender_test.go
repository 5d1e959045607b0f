package queue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSendResult_Classification(t *testing.T) {
	cases := []struct {
		name      string
		result    SendResult
		success   bool
		retryable bool
	}{
		{"ok", SendResult{StatusCode: 200}, true, false},
		{"created", SendResult{StatusCode: 201}, true, false},
		{"timeout", SendResult{StatusCode: 408}, false, true},
		{"server error", SendResult{StatusCode: 500}, false, true},
		{"bad gateway", SendResult{StatusCode: 502}, false, true},
		{"no response", SendResult{StatusCode: 0}, false, true},
		{"bad request", SendResult{StatusCode: 400, Body: "nope"}, false, false},
		{"not found", SendResult{StatusCode: 404, Body: "Not Found"}, false, false},
		{"conflict", SendResult{StatusCode: 409}, false, false},
		{"transport error", SendResult{Err: "request failed: connection refused", Transport: true}, false, true},
		{"local error", SendResult{Err: "failed to encode payload"}, false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.result.Success(); got != tc.success {
				t.Errorf("Success() = %v, want %v", got, tc.success)
			}
			if got := tc.result.Retryable(); got != tc.retryable {
				t.Errorf("Retryable() = %v, want %v", got, tc.retryable)
			}
		})
	}
}

func TestSender_SetsDeliveryHeaders(t *testing.T) {
	var gotMethod, gotKey, gotContentType string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotKey = r.Header.Get("Idempotency-Key")
		gotContentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":"x"}`))
	}))
	defer srv.Close()

	s := NewSender(5 * time.Second)
	result := s.Send(context.Background(), http.MethodPatch, srv.URL, "tok-123", map[string]any{"a": float64(1)})

	if !result.Success() {
		t.Fatalf("expected success, got %+v", result)
	}
	if gotMethod != http.MethodPatch {
		t.Errorf("method = %s, want PATCH", gotMethod)
	}
	if gotKey != "tok-123" {
		t.Errorf("Idempotency-Key = %q, want tok-123", gotKey)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if gotBody["a"] != float64(1) {
		t.Errorf("body = %v", gotBody)
	}
	if result.Body != `{"id":"x"}` {
		t.Errorf("response body = %q", result.Body)
	}
}

func TestSender_BodyCapOnlyAppliesToFailures(t *testing.T) {
	big := strings.Repeat("y", 5000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusInternalServerError)
		}
		w.Write([]byte(big))
	}))
	defer srv.Close()

	s := NewSender(5 * time.Second)

	ok := s.Send(context.Background(), http.MethodPost, srv.URL+"/ok", "tok", map[string]any{"a": float64(1)})
	if !ok.Success() {
		t.Fatalf("expected success, got %+v", ok)
	}
	if len(ok.Body) != len(big) {
		t.Errorf("success body length = %d, want %d", len(ok.Body), len(big))
	}

	fail := s.Send(context.Background(), http.MethodPost, srv.URL+"/fail", "tok", map[string]any{"a": float64(1)})
	if fail.Success() {
		t.Fatalf("expected failure, got %+v", fail)
	}
	if len(fail.Body) != 4096 {
		t.Errorf("failure body length = %d, want capped at 4096", len(fail.Body))
	}
}

func TestSender_TransportFailure(t *testing.T) {
	s := NewSender(time.Second)
	result := s.Send(context.Background(), http.MethodPost, "http://127.0.0.1:1/api", "tok", map[string]any{})

	if result.Err == "" || !result.Transport {
		t.Fatalf("expected transport error, got %+v", result)
	}
	if !result.Retryable() {
		t.Fatal("transport failure must be retryable")
	}
	if !strings.Contains(result.Describe(), "request failed") {
		t.Errorf("Describe() = %q", result.Describe())
	}
}
