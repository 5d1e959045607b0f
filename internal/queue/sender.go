package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SendResult captures the outcome of one delivery attempt. A failure
// before a response leaves StatusCode at 0 and sets Err; Transport
// marks it as a network-level failure rather than a local one.
type SendResult struct {
	StatusCode int
	Body       string
	Err        string
	Transport  bool
}

// Success reports whether the attempt got a 2xx response.
func (r *SendResult) Success() bool {
	return r.Err == "" && r.StatusCode >= 200 && r.StatusCode < 300
}

// Retryable reports whether the attempt failed for a transient reason:
// network-level error, no response, timeout (408), or a 5xx. Local
// errors (bad payload, malformed request) are permanent.
func (r *SendResult) Retryable() bool {
	if r.Err != "" {
		return r.Transport
	}
	return r.StatusCode == 0 || r.StatusCode == http.StatusRequestTimeout || r.StatusCode >= 500
}

// Describe renders the failure for lastError.
func (r *SendResult) Describe() string {
	if r.Err != "" {
		return r.Err
	}
	return fmt.Sprintf("HTTP %d: %s", r.StatusCode, r.Body)
}

type Sender struct {
	client *http.Client
}

func NewSender(timeout time.Duration) *Sender {
	return &Sender{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send delivers payload as JSON to url with the idempotency token in
// the Idempotency-Key header, so the receiver can no-op a duplicate
// delivery of the same logical submission.
func (s *Sender) Send(ctx context.Context, method, url, idempotencyKey string, payload map[string]any) *SendResult {
	body, err := json.Marshal(payload)
	if err != nil {
		return &SendResult{Err: fmt.Sprintf("failed to encode payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return &SendResult{Err: fmt.Sprintf("failed to create request: %v", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "formsync/1.0")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return &SendResult{Err: fmt.Sprintf("request failed: %v", err), Transport: true}
	}
	defer resp.Body.Close()

	// A 2xx body is handed back to the caller whole; failure bodies
	// only feed lastError, so those are capped.
	var respBody []byte
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		respBody, _ = io.ReadAll(resp.Body)
	} else {
		respBody, _ = io.ReadAll(io.LimitReader(resp.Body, 4096))
	}

	return &SendResult{
		StatusCode: resp.StatusCode,
		Body:       string(respBody),
	}
}
