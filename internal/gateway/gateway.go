// Package gateway is the single entry point forms call to submit data.
// It hides the online/offline decision: online submissions go straight
// to the backend, retryable failures and offline submissions land in
// the durable queue.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/shohag/formsync/internal/connectivity"
	"github.com/shohag/formsync/internal/models"
	"github.com/shohag/formsync/internal/queue"
)

// DeliveryError is a non-retryable rejection from the backend. The
// response body is kept verbatim so validation messages reach the user.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Result is the tagged outcome of a submission.
//
//   - Success: delivered now; Data holds the response body.
//   - Queued: accepted for later delivery; Entry is the queued record.
//     Callers should treat this as a soft success.
//   - Neither: a hard failure requiring user correction; Err explains.
type Result struct {
	Success bool
	Queued  bool
	Data    json.RawMessage
	Entry   *models.QueuedSubmission
	Err     error
}

type Gateway struct {
	manager *queue.Manager
	conn    connectivity.Monitor
	log     zerolog.Logger
}

func New(manager *queue.Manager, conn connectivity.Monitor, log zerolog.Logger) *Gateway {
	return &Gateway{manager: manager, conn: conn, log: log}
}

// Submit POSTs payload to endpoint, falling back to the queue when
// offline or when the failure is retryable.
func (g *Gateway) Submit(ctx context.Context, endpoint string, payload map[string]any) Result {
	return g.submit(ctx, http.MethodPost, endpoint, payload)
}

// SubmitPatch is Submit with the PATCH verb; a queued entry remembers
// the verb so a later flush replays it unchanged.
func (g *Gateway) SubmitPatch(ctx context.Context, endpoint string, payload map[string]any) Result {
	return g.submit(ctx, http.MethodPatch, endpoint, payload)
}

func (g *Gateway) submit(ctx context.Context, method, endpoint string, payload map[string]any) Result {
	// The idempotency token is fixed before any network I/O so every
	// retry of this logical submission reuses the same value.
	p := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		p[k] = v
	}
	token, _ := p[models.ClientSubmissionIDField].(string)
	if token == "" {
		token = models.NewClientSubmissionID()
		p[models.ClientSubmissionIDField] = token
	}

	if !g.conn.Online() {
		g.log.Info().Str("endpoint", endpoint).Msg("offline, queueing submission")
		return g.enqueue(ctx, method, endpoint, p, nil)
	}

	result := g.manager.Sender().Send(ctx, method, endpoint, token, p)

	switch {
	case result.Success():
		return Result{Success: true, Data: json.RawMessage(result.Body)}

	case result.Retryable():
		sendErr := errors.New(result.Describe())
		g.log.Warn().
			Str("endpoint", endpoint).
			Str("error", result.Describe()).
			Msg("submission failed, queueing for retry")
		return g.enqueue(ctx, method, endpoint, p, sendErr)

	default:
		// Validation errors surface immediately; retrying a malformed
		// request would fail identically.
		return Result{Err: &DeliveryError{StatusCode: result.StatusCode, Body: result.Body}}
	}
}

func (g *Gateway) enqueue(ctx context.Context, method, endpoint string, payload map[string]any, sendErr error) Result {
	entry, err := g.manager.Add(ctx, endpoint, method, payload)
	if err != nil {
		g.log.Error().Err(err).Str("endpoint", endpoint).Msg("failed to queue submission")
		if sendErr != nil {
			err = errors.Join(sendErr, err)
		}
		return Result{Err: err}
	}
	return Result{Queued: true, Entry: entry, Err: sendErr}
}
