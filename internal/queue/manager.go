package queue

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/shohag/formsync/internal/models"
	"github.com/shohag/formsync/internal/storage"
)

// ErrFlushInProgress is returned by Flush when another flush run is
// already in flight. The caller's trigger is simply dropped; the
// running flush covers the same snapshot of queued entries.
var ErrFlushInProgress = errors.New("flush already in progress")

type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	SendTimeout time.Duration

	// Sleep is the backoff wait. Overridable in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Manager owns the submission state machine: it enqueues entries,
// replays queued ones against the network with exponential backoff,
// classifies outcomes, and reports aggregate statistics.
type Manager struct {
	store    storage.Store
	sender   *Sender
	backoff  Backoff
	cfg      Config
	log      zerolog.Logger
	flushing atomic.Bool
}

func NewManager(cfg Config, store storage.Store, log zerolog.Logger) *Manager {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}

	return &Manager{
		store:   store,
		sender:  NewSender(cfg.SendTimeout),
		backoff: Backoff{Base: cfg.BaseDelay, Max: cfg.MaxDelay},
		cfg:     cfg,
		log:     log,
	}
}

// Sender exposes the manager's HTTP sender so the submission gateway
// reuses the same delivery contract for direct online attempts.
func (m *Manager) Sender() *Sender {
	return m.sender
}

// Add enqueues a payload for later delivery. The clientSubmissionId
// idempotency token is generated if the payload does not carry one and
// is embedded in both the stored payload and the entry itself.
func (m *Manager) Add(ctx context.Context, endpoint, method string, payload map[string]any) (*models.QueuedSubmission, error) {
	if method == "" {
		method = http.MethodPost
	}

	p := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		p[k] = v
	}
	token, _ := p[models.ClientSubmissionIDField].(string)
	if token == "" {
		token = models.NewClientSubmissionID()
		p[models.ClientSubmissionIDField] = token
	}

	now := time.Now().UTC()
	sub := &models.QueuedSubmission{
		ID:                 models.NewID("sub"),
		Endpoint:           endpoint,
		Method:             method,
		Payload:            p,
		ClientSubmissionID: token,
		Status:             models.StatusQueued,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := m.store.Put(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to enqueue submission: %w", err)
	}

	m.log.Info().
		Str("submission_id", sub.ID).
		Str("endpoint", sub.Endpoint).
		Str("method", sub.Method).
		Msg("submission queued")

	return sub, nil
}

// Flush attempts delivery of all currently queued entries, oldest
// first, strictly one at a time. Concurrent calls collapse into the
// run already in flight and get ErrFlushInProgress.
func (m *Manager) Flush(ctx context.Context) (models.FlushStats, error) {
	if !m.flushing.CompareAndSwap(false, true) {
		return models.FlushStats{}, ErrFlushInProgress
	}
	defer m.flushing.Store(false)

	var stats models.FlushStats

	subs, err := m.store.GetByStatus(ctx, models.StatusQueued)
	if err != nil {
		return stats, fmt.Errorf("failed to read queued submissions: %w", err)
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})

	for _, sub := range subs {
		if sub.Attempts >= m.cfg.MaxAttempts {
			m.markFailed(ctx, sub.ID, fmt.Sprintf("Max retry attempts exceeded (%d)", m.cfg.MaxAttempts))
			stats.Processed++
			stats.Failed++
			continue
		}

		// An aborted backoff wait ends the run before the entry is
		// touched, so it must not count as processed.
		if sub.Attempts > 0 {
			if err := m.cfg.Sleep(ctx, m.backoff.Delay(sub.Attempts)); err != nil {
				break
			}
		}

		stats.Processed++
		switch m.processOne(ctx, sub) {
		case models.StatusSent:
			stats.Succeeded++
		case models.StatusFailed:
			stats.Failed++
		}
	}

	remaining, err := m.store.Count(ctx, models.StatusQueued)
	if err != nil {
		m.log.Error().Err(err).Msg("failed to count remaining submissions")
	}
	stats.Remaining = remaining

	return stats, nil
}

// processOne drives a single entry through queued -> sending and on to
// its outcome. Returns the terminal status of this attempt, or
// StatusQueued when the entry was re-queued for a later retry.
func (m *Manager) processOne(ctx context.Context, sub models.QueuedSubmission) models.SubmissionStatus {
	attempts := sub.Attempts + 1
	sending := models.StatusSending
	if err := m.store.Update(ctx, sub.ID, storage.Update{Status: &sending, Attempts: &attempts}); err != nil {
		// Deleted by a concurrent maintenance op; nothing to deliver.
		m.log.Warn().Err(err).Str("submission_id", sub.ID).Msg("skipping submission")
		return ""
	}

	result := m.sender.Send(ctx, sub.Method, sub.Endpoint, sub.ClientSubmissionID, sub.Payload)

	switch {
	case result.Success():
		if err := m.store.Delete(ctx, sub.ID); err != nil {
			m.log.Error().Err(err).Str("submission_id", sub.ID).Msg("failed to delete sent submission")
		}
		m.log.Info().
			Str("submission_id", sub.ID).
			Int("status_code", result.StatusCode).
			Int("attempt", attempts).
			Msg("submission delivered")
		return models.StatusSent

	case result.Retryable() && attempts < m.cfg.MaxAttempts:
		queued := models.StatusQueued
		lastErr := result.Describe()
		if err := m.store.Update(ctx, sub.ID, storage.Update{Status: &queued, LastError: &lastErr}); err != nil {
			m.log.Error().Err(err).Str("submission_id", sub.ID).Msg("failed to requeue submission")
		}
		m.log.Warn().
			Str("submission_id", sub.ID).
			Int("attempt", attempts).
			Str("error", lastErr).
			Msg("submission delivery failed, will retry")
		return models.StatusQueued

	case result.Retryable():
		m.markFailed(ctx, sub.ID, fmt.Sprintf("Max retry attempts exceeded (%d): %s", m.cfg.MaxAttempts, result.Describe()))
		m.log.Warn().
			Str("submission_id", sub.ID).
			Int("attempts", attempts).
			Msg("submission permanently failed, retries exhausted")
		return models.StatusFailed

	default:
		m.markFailed(ctx, sub.ID, result.Describe())
		m.log.Warn().
			Str("submission_id", sub.ID).
			Int("status_code", result.StatusCode).
			Msg("submission rejected, not retrying")
		return models.StatusFailed
	}
}

func (m *Manager) markFailed(ctx context.Context, id, reason string) {
	failed := models.StatusFailed
	if err := m.store.Update(ctx, id, storage.Update{Status: &failed, LastError: &reason}); err != nil {
		m.log.Error().Err(err).Str("submission_id", id).Msg("failed to mark submission failed")
	}
}

// Stats counts live entries by status.
func (m *Manager) Stats(ctx context.Context) (models.QueueStats, error) {
	var stats models.QueueStats
	var err error

	if stats.Queued, err = m.store.Count(ctx, models.StatusQueued); err != nil {
		return stats, err
	}
	if stats.Sending, err = m.store.Count(ctx, models.StatusSending); err != nil {
		return stats, err
	}
	if stats.Failed, err = m.store.Count(ctx, models.StatusFailed); err != nil {
		return stats, err
	}
	return stats, nil
}

// RetryFailed moves every failed entry back to queued with a fresh
// attempt budget and a cleared lastError. Returns how many were reset.
func (m *Manager) RetryFailed(ctx context.Context) (int, error) {
	subs, err := m.store.GetByStatus(ctx, models.StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to read failed submissions: %w", err)
	}

	queued := models.StatusQueued
	zero := 0
	empty := ""
	count := 0
	for _, sub := range subs {
		if err := m.store.Update(ctx, sub.ID, storage.Update{Status: &queued, Attempts: &zero, LastError: &empty}); err != nil {
			m.log.Error().Err(err).Str("submission_id", sub.ID).Msg("failed to reset submission")
			continue
		}
		count++
	}

	if count > 0 {
		m.log.Info().Int("count", count).Msg("failed submissions reset for retry")
	}
	return count, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
