package storage

import (
	"context"
	"sync"

	"github.com/shohag/formsync/internal/models"
)

// MemoryStore keeps submissions in a map. It backs tests and serves as
// a degraded fallback when the durable store cannot be opened.
type MemoryStore struct {
	mu     sync.Mutex
	subs   map[string]models.QueuedSubmission
	closed bool
}

func NewMemory() *MemoryStore {
	return &MemoryStore{subs: make(map[string]models.QueuedSubmission)}
}

func (s *MemoryStore) Put(ctx context.Context, sub *models.QueuedSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrUnavailable
	}
	if _, ok := s.subs[sub.ID]; ok {
		return ErrDuplicateID
	}
	s.subs[sub.ID] = *sub
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*models.QueuedSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrUnavailable
	}
	sub, ok := s.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &sub, nil
}

func (s *MemoryStore) GetByStatus(ctx context.Context, status models.SubmissionStatus) ([]models.QueuedSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrUnavailable
	}
	var out []models.QueuedSubmission
	for _, sub := range s.subs {
		if sub.Status == status {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, upd Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrUnavailable
	}
	sub, ok := s.subs[id]
	if !ok {
		return ErrNotFound
	}
	if upd.Status != nil {
		sub.Status = *upd.Status
	}
	if upd.Attempts != nil {
		sub.Attempts = *upd.Attempts
	}
	if upd.LastError != nil {
		sub.LastError = *upd.LastError
	}
	s.subs[id] = sub
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrUnavailable
	}
	delete(s.subs, id)
	return nil
}

func (s *MemoryStore) Count(ctx context.Context, statuses ...models.SubmissionStatus) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrUnavailable
	}
	if len(statuses) == 0 {
		return len(s.subs), nil
	}
	count := 0
	for _, sub := range s.subs {
		for _, st := range statuses {
			if sub.Status == st {
				count++
				break
			}
		}
	}
	return count, nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrUnavailable
	}
	s.subs = make(map[string]models.QueuedSubmission)
	return nil
}

func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
