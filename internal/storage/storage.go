package storage

import (
	"context"
	"errors"

	"github.com/shohag/formsync/internal/models"
)

var (
	// ErrNotFound is returned by GetByID and Update when no entry with
	// the given id exists. Update never recreates a deleted entry.
	ErrNotFound = errors.New("submission not found")

	// ErrDuplicateID is returned by Put when an entry with the same id
	// already exists. Enqueue is append-only.
	ErrDuplicateID = errors.New("submission id already exists")

	// ErrUnavailable marks the store as unreachable. Callers must treat
	// it as non-fatal and degrade to "not persisted".
	ErrUnavailable = errors.New("storage unavailable")
)

// Update is a partial set of fields merged into an existing entry.
// Nil fields are left untouched.
type Update struct {
	Status    *models.SubmissionStatus
	Attempts  *int
	LastError *string
}

// Store is durable CRUD over QueuedSubmission records, keyed by id and
// queryable by status. GetByStatus ordering is not guaranteed; the
// queue manager re-sorts by CreatedAt before processing.
type Store interface {
	Put(ctx context.Context, sub *models.QueuedSubmission) error
	GetByID(ctx context.Context, id string) (*models.QueuedSubmission, error)
	GetByStatus(ctx context.Context, status models.SubmissionStatus) ([]models.QueuedSubmission, error)
	Update(ctx context.Context, id string, upd Update) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context, statuses ...models.SubmissionStatus) (int, error)
	Clear(ctx context.Context) error

	Migrate(ctx context.Context) error
	Close() error
}
