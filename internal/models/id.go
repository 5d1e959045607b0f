package models

import (
	"fmt"
	mrand "math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

func NewID(prefix string) string {
	t := time.Now()
	entropy := ulid.Monotonic(mrand.New(mrand.NewSource(t.UnixNano())), 0)
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	return fmt.Sprintf("%s_%s", prefix, id.String())
}

// NewClientSubmissionID generates the idempotency token embedded in a
// payload and sent as the Idempotency-Key header. It is generated once
// per logical submission and never regenerated on retry.
func NewClientSubmissionID() string {
	return uuid.NewString()
}
