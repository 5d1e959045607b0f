package queue

import (
	mrand "math/rand"
	"time"
)

// Backoff computes the wait before re-attempting an entry:
// min(Base * 2^attempts, Max) with a uniform ±20% jitter. An entry on
// its first attempt (attempts == 0) incurs no wait.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b Backoff) Delay(attempts int) time.Duration {
	if attempts <= 0 || b.Base <= 0 {
		return 0
	}

	d := b.Base
	for i := 0; i < attempts; i++ {
		if b.Max > 0 && d >= b.Max/2 {
			d = b.Max
			break
		}
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}

	jitter := time.Duration((mrand.Float64()*0.4 - 0.2) * float64(d))
	return d + jitter
}
