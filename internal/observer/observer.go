// Package observer is a read-only, near-real-time view of queue depth
// for status indicators. It polls on a fixed interval and wakes up
// early whenever a "queue changed" notification fires.
package observer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shohag/formsync/internal/notify"
	"github.com/shohag/formsync/internal/queue"
)

// Snapshot is the last observed queue depth. Ready is false until the
// first successful fetch completes.
type Snapshot struct {
	Queued  int  `json:"queued"`
	Sending int  `json:"sending"`
	Failed  int  `json:"failed"`
	Total   int  `json:"total"`
	Ready   bool `json:"ready"`
}

type Observer struct {
	manager  *queue.Manager
	bus      *notify.Broadcaster
	interval time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	snap    Snapshot
	stop    chan struct{}
	wg      sync.WaitGroup
	running bool
}

func New(manager *queue.Manager, bus *notify.Broadcaster, interval time.Duration, log zerolog.Logger) *Observer {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Observer{
		manager:  manager,
		bus:      bus,
		interval: interval,
		log:      log,
	}
}

func (o *Observer) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return
	}
	o.running = true
	o.stop = make(chan struct{})

	changed, cancel := o.bus.Subscribe()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()

		o.Refresh(ctx)

		ticker := time.NewTicker(o.interval)
		defer ticker.Stop()

		for {
			select {
			case <-o.stop:
				return
			case <-ctx.Done():
				return
			case <-changed:
				o.Refresh(ctx)
			case <-ticker.C:
				o.Refresh(ctx)
			}
		}
	}()
}

func (o *Observer) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	close(o.stop)
	o.mu.Unlock()

	o.wg.Wait()
}

// Refresh fetches current stats immediately. On a store failure the
// previous snapshot is kept.
func (o *Observer) Refresh(ctx context.Context) {
	stats, err := o.manager.Stats(ctx)
	if err != nil {
		o.log.Warn().Err(err).Msg("failed to refresh queue stats")
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.snap = Snapshot{
		Queued:  stats.Queued,
		Sending: stats.Sending,
		Failed:  stats.Failed,
		Total:   stats.Total(),
		Ready:   true,
	}
}

// Stats returns the last observed snapshot.
func (o *Observer) Stats() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap
}
