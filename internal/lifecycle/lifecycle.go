// Package lifecycle runs the process-wide background behavior of the
// queue: a flush at startup, on every offline-to-online transition,
// and periodically as a safety net against missed transitions.
package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shohag/formsync/internal/connectivity"
	"github.com/shohag/formsync/internal/notify"
	"github.com/shohag/formsync/internal/queue"
)

type Config struct {
	FlushInterval time.Duration
}

type Service struct {
	manager  *queue.Manager
	conn     connectivity.Monitor
	bus      *notify.Broadcaster
	interval time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	stop    chan struct{}
	wg      sync.WaitGroup
	running bool
}

func New(cfg Config, manager *queue.Manager, conn connectivity.Monitor, bus *notify.Broadcaster, log zerolog.Logger) *Service {
	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Service{
		manager:  manager,
		conn:     conn,
		bus:      bus,
		interval: interval,
		log:      log,
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})

	online, cancel := s.conn.OnOnline()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.run(ctx, online)
	}()

	s.log.Info().Dur("flush_interval", s.interval).Msg("queue lifecycle started")
}

func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info().Msg("queue lifecycle stopped")
}

func (s *Service) run(ctx context.Context, online <-chan struct{}) {
	s.flush(ctx, "startup")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-online:
			s.flush(ctx, "online")
		case <-ticker.C:
			if s.conn.Online() {
				s.flush(ctx, "periodic")
			}
		}
	}
}

func (s *Service) flush(ctx context.Context, trigger string) {
	stats, err := s.manager.Flush(ctx)
	if errors.Is(err, queue.ErrFlushInProgress) {
		s.log.Debug().Str("trigger", trigger).Msg("flush already running, trigger dropped")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("trigger", trigger).Msg("flush failed")
		return
	}

	if stats.Processed > 0 {
		s.log.Info().
			Str("trigger", trigger).
			Int("sent", stats.Succeeded).
			Int("failed", stats.Failed).
			Int("remaining", stats.Remaining).
			Msg("queue flushed")
	}

	if stats.Succeeded > 0 {
		s.bus.Broadcast()
	}
}
