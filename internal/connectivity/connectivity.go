// Package connectivity reports whether the network is reachable and
// signals offline-to-online transitions. It stands in for the browser
// online/offline events the queue was originally driven by.
package connectivity

import (
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Monitor exposes the current connectivity state and a subscription
// for offline-to-online transitions.
type Monitor interface {
	Online() bool
	// OnOnline registers a listener signalled on each offline->online
	// transition. The cancel func deregisters it.
	OnOnline() (<-chan struct{}, func())
}

// Static is a manually driven Monitor for tests and for embedders that
// already know their connectivity state.
type Static struct {
	mu     sync.Mutex
	online bool
	subs   map[int]chan struct{}
	next   int
}

func NewStatic(online bool) *Static {
	return &Static{online: online, subs: make(map[int]chan struct{})}
}

func (s *Static) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

func (s *Static) OnOnline() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
	return ch, cancel
}

// SetOnline flips the state, signalling subscribers when the state
// goes from offline to online.
func (s *Static) SetOnline(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasOnline := s.online
	s.online = online
	if online && !wasOnline {
		for _, ch := range s.subs {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

// Prober polls a TCP target to decide connectivity. A successful dial
// means online; a failed one means offline.
type Prober struct {
	*Static

	target   string
	interval time.Duration
	timeout  time.Duration
	log      zerolog.Logger
	stop     chan struct{}
	wg       sync.WaitGroup
}

func NewProber(target string, interval, timeout time.Duration, log zerolog.Logger) *Prober {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Prober{
		Static:   NewStatic(true),
		target:   target,
		interval: interval,
		timeout:  timeout,
		log:      log,
		stop:     make(chan struct{}),
	}
}

func (p *Prober) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.probe()
		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				p.probe()
			}
		}
	}()
}

func (p *Prober) Stop() {
	close(p.stop)
	p.wg.Wait()
}

func (p *Prober) probe() {
	conn, err := net.DialTimeout("tcp", p.target, p.timeout)
	if err != nil {
		if p.Online() {
			p.log.Warn().Str("target", p.target).Err(err).Msg("network unreachable, going offline")
		}
		p.SetOnline(false)
		return
	}
	conn.Close()
	if !p.Online() {
		p.log.Info().Str("target", p.target).Msg("network reachable again")
	}
	p.SetOnline(true)
}
