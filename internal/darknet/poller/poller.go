// Package poller periodically fetches the darknet peer list and merges it
// into the local interface.
package poller

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/chiquitav2/wg-dark/internal/shared/errors"
	"github.com/chiquitav2/wg-dark/internal/shared/events"
	"github.com/chiquitav2/wg-dark/internal/shared/logger"
	"github.com/chiquitav2/wg-dark/pkg/api"
)

// DefaultInterval is the fixed status poll period.
const DefaultInterval = 20 * time.Second

// Fetcher retrieves the current peer list.
type Fetcher interface {
	Status(ctx context.Context) (*api.StatusResponse, error)
}

// Merger applies a peer config blob additively.
type Merger interface {
	Name() string
	AddPeer(ctx context.Context, config string) error
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(p *Poller) { p.clock = c }
}

// WithBus publishes poll outcomes on the given bus.
func WithBus(bus *events.Bus) Option {
	return func(p *Poller) { p.bus = bus }
}

// Poller ticks at a fixed interval. A failed poll is logged and the loop
// carries on; there is no backoff and no failure cap. It stops only when the
// context passed to Start is cancelled.
type Poller struct {
	fetcher  Fetcher
	merger   Merger
	interval time.Duration
	clock    clock.Clock
	bus      *events.Bus
	logger   *logger.Logger

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

// New creates a poller. A non-positive interval falls back to DefaultInterval.
func New(fetcher Fetcher, merger Merger, interval time.Duration, log *logger.Logger, opts ...Option) *Poller {
	if log == nil {
		log = logger.NewDiscard()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	p := &Poller{
		fetcher:  fetcher,
		merger:   merger,
		interval: interval,
		clock:    clock.New(),
		logger:   log.WithComponent("poller"),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start arms the ticker and runs the loop in a new goroutine. The ticker is
// created before Start returns.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("poller already started")
	}
	p.started = true

	ticker := p.clock.Ticker(p.interval)
	p.logger.InfoContext(ctx, "starting status poller", slog.Duration("interval", p.interval))

	go p.run(ctx, ticker)
	return nil
}

// Done is closed once the loop has exited.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the loop has exited. It returns at once if Start was
// never called.
func (p *Poller) Wait() {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return
	}
	<-p.done
}

func (p *Poller) run(ctx context.Context, ticker *clock.Ticker) {
	defer close(p.done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.DebugContext(ctx, "poller stopped")
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// pollOnce fetches and merges once. Nothing it returns stops the loop.
func (p *Poller) pollOnce(ctx context.Context) {
	status, err := p.fetcher.Status(ctx)
	if ctx.Err() != nil {
		// Shutting down; the response, if any, is dropped.
		return
	}
	if err != nil {
		p.logger.WarnCtx(ctx, "status poll failed", err)
		p.publish(ctx, events.NewPollFailed(p.merger.Name(), err))
		return
	}

	if strings.TrimSpace(status.Peers) == "" {
		p.logger.DebugContext(ctx, "status returned no peers")
		return
	}

	if err := p.merger.AddPeer(ctx, status.Peers); err != nil {
		if stderrors.Is(err, errors.ErrInterfaceClosed) || ctx.Err() != nil {
			return
		}
		p.logger.ErrorCtx(ctx, "failed to merge peers", err)
		p.publish(ctx, events.NewPollFailed(p.merger.Name(), err))
		return
	}

	p.logger.DebugContext(ctx, "merged peers", slog.Int("bytes", len(status.Peers)))
	p.publish(ctx, events.NewPeersMerged(p.merger.Name(), len(status.Peers)))
}

func (p *Poller) publish(ctx context.Context, event events.Event) {
	if err := p.bus.Publish(ctx, event); err != nil {
		p.logger.Debug("failed to publish poll event", slog.String("error", err.Error()))
	}
}
