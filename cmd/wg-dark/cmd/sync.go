package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/chiquitav2/wg-dark/internal/shared/events"
	"github.com/chiquitav2/wg-dark/internal/shared/logger"
)

// syncReporter turns poller events into user lines. Only changes in sync
// health are printed; every poll is logged at debug.
type syncReporter struct {
	out io.Writer
	log *logger.Logger

	mu       sync.Mutex
	failures int
}

func newSyncReporter(out io.Writer, log *logger.Logger) *syncReporter {
	return &syncReporter{out: out, log: log}
}

// subscribe registers the reporter for merge and poll failure events.
func (r *syncReporter) subscribe(bus *events.Bus) error {
	if err := bus.Subscribe(events.TypePeersMerged, events.TypedHandler(r.onMerged)); err != nil {
		return fmt.Errorf("failed to subscribe to peer merges: %w", err)
	}
	if err := bus.Subscribe(events.TypePollFailed, events.TypedHandler(r.onFailed)); err != nil {
		return fmt.Errorf("failed to subscribe to poll failures: %w", err)
	}
	return nil
}

func (r *syncReporter) onMerged(ctx context.Context, e *events.PeersMerged) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.log.DebugContext(ctx, "peer list synced", slog.String("interface", e.Interface), slog.Int("bytes", e.Bytes))
	if r.failures > 0 {
		fmt.Fprintf(r.out, "Peer sync restored on %s after %d failed polls\n", e.Interface, r.failures)
		r.failures = 0
	}
	return nil
}

func (r *syncReporter) onFailed(ctx context.Context, e *events.PollFailed) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.log.DebugContext(ctx, "peer sync failed", slog.String("interface", e.Interface), slog.Any("error", e.Err))
	r.failures++
	if r.failures == 1 {
		fmt.Fprintf(r.out, "Peer sync failing on %s, retrying: %v\n", e.Interface, e.Err)
	}
	return nil
}
