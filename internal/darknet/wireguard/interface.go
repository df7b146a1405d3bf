package wireguard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chiquitav2/wg-dark/internal/shared/errors"
	"github.com/chiquitav2/wg-dark/internal/shared/logger"
	"github.com/chiquitav2/wg-dark/pkg/crypto"
)

// Options are the link parameters applied at bring-up.
type Options struct {
	MTU         int
	ListenPort  int
	RouteSubnet string
}

// DefaultOptions returns the darknet defaults.
func DefaultOptions() Options {
	return Options{
		MTU:         DefaultMTU,
		ListenPort:  DefaultListenPort,
		RouteSubnet: DefaultSubnet,
	}
}

// ConfigSink mirrors every applied stanza to persistent storage.
type ConfigSink interface {
	WriteInterface(name, stanza string) error
	AppendPeers(name, stanzas string) error
}

// Interface serializes all controller operations on one named interface.
// It is brought up at most once, accepts peer merges only while up, and is
// torn down at most once. After Down every mutation fails with
// errors.ErrInterfaceClosed.
type Interface struct {
	name   string
	ctrl   Controller
	opts   Options
	sink   ConfigSink
	logger *logger.Logger

	mu     sync.Mutex
	up     bool
	closed bool
}

// NewInterface binds a controller to an interface name. sink may be nil.
func NewInterface(name string, ctrl Controller, opts Options, sink ConfigSink, log *logger.Logger) *Interface {
	if log == nil {
		log = logger.NewDiscard()
	}
	return &Interface{
		name:   name,
		ctrl:   ctrl,
		opts:   opts,
		sink:   sink,
		logger: log.WithComponent("wireguard"),
	}
}

// Name returns the interface name.
func (i *Interface) Name() string { return i.name }

// IsUp reports whether bring-up was attempted and teardown has not run.
func (i *Interface) IsUp() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.up && !i.closed
}

// Up creates and configures the interface in order: create, MTU, address,
// link up, route, then private key and listen port. A failed route is only
// logged. Any other failure aborts without undoing earlier steps.
func (i *Interface) Up(ctx context.Context, kp *crypto.KeyPair, address string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return errors.ErrInterfaceClosed
	}
	if i.up {
		return errors.ErrAlreadyUp
	}
	i.up = true

	op := i.logger.StartOp(ctx, "interface-up", slog.String("address", address))

	steps := []struct {
		name string
		fn   func() error
	}{
		{"create interface", func() error { return i.ctrl.CreateInterface(i.name) }},
		{"set mtu", func() error { return i.ctrl.SetMTU(i.name, i.opts.MTU) }},
		{"set address", func() error { return i.ctrl.SetAddress(i.name, address) }},
		{"set link up", func() error { return i.ctrl.SetLinkUp(i.name) }},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			i.logger.DebugContext(ctx, "bring-up step failed", slog.String("step", step.name), slog.Any("error", err))
			return fmt.Errorf("failed to %s: %w", step.name, err)
		}
		op.Progress(step.name)
	}

	if i.opts.RouteSubnet != "" {
		if err := i.ctrl.AddRoute(i.name, i.opts.RouteSubnet); err != nil {
			// The route may already exist.
			i.logger.WarnCtx(ctx, "route add failed, continuing", err, slog.String("subnet", i.opts.RouteSubnet))
		}
	}

	if err := i.ctrl.SetPrivateKeyAndListenPort(i.name, kp.PrivateKey, i.opts.ListenPort); err != nil {
		i.logger.DebugContext(ctx, "bring-up step failed", slog.String("step", "set private key"), slog.Any("error", err))
		return fmt.Errorf("failed to set private key: %w", err)
	}
	if i.sink != nil {
		if err := i.sink.WriteInterface(i.name, RenderInterface(kp.PrivateKey, i.opts.ListenPort)); err != nil {
			i.logger.WarnCtx(ctx, "failed to persist interface stanza", err)
		}
	}

	op.Complete("interface up")
	return nil
}

// AddPeer merges a peer config blob. Previously merged stanzas are kept.
func (i *Interface) AddPeer(ctx context.Context, config string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return errors.ErrInterfaceClosed
	}
	if !i.up {
		return errors.ErrNotUp
	}
	// Teardown cancels before it takes the lock for Down.
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := i.ctrl.AddPeerConfig(i.name, config); err != nil {
		return fmt.Errorf("failed to merge peer config: %w", err)
	}
	if i.sink != nil {
		if err := i.sink.AppendPeers(i.name, config); err != nil {
			i.logger.WarnCtx(ctx, "failed to persist peer stanzas", err)
		}
	}
	return nil
}

// AttachSink starts mirroring later merges to sink.
func (i *Interface) AttachSink(sink ConfigSink) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.sink = sink
}

// Down destroys the interface. Only the first call has any effect; later
// calls return errors.ErrInterfaceClosed.
func (i *Interface) Down(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return errors.ErrInterfaceClosed
	}
	i.closed = true
	if !i.up {
		return errors.ErrNotUp
	}

	if err := i.ctrl.DestroyInterface(i.name); err != nil {
		i.logger.ErrorCtx(ctx, "failed to destroy interface", err)
		return fmt.Errorf("failed to destroy interface: %w", err)
	}
	i.logger.InfoContext(ctx, "interface destroyed")
	return nil
}
