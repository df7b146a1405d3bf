package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/chiquitav2/wg-dark/internal/darknet"
	"github.com/chiquitav2/wg-dark/internal/darknet/client"
	"github.com/chiquitav2/wg-dark/internal/darknet/config"
	"github.com/chiquitav2/wg-dark/internal/darknet/poller"
	"github.com/chiquitav2/wg-dark/internal/darknet/state"
	"github.com/chiquitav2/wg-dark/internal/darknet/wireguard"
	"github.com/chiquitav2/wg-dark/internal/shared/events"
	"github.com/chiquitav2/wg-dark/internal/shared/logger"
)

// runtime is everything a join or start command needs.
type runtime struct {
	cfg       *config.Config
	log       *logger.Logger
	bus       *events.Bus
	client    *client.Client
	connector *darknet.Connector
}

// newRuntime wires the components. With dryRun the in-memory controller
// replaces ip/wg and nothing is persisted.
func newRuntime(cfg *config.Config, log *logger.Logger, dryRun bool) (*runtime, error) {
	bus := events.NewBus(log)
	if err := bus.Subscribe(events.TypeStateChanged, events.TypedHandler(
		func(ctx context.Context, e *events.StateChanged) error {
			log.DebugContext(ctx, "session state changed",
				slog.String("from", e.From),
				slog.String("to", e.To))
			return nil
		})); err != nil {
		return nil, fmt.Errorf("failed to subscribe to state changes: %w", err)
	}
	if err := newSyncReporter(os.Stdout, log).subscribe(bus); err != nil {
		return nil, err
	}

	opts := []client.Option{
		client.WithScheme(cfg.Scheme),
		client.WithTimeout(cfg.RequestTimeoutDuration()),
		client.WithUserAgent(cfg.UserAgent),
		client.WithStatusURL(cfg.StatusURL),
	}
	if cfg.InsecureSkipVerify {
		opts = append(opts, client.WithInsecureSkipVerify())
	}
	coord := client.NewClient(log, opts...)

	connOpts := darknet.Options{
		Config:      cfg,
		Coordinator: coord,
		Bus:         bus,
		Logger:      log,
	}
	if dryRun {
		connOpts.Controller = wireguard.NewFakeController()
		connOpts.Keys = wireguard.NativeKeyGenerator{}
	} else {
		ctrl := wireguard.NewExecController(nil, log)
		connOpts.Controller = ctrl
		connOpts.Keys = ctrl
		connOpts.Store = state.NewStore(cfg.StateDir, log)
	}

	conn, err := darknet.NewConnector(connOpts)
	if err != nil {
		return nil, err
	}

	return &runtime{cfg: cfg, log: log, bus: bus, client: coord, connector: conn}, nil
}

// supervise runs the poller until a shutdown signal and tears the session
// down. Teardown problems are logged by the supervisor and do not change the
// exit status.
func (rt *runtime) supervise(ctx context.Context, session *darknet.Session) {
	p := poller.New(rt.client, session.Interface(), rt.cfg.PollDuration(), rt.log, poller.WithBus(rt.bus))
	sup := darknet.NewSupervisor(session, rt.log, []darknet.Background{p})

	fmt.Printf("\nPress Ctrl+C to leave the darknet\n")
	if err := sup.Run(ctx); err != nil {
		fmt.Printf("Left darknet with errors: %v\n", err)
		return
	}
	fmt.Printf("Left darknet.\n")
}

func printSession(session *darknet.Session, cfg *config.Config) {
	fmt.Printf("   Interface: %s\n", session.Name())
	fmt.Printf("   Address: %s\n", session.Address())
	fmt.Printf("   Server key: %s\n", session.ServerPublicKey())
	fmt.Printf("   Endpoint: %s\n", session.Endpoint())
	fmt.Printf("   Syncing peers every %s\n", cfg.PollDuration())
}
