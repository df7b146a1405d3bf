package darknet

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/chiquitav2/wg-dark/internal/darknet/config"
	"github.com/chiquitav2/wg-dark/internal/darknet/invite"
	"github.com/chiquitav2/wg-dark/internal/darknet/state"
	"github.com/chiquitav2/wg-dark/internal/darknet/wireguard"
	"github.com/chiquitav2/wg-dark/internal/shared/events"
	"github.com/chiquitav2/wg-dark/internal/shared/logger"
	"github.com/chiquitav2/wg-dark/pkg/api"
	"github.com/chiquitav2/wg-dark/pkg/crypto"
)

// Coordinator performs the join round trip.
type Coordinator interface {
	Join(ctx context.Context, code invite.Code, publicKey string) (*api.JoinResponse, error)
}

// Connector brings a session from Idle to Active, either by joining with an
// invite or by restoring a persisted darknet.
type Connector struct {
	cfg         *config.Config
	coordinator Coordinator
	ctrl        wireguard.Controller
	keys        wireguard.KeyGenerator
	store       *state.Store
	bus         *events.Bus
	logger      *logger.Logger
	now         func() time.Time
}

// Options holds the Connector's collaborators. Store and Bus may be nil.
type Options struct {
	Config      *config.Config
	Coordinator Coordinator
	Controller  wireguard.Controller
	Keys        wireguard.KeyGenerator
	Store       *state.Store
	Bus         *events.Bus
	Logger      *logger.Logger
}

// NewConnector creates a connector. Keys defaults to in-process generation.
func NewConnector(opts Options) (*Connector, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Controller == nil {
		return nil, fmt.Errorf("interface controller is required")
	}
	if opts.Keys == nil {
		opts.Keys = wireguard.NativeKeyGenerator{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewDevelopment("connector")
	}

	return &Connector{
		cfg:         opts.Config,
		coordinator: opts.Coordinator,
		ctrl:        opts.Controller,
		keys:        opts.Keys,
		store:       opts.Store,
		bus:         opts.Bus,
		logger:      opts.Logger.WithComponent("connector"),
		now:         time.Now,
	}, nil
}

// Join parses the invite, generates a keypair, joins through the coordination
// server and brings the interface up with the server as its first peer. Any
// failure is fatal and leaves the session Terminated without teardown.
func (c *Connector) Join(ctx context.Context, rawInvite string) (*Session, error) {
	if c.coordinator == nil {
		return nil, fmt.Errorf("coordination client is required to join")
	}

	session := NewSession(c.cfg.Interface, c.bus)
	ctx = session.Context(ctx)
	if err := session.Transition(ctx, StateJoining); err != nil {
		return nil, err
	}

	code, err := invite.Parse(rawInvite)
	if err != nil {
		return session, c.abort(ctx, session, "invalid invite code", err)
	}

	kp, err := c.keys.GenerateKeypair()
	if err != nil {
		return session, c.abort(ctx, session, "failed to generate keypair", err)
	}

	c.logger.InfoContext(ctx, "joining darknet", slog.String("endpoint", code.Addr()))
	resp, err := c.coordinator.Join(ctx, code, kp.PublicKey)
	if err != nil {
		return session, c.abort(ctx, session, "join request failed", err)
	}

	iface := c.newInterface(session.Name(), c.cfg.InterfaceOptions())
	session.setInterface(iface)

	if err := iface.Up(ctx, kp, resp.Address); err != nil {
		return session, c.abort(ctx, session, "failed to bring up interface", err)
	}

	endpoint := net.JoinHostPort(code.Host, strconv.Itoa(c.cfg.ListenPort))
	server := wireguard.PeerStanza{
		PublicKey:           resp.PublicKey,
		Endpoint:            endpoint,
		AllowedIPs:          c.cfg.Subnet,
		PersistentKeepalive: c.cfg.PersistentKeepalive,
	}
	if err := iface.AddPeer(ctx, server.Render()); err != nil {
		return session, c.abort(ctx, session, "failed to add server as peer", err)
	}

	session.setMembership(kp, resp.Address, resp.PublicKey, endpoint, c.now().UTC())
	c.saveRecord(ctx, session)

	if err := session.Transition(ctx, StateActive); err != nil {
		return session, err
	}
	c.logger.InfoContext(ctx, "darknet joined",
		slog.String("address", resp.Address),
		slog.String("server_public_key", resp.PublicKey))
	return session, nil
}

// Start rebuilds a persisted darknet: same private key, same address, and
// every saved peer stanza merged again.
func (c *Connector) Start(ctx context.Context, name string) (*Session, error) {
	if c.store == nil {
		return nil, fmt.Errorf("state store is required to start a saved darknet")
	}
	if err := config.ValidateInterfaceName(name); err != nil {
		return nil, err
	}

	session := NewSession(name, c.bus)
	ctx = session.Context(ctx)
	if err := session.Transition(ctx, StateJoining); err != nil {
		return nil, err
	}

	saved, err := c.store.Load(name)
	if err != nil {
		return session, c.abort(ctx, session, "failed to load saved darknet", err)
	}

	kp, err := crypto.KeyPairFromPrivate(saved.Config.PrivateKey)
	if err != nil {
		return session, c.abort(ctx, session, "saved private key is invalid", err)
	}

	opts := c.cfg.InterfaceOptions()
	if saved.Config.ListenPort > 0 {
		opts.ListenPort = saved.Config.ListenPort
	}
	// The saved conf already holds everything being restored, so nothing is
	// written back until the restore has succeeded.
	iface := wireguard.NewInterface(name, c.ctrl, opts, nil, c.logger)
	session.setInterface(iface)

	if err := iface.Up(ctx, kp, saved.Record.Address); err != nil {
		return session, c.abort(ctx, session, "failed to bring up interface", err)
	}
	if saved.Config.Peers != "" {
		if err := iface.AddPeer(ctx, saved.Config.Peers); err != nil {
			return session, c.abort(ctx, session, "failed to restore peers", err)
		}
	}
	iface.AttachSink(c.store)

	joinedAt := saved.Record.JoinedAt
	if joinedAt.IsZero() {
		joinedAt = c.now().UTC()
	}
	session.setMembership(kp, saved.Record.Address, saved.Record.ServerPublicKey, saved.Record.Endpoint, joinedAt)
	c.saveRecord(ctx, session)

	if err := session.Transition(ctx, StateActive); err != nil {
		return session, err
	}
	c.logger.InfoContext(ctx, "darknet started",
		slog.String("address", saved.Record.Address),
		slog.Int("peers", len(saved.Config.PeerList)))
	return session, nil
}

func (c *Connector) newInterface(name string, opts wireguard.Options) *wireguard.Interface {
	// A nil *state.Store must not become a non-nil ConfigSink.
	var sink wireguard.ConfigSink
	if c.store != nil {
		sink = c.store
	}
	return wireguard.NewInterface(name, c.ctrl, opts, sink, c.logger)
}

func (c *Connector) saveRecord(ctx context.Context, session *Session) {
	if c.store == nil {
		return
	}
	kp := session.KeyPair()
	record := &state.Record{
		Name:            session.Name(),
		SessionID:       session.ID(),
		Address:         session.Address(),
		PublicKey:       kp.PublicKey,
		ServerPublicKey: session.ServerPublicKey(),
		Endpoint:        session.Endpoint(),
		JoinedAt:        session.JoinedAt(),
	}
	if err := c.store.SaveRecord(record); err != nil {
		c.logger.WarnCtx(ctx, "failed to save session record", err)
	}
}

// abort terminates the session and wraps err. Reporting the error is left
// to the caller so it surfaces exactly once.
func (c *Connector) abort(ctx context.Context, session *Session, msg string, err error) error {
	if terr := session.Transition(ctx, StateTerminated); terr != nil {
		c.logger.WarnCtx(ctx, "failed to mark session terminated", terr)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
