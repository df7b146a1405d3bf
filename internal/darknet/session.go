// Package darknet ties the invite, coordination, interface and poller
// components into the membership lifecycle of one darknet.
package darknet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chiquitav2/wg-dark/internal/darknet/wireguard"
	"github.com/chiquitav2/wg-dark/internal/shared/errors"
	"github.com/chiquitav2/wg-dark/internal/shared/events"
	"github.com/chiquitav2/wg-dark/internal/shared/logger"
	"github.com/chiquitav2/wg-dark/pkg/crypto"
)

// State is a session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateJoining
	StateActive
	StateTerminating
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateJoining:
		return "joining"
	case StateActive:
		return "active"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var transitions = map[State][]State{
	StateIdle:        {StateJoining},
	StateJoining:     {StateActive, StateTerminated},
	StateActive:      {StateTerminating},
	StateTerminating: {StateTerminated},
}

// Session is the single owner of one darknet membership. The command handler
// creates it and hands the same pointer to the Poller and the Supervisor.
type Session struct {
	id   string
	name string
	bus  *events.Bus

	mu              sync.RWMutex
	state           State
	keys            *crypto.KeyPair
	address         string
	serverPublicKey string
	endpoint        string
	joinedAt        time.Time
	iface           *wireguard.Interface
}

// NewSession creates an idle session for the interface name.
func NewSession(name string, bus *events.Bus) *Session {
	return &Session{
		id:    uuid.NewString(),
		name:  name,
		bus:   bus,
		state: StateIdle,
	}
}

func (s *Session) ID() string   { return s.id }
func (s *Session) Name() string { return s.name }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Transition moves the session to the next state and publishes the change.
func (s *Session) Transition(ctx context.Context, to State) error {
	s.mu.Lock()
	from := s.state
	if !allowed(from, to) {
		s.mu.Unlock()
		return errors.NewSessionError(errors.ErrCodeInvalidTransition,
			fmt.Sprintf("cannot move from %s to %s", from, to), nil).
			WithMetadata("session_id", s.id)
	}
	s.state = to
	s.mu.Unlock()

	// Subscribers never veto a transition.
	_ = s.bus.Publish(ctx, events.NewStateChanged(s.id, s.name, from.String(), to.String()))
	return nil
}

func allowed(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Context returns ctx annotated with the session ID and interface name for
// logging.
func (s *Session) Context(ctx context.Context) context.Context {
	return logger.WithInterface(logger.WithSessionID(ctx, s.id), s.name)
}

func (s *Session) setMembership(kp *crypto.KeyPair, address, serverPublicKey, endpoint string, joinedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = kp
	s.address = address
	s.serverPublicKey = serverPublicKey
	s.endpoint = endpoint
	s.joinedAt = joinedAt
}

func (s *Session) setInterface(iface *wireguard.Interface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iface = iface
}

// KeyPair returns the session keypair, nil before bring-up.
func (s *Session) KeyPair() *crypto.KeyPair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys
}

// Address returns the assigned tunnel address in CIDR form.
func (s *Session) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

// ServerPublicKey returns the coordination server's WireGuard key.
func (s *Session) ServerPublicKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serverPublicKey
}

// Endpoint returns the server's WireGuard endpoint.
func (s *Session) Endpoint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endpoint
}

// JoinedAt returns when the session first joined the darknet.
func (s *Session) JoinedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.joinedAt
}

// Interface returns the interface handle, nil before bring-up.
func (s *Session) Interface() *wireguard.Interface {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.iface
}
