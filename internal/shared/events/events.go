package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types published during a darknet session.
const (
	TypeStateChanged = "session.state_changed"
	TypePeersMerged  = "poller.peers_merged"
	TypePollFailed   = "poller.poll_failed"
)

// Event represents a generic event in the system
type Event interface {
	// Type returns the event type identifier (e.g., "session.state_changed")
	Type() string
	// Timestamp returns when the event occurred
	Timestamp() time.Time
	// ID returns a unique identifier for this event
	ID() string
}

// Handler processes events of a specific type
type Handler func(ctx context.Context, event Event) error

// TypedHandler adapts a handler for one concrete event type.
func TypedHandler[T Event](handler func(ctx context.Context, event T) error) Handler {
	return func(ctx context.Context, event Event) error {
		typed, ok := event.(T)
		if !ok {
			var zero T
			return fmt.Errorf("invalid event type: expected %T, got %T", zero, event)
		}
		return handler(ctx, typed)
	}
}

// BaseEvent provides a common implementation of the Event interface
type BaseEvent struct {
	id        string
	eventType string
	timestamp time.Time
}

// NewBaseEvent creates a new base event
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		id:        uuid.New().String(),
		eventType: eventType,
		timestamp: time.Now(),
	}
}

func (e BaseEvent) Type() string         { return e.eventType }
func (e BaseEvent) Timestamp() time.Time { return e.timestamp }
func (e BaseEvent) ID() string           { return e.id }

// StateChanged is published on every lifecycle transition of a session.
type StateChanged struct {
	BaseEvent
	SessionID string
	Interface string
	From      string
	To        string
}

// NewStateChanged creates a StateChanged event.
func NewStateChanged(sessionID, iface, from, to string) *StateChanged {
	return &StateChanged{
		BaseEvent: NewBaseEvent(TypeStateChanged),
		SessionID: sessionID,
		Interface: iface,
		From:      from,
		To:        to,
	}
}

// PeersMerged is published after a status response was merged into the interface.
type PeersMerged struct {
	BaseEvent
	Interface string
	Bytes     int
}

// NewPeersMerged creates a PeersMerged event.
func NewPeersMerged(iface string, size int) *PeersMerged {
	return &PeersMerged{BaseEvent: NewBaseEvent(TypePeersMerged), Interface: iface, Bytes: size}
}

// PollFailed is published when a status poll or its merge failed.
type PollFailed struct {
	BaseEvent
	Interface string
	Err       error
}

// NewPollFailed creates a PollFailed event.
func NewPollFailed(iface string, err error) *PollFailed {
	return &PollFailed{BaseEvent: NewBaseEvent(TypePollFailed), Interface: iface, Err: err}
}
