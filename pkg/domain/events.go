package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventTokenIssued EventType = "token_issued"
	EventResolved    EventType = "resolved"
	EventPeerQuery   EventType = "peer_query"
)

// Source tells where a resolution was answered from.
type Source string

const (
	SourceLocal Source = "local"
	SourcePeer  Source = "peer"
	SourceNone  Source = "none"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
}

// ResolveEvent is emitted once per resolution, whatever its outcome.
// Tokens are credentials and are never part of an event.
type ResolveEvent struct {
	EventBase
	Outcome Outcome `json:"outcome"`
	Origin  Origin  `json:"origin"`
	Source  Source  `json:"source"`
}

// PeerQueryEvent is emitted for every sibling instance queried.
type PeerQueryEvent struct {
	EventBase
	Peer     Peer          `json:"peer"`
	Found    bool          `json:"found"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// LifecycleHooks defines callbacks for resolver observability.
type LifecycleHooks struct {
	OnTokenIssued func(context.Context, *EventBase)
	OnResolve     func(context.Context, *ResolveEvent)
	OnPeerQuery   func(context.Context, *PeerQueryEvent)
}
