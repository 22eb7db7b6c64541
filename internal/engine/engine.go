// Package engine is the media engine boundary: the capability interface the
// negotiation core consumes, and a pion/webrtc implementation of it.
package engine

import (
	"github.com/1ureka/mirrorcast/internal/protocol"
)

// ICEServer is one STUN/TURN server handed to a new peer.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// PeerConfig configures a single peer connection.
type PeerConfig struct {
	ICEServers []ICEServer
}

// Candidate is a locally gathered connectivity candidate. A nil *Candidate
// passed to an OnICECandidate callback marks the end of gathering.
type Candidate struct {
	Candidate        string
	SDPMid           *string
	SDPMLineIndex    *uint16
	UsernameFragment *string
}

// Stream describes an inbound remote media stream.
type Stream struct {
	ID      string
	TrackID string
	Kind    string
	Codec   string
}

// EventKind names an observational engine notification.
type EventKind string

const (
	EventSignalingState     EventKind = "signaling-state"
	EventGatheringState     EventKind = "gathering-state"
	EventICEConnectionState EventKind = "ice-connection-state"
	EventConnectionState    EventKind = "connection-state"
	EventDataChannel        EventKind = "data-channel"
	EventNegotiationNeeded  EventKind = "negotiation-needed"
)

// Event is a push notification with no control-flow meaning.
type Event struct {
	Kind  EventKind
	State string // new state for *-state events
	Label string // data channel label
}

// Engine creates peer connections. One Engine is the explicitly owned engine
// context shared by every session of a process.
type Engine interface {
	NewPeer(cfg PeerConfig) (Peer, error)
}

// Peer is one peer connection. Callbacks may be invoked from engine-owned
// goroutines and must not block.
type Peer interface {
	SetRemoteDescription(desc protocol.SessionDescription) error
	CreateAnswer() (protocol.SessionDescription, error)
	SetLocalDescription(desc protocol.SessionDescription) error
	// LocalDescription returns the current local description, including the
	// candidates gathered so far. It is zero before one is set.
	LocalDescription() protocol.SessionDescription

	OnICECandidate(fn func(*Candidate))
	OnInboundStream(fn func(Stream))
	OnEvent(fn func(Event))

	AddICECandidate(c Candidate) error

	// Closed is closed once the connection has failed or been closed.
	Closed() <-chan struct{}
	Close() error
}
