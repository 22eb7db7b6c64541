package session

import (
	"errors"

	"github.com/1ureka/mirrorcast/internal/protocol"
)

// Terminal failure reasons. Engine errors are wrapped together with the
// matching sentinel, so errors.Is works for both.
var (
	ErrSetRemoteDescription = errors.New("set remote description failed")
	ErrCreateAnswer         = errors.New("create answer failed")
	ErrSetLocalDescription  = errors.New("set local description failed")
	ErrGatheringTimeout     = errors.New("ICE gathering timed out")
	ErrSessionBusy          = errors.New("session busy")
	ErrCancelled            = errors.New("negotiation cancelled")
	ErrMalformedInput       = protocol.ErrMalformedInput

	ErrEngine          = errors.New("media engine unavailable")
	ErrTooManySessions = errors.New("too many sessions")
)

// errorKinds is checked in order; the first match wins.
var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrCancelled, "cancelled"},
	{ErrMalformedInput, "malformed-input"},
	{ErrSessionBusy, "session-busy"},
	{ErrTooManySessions, "too-many-sessions"},
	{ErrEngine, "engine"},
	{ErrSetRemoteDescription, "set-remote-description"},
	{ErrCreateAnswer, "create-answer"},
	{ErrSetLocalDescription, "set-local-description"},
	{ErrGatheringTimeout, "gathering-timeout"},
}

// ErrorKind maps a negotiation error to a short stable identifier for the
// wire. It returns "" for nil and "internal" for unknown errors.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}
