package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType identifies the kind of WebSocket signaling message.
type MessageType string

const (
	MsgTypeOffer     MessageType = "offer"
	MsgTypeAnswer    MessageType = "answer"
	MsgTypeError     MessageType = "error"
	MsgTypeCandidate MessageType = "candidate"
)

// Message is the JSON structure exchanged over the WebSocket signaling route.
// Candidates are never sent individually; a candidate message from a peer is
// rejected.
type Message struct {
	Type  MessageType `json:"type"`
	SDP   string      `json:"sdp,omitempty"`
	Error string      `json:"error,omitempty"`
}

// EncodeMessage serializes a message to JSON.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON message and rejects unknown types.
func DecodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	switch msg.Type {
	case MsgTypeOffer, MsgTypeAnswer, MsgTypeError, MsgTypeCandidate:
		return msg, nil
	default:
		return Message{}, fmt.Errorf("%w: unknown message type %q", ErrMalformedInput, msg.Type)
	}
}
