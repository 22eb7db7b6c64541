// Package protocol defines the session description model exchanged during
// signaling and the framing used by the WebSocket signaling variant.
package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pion/sdp/v3"
)

// ErrMalformedInput reports an offer that is empty or not a session description.
var ErrMalformedInput = errors.New("malformed input")

// Kind distinguishes offers from answers.
type Kind uint8

const (
	KindOffer Kind = iota + 1
	KindAnswer
)

func (k Kind) String() string {
	switch k {
	case KindOffer:
		return "offer"
	case KindAnswer:
		return "answer"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// SessionDescription is an immutable offer or answer.
type SessionDescription struct {
	Kind Kind
	SDP  string
}

// IsZero reports whether the description carries no protocol text.
func (d SessionDescription) IsZero() bool {
	return strings.TrimSpace(d.SDP) == ""
}

// Normalize appends a line terminator when the text lacks one. Transports
// are allowed to strip the trailing CRLF of an SDP body; nothing else is
// rewritten.
func Normalize(text string) string {
	switch {
	case text == "", strings.HasSuffix(text, "\n"):
		return text
	case strings.HasSuffix(text, "\r"):
		return text + "\n"
	case strings.Contains(text, "\r\n"):
		return text + "\r\n"
	default:
		return text + "\n"
	}
}

// ParseOffer normalizes raw offer text and checks that it parses as a
// session description. Any failure wraps ErrMalformedInput.
func ParseOffer(text string) (SessionDescription, error) {
	if strings.TrimSpace(text) == "" {
		return SessionDescription{}, fmt.Errorf("%w: empty offer", ErrMalformedInput)
	}

	normalized := Normalize(text)

	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(normalized)); err != nil {
		return SessionDescription{}, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	return SessionDescription{Kind: KindOffer, SDP: normalized}, nil
}

// CountCandidates returns the number of a=candidate lines in a description,
// across the session and every media section. Unparsable text counts as zero.
func CountCandidates(text string) int {
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(Normalize(text))); err != nil {
		return 0
	}

	n := countAttr(parsed.Attributes, "candidate")
	for _, md := range parsed.MediaDescriptions {
		n += countAttr(md.Attributes, "candidate")
	}
	return n
}

func countAttr(attrs []sdp.Attribute, key string) int {
	n := 0
	for _, a := range attrs {
		if a.Key == key {
			n++
		}
	}
	return n
}
