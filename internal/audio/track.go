package audio

import (
	"github.com/pion/webrtc/v4"
)

const (
	// TrackID and StreamID name the local audio track in every answer.
	TrackID  = "101"
	StreamID = "mirrorcast"

	// OpusClockRate is the RTP clock of the Opus codec.
	OpusClockRate = 48000
	// OpusPayloadType matches the Opus entry of pion's default codecs.
	OpusPayloadType = 111
)

// NewTrack creates the local Opus track. One track is shared by all peers;
// pion fans every written packet out to each bound connection.
func NewTrack() (*webrtc.TrackLocalStaticRTP, error) {
	return webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: OpusClockRate,
			Channels:  2,
		},
		TrackID,
		StreamID,
	)
}
