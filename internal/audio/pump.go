package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/pion/rtp"

	"github.com/1ureka/mirrorcast/internal/util"
)

// FrameDuration is the length of one Opus frame produced by the sources here.
const FrameDuration = 20 * time.Millisecond

// silenceFrame is a single Opus TOC byte plus padding that decoders render as
// 20ms of silence.
var silenceFrame = []byte{0xF8, 0xFF, 0xFE}

// Frame is one encoded Opus frame.
type Frame struct {
	Payload []byte
	// Samples is the frame length in RTP clock ticks.
	Samples uint32
}

// Source produces encoded frames at playback pace. ReadFrame returns io.EOF
// when the source is exhausted.
type Source interface {
	ReadFrame(ctx context.Context) (Frame, error)
}

// RTPWriter accepts outgoing packets. *webrtc.TrackLocalStaticRTP satisfies it.
type RTPWriter interface {
	WriteRTP(p *rtp.Packet) error
}

// SilenceSource yields an Opus silence frame every FrameDuration.
type SilenceSource struct {
	ticker *time.Ticker
}

// NewSilenceSource starts the frame clock. Call Stop when done.
func NewSilenceSource() *SilenceSource {
	return &SilenceSource{ticker: time.NewTicker(FrameDuration)}
}

func (s *SilenceSource) ReadFrame(ctx context.Context) (Frame, error) {
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-s.ticker.C:
		return silenceFrameOf(), nil
	}
}

// Stop releases the frame clock.
func (s *SilenceSource) Stop() {
	s.ticker.Stop()
}

func silenceFrameOf() Frame {
	return Frame{
		Payload: silenceFrame,
		Samples: uint32(OpusClockRate / int(time.Second/FrameDuration)),
	}
}

// Pump packetizes frames from a source into RTP and writes them to a track.
// While the microphone is muted every frame is replaced by silence so the
// stream timing stays intact.
type Pump struct {
	dst    RTPWriter
	src    Source
	module *Module

	ssrc      uint32
	seq       uint16
	timestamp uint32
	started   bool
}

// NewPump creates a pump. module may be nil, which never mutes.
func NewPump(dst RTPWriter, src Source, module *Module) *Pump {
	return &Pump{
		dst:       dst,
		src:       src,
		module:    module,
		ssrc:      rand.Uint32(),
		seq:       uint16(rand.Uint32()),
		timestamp: rand.Uint32(),
	}
}

// Run pumps until ctx is done or the source is exhausted. Both end the pump
// without error.
func (p *Pump) Run(ctx context.Context) error {
	for {
		frame, err := p.src.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read audio frame: %w", err)
		}

		if err := p.write(frame); err != nil {
			return fmt.Errorf("write audio packet: %w", err)
		}
	}
}

func (p *Pump) write(frame Frame) error {
	payload := frame.Payload
	if p.module != nil && p.module.MicrophoneMuted() {
		payload = silenceFrame
	}

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         !p.started,
			PayloadType:    OpusPayloadType,
			SequenceNumber: p.seq,
			Timestamp:      p.timestamp,
			SSRC:           p.ssrc,
		},
		Payload: payload,
	}

	p.started = true
	p.seq++
	p.timestamp += frame.Samples

	if err := p.dst.WriteRTP(pkt); err != nil {
		return err
	}
	util.Stats.AddSent(len(payload))
	return nil
}
