package engine

import (
	"fmt"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/mirrorcast/internal/protocol"
	"github.com/1ureka/mirrorcast/internal/util"
)

// Compile-time interface check.
var _ Peer = (*pionPeer)(nil)

// pionPeer adapts a pion PeerConnection to the Peer interface. Observational
// pion callbacks are registered once at construction and fanned out to the
// handler set through OnEvent; the handler may be replaced at any time.
type pionPeer struct {
	pc *webrtc.PeerConnection
	// muted reports whether inbound media is currently discarded. May be nil.
	muted func() bool

	mu      sync.RWMutex
	onEvent func(Event)

	closed    chan struct{}
	closeOnce sync.Once
}

func newPionPeer(pc *webrtc.PeerConnection, muted func() bool) *pionPeer {
	p := &pionPeer{
		pc:     pc,
		muted:  muted,
		closed: make(chan struct{}),
	}

	pc.OnSignalingStateChange(func(s webrtc.SignalingState) {
		p.emit(Event{Kind: EventSignalingState, State: s.String()})
	})
	pc.OnICEGatheringStateChange(func(s webrtc.ICEGatheringState) {
		p.emit(Event{Kind: EventGatheringState, State: s.String()})
	})
	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		p.emit(Event{Kind: EventICEConnectionState, State: s.String()})
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		p.emit(Event{Kind: EventConnectionState, State: s.String()})
		switch s {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			p.markClosed()
		}
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		p.emit(Event{Kind: EventDataChannel, Label: dc.Label()})
	})
	pc.OnNegotiationNeeded(func() {
		p.emit(Event{Kind: EventNegotiationNeeded})
	})

	return p
}

func (p *pionPeer) emit(ev Event) {
	p.mu.RLock()
	fn := p.onEvent
	p.mu.RUnlock()

	if fn != nil {
		fn(ev)
	}
}

func (p *pionPeer) markClosed() {
	p.closeOnce.Do(func() { close(p.closed) })
}

func (p *pionPeer) SetRemoteDescription(desc protocol.SessionDescription) error {
	sd, err := toPion(desc)
	if err != nil {
		return err
	}
	return p.pc.SetRemoteDescription(sd)
}

func (p *pionPeer) CreateAnswer() (protocol.SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return protocol.SessionDescription{}, err
	}
	return fromPion(answer), nil
}

func (p *pionPeer) SetLocalDescription(desc protocol.SessionDescription) error {
	sd, err := toPion(desc)
	if err != nil {
		return err
	}
	return p.pc.SetLocalDescription(sd)
}

func (p *pionPeer) LocalDescription() protocol.SessionDescription {
	sd := p.pc.LocalDescription()
	if sd == nil {
		return protocol.SessionDescription{}
	}
	return fromPion(*sd)
}

func (p *pionPeer) OnICECandidate(fn func(*Candidate)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			fn(nil)
			return
		}
		init := c.ToJSON()
		fn(&Candidate{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	})
}

// OnInboundStream reports each remote track and keeps reading it so the
// receive buffers never fill up. Playback is outside this process.
func (p *pionPeer) OnInboundStream(fn func(Stream)) {
	p.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		fn(Stream{
			ID:      track.StreamID(),
			TrackID: track.ID(),
			Kind:    track.Kind().String(),
			Codec:   track.Codec().MimeType,
		})

		go drainTrack(func() (*rtp.Packet, error) {
			pkt, _, err := track.ReadRTP()
			return pkt, err
		}, p.muted)
	})
}

// drainTrack reads inbound RTP until read fails. Packets read while muted
// reports true are discarded without being counted.
func drainTrack(read func() (*rtp.Packet, error), muted func() bool) {
	for {
		pkt, err := read()
		if err != nil {
			return
		}
		if muted != nil && muted() {
			continue
		}
		util.Stats.AddRecv(len(pkt.Payload))
	}
}

func (p *pionPeer) OnEvent(fn func(Event)) {
	p.mu.Lock()
	p.onEvent = fn
	p.mu.Unlock()
}

func (p *pionPeer) AddICECandidate(c Candidate) error {
	return p.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	})
}

func (p *pionPeer) Closed() <-chan struct{} {
	return p.closed
}

// Close releases the connection. It is safe to call more than once.
func (p *pionPeer) Close() error {
	defer p.markClosed()
	return p.pc.Close()
}

func toPion(desc protocol.SessionDescription) (webrtc.SessionDescription, error) {
	var typ webrtc.SDPType
	switch desc.Kind {
	case protocol.KindOffer:
		typ = webrtc.SDPTypeOffer
	case protocol.KindAnswer:
		typ = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("unsupported description kind %s", desc.Kind)
	}
	return webrtc.SessionDescription{Type: typ, SDP: desc.SDP}, nil
}

func fromPion(sd webrtc.SessionDescription) protocol.SessionDescription {
	kind := protocol.KindAnswer
	if sd.Type == webrtc.SDPTypeOffer {
		kind = protocol.KindOffer
	}
	return protocol.SessionDescription{Kind: kind, SDP: sd.SDP}
}
