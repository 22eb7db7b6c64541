package engine

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/mirrorcast/internal/util"
)

// DefaultPLIInterval is how often a keyframe is requested on inbound video.
const DefaultPLIInterval = 3 * time.Second

// Options configures the pion engine context.
type Options struct {
	// LocalTracks are attached to every new peer (the mirrored audio).
	LocalTracks []webrtc.TrackLocal

	IncludeLoopback bool
	LoggerFactory   logging.LoggerFactory
	PLIInterval     time.Duration

	// InboundMuted, when set, is polled for every inbound packet; while it
	// reports true the packet is dropped instead of counted as received.
	InboundMuted func() bool
}

// Compile-time interface check.
var _ Engine = (*PionEngine)(nil)

// PionEngine owns the pion API object (media engine, interceptors, setting
// engine) and builds peers from it.
type PionEngine struct {
	api    *webrtc.API
	tracks []webrtc.TrackLocal
	muted  func() bool
}

// NewPionEngine registers the default codecs and interceptors plus a periodic
// PLI generator, and returns the engine context.
func NewPionEngine(opts Options) (*PionEngine, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register default codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("failed to register default interceptors: %w", err)
	}

	pliInterval := opts.PLIInterval
	if pliInterval <= 0 {
		pliInterval = DefaultPLIInterval
	}
	pli, err := intervalpli.NewReceiverInterceptor(intervalpli.GeneratorInterval(pliInterval))
	if err != nil {
		return nil, fmt.Errorf("failed to create PLI interceptor: %w", err)
	}
	registry.Add(pli)

	settingEngine := webrtc.SettingEngine{}
	if opts.LoggerFactory != nil {
		settingEngine.LoggerFactory = opts.LoggerFactory
	}
	if opts.IncludeLoopback {
		settingEngine.SetIncludeLoopbackCandidate(true)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(settingEngine),
	)

	return &PionEngine{api: api, tracks: opts.LocalTracks, muted: opts.InboundMuted}, nil
}

// NewPeer creates a peer connection with the local tracks attached.
func (e *PionEngine) NewPeer(cfg PeerConfig) (Peer, error) {
	pc, err := e.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: toPionICEServers(cfg.ICEServers),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create PeerConnection: %w", err)
	}

	for _, track := range e.tracks {
		sender, err := pc.AddTrack(track)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to add track %s: %w", track.ID(), err), pc.Close())
		}
		go drainRTCP(sender)
	}

	return newPionPeer(pc, e.muted), nil
}

// drainRTCP reads incoming RTCP so the interceptors can process it. It exits
// when the sender is closed.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				util.LogDebug("RTCP read stopped: %v", err)
			}
			return
		}
	}
}

func toPionICEServers(servers []ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		server := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
		}
		out = append(out, server)
	}
	return out
}
