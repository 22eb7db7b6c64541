// Package app contains the top-level orchestration of the mirroring server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/mirrorcast/internal/audio"
	"github.com/1ureka/mirrorcast/internal/config"
	"github.com/1ureka/mirrorcast/internal/engine"
	"github.com/1ureka/mirrorcast/internal/session"
	"github.com/1ureka/mirrorcast/internal/signaling"
	"github.com/1ureka/mirrorcast/internal/util"
	"github.com/1ureka/mirrorcast/internal/web"
)

// Run orchestrates the full server lifecycle:
//  1. Apply the audio module settings
//  2. Build the engine context with the shared local audio track
//  3. Create the session registry
//  4. Bind the signaling server and print its address
//  5. Feed the local track and report statistics
//  6. Serve offers until ctx is cancelled, then close every session
func Run(ctx context.Context, cfg config.Config) error {
	return run(ctx, cfg, nil)
}

// run is Run with a hook called once the server is bound.
func run(ctx context.Context, cfg config.Config, ready func(net.Addr)) (err error) {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// ── 1. Audio module ─────────────────────────────────────────────────
	module := &audio.Module{}
	if err := module.Apply(audio.Settings{
		MuteSpeaker:    cfg.Audio.MuteSpeaker,
		MuteMicrophone: cfg.Audio.MuteMicrophone,
	}); err != nil {
		return err
	}

	track, err := audio.NewTrack()
	if err != nil {
		return fmt.Errorf("failed to create local audio track: %w", err)
	}

	// ── 2. Engine context ───────────────────────────────────────────────
	eng, err := engine.NewPionEngine(engine.Options{
		LocalTracks:     []webrtc.TrackLocal{track},
		IncludeLoopback: cfg.IncludeLoopback,
		LoggerFactory:   util.LoggerFactory{},
		InboundMuted:    module.SpeakerMuted,
	})
	if err != nil {
		return fmt.Errorf("failed to create media engine: %w", err)
	}

	// ── 3. Sessions ─────────────────────────────────────────────────────
	registry := session.NewRegistry(eng, session.Options{
		PeerConfig:    engine.PeerConfig{ICEServers: iceServers(cfg.ICEServers)},
		GatherTimeout: cfg.GatherTimeout,
		OnStream: func(_ string, s engine.Stream) {
			if module.SpeakerMuted() {
				util.LogDebug("speaker muted, discarding inbound %s stream %s", s.Kind, s.ID)
			}
		},
	}, cfg.MaxSessions)
	defer func() {
		err = errors.Join(err, registry.Close())
	}()

	// ── 4. Signaling server ─────────────────────────────────────────────
	assets, err := web.Assets(cfg.AssetsDir)
	if err != nil {
		return fmt.Errorf("failed to open assets: %w", err)
	}

	server := signaling.NewServer(registry, signaling.Options{
		Listen:             cfg.Listen,
		TLS:                cfg.TLS,
		Assets:             assets,
		AllowedOrigins:     cfg.AllowedOrigins,
		NegotiationTimeout: cfg.NegotiationTimeout,
		MaxOfferBytes:      cfg.MaxOfferBytes,
	})
	addr, err := server.Listen()
	if err != nil {
		return err
	}
	printBanner(server.Scheme(), addr, cfg)
	if ready != nil {
		ready(addr)
	}

	// ── 5. Local audio and statistics ───────────────────────────────────
	if cfg.Audio.Silence {
		src := audio.NewSilenceSource()
		defer src.Stop()

		go func() {
			if err := audio.NewPump(track, src, module).Run(ctx); err != nil {
				util.LogError("audio pump stopped: %v", err)
			}
		}()
	}
	util.StartStatsReporter(ctx)

	// ── 6. Serve ────────────────────────────────────────────────────────
	if err := server.Serve(ctx); err != nil {
		return err
	}
	util.LogInfo("closing %d live session(s)", registry.Len())
	return nil
}

func iceServers(servers []config.ICEServer) []engine.ICEServer {
	out := make([]engine.ICEServer, 0, len(servers))
	for _, s := range servers {
		out = append(out, engine.ICEServer{URLs: s.URLs, Username: s.Username, Credential: s.Credential})
	}
	return out
}

func printBanner(scheme string, addr net.Addr, cfg config.Config) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════╗")
	fmt.Println("║          Audio Mirroring Server          ║")
	fmt.Println("╠══════════════════════════════════════════╣")
	fmt.Printf("║  URL     : %-29s ║\n", scheme+"://"+addr.String())
	fmt.Printf("║  Offers  : %-29s ║\n", "POST /send_offer")
	fmt.Printf("║  Gather  : %-29s ║\n", cfg.GatherTimeout)
	fmt.Println("╚══════════════════════════════════════════╝")
	fmt.Println()
	util.LogSuccess("Waiting for calls...")
}
