// mirrorcast: CLI entry point.
//
// This tool runs the device-side audio mirroring server: a browser posts a
// fully gathered offer to /send_offer and receives a complete answer in the
// response body. Settings come from an optional YAML file (--config) and are
// overridden by explicit flags.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/pflag"

	"github.com/1ureka/mirrorcast/internal/app"
	"github.com/1ureka/mirrorcast/internal/config"
	"github.com/1ureka/mirrorcast/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C or SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		util.LogError("%v", err)
		os.Exit(2)
	}

	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("mirrorcast v%s", version))
	pterm.Println()

	if err := app.Run(ctx, cfg); err != nil {
		util.LogError("server stopped: %v", err)
		os.Exit(1)
	}

	util.LogInfo("server closed")
}

// loadConfig builds the configuration from defaults, the optional config
// file and the flags in args, in that order of precedence.
func loadConfig(args []string) (config.Config, error) {
	defaults := config.Default()

	flagSet := pflag.NewFlagSet("mirrorcast", pflag.ContinueOnError)
	configPath := flagSet.String("config", "", "path to a YAML configuration file")
	listen := flagSet.String("listen", defaults.Listen, "address to serve signaling on")
	tlsCert := flagSet.String("tls-cert", "", "PEM certificate file (enables HTTPS)")
	tlsKey := flagSet.String("tls-key", "", "PEM private key file (enables HTTPS)")
	iceURLs := flagSet.StringArray("ice-server", nil, "STUN/TURN server URL (repeatable)")
	gatherTimeout := flagSet.Duration("gather-timeout", defaults.GatherTimeout, "bound on ICE gathering per offer")
	maxSessions := flagSet.Int("max-sessions", defaults.MaxSessions, "maximum live sessions (0 = unlimited)")
	assetsDir := flagSet.String("assets", "", "serve the browser page from this directory instead of the bundled one")
	muteMic := flagSet.Bool("mute-mic", defaults.Audio.MuteMicrophone, "mute the outbound microphone audio")
	muteSpeaker := flagSet.Bool("mute-speaker", defaults.Audio.MuteSpeaker, "discard inbound audio")
	silence := flagSet.Bool("silence", defaults.Audio.Silence, "feed Opus silence into the local track")
	debug := flagSet.Bool("debug", false, "enable debug logging")

	if err := flagSet.Parse(args); err != nil {
		return config.Config{}, err
	}
	if flagSet.NArg() > 0 {
		return config.Config{}, fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}

	cfg := defaults
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	// Explicit flags win over the file.
	if flagSet.Changed("listen") {
		cfg.Listen = *listen
	}
	if flagSet.Changed("tls-cert") {
		cfg.TLS.CertFile = *tlsCert
	}
	if flagSet.Changed("tls-key") {
		cfg.TLS.KeyFile = *tlsKey
	}
	if flagSet.Changed("ice-server") {
		cfg.ICEServers = nil
		for _, u := range *iceURLs {
			cfg.ICEServers = append(cfg.ICEServers, config.ICEServer{URLs: []string{u}})
		}
	}
	if flagSet.Changed("gather-timeout") {
		cfg.GatherTimeout = *gatherTimeout
	}
	if flagSet.Changed("max-sessions") {
		cfg.MaxSessions = *maxSessions
	}
	if flagSet.Changed("assets") {
		cfg.AssetsDir = *assetsDir
	}
	if flagSet.Changed("mute-mic") {
		cfg.Audio.MuteMicrophone = *muteMic
	}
	if flagSet.Changed("mute-speaker") {
		cfg.Audio.MuteSpeaker = *muteSpeaker
	}
	if flagSet.Changed("silence") {
		cfg.Audio.Silence = *silence
	}
	if flagSet.Changed("debug") {
		cfg.Debug = *debug
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
