package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(nil)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Listen != ":8080" || cfg.GatherTimeout != 5*time.Second || !cfg.Audio.MuteMicrophone {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirrorcast.yaml")
	file := "listen: \":9000\"\nmax_sessions: 4\ngather_timeout: 2s\n"
	if err := os.WriteFile(path, []byte(file), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig([]string{
		"--config", path,
		"--listen", "127.0.0.1:9443",
		"--ice-server", "stun:a.example:3478",
		"--ice-server", "stun:b.example:3478",
		"--mute-mic=false",
		"--debug",
	})
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	if cfg.Listen != "127.0.0.1:9443" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.MaxSessions != 4 || cfg.GatherTimeout != 2*time.Second {
		t.Errorf("file values lost: %+v", cfg)
	}
	if len(cfg.ICEServers) != 2 || cfg.ICEServers[1].URLs[0] != "stun:b.example:3478" {
		t.Errorf("ICEServers = %+v", cfg.ICEServers)
	}
	if cfg.Audio.MuteMicrophone || !cfg.Debug {
		t.Errorf("flag overrides lost: %+v", cfg)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	testCases := map[string][]string{
		"missing file":    {"--config", filepath.Join(t.TempDir(), "nope.yaml")},
		"bad duration":    {"--gather-timeout", "soon"},
		"invalid value":   {"--gather-timeout", "0s"},
		"stray argument":  {"extra"},
		"unknown flag":    {"--nope"},
		"negative limits": {"--max-sessions", "-1"},
	}
	for name, args := range testCases {
		if _, err := loadConfig(args); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestLoadConfigHelp(t *testing.T) {
	if _, err := loadConfig([]string{"--help"}); !errors.Is(err, pflag.ErrHelp) {
		t.Errorf("err = %v, want pflag.ErrHelp", err)
	}
}
