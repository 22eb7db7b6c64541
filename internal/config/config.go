// Package config holds the server configuration and its YAML loader.
//
// Values come from built-in defaults, optionally overlaid by a YAML file
// (--config), and finally by explicit CLI flags in cmd/mirrorcast.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ICEServer is one STUN/TURN entry handed to every peer connection.
type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

// TLSConfig points at a PEM certificate/key pair. Both empty means plain HTTP.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Enabled reports whether the server should serve HTTPS.
func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" || t.KeyFile != ""
}

// AudioConfig is the process-wide audio module configuration. It is applied
// once before the signaling server starts.
type AudioConfig struct {
	MuteSpeaker    bool `yaml:"mute_speaker"`
	MuteMicrophone bool `yaml:"mute_microphone"`
	// Silence feeds Opus silence frames into the local track when no
	// capture source is attached.
	Silence bool `yaml:"silence"`
}

// Config stores every tunable of the mirroring server.
type Config struct {
	Listen     string      `yaml:"listen"`
	TLS        TLSConfig   `yaml:"tls"`
	ICEServers []ICEServer `yaml:"ice_servers"`

	// GatherTimeout bounds the wait for ICE gathering completion.
	GatherTimeout time.Duration `yaml:"gather_timeout"`
	// NegotiationTimeout bounds one whole offer/answer exchange on the
	// server side, on top of the caller's own request lifetime.
	NegotiationTimeout time.Duration `yaml:"negotiation_timeout"`

	MaxSessions   int    `yaml:"max_sessions"` // 0 = unlimited
	MaxOfferBytes int64  `yaml:"max_offer_bytes"`
	AssetsDir     string `yaml:"assets_dir"` // empty = embedded assets

	// AllowedOrigins feeds the CORS layer. Empty means any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// IncludeLoopback lets ICE gather loopback candidates (useful on a
	// single machine and in emulators).
	IncludeLoopback bool `yaml:"include_loopback"`

	Audio AudioConfig `yaml:"audio"`
	Debug bool        `yaml:"debug"`
}

// Default returns the built-in configuration: plain HTTP on :8080, no ICE
// servers (host candidates only), 5s gathering bound, microphone muted.
func Default() Config {
	return Config{
		Listen:             ":8080",
		GatherTimeout:      5 * time.Second,
		NegotiationTimeout: 15 * time.Second,
		MaxOfferBytes:      64 * 1024,
		Audio: AudioConfig{
			MuteSpeaker:    false,
			MuteMicrophone: true,
		},
	}
}

// Load reads a YAML file on top of Default(). Unknown keys are rejected so
// typos do not silently fall back to defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := Parse(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Parse decodes YAML into cfg, keeping any field the document omits.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		// An empty document leaves the defaults untouched.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// NegotiationMargin is the minimum headroom a negotiation timeout must leave
// after gathering for the engine steps around it.
const NegotiationMargin = time.Second

// Validate checks the configuration for values the server cannot run with.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Listen) == "" {
		errs = append(errs, errors.New("listen address must not be empty"))
	}
	if c.GatherTimeout <= 0 {
		errs = append(errs, fmt.Errorf("gather_timeout must be positive, got %s", c.GatherTimeout))
	}
	if c.NegotiationTimeout > 0 && c.NegotiationTimeout < c.GatherTimeout+NegotiationMargin {
		errs = append(errs, fmt.Errorf("negotiation_timeout (%s) must exceed gather_timeout (%s) by at least %s",
			c.NegotiationTimeout, c.GatherTimeout, NegotiationMargin))
	}
	if c.MaxSessions < 0 {
		errs = append(errs, fmt.Errorf("max_sessions must not be negative, got %d", c.MaxSessions))
	}
	if c.MaxOfferBytes <= 0 {
		errs = append(errs, fmt.Errorf("max_offer_bytes must be positive, got %d", c.MaxOfferBytes))
	}
	if c.TLS.Enabled() && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
		errs = append(errs, errors.New("tls needs both cert_file and key_file"))
	}
	for i, s := range c.ICEServers {
		if len(s.URLs) == 0 {
			errs = append(errs, fmt.Errorf("ice_servers[%d] has no urls", i))
		}
	}

	return errors.Join(errs...)
}
