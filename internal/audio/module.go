// Package audio owns the process-wide audio side of the mirror: the device
// mute settings, the local Opus track offered to every peer and the packet
// pump feeding it.
package audio

import (
	"errors"
	"sync"

	"github.com/1ureka/mirrorcast/internal/util"
)

// ErrAudioConfigured is returned when settings are applied a second time.
var ErrAudioConfigured = errors.New("audio module already configured")

// Settings are the device mute flags.
type Settings struct {
	MuteSpeaker    bool
	MuteMicrophone bool
}

// Module holds the audio settings of the process. They are applied once,
// before the first peer connection is created, and are read-only afterwards.
type Module struct {
	mu       sync.RWMutex
	settings Settings
	applied  bool
}

// Apply stores s. Only the first call succeeds.
func (m *Module) Apply(s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.applied {
		return ErrAudioConfigured
	}
	m.settings = s
	m.applied = true

	util.LogInfo("Audio: speaker %s, microphone %s", onOff(!s.MuteSpeaker), onOff(!s.MuteMicrophone))
	return nil
}

// Settings returns the applied settings and whether Apply has run.
func (m *Module) Settings() (Settings, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings, m.applied
}

// MicrophoneMuted reports whether outbound audio must be replaced by silence.
// An unconfigured module is muted.
func (m *Module) MicrophoneMuted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.applied || m.settings.MuteMicrophone
}

// SpeakerMuted reports whether inbound audio is discarded without playback.
func (m *Module) SpeakerMuted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.applied && m.settings.MuteSpeaker
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "muted"
}
