package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/audiolibrelab/looprec/internal/config"
)

// PipeWireBackend implements Backend with ffmpeg capture over PipeWire's
// JACK bridge and an external looping player.
type PipeWireBackend struct {
	cfg      *config.Config
	pipewire *PipeWire

	fs             afero.Fs
	clock          clockwork.Clock
	statusInterval time.Duration
	lookPath       func(file string) (string, error)
	startProcess   func(name string, args []string, env []string) (*process, error)

	mu       sync.Mutex
	mode     AudioMode
	artifact string // last finalized or pending recording
}

// NewPipeWireBackend creates a backend bound to the real filesystem and clock
func NewPipeWireBackend(cfg *config.Config) *PipeWireBackend {
	return &PipeWireBackend{
		cfg:            cfg,
		pipewire:       NewPipeWire(),
		fs:             afero.NewOsFs(),
		clock:          clockwork.NewRealClock(),
		statusInterval: cfg.Audio.StatusInterval,
		lookPath:       exec.LookPath,
		startProcess:   startProcess,
	}
}

// SetAudioMode records the session policy used by the next capture or
// playback process.
func (b *PipeWireBackend) SetAudioMode(ctx context.Context, mode AudioMode) error {
	for _, policy := range []InterruptionPolicy{mode.IOSInterruptionPolicy, mode.AndroidInterruptionPolicy} {
		switch policy {
		case InterruptionDoNotMix, InterruptionDuckOthers, InterruptionMixWithOthers:
		default:
			return errors.Newf("unknown interruption policy %q", policy)
		}
	}

	if mode.RouteToEarpieceOnAndroid {
		slog.Debug("Earpiece routing is not supported by the PipeWire backend, ignoring")
	}

	b.mu.Lock()
	b.mode = mode
	b.mu.Unlock()

	slog.Debug("Audio mode applied", "capture", mode.AllowCaptureOnIOS, "role", mode.MediaRole(), "background", mode.StaysActiveInBackground)
	return nil
}

func (b *PipeWireBackend) Mode() AudioMode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mode
}

// env builds the environment for helper processes
func (b *PipeWireBackend) env() []string {
	role := b.Mode().MediaRole()
	env := os.Environ()
	env = append(env,
		"PIPEWIRE_QUANTUM=256/48000",
		"PIPEWIRE_LATENCY=256/48000",
		"PULSE_PROP=media.role="+role,
		fmt.Sprintf("PIPEWIRE_PROPS={ media.role=%s }", role),
	)
	return env
}

// NewCapture creates an unprepared capture handle
func (b *PipeWireBackend) NewCapture(preset Preset) CaptureHandle {
	return &pipeWireCapture{
		id:      uuid.NewString(),
		backend: b,
		preset:  preset,
		sources: b.cfg.Audio.Sources,
		state:   captureIdle,
	}
}

// LoadPlayback prepares a looping player for uri
func (b *PipeWireBackend) LoadPlayback(ctx context.Context, uri string, opts PlaybackOptions, cb func(PlaybackStatus)) (PlaybackHandle, PlaybackStatus, error) {
	if _, err := b.fs.Stat(uri); err != nil {
		return nil, PlaybackStatus{}, errors.Wrapf(err, "recording not found: %s", uri)
	}

	player, err := b.findAudioPlayer()
	if err != nil {
		return nil, PlaybackStatus{}, err
	}

	h := &pipeWirePlayer{
		id:      uuid.NewString(),
		backend: b,
		uri:     uri,
		player:  player,
		opts:    opts,
		loaded:  true,
		cb:      cb,
	}

	if opts.ShouldPlay {
		if err := h.Play(ctx); err != nil {
			return nil, PlaybackStatus{}, err
		}
	}

	slog.Debug("Sound loaded", "uri", uri, "player", player, "looping", opts.Looping)
	return h, h.Status(), nil
}

// findAudioPlayer returns the first configured player found on PATH
func (b *PipeWireBackend) findAudioPlayer() (string, error) {
	for _, player := range b.cfg.Playback.Players {
		if _, err := b.lookPath(player); err == nil {
			return player, nil
		}
	}
	return "", errors.Wrapf(ErrNoPlayer, "tried: %v", b.cfg.Playback.Players)
}

// retireArtifact makes path the current artifact and deletes the previous
// one, so at most one recording file exists.
func (b *PipeWireBackend) retireArtifact(path string) {
	b.mu.Lock()
	previous := b.artifact
	b.artifact = path
	b.mu.Unlock()

	if previous == "" || previous == path {
		return
	}
	if err := b.fs.Remove(previous); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to remove previous recording", "file", previous, "error", err)
	}
}

// ListSources returns available PipeWire/JACK output ports
func (b *PipeWireBackend) ListSources() ([]string, error) {
	return b.pipewire.ListOutputPorts()
}

// ValidateSource validates a PipeWire/JACK source
func (b *PipeWireBackend) ValidateSource(source string) error {
	return b.pipewire.ValidatePort(source)
}

// GetType returns the backend type
func (b *PipeWireBackend) GetType() BackendType {
	return BackendTypePipeWire
}
