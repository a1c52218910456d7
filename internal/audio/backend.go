package audio

import (
	"context"
	"strings"

	"github.com/audiolibrelab/looprec/internal/config"
)

// BackendType represents the type of audio backend
type BackendType string

const (
	BackendTypePipeWire BackendType = "pipewire"
	BackendTypeAuto     BackendType = "auto"
)

// Backend is the platform audio subsystem: mode configuration, capture and
// sound loading.
type Backend interface {
	SetAudioMode(ctx context.Context, mode AudioMode) error

	// NewCapture creates an unprepared capture handle for the preset
	NewCapture(preset Preset) CaptureHandle

	// LoadPlayback loads uri and returns the handle with its initial status.
	// cb may fire before LoadPlayback returns.
	LoadPlayback(ctx context.Context, uri string, opts PlaybackOptions, cb func(PlaybackStatus)) (PlaybackHandle, PlaybackStatus, error)

	// List available audio sources
	ListSources() ([]string, error)

	GetType() BackendType
}

// NewBackend creates the backend selected by configuration
func NewBackend(cfg *config.Config) Backend {
	switch determineBackend(cfg) {
	case BackendTypePipeWire:
		return NewPipeWireBackend(cfg)
	default:
		// PipeWire is the only available backend
		return NewPipeWireBackend(cfg)
	}
}

func determineBackend(cfg *config.Config) BackendType {
	switch strings.ToLower(cfg.Audio.Backend) {
	case "pipewire", "auto", "":
		return BackendTypePipeWire
	}
	return BackendTypePipeWire
}

// GetAvailableBackends returns list of available backends on current system
func GetAvailableBackends() []BackendType {
	return []BackendType{BackendTypePipeWire}
}
