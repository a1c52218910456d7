package audio

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	// ErrNoDataCollected is returned by CaptureHandle.Stop when stop was
	// called before any audio data reached the artifact.
	ErrNoDataCollected = errors.New("no audio data collected")
	ErrCaptureDisabled = errors.New("audio mode does not allow capture")
	ErrNotPrepared     = errors.New("capture handle not prepared")
	ErrNotRecording    = errors.New("no recording in progress")
	ErrReleased        = errors.New("handle released")
	ErrUnloaded        = errors.New("sound not loaded")
	ErrNoPlayer        = errors.New("no audio player found")
)

// RecordingStatus is reported by a capture handle whenever its state changes
// and periodically while recording.
type RecordingStatus struct {
	CanRecord       bool  `json:"can_record"`
	IsRecording     bool  `json:"is_recording"`
	IsDoneRecording bool  `json:"is_done_recording"`
	DurationMillis  int64 `json:"duration_millis"`
	SizeBytes       int64 `json:"size_bytes"`
}

// PlaybackStatus is reported by a playback handle on every transport change.
// When IsLoaded is false only Error is meaningful.
type PlaybackStatus struct {
	IsLoaded   bool    `json:"is_loaded"`
	ShouldPlay bool    `json:"should_play"`
	IsPlaying  bool    `json:"is_playing"`
	IsLooping  bool    `json:"is_looping"`
	Rate       float64 `json:"rate"`
	Volume     float64 `json:"volume"`
	Muted      bool    `json:"muted"`
	Error      string  `json:"error,omitempty"`
}

type PlaybackOptions struct {
	Looping    bool
	ShouldPlay bool
	Volume     float64
	Muted      bool
}

// FileInfo describes a finalized recording artifact
type FileInfo struct {
	URI        string        `json:"uri"`
	Exists     bool          `json:"exists"`
	Size       int64         `json:"size"`
	Duration   time.Duration `json:"duration"`
	SampleRate int           `json:"sample_rate,omitempty"`
	Channels   int           `json:"channels,omitempty"`
}

// Permissions asks the platform for microphone authorization
type Permissions interface {
	RequestMicrophone(ctx context.Context) (bool, error)
}

// Storage answers metadata queries about recording artifacts
type Storage interface {
	Info(uri string) (FileInfo, error)
}

// CaptureHandle is one recording. Handles are single use: Prepare, Start,
// Stop, then Release.
type CaptureHandle interface {
	ID() string
	Prepare(ctx context.Context) error
	Start(ctx context.Context) error
	// Stop finalizes the artifact. It fails with ErrNoDataCollected when
	// nothing was captured.
	Stop(ctx context.Context) error
	// SetStatusCallback replaces the status callback; nil detaches it.
	SetStatusCallback(cb func(RecordingStatus))
	ArtifactURI() string
	Release() error
}

// PlaybackHandle is a loaded sound with transport controls
type PlaybackHandle interface {
	ID() string
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	// Stop halts the transport and rewinds; the sound stays loaded.
	Stop(ctx context.Context) error
	Unload(ctx context.Context) error
	SetStatusCallback(cb func(PlaybackStatus))
}
