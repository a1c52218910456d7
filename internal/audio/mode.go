package audio

import (
	"github.com/audiolibrelab/looprec/internal/config"
)

// InterruptionPolicy controls how our streams coexist with other applications
type InterruptionPolicy string

const (
	InterruptionDoNotMix      InterruptionPolicy = "do_not_mix"
	InterruptionDuckOthers    InterruptionPolicy = "duck_others"
	InterruptionMixWithOthers InterruptionPolicy = "mix_with_others"
)

// AudioMode is the platform audio session configuration. Field names follow
// the portable option set; PipeWire honours the capture flag and maps the
// interruption policy onto the stream media role.
type AudioMode struct {
	AllowCaptureOnIOS         bool               `json:"allow_capture_on_ios"`
	IOSInterruptionPolicy     InterruptionPolicy `json:"ios_interruption_policy"`
	AllowPlaybackInSilentMode bool               `json:"allow_playback_in_silent_mode"`
	DuckOthersOnAndroid       bool               `json:"duck_others_on_android"`
	AndroidInterruptionPolicy InterruptionPolicy `json:"android_interruption_policy"`
	RouteToEarpieceOnAndroid  bool               `json:"route_to_earpiece_on_android"`
	StaysActiveInBackground   bool               `json:"stays_active_in_background"`
}

// RecordingMode returns the mode applied before capture starts
func RecordingMode(cfg config.ModeConfig) AudioMode {
	mode := baseMode(cfg)
	mode.AllowCaptureOnIOS = true
	return mode
}

// PlaybackMode returns the mode applied before a recording is loaded for playback
func PlaybackMode(cfg config.ModeConfig) AudioMode {
	mode := baseMode(cfg)
	mode.AllowCaptureOnIOS = false
	return mode
}

func baseMode(cfg config.ModeConfig) AudioMode {
	policy := InterruptionPolicy(cfg.InterruptionPolicy)
	if policy == "" {
		policy = InterruptionDoNotMix
	}
	return AudioMode{
		IOSInterruptionPolicy:     policy,
		AllowPlaybackInSilentMode: cfg.PlayInSilentMode,
		DuckOthersOnAndroid:       cfg.DuckOthers,
		AndroidInterruptionPolicy: policy,
		RouteToEarpieceOnAndroid:  cfg.RouteToEarpiece,
		StaysActiveInBackground:   cfg.StaysActiveInBackground,
	}
}

// MediaRole maps the mode onto a PipeWire/Pulse media.role stream property
func (m AudioMode) MediaRole() string {
	switch m.AndroidInterruptionPolicy {
	case InterruptionDuckOthers:
		return "Communication"
	case InterruptionMixWithOthers:
		if m.DuckOthersOnAndroid {
			return "Communication"
		}
		return "Music"
	default:
		return "Production"
	}
}
