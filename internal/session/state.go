// Package session drives the record/loop-playback cycle: one controller that
// owns at most one capture or playback handle and projects their status into
// UI state.
package session

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Kind is the active session
type Kind int

const (
	KindIdle      Kind = iota // no handle
	KindRecording             // capture handle owned
	KindPlayback              // playback handle owned
)

func (k Kind) String() string {
	switch k {
	case KindIdle:
		return "idle"
	case KindRecording:
		return "recording"
	case KindPlayback:
		return "playback"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "idle":
		*k = KindIdle
	case "recording":
		*k = KindRecording
	case "playback":
		*k = KindPlayback
	default:
		return errors.Newf("unknown session kind %q", name)
	}
	return nil
}

var allKinds = []string{KindIdle.String(), KindRecording.String(), KindPlayback.String()}

// UIState is derived from the session and the latest handle status. It is
// never authoritative; front ends read it to render controls.
type UIState struct {
	HavePermission    bool    `json:"have_permission"`
	PermissionAsked   bool    `json:"permission_asked"`
	IsLoading         bool    `json:"is_loading"`
	IsRecording       bool    `json:"is_recording"`
	IsPlaying         bool    `json:"is_playing"`
	IsPlaybackAllowed bool    `json:"is_playback_allowed"`
	ShouldPlay        bool    `json:"should_play"`
	Rate              float64 `json:"rate"`
	Volume            float64 `json:"volume"`
	Muted             bool    `json:"muted"`
	Session           Kind    `json:"session"`
	RecordingMillis   int64   `json:"recording_millis"`
	Artifact          string  `json:"artifact,omitempty"`
}

func initialState() UIState {
	return UIState{
		Rate:   1.0,
		Volume: 1.0,
	}
}
