// Package ui projects session state onto the four controls every front end
// renders: record button, recording indicator, play/pause and stop.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/audiolibrelab/looprec/internal/session"
)

const PermissionDeniedMessage = "You must enable audio recording permissions in order to use this app."

// Controls is what a front end draws for one UIState
type Controls struct {
	// PermissionDenied means only PermissionDeniedMessage is shown
	PermissionDenied bool   `json:"permission_denied"`
	RecordEnabled    bool   `json:"record_enabled"`
	RecordingVisible bool   `json:"recording_visible"`
	PlayPauseLabel   string `json:"play_pause_label"`
	PlaybackEnabled  bool   `json:"playback_enabled"`
	Loading          bool   `json:"loading"`
	Elapsed          string `json:"elapsed"`
}

func Project(s session.UIState) Controls {
	if s.PermissionAsked && !s.HavePermission {
		return Controls{PermissionDenied: true}
	}

	label := "Play"
	if s.IsPlaying {
		label = "Pause"
	}

	return Controls{
		RecordEnabled:    s.HavePermission && !s.IsLoading,
		RecordingVisible: s.IsRecording,
		PlayPauseLabel:   label,
		PlaybackEnabled:  s.IsPlaybackAllowed && !s.IsLoading,
		Loading:          s.IsLoading,
		Elapsed:          formatMillis(s.RecordingMillis),
	}
}

func formatMillis(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

// StatusLine renders controls as one terminal line. Disabled controls are
// shown in parentheses.
func (c Controls) StatusLine() string {
	if c.PermissionDenied {
		return PermissionDeniedMessage
	}

	var b strings.Builder
	b.WriteString(button("r", "Record", c.RecordEnabled))
	b.WriteString("  ")
	if c.RecordingVisible {
		b.WriteString("● REC " + c.Elapsed)
	} else {
		b.WriteString("          ")
	}
	b.WriteString("  ")
	b.WriteString(button("p", c.PlayPauseLabel, c.PlaybackEnabled))
	b.WriteString("  ")
	b.WriteString(button("s", "Stop", c.PlaybackEnabled))
	if c.Loading {
		b.WriteString("  ...")
	}
	return b.String()
}

func button(key, label string, enabled bool) string {
	if enabled {
		return fmt.Sprintf("[%s] %s", key, label)
	}
	return fmt.Sprintf("(%s) %s", key, label)
}
