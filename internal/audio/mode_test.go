package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/audiolibrelab/looprec/internal/config"
)

func TestRecordingAndPlaybackModes(t *testing.T) {
	cfg := config.ModeConfig{
		InterruptionPolicy:      "do_not_mix",
		PlayInSilentMode:        true,
		DuckOthers:              true,
		StaysActiveInBackground: true,
	}

	rec := RecordingMode(cfg)
	play := PlaybackMode(cfg)

	assert.True(t, rec.AllowCaptureOnIOS)
	assert.False(t, play.AllowCaptureOnIOS)

	// everything but the capture flag is shared
	play.AllowCaptureOnIOS = true
	assert.Equal(t, rec, play)

	assert.Equal(t, InterruptionDoNotMix, rec.IOSInterruptionPolicy)
	assert.Equal(t, InterruptionDoNotMix, rec.AndroidInterruptionPolicy)
	assert.True(t, rec.AllowPlaybackInSilentMode)
	assert.True(t, rec.DuckOthersOnAndroid)
	assert.False(t, rec.RouteToEarpieceOnAndroid)
}

func TestMediaRole(t *testing.T) {
	tests := []struct {
		policy InterruptionPolicy
		duck   bool
		want   string
	}{
		{InterruptionDoNotMix, true, "Production"},
		{InterruptionDuckOthers, false, "Communication"},
		{InterruptionMixWithOthers, false, "Music"},
		{InterruptionMixWithOthers, true, "Communication"},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			mode := AudioMode{AndroidInterruptionPolicy: tt.policy, DuckOthersOnAndroid: tt.duck}
			assert.Equal(t, tt.want, mode.MediaRole())
		})
	}
}

func TestNewPreset(t *testing.T) {
	cfg := testConfig()
	cfg.Audio.Presets["low"] = config.PresetConfig{SampleRate: 22050, Channels: 1, Codec: "pcm_s16le", Extension: "wav", MaxFileSize: 1 << 20}

	p := NewPreset(cfg)
	assert.Equal(t, Preset{Name: "low", SampleRate: 22050, Channels: 1, Codec: "pcm_s16le", Extension: "wav", MaxFileSize: 1 << 20}, p)
	assert.Equal(t, "low (22050 Hz, 1ch, pcm_s16le)", p.String())
}
