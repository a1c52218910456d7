package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "looprec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", "")
	require.NoError(t, err)

	assert.Equal(t, "auto", cfg.Audio.Backend)
	assert.Equal(t, "low", cfg.Audio.Preset)
	assert.Equal(t, []string{"system:capture_1"}, cfg.Audio.Sources)
	assert.Equal(t, 250*time.Millisecond, cfg.Audio.StatusInterval)
	assert.Equal(t, PermissionPrompt, cfg.Permissions.Microphone)
	assert.Equal(t, []string{"mpv", "ffplay"}, cfg.Playback.Players)

	preset := cfg.ActivePreset()
	assert.Equal(t, 22050, preset.SampleRate)
	assert.Equal(t, 1, preset.Channels)
	assert.Equal(t, "wav", preset.Extension)
	assert.Zero(t, preset.MaxFileSize)
}

func TestLoad_FileOverrides(t *testing.T) {
	path := writeConfig(t, `
audio:
  sources:
    - "Scarlett 2i2 USB: Audio (hw:1,0):capture_FL"
  presets:
    low:
      sample_rate: 16000
      channels: 1
      codec: pcm_s16le
      extension: wav
      max_file_size: 12000
mode:
  interruption_policy: duck_others
permissions:
  microphone: granted
server:
  addr: "127.0.0.1:9090"
`)

	cfg, err := Load(path, "")
	require.NoError(t, err)

	assert.Equal(t, int64(12000), cfg.ActivePreset().MaxFileSize)
	assert.Equal(t, 16000, cfg.ActivePreset().SampleRate)
	assert.Equal(t, "duck_others", cfg.Mode.InterruptionPolicy)
	assert.Equal(t, PermissionGranted, cfg.Permissions.Microphone)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
}

func TestLoad_PresetOverride(t *testing.T) {
	path := writeConfig(t, `
audio:
  sources: ["system:capture_1", "system:capture_2"]
`)

	cfg, err := Load(path, "high")
	require.NoError(t, err)
	assert.Equal(t, "high", cfg.Audio.Preset)
	assert.Equal(t, 2, cfg.ActivePreset().Channels)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("LOOPREC_PERMISSIONS_MICROPHONE", "denied")

	cfg, err := Load("", "")
	require.NoError(t, err)
	assert.Equal(t, PermissionDenied, cfg.Permissions.Microphone)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_MissingDefaultFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(DefaultPath(), "")
	require.NoError(t, err)
	assert.Equal(t, "low", cfg.Audio.Preset)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("", "")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *Config) {},
		},
		{
			name:   "unknown preset",
			mutate: func(c *Config) { c.Audio.Preset = "studio" },
			errMsg: "recording preset 'studio' not found",
		},
		{
			name:   "bad permission policy",
			mutate: func(c *Config) { c.Permissions.Microphone = "maybe" },
			errMsg: "Microphone",
		},
		{
			name:   "bad interruption policy",
			mutate: func(c *Config) { c.Mode.InterruptionPolicy = "shout" },
			errMsg: "InterruptionPolicy",
		},
		{
			name:   "unsupported player",
			mutate: func(c *Config) { c.Playback.Players = []string{"vlc"} },
			errMsg: "Players",
		},
		{
			name:   "source with empty port",
			mutate: func(c *Config) { c.Audio.Sources = []string{"system:"} },
			errMsg: "must be a valid audio source",
		},
		{
			name:   "channel count mismatch",
			mutate: func(c *Config) { c.Audio.Preset = "high" },
			errMsg: "records 2 channel(s) but 1 source(s)",
		},
		{
			name:   "negative max file size",
			mutate: func(c *Config) {
				p := c.Audio.Presets["low"]
				p.MaxFileSize = -1
				c.Audio.Presets["low"] = p
			},
			errMsg: "MaxFileSize",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestExpandPath(t *testing.T) {
	homeDir, _ := os.UserHomeDir()

	tests := []struct {
		input    string
		expected string
	}{
		{"~/Audio/looprec", filepath.Join(homeDir, "Audio", "looprec")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"~", "~"}, // bare tilde is left alone
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, expandPath(test.input), "expandPath(%q)", test.input)
	}
}

func TestIsValidAudioSource(t *testing.T) {
	tests := []struct {
		source string
		want   bool
	}{
		{"system:capture_1", true},
		{"Scarlett 2i2 USB: Audio (hw:1,0):0", true},
		{"default", true},
		{"", false},
		{"system:", false},
		{":capture_1", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, isValidAudioSource(tt.source), "source %q", tt.source)
	}
}
