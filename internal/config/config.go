package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Microphone permission policies
const (
	PermissionPrompt  = "prompt"
	PermissionGranted = "granted"
	PermissionDenied  = "denied"
)

type Config struct {
	Audio       AudioConfig       `mapstructure:"audio" yaml:"audio"`
	Mode        ModeConfig        `mapstructure:"mode" yaml:"mode"`
	Playback    PlaybackConfig    `mapstructure:"playback" yaml:"playback"`
	Output      OutputConfig      `mapstructure:"output" yaml:"output"`
	Permissions PermissionsConfig `mapstructure:"permissions" yaml:"permissions"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
}

type AudioConfig struct {
	Backend string                  `mapstructure:"backend" yaml:"backend" validate:"oneof=pipewire auto"`
	Sources []string                `mapstructure:"sources" yaml:"sources" validate:"min=1,max=2"` // mono=[source], stereo=[left,right]
	Preset  string                  `mapstructure:"preset" yaml:"preset" validate:"required"`
	Presets map[string]PresetConfig `mapstructure:"presets" yaml:"presets" validate:"required,dive"`

	// How often the capture status is reported while recording
	StatusInterval time.Duration `mapstructure:"status_interval" yaml:"status_interval" validate:"gt=0"`
}

// PresetConfig is a recording quality preset
type PresetConfig struct {
	SampleRate  int    `mapstructure:"sample_rate" yaml:"sample_rate" validate:"gt=0"`
	Channels    int    `mapstructure:"channels" yaml:"channels" validate:"oneof=1 2"`
	Codec       string `mapstructure:"codec" yaml:"codec" validate:"required"`
	Extension   string `mapstructure:"extension" yaml:"extension" validate:"required"`
	MaxFileSize int64  `mapstructure:"max_file_size" yaml:"max_file_size" validate:"gte=0"` // bytes, 0 = unlimited
}

// ModeConfig holds the audio session policy shared by the recording and
// playback modes. Only the capture flag differs between the two.
type ModeConfig struct {
	InterruptionPolicy      string `mapstructure:"interruption_policy" yaml:"interruption_policy" validate:"oneof=do_not_mix duck_others mix_with_others"`
	PlayInSilentMode        bool   `mapstructure:"play_in_silent_mode" yaml:"play_in_silent_mode"`
	DuckOthers              bool   `mapstructure:"duck_others" yaml:"duck_others"`
	RouteToEarpiece         bool   `mapstructure:"route_to_earpiece" yaml:"route_to_earpiece"`
	StaysActiveInBackground bool   `mapstructure:"stays_active_in_background" yaml:"stays_active_in_background"`
}

type PlaybackConfig struct {
	Players []string `mapstructure:"players" yaml:"players" validate:"min=1,dive,oneof=mpv ffplay"`
	Volume  float64  `mapstructure:"volume" yaml:"volume" validate:"gte=0,lte=1"`
}

type OutputConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory" validate:"required"`
}

type PermissionsConfig struct {
	Microphone string `mapstructure:"microphone" yaml:"microphone" validate:"oneof=prompt granted denied"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr" validate:"required"`
}

// DefaultPath is the config file used when --config is not given
func DefaultPath() string {
	return os.ExpandEnv("$HOME/.config/looprec.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("audio.backend", "auto")
	v.SetDefault("audio.sources", []string{"system:capture_1"})
	v.SetDefault("audio.preset", "low")
	v.SetDefault("audio.status_interval", 250*time.Millisecond)
	v.SetDefault("audio.presets", map[string]any{
		"low": map[string]any{
			"sample_rate": 22050,
			"channels":    1,
			"codec":       "pcm_s16le",
			"extension":   "wav",
		},
		"high": map[string]any{
			"sample_rate": 44100,
			"channels":    2,
			"codec":       "pcm_s16le",
			"extension":   "wav",
		},
	})

	v.SetDefault("mode.interruption_policy", "do_not_mix")
	v.SetDefault("mode.play_in_silent_mode", true)
	v.SetDefault("mode.duck_others", true)
	v.SetDefault("mode.route_to_earpiece", false)
	v.SetDefault("mode.stays_active_in_background", true)

	v.SetDefault("playback.players", []string{"mpv", "ffplay"})
	v.SetDefault("playback.volume", 1.0)

	v.SetDefault("output.directory", filepath.Join(os.TempDir(), "looprec"))
	v.SetDefault("permissions.microphone", PermissionPrompt)
	v.SetDefault("server.addr", ":8080")
}

// Load reads the config file (a missing file at the default path is not an
// error), applies LOOPREC_* environment overrides and validates the result.
// A non-empty preset overrides audio.preset.
func Load(configFile, preset string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("LOOPREC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) || configFile != DefaultPath() {
				return nil, errors.Wrapf(err, "error reading config file %s", configFile)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "error unmarshaling config")
	}

	if preset != "" {
		cfg.Audio.Preset = preset
	}
	cfg.Output.Directory = expandPath(cfg.Output.Directory)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct constraints and cross-field rules
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "config validation failed")
	}

	if _, ok := c.Audio.Presets[c.Audio.Preset]; !ok {
		return errors.Newf("config validation failed: recording preset '%s' not found", c.Audio.Preset)
	}

	for i, source := range c.Audio.Sources {
		if !isValidAudioSource(source) {
			return errors.Newf("config validation failed: audio.sources[%d] must be a valid audio source (JACK port), got: %s", i, source)
		}
	}

	preset := c.Audio.Presets[c.Audio.Preset]
	if preset.Channels != len(c.Audio.Sources) {
		return errors.Newf("config validation failed: preset '%s' records %d channel(s) but %d source(s) are configured",
			c.Audio.Preset, preset.Channels, len(c.Audio.Sources))
	}

	return nil
}

// ActivePreset returns the selected recording preset
func (c *Config) ActivePreset() PresetConfig {
	return c.Audio.Presets[c.Audio.Preset]
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// isValidAudioSource checks if a source name is valid for JACK/PipeWire
func isValidAudioSource(source string) bool {
	source = strings.TrimSpace(source)
	if source == "" {
		return false
	}

	// Device names may contain colons, the port is whatever follows the last one
	lastColonIndex := strings.LastIndex(source, ":")
	if lastColonIndex == -1 {
		return true
	}

	deviceName := strings.TrimSpace(source[:lastColonIndex])
	port := strings.TrimSpace(source[lastColonIndex+1:])

	return len(deviceName) > 0 && len(port) > 0
}
