package audio

import (
	"fmt"

	"github.com/audiolibrelab/looprec/internal/config"
)

// Preset holds the capture format settings of a recording
type Preset struct {
	Name        string
	SampleRate  int
	Channels    int
	Codec       string
	Extension   string
	MaxFileSize int64
}

// NewPreset builds the active recording preset from configuration
func NewPreset(cfg *config.Config) Preset {
	pc := cfg.ActivePreset()
	return Preset{
		Name:        cfg.Audio.Preset,
		SampleRate:  pc.SampleRate,
		Channels:    pc.Channels,
		Codec:       pc.Codec,
		Extension:   pc.Extension,
		MaxFileSize: pc.MaxFileSize,
	}
}

func (p Preset) String() string {
	return fmt.Sprintf("%s (%d Hz, %dch, %s)", p.Name, p.SampleRate, p.Channels, p.Codec)
}
