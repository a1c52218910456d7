package cmd

import (
	"bufio"
	"os"

	"github.com/audiolibrelab/looprec/internal/audio"
	"github.com/audiolibrelab/looprec/internal/permission"
	"github.com/audiolibrelab/looprec/internal/session"
	"github.com/audiolibrelab/looprec/internal/storage"
)

// stdin is shared by the permission prompt and the key loop
var stdin = bufio.NewReader(os.Stdin)

// newController wires the session controller to the configured backend
func newController() (*session.Controller, audio.Backend) {
	backend := audio.NewBackend(cfg)
	controller := session.New(
		backend,
		permission.FromConfig(cfg.Permissions, stdin, os.Stdout),
		storage.NewOS(),
		session.Options{
			Preset: audio.NewPreset(cfg),
			Mode:   cfg.Mode,
		},
	)
	return controller, backend
}
