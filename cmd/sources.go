package cmd

import (
	"fmt"
	"runtime"

	"github.com/audiolibrelab/looprec/internal/audio"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List available audio sources",
	Long:  `List all available audio sources that can be used for recording using the PipeWire backend.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		backend := audio.NewBackend(cfg)
		sources, err := backend.ListSources()
		if err != nil {
			return fmt.Errorf("failed to get %s sources: %w", backend.GetType(), err)
		}

		fmt.Printf("🎵 Audio Sources (%s, %s)\n", backend.GetType(), runtime.GOOS)
		fmt.Printf("═══════════════════════════════════════\n\n")

		for i, source := range sources {
			marker := " "
			for _, configured := range cfg.Audio.Sources {
				if configured == source {
					marker = "*"
				}
			}
			fmt.Printf(" %s %d. %s\n", marker, i+1, source)
		}

		fmt.Printf("\n💡 Sources marked * are configured in audio.sources.\n")
		fmt.Printf("  • Mono presets take one source, stereo presets take [left, right]\n")
		fmt.Printf("  • Example: [\"Scarlett 2i2 USB: Audio (hw:1,0):0\"]\n")
		return nil
	},
}
