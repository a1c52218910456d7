package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/audiolibrelab/looprec/internal/session"
	"github.com/audiolibrelab/looprec/internal/ui"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Record and loop from the terminal",
	Long: `Run the recorder interactively. Type a key and press Enter:

  r  record / stop recording and loop the take
  p  play / pause the loaded take
  s  stop playback
  q  quit`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		controller, _ := newController()
		defer controller.Close(context.Background())

		granted, err := controller.RequestPermission(ctx)
		if err != nil {
			return fmt.Errorf("failed to request permission: %w", err)
		}
		if !granted {
			fmt.Println(ui.PermissionDeniedMessage)
			return nil
		}

		unsubscribe := controller.Subscribe(newStatusPrinter())
		defer unsubscribe()
		fmt.Println(ui.Project(controller.State()).StatusLine())

		return runKeyLoop(ctx, controller)
	},
}

// newStatusPrinter prints the control line whenever it changes
func newStatusPrinter() func(session.UIState) {
	var mu sync.Mutex
	var last string
	return func(s session.UIState) {
		line := ui.Project(s).StatusLine()
		mu.Lock()
		defer mu.Unlock()
		if line == last {
			return
		}
		last = line
		fmt.Println(line)
	}
}

func runKeyLoop(ctx context.Context, controller *session.Controller) error {
	keys := make(chan string)
	go func() {
		defer close(keys)
		for {
			line, err := stdin.ReadString('\n')
			if line != "" {
				keys <- strings.ToLower(strings.TrimSpace(line))
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Interrupted, shutting down")
			return nil
		case key, ok := <-keys:
			if !ok {
				return nil
			}

			var err error
			switch key {
			case "r":
				err = controller.PressRecord(ctx)
			case "p":
				err = controller.TogglePlayPause(ctx)
			case "s":
				err = controller.StopPlayback(ctx)
			case "q":
				return nil
			case "":
				continue
			default:
				fmt.Printf("Unknown key %q (r=record, p=play/pause, s=stop, q=quit)\n", key)
				continue
			}
			reportControlError(key, err)
		}
	}
}

func reportControlError(key string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, session.ErrBusy):
		slog.Info("Busy, try again", "key", key)
	case errors.Is(err, session.ErrNoDataCollected):
		slog.Info("Recording was too short, nothing to play")
	default:
		slog.Error("Control failed", "key", key, "error", err)
	}
}
