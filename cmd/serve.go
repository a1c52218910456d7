package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/looprec/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server for remote control",
	Long: `Start the looprec web server to control recording via a web interface.
This allows you to record and loop from your smartphone or any device on the same network.

The microphone permission is asked on the terminal before the server starts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.Server.Addr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		controller, backend := newController()
		defer controller.Close(context.Background())

		granted, err := controller.RequestPermission(ctx)
		if err != nil {
			return fmt.Errorf("failed to request permission: %w", err)
		}
		if !granted {
			slog.Warn("Serving without microphone permission, all controls are disabled")
		}

		srv := server.New(controller, backend, addr)
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
}
