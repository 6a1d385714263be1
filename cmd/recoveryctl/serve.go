package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/FL0WL0W/ESPRecovery/internal/httpapi"
	"github.com/FL0WL0W/ESPRecovery/pkg/recovery"
)

func init() {
	rootCmd.AddCommand(newServeCmd())
}

func newServeCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the recovery HTTP API over the image",
		Long: `The serve command opens the image and exposes the recovery operations
over HTTP: status, image upload/clear/download, boot target selection, and
the key-value and file stores. Runs until interrupted.

Example:
  recoveryctl serve --image recovery.img
  recoveryctl serve --listen :9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides config)")
	return cmd
}

func runServe(listen string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Listen = listen
	}
	if verbose && cfg.LogLevel == "info" {
		cfg.LogLevel = "debug"
	}

	logger, logCloser, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	sys, err := recovery.OpenWithLogger(cfg, logger)
	if err != nil {
		return fmt.Errorf("open image %s: %w", cfg.Image, err)
	}
	defer sys.Close()

	srv := httpapi.New(sys, logger)
	if err := srv.Start(cfg.Listen); err != nil {
		return err
	}
	printInfo("Serving recovery API on %s (image %s)\n", cfg.Listen, cfg.Image)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	printInfo("Shutting down\n")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
