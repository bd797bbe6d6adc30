package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ekifun/transcodefleet/internal/config"
	"github.com/ekifun/transcodefleet/internal/logging"
	"github.com/ekifun/transcodefleet/internal/nodeservice"
	"github.com/ekifun/transcodefleet/internal/transport"
	"github.com/ekifun/transcodefleet/internal/workspace"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configFile string
		listen     string
		tempDir    string
	)

	cmd := &cobra.Command{
		Use:   "transcodefleet-node",
		Short: "Serve the Encode RPC for one worker node",
		RunE: func(cmd *cobra.Command, args []string) error {
			fileCfg, err := config.LoadNodeFile(configFile)
			if err != nil {
				return err
			}
			if listen != "" {
				fileCfg.Listen = listen
			}
			if tempDir != "" {
				fileCfg.TempDir = tempDir
			}
			return runNode(cmd.Context(), fileCfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config-file", "", "TOML config file supplying defaults")
	flags.StringVar(&listen, "node", "", "listen address, e.g. :7776")
	flags.StringVar(&tempDir, "temp-dir", "", "base directory for the node's workspace")

	return cmd
}

func runNode(ctx context.Context, cfg config.NodeFile) error {
	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ws, err := workspace.New(cfg.TempDir)
	if err != nil {
		return fmt.Errorf("create node workspace: %w", err)
	}
	defer ws.Close()

	svc := nodeservice.New(ws, cfg.MaxInFlight, logger)
	app := transport.NewServer(svc, logger)

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("node listening", "address", cfg.Listen, "workspace", ws.Root())
		listenErr <- app.Listen(cfg.Listen)
	}()

	select {
	case err := <-listenErr:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received, draining in-flight encodes")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown node server: %w", err)
		}
		return nil
	}
}
