package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		var usage *usageError
		if errors.As(err, &usage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// usageError marks a flag-validation failure as a usage error (exit 2)
// rather than a runtime failure (exit 1), per spec.md §6.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func newRootCommand() *cobra.Command {
	var opts clientOptions

	cmd := &cobra.Command{
		Use:   "transcodefleet-client",
		Short: "Dispatch a video transcode across a fleet of worker nodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.InputFile, "input-file", "", "input video file (required)")
	flags.StringVar(&opts.OutputFile, "output-file", "", "output video file (required)")
	flags.StringArrayVar(&opts.Nodes, "nodes", nil, "worker node address as host:port (no scheme), repeatable; paired by position with --slots")
	flags.IntSliceVar(&opts.Slots, "slots", nil, "slot count for the corresponding --nodes entry, repeatable")
	flags.StringVar(&opts.ConfigFile, "config-file", "", "TOML config file supplying defaults")
	flags.StringVar(&opts.EncoderParams, "encoder-params", "", "encoder parameters passed verbatim to the external tool")
	flags.StringVar(&opts.TempDir, "temp-dir", "", "base directory for the job workspace")
	flags.Float64Var(&opts.SegmentDuration, "segment-duration", 0, "target segment duration in seconds")

	return cmd
}
