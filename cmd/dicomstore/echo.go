package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/caio-sobreiro/dicomstore/client"
	"github.com/caio-sobreiro/dicomstore/types"
)

// NewEchoCommand creates the echo command.
func NewEchoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PeerOptions{}

	cmd := &cobra.Command{
		Use:   "echo",
		Short: "Verify connectivity with a C-ECHO",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEcho(cmd.Context(), rootOpts, opts, cmd.OutOrStdout())
		},
	}
	opts.register(cmd)

	return cmd
}

func runEcho(ctx context.Context, rootOpts *RootOptions, opts *PeerOptions, out io.Writer) error {
	cfg := connectConfig(rootOpts.config)
	cfg.CallingAETitle = opts.calling(rootOpts.config)
	cfg.CalledAETitle = opts.CalledAE
	cfg.Logger = rootOpts.logger

	start := time.Now()
	assoc, err := client.Connect(ctx, opts.Address, cfg)
	if err != nil {
		return err
	}
	rsp, err := assoc.SendCEcho(ctx)
	if err != nil {
		_ = assoc.Abort()
		return err
	}
	if err := assoc.Release(); err != nil {
		rootOpts.logger.Warn("Release failed", "error", err)
	}
	if rsp.Status != types.StatusSuccess {
		return fmt.Errorf("C-ECHO returned status 0x%04X", rsp.Status)
	}
	fmt.Fprintf(out, "C-ECHO %s@%s succeeded in %s\n", opts.CalledAE, opts.Address, time.Since(start).Round(time.Millisecond))
	return nil
}
