package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/caio-sobreiro/dicomstore/client"
	"github.com/caio-sobreiro/dicomstore/codec"
	"github.com/caio-sobreiro/dicomstore/config"
	"github.com/caio-sobreiro/dicomstore/negotiation"
	"github.com/caio-sobreiro/dicomstore/transcode"
	"github.com/caio-sobreiro/dicomstore/types"
)

// PeerOptions names the remote SCP. Shared by send and echo.
type PeerOptions struct {
	Address   string
	CalledAE  string
	CallingAE string
}

func (p *PeerOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&p.Address, "address", "a", "localhost:11112", "host:port of the remote SCP")
	cmd.Flags().StringVar(&p.CalledAE, "called-ae", "ANY-SCP", "AE title of the remote SCP")
	cmd.Flags().StringVar(&p.CallingAE, "calling-ae", "", "AE title to call as (default: ae_title from the configuration)")
}

func (p *PeerOptions) calling(cfg *config.Config) string {
	if p.CallingAE != "" {
		return p.CallingAE
	}
	return cfg.AETitle
}

func connectConfig(cfg *config.Config) client.Config {
	return client.Config{
		MaxPDULength: cfg.MaxPDULength,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		DIMSETimeout: cfg.DIMSETimeout,
	}
}

// SendOptions holds flags for the send command.
type SendOptions struct {
	PeerOptions
	Rate  float64
	Quiet bool
}

// NewSendCommand creates the send command.
func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SendOptions{}

	cmd := &cobra.Command{
		Use:   "send <file-or-dir>...",
		Short: "Send instances to a storage SCP",
		Long: `Send Part 10 files to a remote storage SCP over one association.
Directories are walked recursively. Instances the SCP does not accept in
their own transfer syntax are transcoded to one it does accept.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runSend(ctx, rootOpts, opts, args, cmd.OutOrStdout())
		},
	}

	opts.register(cmd)
	cmd.Flags().Float64Var(&opts.Rate, "rate", -1, "instances per second, 0 for no limit (default: send_rate from the configuration)")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "do not print progress")

	return cmd
}

func runSend(ctx context.Context, rootOpts *RootOptions, opts *SendOptions, paths []string, out io.Writer) error {
	cfg := rootOpts.config
	logger := rootOpts.logger

	instances, err := collectInstances(paths)
	if err != nil {
		return err
	}
	if len(instances) == 0 {
		return fmt.Errorf("no DICOM files found")
	}

	perSecond := cfg.SendRate
	if opts.Rate >= 0 {
		perSecond = opts.Rate
	}

	userOpts := []client.UserOption{
		client.WithUserLogger(logger),
		client.WithConnectConfig(connectConfig(cfg)),
		client.WithNegotiator(negotiation.NewNegotiator(negotiation.NewCatalog(cfg.Compression), nil)),
		client.WithPipeline(transcode.NewPipeline(codec.DefaultRegistry(), transcode.WithLogger(logger))),
		client.WithRate(perSecond),
	}
	if !opts.Quiet {
		userOpts = append(userOpts, client.WithProgress(func(r types.OperationResult) {
			fmt.Fprintf(out, "\r%d/%d sent (%d failed, %d warnings)", r.Total-r.Remaining, r.Total, r.Failure, r.Warning)
			if r.Done() {
				fmt.Fprintln(out)
			}
		}))
	}

	user := client.NewStorageUser(opts.calling(cfg), opts.CalledAE, userOpts...)
	result, err := user.Send(ctx, opts.Address, instances)
	if result != nil {
		printResult(out, result)
	}
	if err != nil {
		return err
	}
	if result.Failure > 0 {
		return fmt.Errorf("%d of %d instances failed", result.Failure, result.Total)
	}
	return nil
}

// collectInstances reads the file meta information of every file in paths.
// Files without a Part 10 header are skipped.
func collectInstances(paths []string) ([]*client.StorageInstance, error) {
	var instances []*client.StorageInstance
	for _, root := range paths {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			inst, err := client.NewFileInstance(path)
			if err != nil {
				if path == root {
					return err
				}
				return nil
			}
			instances = append(instances, inst)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return instances, nil
}

func printResult(out io.Writer, r *types.OperationResult) {
	fmt.Fprintf(out, "total=%d success=%d warning=%d failure=%d remaining=%d\n",
		r.Total, r.Success, r.Warning, r.Failure, r.Remaining)
	if r.FailureDescription != "" {
		fmt.Fprintf(out, "first failure: %s\n", r.FailureDescription)
	}
}
