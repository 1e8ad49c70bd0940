package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/caio-sobreiro/dicomstore/codec"
	"github.com/caio-sobreiro/dicomstore/dicom"
	"github.com/caio-sobreiro/dicomstore/transcode"
	"github.com/caio-sobreiro/dicomstore/types"
)

// NewTranscodeCommand creates the transcode command.
func NewTranscodeCommand(rootOpts *RootOptions) *cobra.Command {
	var to string

	cmd := &cobra.Command{
		Use:   "transcode <in> <out>",
		Short: "Rewrite a Part 10 file in another transfer syntax",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranscode(rootOpts, args[0], args[1], to, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&to, "to", "t", types.ExplicitVRLittleEndian, "target transfer syntax UID")

	return cmd
}

func runTranscode(rootOpts *RootOptions, in, out, to string, w io.Writer) error {
	ts, ok := types.LookupTransferSyntax(to)
	if !ok {
		return fmt.Errorf("unknown transfer syntax %q", to)
	}
	f, err := dicom.ReadFile(in)
	if err != nil {
		return fmt.Errorf("read %s: %w", in, err)
	}
	pipeline := transcode.NewPipeline(codec.DefaultRegistry(), transcode.WithLogger(rootOpts.logger))
	converted, err := pipeline.Transcode(f, to)
	if err != nil {
		return fmt.Errorf("transcode %s: %w", in, err)
	}
	if err := dicom.WriteFile(out, converted); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Fprintf(w, "%s -> %s (%s)\n", in, out, ts.Name())
	return nil
}
