package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/caio-sobreiro/dicomstore/negotiation"
)

// NewNegotiateCommand creates the negotiate command.
func NewNegotiateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "negotiate <sop-class-uid>...",
		Short: "Show the contexts proposed for SOP classes and how the SCP answers them",
		Long: `Build the presentation contexts a sender would propose for the given
SOP classes using the configured compression catalog, then answer them the
way the SCP would. Nothing is sent over the network.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNegotiate(rootOpts, args, cmd.OutOrStdout())
		},
	}
	return cmd
}

func runNegotiate(rootOpts *RootOptions, sopClasses []string, w io.Writer) error {
	compression := rootOpts.config.Compression
	negotiator := negotiation.NewNegotiator(
		negotiation.NewCatalog(compression),
		negotiation.CapabilitiesFromConfig(compression),
	)

	proposed, err := negotiator.Propose(sopClasses)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Proposed:")
	fmt.Fprint(w, negotiation.Describe(proposed))

	answered, err := negotiator.Accept(proposed)
	fmt.Fprintln(w, "\nAnswered:")
	fmt.Fprint(w, negotiation.Describe(answered))
	return err
}
