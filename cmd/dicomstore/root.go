package main

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/caio-sobreiro/dicomstore/config"
	"github.com/caio-sobreiro/dicomstore/dicom"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string

	config *config.Config
	logger *slog.Logger
}

// ValidFormats defines the allowed log formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "dicomstore",
		Short: "DICOM storage SCP and SCU",
		Long: `Receive DICOM instances over the network and store them on disk,
or send instances to a remote storage SCP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error), overrides the configuration")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (text|json), overrides the configuration")

	cmd.AddCommand(NewSCPCommand(opts))
	cmd.AddCommand(NewSendCommand(opts))
	cmd.AddCommand(NewEchoCommand(opts))
	cmd.AddCommand(NewTranscodeCommand(opts))
	cmd.AddCommand(NewNegotiateCommand(opts))

	return cmd
}

// load reads the configuration and applies the logging overrides.
func (o *RootOptions) load(cmd *cobra.Command) error {
	cfg := config.Default()
	if o.ConfigPath != "" {
		loaded, err := config.Load(o.ConfigPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if o.LogFormat != "" {
		if !slices.Contains(ValidFormats, o.LogFormat) {
			return fmt.Errorf("invalid log format %q: must be one of %v", o.LogFormat, ValidFormats)
		}
		cfg.LogFormat = o.LogFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	o.config = cfg
	dicom.SetMaxInflatedSize(cfg.MaxInflatedSize)
	o.logger = newLogger(cmd.ErrOrStderr(), cfg)
	slog.SetDefault(o.logger)
	return nil
}

// newLogger logs to w; diagnostics never share stdout with command output.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: cfg.Level()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}
